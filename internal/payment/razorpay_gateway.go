package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const defaultRazorpayBaseURL = "https://api.razorpay.com"

var tracer = otel.Tracer("racketoutlet-be/payment")

type razorpayGateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
}

// ----------------- Constructor -----------------

func NewRazorpayGateway(cfg RazorpayConfig) Gateway {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		logger.L().Warn("Razorpay credentials are empty")
	}
	if cfg.WebhookSecret == "" {
		logger.L().Warn("Razorpay webhook secret is empty, webhook signatures are not checked")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultRazorpayBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &razorpayGateway{
		keyID:         cfg.KeyID,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (g *razorpayGateway) KeyID() string {
	return g.keyID
}

// ----------------- CreateOrder -----------------

func (g *razorpayGateway) CreateOrder(ctx context.Context, in CreateOrderRequest) (*GatewayOrder, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("receipt", in.Receipt),
		zap.Int64("amount", in.Amount),
	)

	jsonBody, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	var out GatewayOrder
	if err := g.do(ctx, "create_order", http.MethodPost, "/v1/orders", jsonBody, &out); err != nil {
		log.Error("Razorpay order creation failed", zap.Error(err))
		return nil, err
	}

	log.Info("Razorpay order created", zap.String("gateway_order_id", out.ID))
	return &out, nil
}

// ----------------- FindOrderByReceipt -----------------

func (g *razorpayGateway) FindOrderByReceipt(ctx context.Context, receipt string) (*GatewayOrder, error) {
	var out struct {
		Items []GatewayOrder `json:"items"`
	}
	path := "/v1/orders?receipt=" + url.QueryEscape(receipt)
	if err := g.do(ctx, "find_order", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	for i := range out.Items {
		if out.Items[i].Receipt == receipt {
			return &out.Items[i], nil
		}
	}
	return nil, ErrGatewayOrderNotFound
}

// ----------------- FetchOrderPayments -----------------

func (g *razorpayGateway) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]GatewayPayment, error) {
	var out struct {
		Items []GatewayPayment `json:"items"`
	}
	path := "/v1/orders/" + url.PathEscape(gatewayOrderID) + "/payments"
	if err := g.do(ctx, "fetch_payments", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ----------------- Signatures -----------------

// VerifyPaymentSignature checks the checkout signature: hex HMAC-SHA256 of
// "<order_id>|<payment_id>" keyed with the API secret.
func (g *razorpayGateway) VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature string) bool {
	return verifyHMAC(g.keySecret, []byte(gatewayOrderID+"|"+gatewayPaymentID), signature)
}

// VerifyWebhookSignature checks X-Razorpay-Signature over the raw body.
// Without a configured webhook secret every delivery is accepted.
func (g *razorpayGateway) VerifyWebhookSignature(body []byte, signature string) bool {
	if g.webhookSecret == "" {
		return true // skip in dev
	}
	return verifyHMAC(g.webhookSecret, body, signature)
}

func (g *razorpayGateway) WebhookSignaturesEnabled() bool {
	return g.webhookSecret != ""
}

func verifyHMAC(secret string, message []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ----------------- Transport -----------------

func (g *razorpayGateway) do(ctx context.Context, operation, method, path string, body []byte, out any) error {
	ctx, span := tracer.Start(ctx, "razorpay."+operation)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("gateway.operation", operation),
	)

	timer := metrics.StartTimer()
	result := "ok"
	defer func() {
		metrics.GatewayRequests.WithLabelValues(operation, result).Inc()
		timer.ObserveDuration(metrics.GatewayLatency.WithLabelValues(operation))
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		result = "error"
		return err
	}

	req.SetBasicAuth(g.keyID, g.keySecret)
	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		if isTimeout(err) {
			result = "timeout"
			return fmt.Errorf("%w: %s", ErrGatewayTimeout, operation)
		}
		result = "error"
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		result = "error"
		if isTimeout(err) {
			result = "timeout"
			return fmt.Errorf("%w: %s", ErrGatewayTimeout, operation)
		}
		return fmt.Errorf("failed to read razorpay response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result = "error"
		span.SetStatus(codes.Error, resp.Status)
		logger.FromCtx(ctx).Error("Razorpay returned non-success status",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return fmt.Errorf("%w: razorpay %s returned %d", ErrGateway, operation, resp.StatusCode)
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		result = "error"
		return fmt.Errorf("%w: decode %s response: %v", ErrGateway, operation, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
