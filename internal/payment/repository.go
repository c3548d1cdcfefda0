package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/money"
	"racketoutlet-be/internal/order"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Repository interface {
	GetByOrderID(ctx context.Context, q db.DBTX, orderID uint) (*Payment, error)
	GetByOrderIDForUpdate(ctx context.Context, q db.DBTX, orderID uint) (*Payment, error)
	GetByGatewayPaymentID(ctx context.Context, q db.DBTX, gatewayPaymentID string) (*Payment, error)
	GetByGatewayOrderID(ctx context.Context, q db.DBTX, gatewayOrderID string) (*Payment, error)
	OpenPending(ctx context.Context, q db.DBTX, orderID uint, amount decimal.Decimal, method string) error
	Upsert(ctx context.Context, q db.DBTX, p *Payment) error
	MarkGatewayAttempt(ctx context.Context, q db.DBTX, orderID uint, amount decimal.Decimal) error
	FindStuckCreated(ctx context.Context, q db.DBTX, before time.Time, limit int) ([]Payment, error)

	SavePaymentWebhook(
		ctx context.Context,
		q db.DBTX,
		provider string,
		eventID string,
		eventType string,
		externalID string,
		payload json.RawMessage,
		signatureValid bool,
	) (webhookID int64, isDuplicate bool, err error)
	MarkWebhookProcessed(ctx context.Context, q db.DBTX, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, q db.DBTX, webhookID int64, reason string) error
}

type repository struct {
	currency string
}

func NewRepository(currency string) Repository {
	if currency == "" {
		currency = money.CurrencyINR
	}
	return &repository{currency: currency}
}

const paymentColumns = `
	id, order_id, amount, currency, status, payment_method,
	gateway_order_id, gateway_payment_id, gateway_signature, transaction_id,
	gateway_attempted_at, created_at, updated_at
`

func scanPayment(row interface{ Scan(...any) error }, p *Payment) error {
	return row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.PaymentMethod,
		&p.GatewayOrderID,
		&p.GatewayPaymentID,
		&p.GatewaySignature,
		&p.TransactionID,
		&p.GatewayAttemptedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

func (r *repository) getOne(ctx context.Context, q db.DBTX, where string, arg any) (*Payment, error) {
	var p Payment
	err := scanPayment(q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE `+where, arg), &p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) GetByOrderID(ctx context.Context, q db.DBTX, orderID uint) (*Payment, error) {
	return r.getOne(ctx, q, `order_id = $1`, orderID)
}

// GetByOrderIDForUpdate locks the payment row for the caller's transaction.
func (r *repository) GetByOrderIDForUpdate(ctx context.Context, q db.DBTX, orderID uint) (*Payment, error) {
	return r.getOne(ctx, q, `order_id = $1 FOR UPDATE`, orderID)
}

func (r *repository) GetByGatewayPaymentID(ctx context.Context, q db.DBTX, gatewayPaymentID string) (*Payment, error) {
	return r.getOne(ctx, q, `gateway_payment_id = $1`, gatewayPaymentID)
}

func (r *repository) GetByGatewayOrderID(ctx context.Context, q db.DBTX, gatewayOrderID string) (*Payment, error) {
	return r.getOne(ctx, q, `gateway_order_id = $1`, gatewayOrderID)
}

// OpenPending records the payment owed for a freshly placed order.
func (r *repository) OpenPending(ctx context.Context, q db.DBTX, orderID uint, amount decimal.Decimal, method string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (order_id, amount, currency, status, payment_method)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (order_id) DO NOTHING
	`, orderID, money.Normalize(amount), r.currency, StatusPending, method)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to open payment",
			zap.String("layer", "repository"),
			zap.Uint("order_id", orderID),
			zap.Error(err),
		)
	}
	return err
}

// Upsert writes p keyed on its order. Gateway identifiers are only ever
// filled in, never cleared.
func (r *repository) Upsert(ctx context.Context, q db.DBTX, p *Payment) error {
	if p.Currency == "" {
		p.Currency = r.currency
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO payments (
			order_id, amount, currency, status, payment_method,
			gateway_order_id, gateway_payment_id, gateway_signature, transaction_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (order_id) DO UPDATE SET
			amount             = EXCLUDED.amount,
			status             = EXCLUDED.status,
			payment_method     = EXCLUDED.payment_method,
			gateway_order_id   = COALESCE(EXCLUDED.gateway_order_id, payments.gateway_order_id),
			gateway_payment_id = COALESCE(EXCLUDED.gateway_payment_id, payments.gateway_payment_id),
			gateway_signature  = COALESCE(EXCLUDED.gateway_signature, payments.gateway_signature),
			transaction_id     = COALESCE(EXCLUDED.transaction_id, payments.transaction_id),
			updated_at         = NOW()
		RETURNING id, created_at, updated_at
	`,
		p.OrderID,
		money.Normalize(p.Amount),
		p.Currency,
		p.Status,
		p.PaymentMethod,
		p.GatewayOrderID,
		p.GatewayPaymentID,
		p.GatewaySignature,
		p.TransactionID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to upsert payment",
			zap.String("layer", "repository"),
			zap.Uint("order_id", p.OrderID),
			zap.String("status", string(p.Status)),
			zap.Error(err),
		)
	}
	return err
}

// MarkGatewayAttempt stamps the start of a gateway order creation. It must be
// committed before the gateway is called so a lost response can be recovered.
func (r *repository) MarkGatewayAttempt(ctx context.Context, q db.DBTX, orderID uint, amount decimal.Decimal) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (order_id, amount, currency, status, payment_method, gateway_attempted_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (order_id) DO UPDATE SET gateway_attempted_at = NOW(), updated_at = NOW()
	`, orderID, money.Normalize(amount), r.currency, StatusPending, order.PaymentMethodRazorpay)
	return err
}

// FindStuckCreated lists gateway payments still awaiting a result since before.
func (r *repository) FindStuckCreated(ctx context.Context, q db.DBTX, before time.Time, limit int) ([]Payment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = $1 AND gateway_order_id IS NOT NULL AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3
	`, StatusCreated, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) SavePaymentWebhook(
	ctx context.Context,
	q db.DBTX,
	provider string,
	eventID string,
	eventType string,
	externalID string,
	payload json.RawMessage,
	signatureValid bool,
) (int64, bool, error) {

	const query = `
	INSERT INTO payment_webhooks (
		provider,
		event_id,
		event_type,
		external_id,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO NOTHING
	RETURNING id;
	`

	var id int64
	err := q.QueryRowContext(
		ctx,
		query,
		provider,
		eventID,
		eventType,
		externalID,
		signatureValid,
		[]byte(payload),
	).Scan(&id)

	if err != nil {
		// Duplicate webhook → idempotent success
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, q db.DBTX, webhookID int64) error {
	const query = `
	UPDATE payment_webhooks
	SET processed_at = now()
	WHERE id = $1;
	`

	_, err := q.ExecContext(ctx, query, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, q db.DBTX, webhookID int64, reason string) error {
	const query = `
	UPDATE payment_webhooks
	SET processed_at = now(), process_error = $2
	WHERE id = $1;
	`

	_, err := q.ExecContext(ctx, query, webhookID, reason)
	return err
}
