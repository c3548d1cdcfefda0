// Package handler exposes the order, payment and cart services over HTTP.
package handler

import (
	"time"

	"racketoutlet-be/internal/cart"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/metrics"
	"racketoutlet-be/internal/middleware"
	"racketoutlet-be/internal/order"
	"racketoutlet-be/internal/payment"
	"racketoutlet-be/internal/payment/webhook"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type RouterDeps struct {
	ServiceName string
	JWTSecret   []byte
	CORSOrigins []string

	DB       Pinger
	Limiter  *middleware.RateLimiter
	Orders   order.Service
	Payments payment.Service
	Carts    cart.Service
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	r.Use(otelgin.Middleware(d.ServiceName))
	r.Use(logger.RequestID())
	r.Use(logger.AccessLog())
	r.Use(metrics.HTTP())
	r.Use(cors.New(corsConfig(d.CORSOrigins)))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.GET("/health", Health(d.DB))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.Authenticate(d.JWTSecret))
	if d.Limiter != nil {
		api.Use(d.Limiter.Middleware())
	}

	// the signature is the only credential the gateway presents
	wh := webhook.NewWebhookHandler(d.Payments)
	api.POST("/gateway/webhook", wh.PaymentWebhookHandler)

	authed := api.Group("")
	authed.Use(middleware.RequireAuth())

	oh := NewOrderHandler(d.Orders)
	ph := NewPaymentHandler(d.Payments)
	ch := NewCartHandler(d.Carts)

	orders := authed.Group("/orders")
	{
		orders.POST("", oh.CreateOrder)
		orders.GET("", oh.ListOrders)
		orders.GET("/:id", oh.GetOrder)
		orders.PATCH("/:id/status", middleware.RequireAdmin(), oh.AdvanceStatus)

		orders.POST("/:id/confirm-cod", ph.ConfirmCOD)
		orders.POST("/:id/payment", ph.CreatePayment)
		orders.GET("/:id/payment", ph.GetPayment)
		orders.POST("/:id/payment/verify", ph.VerifyPayment)
		orders.POST("/:id/payment/cancel", ph.CancelPayment)
		orders.POST("/:id/payment/fail", ph.FailPayment)
	}

	carts := authed.Group("/cart")
	{
		carts.GET("", ch.GetCart)
		carts.POST("/items", ch.AddItem)
		carts.DELETE("/items/:product_id", ch.RemoveItem)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", logger.RequestIDHeader, "X-Device-ID"},
		ExposeHeaders:    []string{logger.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
