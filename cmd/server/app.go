package main

import (
	"context"
	"database/sql"
	"time"

	"racketoutlet-be/internal/cart"
	"racketoutlet-be/internal/config"
	"racketoutlet-be/internal/db"
	"racketoutlet-be/internal/handler"
	"racketoutlet-be/internal/inventory"
	"racketoutlet-be/internal/logger"
	"racketoutlet-be/internal/middleware"
	"racketoutlet-be/internal/notification"
	"racketoutlet-be/internal/order"
	"racketoutlet-be/internal/payment"
	"racketoutlet-be/internal/product"
	"racketoutlet-be/internal/synchronizer"
	"racketoutlet-be/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type app struct {
	router     *gin.Engine
	reconciler *payment.Reconciler
	limiter    *middleware.RateLimiter
}

func newApp(cfg *config.Config, database *sql.DB, redisClient *redis.Client, notifier notification.Notifier) *app {
	tx := db.NewTransactor(database)

	productRepo := product.NewRepository()
	cartRepo := cart.NewRepository()
	orderRepo := order.NewRepository()
	paymentRepo := payment.NewRepository(cfg.Currency)
	ledger := inventory.NewLedger()

	dispatcher := notification.NewDispatcher(notification.NewRepository(), user.NewRepository(), orderRepo, notifier)
	sync := synchronizer.New(orderRepo, ledger, dispatcher)

	gateway := payment.NewRazorpayGateway(payment.RazorpayConfig{
		KeyID:         cfg.RazorpayKeyID,
		KeySecret:     cfg.RazorpayKeySecret,
		WebhookSecret: cfg.RazorpayWebhookSecret,
		BaseURL:       cfg.RazorpayBaseURL,
		Timeout:       cfg.GatewayTimeout,
	})

	paymentSvc := payment.NewService(payment.Deps{
		DB:         database,
		Transactor: tx,
		Repo:       paymentRepo,
		Orders:     orderRepo,
		Gateway:    gateway,
		Sync:       sync,
		Locker:     payment.NewLocker(redisClient),
		Currency:   cfg.Currency,
	})

	orderSvc := order.NewService(order.Deps{
		DB:         database,
		Transactor: tx,
		Repo:       orderRepo,
		Snapshots:  cart.NewSnapshotBuilder(cartRepo, productRepo),
		CartRepo:   cartRepo,
		Ledger:     ledger,
		Payments:   paymentRepo,
	})

	cartSvc := cart.NewService(database, cartRepo, productRepo, ledger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	limiter := middleware.NewRateLimiter(cfg.InternalSecretKey)
	router := handler.NewRouter(handler.RouterDeps{
		ServiceName: cfg.ServiceName,
		JWTSecret:   []byte(cfg.JWTSecret),
		CORSOrigins: cfg.CORSOrigins,
		DB:          database,
		Limiter:     limiter,
		Orders:      orderSvc,
		Payments:    paymentSvc,
		Carts:       cartSvc,
	})

	return &app{
		router: router,
		reconciler: payment.NewReconciler(paymentSvc, payment.ReconcilerConfig{
			Interval:   cfg.ReconcileInterval,
			StaleAfter: cfg.ReconcileStaleAfter,
		}),
		limiter: limiter,
	}
}

// newRedisClient returns nil when Redis is not configured or unreachable;
// payment locks then fall back to the in-process locker.
func newRedisClient(ctx context.Context, cfg *config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		logger.L().Info("redis not configured, payment locks are process local")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		logger.L().Warn("redis unreachable, payment locks are process local", zap.Error(err))
		_ = client.Close()
		return nil
	}

	return client
}

func newNotifier(cfg *config.Config) (notification.Notifier, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		return notification.LogNotifier{}, func() {}
	}

	kn := notification.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaNotificationTopic)
	return kn, func() {
		if err := kn.Close(); err != nil {
			logger.L().Warn("kafka notifier close failed", zap.Error(err))
		}
	}
}
