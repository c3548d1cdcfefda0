package config

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrMissingDBHost = errors.New("environment variables not loaded properly: DB_HOST is empty")

type Config struct {
	AppEnv  string
	AppPort string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	JWTSecret         string
	InternalSecretKey string
	CORSOrigins       []string

	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string
	GatewayTimeout        time.Duration
	Currency              string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers           []string
	KafkaNotificationTopic string

	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration

	ServiceName  string
	OTLPEndpoint string
	SentryDSN    string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com")
	v.SetDefault("GATEWAY_TIMEOUT", "15s")
	v.SetDefault("CURRENCY", "INR")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("KAFKA_NOTIFICATION_TOPIC", "notifications.email")
	v.SetDefault("RECONCILE_INTERVAL", "1m")
	v.SetDefault("RECONCILE_STALE_AFTER", "15m")
	v.SetDefault("SERVICE_NAME", "racketoutlet-be")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	cfg := &Config{
		AppEnv:  v.GetString("APP_ENV"),
		AppPort: v.GetString("APP_PORT"),

		DBHost:     v.GetString("DB_HOST"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBPort:     v.GetString("DB_PORT"),

		JWTSecret:         v.GetString("SECRET_KEY"),
		InternalSecretKey: v.GetString("INTERNAL_SECRET_KEY"),
		CORSOrigins:       splitList(v.GetString("CORS_ORIGINS")),

		RazorpayKeyID:         v.GetString("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     v.GetString("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: v.GetString("RAZORPAY_WEBHOOK_SECRET"),
		RazorpayBaseURL:       strings.TrimRight(v.GetString("RAZORPAY_BASE_URL"), "/"),
		GatewayTimeout:        v.GetDuration("GATEWAY_TIMEOUT"),
		Currency:              v.GetString("CURRENCY"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),

		KafkaBrokers:           splitList(v.GetString("KAFKA_BROKERS")),
		KafkaNotificationTopic: v.GetString("KAFKA_NOTIFICATION_TOPIC"),

		ReconcileInterval:   v.GetDuration("RECONCILE_INTERVAL"),
		ReconcileStaleAfter: v.GetDuration("RECONCILE_STALE_AFTER"),

		ServiceName:  v.GetString("SERVICE_NAME"),
		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		SentryDSN:    v.GetString("SENTRY_DSN"),
	}

	if cfg.DBHost == "" {
		return nil, ErrMissingDBHost
	}

	return cfg, nil
}

// LoadConfig is Load for binaries: a broken environment stops the process.
func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
