package telemetry

import (
	"fmt"
	"time"

	"racketoutlet-be/internal/logger"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

const sentryFlushTimeout = 2 * time.Second

// InitSentry configures the global Sentry hub. The returned func flushes
// buffered events and must run before exit. An empty dsn disables reporting.
func InitSentry(dsn, env, release string) (func(), error) {
	if dsn == "" {
		logger.L().Info("error reporting disabled", zap.String("reason", "no Sentry DSN"))
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      env,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry: %w", err)
	}

	return func() { sentry.Flush(sentryFlushTimeout) }, nil
}
