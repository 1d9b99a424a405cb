package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/kevinvillajim/bcommerce-core/internal/app"
	"github.com/kevinvillajim/bcommerce-core/internal/common"
	"github.com/kevinvillajim/bcommerce-core/internal/config"
	"github.com/kevinvillajim/bcommerce-core/internal/notify"
	"github.com/kevinvillajim/bcommerce-core/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	asynqOpt, err := app.AsynqRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(asynqOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			cfg.NotifyQueue: 1,
		},
		Logger: asynqLogger{logger: logger},
	})

	mailer := notify.Mailer{
		Mail:    common.NopEmailSender{},
		Log:     logger,
		Enabled: cfg.NotifyEmailEnabled,
		From:    cfg.NotifyEmailFrom,
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(notify.TaskDomainEventEmail, mailer.HandleTask)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	logger.Info().Str("queue", cfg.NotifyQueue).Int("concurrency", concurrency).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker exited unexpectedly")
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

// asynqLogger adapts zerolog to the asynq logging interface.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(joinArgs(args)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(joinArgs(args)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(joinArgs(args)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(joinArgs(args)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(joinArgs(args)) }

func joinArgs(args []interface{}) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, fmt.Sprint(arg))
	}
	return strings.Join(parts, " ")
}
