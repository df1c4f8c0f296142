package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/godilite/qa-review-engine/internal/app"
	"github.com/godilite/qa-review-engine/internal/config"
)

const startupTimeout = time.Minute

func main() {
	envErr := godotenv.Load(".env")

	cfg := config.LoadFromEnv()

	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("ignoring unreadable .env file", zap.Error(envErr))
	}

	logger.Info("starting qa review engine",
		zap.String("version", app.Version),
		zap.String("env", cfg.AppEnv),
		zap.String("db_driver", cfg.DBDriver),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Bool("redis_cache", cfg.RedisAddr != ""),
		zap.Int("review_workers", cfg.ReviewWorkers),
		zap.String("llm_model", cfg.LLM.Model),
	)

	// Migrations and the first Redis ping can block; let a signal abort them.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, startupTimeout)
	application, err := app.NewApp(ctx, cfg, logger)
	cancel()
	stop()
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := application.Run(); err != nil {
		logger.Fatal("application exited with error", zap.Error(err))
	}
}
