// Package main запускает HTTP-сервер сервиса пополнения баланса.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/deposit-gateway/internal/config"
	"github.com/mmeshcher/deposit-gateway/internal/gateway"
	"github.com/mmeshcher/deposit-gateway/internal/handler"
	"github.com/mmeshcher/deposit-gateway/internal/middleware"
	"github.com/mmeshcher/deposit-gateway/internal/repository"
	"github.com/mmeshcher/deposit-gateway/internal/service"
	"github.com/mmeshcher/deposit-gateway/internal/signature"
)

const shutdownTimeout = 5 * time.Second

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger initialization error: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	gw := gateway.NewClient(gateway.Config{
		BaseURL:      cfg.GatewayBaseURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		APIVersion:   cfg.APIVersion,
		Timeout:      cfg.GatewayTimeout,
	})
	if !gw.Configured() {
		sugar.Warn("gateway not configured: order creation will fail until credentials are set")
	}
	if cfg.WebhookSigningSecret() == "" {
		sugar.Warn("webhook secret not configured: every webhook will be rejected")
	}

	verifier := signature.NewVerifier(cfg.WebhookSigningSecret(), signature.WithTolerance(cfg.WebhookTolerance))

	svc := service.NewService(repo, gw, verifier, service.Options{
		OrderPrefix:    cfg.OrderPrefix,
		Currency:       cfg.Currency,
		ReturnURL:      cfg.ReturnURL,
		GatewayTimeout: cfg.GatewayTimeout,
		StoreTimeout:   cfg.StoreTimeout,
	})
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.OperatorAPIKey)
	if !authMiddleware.Enabled() {
		sugar.Info("operator API key not set: operator routes disabled")
	}
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.AllowedOrigins)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.GatewayTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting deposit server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
