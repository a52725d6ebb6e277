package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/api"
	"github.com/ayo6706/gateway-bridge/internal/api/middleware"
	"github.com/ayo6706/gateway-bridge/internal/checkout"
	"github.com/ayo6706/gateway-bridge/internal/config"
	"github.com/ayo6706/gateway-bridge/internal/db"
	"github.com/ayo6706/gateway-bridge/internal/gateway"
	"github.com/ayo6706/gateway-bridge/internal/ledger"
	"github.com/ayo6706/gateway-bridge/internal/observability"
	"github.com/ayo6706/gateway-bridge/internal/service"
	"github.com/ayo6706/gateway-bridge/internal/signing"
	"github.com/ayo6706/gateway-bridge/internal/webhook"
	"github.com/ayo6706/gateway-bridge/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server and expiry sweeper, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	store := ledger.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	var redisClient *redis.Client
	var docs checkout.DocumentStore
	if cfg.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		docs = checkout.NewRedisStore(redisClient)
	} else {
		memDocs := checkout.NewMemoryStore(time.Minute)
		defer memDocs.Close()
		docs = memDocs
	}

	signer := signing.NewSigner(cfg.GatewayAPIKey)
	var encryptor *signing.Encryptor
	if cfg.GatewayPublicKey != "" {
		encryptor, err = signing.NewEncryptor([]byte(cfg.GatewayPublicKey))
		if err != nil {
			return fmt.Errorf("parse gateway public key: %w", err)
		}
	}
	classifier, err := gateway.NewClassifier(cfg.GatewayBaseURL)
	if err != nil {
		return fmt.Errorf("init response classifier: %w", err)
	}
	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:    cfg.GatewayBaseURL,
		MerchantID: cfg.GatewayMerchantID,
		Timeout:    cfg.GatewayTimeout,
	}, signer, encryptor, classifier, gateway.NewFallbackPolicy(), logger)

	// Paid orders are logged until a downstream order system is wired in.
	ledgerSvc := ledger.New(store, loggingNotifier{logger: logger}, logger)
	paymentSvc := service.NewPaymentService(gatewayClient, ledgerSvc, docs, cfg.CheckoutTTL, logger)

	hmacKey := cfg.WebhookHMACKey
	if cfg.WebhookSkipSignature {
		hmacKey = ""
	}
	verifier := webhook.NewVerifier(hmacKey)

	sweeper := worker.NewExpirySweeper(ledgerSvc, logger).
		WithPollInterval(cfg.ExpirySweepInterval).
		WithBatchSize(cfg.ExpiryBatchSize)
	stopSweeper := sweeper.Run(ctx)

	// A typed nil *redis.Client must not reach the Cmdable interface.
	var redisCmd redis.Cmdable
	if redisClient != nil {
		redisCmd = redisClient
	}
	router := api.NewRouter(cfg, logger, pool, redisCmd, paymentSvc, ledgerSvc, verifier)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping expiry sweeper")
	stopSweeper()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// loggingNotifier is the default order-paid sink.
type loggingNotifier struct {
	logger *zap.Logger
}

func (n loggingNotifier) MarkPaid(ctx context.Context, orderRef, tranID string) error {
	n.logger.Info("order paid",
		zap.String("order_ref", orderRef),
		zap.String("tran_id", tranID),
	)
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
