package api

import (
	"github.com/ayo6706/gateway-bridge/internal/api/handler"
	"github.com/ayo6706/gateway-bridge/internal/api/middleware"
	"github.com/ayo6706/gateway-bridge/internal/api/spec"
	"github.com/ayo6706/gateway-bridge/internal/config"
	"github.com/ayo6706/gateway-bridge/internal/ledger"
	"github.com/ayo6706/gateway-bridge/internal/service"
	"github.com/ayo6706/gateway-bridge/internal/webhook"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Router assembles the HTTP surface: the authenticated merchant API, the
// public callback and checkout endpoints, and the operational endpoints.
type Router struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *pgxpool.Pool
	redis      redis.Cmdable
	paymentSvc *service.PaymentService
	ledger     *ledger.Ledger
	verifier   *webhook.Verifier
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, redisClient redis.Cmdable, paymentSvc *service.PaymentService, l *ledger.Ledger, verifier *webhook.Verifier) *Router {
	return &Router{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		paymentSvc: paymentSvc,
		ledger:     l,
		verifier:   verifier,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	purchaseHandler := handler.NewPurchaseHandler(api.paymentSvc)
	transactionHandler := handler.NewTransactionHandler(api.paymentSvc)
	linkHandler := handler.NewPaymentLinkHandler(api.paymentSvc)
	webhookHandler := handler.NewWebhookHandler(api.verifier, api.ledger)
	checkoutHandler := handler.NewCheckoutHandler(api.paymentSvc)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Operational endpoints
	r.Get("/healthz", healthHandler.Live)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public routes: provider callbacks and shopper-facing checkout pages.
	r.Group(func(r chi.Router) {
		r.With(middleware.WebhookRateLimiter(api.cfg.WebhookRateLimit)).
			Post("/v1/callbacks/gateway", webhookHandler.HandleGatewayCallback)
		r.With(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS)).
			Get("/v1/checkout/{token}", checkoutHandler.GetCheckout)
	})

	// Protected merchant API
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)

		r.Post("/v1/purchases", purchaseHandler.CreatePurchase)
		r.Get("/v1/transactions/{tranID}", transactionHandler.GetTransaction)
		r.Post("/v1/transactions/{tranID}/cancel", transactionHandler.CancelTransaction)

		r.Post("/v1/payment-links", linkHandler.CreatePaymentLink)
		r.Get("/v1/payment-links/{linkID}", linkHandler.GetPaymentLink)
		r.Post("/v1/payment-links/{linkID}/cancel", linkHandler.CancelPaymentLink)
	})

	return r
}
