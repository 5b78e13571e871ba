package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"elverra-membership/internal/infra/i18n"
	"elverra-membership/internal/infra/payment"
	"elverra-membership/internal/usecase"
)

// WebhookParsers resolves the callback parser of a gateway.
type WebhookParsers interface {
	Webhook(gateway string) (payment.WebhookParser, error)
}

// RateLimiter is a per-key request budget (redis in production).
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Options struct {
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	VerifyRateLimit int // per user per minute
}

// Server is the membership HTTP API.
type Server struct {
	subs     usecase.SubscriptionUseCase
	payments usecase.PaymentUseCase
	tokens   usecase.TokenUseCase
	products usecase.ProductUseCase
	webhooks WebhookParsers
	limiter  RateLimiter
	auth     *Authenticator
	i18n     *i18n.Bundle
	metrics  http.Handler
	opts     Options
	log      *zerolog.Logger
}

func NewServer(
	subs usecase.SubscriptionUseCase,
	payments usecase.PaymentUseCase,
	tokens usecase.TokenUseCase,
	products usecase.ProductUseCase,
	webhooks WebhookParsers,
	limiter RateLimiter,
	auth *Authenticator,
	bundle *i18n.Bundle,
	metricsHandler http.Handler,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{
		subs:     subs,
		payments: payments,
		tokens:   tokens,
		products: products,
		webhooks: webhooks,
		limiter:  limiter,
		auth:     auth,
		i18n:     bundle,
		metrics:  metricsHandler,
		opts:     opts,
		log:      logger,
	}
}

// Router builds the chi mux with every route mounted.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(TraceID)
	r.Use(RequestLog(s.log))
	r.Use(s.Recover)
	r.Use(Timeout(s.opts.RequestTimeout))
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", traceHeader},
			ExposedHeaders:   []string{traceHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", s.handleListProducts)
		// scanners verify cards offline-first; the online check needs no account
		r.Post("/cards/verify", s.handleVerifyCard)
		// providers call back without our credentials
		r.Post("/payments/webhook/{gateway}", s.handleWebhook)
		r.Get("/payments/webhook/{gateway}", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.Authenticate)

			r.Get("/products/{id}/quote", s.handleQuote)

			r.Post("/subscriptions", s.handleCreateSubscription)
			r.Get("/subscriptions", s.handleListSubscriptions)
			r.Get("/subscriptions/{id}", s.handleGetSubscription)
			r.Patch("/subscriptions/{id}/status", s.handleUpdateStatus)
			r.Get("/subscriptions/{id}/card", s.handleGetCard)
			r.Get("/subscriptions/{id}/card/qr.png", s.handleCardQR)

			r.Post("/payments/initiate", s.handleInitiatePayment)
			r.With(s.RateLimited("payment_verify", s.opts.VerifyRateLimit, time.Minute)).
				Post("/payments/verify", s.handleVerifyPayment)

			r.Post("/tokens/accounts", s.handleOpenTokenAccount)
			r.Get("/tokens/accounts", s.handleListTokenAccounts)
			r.Get("/tokens/accounts/{id}/transactions", s.handleListTokenTransactions)
			r.Post("/tokens/purchase", s.handlePurchaseTokens)

			r.With(s.RequireAdmin).Get("/admin/payments/pending", s.handlePendingPayments)
		})
	})
	return r
}
