package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lendhub/gateway/middleware"
	lendingsvc "lendhub/services/lending"
)

// Rate limit groups.
const (
	GroupAccount = "account"
	GroupAdmin   = "admin"
	GroupPublic  = "public"
)

type Config struct {
	Service        *lendingsvc.Service
	Authenticator  *middleware.Authenticator
	RateLimiter    *middleware.RateLimiter
	Observability  *middleware.Observability
	CORS           middleware.CORSConfig
	MetricsHandler http.Handler
	ServiceName    string
	Timeout        time.Duration
}

type handlers struct {
	svc     *lendingsvc.Service
	timeout time.Duration
}

// New builds the HTTP surface of the lending service.
func New(cfg Config) (http.Handler, error) {
	if cfg.Service == nil {
		return nil, errors.New("routes: lending service required")
	}
	if cfg.Authenticator == nil {
		return nil, errors.New("routes: authenticator required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "lendhub"
	}
	h := &handlers{svc: cfg.Service, timeout: cfg.Timeout}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	limit := func(group string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.RateLimiter.Middleware(group)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(pub chi.Router) {
			pub.Use(limit(GroupPublic))
			pub.Get("/pools", h.listPools)
			pub.Get("/pools/{asset}", h.getPool)
			pub.Get("/collections", h.listCollections)
			pub.Get("/accounts/{nonce}", h.getAccount)
			pub.Get("/accounts/{nonce}/health", h.getAccountHealth)
			pub.Get("/debt/{certificate}", h.getDebt)
			pub.Get("/balances/{address}/{asset}", h.getBalance)
		})
		v1.Group(func(acct chi.Router) {
			acct.Use(cfg.Authenticator.Middleware())
			acct.Use(limit(GroupAccount))
			acct.Post("/market/enter", h.enterMarket)
			acct.Post("/market/exit", h.exitMarket)
			acct.Post("/collateral/add", h.addCollateral)
			acct.Post("/collateral/remove", h.removeCollateral)
			acct.Post("/borrow", h.borrow)
			acct.Post("/borrow/nfts", h.borrowWithNFTs)
			acct.Post("/repay", h.repay)
			acct.Post("/repay/nfts", h.repayNFTDebt)
			acct.Post("/liquidate", h.liquidate)
			acct.Post("/accounts/{nonce}/refresh", h.refreshAccount)
		})
		v1.Route("/admin", func(admin chi.Router) {
			admin.Use(cfg.Authenticator.Middleware(middleware.ScopeAdmin))
			admin.Use(limit(GroupAdmin))
			admin.Post("/pools", h.registerPool)
			admin.Put("/pools/{asset}", h.upgradePool)
			admin.Put("/pools/{asset}/risk", h.setRisk)
			admin.Post("/collections", h.addCollection)
			admin.Put("/prices/{asset}", h.setPrice)
			admin.Put("/settings/max-liquidation-threshold", h.setMaxLiquidationThreshold)
			admin.Put("/pause/{action}", h.setPaused)
			admin.Post("/credit", h.credit)
			admin.Post("/nfts", h.mintNFT)
		})
	})

	return otelhttp.NewHandler(r, cfg.ServiceName), nil
}
