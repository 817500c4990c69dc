package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrichain/agrichain-backend/api/controllers"
	"github.com/agrichain/agrichain-backend/api/middleware"
	"github.com/agrichain/agrichain-backend/internal/orders"
	"github.com/agrichain/agrichain-backend/internal/settlement"
	"github.com/agrichain/agrichain-backend/internal/wallet"
	"github.com/agrichain/agrichain-backend/pkg/config"
	"github.com/agrichain/agrichain-backend/pkg/logger"
	"github.com/agrichain/agrichain-backend/pkg/redis"
)

// RouterParams carry everything the HTTP surface needs.
type RouterParams struct {
	Config      *config.Config
	Logger      *logger.Logger
	Redis       *redis.Client
	Orders      orders.Service
	Settlements settlement.Service
	Wallets     wallet.Service
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	var redisPinger controllers.Pinger
	if params.Redis != nil {
		redisPinger = params.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, redisPinger))
	})

	r.Handle("/metrics", promhttp.Handler())

	otpPolicy := middleware.OTPRateLimitPolicy{
		Window:     cfg.OTPRateLimit.Window,
		OrderLimit: cfg.OTPRateLimit.PerOrder,
		IPLimit:    cfg.OTPRateLimit.PerIP,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(params.Orders, logg))
			r.Get("/{partyId}", controllers.ListOrders(params.Orders, logg))
			if params.Redis != nil {
				r.With(middleware.OTPRateLimit(otpPolicy, params.Redis, logg)).
					Post("/{orderId}/verify-otp", controllers.VerifyOTP(params.Settlements, logg))
			} else {
				r.Post("/{orderId}/verify-otp", controllers.VerifyOTP(params.Settlements, logg))
			}
			r.Post("/{orderId}/cancel", controllers.CancelOrder(params.Orders, logg))
		})

		r.Get("/wallets/{sellerId}", controllers.GetWallet(params.Wallets, logg))
	})

	return r
}
