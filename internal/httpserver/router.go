package httpserver

import (
	"net/http"

	"invest-platform/internal/admin"
	"invest-platform/internal/auth"
	"invest-platform/internal/commission"
	"invest-platform/internal/health"
	"invest-platform/internal/ledger"
	"invest-platform/internal/marketdata"
	"invest-platform/internal/orders"
	"invest-platform/internal/products"
	"invest-platform/internal/users"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Deps struct {
	AuthSvc           *auth.Service
	AuthHandler       *auth.Handler
	UserHandler       *users.Handler
	ProductHandler    *products.Handler
	OrderHandler      *orders.Handler
	WalletHandler     *ledger.Handler
	CommissionHandler *commission.Handler
	AdminHandler      *admin.Handler
	HealthHandler     *health.Handler
	TickerWS          *marketdata.TickerWSHandler
	AdminJWTSecret    []byte
	JWTIssuer         string
	Logger            *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(d.Logger))

	r.Get("/healthz", d.HealthHandler.Live)
	r.Get("/readyz", d.HealthHandler.Ready)
	r.Get("/healthz/full", d.HealthHandler.Full)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", d.AuthHandler.Register)
		r.Post("/auth/login", d.AuthHandler.Login)
		r.Get("/auth/invite-codes/{code}", d.AuthHandler.CheckInviteCode)

		r.Get("/products", d.ProductHandler.List)
		r.Get("/products/rankings", d.ProductHandler.Rankings)
		r.Get("/products/{id}", d.ProductHandler.Detail)
		r.Get("/products/{id}/ticker", d.ProductHandler.Ticker)
		r.Get("/products/{id}/klines", d.ProductHandler.KLines)

		r.Group(func(r chi.Router) {
			r.Use(WithAuth(d.AuthSvc))
			r.Get("/me", func(w http.ResponseWriter, req *http.Request) {
				d.UserHandler.Me(w, req, UserID(req.Context()))
			})
			r.Post("/me/verification", func(w http.ResponseWriter, req *http.Request) {
				d.UserHandler.SubmitVerification(w, req, UserID(req.Context()))
			})
			r.Get("/me/invitees", func(w http.ResponseWriter, req *http.Request) {
				d.UserHandler.Invitees(w, req, UserID(req.Context()))
			})
			r.Get("/me/commissions", func(w http.ResponseWriter, req *http.Request) {
				d.CommissionHandler.List(w, req, UserID(req.Context()))
			})

			r.Post("/orders", func(w http.ResponseWriter, req *http.Request) {
				d.OrderHandler.Place(w, req, UserID(req.Context()))
			})
			r.Get("/orders", func(w http.ResponseWriter, req *http.Request) {
				d.OrderHandler.List(w, req, UserID(req.Context()))
			})
			r.Get("/positions", func(w http.ResponseWriter, req *http.Request) {
				d.OrderHandler.Positions(w, req, UserID(req.Context()))
			})

			r.Post("/wallet/deposits", func(w http.ResponseWriter, req *http.Request) {
				d.WalletHandler.Deposit(w, req, UserID(req.Context()))
			})
			r.Get("/wallet/deposits", func(w http.ResponseWriter, req *http.Request) {
				d.WalletHandler.DepositHistory(w, req, UserID(req.Context()))
			})
			r.Post("/wallet/withdrawals", func(w http.ResponseWriter, req *http.Request) {
				d.WalletHandler.Withdraw(w, req, UserID(req.Context()))
			})
			r.Get("/wallet/withdrawals", func(w http.ResponseWriter, req *http.Request) {
				d.WalletHandler.WithdrawHistory(w, req, UserID(req.Context()))
			})
			r.Get("/wallet/transactions", func(w http.ResponseWriter, req *http.Request) {
				d.WalletHandler.Transactions(w, req, UserID(req.Context()))
			})
			r.Get("/wallet/profit-stats", func(w http.ResponseWriter, req *http.Request) {
				d.WalletHandler.ProfitStats(w, req, UserID(req.Context()))
			})
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/login", d.AdminHandler.Login)
		r.Group(func(r chi.Router) {
			r.Use(admin.AuthMiddleware(d.AdminJWTSecret, d.JWTIssuer))
			r.Get("/me", d.AdminHandler.Me)
			r.Post("/products", d.AdminHandler.CreateProduct)
			r.Patch("/products/{id}", d.AdminHandler.UpdateProduct)
			r.Post("/products/{id}/price", d.AdminHandler.SetPrice)
			r.Post("/products/{id}/klines", d.AdminHandler.BackfillKLines)
			r.Get("/deposits", d.AdminHandler.ListDeposits)
			r.Post("/deposits/{id}/audit", d.AdminHandler.AuditDeposit)
			r.Get("/withdrawals", d.AdminHandler.ListWithdrawals)
			r.Post("/withdrawals/{id}/audit", d.AdminHandler.AuditWithdraw)
			r.Get("/verifications", d.AdminHandler.ListVerifications)
			r.Post("/verifications/{id}/audit", d.AdminHandler.AuditVerification)
			r.Get("/stats", d.AdminHandler.Stats)
			r.Get("/logs", d.AdminHandler.Logs)
			r.Post("/settlement/run", d.AdminHandler.TriggerSettlement)
		})
	})

	r.Get("/ws/tickers", d.TickerWS.ServeHTTP)

	return r
}
