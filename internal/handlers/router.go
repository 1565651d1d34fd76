package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/hoardrun1/hoardrun-sub005/internal/httputil"
	"github.com/hoardrun1/hoardrun-sub005/internal/middleware"
	apperr "github.com/hoardrun1/hoardrun-sub005/pkg/errors"
)

type Middlewares struct {
	Auth         func(http.Handler) http.Handler
	APILimit     *middleware.RateLimiter
	ContactLimit *middleware.RateLimiter
	CORSOrigins  []string
}

func NewRouter(d Deps, mw Middlewares) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Metrics(serviceName))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, req, apperr.NotFound("no such endpoint"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, req, apperr.New(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed"))
	})

	// metrics & health
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", HealthHandler(d)).Methods(http.MethodGet)

	// public
	r.HandleFunc("/api/payments/momo/callback", CallbackHandler(d)).Methods(http.MethodPost, http.MethodPut)
	r.Handle("/api/contact", mw.ContactLimit.Handler(ContactHandler(d))).Methods(http.MethodPost)

	// authenticated
	api := r.PathPrefix("/api").Subrouter()
	api.Use(mw.Auth, mw.APILimit.Handler)
	api.HandleFunc("/me", MeHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/me/pin", SetPINHandler(d)).Methods(http.MethodPost)
	api.HandleFunc("/account", AccountHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/transactions", ListTransactionsHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", GetTransactionHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/payments/momo", PaymentsHandler(d)).Methods(http.MethodPost)
	api.HandleFunc("/payments/momo/{id}/refresh", RefreshPaymentHandler(d)).Methods(http.MethodPost)
	api.HandleFunc("/market/quote/{symbol}", QuoteHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/market/fx", ExchangeRateHandler(d)).Methods(http.MethodGet)
	api.HandleFunc("/market/daily/{symbol}", DailyHandler(d)).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins:   mw.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	}).Handler(r)
}
