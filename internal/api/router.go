// Package api exposes the wallet and settlement services over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"stream-wallet/internal/pkg/metrics"
	"stream-wallet/internal/service"
)

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the services behind the HTTP routes.
type Handler struct {
	ledger      *service.LedgerService
	gifts       *service.GiftService
	payments    *service.PaymentService
	poller      *service.PaymentPoller
	withdrawals *service.WithdrawalService
	pk          *service.PKBattleService
	reports     *service.ReportService
	db          Pinger
	webhookAuth string
}

// Services groups the dependencies of NewHandler.
type Services struct {
	Ledger      *service.LedgerService
	Gifts       *service.GiftService
	Payments    *service.PaymentService
	Poller      *service.PaymentPoller
	Withdrawals *service.WithdrawalService
	PK          *service.PKBattleService
	Reports     *service.ReportService
	DB          Pinger
}

// NewHandler creates a Handler. When webhookUser is set, webhook calls must
// carry the matching Authorization digest.
func NewHandler(s Services, webhookUser, webhookPass string) *Handler {
	h := &Handler{
		ledger:      s.Ledger,
		gifts:       s.Gifts,
		payments:    s.Payments,
		poller:      s.Poller,
		withdrawals: s.Withdrawals,
		pk:          s.PK,
		reports:     s.Reports,
		db:          s.DB,
	}
	if webhookUser != "" {
		h.webhookAuth = webhookDigest(webhookUser, webhookPass)
	}
	return h
}

// NewRouter registers every route on a gorilla/mux router.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheckHandler).Methods(http.MethodGet)

	r.HandleFunc("/accounts", h.CreateAccountHandler).Methods(http.MethodPost)
	r.HandleFunc("/accounts", h.ListAccountsHandler).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id:[0-9]+}", h.GetAccountHandler).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id:[0-9]+}/history", h.GetHistoryHandler).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id:[0-9]+}/wallet", h.GetWalletHandler).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id:[0-9]+}/wallet/rebuild", h.RebuildWalletHandler).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id:[0-9]+}/consistency", h.ConsistencyHandler).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id:[0-9]+}/credit", h.CreditHandler).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id:[0-9]+}/gifts", h.AccountGiftsHandler).Methods(http.MethodGet)

	r.HandleFunc("/gifts", h.ListGiftsHandler).Methods(http.MethodGet)
	r.HandleFunc("/gifts", h.CreateGiftHandler).Methods(http.MethodPost)
	r.HandleFunc("/gifts/send", h.SendGiftHandler).Methods(http.MethodPost)
	r.HandleFunc("/gifts/{id:[0-9]+}", h.DeleteGiftHandler).Methods(http.MethodDelete)
	r.HandleFunc("/streams/{type}/{id:[0-9]+}/gifts", h.StreamGiftsHandler).Methods(http.MethodGet)

	r.HandleFunc("/payments", h.InitiatePaymentHandler).Methods(http.MethodPost)
	r.HandleFunc("/payments", h.ListPaymentsHandler).Methods(http.MethodGet)
	r.HandleFunc("/payments/analytics", h.PaymentAnalyticsHandler).Methods(http.MethodGet)
	r.HandleFunc("/payments/{orderID}", h.GetPaymentHandler).Methods(http.MethodGet)
	r.HandleFunc("/payments/{orderID}/entries", h.PaymentEntriesHandler).Methods(http.MethodGet)
	r.HandleFunc("/payments/{orderID}/status", h.UpdatePaymentStatusHandler).Methods(http.MethodPost)
	r.HandleFunc("/payments/{orderID}/watch", h.WatchPaymentHandler).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/payment", h.PaymentWebhookHandler).Methods(http.MethodPost)

	r.HandleFunc("/withdrawals", h.RequestWithdrawalHandler).Methods(http.MethodPost)
	r.HandleFunc("/withdrawals", h.ListWithdrawalsHandler).Methods(http.MethodGet)
	r.HandleFunc("/withdrawals/quote", h.QuoteWithdrawalHandler).Methods(http.MethodGet)
	r.HandleFunc("/withdrawals/policies", h.ListPoliciesHandler).Methods(http.MethodGet)
	r.HandleFunc("/withdrawals/policies/{currency}", h.UpdatePolicyHandler).Methods(http.MethodPut)
	r.HandleFunc("/withdrawals/{id:[0-9]+}", h.GetWithdrawalHandler).Methods(http.MethodGet)
	r.HandleFunc("/withdrawals/{id:[0-9]+}", h.UpdateWithdrawalHandler).Methods(http.MethodPatch)
	r.HandleFunc("/withdrawals/{id:[0-9]+}", h.DeleteWithdrawalHandler).Methods(http.MethodDelete)

	r.HandleFunc("/pk-battles", h.StartBattleHandler).Methods(http.MethodPost)
	r.HandleFunc("/pk-battles", h.ListBattlesHandler).Methods(http.MethodGet)
	r.HandleFunc("/pk-battles/{id:[0-9]+}", h.GetBattleHandler).Methods(http.MethodGet)
	r.HandleFunc("/pk-battles/{id:[0-9]+}/gifts", h.BattleGiftHandler).Methods(http.MethodPost)
	r.HandleFunc("/pk-battles/{id:[0-9]+}/end", h.EndBattleHandler).Methods(http.MethodPost)
	r.HandleFunc("/pk-battles/{id:[0-9]+}/events", h.BattleEventsHandler).Methods(http.MethodGet)

	r.HandleFunc("/reports/{currency}", h.ReportHandler).Methods(http.MethodGet)

	return r
}

// HealthCheckHandler reports whether the database is reachable.
func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			respondWithError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware counts requests and observes latency per route template.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		timer := prometheus.NewTimer(metrics.HTTPRequestDuration.WithLabelValues(r.Method, endpoint))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		timer.ObserveDuration()

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		if rec.status >= http.StatusInternalServerError {
			log.Error().Str("method", r.Method).Str("endpoint", endpoint).Int("status", rec.status).Msg("Request failed")
		}
	})
}
