package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"stream-wallet/internal/model"
	"stream-wallet/internal/service"
)

type initiatePaymentRequest struct {
	GiftID   *int64 `json:"gift_id"`
	Diamonds int64  `json:"diamonds"`
}

// InitiatePaymentHandler opens a checkout for the calling account and
// starts watching the order in the background.
func (h *Handler) InitiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := callerID(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var req initiatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithServiceError(w, err)
		return
	}

	checkout, err := h.payments.Initiate(r.Context(), service.PaymentRequest{
		AccountID: accountID,
		GiftID:    req.GiftID,
		Diamonds:  req.Diamonds,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	if h.poller != nil {
		h.poller.WatchAsync(checkout.OrderID)
	}

	w.Header().Set("Location", "/payments/"+checkout.OrderID)
	respondWithJSON(w, http.StatusCreated, checkout)
}

func (h *Handler) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	payment, err := h.payments.Get(r.Context(), pathVar(r, "orderID"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, payment)
}

func (h *Handler) ListPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	filter := model.PaymentFilter{Limit: queryLimit(r)}

	var err error
	if filter.AccountID, err = queryInt(r, "account_id"); err != nil {
		respondWithServiceError(w, err)
		return
	}
	if filter.GiftID, err = queryInt(r, "gift_id"); err != nil {
		respondWithServiceError(w, err)
		return
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := model.ParsePaymentStatus(raw)
		if err != nil {
			respondWithServiceError(w, fmt.Errorf("%w: %w", service.ErrInvalidInput, err))
			return
		}
		filter.Status = &status
	}

	payments, err := h.payments.List(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, payments)
}

type paymentDayResponse struct {
	*model.PaymentDay
	SuccessRate float64 `json:"success_rate"`
}

// PaymentEntriesHandler lists the ledger entries a payment produced. A
// settled order has exactly one bought entry; a pending or failed one has
// none.
func (h *Handler) PaymentEntriesHandler(w http.ResponseWriter, r *http.Request) {
	orderID := pathVar(r, "orderID")
	if _, err := h.payments.Get(r.Context(), orderID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	entries, err := h.ledger.EntriesFor(r.Context(), orderID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []*model.LedgerEntry{}
	}
	respondWithJSON(w, http.StatusOK, entries)
}

// PaymentAnalyticsHandler aggregates payments per day. from and to are
// dates (YYYY-MM-DD) in the reporting timezone; the default window is the
// last 30 days including today.
func (h *Handler) PaymentAnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, err := analyticsWindow(time.Now(), h.payments.Location(), q.Get("from"), q.Get("to"))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	days, err := h.payments.Analytics(r.Context(), from, to)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	out := make([]paymentDayResponse, 0, len(days))
	for _, d := range days {
		out = append(out, paymentDayResponse{PaymentDay: d, SuccessRate: d.SuccessRate()})
	}
	respondWithJSON(w, http.StatusOK, out)
}

// analyticsWindow resolves the [from, to) range of an analytics query.
// Day boundaries are local midnights in loc, matching how the service
// buckets payments.
func analyticsWindow(now time.Time, loc *time.Location, rawFrom, rawTo string) (time.Time, time.Time, error) {
	local := now.In(loc)
	to := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	from := to.AddDate(0, 0, -30)

	var err error
	if rawFrom != "" {
		if from, err = time.ParseInLocation(time.DateOnly, rawFrom, loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad from date", service.ErrInvalidInput)
		}
	}
	if rawTo != "" {
		if to, err = time.ParseInLocation(time.DateOnly, rawTo, loc); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad to date", service.ErrInvalidInput)
		}
		to = to.AddDate(0, 0, 1)
	}
	return from, to, nil
}

type paymentStatusRequest struct {
	Status        string  `json:"status"`
	TransactionID *string `json:"transaction_id"`
}

// UpdatePaymentStatusHandler applies a status reported by the client after
// the checkout redirect.
func (h *Handler) UpdatePaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req paymentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithServiceError(w, err)
		return
	}

	result, err := h.payments.ReconcileReported(r.Context(), pathVar(r, "orderID"), req.Status, req.TransactionID, service.SourceClient)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// WatchPaymentHandler starts a background watcher for an order, unless one
// is already running.
func (h *Handler) WatchPaymentHandler(w http.ResponseWriter, r *http.Request) {
	orderID := pathVar(r, "orderID")
	payment, err := h.payments.Get(r.Context(), orderID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if payment.Status.Terminal() {
		respondWithJSON(w, http.StatusOK, map[string]any{"order_id": orderID, "status": payment.Status, "watching": false})
		return
	}
	if h.poller == nil {
		respondWithError(w, http.StatusServiceUnavailable, "poller disabled")
		return
	}

	h.poller.WatchAsync(orderID)
	respondWithJSON(w, http.StatusAccepted, map[string]any{"order_id": orderID, "status": payment.Status, "watching": true})
}

type webhookPayload struct {
	MerchantOrderID string `json:"merchantOrderId"`
	TransactionID   string `json:"transactionId"`
	Status          string `json:"status"`
}

// PaymentWebhookHandler receives gateway callbacks. Replays of an already
// applied status answer 200 so the gateway stops retrying.
func (h *Handler) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if !h.webhookAuthorized(r) {
		log.Warn().Str("remote", r.RemoteAddr).Msg("Webhook rejected: bad authorization")
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var p webhookPayload
	if err := decodeJSON(r, &p); err != nil {
		respondWithServiceError(w, err)
		return
	}
	if p.MerchantOrderID == "" || p.Status == "" {
		respondWithError(w, http.StatusBadRequest, "merchantOrderId and status are required")
		return
	}

	var txnID *string
	if p.TransactionID != "" {
		txnID = &p.TransactionID
	}

	// The gateway does not wait for us; finish even if it hangs up.
	ctx := context.WithoutCancel(r.Context())
	result, err := h.payments.ReconcileReported(ctx, p.MerchantOrderID, p.Status, txnID, service.SourceWebhook)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"duplicate": result.Duplicate,
		"credited":  result.Credited,
	})
}
