package api

import (
	"net/http"
	"strconv"

	"stream-wallet/internal/model"
	"stream-wallet/internal/service"
)

type withdrawalRequest struct {
	Currency model.Currency `json:"currency"`
	Amount   int64          `json:"amount"`
}

func (h *Handler) RequestWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	accountID, err := callerID(r)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var req withdrawalRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithServiceError(w, err)
		return
	}

	wd, err := h.withdrawals.Request(r.Context(), accountID, req.Currency, req.Amount)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/withdrawals/"+strconv.FormatInt(wd.ID, 10))
	respondWithJSON(w, http.StatusCreated, wd)
}

func (h *Handler) ListWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	var status *model.WithdrawalStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := model.WithdrawalStatus(raw)
		status = &s
	}

	list, err := h.withdrawals.List(r.Context(), status, queryLimit(r))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// QuoteWithdrawalHandler prices an amount at the configured rate without
// creating a request.
func (h *Handler) QuoteWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	currency := model.Currency(r.URL.Query().Get("currency"))
	amount, err := queryInt(r, "amount")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if amount == nil {
		respondWithError(w, http.StatusBadRequest, "amount is required")
		return
	}

	payout, err := h.withdrawals.Quote(currency, *amount)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"currency": currency,
		"amount":   *amount,
		"payout":   payout,
	})
}

func (h *Handler) GetWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	wd, err := h.withdrawals.Get(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, wd)
}

type withdrawalPatch struct {
	Amount *int64                  `json:"amount"`
	Status *model.WithdrawalStatus `json:"status"`
}

// UpdateWithdrawalHandler edits a request. Moving it into Approved or
// Completed debits the balance exactly once.
func (h *Handler) UpdateWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var req withdrawalPatch
	if err := decodeJSON(r, &req); err != nil {
		respondWithServiceError(w, err)
		return
	}

	result, err := h.withdrawals.Update(r.Context(), id, service.WithdrawalUpdate{
		Amount: req.Amount,
		Status: req.Status,
	})
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) DeleteWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if err := h.withdrawals.Delete(r.Context(), id); err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPoliciesHandler returns the withdrawal policy in force per currency.
func (h *Handler) ListPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.withdrawals.Policies())
}

// UpdatePolicyHandler changes the minimum or conversion rate of one
// currency. The caller, when given, is recorded as the editor.
func (h *Handler) UpdatePolicyHandler(w http.ResponseWriter, r *http.Request) {
	var upd service.PolicyUpdate
	if err := decodeJSON(r, &upd); err != nil {
		respondWithServiceError(w, err)
		return
	}

	var editor *int64
	if id, err := callerID(r); err == nil {
		editor = &id
	}

	policy, err := h.withdrawals.UpdatePolicy(r.Context(), model.Currency(pathVar(r, "currency")), upd, editor)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, policy)
}
