package api

import (
	"fmt"
	"net/http"

	"stream-wallet/internal/model"
	"stream-wallet/internal/service"
)

type createAccountRequest struct {
	Username *string `json:"username"`
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondWithServiceError(w, err)
			return
		}
	}

	account, err := h.ledger.OpenAccount(r.Context(), req.Username)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/accounts/%d", account.ID))
	respondWithJSON(w, http.StatusCreated, account)
}

// ListAccountsHandler pages through accounts. Query: limit, offset.
func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	var skip int
	if offset != nil {
		skip = int(*offset)
	}

	accounts, err := h.ledger.ListAccounts(r.Context(), queryLimit(r), skip)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	if accounts == nil {
		accounts = []*model.Account{}
	}
	respondWithJSON(w, http.StatusOK, accounts)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	account, err := h.ledger.GetAccount(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}

func (h *Handler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	currency := model.Currency(r.URL.Query().Get("currency"))
	if currency == "" {
		currency = model.CurrencyDiamond
	}

	entries, err := h.ledger.History(r.Context(), id, currency, queryLimit(r))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entries)
}

func (h *Handler) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	summary, err := h.ledger.WalletSummary(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) RebuildWalletHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	summary, err := h.ledger.RebuildWalletSummary(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) ConsistencyHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	report, err := h.ledger.VerifyConsistency(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	consistent := true
	for _, c := range report {
		consistent = consistent && c.OK()
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"account_id": id,
		"consistent": consistent,
		"balances":   report,
	})
}

type creditRequest struct {
	Currency  model.Currency `json:"currency"`
	Amount    int64          `json:"amount"`
	Reference string         `json:"reference"`
}

// CreditHandler tops up a balance. Access is expected to be restricted to
// operators by the upstream proxy.
func (h *Handler) CreditHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var req creditRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithServiceError(w, err)
		return
	}
	if req.Reference == "" {
		req.Reference = "api"
	}

	var entry *model.LedgerEntry
	switch req.Currency {
	case model.CurrencyDiamond, "":
		entry, err = h.ledger.CreditDiamonds(r.Context(), id, req.Amount, req.Reference)
	case model.CurrencyStar:
		entry, err = h.ledger.CreditStars(r.Context(), id, req.Amount, req.Reference)
	default:
		err = fmt.Errorf("%w: unknown currency %q", service.ErrInvalidInput, req.Currency)
	}
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, entry)
}

func (h *Handler) AccountGiftsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	var txs []*model.GiftTransaction
	switch dir := r.URL.Query().Get("direction"); dir {
	case "", "received":
		txs, err = h.gifts.GiftsReceived(r.Context(), id, queryLimit(r))
	case "sent":
		txs, err = h.gifts.GiftsSent(r.Context(), id, queryLimit(r))
	default:
		err = fmt.Errorf("%w: direction must be sent or received", service.ErrInvalidInput)
	}
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, txs)
}

func (h *Handler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	currency := model.Currency(pathVar(r, "currency"))

	period := model.PeriodDaily
	if raw := r.URL.Query().Get("period"); raw != "" {
		p, err := model.ParsePeriod(raw)
		if err != nil {
			respondWithServiceError(w, fmt.Errorf("%w: %w", service.ErrInvalidInput, err))
			return
		}
		period = p
	}

	summaries, err := h.reports.Summaries(r.Context(), currency, period, queryLimit(r))
	if err != nil {
		respondWithServiceError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"currency": currency,
		"period":   period,
		"since":    h.reports.PeriodStart(period),
		"accounts": summaries,
	})
}
