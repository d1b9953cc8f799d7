package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stream-wallet/internal/config"
	"stream-wallet/internal/gateway"
	"stream-wallet/internal/model"
	"stream-wallet/internal/pkg/dbtest"
	"stream-wallet/internal/repository"
	"stream-wallet/internal/service"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: account 1", service.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bad id", service.ErrInvalidInput), http.StatusBadRequest},
		{errNoCaller, http.StatusBadRequest},
		{service.ErrInvalidTransition, http.StatusConflict},
		{service.ErrAlreadySettled, http.StatusConflict},
		{service.ErrAlreadyExists, http.StatusConflict},
		{service.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{service.ErrInvalidSelf, http.StatusUnprocessableEntity},
		{service.ErrInvalidParticipant, http.StatusUnprocessableEntity},
		{service.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{service.ErrBelowMinimum, http.StatusUnprocessableEntity},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	rec := httptest.NewRecorder()
	respondWithServiceError(rec, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestCallerID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/gifts/send", nil)
	_, err := callerID(req)
	assert.ErrorIs(t, err, errNoCaller)

	req.Header.Set(callerHeader, "-4")
	_, err = callerID(req)
	assert.ErrorIs(t, err, errNoCaller)

	req.Header.Set(callerHeader, "42")
	id, err := callerID(req)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestWebhookAuthorization(t *testing.T) {
	assert.Len(t, webhookDigest("merchant", "secret"), 64)
	assert.NotEqual(t, webhookDigest("merchant", "secret"), webhookDigest("merchant", "other"))

	open := NewHandler(Services{}, "", "")
	assert.True(t, open.webhookAuthorized(httptest.NewRequest(http.MethodPost, "/webhooks/payment", nil)))

	h := NewHandler(Services{}, "merchant", "secret")
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", nil)
	assert.False(t, h.webhookAuthorized(req))

	req.Header.Set("Authorization", webhookDigest("merchant", "wrong"))
	assert.False(t, h.webhookAuthorized(req))

	req.Header.Set("Authorization", webhookDigest("merchant", "secret"))
	assert.True(t, h.webhookAuthorized(req))
}

func TestWebhookRejectedWithoutAuthorization(t *testing.T) {
	router := NewRouter(NewHandler(Services{}, "merchant", "secret"))

	body := `{"merchantOrderId":"abc","status":"COMPLETED"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	router := NewRouter(NewHandler(Services{DB: pingerFunc(func(context.Context) error { return nil })}, "", ""))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	router = NewRouter(NewHandler(Services{DB: pingerFunc(func(context.Context) error { return errors.New("down") })}, "", ""))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpointAndUnknownRoute(t *testing.T) {
	router := NewRouter(NewHandler(Services{}, "", ""))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `endpoint="/healthz"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyticsWindowUsesReportingZone(t *testing.T) {
	kolkata := time.FixedZone("IST", 5*3600+1800)
	// 20:00 UTC on 1 March is already 2 March in Kolkata.
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	from, to, err := analyticsWindow(now, kolkata, "", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, kolkata), to)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, kolkata), from)
	assert.Equal(t, "2026-03-02T18:30:00Z", to.UTC().Format(time.RFC3339))

	from, to, err = analyticsWindow(now, time.UTC, "", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), to)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), from)

	from, to, err = analyticsWindow(now, kolkata, "2026-01-10", "2026-01-12")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, kolkata), from)
	assert.Equal(t, time.Date(2026, 1, 13, 0, 0, 0, 0, kolkata), to)

	_, _, err = analyticsWindow(now, kolkata, "10/01/2026", "")
	assert.ErrorIs(t, err, service.ErrInvalidInput)
	_, _, err = analyticsWindow(now, kolkata, "", "tomorrow")
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// stubGateway accepts every checkout and reports every order as pending.
type stubGateway struct{}

func (stubGateway) CreateCheckout(_ context.Context, req gateway.CheckoutRequest) (*gateway.CheckoutResponse, error) {
	return &gateway.CheckoutResponse{RedirectURL: "https://pay.example/" + req.OrderID, State: "PENDING"}, nil
}

func (stubGateway) GetOrderStatus(_ context.Context, _ string) (*gateway.OrderStatus, error) {
	return &gateway.OrderStatus{Status: model.PaymentPending, RawState: "PENDING"}, nil
}

type apiClient struct {
	t      *testing.T
	router http.Handler
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	pool := dbtest.New(t)

	accounts := repository.NewAccountRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	wallets := repository.NewWalletRepository(pool)
	giftRepo := repository.NewGiftRepository(pool)
	ledger := service.NewLedgerService(pool, accounts, ledgerRepo, wallets)

	h := NewHandler(Services{
		Ledger: ledger,
		Gifts:  service.NewGiftService(pool, accounts, giftRepo, ledger),
		Payments: service.NewPaymentService(pool, repository.NewPaymentRepository(pool), accounts, giftRepo, wallets, ledger, stubGateway{}, service.PaymentOptions{
			RedirectURL: "https://app.example/done",
		}),
		Withdrawals: service.NewWithdrawalService(pool, repository.NewWithdrawalRepository(pool), accounts, ledger, config.WithdrawalConfig{
			Diamond: config.WithdrawalPolicy{Minimum: 10, ConversionRate: "0.5"},
			Star:    config.WithdrawalPolicy{Minimum: 1, ConversionRate: "0.25"},
		}),
		PK:      service.NewPKBattleService(pool, repository.NewPKBattleRepository(pool), accounts),
		Reports: service.NewReportService(ledgerRepo, time.UTC),
		DB:      pool,
	}, "merchant", "secret")

	return &apiClient{t: t, router: NewRouter(h)}
}

func (c *apiClient) do(method, path string, caller int64, body any, out any) int {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if caller > 0 {
		req.Header.Set(callerHeader, strconv.FormatInt(caller, 10))
	}
	if path == "/webhooks/payment" {
		req.Header.Set("Authorization", webhookDigest("merchant", "secret"))
	}

	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(c.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (c *apiClient) account(diamonds int64) int64 {
	c.t.Helper()
	var acct model.Account
	require.Equal(c.t, http.StatusCreated, c.do(http.MethodPost, "/accounts", 0, nil, &acct))
	if diamonds > 0 {
		path := fmt.Sprintf("/accounts/%d/credit", acct.ID)
		require.Equal(c.t, http.StatusCreated, c.do(http.MethodPost, path, 0, map[string]any{"amount": diamonds}, nil))
	}
	return acct.ID
}

func (c *apiClient) balances(id int64) model.Account {
	c.t.Helper()
	var acct model.Account
	require.Equal(c.t, http.StatusOK, c.do(http.MethodGet, fmt.Sprintf("/accounts/%d", id), 0, nil, &acct))
	return acct
}

func TestGiftFlowOverHTTP(t *testing.T) {
	api := newAPI(t)
	sender := api.account(100)
	receiver := api.account(0)

	var gift model.Gift
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/gifts", 0,
		map[string]any{"name": "Rose", "gif_filename": "rose.gif", "diamond_cost": 40}, &gift))

	var receipt service.GiftReceipt
	code := api.do(http.MethodPost, "/gifts/send", sender, map[string]any{
		"receiver_id": receiver, "gift_id": gift.ID, "live_stream_type": "video",
	}, &receipt)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, int64(60), receipt.SenderDiamonds)
	assert.Equal(t, int64(120), receipt.ReceiverStars)

	assert.Equal(t, int64(60), api.balances(sender).Diamonds)
	assert.Equal(t, int64(120), api.balances(receiver).Stars)

	// Two more roses would overdraw: the second is declined softly.
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/gifts/send", sender,
		map[string]any{"receiver_id": receiver, "gift_id": gift.ID}, nil))
	var declined struct {
		Status  string                     `json:"status"`
		Details model.InsufficientDiamonds `json:"details"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/gifts/send", sender,
		map[string]any{"receiver_id": receiver, "gift_id": gift.ID}, &declined))
	assert.Equal(t, "insufficient_diamonds", declined.Status)
	assert.Equal(t, int64(20), declined.Details.Shortfall)

	assert.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/gifts/send", sender,
		map[string]any{"receiver_id": sender, "gift_id": gift.ID}, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPost, "/gifts/send", 0,
		map[string]any{"receiver_id": receiver, "gift_id": gift.ID}, nil))

	var consistency struct {
		Consistent bool `json:"consistent"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("/accounts/%d/consistency", sender), 0, nil, &consistency))
	assert.True(t, consistency.Consistent)
}

func TestPaymentWebhookCreditsOnce(t *testing.T) {
	api := newAPI(t)
	buyer := api.account(0)

	var checkout service.Checkout
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/payments", buyer, map[string]any{"diamonds": 50}, &checkout))
	require.NotEmpty(t, checkout.OrderID)
	assert.Equal(t, int64(5000), checkout.AmountMinor)

	hook := map[string]any{"merchantOrderId": checkout.OrderID, "transactionId": "T1", "status": "COMPLETED"}
	var first, second struct {
		Duplicate bool  `json:"duplicate"`
		Credited  int64 `json:"credited"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/webhooks/payment", 0, hook, &first))
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/webhooks/payment", 0, hook, &second))

	assert.Equal(t, int64(50), first.Credited)
	assert.True(t, second.Duplicate)
	assert.Equal(t, int64(50), api.balances(buyer).Diamonds)

	var entries []model.LedgerEntry
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/payments/"+checkout.OrderID+"/entries", 0, nil, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, model.KindBought, entries[0].Kind)
	assert.Equal(t, int64(50), entries[0].Amount)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/payments/missing/entries", 0, nil, nil))

	// A charge that would not fit in int64 is refused before the gateway.
	assert.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/payments", buyer,
		map[string]any{"diamonds": int64(184467440737095517)}, nil))

	var payment model.Payment
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/payments/"+checkout.OrderID, 0, nil, &payment))
	assert.Equal(t, model.PaymentSuccess, payment.Status)

	// A late failure report cannot undo a success.
	assert.Equal(t, http.StatusConflict, api.do(http.MethodPost, "/payments/"+checkout.OrderID+"/status", buyer,
		map[string]any{"status": "FAILED"}, nil))
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, "/payments/missing", 0, nil, nil))
}

func TestWithdrawalOverHTTP(t *testing.T) {
	api := newAPI(t)
	host := api.account(40)

	assert.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, "/withdrawals", host,
		map[string]any{"currency": "diamond", "amount": 5}, nil))

	var wd model.Withdrawal
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/withdrawals", host,
		map[string]any{"currency": "diamond", "amount": 30}, &wd))
	assert.Equal(t, model.WithdrawalPending, wd.Status)

	path := fmt.Sprintf("/withdrawals/%d", wd.ID)
	var result service.WithdrawalResult
	require.Equal(t, http.StatusOK, api.do(http.MethodPatch, path, 0, map[string]any{"status": "Approved"}, &result))
	assert.Equal(t, int64(30), result.Debited)
	assert.Equal(t, int64(10), api.balances(host).Diamonds)

	// Re-approving does not debit again.
	require.Equal(t, http.StatusOK, api.do(http.MethodPatch, path, 0, map[string]any{"status": "Completed"}, &result))
	assert.Zero(t, result.Debited)
	assert.Equal(t, int64(10), api.balances(host).Diamonds)

	assert.Equal(t, http.StatusConflict, api.do(http.MethodPatch, path, 0, map[string]any{"status": "Pending"}, nil))
	assert.Equal(t, http.StatusConflict, api.do(http.MethodDelete, path, 0, nil, nil))

	var quote struct {
		Payout string `json:"payout"`
	}
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/withdrawals/quote?currency=star&amount=8", 0, nil, &quote))
	assert.Equal(t, "2", quote.Payout)

	var policy model.WithdrawalPolicy
	require.Equal(t, http.StatusOK, api.do(http.MethodPut, "/withdrawals/policies/star", 7,
		map[string]any{"conversion_rate": "0.5"}, &policy))
	assert.Equal(t, int64(1), policy.Minimum)
	require.NotNil(t, policy.UpdatedBy)
	assert.Equal(t, int64(7), *policy.UpdatedBy)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/withdrawals/quote?currency=star&amount=8", 0, nil, &quote))
	assert.Equal(t, "4", quote.Payout)

	var policies []model.WithdrawalPolicy
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/withdrawals/policies", 0, nil, &policies))
	assert.Len(t, policies, 2)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPut, "/withdrawals/policies/gold", 0,
		map[string]any{"minimum": 5}, nil))
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodPut, "/withdrawals/policies/star", 0,
		map[string]any{"conversion_rate": "-2"}, nil))
}

func TestListAccountsOverHTTP(t *testing.T) {
	api := newAPI(t)
	first := api.account(0)
	second := api.account(0)
	third := api.account(0)

	var page []model.Account
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/accounts?limit=2", 0, nil, &page))
	require.Len(t, page, 2)
	assert.Equal(t, first, page[0].ID)
	assert.Equal(t, second, page[1].ID)

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/accounts?limit=2&offset=2", 0, nil, &page))
	require.Len(t, page, 1)
	assert.Equal(t, third, page[0].ID)

	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/accounts?offset=x", 0, nil, nil))
}

func TestPKBattleOverHTTP(t *testing.T) {
	api := newAPI(t)
	left := api.account(0)
	right := api.account(0)
	fan := api.account(0)

	var battle model.PKBattle
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, "/pk-battles", 0,
		map[string]any{"left_host_id": left, "right_host_id": right}, &battle))

	giftPath := fmt.Sprintf("/pk-battles/%d/gifts", battle.ID)
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, giftPath, fan, map[string]any{"receiver_id": right, "amount": 70}, nil))
	require.Equal(t, http.StatusCreated, api.do(http.MethodPost, giftPath, fan, map[string]any{"receiver_id": left, "amount": 20}, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, api.do(http.MethodPost, giftPath, fan, map[string]any{"receiver_id": fan, "amount": 5}, nil))

	require.Equal(t, http.StatusOK, api.do(http.MethodGet, fmt.Sprintf("/pk-battles/%d", battle.ID), 0, nil, &battle))
	assert.Equal(t, int64(20), battle.LeftScore)
	assert.Equal(t, int64(70), battle.RightScore)

	var ended model.PKBattle
	require.Equal(t, http.StatusOK, api.do(http.MethodPost, fmt.Sprintf("/pk-battles/%d/end", battle.ID), 0,
		map[string]any{"left_score": 20, "right_score": 70, "winner_id": right}, &ended))
	assert.Equal(t, model.PKEnded, ended.Status)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPost, giftPath, fan, map[string]any{"receiver_id": left, "amount": 5}, nil))
}
