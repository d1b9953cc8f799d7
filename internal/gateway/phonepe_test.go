package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stream-wallet/internal/config"
	"stream-wallet/internal/model"
)

type fakeGateway struct {
	tokenCalls atomic.Int32
	lastPay    payRequest
	state      string
	txnID      string
}

func (f *fakeGateway) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "merchant", r.PostForm.Get("client_id"))
		f.tokenCalls.Add(1)
		_ = json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: "tok-1",
			ExpiresAt:   time.Now().Add(time.Hour).Unix(),
			TokenType:   "O-Bearer",
		})
	})
	mux.HandleFunc("/checkout/v2/pay", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "O-Bearer tok-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastPay))
		_ = json.NewEncoder(w).Encode(payResponse{
			OrderID:     "OMO123",
			State:       "PENDING",
			RedirectURL: "https://pay.example/checkout/OMO123",
		})
	})
	mux.HandleFunc("/checkout/v2/order/order-1/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "O-Bearer tok-1", r.Header.Get("Authorization"))
		resp := orderStatusResponse{OrderID: "OMO123", State: f.state}
		if f.txnID != "" {
			resp.PaymentDetails = []paymentDetail{{TransactionID: f.txnID, State: f.state}}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newTestClient(url string) *Client {
	return NewClient(&config.PaymentConfig{
		BaseURL:       url,
		AuthURL:       url,
		ClientID:      "merchant",
		ClientSecret:  "secret",
		ClientVersion: "1",
	})
}

func TestCreateCheckout(t *testing.T) {
	fake := &fakeGateway{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := newTestClient(srv.URL)
	giftID := int64(4)

	resp, err := client.CreateCheckout(context.Background(), CheckoutRequest{
		OrderID:     "order-1",
		AmountMinor: 5000,
		RedirectURL: "https://app.example/done",
		AccountID:   42,
		GiftID:      &giftID,
		GiftName:    "Rose",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example/checkout/OMO123", resp.RedirectURL)
	assert.Equal(t, "OMO123", resp.GatewayTxnID)
	assert.Equal(t, "PENDING", resp.State)

	assert.Equal(t, "order-1", fake.lastPay.MerchantOrderID)
	assert.Equal(t, int64(5000), fake.lastPay.Amount)
	assert.Equal(t, "PG_CHECKOUT", fake.lastPay.PaymentFlow.Type)
	assert.Equal(t, "https://app.example/done", fake.lastPay.PaymentFlow.MerchantURLs.RedirectURL)
	assert.Equal(t, "user_id:42", fake.lastPay.MetaInfo.UDF1)
	assert.Equal(t, "gift_id:4", fake.lastPay.MetaInfo.UDF2)
	assert.Equal(t, "gift_name:Rose", fake.lastPay.MetaInfo.UDF3)
}

func TestTokenIsCached(t *testing.T) {
	fake := &fakeGateway{state: "PENDING"}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	client := newTestClient(srv.URL)
	for i := 0; i < 3; i++ {
		_, err := client.GetOrderStatus(context.Background(), "order-1")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fake.tokenCalls.Load())

	// Past expiry the token is fetched again.
	client.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err := client.GetOrderStatus(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.tokenCalls.Load())
}

func TestGetOrderStatus(t *testing.T) {
	tests := []struct {
		state   string
		txnID   string
		want    model.PaymentStatus
		wantErr bool
	}{
		{"PENDING", "", model.PaymentPending, false},
		{"COMPLETED", "T2401", model.PaymentSuccess, false},
		{"FAILED", "T2402", model.PaymentFailed, false},
		{"EXPIRED_SOMEHOW", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			fake := &fakeGateway{state: tt.state, txnID: tt.txnID}
			srv := httptest.NewServer(fake.handler(t))
			defer srv.Close()

			got, err := newTestClient(srv.URL).GetOrderStatus(context.Background(), "order-1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			if tt.txnID == "" {
				assert.Nil(t, got.GatewayTxnID)
			} else {
				require.NotNil(t, got.GatewayTxnID)
				assert.Equal(t, tt.txnID, *got.GatewayTxnID)
			}
		})
	}
}

func TestGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":"UNAUTHORIZED"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GetOrderStatus(context.Background(), "order-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	unconfigured := NewClient(&config.PaymentConfig{BaseURL: srv.URL})
	_, err = unconfigured.CreateCheckout(context.Background(), CheckoutRequest{OrderID: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
