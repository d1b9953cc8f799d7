// Package gateway is the HTTP client for the PhonePe Standard Checkout v2
// payment gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"stream-wallet/internal/config"
	"stream-wallet/internal/model"
)

// ErrNotConfigured is returned when no client credentials are set.
var ErrNotConfigured = errors.New("payment gateway credentials not configured")

// tokenSkew renews the access token slightly before it expires.
const tokenSkew = 30 * time.Second

// CheckoutRequest describes one order to open on the gateway.
type CheckoutRequest struct {
	OrderID     string
	AmountMinor int64
	RedirectURL string
	AccountID   int64
	GiftID      *int64
	GiftName    string
}

// CheckoutResponse is the gateway's answer to a pay request.
type CheckoutResponse struct {
	RedirectURL  string
	GatewayTxnID string
	State        string
}

// OrderStatus is the gateway's view of an order.
type OrderStatus struct {
	Status       model.PaymentStatus
	GatewayTxnID *string
	RawState     string
}

// Client talks to the PhonePe checkout API.
type Client struct {
	baseURL       string
	authURL       string
	clientID      string
	clientSecret  string
	clientVersion string
	httpClient    *http.Client
	now           func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewClient creates a gateway client from payment configuration.
func NewClient(cfg *config.PaymentConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		authURL:       strings.TrimSuffix(cfg.AuthURL, "/"),
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		clientVersion: cfg.ClientVersion,
		httpClient:    &http.Client{Timeout: timeout},
		now:           time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	TokenType   string `json:"token_type"`
}

// token returns a cached access token, fetching a new one when it is
// missing or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	if c.clientID == "" || c.clientSecret == "" {
		return "", ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Add(tokenSkew).Before(c.expiresAt) {
		return c.accessToken, nil
	}

	form := url.Values{
		"client_id":      {c.clientID},
		"client_version": {c.clientVersion},
		"client_secret":  {c.clientSecret},
		"grant_type":     {"client_credentials"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	data, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}

	var tok tokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		return "", fmt.Errorf("unmarshal token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("gateway returned empty access token")
	}

	c.accessToken = tok.AccessToken
	c.expiresAt = time.Unix(tok.ExpiresAt, 0)
	log.Debug().Time("expires_at", c.expiresAt).Msg("Gateway access token refreshed")

	return c.accessToken, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway error %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}

func (c *Client) doAuthorized(ctx context.Context, method, path string, body any) ([]byte, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "O-Bearer "+tok)

	return c.do(req)
}

type metaInfo struct {
	UDF1 string `json:"udf1,omitempty"`
	UDF2 string `json:"udf2,omitempty"`
	UDF3 string `json:"udf3,omitempty"`
}

type merchantURLs struct {
	RedirectURL string `json:"redirectUrl"`
}

type paymentFlow struct {
	Type         string       `json:"type"`
	MerchantURLs merchantURLs `json:"merchantUrls"`
}

type payRequest struct {
	MerchantOrderID string      `json:"merchantOrderId"`
	Amount          int64       `json:"amount"`
	MetaInfo        metaInfo    `json:"metaInfo"`
	PaymentFlow     paymentFlow `json:"paymentFlow"`
}

type payResponse struct {
	OrderID     string `json:"orderId"`
	State       string `json:"state"`
	RedirectURL string `json:"redirectUrl"`
}

// CreateCheckout opens an order and returns the page the payer must visit.
func (c *Client) CreateCheckout(ctx context.Context, r CheckoutRequest) (*CheckoutResponse, error) {
	meta := metaInfo{
		UDF1: fmt.Sprintf("user_id:%d", r.AccountID),
		UDF3: "gift_name:" + r.GiftName,
	}
	if r.GiftID != nil {
		meta.UDF2 = fmt.Sprintf("gift_id:%d", *r.GiftID)
	}

	body := payRequest{
		MerchantOrderID: r.OrderID,
		Amount:          r.AmountMinor,
		MetaInfo:        meta,
		PaymentFlow: paymentFlow{
			Type:         "PG_CHECKOUT",
			MerchantURLs: merchantURLs{RedirectURL: r.RedirectURL},
		},
	}

	data, err := c.doAuthorized(ctx, http.MethodPost, "/checkout/v2/pay", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout: %w", err)
	}

	var resp payResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal pay response: %w", err)
	}
	if resp.RedirectURL == "" {
		return nil, fmt.Errorf("gateway returned no redirect url for order %s (state %q)", r.OrderID, resp.State)
	}

	return &CheckoutResponse{
		RedirectURL:  resp.RedirectURL,
		GatewayTxnID: resp.OrderID,
		State:        resp.State,
	}, nil
}

type paymentDetail struct {
	TransactionID string `json:"transactionId"`
	State         string `json:"state"`
}

type orderStatusResponse struct {
	OrderID        string          `json:"orderId"`
	State          string          `json:"state"`
	PaymentDetails []paymentDetail `json:"paymentDetails"`
}

// GetOrderStatus queries the current state of an order. Unknown gateway
// states are returned as an error so the caller keeps polling.
func (c *Client) GetOrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	path := "/checkout/v2/order/" + url.PathEscape(orderID) + "/status"
	data, err := c.doAuthorized(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get order status: %w", err)
	}

	var resp orderStatusResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal order status: %w", err)
	}

	status, err := model.ParsePaymentStatus(resp.State)
	if err != nil {
		return nil, err
	}

	out := &OrderStatus{Status: status, RawState: resp.State}
	// The latest attempt is last.
	if n := len(resp.PaymentDetails); n > 0 && resp.PaymentDetails[n-1].TransactionID != "" {
		txn := resp.PaymentDetails[n-1].TransactionID
		out.GatewayTxnID = &txn
	}
	return out, nil
}
