package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/learnerfast/learnerfast/internal/pkg/env"
)

const (
	PhonePeEnvSandbox    = "SANDBOX"
	PhonePeEnvProduction = "PRODUCTION"
)

const (
	defaultPhonePeSandboxAuthURL = "https://api-preprod.phonepe.com/apis/pg-sandbox/v1/oauth/token"
	defaultPhonePeSandboxAPIURL  = "https://api-preprod.phonepe.com/apis/pg-sandbox"
	defaultPhonePeProdAuthURL    = "https://api.phonepe.com/apis/identity-manager/v1/oauth/token"
	defaultPhonePeProdAPIURL     = "https://api.phonepe.com/apis/pg"
)

// PhonePe order states.
const (
	PhonePeStatePending   = "PENDING"
	PhonePeStateCompleted = "COMPLETED"
	PhonePeStateFailed    = "FAILED"
)

// tokenRefreshSkew makes the cached token expire slightly before PhonePe does.
const tokenRefreshSkew = 60 * time.Second

// PhonePeConfig carries Standard Checkout v2 credentials.
type PhonePeConfig struct {
	ClientID         string
	ClientSecret     string
	ClientVersion    string
	Environment      string
	CallbackUsername string
	CallbackPassword string

	// Optional overrides, mainly for tests.
	AuthURL    string
	APIBaseURL string
}

// PhonePeConfigFromEnv reads PHONEPE_* variables.
func PhonePeConfigFromEnv() PhonePeConfig {
	return PhonePeConfig{
		ClientID:         strings.TrimSpace(env.GetEnv("PHONEPE_CLIENT_ID", "")),
		ClientSecret:     strings.TrimSpace(env.GetEnv("PHONEPE_CLIENT_SECRET", "")),
		ClientVersion:    strings.TrimSpace(env.GetEnv("PHONEPE_CLIENT_VERSION", "1")),
		Environment:      strings.ToUpper(strings.TrimSpace(env.GetEnv("PHONEPE_ENV", PhonePeEnvSandbox))),
		CallbackUsername: strings.TrimSpace(env.GetEnv("PHONEPE_CALLBACK_USERNAME", "")),
		CallbackPassword: strings.TrimSpace(env.GetEnv("PHONEPE_CALLBACK_PASSWORD", "")),
		AuthURL:          strings.TrimSpace(env.GetEnv("PHONEPE_AUTH_URL", "")),
		APIBaseURL:       strings.TrimSpace(env.GetEnv("PHONEPE_API_BASE_URL", "")),
	}
}

// Missing lists the required settings that are empty.
func (c PhonePeConfig) Missing() []string {
	var missing []string
	if c.ClientID == "" {
		missing = append(missing, "PHONEPE_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "PHONEPE_CLIENT_SECRET")
	}
	if c.ClientVersion == "" {
		missing = append(missing, "PHONEPE_CLIENT_VERSION")
	}
	return missing
}

type PhonePeClient struct {
	cfg        PhonePeConfig
	authURL    string
	apiBaseURL string
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenType   string
	tokenExpiry time.Time
}

// PayRequest is the input of a Standard Checkout payment.
type PayRequest struct {
	MerchantOrderID string
	AmountPaise     int64
	RedirectURL     string
	Message         string
	MetaInfo        map[string]string
	ExpireAfter     int64
}

type PayResponse struct {
	OrderID     string `json:"orderId"`
	State       string `json:"state"`
	ExpireAt    int64  `json:"expireAt"`
	RedirectURL string `json:"redirectUrl"`
}

type PaymentDetail struct {
	TransactionID string `json:"transactionId"`
	PaymentMode   string `json:"paymentMode"`
	State         string `json:"state"`
	Amount        int64  `json:"amount"`
	Timestamp     int64  `json:"timestamp"`
	ErrorCode     string `json:"errorCode,omitempty"`
}

type OrderStatusResponse struct {
	OrderID        string            `json:"orderId"`
	State          string            `json:"state"`
	Amount         int64             `json:"amount"`
	ExpireAt       int64             `json:"expireAt"`
	MetaInfo       map[string]string `json:"metaInfo,omitempty"`
	PaymentDetails []PaymentDetail   `json:"paymentDetails"`
}

// LatestTransactionID returns the transaction id of the most recent payment attempt.
func (r *OrderStatusResponse) LatestTransactionID() string {
	if r == nil || len(r.PaymentDetails) == 0 {
		return ""
	}
	return r.PaymentDetails[len(r.PaymentDetails)-1].TransactionID
}

type CallbackPayload struct {
	OrderID         string            `json:"orderId"`
	MerchantID      string            `json:"merchantId"`
	MerchantOrderID string            `json:"merchantOrderId"`
	State           string            `json:"state"`
	Amount          int64             `json:"amount"`
	ExpireAt        int64             `json:"expireAt"`
	MetaInfo        map[string]string `json:"metaInfo,omitempty"`
	PaymentDetails  []PaymentDetail   `json:"paymentDetails"`
}

// LatestTransactionID returns the transaction id of the most recent payment attempt.
func (p *CallbackPayload) LatestTransactionID() string {
	if p == nil || len(p.PaymentDetails) == 0 {
		return ""
	}
	return p.PaymentDetails[len(p.PaymentDetails)-1].TransactionID
}

type CallbackResponse struct {
	Event   string          `json:"event"`
	Type    string          `json:"type,omitempty"`
	Payload CallbackPayload `json:"payload"`
}

func NewPhonePeClient(cfg PhonePeConfig) *PhonePeClient {
	authURL, apiURL := defaultPhonePeSandboxAuthURL, defaultPhonePeSandboxAPIURL
	if strings.EqualFold(cfg.Environment, PhonePeEnvProduction) {
		authURL, apiURL = defaultPhonePeProdAuthURL, defaultPhonePeProdAPIURL
	}
	if cfg.AuthURL != "" {
		authURL = cfg.AuthURL
	}
	if cfg.APIBaseURL != "" {
		apiURL = cfg.APIBaseURL
	}

	return &PhonePeClient{
		cfg:        cfg,
		authURL:    authURL,
		apiBaseURL: strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

// Configured reports whether API credentials are present.
func (c *PhonePeClient) Configured() bool {
	return len(c.cfg.Missing()) == 0
}

// CallbackConfigured reports whether callback credentials are present.
func (c *PhonePeClient) CallbackConfigured() bool {
	return c.cfg.CallbackUsername != "" && c.cfg.CallbackPassword != ""
}

// Pay creates a checkout order and returns the hosted payment page URL.
func (c *PhonePeClient) Pay(ctx context.Context, req PayRequest) (*PayResponse, error) {
	if strings.TrimSpace(req.MerchantOrderID) == "" || req.AmountPaise <= 0 || strings.TrimSpace(req.RedirectURL) == "" {
		return nil, NewError(ErrorTypeRequestBuild, "merchant order id, amount and redirect url are required", nil)
	}
	if _, err := url.ParseRequestURI(req.RedirectURL); err != nil {
		return nil, NewError(ErrorTypeRequestBuild, "invalid redirect url", err)
	}

	body := map[string]interface{}{
		"merchantOrderId": req.MerchantOrderID,
		"amount":          req.AmountPaise,
		"paymentFlow": map[string]interface{}{
			"type":    "PG_CHECKOUT",
			"message": req.Message,
			"merchantUrls": map[string]string{
				"redirectUrl": req.RedirectURL,
			},
		},
	}
	if req.ExpireAfter > 0 {
		body["expireAfter"] = req.ExpireAfter
	}
	if len(req.MetaInfo) > 0 {
		body["metaInfo"] = req.MetaInfo
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, NewError(ErrorTypeRequestBuild, "failed to encode pay request", err)
	}

	var out PayResponse
	if err := c.doAuthorized(ctx, http.MethodPost, c.apiBaseURL+"/checkout/v2/pay", payload, &out); err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.RedirectURL) == "" {
		return nil, NewError(ErrorTypeGatewayAPI, "phonepe pay response missing redirectUrl", nil)
	}
	return &out, nil
}

// OrderStatus looks up an order by merchant order id.
func (c *PhonePeClient) OrderStatus(ctx context.Context, merchantOrderID string) (*OrderStatusResponse, error) {
	id := strings.TrimSpace(merchantOrderID)
	if id == "" {
		return nil, NewError(ErrorTypeValidation, "merchant order id is required", nil)
	}
	u := c.apiBaseURL + "/checkout/v2/order/" + url.PathEscape(id) + "/status?details=false"

	var out OrderStatusResponse
	if err := c.doAuthorized(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateCallback checks the Authorization header PhonePe sends with
// server-to-server callbacks (sha256 of "username:password") and parses the body.
func (c *PhonePeClient) ValidateCallback(authorization string, body []byte) (*CallbackResponse, error) {
	if !c.CallbackConfigured() {
		return nil, NewError(ErrorTypeConfiguration, "PHONEPE_CALLBACK_USERNAME/PHONEPE_CALLBACK_PASSWORD are not configured", nil)
	}
	if !VerifyPhonePeAuthorization(authorization, c.cfg.CallbackUsername, c.cfg.CallbackPassword) {
		return nil, NewError(ErrorTypeCallback, "invalid callback authorization", nil)
	}

	var out CallbackResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, NewError(ErrorTypeCallback, "invalid callback body", err)
	}
	if strings.TrimSpace(out.Payload.MerchantOrderID) == "" {
		return nil, NewError(ErrorTypeCallback, "callback missing merchantOrderId", nil)
	}
	return &out, nil
}

// PhonePeCallbackAuthorization computes the header value PhonePe sends.
func PhonePeCallbackAuthorization(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

// VerifyPhonePeAuthorization compares a callback Authorization header in constant time.
func VerifyPhonePeAuthorization(header, username, password string) bool {
	got := strings.TrimSpace(header)
	if len(got) > 7 && strings.EqualFold(got[:7], "SHA256 ") {
		got = strings.TrimSpace(got[7:])
	}
	if got == "" || username == "" || password == "" {
		return false
	}
	want := PhonePeCallbackAuthorization(username, password)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(got)), []byte(want)) == 1
}

func (c *PhonePeClient) accessToken(ctx context.Context) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, c.tokenType, nil
	}
	if missing := c.cfg.Missing(); len(missing) > 0 {
		return "", "", NewError(ErrorTypeConfiguration, strings.Join(missing, ", ")+" not configured", nil)
	}

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_version", c.cfg.ClientVersion)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", NewError(ErrorTypeClientInit, "failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", NewError(ErrorTypeClientInit, "phonepe token request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", NewError(ErrorTypeClientInit, "phonepe token request rejected",
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)))
	}

	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresAt   int64  `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", "", NewError(ErrorTypeClientInit, "invalid phonepe token response", err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return "", "", NewError(ErrorTypeClientInit, "phonepe token response missing access_token", nil)
	}
	if out.TokenType == "" {
		out.TokenType = "O-Bearer"
	}

	expiry := c.now().Add(10 * time.Minute)
	if out.ExpiresAt > 0 {
		expiry = time.Unix(out.ExpiresAt, 0).Add(-tokenRefreshSkew)
	}
	c.token, c.tokenType, c.tokenExpiry = out.AccessToken, out.TokenType, expiry
	return c.token, c.tokenType, nil
}

func (c *PhonePeClient) doAuthorized(ctx context.Context, method, endpoint string, payload []byte, out interface{}) error {
	token, tokenType, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return NewError(ErrorTypeRequestBuild, "failed to build phonepe request", err)
	}
	req.Header.Set("Authorization", tokenType+" "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NewError(ErrorTypeGatewayAPI, "phonepe request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return NewError(ErrorTypeGatewayAPI, "phonepe request rejected",
			fmt.Errorf("status=%d body=%s", resp.StatusCode, string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return NewError(ErrorTypeGatewayAPI, "invalid phonepe response", err)
	}
	return nil
}

func (c *PhonePeClient) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// IsTerminalState reports whether a PhonePe order state will not change anymore.
func IsTerminalState(state string) bool {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case PhonePeStateCompleted, PhonePeStateFailed:
		return true
	default:
		return false
	}
}

// ErrNotConfigured is returned when a gateway is used without credentials.
var ErrNotConfigured = errors.New("gateway not configured")
