package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"

	"github.com/learnerfast/learnerfast/internal/pkg/env"
)

// Razorpay order/payment statuses used by reconciliation.
const (
	RazorpayOrderPaid       = "paid"
	RazorpayPaymentCaptured = "captured"
)

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
}

func RazorpayConfigFromEnv() RazorpayConfig {
	return RazorpayConfig{
		KeyID:     strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_ID", "")),
		KeySecret: strings.TrimSpace(env.GetEnv("RAZORPAY_KEY_SECRET", "")),
	}
}

// orderAPI is the subset of the SDK's order resource the adapter uses.
type orderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Payments(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type RazorpayClient struct {
	cfg    RazorpayConfig
	orders orderAPI
}

type OrderRequest struct {
	AmountPaise int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

type Order struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
	Receipt  string
}

type OrderPayment struct {
	ID     string
	Status string
	Method string
	Amount int64
}

func NewRazorpayClient(cfg RazorpayConfig) *RazorpayClient {
	c := &RazorpayClient{cfg: cfg}
	if cfg.KeyID != "" && cfg.KeySecret != "" {
		c.orders = razorpay.NewClient(cfg.KeyID, cfg.KeySecret).Order
	}
	return c
}

// Configured reports whether key id and secret are present.
func (c *RazorpayClient) Configured() bool {
	return c.cfg.KeyID != "" && c.cfg.KeySecret != "" && c.orders != nil
}

// KeyID is public and handed to the browser checkout.
func (c *RazorpayClient) KeyID() string {
	return c.cfg.KeyID
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	if !c.Configured() {
		return nil, NewError(ErrorTypeConfiguration, "RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET are not configured", ErrNotConfigured)
	}
	if req.AmountPaise <= 0 {
		return nil, NewError(ErrorTypeRequestBuild, "amount must be positive", nil)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "INR"
	}

	data := map[string]interface{}{
		"amount":   req.AmountPaise,
		"currency": currency,
		"receipt":  truncate(req.Receipt, 40),
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	body, err := callSDK(ctx, func() (map[string]interface{}, error) {
		return c.orders.Create(data, nil)
	})
	if err != nil {
		return nil, NewError(ErrorTypeGatewayAPI, "razorpay order creation failed", err)
	}
	order := orderFromMap(body)
	if order.ID == "" {
		return nil, NewError(ErrorTypeGatewayAPI, "razorpay order response missing id", nil)
	}
	return order, nil
}

func (c *RazorpayClient) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	if !c.Configured() {
		return nil, NewError(ErrorTypeConfiguration, "razorpay is not configured", ErrNotConfigured)
	}
	body, err := callSDK(ctx, func() (map[string]interface{}, error) {
		return c.orders.Fetch(orderID, nil, nil)
	})
	if err != nil {
		return nil, NewError(ErrorTypeGatewayAPI, "razorpay order fetch failed", err)
	}
	return orderFromMap(body), nil
}

func (c *RazorpayClient) FetchOrderPayments(ctx context.Context, orderID string) ([]OrderPayment, error) {
	if !c.Configured() {
		return nil, NewError(ErrorTypeConfiguration, "razorpay is not configured", ErrNotConfigured)
	}
	body, err := callSDK(ctx, func() (map[string]interface{}, error) {
		return c.orders.Payments(orderID, nil, nil)
	})
	if err != nil {
		return nil, NewError(ErrorTypeGatewayAPI, "razorpay order payments fetch failed", err)
	}

	items, _ := body["items"].([]interface{})
	out := make([]OrderPayment, 0, len(items))
	for _, raw := range items {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, OrderPayment{
			ID:     stringField(m, "id"),
			Status: stringField(m, "status"),
			Method: stringField(m, "method"),
			Amount: intField(m, "amount"),
		})
	}
	return out, nil
}

// VerifySignature checks razorpay_signature = hex(HMAC-SHA256(order_id|payment_id, secret)).
func (c *RazorpayClient) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifyRazorpaySignature(orderID, paymentID, signature, c.cfg.KeySecret)
}

// RazorpaySignature computes the checkout signature for an order/payment pair.
func RazorpaySignature(orderID, paymentID, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifyRazorpaySignature(orderID, paymentID, signature, secret string) bool {
	sig := strings.ToLower(strings.TrimSpace(signature))
	if orderID == "" || paymentID == "" || sig == "" || secret == "" {
		return false
	}
	decoded, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hmac.Equal(mac.Sum(nil), decoded)
}

// callSDK runs a blocking SDK call and gives up when ctx is done. The SDK has
// no context support, so an abandoned call finishes in the background.
func callSDK(ctx context.Context, fn func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type result struct {
		body map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		body, err := fn()
		done <- result{body: body, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.body, r.err
	}
}

func orderFromMap(m map[string]interface{}) *Order {
	return &Order{
		ID:       stringField(m, "id"),
		Amount:   intField(m, "amount"),
		Currency: stringField(m, "currency"),
		Status:   stringField(m, "status"),
		Receipt:  stringField(m, "receipt"),
	}
}

func stringField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intField(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
