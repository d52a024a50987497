package payments

import (
	"context"

	"github.com/learnerfast/learnerfast/app/models"
	"github.com/learnerfast/learnerfast/internal/pkg/enrollment"
	"github.com/learnerfast/learnerfast/internal/pkg/gateway"
)

// PhonePeGateway is the PhonePe Standard Checkout surface used by the service.
type PhonePeGateway interface {
	Configured() bool
	Pay(ctx context.Context, req gateway.PayRequest) (*gateway.PayResponse, error)
	OrderStatus(ctx context.Context, merchantOrderID string) (*gateway.OrderStatusResponse, error)
	ValidateCallback(authorization string, body []byte) (*gateway.CallbackResponse, error)
}

// RazorpayGateway is the Razorpay Orders surface used by the service.
type RazorpayGateway interface {
	Configured() bool
	KeyID() string
	CreateOrder(ctx context.Context, req gateway.OrderRequest) (*gateway.Order, error)
	FetchOrder(ctx context.Context, orderID string) (*gateway.Order, error)
	FetchOrderPayments(ctx context.Context, orderID string) ([]gateway.OrderPayment, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

// Enroller grants access once a payment completes.
type Enroller interface {
	Enroll(ctx context.Context, in enrollment.Input) (*models.Enrollment, bool, error)
	GrantSubscription(ctx context.Context, in enrollment.SubscriptionInput) (*models.Subscription, bool, error)
}

// InitiateInput is the PhonePe initiation request.
type InitiateInput struct {
	CourseID     string  `json:"courseId" validate:"required_unless=PaymentType subscription"`
	UserID       string  `json:"userId" validate:"required"`
	Amount       float64 `json:"amount" validate:"required,gt=0"`
	CourseName   string  `json:"courseName" validate:"required"`
	PaymentType  string  `json:"paymentType" validate:"omitempty,oneof=course subscription"`
	PlanID       string  `json:"planId" validate:"required_if=PaymentType subscription"`
	PlanName     string  `json:"planName"`
	BillingCycle string  `json:"billingCycle" validate:"omitempty,oneof=monthly yearly lifetime"`
	SiteID       string  `json:"siteId"`
}

type InitiateResult struct {
	Success     bool   `json:"success"`
	CheckoutURL string `json:"checkoutUrl"`
	OrderID     string `json:"orderId"`
}

// CallbackResult summarises how a PhonePe callback delivery was handled.
type CallbackResult struct {
	OrderID   string
	State     string
	Duplicate bool
	Ignored   bool
	Granted   bool
}

type StatusResult struct {
	Success       bool    `json:"success"`
	OrderID       string  `json:"orderId"`
	State         string  `json:"state"`
	PaymentStatus string  `json:"paymentStatus"`
	Amount        float64 `json:"amount"`
	TransactionID string  `json:"transactionId,omitempty"`
}

// CreateOrderInput is the Razorpay order creation request.
type CreateOrderInput struct {
	CourseID   string  `json:"courseId" validate:"required"`
	UserID     string  `json:"userId" validate:"required"`
	Amount     float64 `json:"amount" validate:"required,gt=0"`
	CourseName string  `json:"courseName" validate:"required"`
	Currency   string  `json:"currency" validate:"omitempty,len=3"`
	SiteID     string  `json:"siteId"`
}

type CreateOrderResult struct {
	Success  bool   `json:"success"`
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

// VerifyInput carries the Razorpay checkout handler response.
type VerifyInput struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

type VerifyResult struct {
	Success          bool   `json:"success"`
	OrderID          string `json:"orderId"`
	PaymentID        string `json:"paymentId"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
}

// ReconcileReport counts what a reconciliation sweep did.
type ReconcileReport struct {
	Checked   int
	Completed int
	Failed    int
	Expired   int
	Errors    int
}
