package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

const (
	PaymentTypeCourse       = "course"
	PaymentTypeSubscription = "subscription"
)

const (
	PaymentProviderPhonePe  = "phonepe"
	PaymentProviderRazorpay = "razorpay"
)

// Payment is one purchase attempt. It is created PENDING at initiation and
// only moved forward by gateway confirmations; rows are never deleted.
type Payment struct {
	ID               string         `gorm:"type:varchar(64);primaryKey" json:"id"`
	OrderID          string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"order_id"`
	UserID           string         `gorm:"type:varchar(64);not null;index" json:"user_id"`
	CourseID         string         `gorm:"type:varchar(64);index" json:"course_id"`
	SiteID           string         `gorm:"type:varchar(64)" json:"site_id"`
	PlanID           string         `gorm:"type:varchar(64)" json:"plan_id"`
	Amount           float64        `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency         string         `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`
	Status           string         `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_payments_provider_status,priority:2" json:"status"`
	Provider         string         `gorm:"type:varchar(20);not null;index:idx_payments_provider_status,priority:1" json:"provider"`
	ProviderOrderID  string         `gorm:"type:varchar(191)" json:"provider_order_id"`
	TransactionID    string         `gorm:"type:varchar(191)" json:"transaction_id"`
	PaymentType      string         `gorm:"type:varchar(20);not null;default:'course'" json:"payment_type"`
	Metadata         datatypes.JSON `json:"metadata"`
	ErrorMessage     string         `gorm:"type:text" json:"error_message"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	LastReconciledAt *time.Time     `gorm:"index" json:"last_reconciled_at,omitempty"`
	CreatedAt        time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = PaymentStatusPending
	}
	if p.PaymentType == "" {
		p.PaymentType = PaymentTypeCourse
	}
	if p.Currency == "" {
		p.Currency = "INR"
	}
	return nil
}

// IsSubscription reports whether completing this payment grants a plan
// instead of a course enrollment.
func (p *Payment) IsSubscription() bool {
	return p.PaymentType == PaymentTypeSubscription
}

// PaymentMetadata is the JSON stored in payments.metadata.
type PaymentMetadata struct {
	CourseName   string `json:"course_name,omitempty"`
	PlanName     string `json:"plan_name,omitempty"`
	BillingCycle string `json:"billing_cycle,omitempty"`
}

// PaymentEvent stores gateway deliveries (callbacks, verify calls) with
// deduplication metadata for idempotent processing.
type PaymentEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_payment_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID string     `gorm:"type:varchar(191);not null;default:'';index:ux_payment_events_provider_event,unique,priority:2" json:"provider_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	OrderID         string     `gorm:"type:varchar(191);index" json:"order_id"`
	PayloadJSON     string     `gorm:"type:text;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false" json:"signature_valid"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
