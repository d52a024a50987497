package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EnrollmentSourcePayment = "payment"
	EnrollmentSourceFree    = "free"
	EnrollmentSourceManual  = "manual"
)

// Enrollment links a user to a course. (user_id, course_id) is unique.
type Enrollment struct {
	ID             string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID         string    `gorm:"type:varchar(64);not null;index:ux_enrollments_user_course,unique,priority:1" json:"user_id"`
	CourseID       string    `gorm:"type:varchar(64);not null;index:ux_enrollments_user_course,unique,priority:2;index" json:"course_id"`
	SiteID         string    `gorm:"type:varchar(64)" json:"site_id"`
	PaymentOrderID string    `gorm:"type:varchar(191)" json:"payment_order_id"`
	Source         string    `gorm:"type:varchar(20);not null;default:'payment'" json:"source"`
	EnrolledAt     time.Time `gorm:"not null" json:"enrolled_at"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *Enrollment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.EnrolledAt.IsZero() {
		e.EnrolledAt = time.Now().UTC()
	}
	return nil
}

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusExpired  = "expired"
	SubscriptionStatusCanceled = "canceled"
)

const (
	BillingCycleMonthly  = "monthly"
	BillingCycleYearly   = "yearly"
	BillingCycleLifetime = "lifetime"
)

// Subscription is a plan granted by a completed subscription payment.
type Subscription struct {
	ID             string     `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID         string     `gorm:"type:varchar(64);not null;index" json:"user_id"`
	PlanID         string     `gorm:"type:varchar(64);not null" json:"plan_id"`
	PlanName       string     `gorm:"type:varchar(150)" json:"plan_name"`
	BillingCycle   string     `gorm:"type:varchar(20);not null;default:'monthly'" json:"billing_cycle"`
	Status         string     `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	StartsAt       time.Time  `gorm:"not null" json:"starts_at"`
	EndsAt         *time.Time `json:"ends_at,omitempty"`
	PaymentOrderID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"payment_order_id"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// SubscriptionEnd returns the end of a plan period starting at start, or nil
// for lifetime plans.
func SubscriptionEnd(start time.Time, cycle string) *time.Time {
	var end time.Time
	switch cycle {
	case BillingCycleLifetime:
		return nil
	case BillingCycleYearly:
		end = start.AddDate(1, 0, 0)
	default:
		end = start.AddDate(0, 1, 0)
	}
	return &end
}

// NormalizeBillingCycle maps free-form input to a known billing cycle.
func NormalizeBillingCycle(cycle string) string {
	switch cycle {
	case BillingCycleYearly, "year", "annual", "annually":
		return BillingCycleYearly
	case BillingCycleLifetime:
		return BillingCycleLifetime
	default:
		return BillingCycleMonthly
	}
}
