package enrollment

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/learnerfast/learnerfast/app/models"
	"github.com/learnerfast/learnerfast/internal/pkg/logger"
)

// Input describes an enrollment to create.
type Input struct {
	UserID         string
	CourseID       string
	SiteID         string
	PaymentOrderID string
	Source         string
}

// SubscriptionInput describes a plan grant from a completed payment.
type SubscriptionInput struct {
	UserID         string
	PlanID         string
	PlanName       string
	BillingCycle   string
	PaymentOrderID string
}

// PersonResolver merges the identity records known for a user.
type PersonResolver interface {
	ResolvePerson(ctx context.Context, siteID, userID string) (models.Person, error)
}

// Writer is the only code path that creates enrollments and subscriptions.
type Writer struct {
	repo   Repository
	people PersonResolver
	log    *logger.Logger
	now    func() time.Time
}

func NewWriter(repo Repository, log *logger.Logger) *Writer {
	return &Writer{repo: repo, log: log, now: time.Now}
}

// WithPeople makes Enroll copy the student's contact details into the
// per-site user record.
func (w *Writer) WithPeople(people PersonResolver) *Writer {
	w.people = people
	return w
}

// NewWriterFromDB creates a writer from a GORM DB handle.
func NewWriterFromDB(db *gorm.DB, log *logger.Logger) *Writer {
	return NewWriter(NewRepository(db), log)
}

// Enroll inserts the enrollment unless (user, course) is already enrolled.
// created is false when an existing enrollment was returned.
func (w *Writer) Enroll(ctx context.Context, in Input) (*models.Enrollment, bool, error) {
	userID := strings.TrimSpace(in.UserID)
	courseID := strings.TrimSpace(in.CourseID)
	if userID == "" || courseID == "" {
		return nil, false, errors.New("user_id and course_id are required")
	}
	source := in.Source
	if source == "" {
		source = models.EnrollmentSourcePayment
	}

	e := &models.Enrollment{
		UserID:         userID,
		CourseID:       courseID,
		SiteID:         strings.TrimSpace(in.SiteID),
		PaymentOrderID: strings.TrimSpace(in.PaymentOrderID),
		Source:         source,
		EnrolledAt:     w.now().UTC(),
	}
	created, stored, err := w.repo.CreateEnrollmentIfNotExists(ctx, e)
	if err != nil {
		return nil, false, err
	}

	if created {
		w.log.Info("enrollment created", "user_id", userID, "course_id", courseID, "source", source, "order_id", e.PaymentOrderID)
	}
	if e.SiteID != "" {
		if err := w.repo.UpsertSiteUser(ctx, w.siteUser(ctx, e.SiteID, userID)); err != nil {
			w.log.Warn("failed to record site user", "site_id", e.SiteID, "user_id", userID, "error", err)
		}
	}
	return stored, created, nil
}

func (w *Writer) siteUser(ctx context.Context, siteID, userID string) *models.SiteUser {
	su := &models.SiteUser{SiteID: siteID, UserID: userID}
	if w.people == nil {
		return su
	}
	person, err := w.people.ResolvePerson(ctx, siteID, userID)
	if err != nil {
		w.log.Warn("failed to resolve student details", "site_id", siteID, "user_id", userID, "error", err)
		return su
	}
	su.Email, su.Name, su.Phone = person.Email, person.Name, person.Phone
	return su
}

// IsEnrolled reports whether the user has an enrollment for the course.
func (w *Writer) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(courseID) == "" {
		return false, nil
	}
	_, err := w.repo.FindEnrollment(ctx, userID, courseID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// GrantSubscription inserts a subscription keyed by payment order id.
func (w *Writer) GrantSubscription(ctx context.Context, in SubscriptionInput) (*models.Subscription, bool, error) {
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.PaymentOrderID) == "" {
		return nil, false, errors.New("user_id and payment_order_id are required")
	}
	planID := strings.TrimSpace(in.PlanID)
	if planID == "" {
		return nil, false, errors.New("plan_id is required for subscription payments")
	}

	cycle := models.NormalizeBillingCycle(strings.ToLower(strings.TrimSpace(in.BillingCycle)))
	start := w.now().UTC()
	sub := &models.Subscription{
		UserID:         strings.TrimSpace(in.UserID),
		PlanID:         planID,
		PlanName:       strings.TrimSpace(in.PlanName),
		BillingCycle:   cycle,
		Status:         models.SubscriptionStatusActive,
		StartsAt:       start,
		EndsAt:         models.SubscriptionEnd(start, cycle),
		PaymentOrderID: strings.TrimSpace(in.PaymentOrderID),
	}
	created, stored, err := w.repo.CreateSubscriptionIfNotExists(ctx, sub)
	if err != nil {
		return nil, false, err
	}
	if created {
		w.log.Info("subscription granted", "user_id", sub.UserID, "plan_id", planID, "order_id", sub.PaymentOrderID)
	}
	return stored, created, nil
}
