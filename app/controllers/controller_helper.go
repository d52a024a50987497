package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/learnerfast/learnerfast/app/models"
	"github.com/learnerfast/learnerfast/internal/pkg/catalog"
	"github.com/learnerfast/learnerfast/internal/pkg/domains"
	"github.com/learnerfast/learnerfast/internal/pkg/enrollment"
	"github.com/learnerfast/learnerfast/internal/pkg/gateway"
	"github.com/learnerfast/learnerfast/internal/pkg/logger"
	"github.com/learnerfast/learnerfast/internal/pkg/payments"
)

const requestTimeout = 15 * time.Second

// PaymentService is implemented by *payments.Service.
type PaymentService interface {
	Initiate(ctx context.Context, in payments.InitiateInput) (*payments.InitiateResult, error)
	HandlePhonePeCallback(ctx context.Context, authorization string, body []byte) (*payments.CallbackResult, error)
	Status(ctx context.Context, orderID string) (*payments.StatusResult, error)
	CreateRazorpayOrder(ctx context.Context, in payments.CreateOrderInput) (*payments.CreateOrderResult, error)
	VerifyRazorpay(ctx context.Context, in payments.VerifyInput) (*payments.VerifyResult, error)
}

// CatalogReader is implemented by *catalog.Reader.
type CatalogReader interface {
	CoursesJSON(ctx context.Context, websiteName string) ([]byte, error)
}

// DomainService is implemented by *domains.Service.
type DomainService interface {
	Add(ctx context.Context, userID, siteID, rawDomain string) (*models.CustomDomain, error)
	List(ctx context.Context, userID, siteID string) ([]models.CustomDomain, error)
	Delete(ctx context.Context, userID, domainID string) error
	Verify(ctx context.Context, userID, domainID string) (*domains.VerifyResult, error)
}

// EnrollmentService is implemented by *enrollment.Writer.
type EnrollmentService interface {
	Enroll(ctx context.Context, in enrollment.Input) (*models.Enrollment, bool, error)
	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
}

// CourseLookup loads a course with its pricing.
type CourseLookup interface {
	GetByID(ctx context.Context, id string) (*models.Course, error)
}

// Handlers holds the services used by the HTTP handlers.
type Handlers struct {
	Payments    PaymentService
	Catalog     CatalogReader
	Domains     DomainService
	Enrollments EnrollmentService
	Courses     CourseLookup
	Log         *logger.Logger
}

var (
	_ PaymentService    = (*payments.Service)(nil)
	_ CatalogReader     = (*catalog.Reader)(nil)
	_ DomainService     = (*domains.Service)(nil)
	_ EnrollmentService = (*enrollment.Writer)(nil)
)

func (h *Handlers) logger() *logger.Logger {
	if h.Log == nil {
		return logger.Nop()
	}
	return h.Log
}

func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), requestTimeout)
}

// paymentStatus maps an error tag to the HTTP status returned to clients.
func paymentStatus(errType string) int {
	switch errType {
	case gateway.ErrorTypeValidation, gateway.ErrorTypeSignature:
		return fiber.StatusBadRequest
	case gateway.ErrorTypeCallback:
		return fiber.StatusUnauthorized
	case gateway.ErrorTypeNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// paymentError writes {success:false, error, errorType, details}. Upstream
// error text only ever goes to details.
func (h *Handlers) paymentError(c *fiber.Ctx, err error) error {
	var ge *gateway.Error
	if !errors.As(err, &ge) {
		ge = gateway.NewError(gateway.ErrorTypeDatabase, "Internal server error", err)
	}
	status := paymentStatus(ge.Type)
	if status >= fiber.StatusInternalServerError {
		h.logger().Error("payment request failed", "path", c.Path(), "error_type", ge.Type, "error", err)
	}
	body := fiber.Map{
		"success":   false,
		"error":     ge.Message,
		"errorType": ge.Type,
	}
	if d := ge.Details(); d != "" {
		body["details"] = d
	}
	return c.Status(status).JSON(body)
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}
