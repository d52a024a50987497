package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/learnerfast/learnerfast/app/models"
	"github.com/learnerfast/learnerfast/internal/pkg/enrollment"
	"github.com/learnerfast/learnerfast/internal/pkg/gateway"
	"github.com/learnerfast/learnerfast/internal/pkg/logger"
)

const (
	eventTypePhonePeCallback = "phonepe.callback"
	eventTypeRazorpayVerify  = "razorpay.verify"
)

// Config holds service-level settings.
type Config struct {
	// AppURL is the public base URL the gateway redirects back to.
	AppURL string
	// Currency used for PhonePe payments and Razorpay orders without one.
	Currency string
	// PendingExpiry is how long a payment may stay PENDING before the
	// reconciliation sweep gives up on it and marks it FAILED.
	PendingExpiry time.Duration
}

const defaultPendingExpiry = 24 * time.Hour

// Service runs payment initiation, confirmation and reconciliation for both gateways.
type Service struct {
	repo     Repository
	enroller Enroller
	phonepe  PhonePeGateway
	razorpay RazorpayGateway
	cfg      Config
	log      *logger.Logger
	validate *validator.Validate
	now      func() time.Time
	newOrder func(now time.Time, userID string) string
}

// NewService wires the payment service from its collaborators.
func NewService(repo Repository, enroller Enroller, phonepe PhonePeGateway, rzp RazorpayGateway, cfg Config, log *logger.Logger) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	if cfg.PendingExpiry <= 0 {
		cfg.PendingExpiry = defaultPendingExpiry
	}
	cfg.AppURL = strings.TrimRight(strings.TrimSpace(cfg.AppURL), "/")
	return &Service{
		repo:     repo,
		enroller: enroller,
		phonepe:  phonepe,
		razorpay: rzp,
		cfg:      cfg,
		log:      log,
		validate: newValidator(),
		now:      time.Now,
		newOrder: NewOrderID,
	}
}

// NewServiceFromDB creates a payment service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, phonepe PhonePeGateway, rzp RazorpayGateway, cfg Config, log *logger.Logger) *Service {
	return NewService(NewRepository(db), enrollment.NewWriterFromDB(db, log), phonepe, rzp, cfg, log)
}

// Initiate writes a PENDING payment and returns the PhonePe checkout URL.
func (s *Service) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	in.PaymentType = strings.ToLower(strings.TrimSpace(in.PaymentType))
	in.BillingCycle = strings.ToLower(strings.TrimSpace(in.BillingCycle))
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	if in.PaymentType == "" {
		in.PaymentType = models.PaymentTypeCourse
	}

	var missing []string
	if s.phonepe == nil || !s.phonepe.Configured() {
		missing = append(missing, "PHONEPE_CLIENT_ID/PHONEPE_CLIENT_SECRET")
	}
	if s.cfg.AppURL == "" {
		missing = append(missing, "APP_URL")
	}
	if len(missing) > 0 {
		return nil, gateway.NewError(gateway.ErrorTypeConfiguration, "Payment gateway is not configured: "+strings.Join(missing, ", "), nil)
	}

	orderID := s.newOrder(s.now(), in.UserID)
	meta, err := json.Marshal(models.PaymentMetadata{
		CourseName:   in.CourseName,
		PlanName:     in.PlanName,
		BillingCycle: in.BillingCycle,
	})
	if err != nil {
		return nil, gateway.NewError(gateway.ErrorTypeMetadata, "Failed to build payment metadata", err)
	}

	payment := &models.Payment{
		OrderID:     orderID,
		UserID:      in.UserID,
		CourseID:    in.CourseID,
		SiteID:      in.SiteID,
		PlanID:      in.PlanID,
		Amount:      in.Amount,
		Currency:    s.cfg.Currency,
		Status:      models.PaymentStatusPending,
		Provider:    models.PaymentProviderPhonePe,
		PaymentType: in.PaymentType,
		Metadata:    datatypes.JSON(meta),
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, gateway.NewError(gateway.ErrorTypeDatabase, "Failed to record payment", err)
	}

	req := gateway.PayRequest{
		MerchantOrderID: orderID,
		AmountPaise:     ToPaise(in.Amount),
		RedirectURL:     s.cfg.AppURL + "/payment/success?orderId=" + orderID,
		Message:         truncate("Payment for "+in.CourseName, 100),
		MetaInfo: map[string]string{
			"udf1": in.UserID,
			"udf2": in.CourseID,
			"udf3": in.PaymentType,
			"udf4": in.PlanID,
			"udf5": in.SiteID,
		},
	}
	resp, err := s.phonepe.Pay(ctx, req)
	if err != nil {
		s.failPayment(ctx, orderID, err)
		if gateway.TypeOf(err) == "" {
			err = gateway.NewError(gateway.ErrorTypeGatewayAPI, "Payment gateway request failed", err)
		}
		return nil, err
	}

	s.log.Info("payment initiated", "provider", models.PaymentProviderPhonePe, "order_id", orderID, "user_id", in.UserID, "course_id", in.CourseID, "amount", in.Amount)
	return &InitiateResult{Success: true, CheckoutURL: resp.RedirectURL, OrderID: orderID}, nil
}

// HandlePhonePeCallback validates and applies a server-to-server callback.
func (s *Service) HandlePhonePeCallback(ctx context.Context, authorization string, body []byte) (*CallbackResult, error) {
	if s.phonepe == nil {
		return nil, gateway.NewError(gateway.ErrorTypeConfiguration, "PhonePe is not configured", nil)
	}
	cb, err := s.phonepe.ValidateCallback(authorization, body)
	if err != nil {
		return nil, err
	}

	p := cb.Payload
	state := strings.ToUpper(strings.TrimSpace(p.State))
	result := &CallbackResult{OrderID: p.MerchantOrderID, State: state}

	created, stored, err := s.repo.CreateEventIfNotExists(ctx, &models.PaymentEvent{
		Provider:        models.PaymentProviderPhonePe,
		ProviderEventID: p.MerchantOrderID + ":" + state,
		EventType:       firstNonEmpty(cb.Event, cb.Type, eventTypePhonePeCallback),
		OrderID:         p.MerchantOrderID,
		PayloadJSON:     string(body),
		SignatureValid:  true,
	})
	if err != nil {
		return nil, gateway.NewError(gateway.ErrorTypeDatabase, "Failed to record callback", err)
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		result.Duplicate = true
		return result, nil
	}

	payment, err := s.repo.GetByOrderID(ctx, p.MerchantOrderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		payment, err = s.recoverPaymentFromCallback(ctx, &p)
		if payment == nil && err == nil {
			s.markEvent(ctx, stored.ID, errors.New("payment not found and callback carries no metadata"))
			s.log.Warn("callback for unknown payment ignored", "order_id", p.MerchantOrderID, "state", state)
			result.Ignored = true
			return result, nil
		}
	}
	if err != nil {
		s.markEvent(ctx, stored.ID, err)
		return nil, gateway.NewError(gateway.ErrorTypeDatabase, "Failed to load payment", err)
	}

	switch state {
	case gateway.PhonePeStateCompleted:
		granted, err := s.complete(ctx, payment, p.LatestTransactionID())
		s.markEvent(ctx, stored.ID, err)
		if err != nil {
			return nil, err
		}
		result.Granted = granted
	case gateway.PhonePeStateFailed:
		if _, err := s.repo.MarkFailed(ctx, payment.OrderID, "gateway reported FAILED"); err != nil {
			s.markEvent(ctx, stored.ID, err)
			return nil, gateway.NewError(gateway.ErrorTypeDatabase, "Failed to update payment", err)
		}
		s.markEvent(ctx, stored.ID, nil)
	default:
		s.markEvent(ctx, stored.ID, nil)
	}

	s.log.Info("phonepe callback processed", "order_id", payment.OrderID, "state", state, "granted", result.Granted)
	return result, nil
}

// Status passes the gateway order state through and reconciles terminal states locally.
func (s *Service) Status(ctx context.Context, orderID string) (*StatusResult, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, gateway.NewError(gateway.ErrorTypeValidation, "orderId is required", nil)
	}
	payment, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gateway.NewError(gateway.ErrorTypeNotFound, "Payment not found", nil)
		}
		return nil, gateway.NewError(gateway.ErrorTypeDatabase, "Failed to load payment", err)
	}

	state, txnID, err := s.gatewayState(ctx, payment)
	if err != nil {
		return nil, err
	}
	if err := s.applyGatewayState(ctx, payment, state, txnID); err != nil {
		return nil, err
	}

	return &StatusResult{
		Success:       true,
		OrderID:       orderID,
		State:         state,
		PaymentStatus: payment.Status,
		Amount:        payment.Amount,
		TransactionID: firstNonEmpty(txnID, payment.TransactionID),
	}, nil
}

// CreateRazorpayOrder creates the gateway order and records it as PENDING.
func (s *Service) CreateRazorpayOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	if s.razorpay == nil || !s.razorpay.Configured() {
		return nil, gateway.NewError(gateway.ErrorTypeConfiguration, "Payment gateway is not configured: RAZORPAY_KEY_ID/RAZORPAY_KEY_SECRET", nil)
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.cfg.Currency
	}
	receipt := fmt.Sprintf("rcpt_%d", s.now().UnixMilli())
	order, err := s.razorpay.CreateOrder(ctx, gateway.OrderRequest{
		AmountPaise: ToPaise(in.Amount),
		Currency:    currency,
		Receipt:     receipt,
		Notes: map[string]string{
			"user_id":     in.UserID,
			"course_id":   in.CourseID,
			"course_name": truncate(in.CourseName, 250),
			"site_id":     in.SiteID,
		},
	})
	if err != nil {
		if gateway.TypeOf(err) == "" {
			err = gateway.NewError(gateway.ErrorTypeGatewayAPI, "Payment gateway request failed", err)
		}
		return nil, err
	}

	meta, _ := json.Marshal(models.PaymentMetadata{CourseName: in.CourseName})
	payment := &models.Payment{
		OrderID:         order.ID,
		UserID:          in.UserID,
		CourseID:        in.CourseID,
		SiteID:          in.SiteID,
		Amount:          in.Amount,
		Currency:        currency,
		Status:          models.PaymentStatusPending,
		Provider:        models.PaymentProviderRazorpay,
		ProviderOrderID: order.ID,
		PaymentType:     models.PaymentTypeCourse,
		Metadata:        datatypes.JSON(meta),
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, gateway.NewError(gateway.ErrorTypeDatabase, "Failed to record payment", err)
	}

	s.log.Info("payment initiated", "provider", models.PaymentProviderRazorpay, "order_id", order.ID, "user_id", in.UserID, "course_id", in.CourseID, "amount", in.Amount)
	return &CreateOrderResult{
		Success:  true,
		OrderID:  order.ID,
		Amount:   order.Amount,
		Currency: firstNonEmpty(order.Currency, currency),
		KeyID:    s.razorpay.KeyID(),
	}, nil
}

// VerifyRazorpay checks the checkout signature and grants the enrollment.
// Repeating the call with the same payload is safe.
func (s *Service) VerifyRazorpay(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	in.Signature = strings.TrimSpace(in.Signature)
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	if s.razorpay == nil {
		return nil, gateway.NewError(gateway.ErrorTypeConfiguration, "Razorpay is not configured", nil)
	}

	valid := s.razorpay.VerifySignature(in.OrderID, in.PaymentID, in.Signature)
	payload, _ := json.Marshal(map[string]string{
		"razorpay_order_id":   in.OrderID,
		"razorpay_payment_id": in.PaymentID,
	})
	_, event, err := s.repo.CreateEventIfNotExists(ctx, &models.PaymentEvent{
		Provider:        models.PaymentProviderRazorpay,
		ProviderEventID: razorpayEventID(in, valid),
		EventType:       eventTypeRazorpayVerify,
		OrderID:         in.OrderID,
		PayloadJSON:     string(payload),
		SignatureValid:  valid,
	})
	if err != nil {
		s.log.Warn("failed to record verify attempt", "order_id", in.OrderID, "error", err)
	}
	if !valid {
		if event != nil {
			s.markEvent(ctx, event.ID, errors.New("invalid signature"))
		}
		s.log.Warn("razorpay signature mismatch", "order_id", in.OrderID, "payment_id", in.PaymentID)
		return nil, gateway.NewError(gateway.ErrorTypeSignature, "Payment verification failed", nil)
	}

	payment, err := s.repo.GetByOrderID(ctx, in.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gateway.NewError(gateway.ErrorTypeNotFound, "Payment not found", nil)
		}
		return nil, gateway.NewError(gateway.ErrorTypeDatabase, "Failed to load payment", err)
	}

	granted, err := s.complete(ctx, payment, in.PaymentID)
	if event != nil {
		s.markEvent(ctx, event.ID, err)
	}
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		Success:          true,
		OrderID:          in.OrderID,
		PaymentID:        in.PaymentID,
		AlreadyProcessed: !granted,
	}, nil
}

// complete marks the payment COMPLETED and grants access. granted is true only
// for the call that performed the transition; the grant itself is repeated
// on every call so a crash between the two writes heals on the next delivery.
func (s *Service) complete(ctx context.Context, payment *models.Payment, transactionID string) (bool, error) {
	transitioned, err := s.repo.MarkCompleted(ctx, payment.OrderID, transactionID)
	if err != nil {
		return false, gateway.NewError(gateway.ErrorTypeDatabase, "Failed to update payment", err)
	}
	payment.Status = models.PaymentStatusCompleted
	if transactionID != "" {
		payment.TransactionID = transactionID
	}

	if payment.IsSubscription() {
		var meta models.PaymentMetadata
		_ = json.Unmarshal(payment.Metadata, &meta)
		_, _, err = s.enroller.GrantSubscription(ctx, enrollment.SubscriptionInput{
			UserID:         payment.UserID,
			PlanID:         payment.PlanID,
			PlanName:       meta.PlanName,
			BillingCycle:   meta.BillingCycle,
			PaymentOrderID: payment.OrderID,
		})
	} else {
		_, _, err = s.enroller.Enroll(ctx, enrollment.Input{
			UserID:         payment.UserID,
			CourseID:       payment.CourseID,
			SiteID:         payment.SiteID,
			PaymentOrderID: payment.OrderID,
			Source:         models.EnrollmentSourcePayment,
		})
	}
	if err != nil {
		s.log.Error("failed to grant access for completed payment", "order_id", payment.OrderID, "user_id", payment.UserID, "error", err)
		return transitioned, gateway.NewError(gateway.ErrorTypeDatabase, "Failed to grant access", err)
	}
	return transitioned, nil
}

// recoverPaymentFromCallback rebuilds a payment row that was never written
// (e.g. crash between gateway order creation and the insert) from meta info.
func (s *Service) recoverPaymentFromCallback(ctx context.Context, p *gateway.CallbackPayload) (*models.Payment, error) {
	userID := strings.TrimSpace(p.MetaInfo["udf1"])
	courseID := strings.TrimSpace(p.MetaInfo["udf2"])
	paymentType := strings.TrimSpace(p.MetaInfo["udf3"])
	planID := strings.TrimSpace(p.MetaInfo["udf4"])
	if paymentType == "" {
		paymentType = models.PaymentTypeCourse
	}
	if userID == "" || (courseID == "" && planID == "") {
		return nil, nil
	}

	payment := &models.Payment{
		OrderID:         p.MerchantOrderID,
		UserID:          userID,
		CourseID:        courseID,
		SiteID:          strings.TrimSpace(p.MetaInfo["udf5"]),
		PlanID:          planID,
		Amount:          FromPaise(p.Amount),
		Currency:        s.cfg.Currency,
		Status:          models.PaymentStatusPending,
		Provider:        models.PaymentProviderPhonePe,
		ProviderOrderID: p.OrderID,
		PaymentType:     paymentType,
		ErrorMessage:    "recovered from gateway callback",
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}
	s.log.Warn("payment recovered from callback metadata", "order_id", payment.OrderID, "user_id", userID)
	return payment, nil
}

func (s *Service) failPayment(ctx context.Context, orderID string, cause error) {
	if _, err := s.repo.MarkFailed(ctx, orderID, cause.Error()); err != nil {
		s.log.Error("failed to mark payment failed", "order_id", orderID, "error", err)
	}
	s.log.Warn("payment initiation failed", "order_id", orderID, "error_type", gateway.TypeOf(cause), "error", cause)
}

func (s *Service) markEvent(ctx context.Context, eventID uint, processingErr error) {
	if eventID == 0 {
		return
	}
	msg := ""
	if processingErr != nil {
		msg = processingErr.Error()
	}
	if err := s.repo.MarkEventProcessed(ctx, eventID, msg); err != nil {
		s.log.Warn("failed to mark payment event processed", "event_id", eventID, "error", err)
	}
}

func (s *Service) validateInput(in interface{}) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return gateway.NewError(gateway.ErrorTypeValidation, "Invalid request", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return gateway.NewError(gateway.ErrorTypeValidation, "Missing or invalid fields: "+strings.Join(fields, ", "), nil)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func razorpayEventID(in VerifyInput, valid bool) string {
	if valid {
		return "verify:" + in.OrderID + ":" + in.PaymentID
	}
	sum := sha256.Sum256([]byte(in.OrderID + "|" + in.PaymentID + "|" + in.Signature))
	return "invalid:" + hex.EncodeToString(sum[:])
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
