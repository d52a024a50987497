package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/learnerfast/learnerfast/app/models"
	"github.com/learnerfast/learnerfast/internal/pkg/enrollment"
	"github.com/learnerfast/learnerfast/internal/pkg/gateway"
	"github.com/learnerfast/learnerfast/internal/pkg/logger"
)

type memoryRepo struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
	events   map[string]*models.PaymentEvent
	nextID   uint
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		payments: map[string]*models.Payment{},
		events:   map[string]*models.PaymentEvent{},
	}
}

func (r *memoryRepo) CreatePayment(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.OrderID]; ok {
		return errors.New("duplicate order_id")
	}
	cp := *p
	r.payments[p.OrderID] = &cp
	return nil
}

func (r *memoryRepo) GetByOrderID(_ context.Context, orderID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memoryRepo) MarkCompleted(_ context.Context, orderID, transactionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[orderID]
	if !ok || p.Status == models.PaymentStatusCompleted {
		return false, nil
	}
	now := time.Now()
	p.Status = models.PaymentStatusCompleted
	p.TransactionID = transactionID
	p.CompletedAt = &now
	return true, nil
}

func (r *memoryRepo) MarkFailed(_ context.Context, orderID, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[orderID]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = models.PaymentStatusFailed
	p.ErrorMessage = reason
	return true, nil
}

func (r *memoryRepo) ListStalePending(_ context.Context, provider string, before time.Time, limit int) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.Provider == provider && p.Status == models.PaymentStatusPending && p.CreatedAt.Before(before) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastReconciledAt, out[j].LastReconciledAt
		switch {
		case a == nil && b != nil:
			return true
		case a != nil && b == nil:
			return false
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) MarkReconciled(_ context.Context, orderID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[orderID]; ok {
		p.LastReconciledAt = &at
	}
	return nil
}

func (r *memoryRepo) CreateEventIfNotExists(_ context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := event.Provider + "|" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	r.nextID++
	stored := *event
	stored.ID = r.nextID
	r.events[key] = &stored
	cp := stored
	return true, &cp, nil
}

func (r *memoryRepo) MarkEventProcessed(_ context.Context, id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
		}
	}
	return nil
}

func (r *memoryRepo) payment(orderID string) models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.payments[orderID]
}

type fakeEnroller struct {
	mu            sync.Mutex
	enrollments   map[string]enrollment.Input
	subscriptions map[string]enrollment.SubscriptionInput
	calls         int
	err           error
}

func newFakeEnroller() *fakeEnroller {
	return &fakeEnroller{
		enrollments:   map[string]enrollment.Input{},
		subscriptions: map[string]enrollment.SubscriptionInput{},
	}
}

func (f *fakeEnroller) Enroll(_ context.Context, in enrollment.Input) (*models.Enrollment, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	key := in.UserID + "|" + in.CourseID
	_, exists := f.enrollments[key]
	if !exists {
		f.enrollments[key] = in
	}
	return &models.Enrollment{UserID: in.UserID, CourseID: in.CourseID}, !exists, nil
}

func (f *fakeEnroller) GrantSubscription(_ context.Context, in enrollment.SubscriptionInput) (*models.Subscription, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	_, exists := f.subscriptions[in.PaymentOrderID]
	if !exists {
		f.subscriptions[in.PaymentOrderID] = in
	}
	return &models.Subscription{UserID: in.UserID, PlanID: in.PlanID}, !exists, nil
}

type fakePhonePe struct {
	configured bool
	payErr     error
	lastPay    gateway.PayRequest
	states     map[string]string
}

func (f *fakePhonePe) Configured() bool { return f.configured }

func (f *fakePhonePe) Pay(_ context.Context, req gateway.PayRequest) (*gateway.PayResponse, error) {
	f.lastPay = req
	if f.payErr != nil {
		return nil, f.payErr
	}
	return &gateway.PayResponse{
		OrderID:     "OMO" + req.MerchantOrderID,
		State:       gateway.PhonePeStatePending,
		RedirectURL: "https://mercury-uat.phonepe.com/transact/uat_v2?token=" + req.MerchantOrderID,
	}, nil
}

func (f *fakePhonePe) OrderStatus(_ context.Context, merchantOrderID string) (*gateway.OrderStatusResponse, error) {
	state, ok := f.states[merchantOrderID]
	if !ok {
		return nil, gateway.NewError(gateway.ErrorTypeGatewayAPI, "phonepe request rejected", errors.New("status=404"))
	}
	return &gateway.OrderStatusResponse{
		OrderID:        "OMO" + merchantOrderID,
		State:          state,
		PaymentDetails: []gateway.PaymentDetail{{TransactionID: "TXN_" + merchantOrderID, State: state}},
	}, nil
}

func (f *fakePhonePe) ValidateCallback(authorization string, body []byte) (*gateway.CallbackResponse, error) {
	if authorization != "valid" {
		return nil, gateway.NewError(gateway.ErrorTypeCallback, "invalid callback authorization", nil)
	}
	var out gateway.CallbackResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, gateway.NewError(gateway.ErrorTypeCallback, "invalid callback body", err)
	}
	return &out, nil
}

const testRazorpaySecret = "rzp_secret"

type fakeRazorpay struct {
	orders   map[string]*gateway.Order
	payments map[string][]gateway.OrderPayment
	seq      int
}

func newFakeRazorpay() *fakeRazorpay {
	return &fakeRazorpay{orders: map[string]*gateway.Order{}, payments: map[string][]gateway.OrderPayment{}}
}

func (f *fakeRazorpay) Configured() bool { return true }
func (f *fakeRazorpay) KeyID() string    { return "rzp_test_key" }

func (f *fakeRazorpay) CreateOrder(_ context.Context, req gateway.OrderRequest) (*gateway.Order, error) {
	f.seq++
	o := &gateway.Order{
		ID:       "order_" + string(rune('A'+f.seq-1)),
		Amount:   req.AmountPaise,
		Currency: req.Currency,
		Status:   "created",
		Receipt:  req.Receipt,
	}
	f.orders[o.ID] = o
	return o, nil
}

func (f *fakeRazorpay) FetchOrder(_ context.Context, orderID string) (*gateway.Order, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, gateway.NewError(gateway.ErrorTypeGatewayAPI, "razorpay order fetch failed", errors.New("not found"))
	}
	return o, nil
}

func (f *fakeRazorpay) FetchOrderPayments(_ context.Context, orderID string) ([]gateway.OrderPayment, error) {
	return f.payments[orderID], nil
}

func (f *fakeRazorpay) VerifySignature(orderID, paymentID, signature string) bool {
	return gateway.VerifyRazorpaySignature(orderID, paymentID, signature, testRazorpaySecret)
}

type harness struct {
	svc      *Service
	repo     *memoryRepo
	enroller *fakeEnroller
	phonepe  *fakePhonePe
	razorpay *fakeRazorpay
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:     newMemoryRepo(),
		enroller: newFakeEnroller(),
		phonepe:  &fakePhonePe{configured: true, states: map[string]string{}},
		razorpay: newFakeRazorpay(),
		now:      time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	h.svc = NewService(h.repo, h.enroller, h.phonepe, h.razorpay, Config{AppURL: "https://app.learnerfast.com/"}, logger.Nop())
	h.svc.now = func() time.Time { return h.now }
	return h
}

func callbackBody(t *testing.T, orderID, state string, meta map[string]string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"event": "checkout.order." + strings.ToLower(state),
		"payload": map[string]interface{}{
			"orderId":         "OMO" + orderID,
			"merchantOrderId": orderID,
			"state":           state,
			"amount":          1000,
			"metaInfo":        meta,
			"paymentDetails":  []map[string]interface{}{{"transactionId": "TXN_" + orderID, "state": state}},
		},
	})
	require.NoError(t, err)
	return body
}

func TestInitiateCreatesPendingPaymentAndCheckout(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Initiate(context.Background(), InitiateInput{
		CourseID:   "c1",
		UserID:     "u1",
		Amount:     10,
		CourseName: "Test",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Contains(t, res.CheckoutURL, "phonepe.com")
	assert.True(t, strings.HasPrefix(res.OrderID, "ORD_"))

	p := h.repo.payment(res.OrderID)
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.Equal(t, models.PaymentProviderPhonePe, p.Provider)
	assert.Equal(t, models.PaymentTypeCourse, p.PaymentType)
	assert.Equal(t, 10.0, p.Amount)
	assert.Equal(t, "INR", p.Currency)

	var meta models.PaymentMetadata
	require.NoError(t, json.Unmarshal(p.Metadata, &meta))
	assert.Equal(t, "Test", meta.CourseName)

	assert.EqualValues(t, 1000, h.phonepe.lastPay.AmountPaise)
	assert.Equal(t, "https://app.learnerfast.com/payment/success?orderId="+res.OrderID, h.phonepe.lastPay.RedirectURL)
	assert.Equal(t, "u1", h.phonepe.lastPay.MetaInfo["udf1"])
	assert.Equal(t, "c1", h.phonepe.lastPay.MetaInfo["udf2"])
	assert.Equal(t, 0, h.enroller.calls)
}

func TestInitiateValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Initiate(context.Background(), InitiateInput{UserID: "u1", Amount: 10})
	require.Error(t, err)
	assert.Equal(t, gateway.ErrorTypeValidation, gateway.TypeOf(err))
	assert.Contains(t, err.Error(), "courseId")
	assert.Contains(t, err.Error(), "courseName")

	_, err = h.svc.Initiate(context.Background(), InitiateInput{CourseID: "c1", UserID: "u1", Amount: -5, CourseName: "x"})
	assert.Equal(t, gateway.ErrorTypeValidation, gateway.TypeOf(err))

	_, err = h.svc.Initiate(context.Background(), InitiateInput{UserID: "u1", Amount: 10, CourseName: "Pro", PaymentType: "subscription"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planId")
	assert.Empty(t, h.repo.payments)
}

func TestInitiateRequiresConfiguration(t *testing.T) {
	h := newHarness(t)
	h.phonepe.configured = false
	h.svc.cfg.AppURL = ""

	_, err := h.svc.Initiate(context.Background(), InitiateInput{CourseID: "c1", UserID: "u1", Amount: 10, CourseName: "Test"})
	require.Error(t, err)
	assert.Equal(t, gateway.ErrorTypeConfiguration, gateway.TypeOf(err))
	assert.Contains(t, err.Error(), "APP_URL")
	assert.Empty(t, h.repo.payments)
}

func TestInitiateGatewayFailureMarksPaymentFailed(t *testing.T) {
	h := newHarness(t)
	h.svc.newOrder = func(time.Time, string) string { return "ORD_fixed" }
	h.phonepe.payErr = errors.New("connection reset")

	_, err := h.svc.Initiate(context.Background(), InitiateInput{CourseID: "c1", UserID: "u1", Amount: 10, CourseName: "Test"})
	require.Error(t, err)
	assert.Equal(t, gateway.ErrorTypeGatewayAPI, gateway.TypeOf(err))

	p := h.repo.payment("ORD_fixed")
	assert.Equal(t, models.PaymentStatusFailed, p.Status)
	assert.Contains(t, p.ErrorMessage, "connection reset")
}

func TestRazorpayVerifyIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order, err := h.svc.CreateRazorpayOrder(ctx, CreateOrderInput{CourseID: "c1", UserID: "u1", Amount: 499, CourseName: "Go"})
	require.NoError(t, err)
	assert.EqualValues(t, 49900, order.Amount)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, "rzp_test_key", order.KeyID)
	assert.Equal(t, models.PaymentStatusPending, h.repo.payment(order.OrderID).Status)
	assert.Equal(t, order.OrderID, h.repo.payment(order.OrderID).ProviderOrderID)

	in := VerifyInput{
		OrderID:   order.OrderID,
		PaymentID: "pay_1",
		Signature: gateway.RazorpaySignature(order.OrderID, "pay_1", testRazorpaySecret),
	}

	first, err := h.svc.VerifyRazorpay(ctx, in)
	require.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)

	second, err := h.svc.VerifyRazorpay(ctx, in)
	require.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)

	assert.Len(t, h.enroller.enrollments, 1)
	p := h.repo.payment(order.OrderID)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "pay_1", p.TransactionID)
}

func TestRazorpayVerifyRejectsTamperedSignature(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order, err := h.svc.CreateRazorpayOrder(ctx, CreateOrderInput{CourseID: "c1", UserID: "u1", Amount: 499, CourseName: "Go"})
	require.NoError(t, err)

	sig := gateway.RazorpaySignature(order.OrderID, "pay_1", testRazorpaySecret)
	tampered := "0" + sig[1:]
	if tampered == sig {
		tampered = "1" + sig[1:]
	}

	_, err = h.svc.VerifyRazorpay(ctx, VerifyInput{OrderID: order.OrderID, PaymentID: "pay_1", Signature: tampered})
	require.Error(t, err)
	assert.Equal(t, gateway.ErrorTypeSignature, gateway.TypeOf(err))
	assert.Equal(t, models.PaymentStatusPending, h.repo.payment(order.OrderID).Status)
	assert.Equal(t, 0, h.enroller.calls)

	require.Len(t, h.repo.events, 1)
	for _, e := range h.repo.events {
		assert.False(t, e.SignatureValid)
		assert.True(t, strings.HasPrefix(e.ProviderEventID, "invalid:"))
		assert.Equal(t, "invalid signature", e.ProcessingError)
	}
}

func TestRazorpayVerifyMissingFields(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.VerifyRazorpay(context.Background(), VerifyInput{OrderID: "order_A", PaymentID: "  "})
	require.Error(t, err)
	assert.Equal(t, gateway.ErrorTypeValidation, gateway.TypeOf(err))
	assert.Contains(t, err.Error(), "razorpay_payment_id")
	assert.Contains(t, err.Error(), "razorpay_signature")
}

func TestRazorpayVerifyUnknownOrder(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.VerifyRazorpay(context.Background(), VerifyInput{
		OrderID:   "order_missing",
		PaymentID: "pay_1",
		Signature: gateway.RazorpaySignature("order_missing", "pay_1", testRazorpaySecret),
	})
	assert.Equal(t, gateway.ErrorTypeNotFound, gateway.TypeOf(err))
}

func TestPhonePeCallbackCompletesOnceAndDetectsDuplicates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Initiate(ctx, InitiateInput{CourseID: "c1", UserID: "u1", Amount: 10, CourseName: "Test", SiteID: "s1"})
	require.NoError(t, err)
	body := callbackBody(t, res.OrderID, "COMPLETED", nil)

	first, err := h.svc.HandlePhonePeCallback(ctx, "valid", body)
	require.NoError(t, err)
	assert.True(t, first.Granted)
	assert.False(t, first.Duplicate)

	second, err := h.svc.HandlePhonePeCallback(ctx, "valid", body)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)

	assert.Equal(t, 1, h.enroller.calls)
	in := h.enroller.enrollments["u1|c1"]
	assert.Equal(t, res.OrderID, in.PaymentOrderID)
	assert.Equal(t, "s1", in.SiteID)

	p := h.repo.payment(res.OrderID)
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "TXN_"+res.OrderID, p.TransactionID)
}

func TestPhonePeCallbackRetriesAfterProcessingError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Initiate(ctx, InitiateInput{CourseID: "c1", UserID: "u1", Amount: 10, CourseName: "Test"})
	require.NoError(t, err)
	body := callbackBody(t, res.OrderID, "COMPLETED", nil)

	h.enroller.err = errors.New("db down")
	_, err = h.svc.HandlePhonePeCallback(ctx, "valid", body)
	require.Error(t, err)
	assert.Equal(t, gateway.ErrorTypeDatabase, gateway.TypeOf(err))

	h.enroller.err = nil
	again, err := h.svc.HandlePhonePeCallback(ctx, "valid", body)
	require.NoError(t, err)
	assert.False(t, again.Duplicate)
	assert.Len(t, h.enroller.enrollments, 1)
}

func TestPhonePeCallbackRejectsBadAuthorization(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.HandlePhonePeCallback(context.Background(), "nope", callbackBody(t, "ORD_1", "COMPLETED", nil))
	require.Error(t, err)
	assert.Equal(t, gateway.ErrorTypeCallback, gateway.TypeOf(err))
	assert.Empty(t, h.repo.events)
}

func TestPhonePeCallbackFailedState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Initiate(ctx, InitiateInput{CourseID: "c1", UserID: "u1", Amount: 10, CourseName: "Test"})
	require.NoError(t, err)

	out, err := h.svc.HandlePhonePeCallback(ctx, "valid", callbackBody(t, res.OrderID, "FAILED", nil))
	require.NoError(t, err)
	assert.False(t, out.Granted)
	assert.Equal(t, models.PaymentStatusFailed, h.repo.payment(res.OrderID).Status)
	assert.Equal(t, 0, h.enroller.calls)
}

func TestPhonePeCallbackRecoversMissingPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	body := callbackBody(t, "ORD_lost", "COMPLETED", map[string]string{"udf1": "u9", "udf2": "c9", "udf3": "course", "udf5": "s9"})
	out, err := h.svc.HandlePhonePeCallback(ctx, "valid", body)
	require.NoError(t, err)
	assert.True(t, out.Granted)

	p := h.repo.payment("ORD_lost")
	assert.Equal(t, models.PaymentStatusCompleted, p.Status)
	assert.Equal(t, 10.0, p.Amount)
	assert.Equal(t, "s9", p.SiteID)
	assert.Contains(t, h.enroller.enrollments, "u9|c9")
}

func TestPhonePeCallbackIgnoresUnknownPaymentWithoutMetadata(t *testing.T) {
	h := newHarness(t)

	out, err := h.svc.HandlePhonePeCallback(context.Background(), "valid", callbackBody(t, "ORD_ghost", "COMPLETED", nil))
	require.NoError(t, err)
	assert.True(t, out.Ignored)
	assert.Empty(t, h.repo.payments)
	assert.Equal(t, 0, h.enroller.calls)
}

func TestSubscriptionPaymentGrantsPlan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Initiate(ctx, InitiateInput{
		UserID:       "u1",
		Amount:       999,
		CourseName:   "Pro plan",
		PaymentType:  "Subscription",
		PlanID:       "pro",
		PlanName:     "Pro",
		BillingCycle: "yearly",
	})
	require.NoError(t, err)
	assert.Equal(t, "subscription", h.phonepe.lastPay.MetaInfo["udf3"])

	_, err = h.svc.HandlePhonePeCallback(ctx, "valid", callbackBody(t, res.OrderID, "COMPLETED", nil))
	require.NoError(t, err)

	sub, ok := h.enroller.subscriptions[res.OrderID]
	require.True(t, ok)
	assert.Equal(t, "pro", sub.PlanID)
	assert.Equal(t, "Pro", sub.PlanName)
	assert.Equal(t, "yearly", sub.BillingCycle)
	assert.Empty(t, h.enroller.enrollments)
}

func TestStatusReconcilesTerminalState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.Initiate(ctx, InitiateInput{CourseID: "c1", UserID: "u1", Amount: 10, CourseName: "Test"})
	require.NoError(t, err)

	h.phonepe.states[res.OrderID] = gateway.PhonePeStatePending
	st, err := h.svc.Status(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, gateway.PhonePeStatePending, st.State)
	assert.Equal(t, models.PaymentStatusPending, st.PaymentStatus)

	h.phonepe.states[res.OrderID] = gateway.PhonePeStateCompleted
	st, err = h.svc.Status(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, gateway.PhonePeStateCompleted, st.State)
	assert.Equal(t, models.PaymentStatusCompleted, st.PaymentStatus)
	assert.Equal(t, "TXN_"+res.OrderID, st.TransactionID)
	assert.Contains(t, h.enroller.enrollments, "u1|c1")
}

func TestStatusErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Status(context.Background(), " ")
	assert.Equal(t, gateway.ErrorTypeValidation, gateway.TypeOf(err))

	_, err = h.svc.Status(context.Background(), "ORD_unknown")
	assert.Equal(t, gateway.ErrorTypeNotFound, gateway.TypeOf(err))
}

func TestReconcilePending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := h.now.Add(-time.Hour)

	for _, p := range []*models.Payment{
		{OrderID: "ORD_done", UserID: "u1", CourseID: "c1", Amount: 10, Status: models.PaymentStatusPending, Provider: models.PaymentProviderPhonePe, PaymentType: models.PaymentTypeCourse, CreatedAt: old},
		{OrderID: "ORD_fail", UserID: "u2", CourseID: "c1", Amount: 10, Status: models.PaymentStatusPending, Provider: models.PaymentProviderPhonePe, PaymentType: models.PaymentTypeCourse, CreatedAt: old},
		{OrderID: "ORD_wait", UserID: "u3", CourseID: "c1", Amount: 10, Status: models.PaymentStatusPending, Provider: models.PaymentProviderPhonePe, PaymentType: models.PaymentTypeCourse, CreatedAt: old},
		{OrderID: "ORD_fresh", UserID: "u4", CourseID: "c1", Amount: 10, Status: models.PaymentStatusPending, Provider: models.PaymentProviderPhonePe, PaymentType: models.PaymentTypeCourse, CreatedAt: h.now},
		{OrderID: "ORD_lookup", UserID: "u5", CourseID: "c1", Amount: 10, Status: models.PaymentStatusPending, Provider: models.PaymentProviderPhonePe, PaymentType: models.PaymentTypeCourse, CreatedAt: old},
		{OrderID: "order_R", UserID: "u6", CourseID: "c2", Amount: 10, Status: models.PaymentStatusPending, Provider: models.PaymentProviderRazorpay, ProviderOrderID: "order_R", PaymentType: models.PaymentTypeCourse, CreatedAt: old},
	} {
		require.NoError(t, h.repo.CreatePayment(ctx, p))
	}
	h.phonepe.states["ORD_done"] = gateway.PhonePeStateCompleted
	h.phonepe.states["ORD_fail"] = gateway.PhonePeStateFailed
	h.phonepe.states["ORD_wait"] = gateway.PhonePeStatePending
	h.phonepe.states["ORD_fresh"] = gateway.PhonePeStateCompleted
	h.razorpay.orders["order_R"] = &gateway.Order{ID: "order_R", Status: "attempted"}
	h.razorpay.payments["order_R"] = []gateway.OrderPayment{{ID: "pay_R", Status: gateway.RazorpayPaymentCaptured}}

	report, err := h.svc.ReconcilePending(ctx, 15*time.Minute, 50)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 5, Completed: 2, Failed: 1, Errors: 1}, report)

	assert.Equal(t, models.PaymentStatusCompleted, h.repo.payment("ORD_done").Status)
	assert.Equal(t, models.PaymentStatusFailed, h.repo.payment("ORD_fail").Status)
	assert.Equal(t, models.PaymentStatusPending, h.repo.payment("ORD_wait").Status)
	assert.Equal(t, models.PaymentStatusPending, h.repo.payment("ORD_fresh").Status)
	assert.Equal(t, models.PaymentStatusCompleted, h.repo.payment("order_R").Status)
	assert.Equal(t, "pay_R", h.repo.payment("order_R").TransactionID)
	assert.Contains(t, h.enroller.enrollments, "u1|c1")
	assert.Contains(t, h.enroller.enrollments, "u6|c2")
}

func TestReconcileReachesNewerPaymentsPastStuckOnes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("order_stuck%d", i)
		require.NoError(t, h.repo.CreatePayment(ctx, &models.Payment{
			OrderID: id, UserID: "u1", CourseID: "c1", Amount: 10, Status: models.PaymentStatusPending,
			Provider: models.PaymentProviderRazorpay, ProviderOrderID: id, PaymentType: models.PaymentTypeCourse,
			CreatedAt: h.now.Add(-time.Duration(3+i) * time.Hour),
		}))
		h.razorpay.orders[id] = &gateway.Order{ID: id, Status: "created"}
	}
	require.NoError(t, h.repo.CreatePayment(ctx, &models.Payment{
		OrderID: "order_paid", UserID: "u2", CourseID: "c2", Amount: 10, Status: models.PaymentStatusPending,
		Provider: models.PaymentProviderRazorpay, ProviderOrderID: "order_paid", PaymentType: models.PaymentTypeCourse,
		CreatedAt: h.now.Add(-time.Hour),
	}))
	h.razorpay.orders["order_paid"] = &gateway.Order{ID: "order_paid", Status: gateway.RazorpayOrderPaid}
	h.razorpay.payments["order_paid"] = []gateway.OrderPayment{{ID: "pay_late", Status: gateway.RazorpayPaymentCaptured}}

	report, err := h.svc.ReconcilePending(ctx, 15*time.Minute, 3)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 3}, report)
	assert.Equal(t, models.PaymentStatusPending, h.repo.payment("order_paid").Status)

	h.now = h.now.Add(5 * time.Minute)
	report, err = h.svc.ReconcilePending(ctx, 15*time.Minute, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, models.PaymentStatusCompleted, h.repo.payment("order_paid").Status)
	assert.Equal(t, "pay_late", h.repo.payment("order_paid").TransactionID)
	assert.Contains(t, h.enroller.enrollments, "u2|c2")
	require.NotNil(t, h.repo.payment("order_stuck0").LastReconciledAt)
}

func TestReconcileExpiresAbandonedCheckouts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := h.now.Add(-48 * time.Hour)

	for _, p := range []*models.Payment{
		{OrderID: "order_abandoned", UserID: "u1", CourseID: "c1", Amount: 10, Provider: models.PaymentProviderRazorpay, ProviderOrderID: "order_abandoned", CreatedAt: old},
		{OrderID: "ORD_never_paid", UserID: "u2", CourseID: "c1", Amount: 10, Provider: models.PaymentProviderPhonePe, CreatedAt: old},
		{OrderID: "ORD_recent", UserID: "u3", CourseID: "c1", Amount: 10, Provider: models.PaymentProviderPhonePe, CreatedAt: h.now.Add(-time.Hour)},
	} {
		p.Status = models.PaymentStatusPending
		p.PaymentType = models.PaymentTypeCourse
		require.NoError(t, h.repo.CreatePayment(ctx, p))
	}
	h.razorpay.orders["order_abandoned"] = &gateway.Order{ID: "order_abandoned", Status: "attempted"}

	report, err := h.svc.ReconcilePending(ctx, 15*time.Minute, 50)
	require.NoError(t, err)
	assert.Equal(t, ReconcileReport{Checked: 3, Expired: 2, Errors: 1}, report)
	assert.Equal(t, models.PaymentStatusFailed, h.repo.payment("order_abandoned").Status)
	assert.Equal(t, models.PaymentStatusFailed, h.repo.payment("ORD_never_paid").Status)
	assert.Equal(t, models.PaymentStatusPending, h.repo.payment("ORD_recent").Status)

	h.razorpay.orders["order_abandoned"].Status = gateway.RazorpayOrderPaid
	h.razorpay.payments["order_abandoned"] = []gateway.OrderPayment{{ID: "pay_late", Status: gateway.RazorpayPaymentCaptured}}
	st, err := h.svc.Status(ctx, "order_abandoned")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, st.PaymentStatus)
	assert.Contains(t, h.enroller.enrollments, "u1|c1")
}
