package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/learnerfast/learnerfast/internal/pkg/gateway"
	"github.com/learnerfast/learnerfast/internal/pkg/payments"
	"github.com/learnerfast/learnerfast/internal/pkg/usercontext"
)

// HandlePaymentInitiate starts a PhonePe checkout.
func (h *Handlers) HandlePaymentInitiate(c *fiber.Ctx) error {
	var in payments.InitiateInput
	if err := c.BodyParser(&in); err != nil {
		return h.paymentError(c, gateway.NewError(gateway.ErrorTypeValidation, "Invalid JSON body", nil))
	}
	// A signed-in caller always pays for themselves.
	if uid := usercontext.GetUserID(c); uid != "" {
		in.UserID = uid
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Payments.Initiate(ctx, in)
	if err != nil {
		return h.paymentError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

// HandlePaymentCallback receives PhonePe server-to-server notifications.
func (h *Handlers) HandlePaymentCallback(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	authorization := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Payments.HandlePhonePeCallback(ctx, authorization, rawBody)
	if err != nil {
		switch gateway.TypeOf(err) {
		case gateway.ErrorTypeCallback:
			h.logger().Warn("rejected payment callback", "ip", c.IP(), "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_callback"})
		case gateway.ErrorTypeConfiguration:
			h.logger().Error("payment callback received but not configured", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "callback_not_configured"})
		default:
			h.logger().Error("payment callback processing failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "callback_processing_failed"})
		}
	}

	body := fiber.Map{"ok": true}
	if res.Duplicate {
		body["duplicate"] = true
	}
	if res.Ignored {
		body["ignored"] = true
	}
	return c.Status(fiber.StatusOK).JSON(body)
}

// HandlePaymentStatus returns the gateway state of an order.
func (h *Handlers) HandlePaymentStatus(c *fiber.Ctx) error {
	orderID := strings.TrimSpace(c.Query("orderId"))
	if orderID == "" {
		return h.paymentError(c, gateway.NewError(gateway.ErrorTypeValidation, "orderId is required", nil))
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Payments.Status(ctx, orderID)
	if err != nil {
		return h.paymentError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

// HandleRazorpayCreateOrder creates a Razorpay order for the browser checkout.
func (h *Handlers) HandleRazorpayCreateOrder(c *fiber.Ctx) error {
	var in payments.CreateOrderInput
	if err := c.BodyParser(&in); err != nil {
		return h.paymentError(c, gateway.NewError(gateway.ErrorTypeValidation, "Invalid JSON body", nil))
	}
	if uid := usercontext.GetUserID(c); uid != "" {
		in.UserID = uid
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Payments.CreateRazorpayOrder(ctx, in)
	if err != nil {
		return h.paymentError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}

type razorpayVerifyRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	OrderID           string `json:"order_id"`
	PaymentID         string `json:"payment_id"`
	Signature         string `json:"signature"`
}

func (r razorpayVerifyRequest) input() payments.VerifyInput {
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return a
		}
		return b
	}
	return payments.VerifyInput{
		OrderID:   pick(r.RazorpayOrderID, r.OrderID),
		PaymentID: pick(r.RazorpayPaymentID, r.PaymentID),
		Signature: pick(r.RazorpaySignature, r.Signature),
	}
}

// HandleRazorpayVerify confirms a Razorpay checkout and grants the enrollment.
func (h *Handlers) HandleRazorpayVerify(c *fiber.Ctx) error {
	var req razorpayVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return h.paymentError(c, gateway.NewError(gateway.ErrorTypeValidation, "Invalid JSON body", nil))
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Payments.VerifyRazorpay(ctx, req.input())
	if err != nil {
		return h.paymentError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(res)
}
