package payments

import (
	"context"
	"strings"
	"time"

	"github.com/learnerfast/learnerfast/app/models"
	"github.com/learnerfast/learnerfast/internal/pkg/gateway"
)

// gatewayState asks the payment's provider for the order state and maps it
// onto the PENDING / COMPLETED / FAILED vocabulary.
func (s *Service) gatewayState(ctx context.Context, payment *models.Payment) (string, string, error) {
	switch payment.Provider {
	case models.PaymentProviderRazorpay:
		return s.razorpayState(ctx, payment)
	default:
		if s.phonepe == nil || !s.phonepe.Configured() {
			return "", "", gateway.NewError(gateway.ErrorTypeConfiguration, "PhonePe is not configured", nil)
		}
		resp, err := s.phonepe.OrderStatus(ctx, payment.OrderID)
		if err != nil {
			return "", "", err
		}
		return strings.ToUpper(resp.State), resp.LatestTransactionID(), nil
	}
}

func (s *Service) razorpayState(ctx context.Context, payment *models.Payment) (string, string, error) {
	if s.razorpay == nil || !s.razorpay.Configured() {
		return "", "", gateway.NewError(gateway.ErrorTypeConfiguration, "Razorpay is not configured", nil)
	}
	orderID := firstNonEmpty(payment.ProviderOrderID, payment.OrderID)
	order, err := s.razorpay.FetchOrder(ctx, orderID)
	if err != nil {
		return "", "", err
	}
	attempts, err := s.razorpay.FetchOrderPayments(ctx, orderID)
	if err != nil {
		return "", "", err
	}
	for _, a := range attempts {
		if a.Status == gateway.RazorpayPaymentCaptured {
			return gateway.PhonePeStateCompleted, a.ID, nil
		}
	}
	if order.Status == gateway.RazorpayOrderPaid {
		txnID := ""
		if len(attempts) > 0 {
			txnID = attempts[len(attempts)-1].ID
		}
		return gateway.PhonePeStateCompleted, txnID, nil
	}
	return gateway.PhonePeStatePending, "", nil
}

// applyGatewayState writes a terminal gateway state to the local record.
func (s *Service) applyGatewayState(ctx context.Context, payment *models.Payment, state, txnID string) error {
	switch state {
	case gateway.PhonePeStateCompleted:
		if _, err := s.complete(ctx, payment, txnID); err != nil {
			return err
		}
	case gateway.PhonePeStateFailed:
		changed, err := s.repo.MarkFailed(ctx, payment.OrderID, "gateway reported FAILED")
		if err != nil {
			return gateway.NewError(gateway.ErrorTypeDatabase, "Failed to update payment", err)
		}
		if changed {
			payment.Status = models.PaymentStatusFailed
		}
	}
	return nil
}

// ReconcilePending re-checks PENDING payments older than olderThan against
// their gateway. It is the safety net for callbacks that never arrived.
// Payments still unconfirmed after the pending expiry are marked FAILED; a
// later confirmation can still complete them.
func (s *Service) ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (ReconcileReport, error) {
	var report ReconcileReport
	now := s.now()
	before := now.Add(-olderThan)

	providers := make([]string, 0, 2)
	if s.phonepe != nil && s.phonepe.Configured() {
		providers = append(providers, models.PaymentProviderPhonePe)
	}
	if s.razorpay != nil && s.razorpay.Configured() {
		providers = append(providers, models.PaymentProviderRazorpay)
	}

	for _, provider := range providers {
		stale, err := s.repo.ListStalePending(ctx, provider, before, limit)
		if err != nil {
			return report, gateway.NewError(gateway.ErrorTypeDatabase, "Failed to list pending payments", err)
		}
		for i := range stale {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			payment := &stale[i]
			report.Checked++
			s.reconcileOne(ctx, payment, now, &report)
			if err := s.repo.MarkReconciled(ctx, payment.OrderID, now); err != nil {
				s.log.Warn("failed to record reconcile time", "order_id", payment.OrderID, "error", err)
			}
		}
	}

	if report.Checked > 0 {
		s.log.Info("payment reconciliation finished", "checked", report.Checked, "completed", report.Completed, "failed", report.Failed, "expired", report.Expired, "errors", report.Errors)
	}
	return report, nil
}

func (s *Service) reconcileOne(ctx context.Context, payment *models.Payment, now time.Time, report *ReconcileReport) {
	expired := now.Sub(payment.CreatedAt) >= s.cfg.PendingExpiry

	state, txnID, err := s.gatewayState(ctx, payment)
	if err != nil {
		// Past the expiry a rejected lookup usually means checkout never started.
		if expired && gateway.TypeOf(err) == gateway.ErrorTypeGatewayAPI {
			s.expire(ctx, payment, report)
			return
		}
		report.Errors++
		s.log.Warn("reconcile status lookup failed", "order_id", payment.OrderID, "provider", payment.Provider, "error", err)
		return
	}
	if !gateway.IsTerminalState(state) {
		if expired {
			s.expire(ctx, payment, report)
		}
		return
	}
	if err := s.applyGatewayState(ctx, payment, state, txnID); err != nil {
		report.Errors++
		s.log.Error("reconcile update failed", "order_id", payment.OrderID, "provider", payment.Provider, "error", err)
		return
	}
	switch state {
	case gateway.PhonePeStateCompleted:
		report.Completed++
	case gateway.PhonePeStateFailed:
		report.Failed++
	}
}

func (s *Service) expire(ctx context.Context, payment *models.Payment, report *ReconcileReport) {
	changed, err := s.repo.MarkFailed(ctx, payment.OrderID, "payment expired without gateway confirmation")
	if err != nil {
		report.Errors++
		s.log.Error("failed to expire payment", "order_id", payment.OrderID, "error", err)
		return
	}
	if changed {
		report.Expired++
		s.log.Info("pending payment expired", "order_id", payment.OrderID, "provider", payment.Provider, "created_at", payment.CreatedAt)
	}
}
