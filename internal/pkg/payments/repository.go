package payments

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/learnerfast/learnerfast/app/models"
)

// Repository provides DB operations used by the payment service.
type Repository interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error)
	MarkCompleted(ctx context.Context, orderID, transactionID string) (bool, error)
	MarkFailed(ctx context.Context, orderID, reason string) (bool, error)
	ListStalePending(ctx context.Context, provider string, before time.Time, limit int) ([]models.Payment, error)
	MarkReconciled(ctx context.Context, orderID string, at time.Time) error
	CreateEventIfNotExists(ctx context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error)
	MarkEventProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreatePayment(ctx context.Context, p *models.Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *gormRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// MarkCompleted moves a payment to COMPLETED. It reports false when the row
// was already completed (or does not exist), which callers use for idempotency.
func (r *gormRepository) MarkCompleted(ctx context.Context, orderID, transactionID string) (bool, error) {
	now := time.Now().UTC()
	tx := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("order_id = ? AND status <> ?", orderID, models.PaymentStatusCompleted).
		Updates(map[string]interface{}{
			"status":         models.PaymentStatusCompleted,
			"transaction_id": transactionID,
			"completed_at":   &now,
			"error_message":  "",
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// MarkFailed only touches PENDING payments so a late failure never
// overrides a completion.
func (r *gormRepository) MarkFailed(ctx context.Context, orderID, reason string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, models.PaymentStatusPending).
		Updates(map[string]interface{}{
			"status":        models.PaymentStatusFailed,
			"error_message": reason,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// ListStalePending returns PENDING payments created before the cutoff.
// Never-reconciled rows come first, then the ones checked longest ago.
func (r *gormRepository) ListStalePending(ctx context.Context, provider string, before time.Time, limit int) ([]models.Payment, error) {
	var out []models.Payment
	q := r.db.WithContext(ctx).
		Where("provider = ? AND status = ? AND created_at < ?", provider, models.PaymentStatusPending, before).
		Order("last_reconciled_at IS NOT NULL, last_reconciled_at ASC, created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func (r *gormRepository) MarkReconciled(ctx context.Context, orderID string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("order_id = ?", orderID).
		UpdateColumn("last_reconciled_at", at.UTC()).Error
}

func (r *gormRepository) CreateEventIfNotExists(ctx context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkEventProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.PaymentEvent{}).Where("id = ?", id).Updates(updates).Error
}
