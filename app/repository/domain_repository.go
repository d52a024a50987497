package repository

import (
	"context"
	"time"

	"github.com/learnerfast/learnerfast/app/models"
	"gorm.io/gorm"
)

// domainRepository implements the DomainRepository interface
type domainRepository struct {
	db *gorm.DB
}

// NewDomainRepository creates a new custom domain repository instance
func NewDomainRepository(db *gorm.DB) DomainRepository {
	return &domainRepository{db: db}
}

// Create inserts the domain together with its DNS records
func (r *domainRepository) Create(ctx context.Context, domain *models.CustomDomain) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(domain).Error
	})
}

func (r *domainRepository) GetByID(ctx context.Context, id string) (*models.CustomDomain, error) {
	var d models.CustomDomain
	if err := r.db.WithContext(ctx).Preload("Records").Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *domainRepository) GetByDomain(ctx context.Context, domain string) (*models.CustomDomain, error) {
	var d models.CustomDomain
	if err := r.db.WithContext(ctx).Where("domain = ?", domain).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *domainRepository) GetVerifiedByDomain(ctx context.Context, domain string) (*models.CustomDomain, error) {
	var d models.CustomDomain
	err := r.db.WithContext(ctx).
		Where("domain = ? AND status = ?", domain, models.DomainStatusVerified).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *domainRepository) ListByUser(ctx context.Context, userID, siteID string) ([]models.CustomDomain, error) {
	var out []models.CustomDomain
	q := r.db.WithContext(ctx).Preload("Records").Where("user_id = ?", userID)
	if siteID != "" {
		q = q.Where("site_id = ?", siteID)
	}
	err := q.Order("created_at DESC").Find(&out).Error
	return out, err
}

// ListPendingSince returns unverified domains created after since, never-checked first, then oldest check first
func (r *domainRepository) ListPendingSince(ctx context.Context, since time.Time, limit int) ([]models.CustomDomain, error) {
	var out []models.CustomDomain
	q := r.db.WithContext(ctx).Preload("Records").
		Where("status <> ? AND created_at > ?", models.DomainStatusVerified, since).
		Order("last_checked_at IS NOT NULL, last_checked_at ASC, created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// SaveCheckResult persists the verification outcome and record statuses
func (r *domainRepository) SaveCheckResult(ctx context.Context, domain *models.CustomDomain) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.CustomDomain{}).Where("id = ?", domain.ID).Updates(map[string]interface{}{
			"status":           domain.Status,
			"verified_at":      domain.VerifiedAt,
			"last_checked_at":  domain.LastCheckedAt,
			"last_check_error": domain.LastCheckError,
		}).Error
		if err != nil {
			return err
		}
		for _, rec := range domain.Records {
			if err := tx.Model(&models.DNSRecord{}).Where("id = ?", rec.ID).Update("status", rec.Status).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes the domain and its DNS records
func (r *domainRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("domain_id = ?", id).Delete(&models.DNSRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.CustomDomain{}).Error
	})
}
