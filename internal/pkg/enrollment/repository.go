package enrollment

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/learnerfast/learnerfast/app/models"
)

// Repository provides DB operations used by the enrollment writer.
type Repository interface {
	CreateEnrollmentIfNotExists(ctx context.Context, e *models.Enrollment) (bool, *models.Enrollment, error)
	FindEnrollment(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	CreateSubscriptionIfNotExists(ctx context.Context, sub *models.Subscription) (bool, *models.Subscription, error)
	UpsertSiteUser(ctx context.Context, su *models.SiteUser) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an enrollment repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateEnrollmentIfNotExists(ctx context.Context, e *models.Enrollment) (bool, *models.Enrollment, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "course_id"},
		},
		DoNothing: true,
	}).Create(e)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.FindEnrollment(ctx, e.UserID, e.CourseID)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *gormRepository) FindEnrollment(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	var e models.Enrollment
	err := r.db.WithContext(ctx).Where("user_id = ? AND course_id = ?", userID, courseID).First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) CreateSubscriptionIfNotExists(ctx context.Context, sub *models.Subscription) (bool, *models.Subscription, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_order_id"}},
		DoNothing: true,
	}).Create(sub)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.Subscription
	if err := r.db.WithContext(ctx).Where("payment_order_id = ?", sub.PaymentOrderID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// UpsertSiteUser inserts the site membership or refreshes the contact
// details of an existing one. Blank details never overwrite stored values.
func (r *gormRepository) UpsertSiteUser(ctx context.Context, su *models.SiteUser) error {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "site_id"},
			{Name: "user_id"},
		},
		DoNothing: true,
	}).Create(su)
	if tx.Error != nil || tx.RowsAffected > 0 {
		return tx.Error
	}

	updates := map[string]interface{}{}
	if su.Email != "" {
		updates["email"] = su.Email
	}
	if su.Name != "" {
		updates["name"] = su.Name
	}
	if su.Phone != "" {
		updates["phone"] = su.Phone
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.SiteUser{}).
		Where("site_id = ? AND user_id = ?", su.SiteID, su.UserID).
		Updates(updates).Error
}
