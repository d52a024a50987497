package repository

import (
	"context"
	"errors"

	"github.com/learnerfast/learnerfast/app/models"
	"gorm.io/gorm"
)

// identityRepository implements the IdentityRepository interface
type identityRepository struct {
	db *gorm.DB
}

// NewIdentityRepository creates a new identity repository instance
func NewIdentityRepository(db *gorm.DB) IdentityRepository {
	return &identityRepository{db: db}
}

func (r *identityRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *identityRepository) GetWebsiteUser(ctx context.Context, userID string) (*models.WebsiteUser, error) {
	var w models.WebsiteUser
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *identityRepository) GetSiteUser(ctx context.Context, siteID, userID string) (*models.SiteUser, error) {
	var s models.SiteUser
	if err := r.db.WithContext(ctx).Where("site_id = ? AND user_id = ?", siteID, userID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ResolvePerson merges whichever of the three records exist for the user.
// Missing records are not an error.
func (r *identityRepository) ResolvePerson(ctx context.Context, siteID, userID string) (models.Person, error) {
	profile, err := r.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Person{UserID: userID}, err
	}
	websiteUser, err := r.GetWebsiteUser(ctx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Person{UserID: userID}, err
	}
	var siteUser *models.SiteUser
	if siteID != "" {
		siteUser, err = r.GetSiteUser(ctx, siteID, userID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Person{UserID: userID}, err
		}
	}
	return models.MergePerson(userID, profile, websiteUser, siteUser), nil
}
