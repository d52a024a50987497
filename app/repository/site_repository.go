package repository

import (
	"context"

	"github.com/learnerfast/learnerfast/app/models"
	"gorm.io/gorm"
)

// siteRepository implements the SiteRepository interface
type siteRepository struct {
	db *gorm.DB
}

// NewSiteRepository creates a new site repository instance
func NewSiteRepository(db *gorm.DB) SiteRepository {
	return &siteRepository{db: db}
}

// GetByID retrieves a site by its ID
func (r *siteRepository) GetByID(ctx context.Context, id string) (*models.Site, error) {
	var site models.Site
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&site).Error
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// GetByURL retrieves a site by its subdomain url
func (r *siteRepository) GetByURL(ctx context.Context, url string) (*models.Site, error) {
	var site models.Site
	err := r.db.WithContext(ctx).Where("url = ?", url).First(&site).Error
	if err != nil {
		return nil, err
	}
	return &site, nil
}

// IsOwnedBy reports whether userID owns the site
func (r *siteRepository) IsOwnedBy(ctx context.Context, siteID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Site{}).
		Where("id = ? AND user_id = ?", siteID, userID).
		Count(&count).Error
	return count > 0, err
}
