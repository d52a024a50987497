package repository

import (
	"context"
	"strings"

	"github.com/learnerfast/learnerfast/app/models"
	"gorm.io/gorm"
)

// courseRepository implements the CourseRepository interface
type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository creates a new course repository instance
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

// GetByID retrieves a course with its pricing
func (r *courseRepository) GetByID(ctx context.Context, id string) (*models.Course, error) {
	var course models.Course
	err := r.db.WithContext(ctx).Preload("Pricing").Where("id = ?", id).First(&course).Error
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// ListPublishedForSite retrieves every published course exposed on the site
func (r *courseRepository) ListPublishedForSite(ctx context.Context, site *models.Site) ([]models.Course, error) {
	db := r.db.WithContext(ctx)
	siteID := site.ID

	var linked []string
	if err := db.Model(&models.CourseSite{}).Where("site_id = ?", siteID).Pluck("course_id", &linked).Error; err != nil {
		return nil, err
	}

	// The LIKE is only a prefilter; membership is decided on the exact ids.
	var legacy []models.CourseSettings
	if err := db.Where("website_id LIKE ?", "%"+siteID+"%").Find(&legacy).Error; err != nil {
		return nil, err
	}
	for i := range legacy {
		for _, id := range legacy[i].LegacyWebsiteIDs() {
			if id == siteID {
				linked = append(linked, legacy[i].CourseID)
				break
			}
		}
	}

	ids := models.SplitIDList(strings.Join(linked, ","))
	if len(ids) == 0 {
		return []models.Course{}, nil
	}

	var courses []models.Course
	err := db.
		Preload("Settings").
		Preload("Pricing").
		Preload("Sites").
		Preload("Sections", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("order_index ASC, id ASC")
		}).
		Preload("Sections.Activities", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("order_index ASC, id ASC")
		}).
		Where("id IN ? AND user_id = ? AND status = ?", ids, site.UserID, models.CourseStatusPublished).
		Order("created_at DESC").
		Find(&courses).Error
	return courses, err
}
