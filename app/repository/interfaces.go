package repository

import (
	"context"
	"time"

	"github.com/learnerfast/learnerfast/app/models"
	"gorm.io/gorm"
)

// SiteRepository defines the interface for site lookups
type SiteRepository interface {
	GetByID(ctx context.Context, id string) (*models.Site, error)
	GetByURL(ctx context.Context, url string) (*models.Site, error)
	IsOwnedBy(ctx context.Context, siteID, userID string) (bool, error)
}

// CourseRepository defines the interface for course read operations
type CourseRepository interface {
	GetByID(ctx context.Context, id string) (*models.Course, error)
	// ListPublishedForSite returns published courses of the site owner that are
	// linked to the site either through course_sites or through the legacy
	// website_id list. Settings, pricing, site links, sections and activities
	// are preloaded.
	ListPublishedForSite(ctx context.Context, site *models.Site) ([]models.Course, error)
}

// IdentityRepository defines the interface for the three user record sources
type IdentityRepository interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	GetWebsiteUser(ctx context.Context, userID string) (*models.WebsiteUser, error)
	GetSiteUser(ctx context.Context, siteID, userID string) (*models.SiteUser, error)
	ResolvePerson(ctx context.Context, siteID, userID string) (models.Person, error)
}

// DomainRepository defines the interface for custom domain operations
type DomainRepository interface {
	Create(ctx context.Context, domain *models.CustomDomain) error
	GetByID(ctx context.Context, id string) (*models.CustomDomain, error)
	GetByDomain(ctx context.Context, domain string) (*models.CustomDomain, error)
	GetVerifiedByDomain(ctx context.Context, domain string) (*models.CustomDomain, error)
	// ListByUser returns the user's domains, narrowed to one site when siteID is set
	ListByUser(ctx context.Context, userID, siteID string) ([]models.CustomDomain, error)
	ListPendingSince(ctx context.Context, since time.Time, limit int) ([]models.CustomDomain, error)
	SaveCheckResult(ctx context.Context, domain *models.CustomDomain) error
	Delete(ctx context.Context, id string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Site     SiteRepository
	Course   CourseRepository
	Identity IdentityRepository
	Domain   DomainRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Site:     NewSiteRepository(db),
		Course:   NewCourseRepository(db),
		Identity: NewIdentityRepository(db),
		Domain:   NewDomainRepository(db),
	}
}
