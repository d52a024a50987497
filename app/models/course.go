package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	CourseStatusDraft     = "draft"
	CourseStatusPublished = "published"
)

const (
	ActivityTypeVideo        = "video"
	ActivityTypePDF          = "pdf"
	ActivityTypeAudio        = "audio"
	ActivityTypePresentation = "presentation"
	ActivityTypeOther        = "other"
)

// Course belongs to exactly one owning user. Storefront code only reads it.
type Course struct {
	ID          string          `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID      string          `gorm:"type:varchar(64);not null;index:idx_courses_user_status,priority:1;index:ux_courses_user_slug,unique,priority:1" json:"user_id"`
	Title       string          `gorm:"type:varchar(255);not null" json:"title"`
	Description string          `gorm:"type:text" json:"description"`
	ImageURL    string          `gorm:"type:varchar(1024)" json:"image_url"`
	Status      string          `gorm:"type:varchar(20);not null;default:'draft';index:idx_courses_user_status,priority:2" json:"status"`
	Slug        *string         `gorm:"type:varchar(191);index:ux_courses_user_slug,unique,priority:2" json:"slug,omitempty"`
	Settings    *CourseSettings `gorm:"foreignKey:CourseID" json:"settings,omitempty"`
	Pricing     *CoursePricing  `gorm:"foreignKey:CourseID" json:"pricing,omitempty"`
	Sections    []CourseSection `gorm:"foreignKey:CourseID" json:"sections,omitempty"`
	Sites       []CourseSite    `gorm:"foreignKey:CourseID" json:"-"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// IsPublished reports whether the course is visible on storefronts.
func (c *Course) IsPublished() bool {
	return c.Status == CourseStatusPublished
}

// CourseSettings holds display fields. WebsiteID is the legacy comma-separated
// list of site ids; new links live in course_sites.
type CourseSettings struct {
	ID              string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	CourseID        string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"course_id"`
	Label           string    `gorm:"type:varchar(100)" json:"label"`
	WhatYouLearn    string    `gorm:"type:text" json:"what_you_learn"`
	InstructorName  string    `gorm:"type:varchar(150)" json:"instructor_name"`
	InstructorBio   string    `gorm:"type:text" json:"instructor_bio"`
	InstructorImage string    `gorm:"type:varchar(1024)" json:"instructor_image"`
	WebsiteID       string    `gorm:"column:website_id;type:text" json:"website_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CourseSettings) TableName() string {
	return "course_settings"
}

func (s *CourseSettings) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// LegacyWebsiteIDs splits the comma-separated website_id column into exact ids.
func (s *CourseSettings) LegacyWebsiteIDs() []string {
	if s == nil {
		return nil
	}
	return SplitIDList(s.WebsiteID)
}

// SplitIDList splits a comma-separated id list, trimming blanks and dropping
// duplicates while keeping the original order.
func SplitIDList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		id := strings.TrimSpace(p)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// CoursePricing is 1:1 with a course. Prices are in major currency units.
type CoursePricing struct {
	ID             string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	CourseID       string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"course_id"`
	Price          float64   `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
	CompareAtPrice *float64  `gorm:"type:decimal(10,2)" json:"compare_at_price,omitempty"`
	Currency       string    `gorm:"type:varchar(3);not null;default:'INR'" json:"currency"`
	IsFree         bool      `gorm:"default:false" json:"is_free"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CoursePricing) TableName() string {
	return "course_pricing"
}

func (p *CoursePricing) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

// Free reports whether the course can be enrolled without payment.
func (p *CoursePricing) Free() bool {
	if p == nil {
		return false
	}
	return p.IsFree || p.Price <= 0
}

// CourseSite links a course to a site it is exposed on.
type CourseSite struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CourseID  string    `gorm:"type:varchar(64);not null;index:ux_course_sites_course_site,unique,priority:1" json:"course_id"`
	SiteID    string    `gorm:"type:varchar(64);not null;index:ux_course_sites_course_site,unique,priority:2;index" json:"site_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// CourseSection is an ordered child of a course.
type CourseSection struct {
	ID         string           `gorm:"type:varchar(64);primaryKey" json:"id"`
	CourseID   string           `gorm:"type:varchar(64);not null;index:idx_course_sections_order,priority:1" json:"course_id"`
	Title      string           `gorm:"type:varchar(255);not null" json:"title"`
	OrderIndex int              `gorm:"not null;default:0;index:idx_course_sections_order,priority:2" json:"order_index"`
	Activities []CourseActivity `gorm:"foreignKey:SectionID" json:"activities,omitempty"`
	CreatedAt  time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *CourseSection) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// CourseActivity is a playable item inside a section.
type CourseActivity struct {
	ID              string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	SectionID       string    `gorm:"type:varchar(64);not null;index" json:"section_id"`
	Title           string    `gorm:"type:varchar(255);not null" json:"title"`
	Type            string    `gorm:"type:varchar(20);not null;default:'other'" json:"type"`
	SourceURL       string    `gorm:"type:varchar(2048)" json:"source_url"`
	OrderIndex      int       `gorm:"not null;default:0" json:"order_index"`
	DurationSeconds int       `gorm:"default:0" json:"duration_seconds"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *CourseActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

// NormalizeActivityType maps unknown activity types to "other".
func NormalizeActivityType(t string) string {
	switch v := strings.ToLower(strings.TrimSpace(t)); v {
	case ActivityTypeVideo, ActivityTypePDF, ActivityTypeAudio, ActivityTypePresentation:
		return v
	default:
		return ActivityTypeOther
	}
}
