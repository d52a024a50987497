package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Profile is created by dashboard signup. ID equals the auth provider user id.
type Profile struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Email     string    `gorm:"type:varchar(200);index" json:"email"`
	FullName  string    `gorm:"type:varchar(150)" json:"full_name"`
	Phone     string    `gorm:"type:varchar(32)" json:"phone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// WebsiteUser is created when a student signs in on a template site via OAuth.
type WebsiteUser struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"user_id"`
	Email     string    `gorm:"type:varchar(200);index" json:"email"`
	Name      string    `gorm:"type:varchar(150)" json:"name"`
	AvatarURL string    `gorm:"type:varchar(1024)" json:"avatar_url"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (w *WebsiteUser) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	return nil
}

// SiteUser is a student or lead of one specific site.
type SiteUser struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	SiteID    string    `gorm:"type:varchar(64);not null;index:ux_site_users_site_user,unique,priority:1" json:"site_id"`
	UserID    string    `gorm:"type:varchar(64);not null;index:ux_site_users_site_user,unique,priority:2" json:"user_id"`
	Email     string    `gorm:"type:varchar(200)" json:"email"`
	Name      string    `gorm:"type:varchar(150)" json:"name"`
	Phone     string    `gorm:"type:varchar(32)" json:"phone"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *SiteUser) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// Person is the merged view over Profile, WebsiteUser and SiteUser.
type Person struct {
	UserID string
	Email  string
	Name   string
	Phone  string
}

// MergePerson fills empty fields from the records in priority order:
// profile, then website user, then site user.
func MergePerson(userID string, profile *Profile, websiteUser *WebsiteUser, siteUser *SiteUser) Person {
	p := Person{UserID: userID}
	if profile != nil {
		p.Email, p.Name, p.Phone = profile.Email, profile.FullName, profile.Phone
	}
	if websiteUser != nil {
		p.Email = firstNonEmpty(p.Email, websiteUser.Email)
		p.Name = firstNonEmpty(p.Name, websiteUser.Name)
	}
	if siteUser != nil {
		p.Email = firstNonEmpty(p.Email, siteUser.Email)
		p.Name = firstNonEmpty(p.Name, siteUser.Name)
		p.Phone = firstNonEmpty(p.Phone, siteUser.Phone)
	}
	return p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
