package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Site is one tenant's published website, addressed by its subdomain url.
type Site struct {
	ID        string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Name      string    `gorm:"type:varchar(150)" json:"name"`
	URL       string    `gorm:"column:url;type:varchar(255);not null;uniqueIndex" json:"url"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (s *Site) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}
