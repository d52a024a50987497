package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DomainStatusPending  = "pending"
	DomainStatusVerified = "verified"
	DomainStatusFailed   = "failed"
)

const (
	DNSRecordTypeTXT   = "TXT"
	DNSRecordTypeCNAME = "CNAME"
)

// VerificationPrefix is the label under which the ownership TXT record lives.
const VerificationPrefix = "_learnerfast-verification"

// CustomDomain is a customer-owned hostname pointed at one site.
type CustomDomain struct {
	ID                string      `gorm:"type:varchar(64);primaryKey" json:"id"`
	SiteID            string      `gorm:"type:varchar(64);not null;index" json:"site_id"`
	UserID            string      `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Domain            string      `gorm:"type:varchar(253);not null;uniqueIndex" json:"domain"`
	Status            string      `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	VerificationToken string      `gorm:"type:varchar(64);not null" json:"verification_token"`
	VerifiedAt        *time.Time  `json:"verified_at,omitempty"`
	LastCheckedAt     *time.Time  `json:"last_checked_at,omitempty"`
	LastCheckError    string      `gorm:"type:text" json:"last_check_error,omitempty"`
	Records           []DNSRecord `gorm:"foreignKey:DomainID;constraint:OnDelete:CASCADE" json:"records,omitempty"`
	CreatedAt         time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d *CustomDomain) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.Status == "" {
		d.Status = DomainStatusPending
	}
	return nil
}

// VerificationHost is the DNS name queried for the ownership token.
func (d *CustomDomain) VerificationHost() string {
	return VerificationPrefix + "." + d.Domain
}

// IsVerified reports whether ownership has been proven.
func (d *CustomDomain) IsVerified() bool {
	return d.Status == DomainStatusVerified
}

// GenerateVerificationToken creates a random 32 hex char token.
func GenerateVerificationToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// DNSRecord is a record the customer must publish for a custom domain.
type DNSRecord struct {
	ID         string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	DomainID   string    `gorm:"type:varchar(64);not null;index" json:"domain_id"`
	RecordType string    `gorm:"type:varchar(10);not null" json:"record_type"`
	Name       string    `gorm:"type:varchar(300);not null" json:"name"`
	Value      string    `gorm:"type:varchar(512);not null" json:"value"`
	Status     string    `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DNSRecord) TableName() string {
	return "dns_records"
}

func (r *DNSRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
