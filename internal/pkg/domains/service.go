package domains

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/learnerfast/learnerfast/app/models"
	"github.com/learnerfast/learnerfast/internal/pkg/logger"
)

var (
	ErrNotFound  = errors.New("domain not found")
	ErrForbidden = errors.New("site does not belong to the current user")
	ErrDuplicate = errors.New("domain is already registered")
)

const (
	defaultRecheckWindow = 72 * time.Hour
	lookupTimeout        = 10 * time.Second
	recheckBatch         = 100
)

// Resolver looks up TXT records. *net.Resolver satisfies it.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// SiteOwnership checks whether a user owns a site.
type SiteOwnership interface {
	IsOwnedBy(ctx context.Context, siteID, userID string) (bool, error)
}

// Store persists custom domains.
type Store interface {
	Create(ctx context.Context, domain *models.CustomDomain) error
	GetByID(ctx context.Context, id string) (*models.CustomDomain, error)
	GetByDomain(ctx context.Context, domain string) (*models.CustomDomain, error)
	ListByUser(ctx context.Context, userID, siteID string) ([]models.CustomDomain, error)
	ListPendingSince(ctx context.Context, since time.Time, limit int) ([]models.CustomDomain, error)
	SaveCheckResult(ctx context.Context, domain *models.CustomDomain) error
	Delete(ctx context.Context, id string) error
}

// CatalogInvalidator drops cached storefront catalogs. *catalog.Reader satisfies it.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, websiteNames ...string)
}

type Config struct {
	RootDomain    string
	CNAMETarget   string
	RecheckWindow time.Duration
}

// VerifyResult is the outcome of one ownership check.
type VerifyResult struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

type Service struct {
	store    Store
	sites    SiteOwnership
	resolver Resolver
	catalog  CatalogInvalidator
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
}

func NewService(store Store, sites SiteOwnership, resolver Resolver, cfg Config, log *logger.Logger) *Service {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if cfg.RecheckWindow <= 0 {
		cfg.RecheckWindow = defaultRecheckWindow
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, sites: sites, resolver: resolver, cfg: cfg, log: log, now: time.Now}
}

// WithCatalog makes verification and deletion drop the cached catalog of
// the domain, so storefront lookups by host pick up the change at once.
func (s *Service) WithCatalog(catalog CatalogInvalidator) *Service {
	s.catalog = catalog
	return s
}

// Add registers a pending custom domain and the DNS records the customer must publish.
func (s *Service) Add(ctx context.Context, userID, siteID, rawDomain string) (*models.CustomDomain, error) {
	name, err := Normalize(rawDomain, s.cfg.RootDomain)
	if err != nil {
		return nil, err
	}
	if err := s.checkOwnership(ctx, siteID, userID); err != nil {
		return nil, err
	}

	_, err = s.store.GetByDomain(ctx, name)
	if err == nil {
		return nil, ErrDuplicate
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	token, err := models.GenerateVerificationToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}
	domain := &models.CustomDomain{
		SiteID:            siteID,
		UserID:            userID,
		Domain:            name,
		Status:            models.DomainStatusPending,
		VerificationToken: token,
	}
	domain.Records = []models.DNSRecord{
		{RecordType: models.DNSRecordTypeTXT, Name: domain.VerificationHost(), Value: token, Status: models.DomainStatusPending},
		{RecordType: models.DNSRecordTypeCNAME, Name: name, Value: s.cfg.CNAMETarget, Status: models.DomainStatusPending},
	}
	if err := s.store.Create(ctx, domain); err != nil {
		return nil, err
	}
	s.log.Info("custom domain added", "domain", name, "site_id", siteID, "user_id", userID)
	return domain, nil
}

// List returns the user's domains, optionally for one site.
func (s *Service) List(ctx context.Context, userID, siteID string) ([]models.CustomDomain, error) {
	if siteID != "" {
		if err := s.checkOwnership(ctx, siteID, userID); err != nil {
			return nil, err
		}
	}
	out, err := s.store.ListByUser(ctx, userID, siteID)
	if out == nil && err == nil {
		out = []models.CustomDomain{}
	}
	return out, err
}

// Delete removes a domain owned by the user.
func (s *Service) Delete(ctx context.Context, userID, domainID string) error {
	domain, err := s.owned(ctx, userID, domainID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, domainID); err != nil {
		return err
	}
	s.invalidate(ctx, domain.Domain)
	s.log.Info("custom domain deleted", "domain_id", domainID, "user_id", userID)
	return nil
}

// Verify checks the ownership TXT record of a domain owned by the user. DNS
// failures are reported in the result, not as an error.
func (s *Service) Verify(ctx context.Context, userID, domainID string) (*VerifyResult, error) {
	domain, err := s.owned(ctx, userID, domainID)
	if err != nil {
		return nil, err
	}
	return s.check(ctx, domain)
}

// RecheckPending re-verifies unverified domains created within the recheck window.
func (s *Service) RecheckPending(ctx context.Context) (checked, verified int, err error) {
	pending, err := s.store.ListPendingSince(ctx, s.now().Add(-s.cfg.RecheckWindow), recheckBatch)
	if err != nil {
		return 0, 0, err
	}
	for i := range pending {
		if ctx.Err() != nil {
			return checked, verified, ctx.Err()
		}
		res, err := s.check(ctx, &pending[i])
		checked++
		if err != nil {
			s.log.Warn("domain recheck failed", "domain", pending[i].Domain, "error", err)
			continue
		}
		if res.Verified {
			verified++
		}
	}
	if checked > 0 {
		s.log.Info("domain recheck finished", "checked", checked, "verified", verified)
	}
	return checked, verified, nil
}

func (s *Service) check(ctx context.Context, domain *models.CustomDomain) (*VerifyResult, error) {
	if domain.IsVerified() {
		return &VerifyResult{Verified: true, Message: "Domain is already verified"}, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()
	records, lookupErr := s.resolver.LookupTXT(lookupCtx, domain.VerificationHost())

	now := s.now().UTC()
	domain.LastCheckedAt = &now
	result := &VerifyResult{}

	switch {
	case lookupErr != nil && isNotFound(lookupErr):
		domain.LastCheckError = "TXT record not found yet"
		result.Message = fmt.Sprintf("TXT record %s not found yet. DNS changes can take up to 48 hours to propagate.", domain.VerificationHost())
	case lookupErr != nil:
		domain.LastCheckError = lookupErr.Error()
		result.Message = "DNS lookup failed, please try again later"
	case containsToken(records, domain.VerificationToken):
		domain.Status = models.DomainStatusVerified
		domain.VerifiedAt = &now
		domain.LastCheckError = ""
		for i := range domain.Records {
			if domain.Records[i].RecordType == models.DNSRecordTypeTXT {
				domain.Records[i].Status = models.DomainStatusVerified
			}
		}
		result.Verified = true
		result.Message = "Domain verified successfully"
	default:
		domain.LastCheckError = "verification token not found in TXT records"
		result.Message = "TXT record found but it does not contain the verification token"
	}

	if err := s.store.SaveCheckResult(ctx, domain); err != nil {
		s.log.Error("failed to save domain check result", "domain", domain.Domain, "error", err)
		if result.Verified {
			return &VerifyResult{Verified: false, Message: "Domain verified but the result could not be saved, please retry"}, nil
		}
	}
	if result.Verified {
		s.invalidate(ctx, domain.Domain)
		s.log.Info("custom domain verified", "domain", domain.Domain, "site_id", domain.SiteID)
	}
	return result, nil
}

func (s *Service) invalidate(ctx context.Context, name string) {
	if s.catalog != nil {
		s.catalog.Invalidate(ctx, name)
	}
}

func (s *Service) owned(ctx context.Context, userID, domainID string) (*models.CustomDomain, error) {
	domain, err := s.store.GetByID(ctx, domainID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if domain.UserID != userID {
		return nil, ErrNotFound
	}
	return domain, nil
}

func (s *Service) checkOwnership(ctx context.Context, siteID, userID string) error {
	if strings.TrimSpace(siteID) == "" {
		return ErrForbidden
	}
	ok, err := s.sites.IsOwnedBy(ctx, siteID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func containsToken(records []string, token string) bool {
	if token == "" {
		return false
	}
	for _, r := range records {
		if strings.Contains(strings.Trim(r, "\""), token) {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.IsNotFound
}
