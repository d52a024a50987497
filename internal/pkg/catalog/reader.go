package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/learnerfast/learnerfast/app/models"
	"github.com/learnerfast/learnerfast/internal/pkg/cache"
	"github.com/learnerfast/learnerfast/internal/pkg/logger"
)

const (
	cacheKeyPrefix = "catalog:site:"
	DefaultTTL     = 60 * time.Second
)

// SiteLookup resolves sites by their subdomain url.
type SiteLookup interface {
	GetByURL(ctx context.Context, url string) (*models.Site, error)
	GetByID(ctx context.Context, id string) (*models.Site, error)
}

// DomainLookup resolves verified custom domains.
type DomainLookup interface {
	GetVerifiedByDomain(ctx context.Context, domain string) (*models.CustomDomain, error)
}

// CourseSource loads the courses exposed on a site.
type CourseSource interface {
	ListPublishedForSite(ctx context.Context, site *models.Site) ([]models.Course, error)
}

// Store is the byte cache in front of the catalog. *cache.Cache satisfies it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Options configures a Reader.
type Options struct {
	RootDomain string
	TTL        time.Duration
	Store      Store
	Log        *logger.Logger
}

// Reader builds the public course catalog of a website.
type Reader struct {
	sites      SiteLookup
	domains    DomainLookup
	courses    CourseSource
	store      Store
	rootDomain string
	ttl        time.Duration
	log        *logger.Logger
	group      singleflight.Group
}

func NewReader(sites SiteLookup, domains DomainLookup, courses CourseSource, opts Options) *Reader {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	return &Reader{
		sites:      sites,
		domains:    domains,
		courses:    courses,
		store:      opts.Store,
		rootDomain: strings.ToLower(strings.Trim(strings.TrimSpace(opts.RootDomain), ".")),
		ttl:        opts.TTL,
		log:        opts.Log,
	}
}

// CoursesJSON returns the encoded catalog for websiteName, served from the
// cache when possible. Concurrent misses for the same name share one build.
func (r *Reader) CoursesJSON(ctx context.Context, websiteName string) ([]byte, error) {
	name := normalizeName(websiteName)
	if name == "" {
		return json.Marshal(Response{Courses: []Course{}})
	}

	key := cacheKeyPrefix + name
	if r.store != nil {
		cached, err := r.store.Get(ctx, key)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			r.log.Warn("catalog cache read failed", "key", key, "error", err)
		}
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		resp, err := r.Build(ctx, name)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}
		if r.store != nil {
			if err := r.store.Set(ctx, key, body, r.ttl); err != nil {
				r.log.Warn("catalog cache write failed", "key", key, "error", err)
			}
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Invalidate drops the cached catalogs of the given website names.
func (r *Reader) Invalidate(ctx context.Context, websiteNames ...string) {
	if r.store == nil {
		return
	}
	keys := make([]string, 0, len(websiteNames))
	for _, n := range websiteNames {
		if name := normalizeName(n); name != "" {
			keys = append(keys, cacheKeyPrefix+name)
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := r.store.Delete(ctx, keys...); err != nil {
		r.log.Warn("catalog cache invalidation failed", "keys", keys, "error", err)
	}
}

// Build reads the catalog straight from the database.
func (r *Reader) Build(ctx context.Context, websiteName string) (*Response, error) {
	resp := &Response{Courses: []Course{}}
	site, err := r.ResolveSite(ctx, websiteName)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return resp, nil
	}

	courses, err := r.courses.ListPublishedForSite(ctx, site)
	if err != nil {
		return nil, err
	}

	slugs := slugSet{}
	for i := range courses {
		c := &courses[i]
		websiteIDs := linkedSiteIDs(c)
		if !contains(websiteIDs, site.ID) {
			continue
		}
		resp.Courses = append(resp.Courses, toCourse(c, websiteIDs, slugs))
	}
	return resp, nil
}

// ResolveSite finds the site for a subdomain name, its fully qualified form
// under the root domain, or a verified custom domain. It returns nil, nil when
// nothing matches.
func (r *Reader) ResolveSite(ctx context.Context, websiteName string) (*models.Site, error) {
	name := normalizeName(websiteName)
	if name == "" {
		return nil, nil
	}

	candidates := []string{name}
	if r.rootDomain != "" && !strings.HasSuffix(name, "."+r.rootDomain) {
		candidates = append(candidates, name+"."+r.rootDomain)
	}
	for _, url := range candidates {
		site, err := r.sites.GetByURL(ctx, url)
		if err == nil {
			return site, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if r.domains == nil {
		return nil, nil
	}
	domain, err := r.domains.GetVerifiedByDomain(ctx, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	site, err := r.sites.GetByID(ctx, domain.SiteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return site, nil
}

func toCourse(c *models.Course, websiteIDs []string, slugs slugSet) Course {
	out := Course{
		ID:          c.ID,
		Title:       c.Title,
		Description: c.Description,
		ImageURL:    c.ImageURL,
		WebsiteID:   websiteIDs,
		Sections:    []Section{},
		Pricing:     Pricing{Currency: "INR"},
	}

	slug := ""
	if c.Slug != nil {
		slug = strings.TrimSpace(*c.Slug)
	}
	if slug == "" {
		slug = Slugify(c.Title)
	}
	out.Slug = slugs.claim(slug)

	if s := c.Settings; s != nil {
		out.Label = s.Label
		out.WhatYouLearn = s.WhatYouLearn
		out.Instructor = Instructor{Name: s.InstructorName, Bio: s.InstructorBio, Image: s.InstructorImage}
	}
	if p := c.Pricing; p != nil {
		out.Pricing = Pricing{
			Price:          p.Price,
			Currency:       p.Currency,
			IsFree:         p.Free(),
			CompareAtPrice: p.CompareAtPrice,
		}
	}

	sections := append([]models.CourseSection(nil), c.Sections...)
	sort.SliceStable(sections, func(i, j int) bool {
		if sections[i].OrderIndex != sections[j].OrderIndex {
			return sections[i].OrderIndex < sections[j].OrderIndex
		}
		return sections[i].ID < sections[j].ID
	})
	for _, sec := range sections {
		activities := append([]models.CourseActivity(nil), sec.Activities...)
		sort.SliceStable(activities, func(i, j int) bool {
			if activities[i].OrderIndex != activities[j].OrderIndex {
				return activities[i].OrderIndex < activities[j].OrderIndex
			}
			return activities[i].ID < activities[j].ID
		})
		view := Section{ID: sec.ID, Title: sec.Title, OrderIndex: sec.OrderIndex, Activities: make([]Activity, 0, len(activities))}
		for _, a := range activities {
			view.Activities = append(view.Activities, Activity{
				ID:              a.ID,
				Title:           a.Title,
				Type:            models.NormalizeActivityType(a.Type),
				SourceURL:       a.SourceURL,
				OrderIndex:      a.OrderIndex,
				DurationSeconds: a.DurationSeconds,
			})
		}
		out.Sections = append(out.Sections, view)
	}
	return out
}

// linkedSiteIDs merges join-table links with the legacy comma list.
func linkedSiteIDs(c *models.Course) []string {
	ids := make([]string, 0, len(c.Sites))
	for _, s := range c.Sites {
		ids = append(ids, s.SiteID)
	}
	ids = append(ids, c.Settings.LegacyWebsiteIDs()...)
	return models.SplitIDList(strings.Join(ids, ","))
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(name), "."))
}
