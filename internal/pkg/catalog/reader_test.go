package catalog

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/learnerfast/learnerfast/app/models"
	"github.com/learnerfast/learnerfast/internal/pkg/cache"
)

type fakeSites struct {
	byURL map[string]*models.Site
}

func (f *fakeSites) GetByURL(_ context.Context, url string) (*models.Site, error) {
	if s, ok := f.byURL[url]; ok {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeSites) GetByID(_ context.Context, id string) (*models.Site, error) {
	for _, s := range f.byURL {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeDomains struct {
	verified map[string]*models.CustomDomain
}

func (f *fakeDomains) GetVerifiedByDomain(_ context.Context, domain string) (*models.CustomDomain, error) {
	if d, ok := f.verified[domain]; ok {
		return d, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// fakeCourses returns every course regardless of site so the reader's own
// link filter is what gets tested.
type fakeCourses struct {
	courses []models.Course
	calls   int32
	delay   time.Duration
}

func (f *fakeCourses) ListPublishedForSite(_ context.Context, _ *models.Site) ([]models.Course, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.courses, nil
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]byte{}
	}
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func strPtr(s string) *string { return &s }

func testFixtures() (*fakeSites, *fakeCourses) {
	sites := &fakeSites{byURL: map[string]*models.Site{
		"academy":               {ID: "site-1", UserID: "owner", URL: "academy"},
		"other.learnerfast.com": {ID: "site-10", UserID: "owner", URL: "other.learnerfast.com"},
	}}
	courses := &fakeCourses{courses: []models.Course{
		{
			ID:       "c-join",
			Title:    "Go  Basics",
			Status:   models.CourseStatusPublished,
			Sites:    []models.CourseSite{{CourseID: "c-join", SiteID: "site-1"}},
			Pricing:  &models.CoursePricing{Price: 499, Currency: "INR"},
			Settings: &models.CourseSettings{Label: "new", InstructorName: "Asha"},
			Sections: []models.CourseSection{
				{ID: "s-b", Title: "Second", OrderIndex: 2},
				{ID: "s-z", Title: "First z", OrderIndex: 1, Activities: []models.CourseActivity{
					{ID: "a2", Title: "Two", Type: "video", OrderIndex: 2},
					{ID: "a1", Title: "One", Type: "weird", OrderIndex: 1},
				}},
				{ID: "s-a", Title: "First a", OrderIndex: 1},
			},
		},
		{
			ID:       "c-legacy",
			Title:    "Go Basics",
			Status:   models.CourseStatusPublished,
			Settings: &models.CourseSettings{WebsiteID: " site-2 , site-1 "},
		},
		{
			ID:       "c-substring",
			Title:    "Not Here",
			Status:   models.CourseStatusPublished,
			Settings: &models.CourseSettings{WebsiteID: "site-10,site-11"},
		},
		{
			ID:     "c-slug",
			Title:  "Whatever",
			Slug:   strPtr("custom-slug"),
			Status: models.CourseStatusPublished,
			Sites:  []models.CourseSite{{CourseID: "c-slug", SiteID: "site-1"}},
		},
	}}
	return sites, courses
}

func TestBuildFiltersCoursesBySiteLink(t *testing.T) {
	sites, courses := testFixtures()
	r := NewReader(sites, nil, courses, Options{RootDomain: "learnerfast.com"})

	resp, err := r.Build(context.Background(), "academy")
	require.NoError(t, err)

	ids := make([]string, 0, len(resp.Courses))
	for _, c := range resp.Courses {
		ids = append(ids, c.ID)
		assert.Contains(t, c.WebsiteID, "site-1", "course %s", c.ID)
	}
	assert.Equal(t, []string{"c-join", "c-legacy", "c-slug"}, ids)
}

func TestBuildUnknownSiteReturnsEmptyList(t *testing.T) {
	sites, courses := testFixtures()
	r := NewReader(sites, &fakeDomains{}, courses, Options{RootDomain: "learnerfast.com"})

	body, err := r.CoursesJSON(context.Background(), "ghost")
	require.NoError(t, err)
	assert.JSONEq(t, `{"courses":[]}`, string(body))
	assert.Equal(t, int32(0), courses.calls)

	body, err = r.CoursesJSON(context.Background(), "  ")
	require.NoError(t, err)
	assert.JSONEq(t, `{"courses":[]}`, string(body))
}

func TestResolveSiteVariants(t *testing.T) {
	sites, _ := testFixtures()
	domains := &fakeDomains{verified: map[string]*models.CustomDomain{
		"courses.example.com": {SiteID: "site-1", Domain: "courses.example.com", Status: models.DomainStatusVerified},
	}}
	r := NewReader(sites, domains, nil, Options{RootDomain: "learnerfast.com"})
	ctx := context.Background()

	tests := []struct {
		name string
		want string
	}{
		{"academy", "site-1"},
		{"ACADEMY", "site-1"},
		{"other", "site-10"},
		{"other.learnerfast.com", "site-10"},
		{"courses.example.com", "site-1"},
		{"ghost", ""},
	}
	for _, tt := range tests {
		site, err := r.ResolveSite(ctx, tt.name)
		if err != nil {
			t.Fatalf("ResolveSite(%q) error: %v", tt.name, err)
		}
		got := ""
		if site != nil {
			got = site.ID
		}
		if got != tt.want {
			t.Fatalf("ResolveSite(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestBuildOrdersSectionsAndActivities(t *testing.T) {
	sites, courses := testFixtures()
	r := NewReader(sites, nil, courses, Options{})

	resp, err := r.Build(context.Background(), "academy")
	require.NoError(t, err)
	require.NotEmpty(t, resp.Courses)

	c := resp.Courses[0]
	require.Len(t, c.Sections, 3)
	assert.Equal(t, "s-a", c.Sections[0].ID)
	assert.Equal(t, "s-z", c.Sections[1].ID)
	assert.Equal(t, "s-b", c.Sections[2].ID)

	acts := c.Sections[1].Activities
	require.Len(t, acts, 2)
	assert.Equal(t, "a1", acts[0].ID)
	assert.Equal(t, models.ActivityTypeOther, acts[0].Type)
	assert.Equal(t, "a2", acts[1].ID)
	assert.NotNil(t, c.Sections[0].Activities)
}

func TestBuildSlugsAreUniquePerResponse(t *testing.T) {
	sites, courses := testFixtures()
	r := NewReader(sites, nil, courses, Options{})

	resp, err := r.Build(context.Background(), "academy")
	require.NoError(t, err)
	require.Len(t, resp.Courses, 3)

	assert.Equal(t, "go-basics", resp.Courses[0].Slug)
	assert.Equal(t, "go-basics-2", resp.Courses[1].Slug)
	assert.Equal(t, "custom-slug", resp.Courses[2].Slug)
}

func TestBuildMapsPricingAndInstructor(t *testing.T) {
	sites, courses := testFixtures()
	r := NewReader(sites, nil, courses, Options{})

	resp, err := r.Build(context.Background(), "academy")
	require.NoError(t, err)

	first := resp.Courses[0]
	assert.Equal(t, 499.0, first.Pricing.Price)
	assert.False(t, first.Pricing.IsFree)
	assert.Equal(t, "Asha", first.Instructor.Name)
	assert.Equal(t, "new", first.Label)

	legacy := resp.Courses[1]
	assert.Equal(t, "INR", legacy.Pricing.Currency)
	assert.Equal(t, []string{"site-2", "site-1"}, legacy.WebsiteID)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Go Basics":          "go-basics",
		"  Many   spaces\tx ": "many-spaces-x",
		"UPPER":              "upper",
		"":                   "",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSlugSetClaim(t *testing.T) {
	s := slugSet{}
	assert.Equal(t, "intro", s.claim("intro"))
	assert.Equal(t, "intro-2", s.claim("intro"))
	assert.Equal(t, "intro-3", s.claim("intro"))
	assert.Equal(t, "course", s.claim(""))
}

func TestCoursesJSONUsesCache(t *testing.T) {
	sites, courses := testFixtures()
	store := &memoryStore{}
	r := NewReader(sites, nil, courses, Options{Store: store})
	ctx := context.Background()

	first, err := r.CoursesJSON(ctx, "academy")
	require.NoError(t, err)
	second, err := r.CoursesJSON(ctx, "Academy")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&courses.calls))
	assert.Contains(t, store.data, "catalog:site:academy")

	var resp Response
	require.NoError(t, json.Unmarshal(first, &resp))
	assert.Len(t, resp.Courses, 3)
}

func TestInvalidateDropsCachedCatalog(t *testing.T) {
	sites, courses := testFixtures()
	store := &memoryStore{}
	r := NewReader(sites, nil, courses, Options{Store: store})
	ctx := context.Background()

	_, err := r.CoursesJSON(ctx, "academy")
	require.NoError(t, err)
	require.Contains(t, store.data, "catalog:site:academy")

	r.Invalidate(ctx, "Academy", "")
	assert.NotContains(t, store.data, "catalog:site:academy")

	_, err = r.CoursesJSON(ctx, "academy")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&courses.calls))

	NewReader(sites, nil, courses, Options{}).Invalidate(ctx, "academy")
}

func TestCoursesJSONCollapsesConcurrentMisses(t *testing.T) {
	sites, courses := testFixtures()
	courses.delay = 50 * time.Millisecond
	r := NewReader(sites, nil, courses, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.CoursesJSON(context.Background(), "academy")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Less(t, atomic.LoadInt32(&courses.calls), int32(8))
}
