package catalog

import (
	"strconv"
	"strings"
)

// Slugify lowercases the title and collapses whitespace runs into "-".
func Slugify(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), "-")
}

// slugSet hands out slugs that are unique within one response.
type slugSet map[string]int

func (s slugSet) claim(slug string) string {
	if slug == "" {
		slug = "course"
	}
	n, taken := s[slug]
	if !taken {
		s[slug] = 1
		return slug
	}
	for {
		n++
		candidate := slug + "-" + strconv.Itoa(n)
		if _, exists := s[candidate]; !exists {
			s[slug] = n
			s[candidate] = 1
			return candidate
		}
	}
}
