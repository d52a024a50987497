package domains

import (
	"errors"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrInvalidDomain = errors.New("invalid domain")
	ErrRootDomain    = errors.New("platform domains cannot be added as custom domains")
)

// Normalize turns user input such as "https://Shop.Example.com/path" into the
// ASCII hostname "shop.example.com". rootDomain and its subdomains are refused.
func Normalize(raw, rootDomain string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return "", ErrInvalidDomain
	}

	ascii, err := idna.Lookup.ToASCII(s)
	if err != nil {
		return "", ErrInvalidDomain
	}
	labels := strings.Split(ascii, ".")
	if len(labels) < 2 || len(ascii) > 253 {
		return "", ErrInvalidDomain
	}
	for _, l := range labels {
		if l == "" || len(l) > 63 || !isHostLabel(l) {
			return "", ErrInvalidDomain
		}
	}
	if isAllDigits(labels[len(labels)-1]) {
		return "", ErrInvalidDomain
	}

	root := strings.ToLower(strings.Trim(strings.TrimSpace(rootDomain), "."))
	if root != "" && (ascii == root || strings.HasSuffix(ascii, "."+root)) {
		return "", ErrRootDomain
	}
	return ascii, nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isHostLabel(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		default:
			return false
		}
	}
	return true
}
