package server

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// OriginChecker accepts upgrade requests whose Origin is in the allow list.
// An empty list accepts every origin; requests without an Origin header come
// from non-browser clients and are always accepted.
type OriginChecker struct {
	allowed []string
}

func NewOriginChecker(allowed []string) *OriginChecker {
	normalized := make([]string, 0, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
		if origin != "" {
			normalized = append(normalized, origin)
		}
	}

	return &OriginChecker{
		normalized,
	}
}

func (c *OriginChecker) Check(r *http.Request) bool {
	if len(c.allowed) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}

	return slices.Contains(c.allowed, strings.ToLower(u.Scheme+"://"+u.Host))
}
