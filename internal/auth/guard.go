// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorman Contributors

package auth

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// DefaultProtectedPages are the destinations that require a session.
var DefaultProtectedPages = []string{string(DestinationDashboard), string(DestinationProfile)}

// PageGuard matches destinations against glob patterns of protected pages.
type PageGuard struct {
	patterns []string
	globs    []glob.Glob
}

// NewPageGuard compiles patterns. Matching uses '/' as the separator, so
// "admin/*" protects "admin/users.html" but not "admin/a/b.html".
func NewPageGuard(patterns ...string) (*PageGuard, error) {
	g := &PageGuard{}
	for _, p := range patterns {
		p = strings.TrimPrefix(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		compiled, err := glob.Compile(p, '/')
		if err != nil {
			return nil, oops.Code("AUTH_INVALID_PAGE_PATTERN").With("pattern", p).Wrap(err)
		}
		g.patterns = append(g.patterns, p)
		g.globs = append(g.globs, compiled)
	}
	return g, nil
}

// Protects reports whether dest requires a session.
func (g *PageGuard) Protects(dest Destination) bool {
	name := strings.TrimPrefix(string(dest), "/")
	for _, gl := range g.globs {
		if gl.Match(name) {
			return true
		}
	}
	return false
}

// Patterns returns the configured patterns.
func (g *PageGuard) Patterns() []string {
	return append([]string(nil), g.patterns...)
}
