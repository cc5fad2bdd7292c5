// Package cors answers cross-origin requests for the control API.
//
// With no configured origins every origin is allowed, which is what a
// dashboard hosted elsewhere needs to call POST /start-stream. Listing
// origins restricts access to exactly those scheme://host pairs.
package cors

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	allowMethods = "GET, POST, OPTIONS"
	allowHeaders = "Content-Type, X-Request-ID"
)

// Policy is the set of allowed origins. A zero Policy allows any origin.
type Policy struct {
	allowed map[string]struct{}
}

// NewPolicy normalises origins into a Policy.
func NewPolicy(origins []string) (Policy, error) {
	p := Policy{}
	for _, origin := range origins {
		normalized, err := normalizeOrigin(origin)
		if err != nil {
			return Policy{}, fmt.Errorf("parse origin %q: %w", origin, err)
		}
		if normalized == "" {
			continue
		}
		if p.allowed == nil {
			p.allowed = make(map[string]struct{})
		}
		p.allowed[normalized] = struct{}{}
	}
	return p, nil
}

// Allows reports whether origin may call the API.
func (p Policy) Allows(origin string) bool {
	if len(p.allowed) == 0 {
		return true
	}
	normalized, err := normalizeOrigin(origin)
	if err != nil {
		return false
	}
	_, ok := p.allowed[normalized]
	return ok
}

func normalizeOrigin(origin string) (string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", nil
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("origin must include scheme and host")
	}
	return fmt.Sprintf("%s://%s", strings.ToLower(parsed.Scheme), strings.ToLower(parsed.Host)), nil
}

// Middleware returns chi-compatible middleware applying p.
func Middleware(p Policy, log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !p.Allows(origin) {
				if log != nil {
					log.Warn("blocked CORS origin", slog.String("origin", origin), slog.String("path", r.URL.Path))
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"Origin not allowed"}` + "\n"))
				return
			}

			if len(p.allowed) == 0 {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", allowMethods)
				w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
