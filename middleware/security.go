// middleware/security.go
package middleware

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/portfolio/config"
)

// SecurityHeadersOptions configures the security headers middleware.
// An empty string (or zero HSTSMaxAge) leaves that header unset.
type SecurityHeadersOptions struct {
	XFrameOptions         string
	XContentTypeOptions   string
	ReferrerPolicy        string
	XSSProtection         string
	HSTSMaxAge            int // seconds; only sent over TLS
	HSTSIncludeSubDomains bool
	HSTSPreload           bool
	ContentSecurityPolicy string
	PermissionsPolicy     string
}

// DefaultSecurityHeadersOptions returns defaults for a JSON-only API: nothing
// may frame it, load resources from it, or sniff its content types.
func DefaultSecurityHeadersOptions() SecurityHeadersOptions {
	return SecurityHeadersOptions{
		XFrameOptions:         "DENY",
		XContentTypeOptions:   "nosniff",
		ReferrerPolicy:        "no-referrer",
		XSSProtection:         "0",
		HSTSMaxAge:            31536000,
		HSTSIncludeSubDomains: true,
		ContentSecurityPolicy: config.APIContentSecurityPolicy,
	}
}

func (o SecurityHeadersOptions) hsts() string {
	v := "max-age=" + strconv.Itoa(o.HSTSMaxAge)
	if o.HSTSIncludeSubDomains {
		v += "; includeSubDomains"
	}
	if o.HSTSPreload {
		v += "; preload"
	}
	return v
}

// SecurityHeaders returns middleware that sets the configured headers on
// every response.
func SecurityHeaders(opts SecurityHeadersOptions) func(next http.Handler) http.Handler {
	static := []struct{ name, value string }{
		{"X-Frame-Options", opts.XFrameOptions},
		{"X-Content-Type-Options", opts.XContentTypeOptions},
		{"Referrer-Policy", opts.ReferrerPolicy},
		{"X-XSS-Protection", opts.XSSProtection},
		{"Content-Security-Policy", opts.ContentSecurityPolicy},
		{"Permissions-Policy", opts.PermissionsPolicy},
	}
	hsts := opts.hsts()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, s := range static {
				if s.value != "" {
					h.Set(s.name, s.value)
				}
			}
			// HSTS over plain HTTP is ignored by browsers and breaks local dev.
			if opts.HSTSMaxAge > 0 && r.TLS != nil {
				h.Set("Strict-Transport-Security", hsts)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeadersFromConfig returns middleware configured from CoreConfig,
// or a no-op when enable_security_headers is false.
func SecurityHeadersFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.Security.EnableSecurityHeaders {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	s := coreCfg.Security
	return SecurityHeaders(SecurityHeadersOptions{
		XFrameOptions:         s.XFrameOptions,
		XContentTypeOptions:   s.XContentTypeOptions,
		ReferrerPolicy:        s.ReferrerPolicy,
		XSSProtection:         s.XSSProtection,
		HSTSMaxAge:            s.HSTSMaxAge,
		HSTSIncludeSubDomains: s.HSTSIncludeSubDomains,
		HSTSPreload:           s.HSTSPreload,
		ContentSecurityPolicy: s.ContentSecurityPolicy,
		PermissionsPolicy:     s.PermissionsPolicy,
	})
}
