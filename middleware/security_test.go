package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/portfolio/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders_Defaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	SecurityHeaders(DefaultSecurityHeadersOptions())(okHandler()).ServeHTTP(rec, req)

	tests := []struct {
		header string
		want   string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "no-referrer"},
		{"X-XSS-Protection", "0"},
		{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	}
	for _, tt := range tests {
		if got := rec.Header().Get(tt.header); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
		}
	}

	// HSTS should NOT be set for non-TLS requests
	if hsts := rec.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS should not be set for HTTP requests, got %q", hsts)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	tests := []struct {
		name    string
		preload bool
		want    string
	}{
		{"default", false, "max-age=31536000; includeSubDomains"},
		{"preload", true, "max-age=31536000; includeSubDomains; preload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultSecurityHeadersOptions()
			opts.HSTSPreload = tt.preload

			req := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
			req.TLS = &tls.ConnectionState{}
			rec := httptest.NewRecorder()
			SecurityHeaders(opts)(okHandler()).ServeHTTP(rec, req)

			if got := rec.Header().Get("Strict-Transport-Security"); got != tt.want {
				t.Errorf("HSTS = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecurityHeaders_EmptyValuesOmitted(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec := httptest.NewRecorder()
	SecurityHeaders(SecurityHeadersOptions{})(okHandler()).ServeHTTP(rec, req)

	for _, header := range []string{
		"X-Frame-Options",
		"X-Content-Type-Options",
		"Referrer-Policy",
		"X-XSS-Protection",
		"Content-Security-Policy",
		"Strict-Transport-Security",
	} {
		if got := rec.Header().Get(header); got != "" {
			t.Errorf("%s should not be set when empty, got %q", header, got)
		}
	}
}

func TestSecurityHeadersFromConfig(t *testing.T) {
	enabled := &config.CoreConfig{}
	enabled.Security.EnableSecurityHeaders = true
	enabled.Security.XFrameOptions = "SAMEORIGIN"

	disabled := &config.CoreConfig{}

	tests := []struct {
		name string
		cfg  *config.CoreConfig
		want string
	}{
		{"enabled", enabled, "SAMEORIGIN"},
		{"disabled", disabled, ""},
		{"nil config", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			SecurityHeadersFromConfig(tt.cfg)(okHandler()).ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
			}
			if got := rec.Header().Get("X-Frame-Options"); got != tt.want {
				t.Errorf("X-Frame-Options = %q, want %q", got, tt.want)
			}
		})
	}
}
