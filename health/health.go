// health/health.go
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/portfolio/httputil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Check is a single probe. It returns nil when the dependency is usable.
type Check func(ctx context.Context) error

// Response is the JSON body of a health or readiness probe.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DefaultCheckTimeout bounds each check when Handler is given no timeout.
const DefaultCheckTimeout = 5 * time.Second

// Handler runs checks on every request, each bounded by timeout.
// With no checks it is a plain liveness probe answering {"status":"ok"}.
// Any failing check turns the answer into 503 with per-check results:
//
//	{"status":"error","checks":{"smtp":"error"}}
//
// Failure details go to the log only.
func Handler(checks map[string]Check, timeout time.Duration, logger *zap.Logger) http.Handler {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok"})
			return
		}

		results := make(map[string]string, len(checks))
		anyErr := false
		for _, name := range names {
			check := checks[name]
			if check == nil {
				results[name] = "ok"
				continue
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			err := check(ctx)
			cancel()
			if err != nil {
				anyErr = true
				results[name] = "error"
				logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
				continue
			}
			results[name] = "ok"
		}

		if anyErr {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, Response{Status: "error", Checks: results})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok", Checks: results})
	})
}

// Mount attaches a liveness probe at /health.
func Mount(r chi.Router, logger *zap.Logger) {
	r.Method(http.MethodGet, "/health", Handler(nil, 0, logger))
}

// MountAt attaches a probe running checks at path, e.g. "/ready".
func MountAt(r chi.Router, path string, checks map[string]Check, timeout time.Duration, logger *zap.Logger) {
	r.Method(http.MethodGet, path, Handler(checks, timeout, logger))
}

// Cached wraps check so it runs at most once per ttl; calls in between get
// the previous result. Concurrent callers wait for a single run.
// A ttl <= 0 returns check unchanged.
func Cached(check Check, ttl time.Duration) Check {
	if ttl <= 0 || check == nil {
		return check
	}
	var (
		mu      sync.Mutex
		checked time.Time
		last    error
	)
	return func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if !checked.IsZero() && time.Since(checked) < ttl {
			return last
		}
		last = check(ctx)
		checked = time.Now()
		return last
	}
}
