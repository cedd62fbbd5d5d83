// router/router.go
package router

import (
	"github.com/dalemusser/portfolio/config"
	"github.com/dalemusser/portfolio/logging"
	"github.com/dalemusser/portfolio/metrics"
	"github.com/dalemusser/portfolio/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// New creates a chi.Router pre-wired with the standard middleware stack:
//   - RequestID, RealIP
//   - Recoverer (panic → 500)
//   - metrics and access logging
//   - security headers, CORS, compression (each per config)
//   - body size limit (MaxRequestBodyBytes)
//   - JSON NotFound / MethodNotAllowed handlers
//
// It mounts no routes; health, version and features are app decisions.
func New(coreCfg *config.CoreConfig, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Request context & safety
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logging.Recoverer(logger))

	// Metrics
	r.Use(metrics.HTTPMetrics)

	// Access logging
	r.Use(logging.RequestLogger(logger))

	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))
	r.Use(middleware.CORSFromConfig(coreCfg))
	r.Use(middleware.CompressFromConfig(coreCfg))

	// Body size limit (if configured)
	if coreCfg != nil {
		r.Use(middleware.LimitBodySize(coreCfg.MaxRequestBodyBytes))
	}

	// NotFound / MethodNotAllowed JSON handlers
	r.NotFound(middleware.NotFoundHandler(logger))
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler(logger))

	return r
}
