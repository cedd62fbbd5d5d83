// middleware/cors.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/portfolio/config"
	"github.com/go-chi/cors"
)

// CORSFromConfig returns a CORS middleware built from coreCfg.CORS, for the
// case where the portfolio front-end is served from another origin and posts
// the contact form cross-site.
//
// If CORS is disabled it returns an identity middleware, so it is safe to call
// unconditionally:
//
//	r.Use(middleware.CORSFromConfig(coreCfg))
func CORSFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.CORS.EnableCORS {
		// No-op middleware
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	headers := coreCfg.CORS.CORSAllowedHeaders
	if len(headers) == 0 {
		// the form client always sends a JSON content type
		headers = []string{"Content-Type"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   coreCfg.CORS.CORSAllowedOrigins,
		AllowedMethods:   coreCfg.CORS.CORSAllowedMethods,
		AllowedHeaders:   headers,
		ExposedHeaders:   coreCfg.CORS.CORSExposedHeaders,
		AllowCredentials: coreCfg.CORS.CORSAllowCredentials,
		MaxAge:           coreCfg.CORS.CORSMaxAge,
	})
}
