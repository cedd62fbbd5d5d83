// middleware/compress.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/portfolio/config"
	"github.com/go-chi/chi/v5/middleware"
)

// compressLevel balances speed and ratio for small JSON bodies.
const compressLevel = 5

// compressTypes are the content types this service emits.
var compressTypes = []string{"application/json", "text/plain"}

// CompressFromConfig returns a gzip/deflate middleware for JSON and text
// responses, or an identity middleware when compression is disabled.
func CompressFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.EnableCompression {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return middleware.Compress(compressLevel, compressTypes...)
}
