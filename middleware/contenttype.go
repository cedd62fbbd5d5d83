// middleware/contenttype.go
package middleware

import (
	"mime"
	"strings"
)

// IsJSON reports whether contentType names a JSON media type
// (application/json or a +json suffix type).
func IsJSON(contentType string) bool {
	ct := strings.TrimSpace(contentType)
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
