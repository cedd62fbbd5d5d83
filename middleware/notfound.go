// middleware/notfound.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/portfolio/httputil"
	"go.uber.org/zap"
)

// Bodies shared by the router-level handlers and the legacy contact route so
// every 404/405 this service emits looks the same.
const (
	NotFoundMessage         = "Not Found"
	MethodNotAllowedMessage = "Method Not Allowed"
)

func writeMessage(w http.ResponseWriter, status int, msg string) {
	httputil.WriteMessage(w, status, msg)
}

// NotFoundHandler returns a handler that logs a 404 and answers
// {"message":"Not Found"}. Pass it to chi.Router.NotFound.
func NotFoundHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logger != nil {
			logger.Info("not_found",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_ip", r.RemoteAddr),
			)
		}
		writeMessage(w, http.StatusNotFound, NotFoundMessage)
	}
}

// MethodNotAllowedHandler returns a handler that logs a 405 and answers
// {"message":"Method Not Allowed"}. Pass it to chi.Router.MethodNotAllowed.
func MethodNotAllowedHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logger != nil {
			logger.Info("method_not_allowed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_ip", r.RemoteAddr),
			)
		}
		writeMessage(w, http.StatusMethodNotAllowed, MethodNotAllowedMessage)
	}
}
