// httputil/json.go
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// MessageResponse is the JSON envelope every public endpoint answers with:
//
//	{"message": "..."}
type MessageResponse struct {
	Message string `json:"message"`
}

var encodeLogger atomic.Pointer[zap.Logger]

// SetLogger configures the logger used for JSON encoding errors.
// Call once during startup.
func SetLogger(logger *zap.Logger) {
	encodeLogger.Store(logger)
}

// WriteJSON writes v as compact JSON with the given status code, with no
// trailing newline. Invalid status codes (outside 100-599) are clamped to
// 500. If v cannot be encoded the caller's status is dropped and a 500
// {"message":"Internal Server Error"} is sent instead.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}

	body, err := json.Marshal(v)
	if err != nil {
		if l := encodeLogger.Load(); l != nil {
			typeName := "nil"
			if v != nil {
				typeName = reflect.TypeOf(v).String()
			}
			l.Error("json encoding failed", zap.String("type", typeName), zap.Error(err))
		}
		status = http.StatusInternalServerError
		body = []byte(`{"message":"Internal Server Error"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteMessage writes {"message": msg} with the given status.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, MessageResponse{Message: msg})
}

// BindJSON decodes the request body as exactly one JSON value into v,
// rejecting unknown fields. The returned errors are safe to show clients.
func BindJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return parseJSONError(err)
	}

	// Anything after the first value makes the body ambiguous.
	if dec.More() {
		return errors.New("request body contains multiple JSON values")
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("request body contains multiple JSON values")
	}

	return nil
}

// parseJSONError converts json decoding errors into user-friendly messages.
func parseJSONError(err error) error {
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return fmt.Errorf("request body must be a JSON %s", typeErr.Type.Kind())
		}
		return fmt.Errorf("invalid value for field %q: expected %s", typeErr.Field, typeErr.Type.String())
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errors.New("request body too large")
	}

	// Format: json: unknown field "fieldname"
	if strings.HasPrefix(err.Error(), "json: unknown field") {
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return fmt.Errorf("unknown field %q", strings.Trim(field, "\""))
	}

	return errors.New("invalid JSON in request body")
}
