// Package formclient is the visitor side of the contact form: it holds the
// three fields and the submission status, and POSTs to the contact endpoint.
package formclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Status is the lifecycle state of a Form.
type Status int

const (
	Idle Status = iota
	Submitting
	Success
	Error
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Success:
		return "success"
	case Error:
		return "error"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Banner texts used when the server sent no message.
const (
	BannerSuccess = "Message sent. Thank you!"
	BannerError   = "Something went wrong. Please try again."
	BannerMissing = "All fields are required."
)

var (
	// ErrSubmitting is returned when Submit is called while a submission is
	// in flight.
	ErrSubmitting = errors.New("formclient: submission already in progress")

	// ErrMissingFields is returned when any field is empty; nothing is sent.
	ErrMissingFields = errors.New("formclient: all fields are required")
)

// StatusError is a non-2xx answer from the endpoint.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("formclient: server answered %d", e.Code)
	}
	return fmt.Sprintf("formclient: server answered %d: %s", e.Code, e.Message)
}

// Fields are the user-editable inputs.
type Fields struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (f Fields) complete() bool {
	return f.Name != "" && f.Email != "" && f.Message != ""
}

// Form is safe for concurrent use. The zero value is not usable; call New.
type Form struct {
	endpoint string
	client   *http.Client

	mu      sync.Mutex
	fields  Fields
	status  Status
	message string
}

// Option configures a Form.
type Option func(*Form)

// WithHTTPClient replaces the default client (60s timeout, longer than the
// server's relay timeout). A nil client is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Form) {
		if c != nil {
			f.client = c
		}
	}
}

// New returns an idle Form that posts to endpoint, e.g.
// "https://example.com/api/contact".
func New(endpoint string, opts ...Option) *Form {
	f := &Form{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// SetFields replaces all three fields. It is ignored while submitting.
func (f *Form) SetFields(fields Fields) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == Submitting {
		return
	}
	f.fields = fields
}

// Fields returns the current field values.
func (f *Form) Fields() Fields {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fields
}

// Status returns the current state.
func (f *Form) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Banner returns the text to show for the current state; empty while idle
// or submitting.
func (f *Form) Banner() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.status {
	case Success:
		if f.message != "" {
			return f.message
		}
		return BannerSuccess
	case Error:
		if f.message != "" {
			return f.message
		}
		return BannerError
	}
	return ""
}

// Submit posts the fields once. On 2xx the fields are cleared and the form
// moves to Success; on any other outcome it moves to Error and keeps the
// fields. There is no automatic retry.
func (f *Form) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.status == Submitting {
		f.mu.Unlock()
		return ErrSubmitting
	}
	if !f.fields.complete() {
		f.status, f.message = Error, BannerMissing
		f.mu.Unlock()
		return ErrMissingFields
	}
	fields := f.fields
	f.status, f.message = Submitting, ""
	f.mu.Unlock()

	msg, err := f.post(ctx, fields)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	if err != nil {
		f.status = Error
		return err
	}
	f.status = Success
	f.fields = Fields{}
	return nil
}

type messageBody struct {
	Message string `json:"message"`
}

// post returns the server's message (if any) and an error for anything
// other than a 2xx answer.
func (f *Form) post(ctx context.Context, fields Fields) (string, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("formclient: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("formclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("formclient: send: %w", err)
	}
	defer resp.Body.Close()

	var mb messageBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &mb)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return mb.Message, &StatusError{Code: resp.StatusCode, Message: mb.Message}
	}
	return mb.Message, nil
}
