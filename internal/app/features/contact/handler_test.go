package contact_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/portfolio/internal/app/features/contact"
	"github.com/dalemusser/portfolio/mail"
	"github.com/dalemusser/portfolio/mail/mailtest"
	"github.com/dalemusser/portfolio/metrics"
	"github.com/dalemusser/portfolio/router"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const inbox = "owner-inbox@example.com"

// fakeSender records every message and fails when err is set.
type fakeSender struct {
	mu    sync.Mutex
	sent  []mail.Message
	err   error
	delay time.Duration
}

func (f *fakeSender) Send(ctx context.Context, msg mail.Message) error {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return f.err
}

func (f *fakeSender) calls() []mail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mail.Message(nil), f.sent...)
}

func newServer(t *testing.T, s contact.Sender, logger *zap.Logger) http.Handler {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	h, err := contact.NewHandler(s, inbox, logger)
	require.NoError(t, err)
	r := router.New(nil, logger)
	contact.Mount(r, h)
	return r
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestContact_Success(t *testing.T) {
	fs := &fakeSender{}
	srv := newServer(t, fs, nil)
	before := testutil.ToFloat64(metrics.ContactCounter(metrics.ResultSent))

	rec := post(t, srv, "/api/contact", `{"name":"Jane","email":"jane@x.com","message":"Hi"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"message":"Transmission successful!"}`, rec.Body.String())

	calls := fs.calls()
	require.Len(t, calls, 1)
	msg := calls[0]
	assert.Equal(t, []string{inbox}, msg.To)
	assert.Equal(t, "jane@x.com", msg.ReplyTo)
	assert.Equal(t, "New contact from Jane", msg.Subject)
	for _, body := range []string{msg.TextBody, msg.HTMLBody} {
		assert.Contains(t, body, "Jane")
		assert.Contains(t, body, "jane@x.com")
		assert.Contains(t, body, "Hi")
	}
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ContactCounter(metrics.ResultSent)))
}

func TestContact_MissingFieldsNeverSend(t *testing.T) {
	bodies := map[string]string{
		"empty name":     `{"name":"","email":"jane@x.com","message":"Hi"}`,
		"empty email":    `{"name":"Jane","email":"","message":"Hi"}`,
		"empty message":  `{"name":"Jane","email":"jane@x.com","message":""}`,
		"absent message": `{"name":"Jane","email":"jane@x.com"}`,
		"null name":      `{"name":null,"email":"jane@x.com","message":"Hi"}`,
		"empty object":   `{}`,
		"empty body":     ``,
		"malformed":      `{"name":"Jane",`,
		"wrong type":     `{"name":42,"email":"jane@x.com","message":"Hi"}`,
		"array":          `[]`,
		"unknown field":  `{"name":"Jane","email":"jane@x.com","message":"Hi","admin":true}`,
		"two values":     `{"name":"Jane","email":"jane@x.com","message":"Hi"}{}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			fs := &fakeSender{}
			srv := newServer(t, fs, nil)

			for _, path := range []string{"/api/contact", "/api/send-email"} {
				rec := post(t, srv, path, body)
				assert.Equal(t, http.StatusBadRequest, rec.Code, path)
				assert.Equal(t, `{"message":"All fields are required."}`, rec.Body.String(), path)
			}
			assert.Empty(t, fs.calls())
		})
	}
}

func TestContact_NonJSONContentTypeRejected(t *testing.T) {
	fs := &fakeSender{}
	srv := newServer(t, fs, nil)
	before := testutil.ToFloat64(metrics.ContactCounter(metrics.ResultRejected))

	for _, path := range []string{"/api/contact", "/api/send-email"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("name=Jane"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, `{"message":"All fields are required."}`, rec.Body.String(), path)
	}
	assert.Empty(t, fs.calls())
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.ContactCounter(metrics.ResultRejected)))
}

func TestContact_WhitespaceCountsAsPresent(t *testing.T) {
	fs := &fakeSender{}
	srv := newServer(t, fs, nil)

	rec := post(t, srv, "/api/contact", `{"name":" ","email":" ","message":" "}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, fs.calls(), 1)
}

func TestContact_SendFailureIsGeneric(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	fs := &fakeSender{err: errors.New("535 5.7.8 Username and Password not accepted")}
	srv := newServer(t, fs, zap.New(core))
	before := testutil.ToFloat64(metrics.ContactCounter(metrics.ResultFailed))

	rec := post(t, srv, "/api/contact", `{"name":"Jane","email":"jane@x.com","message":"Hi"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, `{"message":"Transmission failed. Please try again."}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "535")
	assert.Len(t, fs.calls(), 1)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ContactCounter(metrics.ResultFailed)))

	failed := logs.FilterMessage("contact send failed").All()
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].ContextMap()["error"], "535")
}

func TestContact_ReplyToIsNeverTransformed(t *testing.T) {
	for _, email := range []string{"Jane.Doe+portfolio@Example.COM", " jane@x.com ", "not-an-email"} {
		fs := &fakeSender{}
		srv := newServer(t, fs, nil)

		body := `{"name":"Jane","email":"` + email + `","message":"Hi"}`
		rec := post(t, srv, "/api/contact", body)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, fs.calls(), 1)
		assert.Equal(t, email, fs.calls()[0].ReplyTo)
	}
}

func TestContact_SubjectStaysOnOneLine(t *testing.T) {
	fs := &fakeSender{}
	srv := newServer(t, fs, nil)

	rec := post(t, srv, "/api/contact", `{"name":"Jane\r\nBcc: victim@example.com","email":"jane@x.com","message":"Hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "New contact from Jane Bcc: victim@example.com", fs.calls()[0].Subject)
}

func TestContact_HTMLIsEscaped(t *testing.T) {
	fs := &fakeSender{}
	srv := newServer(t, fs, nil)

	rec := post(t, srv, "/api/contact", `{"name":"Jane","email":"jane@x.com","message":"<script>alert(1)</script>"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	msg := fs.calls()[0]
	assert.NotContains(t, msg.HTMLBody, "<script>")
	assert.Contains(t, msg.HTMLBody, "&lt;script&gt;")
	assert.Contains(t, msg.TextBody, "<script>")
}

func TestContact_NotIdempotent(t *testing.T) {
	fs := &fakeSender{err: errors.New("relay down")}
	srv := newServer(t, fs, nil)
	body := `{"name":"Jane","email":"jane@x.com","message":"Hi"}`

	assert.Equal(t, http.StatusInternalServerError, post(t, srv, "/api/contact", body).Code)
	fs.mu.Lock()
	fs.err = nil
	fs.mu.Unlock()
	assert.Equal(t, http.StatusOK, post(t, srv, "/api/contact", body).Code)
	assert.Equal(t, http.StatusOK, post(t, srv, "/api/contact", body).Code)

	assert.Len(t, fs.calls(), 3)
}

func TestContact_ConcurrentSubmissionsAreIndependent(t *testing.T) {
	fs := &fakeSender{delay: 20 * time.Millisecond}
	srv := newServer(t, fs, nil)

	const n = 20
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = post(t, srv, "/api/contact", `{"name":"Jane","email":"jane@x.com","message":"Hi"}`).Code
		}(i)
	}
	wg.Wait()

	for _, c := range codes {
		assert.Equal(t, http.StatusOK, c)
	}
	assert.Len(t, fs.calls(), n)
}

func TestContact_MethodNotAllowed(t *testing.T) {
	fs := &fakeSender{}
	srv := newServer(t, fs, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/contact"},
		{http.MethodPut, "/api/contact"},
		{http.MethodGet, "/api/send-email"},
		{http.MethodDelete, "/api/send-email"},
	} {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, tc.method+" "+tc.path)
		assert.Equal(t, `{"message":"Method Not Allowed"}`, rec.Body.String())
	}
	assert.Empty(t, fs.calls())

	req := httptest.NewRequest(http.MethodGet, "/api/send-email", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
}

func TestContact_UnknownPathIsNotFound(t *testing.T) {
	srv := newServer(t, &fakeSender{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/nope", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, `{"message":"Not Found"}`, rec.Body.String())
}

func TestNewHandler_Validation(t *testing.T) {
	_, err := contact.NewHandler(nil, inbox, nil)
	assert.Error(t, err)
	_, err = contact.NewHandler(&fakeSender{}, "", nil)
	assert.Error(t, err)
}

// End to end through go-mail and a fake relay.
func TestContact_RealRelay(t *testing.T) {
	newMailSender := func(t *testing.T, relay *mailtest.Relay) *mail.Sender {
		s, err := mail.NewSender(mail.Config{
			Host:      relay.Host,
			Port:      relay.Port,
			Username:  "owner@example.com",
			Password:  "app-secret",
			FromName:  "Portfolio Contact",
			TLSPolicy: mail.TLSNone,
			Timeout:   2 * time.Second,
		})
		require.NoError(t, err)
		return s
	}
	body := `{"name":"Jane","email":"jane@x.com","message":"Hi"}`

	t.Run("scenario A: working relay", func(t *testing.T) {
		relay := mailtest.Start(t)
		srv := newServer(t, newMailSender(t, relay), nil)

		rec := post(t, srv, "/api/contact", body)
		require.Equal(t, http.StatusOK, rec.Code)

		msgs := relay.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, []string{inbox}, msgs[0].To)
		assert.Contains(t, msgs[0].Header("Reply-To"), "jane@x.com")
		assert.Equal(t, "New contact from Jane", msgs[0].Header("Subject"))
	})

	t.Run("scenario B: missing name never dials", func(t *testing.T) {
		relay := mailtest.Start(t)
		srv := newServer(t, newMailSender(t, relay), nil)

		rec := post(t, srv, "/api/contact", `{"name":"","email":"jane@x.com","message":"Hi"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Zero(t, relay.Dials())
	})

	t.Run("email that does not parse is still delivered", func(t *testing.T) {
		for _, email := range []string{"not-an-email", "jane at x dot com"} {
			relay := mailtest.Start(t)
			srv := newServer(t, newMailSender(t, relay), nil)

			rec := post(t, srv, "/api/contact", `{"name":"Jane","email":"`+email+`","message":"Hi"}`)
			require.Equal(t, http.StatusOK, rec.Code, email)
			assert.Equal(t, `{"message":"Transmission successful!"}`, rec.Body.String())

			msgs := relay.Messages()
			require.Len(t, msgs, 1, email)
			assert.Equal(t, email, msgs[0].Header("Reply-To"))
		}
	})

	t.Run("scenario C: auth rejected", func(t *testing.T) {
		relay := mailtest.Start(t, mailtest.RejectAuth())
		srv := newServer(t, newMailSender(t, relay), nil)

		rec := post(t, srv, "/api/contact", body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, `{"message":"Transmission failed. Please try again."}`, rec.Body.String())
		assert.Empty(t, relay.Messages())
	})
}
