package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func serve(t *testing.T, h http.Handler) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestHandler_Liveness(t *testing.T) {
	code, resp := serve(t, Handler(nil, 0, nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestHandler_ChecksPass(t *testing.T) {
	code, resp := serve(t, Handler(map[string]Check{
		"smtp": func(context.Context) error { return nil },
		"nil":  nil,
	}, time.Second, nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"smtp": "ok", "nil": "ok"}, resp.Checks)
}

func TestHandler_CheckFails(t *testing.T) {
	code, resp := serve(t, Handler(map[string]Check{
		"smtp": func(context.Context) error { return errors.New("dial tcp: refused") },
	}, time.Second, nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "error", resp.Checks["smtp"])
}

func TestHandler_FailureDetailOnlyLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	h := Handler(map[string]Check{
		"smtp": func(context.Context) error { return errors.New("535 5.7.8 bad credentials for owner@example.com") },
	}, time.Second, zap.New(core))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, `{"status":"error","checks":{"smtp":"error"}}`, rec.Body.String())
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].ContextMap()["error"], "owner@example.com")
}

func TestHandler_CheckTimeout(t *testing.T) {
	code, resp := serve(t, Handler(map[string]Check{
		"slow": func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}, 20*time.Millisecond, nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", resp.Checks["slow"])
}

func TestCached(t *testing.T) {
	var runs atomic.Int32
	check := Cached(func(context.Context) error {
		runs.Add(1)
		return errors.New("down")
	}, time.Hour)

	for i := 0; i < 3; i++ {
		assert.EqualError(t, check(context.Background()), "down")
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestCached_Expires(t *testing.T) {
	var runs atomic.Int32
	check := Cached(func(context.Context) error {
		runs.Add(1)
		return nil
	}, 20*time.Millisecond)

	require.NoError(t, check(context.Background()))
	require.NoError(t, check(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, check(context.Background()))
	assert.Equal(t, int32(2), runs.Load())
}

func TestCached_ZeroTTL(t *testing.T) {
	var runs atomic.Int32
	check := Cached(func(context.Context) error {
		runs.Add(1)
		return nil
	}, 0)
	_ = check(context.Background())
	_ = check(context.Background())
	assert.Equal(t, int32(2), runs.Load())
}

func TestMount(t *testing.T) {
	r := chi.NewRouter()
	Mount(r, nil)
	MountAt(r, "/ready", map[string]Check{"x": func(context.Context) error { return nil }}, 0, nil)

	for _, path := range []string{"/health", "/ready"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
