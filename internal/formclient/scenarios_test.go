package formclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/portfolio/config"
	"github.com/dalemusser/portfolio/internal/app/bootstrap"
	"github.com/dalemusser/portfolio/internal/formclient"
	"github.com/dalemusser/portfolio/mail/mailtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startService runs the real handler stack against relay.
func startService(t *testing.T, relay *mailtest.Relay) string {
	t.Helper()
	cfg, err := bootstrap.NewAppConfig(config.AppConfigValues{
		"mail_host":       relay.Host,
		"mail_port":       relay.Port,
		"mail_user":       "owner@example.com",
		"mail_password":   "app-secret",
		"mail_to":         "inbox@example.com",
		"mail_from_name":  "Portfolio Contact",
		"mail_tls_policy": "none",
		"mail_timeout":    "2s",
	})
	require.NoError(t, err)
	h, err := bootstrap.BuildHandler(nil, cfg, zap.NewNop())
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

var jane = formclient.Fields{Name: "Jane", Email: "jane@x.com", Message: "Hi"}

func TestScenarioA_Delivered(t *testing.T) {
	relay := mailtest.Start(t)
	f := formclient.New(startService(t, relay) + "/api/contact")
	f.SetFields(jane)

	require.NoError(t, f.Submit(context.Background()))
	assert.Equal(t, formclient.Success, f.Status())
	assert.Equal(t, formclient.Fields{}, f.Fields())
	assert.Equal(t, "Transmission successful!", f.Banner())

	msgs := relay.Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Header("Reply-To"), "jane@x.com")
}

func TestScenarioB_EndpointRejectsEmptyName(t *testing.T) {
	relay := mailtest.Start(t)
	url := startService(t, relay) + "/api/contact"

	// client-side check stops it before the network
	f := formclient.New(url)
	f.SetFields(formclient.Fields{Name: "", Email: "jane@x.com", Message: "Hi"})
	assert.ErrorIs(t, f.Submit(context.Background()), formclient.ErrMissingFields)
	assert.Equal(t, formclient.Error, f.Status())
	assert.Equal(t, "jane@x.com", f.Fields().Email)

	// whitespace passes the client but the server still sees content
	f.SetFields(formclient.Fields{Name: " ", Email: "jane@x.com", Message: "Hi"})
	require.NoError(t, f.Submit(context.Background()))

	// and the endpoint itself answers 400 with no relay contact
	dials := relay.Dials()
	resp, err := http.Post(url, "application/json",
		strings.NewReader(`{"name":"","email":"jane@x.com","message":"Hi"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, dials, relay.Dials())
}

func TestScenarioC_AuthRejected(t *testing.T) {
	relay := mailtest.Start(t, mailtest.RejectAuth())
	f := formclient.New(startService(t, relay) + "/api/contact")
	f.SetFields(jane)

	err := f.Submit(context.Background())
	var se *formclient.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, formclient.Error, f.Status())
	assert.Equal(t, jane, f.Fields())
	assert.Equal(t, "Transmission failed. Please try again.", f.Banner())
}

func TestScenarioD_LegacyGet(t *testing.T) {
	relay := mailtest.Start(t)
	resp, err := http.Get(startService(t, relay) + "/api/send-email")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}
