package contactctl

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func run(args ...string) (int, string, string) {
	var out, errOut bytes.Buffer
	code := Run("contactctl", args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRun_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["name"] == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"Transmission failed. Please try again."}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"Transmission successful!"}`))
	}))
	defer srv.Close()

	code, out, _ := run("send", "--endpoint", srv.URL, "--name", "Jane", "--email", "jane@x.com", "--message", "Hi")
	assert.Equal(t, 0, code)
	assert.Equal(t, "Transmission successful!\n", out)

	code, _, errOut := run("send", "--endpoint", srv.URL, "--name", "fail", "--email", "jane@x.com", "--message", "Hi")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Transmission failed. Please try again.")
}

func TestRun_SendMissingFields(t *testing.T) {
	code, _, errOut := run("send", "--endpoint", "http://127.0.0.1:1", "--name", "Jane")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "All fields are required.")
}

func TestRun_Usage(t *testing.T) {
	code, _, errOut := run()
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Usage:")

	code, _, errOut = run("bogus")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, `unknown command: "bogus"`)

	code, out, _ := run("version")
	assert.Equal(t, 0, code)
	assert.Equal(t, "dev\n", out)
}
