package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDaemonURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
		ok   bool
	}{
		{":8080", "http://127.0.0.1:8080", true},
		{"0.0.0.0:8080", "http://127.0.0.1:8080", true},
		{"[::]:9000", "http://127.0.0.1:9000", true},
		{"10.1.2.3:8080", "http://10.1.2.3:8080", true},
		{"ops.internal:8443", "http://ops.internal:8443", true},
		{":0", "", false},
		{"8080", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			got, ok := daemonURL(tt.addr)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDaemonRunning(t *testing.T) {
	live := healthServer(t, http.StatusOK, `{"status":"ok"}`)
	assert.True(t, daemonRunning(testContext(), live.Listener.Addr().String()))

	other := healthServer(t, http.StatusOK, `{"status":"starting"}`)
	assert.False(t, daemonRunning(testContext(), other.Listener.Addr().String()))

	broken := healthServer(t, http.StatusInternalServerError, `{}`)
	assert.False(t, daemonRunning(testContext(), broken.Listener.Addr().String()))

	addr := live.Listener.Addr().String()
	live.Close()
	assert.False(t, daemonRunning(testContext(), addr))
}

func TestCheckNoDaemon(t *testing.T) {
	live := healthServer(t, http.StatusOK, `{"status":"ok"}`)
	addr := live.Listener.Addr().String()

	err := checkNoDaemon(testContext(), addr, "sweep", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POST /v1/jobs/sweep")

	assert.NoError(t, checkNoDaemon(testContext(), addr, "sweep", true))

	live.Close()
	assert.NoError(t, checkNoDaemon(testContext(), addr, "sweep", false))
}
