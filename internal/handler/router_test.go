package handler_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/broadcast-dispatcher/internal/controller"
	"github.com/unclebandit/broadcast-dispatcher/internal/handler"
	"github.com/unclebandit/broadcast-dispatcher/internal/metrics"
	"github.com/unclebandit/broadcast-dispatcher/internal/service"
)

type idleDispatcher struct{ calls int }

func (d *idleDispatcher) RunOnce(ctx context.Context) (service.Outcome, error) {
	d.calls++
	return service.Outcome{Kind: service.OutcomeIdle, Message: "No running campaigns to process"}, nil
}

func newServer(t *testing.T) (*httptest.Server, *idleDispatcher) {
	t.Helper()
	d := &idleDispatcher{}
	reg := prometheus.NewRegistry()
	m := metrics.New()
	m.MustRegister(reg)
	m.RateLimit()

	ctrl := &controller.DispatchController{Dispatcher: d, Log: zerolog.Nop()}
	srv := httptest.NewServer(handler.NewRouter(ctrl, reg))
	t.Cleanup(srv.Close)
	return srv, d
}

func assertCORS(t *testing.T, resp *http.Response) {
	t.Helper()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "authorization, x-client-info, apikey, content-type", resp.Header.Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
}

func TestPreflightOnAnyPath(t *testing.T) {
	srv, d := newServer(t)

	for _, path := range []string{"/", "/dispatch", "/anything/else"} {
		req, err := http.NewRequest(http.MethodOptions, srv.URL+path, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Empty(t, body)
		assertCORS(t, resp)
	}
	assert.Zero(t, d.calls)
}

func TestTriggerRoutes(t *testing.T) {
	srv, d := newServer(t)

	for _, path := range []string{"/", "/dispatch"} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, `{"message":"No running campaigns to process"}`, string(body))
		assertCORS(t, resp)
	}
	assert.Equal(t, 2, d.calls)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "dispatcher_rate_limited_total 1")
}

func TestTriggerRejectsGet(t *testing.T) {
	srv, d := newServer(t)

	resp, err := http.Get(srv.URL + "/dispatch")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Zero(t, d.calls)
}
