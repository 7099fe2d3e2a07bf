package controller_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/broadcast-dispatcher/internal/controller"
	appErrors "github.com/unclebandit/broadcast-dispatcher/internal/errors"
	"github.com/unclebandit/broadcast-dispatcher/internal/service"
)

// --- Mock Dispatcher ---

type MockDispatcher struct {
	outcome  service.Outcome
	err      error
	calls    int
	ctxAlive bool
}

func (m *MockDispatcher) RunOnce(ctx context.Context) (service.Outcome, error) {
	m.calls++
	m.ctxAlive = ctx.Err() == nil
	return m.outcome, m.err
}

func serve(t *testing.T, d *MockDispatcher) *httptest.ResponseRecorder {
	t.Helper()
	ctrl := &controller.DispatchController{Dispatcher: d, Log: zerolog.Nop()}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"campaignId":"ignored"}`))
	w := httptest.NewRecorder()
	ctrl.Dispatch(w, req)
	return w
}

func TestDispatchReportsProgress(t *testing.T) {
	d := &MockDispatcher{outcome: service.Outcome{
		Kind: service.OutcomeDispatched,
		Report: &service.Report{
			CampaignID: "c1", Progress: 42, SentCount: 50, SuccessCount: 48,
			ErrorCount: 2, TotalCount: 120, AvgTimePerItem: 310,
		},
	}}

	w := serve(t, d)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{
		"campaignId":"c1","progress":42,"sentCount":50,"successCount":48,
		"errorCount":2,"totalCount":120,"isComplete":false,"avgTimePerItem":310
	}`, w.Body.String())
	assert.Equal(t, 1, d.calls)
}

func TestDispatchNothingToDo(t *testing.T) {
	d := &MockDispatcher{outcome: service.Outcome{Kind: service.OutcomeIdle, Message: "No running campaigns to process"}}

	w := serve(t, d)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"No running campaigns to process"}`, w.Body.String())
}

func TestDispatchErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"destination missing", appErrors.NewDestinationNotFound("d1"), http.StatusBadRequest},
		{"no credential", appErrors.NewNoCredential("u1"), http.StatusBadRequest},
		{"store down", errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, &MockDispatcher{err: tt.err})

			require.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, `{"error":"`+tt.err.Error()+`"}`, w.Body.String())
		})
	}
}

func TestDispatchSurvivesClientDisconnect(t *testing.T) {
	d := &MockDispatcher{outcome: service.Outcome{Kind: service.OutcomeIdle}}
	ctrl := &controller.DispatchController{Dispatcher: d, Log: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(ctx)
	ctrl.Dispatch(httptest.NewRecorder(), req)

	assert.True(t, d.ctxAlive)
}
