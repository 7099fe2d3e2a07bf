// internal/controller/dispatch_controller.go
package controller

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/broadcast-dispatcher/internal/errors"
	"github.com/unclebandit/broadcast-dispatcher/internal/service"
)

// Dispatcher runs one dispatch cycle against the oldest running campaign.
type Dispatcher interface {
	RunOnce(ctx context.Context) (service.Outcome, error)
}

type DispatchController struct {
	Dispatcher Dispatcher
	Log        zerolog.Logger
}

// Dispatch ignores the request body. The cycle runs on a context detached from
// the request so a client hanging up does not abandon a chunk half-committed.
func (c *DispatchController) Dispatch(w http.ResponseWriter, r *http.Request) {
	outcome, err := c.Dispatcher.RunOnce(context.WithoutCancel(r.Context()))
	if err != nil {
		status := http.StatusInternalServerError
		if appErrors.IsFatal(err) {
			status = http.StatusBadRequest
		}
		c.Log.Error().Err(err).Int("status", status).Msg("dispatch failed")
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	if outcome.Report == nil {
		writeJSON(w, http.StatusOK, map[string]string{"message": outcome.Message})
		return
	}
	writeJSON(w, http.StatusOK, outcome.Report)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
