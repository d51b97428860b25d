package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/voxkit/voxkit/pkg/callstart"
	"github.com/voxkit/voxkit/pkg/execution"
	"github.com/voxkit/voxkit/pkg/toolconfig"
	"github.com/voxkit/voxkit/pkg/variables"
)

// executeRequest is what the platform posts to the callback URL. Parameters
// may arrive flat or nested one level under a "parameters" key, depending on
// the platform's tool-call envelope.
type executeRequest struct {
	Parameters map[string]interface{} `json:"parameters"`
	Metadata   struct {
		CallerPhoneNumber string `json:"callerPhoneNumber"`
		CalledPhoneNumber string `json:"calledPhoneNumber"`
		CallID            string `json:"callId"`
	} `json:"metadata"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	toolID := chi.URLParam(r, "toolID")

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params := req.Parameters
	// Unwrap a nested parameters envelope.
	if nested, ok := params["parameters"].(map[string]interface{}); ok && len(params) == 1 {
		params = nested
	}
	delete(params, toolconfig.DummyField)

	vars := variables.Context{
		CallerPhoneNumber: req.Metadata.CallerPhoneNumber,
		CalledPhoneNumber: req.Metadata.CalledPhoneNumber,
		CallID:            req.Metadata.CallID,
	}

	result := s.executor.Execute(r.Context(), toolID, params, vars)

	status := http.StatusOK
	switch result.ErrorKind {
	case execution.KindNotFound:
		status = http.StatusNotFound
	case execution.KindPersistenceFailed, execution.KindActionFailed, execution.KindMessagingFailed:
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, result)
}

// callStartedRequest announces a newly connected call.
type callStartedRequest struct {
	AgentID           string `json:"agentId"`
	CallID            string `json:"callId"`
	CallerPhoneNumber string `json:"callerPhoneNumber"`
	CalledPhoneNumber string `json:"calledPhoneNumber"`
	ControlURL        string `json:"controlUrl"`
}

func (s *Server) handleCallStarted(w http.ResponseWriter, r *http.Request) {
	var req callStartedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusUnprocessableEntity, "agentId is required")
		return
	}

	info := callstart.CallInfo{
		AgentID:           req.AgentID,
		CallID:            req.CallID,
		CallerPhoneNumber: req.CallerPhoneNumber,
		CalledPhoneNumber: req.CalledPhoneNumber,
		ControlURL:        req.ControlURL,
	}

	// Fire-and-forget: the call must never wait on call-start tooling. The
	// run gets its own context because the request's context dies with this
	// handler.
	logger := zerolog.Ctx(r.Context())
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().Interface("panic", rec).Msg("Panic in call-start run")
			}
		}()
		s.callStarter.Run(context.Background(), info)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
