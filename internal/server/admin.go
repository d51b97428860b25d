package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voxkit/voxkit/pkg/lifecycle"
	"github.com/voxkit/voxkit/pkg/toolconfig"
	"github.com/voxkit/voxkit/pkg/toolstore"
)

// orgHeader carries the caller's organization. Authentication itself is an
// upstream concern; by the time a request reaches this service the header is
// trusted.
const orgHeader = "X-Organization-ID"

func orgID(r *http.Request) string {
	return r.Header.Get(orgHeader)
}

func (s *Server) handleCreateTool(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeError(w, http.StatusForbidden, "missing organization")
		return
	}

	var cfg toolconfig.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tool, err := s.lifecycle.Create(r.Context(), org, cfg)
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tool)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeError(w, http.StatusForbidden, "missing organization")
		return
	}

	tools, err := s.lifecycle.List(r.Context(), org)
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

func (s *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeError(w, http.StatusForbidden, "missing organization")
		return
	}

	tool, err := s.lifecycle.Get(r.Context(), org, chi.URLParam(r, "toolID"))
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (s *Server) handleUpdateTool(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeError(w, http.StatusForbidden, "missing organization")
		return
	}

	var cfg toolconfig.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tool, err := s.lifecycle.Update(r.Context(), org, chi.URLParam(r, "toolID"), cfg)
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (s *Server) handleDeleteTool(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeError(w, http.StatusForbidden, "missing organization")
		return
	}

	if err := s.lifecycle.Delete(r.Context(), org, chi.URLParam(r, "toolID")); err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeError(w, http.StatusForbidden, "missing organization")
		return
	}

	err := s.lifecycle.Attach(r.Context(), org, chi.URLParam(r, "agentID"), chi.URLParam(r, "toolID"))
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	org := orgID(r)
	if org == "" {
		writeError(w, http.StatusForbidden, "missing organization")
		return
	}

	err := s.lifecycle.Detach(r.Context(), org, chi.URLParam(r, "agentID"), chi.URLParam(r, "toolID"))
	if err != nil {
		s.writeLifecycleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "detached"})
}

// writeLifecycleError maps lifecycle errors onto the outward status codes.
func (s *Server) writeLifecycleError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, toolconfig.ErrInvalid):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, toolstore.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, lifecycle.ErrAlreadyAttached),
		errors.Is(err, lifecycle.ErrMissingExternalID),
		errors.Is(err, lifecycle.ErrInvalidAttachmentMode):
		status = http.StatusConflict
	case errors.Is(err, lifecycle.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, lifecycle.ErrExternalCreate),
		errors.Is(err, lifecycle.ErrExternalUpdate),
		errors.Is(err, lifecycle.ErrExternalDelete):
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}

	if status >= 500 {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	writeError(w, status, err.Error())
}
