package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentgate/agentgate/internal/approval"
)

// health reports liveness and the session state.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"state":  string(s.controller.State()),
	})
}

// sessionStatus reports the session state and pending-confirmation count.
func (s *Server) sessionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"conversationID": s.conversationID,
		"state":          string(s.controller.State()),
		"pending":        s.engine.PendingCount(),
	})
}

// sendMessageRequest is the body of POST /session/message.
type sendMessageRequest struct {
	Text string `json:"text"`
}

// sendMessage delivers one user message to the agent.
func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "text is required")
		return
	}

	if err := s.controller.Send(r.Context(), req.Text); err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// listMessages returns the durable message records of the conversation.
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	records, err := s.history.List(r.Context(), s.conversationID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// respondPermissionRequest is the body of POST /permissions/{permissionID}.
type respondPermissionRequest struct {
	Option string `json:"option"`
}

// respondPermission resolves a pending permission request with one of the
// option identifiers. Unknown options deny.
func (s *Server) respondPermission(w http.ResponseWriter, r *http.Request) {
	permissionID := chi.URLParam(r, "permissionID")
	if permissionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "permission id is required")
		return
	}

	var req respondPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid JSON body")
		return
	}

	if err := s.engine.Resolve(r.Context(), permissionID, req.Option); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"decision": string(approval.FromOption(req.Option)),
	})
}
