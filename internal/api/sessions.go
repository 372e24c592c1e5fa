package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/effort"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/session"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/timeline"
)

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	writeJSONStatus(w, map[string]string{"session_id": sess.ID()}, http.StatusCreated)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, sess.Snapshot())
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	err := s.sessions.Close(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, session.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[api] close session: %v", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req session.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	err := sess.Submit(r.Context(), req)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
	case errors.Is(err, session.ErrEmptyMessage), errors.Is(err, effort.ErrUnknownEffort):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, session.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if err := sess.Cancel(r.Context()); err != nil {
		log.Printf("[api] cancel session %s: %v", sess.ID(), err)
	}
	w.WriteHeader(http.StatusAccepted)
}

type timelineResponse struct {
	Phase   string           `json:"phase"`
	Entries []timeline.Entry `json:"entries"`
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	entries, phase := sess.Timeline()
	writeJSON(w, timelineResponse{Phase: phase.String(), Entries: entries})
}

func (s *Server) getArchive(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	messageID := chi.URLParam(r, "messageID")
	entries, found := sess.Archived(messageID)
	if !found {
		http.Error(w, "no archived timeline for message", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"message_id": messageID, "entries": entries})
}

type effortLevel struct {
	Level string `json:"level"`
	effort.Budget
}

func (s *Server) listEffort(w http.ResponseWriter, r *http.Request) {
	levels := make([]effortLevel, 0, len(effort.Levels()))
	for _, level := range effort.Levels() {
		budget, err := level.Budget()
		if err != nil {
			continue
		}
		levels = append(levels, effortLevel{Level: string(level), Budget: budget})
	}
	writeJSON(w, map[string]any{"default": s.cfg.DefaultEffort, "levels": levels})
}
