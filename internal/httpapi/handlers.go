package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/course-realtime-dashboard/internal/hub"
	"github.com/DoyleJ11/course-realtime-dashboard/internal/view"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const stateTimeout = 2 * time.Second

type handlers struct {
	hub    *hub.Hub
	logger *zap.Logger
	loc    *time.Location
}

type sessionResponse struct {
	ID       string `json:"id"`
	Identity string `json:"identity"`
	Endpoint string `json:"endpoint"`
	Phase    string `json:"phase"`
}

func describe(s *hub.Session) sessionResponse {
	return sessionResponse{
		ID:       s.ID,
		Identity: s.Manager.Identity(),
		Endpoint: s.Manager.Endpoint(),
		Phase:    s.Manager.Phase().String(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *handlers) session(w http.ResponseWriter, r *http.Request) *hub.Session {
	reply := make(chan *hub.Session, 1)
	h.hub.Inbox() <- hub.GetSession{ID: chi.URLParam(r, "id"), Reply: reply}
	s := <-reply
	if s == nil {
		http.Error(w, "session not found", http.StatusNotFound)
	}
	return s
}

func (h *handlers) MountSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID string `json:"userId"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
	}

	reply := make(chan hub.MountResult, 1)
	h.hub.Inbox() <- hub.Mount{UserID: body.UserID, Reply: reply}
	res := <-reply
	if res.Err != nil {
		h.logger.Error("mount session", zap.Error(res.Err))
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, describe(res.Session))
}

func (h *handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	reply := make(chan []*hub.Session, 1)
	h.hub.Inbox() <- hub.ListSessions{Reply: reply}
	out := []sessionResponse{}
	for _, s := range <-reply {
		out = append(out, describe(s))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) UnmountSession(w http.ResponseWriter, r *http.Request) {
	reply := make(chan bool, 1)
	h.hub.Inbox() <- hub.Unmount{ID: chi.URLParam(r, "id"), Reply: reply}
	if !<-reply {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) State(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	ctx, cancel := withStateTimeout(r)
	defer cancel()
	v, ok := s.Store.State(ctx)
	if !ok {
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Version int    `json:"version"`
		Phase   string `json:"phase"`
		State   any    `json:"state"`
	}{v.Version, s.Manager.Phase().String(), v.State})
}

func (h *handlers) Activity(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	ctx, cancel := withStateTimeout(r)
	defer cancel()
	v, ok := s.Store.State(ctx)
	if !ok {
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, view.Activity(v.State, h.loc))
}

// Monitor renders the tabbed view. Tab and expanded rows are request
// parameters: ?tab=score_changes&expand=<row key>&expand=<row key>.
func (h *handlers) Monitor(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	q := r.URL.Query()
	mon := view.NewMonitor(h.loc)
	mon.SelectTab(view.ParseTab(q.Get("tab")))
	for _, key := range q["expand"] {
		mon.Expand(key)
	}

	ctx, cancel := withStateTimeout(r)
	defer cancel()
	v, ok := s.Store.State(ctx)
	if !ok {
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, mon.Render(v.State))
}

func (h *handlers) Reconnect(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	s.Manager.Reconnect()
	w.WriteHeader(http.StatusAccepted)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func withStateTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), stateTimeout)
}
