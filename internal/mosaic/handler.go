package mosaic

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the mosaic boundary API over HTTP using go-chi.
type Handler struct {
	svc        *Service
	log        *slog.Logger
	publicBase string
	content    http.Handler
}

// NewHandler returns a Handler for the given service. publicBase is the
// absolute base URL under which this server is reachable; it prefixes the
// manifest locator returned by start. workspaceRoot is served read-only under
// /mosaic/content/ so the locator actually resolves.
func NewHandler(svc *Service, log *slog.Logger, publicBase, workspaceRoot string) *Handler {
	return &Handler{
		svc:        svc,
		log:        log,
		publicBase: strings.TrimRight(publicBase, "/"),
		content:    http.StripPrefix("/mosaic/content/", http.FileServer(http.Dir(workspaceRoot))),
	}
}

// Routes mounts the boundary API under /mosaic. Control endpoints require a
// valid bearer token; content is served without one because media players
// fetching the manifest cannot attach credentials.
func (h *Handler) Routes(r chi.Router, v Validator) {
	r.Route("/mosaic", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(v, h.log))
			r.Post("/start", h.StartSession)
			r.Post("/stop/{session_id}", h.StopSession)
			r.Get("/sessions", h.ListSessions)
		})
		r.Get("/content/{session_id}/*", h.ServeContent)
	})
}

type startRequest struct {
	ChannelIDs  []string `json:"channelIds"`
	TileWidth   int      `json:"tileWidth,omitempty"`
	TileHeight  int      `json:"tileHeight,omitempty"`
	BitrateKbps int      `json:"bitrateKbps,omitempty"`
}

type startResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type stopResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

type sessionInfo struct {
	SessionID string    `json:"sessionId"`
	Channels  []string  `json:"channels"`
	URL       string    `json:"url"`
	Owner     string    `json:"owner,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type sessionsResponse struct {
	Sessions []sessionInfo `json:"sessions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StartSession handles POST /mosaic/start.
// Body: { "channelIds": ["c1", "c2"], "tileWidth": 640, ... }.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid start body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if len(req.ChannelIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "channelIds must not be empty"})
		return
	}

	channels := make([]ChannelID, len(req.ChannelIDs))
	for i, id := range req.ChannelIDs {
		channels[i] = ChannelID(id)
	}

	sess, err := h.svc.Start(r.Context(), StartOptions{
		Channels:    channels,
		Owner:       CallerFrom(r.Context()),
		Geometry:    Geometry{TileWidth: req.TileWidth, TileHeight: req.TileHeight},
		BitrateKbps: req.BitrateKbps,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNoChannels):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.Is(err, ErrNoValidChannels):
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		case errors.Is(err, ErrEngineFailed):
			h.log.Error("engine start failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "transcoding engine unavailable"})
		default:
			h.log.Error("start session failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to start session"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, startResponse{
		SessionID: string(sess.ID),
		URL:       h.sessionURL(sess),
	})
}

// StopSession handles POST /mosaic/stop/{session_id}. Stopping an unknown or
// already stopped session reports not-found rather than an error.
func (h *Handler) StopSession(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session id required"})
		return
	}

	err := h.svc.Stop(id, CallerFrom(r.Context()))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, stopResponse{SessionID: string(id), Status: "stopped"})
	case errors.Is(err, ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "session not found"})
	case errors.Is(err, ErrNotOwner):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	default:
		h.log.Error("stop session failed", slog.String("session", string(id)), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to stop session"})
	}
}

// ListSessions handles GET /mosaic/sessions with a snapshot of every active
// session.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.svc.Sessions()
	out := sessionsResponse{Sessions: make([]sessionInfo, 0, len(sessions))}
	for _, sess := range sessions {
		resolved := sess.ResolvedChannels()
		channels := make([]string, len(resolved))
		for i, ch := range resolved {
			channels[i] = string(ch)
		}
		out.Sessions = append(out.Sessions, sessionInfo{
			SessionID: string(sess.ID),
			Channels:  channels,
			URL:       h.sessionURL(sess),
			Owner:     sess.Owner,
			CreatedAt: sess.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ServeContent handles GET /mosaic/content/{session_id}/* — the manifest and
// media segments the engine writes. Each fetch counts as session activity, so
// an actively watched mosaic is never reaped as idle.
func (h *Handler) ServeContent(w http.ResponseWriter, r *http.Request) {
	id := SessionID(chi.URLParam(r, "session_id"))
	if !h.svc.Touch(id) {
		http.NotFound(w, r)
		return
	}
	h.content.ServeHTTP(w, r)
}

func (h *Handler) sessionURL(sess *Session) string {
	return h.publicBase + "/" + sess.ManifestPath
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
