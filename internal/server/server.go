package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"vigil/internal/auth"
	"vigil/internal/camera"
	"vigil/internal/event"
	"vigil/internal/store"
	"vigil/internal/ws"
)

// Server is the HTTP control plane: camera and ROI management, runtime
// settings, and the live event websocket.
type Server struct {
	store   *store.Store
	manager *camera.Manager
	events  *event.Engine
	hub     *ws.Hub
	auth    *auth.Authenticator
	started time.Time
}

// New wires the control server. hub and authenticator may be nil.
func New(st *store.Store, manager *camera.Manager, events *event.Engine,
	hub *ws.Hub, authenticator *auth.Authenticator) *Server {
	return &Server{
		store:   st,
		manager: manager,
		events:  events,
		hub:     hub,
		auth:    authenticator,
		started: time.Now(),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Post("/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Post("/settings/detector", s.handleDetectorSettings)
		r.Post("/settings/notifications", s.handleNotificationSettings)
		r.Post("/settings/view", s.handleViewSettings)
		r.Post("/settings/resolution", s.handleResolutionSettings)

		r.Get("/cameras", s.handleListCameras)
		r.Route("/cameras/{name}/rois", func(r chi.Router) {
			r.Get("/", s.handleListROIs)
			r.Post("/", s.handleAddROI)
			r.Put("/{id}", s.handleUpdateROI)
			r.Delete("/{id}", s.handleDeleteROI)
		})
	})

	if s.hub != nil {
		r.Get("/ws/{name}", func(w http.ResponseWriter, req *http.Request) {
			s.hub.ServeCamera(w, req, chi.URLParam(req, "name"))
		})
	}

	return r
}

// result is the uniform response envelope.
type result struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func respond(w http.ResponseWriter, code int, status, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(result{Status: status, Message: message, Data: data})
}

func respondOK(w http.ResponseWriter, message string, data interface{}) {
	respond(w, http.StatusOK, "success", message, data)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respond(w, code, "error", message, nil)
}

// requireAuth validates the bearer token on mutating routes when logins
// are enabled.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil || !s.auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			respondError(w, http.StatusUnauthorized, "missing or malformed authorization header")
			return
		}
		if _, err := s.auth.Validate(parts[1]); err != nil {
			if err == auth.ErrExpiredToken {
				respondError(w, http.StatusUnauthorized, "token has expired")
			} else {
				respondError(w, http.StatusUnauthorized, "invalid token")
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, "ok", map[string]interface{}{
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"cameras":            s.manager.Status(),
		"recording_sessions": s.events.ActiveSessions(),
	}
	if s.hub != nil {
		data["ws_clients"] = s.hub.ClientCount()
	}
	respondOK(w, "system status", data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil || !s.auth.Enabled() {
		respondError(w, http.StatusNotFound, "authentication is disabled")
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	respondOK(w, "login successful", map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt.Unix(),
	})
}

// settingsTarget applies a mutation to one camera or to all of them.
func (s *Server) settingsTarget(w http.ResponseWriter, cameraName string, mutate func(*camera.Settings)) bool {
	if cameraName == "" {
		s.manager.UpdateAllSettings(mutate)
		return true
	}
	if err := s.manager.UpdateSettings(cameraName, mutate); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return false
	}
	return true
}

func (s *Server) handleDetectorSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Camera        string   `json:"camera,omitempty"`
		Enabled       bool     `json:"enabled"`
		ConfThreshold *float32 `json:"conf_threshold,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ok := s.settingsTarget(w, req.Camera, func(st *camera.Settings) {
		st.Detector = req.Enabled
		if req.ConfThreshold != nil {
			st.ConfThreshold = *req.ConfThreshold
		}
	})
	if ok {
		respondOK(w, fmt.Sprintf("detector enabled=%v", req.Enabled), nil)
	}
}

func (s *Server) handleNotificationSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Camera  string `json:"camera,omitempty"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if s.settingsTarget(w, req.Camera, func(st *camera.Settings) {
		st.Notifications = req.Enabled
	}) {
		respondOK(w, fmt.Sprintf("notifications enabled=%v", req.Enabled), nil)
	}
}

// handleResolutionSettings changes the working resolution for one camera or
// all of them. Each affected camera restarts its pipeline, then gets its
// persisted ROI set pushed back in.
func (s *Server) handleResolutionSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Camera string `json:"camera,omitempty"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid resolution %dx%d", req.Width, req.Height))
		return
	}

	names := []string{req.Camera}
	if req.Camera == "" {
		names = names[:0]
		for _, st := range s.manager.Status() {
			names = append(names, st.Name)
		}
	}

	mutate := func(cfg *camera.ProcessorConfig) {
		cfg.Width = req.Width
		cfg.Height = req.Height
	}
	for _, name := range names {
		if err := s.manager.Restart(name, mutate); err != nil {
			respondError(w, http.StatusNotFound, err.Error())
			return
		}
		if rec, err := s.store.GetCameraByName(name); err == nil && rec != nil {
			s.refreshCameraROIs(rec)
		}
	}
	respondOK(w, fmt.Sprintf("resolution set to %dx%d", req.Width, req.Height), nil)
}

func (s *Server) handleViewSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Camera    string `json:"camera,omitempty"`
		Overlay   *bool  `json:"overlay,omitempty"`
		Streaming *bool  `json:"streaming,omitempty"`
		Motion    *bool  `json:"motion,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if s.settingsTarget(w, req.Camera, func(st *camera.Settings) {
		if req.Overlay != nil {
			st.Overlay = *req.Overlay
		}
		if req.Streaming != nil {
			st.Streaming = *req.Streaming
		}
		if req.Motion != nil {
			st.Motion = *req.Motion
		}
	}) {
		respondOK(w, "view settings updated", nil)
	}
}
