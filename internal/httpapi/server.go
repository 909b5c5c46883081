// Package httpapi is the daemon's HTTP surface. Handlers never touch loop
// state directly; every read and write is submitted to the worker.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/zjrosen/deskmate/internal/agent"
	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/flags"
	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/observability"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/pubsub"
	"github.com/zjrosen/deskmate/internal/task"
	"github.com/zjrosen/deskmate/internal/worker"
)

// DefaultTimeout bounds how long a handler waits for the loop.
const DefaultTimeout = 5 * time.Second

// Deps are the collaborators the server drives.
type Deps struct {
	Worker  *worker.Worker
	Tasks   *task.Manager
	Plugins *plugin.Manager
	Agent   *agent.Bridge
	Events  pubsub.Subscriber[event.Event]
	Metrics *observability.Metrics // optional
	Flags   *flags.Registry        // optional; nil enables every route

	// AllowAnyOrigin disables the same-origin check on the event stream.
	AllowAnyOrigin bool
}

type Server struct {
	deps     Deps
	upgrader websocket.Upgrader
	timeout  time.Duration
}

func New(deps Deps) *Server {
	s := &Server{deps: deps, timeout: DefaultTimeout}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.AllowAnyOrigin {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/plugins", s.handlePlugins)
	r.Post("/plugins/{id}/enabled", s.handleSetEnabled)
	r.Post("/plugins/{id}/reload", s.handleReload)
	r.Post("/input", s.handleInput)
	r.Get("/agent", s.handleAgent)
	r.Post("/agent/drain", s.handleDrain)
	r.Post("/agent/respond", s.handleRespond)
	if s.enabled(flags.FlagEventStream) {
		r.Get("/events", s.handleEvents)
	}
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics.Handler())
	}
	return r
}

func (s *Server) enabled(flag string) bool {
	return s.deps.Flags == nil || s.deps.Flags.Enabled(flag)
}

// observe logs and counts each request by its route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.Debug(log.CatHTTP, "request", "method", r.Method, "route", route, "status", status, "duration", time.Since(start))
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveRequest(r.Method, route, status)
		}
	})
}

// onLoop runs fn on the orchestration loop and waits for its result.
func onLoop[T any](ctx context.Context, s *Server, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return worker.Await[T](ctx, s.deps.Worker.Submit("http."+name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	processed, failed := s.deps.Worker.Stats()
	status := "ok"
	code := http.StatusOK
	if !s.deps.Worker.IsRunning() {
		status, code = "stopped", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"status":         status,
		"queue_length":   s.deps.Worker.QueueLength(),
		"jobs_processed": processed,
		"jobs_failed":    failed,
	})
}

type statusResponse struct {
	Status string   `json:"status"`
	Tasks  []string `json:"tasks"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := onLoop(r.Context(), s, "status", func(context.Context) (statusResponse, error) {
		text, err := s.deps.Agent.Status()
		if err != nil {
			return statusResponse{}, err
		}
		return statusResponse{Status: text, Tasks: s.deps.Tasks.Names()}, nil
	})
	if err != nil {
		respondLoopError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	list, err := onLoop(r.Context(), s, "plugins", func(context.Context) ([]plugin.Status, error) {
		return s.deps.Plugins.Status(), nil
	})
	if err != nil {
		respondLoopError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"plugins": list})
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req enabledRequest
	if err := decodeJSON(r, &req); err != nil || req.Enabled == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", `body must be {"enabled": true|false}`)
		return
	}

	st, err := onLoop(r.Context(), s, "set_enabled", func(ctx context.Context) (plugin.Status, error) {
		err := s.deps.Plugins.SetEnabled(ctx, id, *req.Enabled)
		for _, st := range s.deps.Plugins.Status() {
			if st.ID == id {
				return st, err
			}
		}
		return plugin.Status{}, err
	})
	if err != nil {
		respondLoopError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := onLoop(r.Context(), s, "reload", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.deps.Plugins.Reload(ctx, id)
	})
	if err != nil {
		respondLoopError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"reloaded": id})
}

type inputRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Content) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "content is required")
		return
	}
	_, err := onLoop(r.Context(), s, "input", func(context.Context) (struct{}, error) {
		s.deps.Tasks.TriggerEvent(event.UserInput{Content: req.Content})
		return struct{}{}, nil
	})
	if err != nil {
		respondLoopError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type toolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func (s *Server) handleAgent(w http.ResponseWriter, _ *http.Request) {
	snap := s.deps.Agent.Snapshot()
	tools := make([]toolInfo, 0, len(snap.Tools))
	for _, t := range snap.Tools {
		tools = append(tools, toolInfo{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"system_prompt": snap.SystemPrompt(),
		"prompts":       snap.Prompts,
		"tools":         tools,
	})
}

func (s *Server) handleDrain(w http.ResponseWriter, _ *http.Request) {
	msgs := s.deps.Agent.Drain()
	if msgs == nil {
		msgs = []event.Message{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type respondRequest struct {
	Fields map[string]any `json:"fields"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := decodeJSON(r, &req); err != nil || len(req.Fields) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "fields are required")
		return
	}
	_, err := onLoop(r.Context(), s, "respond", func(context.Context) (struct{}, error) {
		s.deps.Agent.Respond(req.Fields)
		return struct{}{}, nil
	})
	if err != nil {
		respondLoopError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondLoopError maps orchestration errors to status codes.
func respondLoopError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, plugin.ErrUnknownPlugin):
		respondError(w, http.StatusNotFound, "unknown_plugin", err.Error())
	case errors.Is(err, plugin.ErrNotLoaded):
		respondError(w, http.StatusConflict, "not_loaded", err.Error())
	case errors.Is(err, plugin.ErrDuplicateInfoKey):
		respondError(w, http.StatusConflict, "info_collision", err.Error())
	case errors.Is(err, worker.ErrQueueFull):
		respondError(w, http.StatusTooManyRequests, "busy", err.Error())
	case errors.Is(err, worker.ErrStopped), errors.Is(err, worker.ErrNotStarted):
		respondError(w, http.StatusServiceUnavailable, "stopped", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
