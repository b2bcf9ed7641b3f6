// Package web provides an HTTP status server for the toggle-blinker daemon.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/sweeney/toggle-blinker/internal/logger"
	"github.com/sweeney/toggle-blinker/internal/status"
)

// ErrUnknown is the error a Presser wraps for a name it does not know.
var ErrUnknown = errors.New("unknown name")

// Presser injects a virtual button press for a named LED.
// It reports whether the press was queued.
type Presser interface {
	Press(name string) (bool, error)
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	presser    Presser
	unknown    error
}

// Option configures a Server.
type Option func(*Server)

// WithPresser enables POST /press/{name}. Errors from p that match
// unknown (via errors.Is) are answered with 404.
func WithPresser(p Presser, unknown error) Option {
	return func(s *Server) {
		s.presser = p
		s.unknown = unknown
	}
}

// New creates a Server that reads state from the given tracker.
func New(addr string, tracker *status.Tracker, opts ...Option) *Server {
	s := &Server{tracker: tracker, unknown: ErrUnknown}
	for _, o := range opts {
		o(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("POST /press/{name}", s.handlePress)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request multiplexer.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.presser != nil); err != nil {
		logger.Warnf(r.Context(), "render status page: %v", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handlePress(w http.ResponseWriter, r *http.Request) {
	if s.presser == nil {
		http.NotFound(w, r)
		return
	}

	name := r.PathValue("name")
	queued, err := s.presser.Press(name)
	switch {
	case errors.Is(err, s.unknown):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case !queued:
		http.Error(w, "event queue full", http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("queued\n"))
	}
}
