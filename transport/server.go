package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentree/core"
	"github.com/hupe1980/agentree/logging"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	// Board backs GET /notes. Nil serves an empty list.
	Board            core.NoteBoard
	InterruptTimeout time.Duration
	AskToolName      string
	// CheckOrigin overrides the WebSocket origin check (default: same host).
	CheckOrigin     func(r *http.Request) bool
	ShutdownTimeout time.Duration
	Logger          logging.Logger
}

// Server exposes sessions over WebSocket. Every connection gets its own
// Session and Turn.
//
// Routes:
//
//	GET /ws       WebSocket: client sends Input JSON, server sends Line JSON
//	GET /healthz  liveness
//	GET /notes    blackboard snapshot
type Server struct {
	newTurn  func() (Turn, error)
	opts     ServerOptions
	upgrader websocket.Upgrader
	router   chi.Router
}

// NewServer creates a server. newTurn is called once per connection; when it
// fails the connection gets an error line and is closed.
func NewServer(newTurn func() (Turn, error), optFns ...func(o *ServerOptions)) *Server {
	opts := ServerOptions{
		ShutdownTimeout: 10 * time.Second,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		newTurn:  newTurn,
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: opts.CheckOrigin},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/notes", s.handleNotes)
	r.Get("/ws", s.handleWebSocket)

	s.router = r

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.opts.Logger.Info("transport.server.listen", "addr", addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotes(w http.ResponseWriter, _ *http.Request) {
	notes := []core.Note{}
	if s.opts.Board != nil {
		if n := s.opts.Board.Read(); n != nil {
			notes = n
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"notes": notes})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.Logger.Warn("transport.ws.upgrade_failed", "error", err.Error())
		return
	}
	defer conn.Close()

	logger := s.opts.Logger
	logger.Info("transport.ws.connected", "remote", r.RemoteAddr, "request_id", middleware.GetReqID(r.Context()))

	turn, err := s.newTurn()
	if err != nil {
		logger.Warn("transport.ws.turn_failed", "error", err.Error())
		_ = conn.WriteJSON(Line{Kind: KindError, Text: err.Error()})

		return
	}

	session := NewSession(turn, func(o *SessionOptions) {
		if s.opts.InterruptTimeout > 0 {
			o.InterruptTimeout = s.opts.InterruptTimeout
		}

		if s.opts.AskToolName != "" {
			o.AskToolName = s.opts.AskToolName
		}

		o.Logger = logger
	})

	var g errgroup.Group

	// writer: the only goroutine writing to conn
	g.Go(func() error {
		for line := range session.Lines() {
			if err := conn.WriteJSON(line); err != nil {
				// unblocks the reader's ReadJSON
				conn.Close()
				return err
			}
		}

		return nil
	})

	// reader
	g.Go(func() error {
		defer session.Close()

		for {
			var in Input
			if err := conn.ReadJSON(&in); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}

				return err
			}

			switch route := session.Handle(in); route {
			case RouteBusy:
				if !session.TryEmit(Line{Kind: KindError, Text: "busy: a turn is already running"}) {
					logger.Debug("transport.ws.busy_dropped")
				}
			case RouteClosed:
				return nil
			default:
				logger.Debug("transport.ws.input", "route", route.String())
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Debug("transport.ws.closed", "error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
