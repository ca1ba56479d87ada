package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hupe1980/chatgraph/core"
	"github.com/hupe1980/chatgraph/graph"
	"github.com/hupe1980/chatgraph/logging"
	"github.com/hupe1980/chatgraph/stream"
)

// chatMessage mirrors the caller-side message shape.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the body of POST /api/chat. The content of the last
// message is the new user turn.
type chatRequest struct {
	ThreadID string        `json:"thread_id"`
	Messages []chatMessage `json:"messages"`
}

// clearRequest is the body of POST /api/chat/clear.
type clearRequest struct {
	ThreadID string `json:"thread_id"`
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address. Defaults to ":8080".
	Addr string
	// FrameBuffer sizes the per-turn frame channel.
	FrameBuffer int
	// Logger receives request logs. Defaults to a no-op logger.
	Logger logging.Logger
}

// Server serves the chat API over HTTP.
type Server struct {
	executor    *graph.Executor
	logger      logging.Logger
	frameBuffer int
	httpServer  *http.Server
}

// New creates a Server around an executor.
func New(executor *graph.Executor, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:        ":8080",
		FrameBuffer: 64,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		executor:    executor,
		logger:      opts.Logger,
		frameBuffer: opts.FrameBuffer,
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route table, usable directly in tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/clear", s.handleClear)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	return mux
}

// ListenAndServe blocks serving the API until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content := ""
	if len(req.Messages) > 0 {
		content = req.Messages[len(req.Messages)-1].Content
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sink := stream.NewChannelSink(s.frameBuffer)
	errCh := make(chan error, 1)

	// The request context cancels the turn when the client disconnects.
	go func() {
		errCh <- s.executor.RunTurn(r.Context(), req.ThreadID, content, sink)
	}()

	enc := json.NewEncoder(w)
	headerSent := false
	clientGone := false
	frames := sink.Frames()

	// Once the turn enters the graph the sink is guaranteed a terminating
	// frame and close; only rejections before that point surface as an
	// HTTP status instead of a stream. When the client goes away mid-stream
	// the loop keeps draining without writing, so the turn still runs to
	// completion and its checkpoint is saved.
	for frames != nil || errCh != nil {
		select {
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			if clientGone {
				continue
			}
			if !headerSent {
				w.Header().Set("Content-Type", "application/x-ndjson")
				w.Header().Set("Cache-Control", "no-cache")
				w.WriteHeader(http.StatusOK)
				headerSent = true
			}
			if err := enc.Encode(frame); err != nil {
				s.logger.Warn("client write failed", "error", err)
				clientGone = true
				continue
			}
			flusher.Flush()
		case err := <-errCh:
			errCh = nil
			if err == nil {
				continue
			}
			if !headerSent {
				switch {
				case errors.Is(err, core.ErrMissingThreadID), errors.Is(err, core.ErrEmptyMessage):
					s.writeError(w, http.StatusBadRequest, err.Error())
					return
				case errors.Is(err, core.ErrTurnInFlight):
					s.writeError(w, http.StatusConflict, err.Error())
					return
				}
			}
			// Fatal in-graph errors already produced an error frame; keep
			// draining so the caller sees it.
			s.logger.Error("turn failed", "thread_id", req.ThreadID, "error", err)
		}
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.executor.ClearThread(r.Context(), req.ThreadID)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, core.ErrMissingThreadID):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrTurnInFlight):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response write failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
