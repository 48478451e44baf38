package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tomeshelf/playback/internal/logger"
	"github.com/tomeshelf/playback/internal/playback"
)

// Server is the HTTP control surface of the playback engine. It renders the
// engine's snapshots and forwards intents; all playback decisions stay in the
// engine.
type Server struct {
	server *http.Server
	engine *playback.Engine
	logger *logger.Logger
}

// New creates the control server around the given engine
func New(addr string, engine *playback.Engine, log *logger.Logger) *Server {
	s := &Server{
		server: &http.Server{
			Addr: addr,
		},
		engine: engine,
		logger: log,
	}

	handler := http.NewServeMux()

	// Health check
	handler.HandleFunc("/healthz", s.handleHealthCheck)

	// Observable state
	handler.HandleFunc("/state", s.handleState)

	// Playback intents
	handler.HandleFunc("/intent/open", s.handleOpen)
	handler.HandleFunc("/intent/select", s.handleSelect)
	handler.HandleFunc("/intent/play", s.handlePlay)
	handler.HandleFunc("/intent/pause", s.handlePause)
	handler.HandleFunc("/intent/seek", s.handleSeek)
	handler.HandleFunc("/intent/next", s.handleNext)
	handler.HandleFunc("/intent/previous", s.handlePrevious)
	handler.HandleFunc("/intent/volume", s.handleVolume)
	handler.HandleFunc("/intent/rate", s.handleRate)
	handler.HandleFunc("/intent/loop", s.handleLoop)
	handler.HandleFunc("/intent/sleep", s.handleSleep)

	// App shell lifecycle
	handler.HandleFunc("/visibility", s.handleVisibility)

	s.server.Handler = logger.HTTPMiddleware(handler)

	s.server.ReadTimeout = 10 * time.Second
	s.server.WriteTimeout = 30 * time.Second
	s.server.IdleTimeout = 120 * time.Second

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	logger.Get().Info("Starting control server", map[string]interface{}{
		"addr": s.server.Addr,
	})

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Get().Info("Shutting down control server", nil)
	return s.server.Shutdown(ctx)
}

// Handler exposes the routed handler for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok"}`)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.engine.State())
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookID string `json:"bookId"`
	}
	if !s.decodeIntent(w, r, &req) {
		return
	}
	if req.BookID == "" {
		http.Error(w, "bookId is required", http.StatusBadRequest)
		return
	}
	if err := s.engine.OpenBook(r.Context(), req.BookID); err != nil {
		s.logger.Error("Failed to open audiobook", map[string]interface{}{
			"book_id": req.BookID,
			"error":   err.Error(),
		})
		http.Error(w, "failed to open audiobook", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, s.engine.State())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID   string `json:"fileId"`
		Autoplay bool   `json:"autoplay"`
	}
	if !s.decodeIntent(w, r, &req) {
		return
	}
	if req.FileID == "" {
		http.Error(w, "fileId is required", http.StatusBadRequest)
		return
	}
	s.intentResult(w, s.engine.SelectFile(req.FileID, req.Autoplay))
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.intentResult(w, s.engine.Play())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.intentResult(w, s.engine.Pause())
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position float64 `json:"position"`
	}
	if !s.decodeIntent(w, r, &req) {
		return
	}
	s.intentResult(w, s.engine.Seek(req.Position))
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.intentResult(w, s.engine.Next())
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.intentResult(w, s.engine.Previous())
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
		Muted  *bool    `json:"muted"`
	}
	if !s.decodeIntent(w, r, &req) {
		return
	}
	if req.Volume != nil {
		s.engine.SetVolume(*req.Volume)
	}
	if req.Muted != nil {
		s.engine.SetMuted(*req.Muted)
	}
	s.writeJSON(w, s.engine.State())
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate float64 `json:"rate"`
	}
	if !s.decodeIntent(w, r, &req) {
		return
	}
	s.engine.SetRate(req.Rate)
	s.writeJSON(w, s.engine.State())
}

func (s *Server) handleLoop(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Loop bool `json:"loop"`
	}
	if !s.decodeIntent(w, r, &req) {
		return
	}
	s.engine.SetLoop(req.Loop)
	s.writeJSON(w, s.engine.State())
}

func (s *Server) handleSleep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds      float64 `json:"seconds"`
		EndOfChapter bool    `json:"endOfChapter"`
	}
	if !s.decodeIntent(w, r, &req) {
		return
	}
	if req.EndOfChapter {
		s.intentResult(w, s.engine.SleepAtChapterEnd())
		return
	}
	s.engine.SetSleepTimer(time.Duration(req.Seconds * float64(time.Second)))
	s.writeJSON(w, s.engine.State())
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Foreground bool `json:"foreground"`
	}
	if !s.decodeIntent(w, r, &req) {
		return
	}
	s.engine.SetVisibility(req.Foreground)
	s.writeJSON(w, s.engine.State())
}

// decodeIntent enforces POST with a JSON body on intent endpoints
func (s *Server) decodeIntent(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// intentResult maps engine intent errors to responses. A missing session is
// the caller's mistake; everything else surfaces through the state snapshot.
func (s *Server) intentResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		s.writeJSON(w, s.engine.State())
	case err == playback.ErrNoSession:
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
