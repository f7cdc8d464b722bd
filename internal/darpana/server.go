package darpana

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/darpana-core/darpana-core/internal/dharma"
	"github.com/darpana-core/darpana-core/internal/lokapala"
	"github.com/darpana-core/darpana-core/internal/sutra"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// MaxRequestBodyBytes caps request bodies; exceeding it yields 413.
	MaxRequestBodyBytes = 10 << 20 // 10 MiB
	headerTimeout       = 30 * time.Second
	fullRequestTimeout  = 5 * time.Minute
	shutdownGrace       = 30 * time.Second
)

// Upstream abstracts the HTTP call to a resolved provider, so Server stays
// testable without a real network dependency.
type Upstream interface {
	// Complete performs a non-streaming call and returns the normalized response.
	Complete(ctx context.Context, route Route, req CompletionRequest) (CompletionResponse, error)
	// Stream performs a streaming call, translating directly onto ew.
	Stream(ctx context.Context, route Route, req CompletionRequest, ew *EventWriter) error
}

// ServerConfig configures the proxy's HTTP surface.
type ServerConfig struct {
	Addr          string
	APIKey        string // empty disables auth
	AllowedOrigin string // empty disables CORS headers
	Routing       RoutingConfig
	// MetricsRegistry, when set, is exposed at GET /metrics. Nil disables
	// the route entirely rather than serving an empty registry.
	MetricsRegistry *prometheus.Registry
}

// Server is the LLM proxy's HTTP front end. It sits downstream of the
// policy engine and guardian scanner: every completion request is first
// evaluated as an ActionLLMCall, and every non-streaming response is
// scanned for findings before going back to the client.
type Server struct {
	config   ServerConfig
	upstream Upstream
	logger   *slog.Logger

	engine   *dharma.Engine
	guardian *lokapala.Scanner
	bus      *sutra.Bus

	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds a Server; call Start to begin listening. engine,
// guardian, and bus may be nil, in which case policy evaluation, post-hoc
// scanning, and event publication are each skipped.
func NewServer(config ServerConfig, upstream Upstream, engine *dharma.Engine, guardian *lokapala.Scanner, bus *sutra.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{config: config, upstream: upstream, engine: engine, guardian: guardian, bus: bus, logger: logger}
}

// SetEngine swaps the active policy engine, used by config hot reload.
func (s *Server) SetEngine(engine *dharma.Engine) {
	s.engine = engine
}

// Start begins listening and serving in the background.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", s.withMiddleware(s.handleMessages))
	mux.HandleFunc("/v1/messages/count_tokens", s.withMiddleware(s.handleCountTokens))
	if s.config.MetricsRegistry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.config.MetricsRegistry, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", s.withMiddleware(s.handleRoot))

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("darpana: listen: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: headerTimeout,
		ReadTimeout:       fullRequestTimeout,
		WriteTimeout:      0, // streaming responses manage their own deadlines
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("darpana: http server error", "error", err)
		}
	}()
	s.logger.Info("darpana: listening", "addr", s.config.Addr)
	return nil
}

// Shutdown stops accepting new connections, waits up to shutdownGrace for
// in-flight requests, then force-closes.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.AllowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.config.AllowedOrigin)
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}

		if !s.authorized(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)

		ctx, cancel := context.WithTimeout(r.Context(), fullRequestTimeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

// authorized performs a constant-time comparison of the configured API key
// against the request's key, hashed first so length differences can't leak
// through timing, per spec §4.6.
func (s *Server) authorized(r *http.Request) bool {
	if s.config.APIKey == "" {
		return true
	}
	provided := r.Header.Get("x-api-key")
	if provided == "" {
		if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			provided = auth[7:]
		}
	}
	want := sha256.Sum256([]byte(s.config.APIKey))
	got := sha256.Sum256([]byte(provided))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"service": "darpana", "status": "ok"})
}

func (s *Server) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// A rough, provider-agnostic estimate: four characters per token, summed
	// across the system prompt and every text block. Exact accounting is
	// provider-specific and is why this is an estimate, not a passthrough.
	chars := len(req.System)
	for _, m := range req.Messages {
		for _, b := range m.Content {
			chars += len(b.Text)
		}
	}
	estimate := chars/4 + 1

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"input_tokens": estimate})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req CompletionRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessionID := r.Header.Get("x-session-id")

	if s.engine != nil {
		verdict := s.engine.Evaluate(dharma.Action{
			Type:        dharma.ActionLLMCall,
			Model:       req.Model,
			SessionID:   sessionID,
			PromptChars: promptChars(req),
		}, dharma.Context{Now: time.Now()})
		if verdict.Status == dharma.StatusDeny {
			writeError(w, http.StatusForbidden, fmt.Sprintf("denied by policy: %s", firstDenyMessage(verdict)))
			return
		}
	}

	route, err := Resolve(s.config.Routing, req.Model)
	if err != nil {
		writeError(w, http.StatusNotFound, sanitizeErrorMessage(err.Error()))
		return
	}

	if s.bus != nil {
		_, _ = s.bus.Publish("darpana:request:routed", map[string]string{
			"session_id": sessionID,
			"provider":   route.Provider.Name,
			"model":      route.Model,
		}, "darpana")
	}

	if !req.Stream {
		resp, err := s.upstream.Complete(r.Context(), route, req)
		if err != nil {
			writeError(w, http.StatusBadGateway, sanitizeErrorMessage(err.Error()))
			return
		}
		s.scanResponse(sessionID, resp)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	s.streamMessages(w, r, route, req)
}

func promptChars(req CompletionRequest) int {
	n := len(req.System)
	for _, m := range req.Messages {
		for _, b := range m.Content {
			n += len(b.Text)
		}
	}
	return n
}

func firstDenyMessage(result dharma.Result) string {
	for _, v := range result.Verdicts {
		if v.Severity == dharma.SeverityDeny {
			return v.Message
		}
	}
	return "request denied"
}

// scanResponse runs the guardian scanner over a completed response's text
// content, logging any findings. It never blocks the response to the client.
func (s *Server) scanResponse(sessionID string, resp CompletionResponse) {
	if s.guardian == nil {
		return
	}
	var text string
	for _, b := range resp.Content {
		text += b.Text + "\n"
	}
	if text == "" {
		return
	}
	findings := s.guardian.Scan(lokapala.ScanContext{
		CommandOutputs: []lokapala.CommandOutput{{Location: "response:" + sessionID, Output: text}},
	})
	for _, f := range findings {
		s.logger.Warn("darpana: guardian finding in response", "session_id", sessionID, "title", f.Title, "severity", f.Severity)
	}
}

func (s *Server) streamMessages(w http.ResponseWriter, r *http.Request, route Route, req CompletionRequest) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	bw := bufio.NewWriter(w)
	ew := NewEventWriter(bw, func() error {
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})

	if err := s.upstream.Stream(r.Context(), route, req, ew); err != nil {
		s.logger.Error("darpana: stream failed", "error", err, "provider", route.Provider.Name)
		_ = ew.WriteSyntheticError(sanitizeErrorMessage(err.Error()))
	}
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return fmt.Errorf("request body exceeds %d bytes", MaxRequestBodyBytes)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty request body")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type": "error",
		"error": map[string]string{
			"type":    http.StatusText(status),
			"message": sanitizeErrorMessage(message),
		},
	})
}

var secretLikePatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[a-zA-Z0-9]{10,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_\-]{10,}`),
	regexp.MustCompile(`gsk_[a-zA-Z0-9]{10,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._\-]{10,}`),
	regexp.MustCompile(`(?i)key=[a-zA-Z0-9._\-]{10,}`),
}

// sanitizeErrorMessage redacts common secret-shaped substrings before an
// error reaches a client response, per spec §4.6.
func sanitizeErrorMessage(msg string) string {
	for _, p := range secretLikePatterns {
		msg = p.ReplaceAllString(msg, "[redacted]")
	}
	return msg
}
