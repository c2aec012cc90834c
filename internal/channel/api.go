package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"skillbot/internal/domain"
	"skillbot/internal/metrics"
)

const apiMaxBodySize = 64 << 10

// Router handles one chat input synchronously. agent.Loop implements it.
type Router interface {
	ProcessDirect(ctx context.Context, content, channel, chatID string) domain.DispatchResult
}

// APIServer exposes the dispatcher over HTTP:
//
//	POST /api/route   {"text": "...", "chat_id": "..."} -> DispatchResult
//	GET  /api/skills  registered skills and their triggers
//	GET  /healthz
//	GET  /metrics     when a metrics path is configured
type APIServer struct {
	addr        string
	apiKey      string
	metricsPath string
	router      Router
	skills      []domain.Skill
	limiters    *clientLimiters
	logger      *slog.Logger
	server      *http.Server
}

type APIConfig struct {
	Host          string
	Port          int
	APIKey        string // empty = no auth
	RatePerMinute int    // per client; 0 = unlimited
	MetricsPath   string // empty = no metrics endpoint
	Router        Router
	Skills        []domain.Skill
	Logger        *slog.Logger
}

func NewAPIServer(cfg APIConfig) *APIServer {
	s := &APIServer{
		addr:        net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		apiKey:      cfg.APIKey,
		metricsPath: cfg.MetricsPath,
		router:      cfg.Router,
		skills:      cfg.Skills,
		logger:      cfg.Logger,
	}
	if cfg.RatePerMinute > 0 {
		s.limiters = newClientLimiters(cfg.RatePerMinute)
	}
	return s
}

func (s *APIServer) Name() string { return "api" }

// Handler returns the HTTP handler serving the API routes.
func (s *APIServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/route", s.guard(s.handleRoute))
	mux.HandleFunc("GET /api/skills", s.guard(s.handleSkills))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metricsPath != "" {
		mux.Handle("GET "+s.metricsPath, metrics.Collector.Handler())
	}
	return mux
}

// Start serves until ctx is cancelled. The API answers requests directly,
// so it never touches the bus.
func (s *APIServer) Start(ctx context.Context, _ domain.MessageBus) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.Info("api server started", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *APIServer) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// Send is unsupported: HTTP clients receive replies in the response body.
func (s *APIServer) Send(ctx context.Context, chatID string, content string) error {
	return fmt.Errorf("api channel cannot push messages")
}

// guard applies the bearer key check and the per-client rate limit.
func (s *APIServer) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.apiKey {
				writeJSON(rw, http.StatusUnauthorized, map[string]string{"error": "invalid API key"})
				return
			}
		}
		if s.limiters != nil && !s.limiters.allow(clientKey(r)) {
			rw.Header().Set("Retry-After", "60")
			writeJSON(rw, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next(rw, r)
	}
}

type routeRequest struct {
	Text   string `json:"text"`
	ChatID string `json:"chat_id,omitempty"`
}

func (s *APIServer) handleRoute(rw http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, apiMaxBodySize+1))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "bad request"})
		return
	}
	if len(body) > apiMaxBodySize {
		writeJSON(rw, http.StatusRequestEntityTooLarge, map[string]string{"error": "request too large"})
		return
	}

	var req routeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	reqID := uuid.NewString()
	chatID := req.ChatID
	if chatID == "" {
		chatID = reqID
	}

	start := time.Now()
	result := s.router.ProcessDirect(r.Context(), req.Text, "api", chatID)
	s.logger.Info("api route",
		"request_id", reqID,
		"chat_id", chatID,
		"skill", result.SkillName,
		"matched", result.Matched,
		"duration", time.Since(start),
	)

	rw.Header().Set("X-Request-ID", reqID)
	writeJSON(rw, http.StatusOK, result)
}

type skillInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Patterns    []string `json:"patterns"`
	Phrases     []string `json:"phrases"`
}

func (s *APIServer) handleSkills(rw http.ResponseWriter, r *http.Request) {
	out := make([]skillInfo, 0, len(s.skills))
	for _, sk := range s.skills {
		trig := sk.Triggers()
		info := skillInfo{
			Name:        sk.Name(),
			Description: sk.Description(),
			Patterns:    patternStrings(trig.Patterns),
			Phrases:     append([]string{}, trig.Phrases...),
		}
		out = append(out, info)
	}
	writeJSON(rw, http.StatusOK, map[string]any{"skills": out})
}

func (s *APIServer) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status": "ok",
		"skills": len(s.skills),
		"uptime": int64(metrics.Collector.Uptime().Seconds()),
	})
}

func patternStrings(patterns []*regexp.Regexp) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p.String())
	}
	return out
}

// clientKey identifies a caller for rate limiting: the bearer key when
// present, otherwise the remote IP.
func clientKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return auth
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
