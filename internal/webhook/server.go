// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webhook hosts the provider callback endpoints that resolve
// approval requests.
//
// Every provider handler runs the same pipeline: method gate, rate
// limit, provider authentication, payload parse, row fetch, freshness,
// machine-identity check, and the single-winner status transition. The
// transition's store filter includes status=pending, so a provider
// retry or a concurrent rival observes a zero-row update instead of a
// second transition.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/paduck86/claude-remote-guard/internal/store"
)

const (
	// requestFreshness is how old a row may be and still be resolvable.
	requestFreshness = 3600 * time.Second

	// cleanupInterval drives the periodic retention sweep.
	cleanupInterval = 10 * time.Minute

	// requestRetention bounds how long resolved and abandoned rows live.
	requestRetention = 24 * time.Hour

	// maxBodyBytes caps callback bodies.
	maxBodyBytes = 1 << 20
)

// Config holds the webhook-side secrets, read from the environment.
// A missing secret disables its provider's endpoint with a 500 — the
// server never crashes over configuration.
type Config struct {
	SlackSigningSecret    string
	TelegramBotToken      string
	TelegramWebhookSecret string
	TwilioAuthToken       string
	MachineIDSecret       string

	// PublicURL is the externally visible base URL, needed to recompute
	// Twilio's signature over the full callback URL.
	PublicURL string
}

// ConfigFromEnv reads the webhook configuration from the environment.
func ConfigFromEnv() Config {
	return Config{
		SlackSigningSecret:    os.Getenv("SLACK_SIGNING_SECRET"),
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
		TwilioAuthToken:       os.Getenv("TWILIO_AUTH_TOKEN"),
		MachineIDSecret:       os.Getenv("MACHINE_ID_SECRET"),
		PublicURL:             strings.TrimRight(os.Getenv("PUBLIC_URL"), "/"),
	}
}

// Store is the slice of the row store the verifier needs. The backing
// client must hold the service credential — row updates are refused
// for anything less.
type Store interface {
	GetRequest(ctx context.Context, id string) (store.Request, error)
	ResolvePending(ctx context.Context, id string, status store.Status, resolvedBy string, at time.Time) (int, error)
	InsertRateLimitEvent(ctx context.Context, identifier string) error
	CountRateLimitEvents(ctx context.Context, identifier string, since time.Time) (int, error)
	DeleteRequestsBefore(ctx context.Context, cutoff time.Time) error
	DeleteRateLimitEventsBefore(ctx context.Context, cutoff time.Time) error
}

// Server hosts the provider callback endpoints.
type Server struct {
	cfg     Config
	store   Store
	logger  *slog.Logger
	client  *http.Client
	now     func() time.Time
	metrics bool

	httpServer *http.Server
	startedAt  time.Time

	// telegramBase overrides the Telegram API endpoint in tests.
	telegramBase string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables the /metrics Prometheus endpoint.
func WithMetrics(enabled bool) Option {
	return func(s *Server) {
		s.metrics = enabled
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithHTTPClient replaces the outbound client used for provider acks.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Server) {
		if hc != nil {
			s.client = hc
		}
	}
}

// New creates a webhook server.
func New(cfg Config, st Store, opts ...Option) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		logger:    slog.Default(),
		client:    &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
		startedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler with all endpoints mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/slack", s.withPipeline("slack", s.handleSlack))
	mux.HandleFunc("/webhooks/telegram", s.withPipeline("telegram", s.handleTelegram))
	mux.HandleFunc("/webhooks/twilio", s.withPipeline("twilio", s.handleTwilio))
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics {
		mux.Handle("/metrics", MetricsHandler())
	}
	return mux
}

// ListenAndServe runs the server until the context is cancelled, then
// shuts down gracefully. It also runs the periodic retention sweep.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.cleanupLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.logger.Info("webhook server listening", "addr", addr, "metrics", s.metrics)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook: serve: %w", err)
	}
}

// cleanupLoop deletes approval rows past retention and stale
// rate-limit events. Rows, not archives: the stored row is the only
// audit surface this system keeps.
func (s *Server) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.now()
			if err := s.store.DeleteRequestsBefore(ctx, now.Add(-requestRetention)); err != nil {
				s.logger.Warn("request cleanup failed", "error", err)
			}
			if err := s.store.DeleteRateLimitEventsBefore(ctx, now.Add(-2*rateLimitWindow)); err != nil {
				s.logger.Warn("rate limit cleanup failed", "error", err)
			}
		}
	}
}

// withPipeline applies the method gate and the rate limit, tags the
// request with a correlation id, and records metrics.
func (s *Server) withPipeline(provider string, next func(http.ResponseWriter, *http.Request, *slog.Logger)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		logger := s.logger.With("provider", provider, "request_id", ulid.Make().String())

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			recordCallback(provider, "method_not_allowed", s.now().Sub(start))
			return
		}

		if s.rateLimited(r.Context(), clientIP(r), logger) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			recordRateLimited(provider)
			recordCallback(provider, "rate_limited", s.now().Sub(start))
			return
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r, logger)
		recordCallback(provider, outcomeLabel(sw.status), s.now().Sub(start))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","uptime_seconds":%d}`, int(time.Since(s.startedAt).Seconds()))
}

// clientIP derives the caller identifier for rate limiting. Edge
// headers are trusted in documented order; the TCP peer is the
// fallback.
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// The last hop is the only one our own edge appended.
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[len(parts)-1])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// statusWriter captures the response status for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func outcomeLabel(status int) string {
	switch {
	case status < 300:
		return "ok"
	case status < 500:
		return fmt.Sprintf("client_%d", status)
	default:
		return "server_error"
	}
}
