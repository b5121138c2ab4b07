// Package api provides HTTP handlers and the main API server logic for
// Supportline.
//
// It exposes the Twilio webhook endpoints (SMS/WhatsApp, voice, status
// callbacks), the human-handoff trigger, the dashboard feed, and the admin
// sweep endpoint.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/lendfront/supportline/internal/engine"
	"github.com/lendfront/supportline/internal/messaging"
	"github.com/lendfront/supportline/internal/store"
)

// Default server configuration constants
const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
	// DefaultReadTimeout bounds request reads.
	DefaultReadTimeout = 15 * time.Second
	// DefaultWriteTimeout bounds response writes; generation can take a while.
	DefaultWriteTimeout = 60 * time.Second
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultDashboardLimit is how many conversations the dashboard feed returns.
	DefaultDashboardLimit = 50
)

// TwilioValidator verifies webhook signatures. A nil validator disables
// verification (local development only).
type TwilioValidator interface {
	Validate(url string, params map[string]string, signature string) bool
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	BaseURL        string
	Validator      TwilioValidator
	Notifier       engine.HandoffNotifier
	StaleThreshold time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithBaseURL sets the externally visible base URL used for signature
// validation and TwiML action callbacks.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithValidator sets the Twilio webhook signature validator.
func WithValidator(v TwilioValidator) Option {
	return func(o *Opts) { o.Validator = v }
}

// WithHandoffNotifier sets the collaborator for the manual handoff endpoint.
func WithHandoffNotifier(n engine.HandoffNotifier) Option {
	return func(o *Opts) { o.Notifier = n }
}

// WithStaleThreshold sets the staleness threshold used by the sweep endpoint.
func WithStaleThreshold(d time.Duration) Option {
	return func(o *Opts) { o.StaleThreshold = d }
}

// Server wires the continuity engine, store, and delivery service to HTTP.
type Server struct {
	st             store.Store
	engine         *engine.Engine
	msgService     messaging.Service
	validator      TwilioValidator
	notifier       engine.HandoffNotifier
	addr           string
	baseURL        string
	staleThreshold time.Duration
	httpServer     *http.Server
}

// NewServer creates an API server with the given dependencies.
func NewServer(st store.Store, eng *engine.Engine, msgService messaging.Service, opts ...Option) *Server {
	cfg := Opts{
		Addr:           DefaultAddr,
		StaleThreshold: engine.DefaultStaleThreshold,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Validator == nil {
		slog.Warn("api.NewServer: no webhook validator configured, Twilio signature verification disabled")
	}
	return &Server{
		st:             st,
		engine:         eng,
		msgService:     msgService,
		validator:      cfg.Validator,
		notifier:       cfg.Notifier,
		addr:           cfg.Addr,
		baseURL:        cfg.BaseURL,
		staleThreshold: cfg.StaleThreshold,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhooks/sms", s.smsWebhookHandler)
	mux.HandleFunc("/webhooks/voice", s.voiceWebhookHandler)
	mux.HandleFunc("/webhooks/status", s.statusWebhookHandler)
	mux.HandleFunc("/handoff", s.handoffHandler)
	mux.HandleFunc("/chat", s.chatHandler)
	mux.HandleFunc("/dashboard/conversations", s.dashboardConversationsHandler)
	mux.HandleFunc("/admin/conversations/sweep", s.sweepHandler)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Supportline API listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Supportline API shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// validateTwilioRequest checks the X-Twilio-Signature header against the
// request's form parameters. Requests are accepted when no validator is
// configured.
func (s *Server) validateTwilioRequest(r *http.Request) bool {
	if s.validator == nil {
		return true
	}
	params := make(map[string]string, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	url := s.baseURL + r.URL.Path
	signature := r.Header.Get("X-Twilio-Signature")
	ok := s.validator.Validate(url, params, signature)
	if !ok {
		slog.Warn("Twilio signature validation failed", "path", r.URL.Path)
	}
	return ok
}
