package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/botrelay/internal/config"
	"github.com/JakeFAU/botrelay/internal/metrics"
	"github.com/JakeFAU/botrelay/internal/relay"
)

const defaultRequestTimeout = 120 * time.Second

// Relay is the subset of relay.Service the handlers depend on.
type Relay interface {
	PublicCategoryID() string
	ListPublicBots(ctx context.Context) ([]relay.Bot, error)
	ListAllowedCategories(ctx context.Context) ([]relay.Category, error)
	RegisterBot(ctx context.Context, req relay.RegisterRequest) (relay.Confirmation, error)
	CategorySettings(ctx context.Context, categoryID string) (relay.Category, error)
	Registrations(ctx context.Context, altAccount string) ([]relay.Registration, error)
}

// IDGenerator issues request IDs.
type IDGenerator interface {
	RequestID() string
}

// Server wires HTTP handlers to the relay service.
type Server struct {
	router chi.Router
	relay  Relay
	idGen  IDGenerator
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc Relay, idGen IDGenerator, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		relay:  svc,
		idGen:  idGen,
		cfg:    cfg,
		logger: logger,
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/public-bots", s.listPublicBots)
		r.Get("/categories", s.listCategories)
		r.Post("/register-bot", s.registerBot)
		r.Get("/category-settings", s.categorySettings)
		r.Get("/registrations", s.registrations)
	})

	if cfg.Server.StaticDir != "" {
		r.Get("/", s.index)
	}

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.cfg.HasCredential() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unconfigured"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(s.cfg.Server.StaticDir, "index.html")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		s.fail(w, r, fmt.Errorf("stat index: %w", err))
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) listPublicBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.relay.ListPublicBots(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := publicBotsResponse{Success: true, Bots: bots, CategoryID: s.relay.PublicCategoryID()}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.relay.ListAllowedCategories(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoriesResponse{Success: true, Categories: categories})
}

func (s *Server) registerBot(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRegisterRequest(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	confirmation, err := s.relay.RegisterBot(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registerResponse{Success: true, Bot: confirmation})
}

func (s *Server) categorySettings(w http.ResponseWriter, r *http.Request) {
	category, err := s.relay.CategorySettings(r.Context(), r.URL.Query().Get("categoryId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categoryResponse{Success: true, Category: category})
}

func (s *Server) registrations(w http.ResponseWriter, r *http.Request) {
	regs, err := s.relay.Registrations(r.Context(), r.URL.Query().Get("altAccount"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registrationsResponse{Success: true, Registrations: regs})
}

type publicBotsResponse struct {
	Success    bool        `json:"success"`
	Bots       []relay.Bot `json:"bots"`
	CategoryID string      `json:"categoryId,omitempty"`
}

type categoriesResponse struct {
	Success    bool             `json:"success"`
	Categories []relay.Category `json:"categories"`
}

type registerResponse struct {
	Success bool               `json:"success"`
	Bot     relay.Confirmation `json:"bot"`
}

type categoryResponse struct {
	Success  bool           `json:"success"`
	Category relay.Category `json:"category"`
}

type registrationsResponse struct {
	Success       bool                 `json:"success"`
	Registrations []relay.Registration `json:"registrations"`
}
