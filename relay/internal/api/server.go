// Package api provides the HTTP API and middleware for the relay.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jsjperu/wha-relay/pkg/protocol"
	"github.com/jsjperu/wha-relay/relay/internal/auth"
	"github.com/jsjperu/wha-relay/relay/internal/config"
	"github.com/jsjperu/wha-relay/relay/internal/registry"
	"github.com/jsjperu/wha-relay/relay/internal/router"
	"github.com/jsjperu/wha-relay/relay/internal/store"
)

// Response messages kept compatible with existing integrations.
const (
	msgMissingSendFields = "Faltan datos (ruc, phone_number, message)"
	msgNoSelector        = "Debe enviar socket_id O ruc"
	msgNoMatch           = "No se encontró cliente con esos datos."
)

// Server is the HTTP API server.
type Server struct {
	store        store.Store
	auth         *auth.Service
	router       *router.Router
	logger       *slog.Logger
	mux          *chi.Mux
	startTime    time.Time
	maxBodyBytes int64
	sendSecret   string
	loginRL      *rateLimiter
	sendRL       *rateLimiter
}

// NewServer creates a new API server.
func NewServer(s store.Store, authSvc *auth.Service, rt *router.Router, cfg *config.Config, logger *slog.Logger) *Server {
	srv := &Server{
		store:        s,
		auth:         authSvc,
		router:       rt,
		logger:       logger.With("component", "api"),
		startTime:    time.Now(),
		maxBodyBytes: cfg.Server.MaxBodyBytes,
		sendSecret:   cfg.Auth.SendSecret,
		sendRL:       newRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	}
	if srv.maxBodyBytes == 0 {
		srv.maxBodyBytes = 1024 * 1024
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(chimw.RealIP)
	mux.Use(securityHeadersMiddleware)
	mux.Use(makeCORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check routes (unauthenticated)
	mux.Get("/healthz", srv.handleHealthz)
	mux.Get("/readyz", srv.handleReadyz)

	// Session channel (admission handled inside)
	mux.Get("/ws", rt.HandleSessionWS)

	mux.With(ipRateLimitMiddleware(srv.sendRL, "rate limit exceeded")).Post("/api/venta", srv.handleVenta)

	// Login route only registered when an admin password is configured.
	if authSvc.Enabled() {
		srv.loginRL = newRateLimiter(5, 10)
		mux.With(ipRateLimitMiddleware(srv.loginRL, "too many login attempts")).Post("/api/login", srv.handleLogin)
	}

	// Admin routes
	mux.Group(func(r chi.Router) {
		if authSvc.Enabled() {
			r.Use(srv.authMiddleware)
		}
		r.Get("/api/clients", srv.handleListClients)
		r.Post("/api/disconnect", srv.handleDisconnect)
		r.Get("/api/auth", srv.handleListTokens)
		r.Post("/api/auth", srv.handleUpsertToken)
		r.Delete("/api/auth", srv.handleDeleteToken)
	})

	srv.mux = mux
	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// StartBackgroundTasks starts periodic cleanup tasks for rate limiters.
func (s *Server) StartBackgroundTasks(ctx context.Context) {
	if s.loginRL != nil {
		s.loginRL.StartCleanup(ctx, 5*time.Minute, 10*time.Minute)
	}
	s.sendRL.StartCleanup(ctx, 5*time.Minute, 10*time.Minute)
}

// --- Relay handlers ---

type ventaRequest struct {
	RUC         flexString `json:"ruc"`
	PhoneNumber flexString `json:"phone_number"`
	Message     string     `json:"message"`
	ImagePath   string     `json:"image_path,omitempty"`
}

func (s *Server) handleVenta(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	if err := auth.VerifySignature(s.sendSecret, body, r.Header.Get(protocol.SignatureHeader)); err != nil {
		s.logger.Warn("rejected unsigned send request", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var req ventaRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgMissingSendFields)
		return
	}

	ruc := strings.TrimSpace(string(req.RUC))
	delivered, err := s.router.Send(ruc, protocol.SendWhatsApp{
		PhoneNumber: string(req.PhoneNumber),
		Message:     req.Message,
		ImagePath:   req.ImagePath,
	})
	if errors.Is(err, router.ErrMissingFields) {
		writeError(w, http.StatusBadRequest, msgMissingSendFields)
		return
	}
	if err != nil {
		s.logger.Error("send failed", "ruc", ruc, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "Evento emitido a RUC " + ruc,
		"data":      json.RawMessage(body),
		"delivered": delivered,
	})
}

// --- Auth handlers ---

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.logger.Warn("login failed", "username", req.Username, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// --- Admin handlers ---

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients := s.router.ListConnections()
	if clients == nil {
		clients = []registry.Info{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(clients),
		"clients": clients,
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var req struct {
		SocketID string     `json:"socket_id"`
		RUC      flexString `json:"ruc"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	n, err := s.router.Disconnect(req.SocketID, string(req.RUC))
	switch {
	case errors.Is(err, router.ErrNoSelector):
		writeError(w, http.StatusBadRequest, msgNoSelector)
	case errors.Is(err, router.ErrNoMatch):
		writeError(w, http.StatusNotFound, msgNoMatch)
	case err != nil:
		s.logger.Error("disconnect failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		s.logger.Info("admin disconnect", "operator", operatorName(r), "socket_id", req.SocketID, "ruc", string(req.RUC), "count", n)
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "success",
			"message": fmt.Sprintf("Desconectados %d clientes.", n),
		})
	}
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.store.ListTokens(r.Context())
	if err != nil {
		// Reads degrade to an empty store, the same as a corrupt token file.
		s.logger.Error("list tokens failed, reporting empty store", "error", err)
		tokens = map[string]string{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) handleUpsertToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var req struct {
		RUC   flexString `json:"ruc"`
		Token string     `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ruc := strings.TrimSpace(string(req.RUC))
	err := s.store.UpsertToken(r.Context(), ruc, req.Token)
	if errors.Is(err, store.ErrInvalidCredential) {
		writeError(w, http.StatusBadRequest, "ruc and token are required")
		return
	}
	if err != nil {
		s.logger.Error("upsert token failed", "ruc", ruc, "error", err)
		writeError(w, http.StatusInternalServerError, "could not persist token")
		return
	}
	s.logger.Info("token stored", "ruc", ruc, "operator", operatorName(r))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Token guardado para RUC " + ruc,
	})
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var req struct {
		RUC flexString `json:"ruc"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ruc := strings.TrimSpace(string(req.RUC))
	if ruc == "" {
		ruc = strings.TrimSpace(r.URL.Query().Get("ruc"))
	}
	if ruc == "" {
		writeError(w, http.StatusBadRequest, "ruc is required")
		return
	}

	err := s.store.DeleteToken(r.Context(), ruc)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "RUC no encontrado")
		return
	}
	if err != nil {
		s.logger.Error("delete token failed", "ruc", ruc, "error", err)
		writeError(w, http.StatusInternalServerError, "could not persist token")
		return
	}
	s.logger.Info("token deleted", "ruc", ruc, "operator", operatorName(r))
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Token eliminado para RUC " + ruc,
	})
}

// --- Health handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"uptime":      time.Since(s.startTime).Truncate(time.Second).String(),
		"connections": s.router.Registry().Count(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// flexString accepts a JSON string or number. Billing systems often send the
// RUC and phone number as numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
