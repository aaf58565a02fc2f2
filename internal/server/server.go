package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mealcart/commerce-router/internal/middleware"
	"github.com/mealcart/commerce-router/internal/routing"
	"github.com/mealcart/commerce-router/internal/types"
)

// Server represents the HTTP server
type Server struct {
	router             *routing.Router
	httpServer         *http.Server
	logger             *logrus.Logger
	config             *ServerConfig
	securityMiddleware *middleware.SecurityMiddleware
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string                               `yaml:"port"`
	ReadTimeout    time.Duration                        `yaml:"read_timeout"`
	WriteTimeout   time.Duration                        `yaml:"write_timeout"`
	MaxHeaderBytes int                                  `yaml:"max_header_bytes"`
	Security       *middleware.SecurityMiddlewareConfig `yaml:"security"`
}

// tokenRequest carries the confirmation token for lifecycle endpoints.
type tokenRequest struct {
	ConfirmationToken string `json:"confirmation_token"`
}

// NewServer creates a new server instance
func NewServer(router *routing.Router, config *ServerConfig, logger *logrus.Logger) (*Server, error) {
	server := &Server{
		router: router,
		logger: logger,
		config: config,
	}

	if config.Security != nil {
		securityMiddleware, err := middleware.NewSecurityMiddleware(config.Security, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize security middleware: %w", err)
		}
		server.securityMiddleware = securityMiddleware
	}

	return server, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	r := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           ":" + s.config.Port,
		Handler:        r,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.WithField("port", s.config.Port).Info("Starting commerce router server")
	return s.httpServer.ListenAndServe()
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping commerce router server")

	if s.securityMiddleware != nil {
		s.securityMiddleware.Stop()
	}

	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	if s.securityMiddleware != nil {
		r.Use(s.securityMiddleware.Handler())
	}

	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.contentTypeMiddleware)

	api := r.PathPrefix("/v1").Subrouter()

	// Order lifecycle endpoints
	api.HandleFunc("/orders/route", s.handleRouteOrder).Methods("POST")
	api.HandleFunc("/orders/confirm", s.handleConfirmOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/complete", s.handleCompleteOrder).Methods("POST")

	// Outcome feedback
	api.HandleFunc("/outcomes", s.handleRecordOutcome).Methods("POST")

	// Provider management endpoints
	api.HandleFunc("/providers", s.handleListProviders).Methods("GET")
	api.HandleFunc("/providers/{name}", s.handleGetProvider).Methods("GET")
	api.HandleFunc("/reliability", s.handleReliability).Methods("GET")
	api.HandleFunc("/reliability/{name}", s.handleProviderReliability).Methods("GET")

	// Health check endpoint (no /v1 prefix)
	r.HandleFunc("/health", s.handleHealthCheck).Methods("GET")

	s.setupSwaggerRoutes(r)

	return r
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}

		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"user_agent":  r.UserAgent(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" || r.Method == "PUT" {
			contentType := r.Header.Get("Content-Type")
			if contentType != "application/json" && contentType != "" {
				s.writeErrorResponse(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Handlers

// handleRouteOrder fans a cart out to all providers and returns the
// routing decision with a confirmation token.
func (s *Server) handleRouteOrder(w http.ResponseWriter, r *http.Request) {
	var cart types.CartRequest
	if err := json.NewDecoder(r.Body).Decode(&cart); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	result, err := s.router.RouteOrder(r.Context(), &cart)
	if err != nil {
		s.writeRoutingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleConfirmOrder(w http.ResponseWriter, r *http.Request) {
	token, ok := s.decodeTokenRequest(w, r)
	if !ok {
		return
	}

	result, err := s.router.Confirm(r.Context(), token)
	if err != nil {
		s.writeRoutingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	token, ok := s.decodeTokenRequest(w, r)
	if !ok {
		return
	}

	if err := s.router.Cancel(r.Context(), token); err != nil {
		s.writeRoutingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"cancelled": true,
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	token, ok := s.decodeTokenRequest(w, r)
	if !ok {
		return
	}

	if err := s.router.Complete(r.Context(), token); err != nil {
		s.writeRoutingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"completed": true,
		"timestamp": time.Now().Unix(),
	})
}

// handleRecordOutcome ingests a delivery outcome. Duplicate submissions
// for the same order and provider are acknowledged without effect.
func (s *Server) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	var outcome types.OrderOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if err := s.router.RecordOutcome(r.Context(), outcome); err != nil {
		s.writeRoutingError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"recorded":  true,
		"order_id":  outcome.OrderID,
		"provider":  outcome.ProviderID,
		"timestamp": time.Now().Unix(),
	})
}

// handleListProviders lists all registered providers
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	names := s.router.Aggregator().ListProviders()

	response := map[string]interface{}{
		"providers": names,
		"count":     len(names),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleGetProvider gets information about a specific provider
func (s *Server) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]

	provider, exists := s.router.Aggregator().GetProvider(name)
	if !exists {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("Provider %s not found", name))
		return
	}

	status := "healthy"
	if err := provider.HealthCheck(r.Context()); err != nil {
		status = "unhealthy"
	}

	response := map[string]interface{}{
		"name":        name,
		"provider":    provider.GetProviderName(),
		"status":      status,
		"reliability": s.router.Learner().GetReliability(name),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleReliability returns the learned reliability record per provider.
func (s *Server) handleReliability(w http.ResponseWriter, r *http.Request) {
	learner := s.router.Learner()

	records := make([]types.ProviderReliabilityRecord, 0)
	for _, providerID := range learner.Providers() {
		records = append(records, learner.Record(providerID))
	}

	response := map[string]interface{}{
		"providers": records,
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleProviderReliability(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]

	if _, exists := s.router.Aggregator().GetProvider(name); !exists {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("Provider %s not found", name))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.router.Learner().Record(name))
}

// handleHealthCheck returns overall health status
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	agg := s.router.Aggregator()

	providerStatus := make(map[string]string)
	overallHealthy := true
	for _, name := range agg.ListProviders() {
		provider, _ := agg.GetProvider(name)
		if err := provider.HealthCheck(r.Context()); err != nil {
			providerStatus[name] = "unhealthy"
			overallHealthy = false
		} else {
			providerStatus[name] = "healthy"
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !overallHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    status,
		"providers": providerStatus,
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// Helper functions

func (s *Server) decodeTokenRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return "", false
	}
	if req.ConfirmationToken == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "confirmation_token is required")
		return "", false
	}
	return req.ConfirmationToken, true
}

// writeRoutingError maps routing engine error codes to HTTP statuses.
func (s *Server) writeRoutingError(w http.ResponseWriter, err error) {
	var routingErr *types.RoutingError
	if errors.As(err, &routingErr) {
		s.writeCodedError(w, statusForCode(routingErr.Code), string(routingErr.Code), routingErr.Message)
		return
	}

	var noProviders *types.NoProvidersError
	if errors.As(err, &noProviders) {
		s.writeCodedError(w, http.StatusServiceUnavailable, string(types.ErrCodeNoProvidersAvailable), noProviders.Error())
		return
	}

	s.writeErrorResponse(w, http.StatusInternalServerError, err.Error())
}

func statusForCode(code types.ErrorCode) int {
	switch code {
	case types.ErrCodeValidation:
		return http.StatusBadRequest
	case types.ErrCodeTokenNotFound:
		return http.StatusNotFound
	case types.ErrCodeTokenExpired:
		return http.StatusGone
	case types.ErrCodeTokenAlreadyUsed, types.ErrCodeOutcomeAlreadyRecorded:
		return http.StatusConflict
	case types.ErrCodeNoProvidersAvailable, types.ErrCodeProviderTimeout, types.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeCodedError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    code,
			"code":    statusCode,
		},
		"timestamp": time.Now().Unix(),
	}

	json.NewEncoder(w).Encode(errorResp)
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeCodedError(w, statusCode, "api_error", message)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
