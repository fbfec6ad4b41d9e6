// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/beaver/services/beaver/decider"
	"github.com/AleutianAI/beaver/services/beaver/machine"
	"github.com/AleutianAI/beaver/services/beaver/runner"
	"github.com/AleutianAI/beaver/services/beaver/storage/badger"
	"github.com/AleutianAI/beaver/services/beaver/telemetry"
	"github.com/AleutianAI/beaver/services/beaver/verify"
)

// ServiceName names the server in request spans.
const ServiceName = "beaver-api"

// RecordStore is the subset of *badger.Store the server uses.
type RecordStore interface {
	Put(ctx context.Context, m *machine.Machine, d decider.Decision, runID string) (badger.Record, error)
	Get(ctx context.Context, m *machine.Machine) (badger.Record, error)
}

// Config configures a Server.
type Config struct {
	// RequestsPerSecond and Burst size the rate limiter.
	RequestsPerSecond float64
	Burst             int

	// Deciders is reported by the health endpoint.
	Deciders []decider.Kind
}

// Server holds the HTTP handlers.
//
// Thread Safety: Safe for concurrent use.
type Server struct {
	chain    *runner.Chain
	store    RecordStore
	limiter  *rate.Limiter
	validate *validator.Validate
	deciders []decider.Kind
	limits   verify.Limits
	logger   *slog.Logger
}

// NewServer creates the handlers.
//
// Inputs:
//   - chain: Chain used by /v1/decide. Must not be nil.
//   - store: Optional store. Nil disables persistence and /v1/records.
//   - validate: Request validator. Nil uses validator.New().
//   - cfg: Rate limit and health settings.
//   - logger: If nil, uses slog.Default().
func NewServer(chain *runner.Chain, store RecordStore, validate *validator.Validate, cfg Config, logger *slog.Logger) *Server {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Server{
		chain:    chain,
		store:    store,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		validate: validate,
		deciders: cfg.Deciders,
		limits:   verify.LimitsFor(chain.Budget()),
		logger:   logger.With("component", "api"),
	}
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(ServiceName), s.requestID())
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the beaver routes on r.
//
// Routes:
//
//	POST /v1/decide
//	POST /v1/verify
//	GET  /v1/records/:machine
//	GET  /v1/health
//	GET  /metrics
func (s *Server) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1")
	{
		limited := v1.Group("", s.rateLimit())
		limited.POST("/decide", s.HandleDecide)
		limited.POST("/verify", s.HandleVerify)
		limited.GET("/records/:machine", s.HandleRecord)

		v1.GET("/health", s.HandleHealth)
	}

	metrics := telemetry.MetricsHandler()
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.GET("/metrics", gin.WrapH(metrics))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// =============================================================================
// Middleware
// =============================================================================

const requestIDKey = "request_id"

// requestID echoes X-Request-ID or assigns a new one.
func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set(requestIDKey, id)
		c.Next()
	}
}

// rateLimit rejects requests once the token bucket is empty.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error:     "rate limit exceeded",
				Code:      "RATE_LIMITED",
				RequestID: c.GetString(requestIDKey),
			})
			return
		}
		c.Next()
	}
}

// =============================================================================
// Handlers
// =============================================================================

// HandleDecide handles POST /v1/decide.
//
// Response:
//
//	200 OK: DecideResponse
//	400 Bad Request: invalid body or machine
//	500 Internal Server Error: decider hard error
func (s *Server) HandleDecide(c *gin.Context) {
	requestID := c.GetString(requestIDKey)
	logger := s.logger.With("request_id", requestID, "handler", "HandleDecide")

	var req DecideRequest
	m, ok := s.bindMachine(c, &req, &req.Machine)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	res, err := s.chain.Decide(ctx, m)
	if err != nil {
		logger.ErrorContext(ctx, "decide failed", "machine", req.Machine, "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "DECIDE_FAILED", RequestID: requestID})
		return
	}

	resp := DecideResponse{RequestID: requestID, TraceID: telemetry.TraceID(ctx), Result: res}
	if req.Store && s.store != nil {
		if _, err := s.store.Put(ctx, m, res.Decision, requestID); err != nil {
			logger.WarnContext(ctx, "store write failed", "machine", res.Machine, "error", err)
		} else {
			resp.Stored = true
		}
	}
	logger.InfoContext(ctx, "decided", "machine", res.Machine, "verdict", res.Decision.Verdict, "decider", res.Decision.Decider)
	c.JSON(http.StatusOK, resp)
}

// HandleVerify handles POST /v1/verify.
//
// Response:
//
//	200 OK: VerifyResponse, Valid reports the verdict
//	400 Bad Request: invalid body or machine
func (s *Server) HandleVerify(c *gin.Context) {
	requestID := c.GetString(requestIDKey)

	var req VerifyRequest
	m, ok := s.bindMachine(c, &req, &req.Machine)
	if !ok {
		return
	}

	resp := VerifyResponse{RequestID: requestID, Valid: true}
	if err := verify.Check(c.Request.Context(), m, req.Certificate, s.limits); err != nil {
		resp.Valid = false
		resp.Reason = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// HandleRecord handles GET /v1/records/:machine.
//
// Response:
//
//	200 OK: badger.Record
//	400 Bad Request: invalid machine
//	404 Not Found: no record, or no store configured
func (s *Server) HandleRecord(c *gin.Context) {
	requestID := c.GetString(requestIDKey)
	if s.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no store configured", Code: "NO_STORE", RequestID: requestID})
		return
	}
	m, err := machine.Parse(c.Param("machine"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_MACHINE", RequestID: requestID})
		return
	}
	rec, err := s.store.Get(c.Request.Context(), m)
	switch {
	case errors.Is(err, badger.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND", RequestID: requestID})
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "STORE_FAILED", RequestID: requestID})
	default:
		c.JSON(http.StatusOK, rec)
	}
}

// HandleHealth handles GET /v1/health.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "healthy",
		Deciders: s.deciders,
		Store:    s.store != nil,
	})
}

// bindMachine decodes and validates the JSON body into req and parses the
// machine text it holds. On failure the response is written and ok is false.
func (s *Server) bindMachine(c *gin.Context, req any, text *string) (*machine.Machine, bool) {
	requestID := c.GetString(requestIDKey)
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "INVALID_REQUEST", RequestID: requestID})
		return nil, false
	}
	if err := s.validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST", RequestID: requestID})
		return nil, false
	}
	m, err := machine.Parse(*text)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_MACHINE", RequestID: requestID})
		return nil, false
	}
	return m, true
}
