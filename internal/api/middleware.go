package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"

	"github.com/developer-mesh/style-guide-service/pkg/config"
	"github.com/developer-mesh/style-guide-service/pkg/observability"
)

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

// RequestID assigns a request id unless the caller sent one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestLogger middleware logs HTTP requests
func RequestLogger(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := map[string]any{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"latency_ms": time.Since(start).Milliseconds(),
			"client_ip":  c.ClientIP(),
			"request_id": c.GetString("request_id"),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("Request completed", fields)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("Request completed", fields)
		default:
			logger.Debug("Request completed", fields)
		}
	}
}

// MetricsMiddleware records request counts and latency by route
func MetricsMiddleware(metrics observability.MetricsClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RecordAPIOperation(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

// TracingMiddleware starts a span per request, continuing any incoming trace
func TracingMiddleware() gin.HandlerFunc {
	propagator := propagation.TraceContext{}
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := observability.StartSpan(ctx, fmt.Sprintf("%s %s", c.Request.Method, path))
		defer span.End()

		span.SetAttribute("http.method", c.Request.Method)
		span.SetAttribute("http.path", path)
		span.SetAttribute("http.client_ip", c.ClientIP())

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		span.SetAttribute("http.status_code", c.Writer.Status())
		if c.Writer.Status() >= http.StatusInternalServerError && len(c.Errors) > 0 {
			span.RecordError(c.Errors.Last().Err)
		}
	}
}

// RateLimiterStorage holds one limiter per client
type RateLimiterStorage struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	expiry   map[string]time.Time
	config   config.RateLimitConfig
	now      func() time.Time
}

// NewRateLimiterStorage creates a new rate limiter storage
func NewRateLimiterStorage(cfg config.RateLimitConfig) *RateLimiterStorage {
	if cfg.Expiration <= 0 {
		cfg.Expiration = time.Hour
	}
	return &RateLimiterStorage{
		limiters: make(map[string]*rate.Limiter),
		expiry:   make(map[string]time.Time),
		config:   cfg,
		now:      time.Now,
	}
}

// GetLimiter returns the limiter of key, replacing it once expired
func (s *RateLimiterStorage) GetLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if limiter, exists := s.limiters[key]; exists && now.Before(s.expiry[key]) {
		return limiter
	}

	// Sweep on insert so idle clients do not accumulate
	for k, exp := range s.expiry {
		if !now.Before(exp) {
			delete(s.limiters, k)
			delete(s.expiry, k)
		}
	}

	limiter := rate.NewLimiter(rate.Limit(s.config.Limit), s.config.Burst)
	s.limiters[key] = limiter
	s.expiry[key] = now.Add(s.config.Expiration)
	return limiter
}

// Len returns the number of tracked clients
func (s *RateLimiterStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimiter limits requests per client IP
func RateLimiter(cfg config.RateLimitConfig) gin.HandlerFunc {
	storage := NewRateLimiterStorage(cfg)

	return func(c *gin.Context) {
		if !storage.GetLimiter(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Status: "rate_limited",
				Error:  "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// CORSMiddleware enables Cross-Origin Resource Sharing for the given origins
func CORSMiddleware(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", strings.Join([]string{
			"Content-Type", "Authorization", "X-API-Key", RequestIDHeader,
		}, ", "))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RecoveryMiddleware turns a panic into a 500 error payload
func RecoveryMiddleware(logger observability.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Panic recovered", map[string]any{
			"panic": fmt.Sprint(recovered),
			"path":  c.Request.URL.Path,
		})
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Status: "internal_error",
			Error:  "internal server error",
		})
	})
}
