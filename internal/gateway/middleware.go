package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/veilhq/veil/internal/audit"
	"github.com/veilhq/veil/internal/config"
	"github.com/veilhq/veil/internal/pii"
	"github.com/veilhq/veil/internal/websocket"
)

type contextKey string

const (
	requestIDKey       contextKey = "request_id"
	originalHeadersKey contextKey = "original_headers"
)

// loggingMiddleware logs HTTP requests and responses
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := uuid.New().String()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		// Create response writer wrapper to capture response data
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		s.logger.WithRequestID(requestID).Info("HTTP request started",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		s.logger.WithRequestID(requestID).Info("HTTP request completed",
			zap.Int("status_code", rw.statusCode),
			zap.Duration("duration", duration),
			zap.Int("response_size", rw.size),
		)

		s.wsHub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeRequestLog,
			Timestamp: time.Now(),
			RequestID: requestID,
			Data: websocket.RequestLogEvent{
				RequestID:  requestID,
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: rw.statusCode,
				ClientIP:   getClientIP(r),
				Duration:   duration,
			},
		})
	})
}

// rateLimitMiddleware applies a per-client token bucket
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.RateLimit.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if !s.limiters.allow(getClientIP(r)) {
			s.logger.Warn("Rate limit exceeded",
				zap.String("client_ip", getClientIP(r)),
				zap.String("path", r.URL.Path),
			)
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// maskingMiddleware masks PII in request bodies before they leave the gateway.
// Every category is masked here regardless of the per-category settings;
// the toggles only govern user-facing flows like the preview endpoint.
func (s *Server) maskingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r.Context())
		log := s.logger.WithRequestID(requestID)

		opts, err := s.policy.ResolveOptions()
		if err != nil {
			log.Error("Failed to resolve masking options", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		// Scrub sensitive headers, keeping originals for upstream auth
		r = s.scrubHeaders(r)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			log.Error("Failed to read request body", zap.Error(err))
			http.Error(w, "Failed to read request", http.StatusInternalServerError)
			return
		}
		r.Body.Close()

		masked := body
		findings := []pii.Finding{}
		start := time.Now()

		if len(body) > 0 && isJSONContentType(r.Header.Get("Content-Type")) {
			var payload interface{}
			if err := json.Unmarshal(body, &payload); err != nil {
				// Not parseable, forward the original body untouched
				log.Debug("Request body is not valid JSON, skipping masking", zap.Error(err))
			} else {
				findings = s.engine.Findings(string(body))
				maskedPayload := s.engine.MaskValue(payload, opts)
				if encoded, err := json.Marshal(maskedPayload); err == nil {
					masked = encoded
				} else {
					log.Error("Failed to encode masked payload", zap.Error(err))
				}
			}
		} else if len(body) > 0 {
			findings = s.engine.Findings(string(body))
			masked = []byte(s.engine.MaskText(string(body), opts))
		}

		if len(findings) > 0 {
			total := 0
			for _, f := range findings {
				total += f.Count
			}

			log.Info("PII masked in request",
				zap.Int("categories", len(findings)),
				zap.Int("total_findings", total),
			)

			s.recordDetection(r, requestID, findings)

			s.wsHub.BroadcastEvent(websocket.Event{
				Type:      websocket.EventTypePIIDetection,
				Timestamp: time.Now(),
				RequestID: requestID,
				Data: websocket.PIIDetectionEvent{
					RequestID:     requestID,
					Method:        r.Method,
					Path:          r.URL.Path,
					ClientIP:      getClientIP(r),
					Findings:      findings,
					TotalFindings: total,
					MaskedContent: true,
					ProcessingMS:  float64(time.Since(start).Nanoseconds()) / 1e6,
				},
			})
		}

		r.Body = io.NopCloser(bytes.NewReader(masked))
		r.ContentLength = int64(len(masked))

		next.ServeHTTP(w, r)
	})
}

// scrubHeaders removes configured sensitive headers from the request and
// stashes the originals in the context so the proxy can restore upstream auth.
func (s *Server) scrubHeaders(r *http.Request) *http.Request {
	sc := s.config.Gateway.HeaderScrubbing
	if !sc.Enabled {
		return r
	}

	originals := make(map[string][]string)
	for _, name := range sc.Headers {
		if values := r.Header.Values(name); len(values) > 0 {
			copied := make([]string, len(values))
			copy(copied, values)
			originals[http.CanonicalHeaderKey(name)] = copied
			r.Header.Del(name)
		}
	}

	if len(originals) == 0 {
		return r
	}
	return r.WithContext(context.WithValue(r.Context(), originalHeadersKey, originals))
}

func (s *Server) recordDetection(r *http.Request, requestID string, findings []pii.Finding) {
	if s.audit == nil {
		return
	}

	event := &audit.Event{
		Type:      audit.EventDetection,
		Timestamp: time.Now(),
		RequestID: requestID,
		Path:      r.URL.Path,
		ClientIP:  getClientIP(r),
		Severity:  audit.SeverityInfo,
		Findings:  findings,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Warn("Failed to record audit event", zap.Error(err))
	}
}

func isJSONContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}

// limiterPool keeps one token bucket per client IP
type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newLimiterPool(cfg config.RateLimitConfig) *limiterPool {
	return &limiterPool{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.Burst,
	}
}

func (p *limiterPool) allow(clientIP string) bool {
	p.mu.Lock()
	limiter, ok := p.limiters[clientIP]
	if !ok {
		limiter = rate.NewLimiter(p.rps, p.burst)
		p.limiters[clientIP] = limiter
	}
	p.mu.Unlock()

	return limiter.Allow()
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}
