package gateway

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// handleProxy forwards the already-masked request to the upstream service
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	target, err := url.Parse(s.config.Gateway.Upstream)
	if err != nil {
		s.logger.Error("Failed to parse upstream URL", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	proxy := httputil.NewSingleHostReverseProxy(target)

	proxy.Director = func(req *http.Request) {
		req.URL.Scheme = target.Scheme
		req.URL.Host = target.Host
		req.Host = target.Host

		// Restore auth headers that were scrubbed on the way in
		sc := s.config.Gateway.HeaderScrubbing
		if sc.Enabled && sc.PreserveUpstreamAuth {
			if originals, ok := req.Context().Value(originalHeadersKey).(map[string][]string); ok {
				for key, values := range originals {
					req.Header.Del(key)
					for _, value := range values {
						req.Header.Add(key, value)
					}
				}
			}
		}

		if _, ok := req.Header["User-Agent"]; !ok {
			req.Header.Set("User-Agent", "Veil/0.1.0")
		}

		log.Debug("Proxying request",
			zap.String("target_url", req.URL.String()),
			zap.String("method", req.Method),
		)
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error("Proxy error", zap.Error(err))
		http.Error(w, fmt.Sprintf("Proxy error: %v", err), http.StatusBadGateway)
	}

	proxy.Transport = &http.Transport{
		ResponseHeaderTimeout: s.config.Gateway.Timeout,
	}

	start := time.Now()
	proxy.ServeHTTP(w, r)

	log.Info("Request proxied",
		zap.Duration("upstream_duration", time.Since(start)),
	)
}
