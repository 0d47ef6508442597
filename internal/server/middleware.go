// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ============================================================================
// CORS
// ============================================================================

// CORSConfig controls cross-origin access to the API.
type CORSConfig struct {
	// AllowedOrigins is a list of allowed origins. "*" allows all and
	// "*.example.com" allows subdomains.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// DefaultCORSConfig allows the local development origins.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowedOrigins: []string{
			"http://localhost",
			"http://localhost:3000",
			"http://127.0.0.1",
			"http://127.0.0.1:3000",
		},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         86400,
	}
}

// NewCORSConfig returns the default config with origins replaced when
// any are given.
func NewCORSConfig(origins []string) *CORSConfig {
	c := DefaultCORSConfig()
	if len(origins) > 0 {
		c.AllowedOrigins = append([]string(nil), origins...)
	}
	return c
}

func (c *CORSConfig) allowOrigin(origin string) (string, bool) {
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" {
			return "*", true
		}
		if origin == "" {
			continue
		}
		if allowed == origin {
			return origin, true
		}
		if strings.HasPrefix(allowed, "*.") && strings.HasSuffix(origin, strings.TrimPrefix(allowed, "*")) {
			return origin, true
		}
	}
	return "", false
}

// CORSMiddleware sets Access-Control headers for allowed origins and
// answers preflight requests.
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(config.AllowedMethods, ", ")
	headers := strings.Join(config.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if value, ok := config.allowOrigin(r.Header.Get("Origin")); ok {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", value)
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", maxAge)
				if value != "*" {
					h.Add("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Rate Limiter
// ============================================================================

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*clientLimiter
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	lastScan time.Time
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per client, with bursts up to
// the same amount. perMinute <= 0 returns nil, which disables limiting.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Allow reports whether a request from ip may proceed.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.evictIdle(now)

	c, ok := rl.clients[ip]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// evictIdle drops clients not seen within idleTTL. Caller holds mu.
func (rl *RateLimiter) evictIdle(now time.Time) {
	if now.Sub(rl.lastScan) < rl.idleTTL {
		return
	}
	rl.lastScan = now
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.idleTTL {
			delete(rl.clients, ip)
		}
	}
}

// RateLimitMiddleware rejects requests over the per-client budget with 429.
// A nil limiter passes everything through.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := GetClientIP(r)
			if !rl.Allow(ip) {
				slog.Warn("request rate limited", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				writeJSON(w, http.StatusTooManyRequests, errorBody{
					Error:       "Too many requests. Please slow down.",
					RateLimited: true,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Request Logging
// ============================================================================

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware logs one line per request.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start),
				"ip", GetClientIP(r),
			)
		})
	}
}

// ============================================================================
// Security Headers
// ============================================================================

// SecurityHeadersMiddleware adds the standard hardening headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Content-Security-Policy", "default-src 'self'")
			h.Set("Cache-Control", "no-store")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Recovery
// ============================================================================

// RecoveryMiddleware turns a handler panic into a 500 response.
func RecoveryMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					slog.Error("panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"error", err,
						"stack", string(debug.Stack()),
					)
					writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal Server Error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ============================================================================
// Client IP
// ============================================================================

// trustedProxies are the networks whose forwarded headers are believed.
var trustedProxies = []string{
	"127.0.0.0/8",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7",
}

var (
	parsedTrustedProxies []*net.IPNet
	trustedProxiesOnce   sync.Once
)

func isTrustedProxy(ipStr string) bool {
	trustedProxiesOnce.Do(func() {
		for _, cidr := range trustedProxies {
			if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
				parsedTrustedProxies = append(parsedTrustedProxies, ipNet)
			}
		}
	})

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range parsedTrustedProxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// GetClientIP returns the client address. X-Forwarded-For and X-Real-IP
// are honoured only when the connection comes from a trusted proxy.
func GetClientIP(r *http.Request) string {
	connIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		connIP = r.RemoteAddr
	}
	if !isTrustedProxy(connIP) {
		return connIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return connIP
}
