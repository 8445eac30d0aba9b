package http

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"booking-reconciler/internal/config"
	"booking-reconciler/internal/logger"
	"booking-reconciler/internal/security"
)

const cronSecretHeader = "X-Cron-Secret"

type AuthMiddleware struct {
	tokenManager security.TokenManager
	cron         security.CronVerifier
}

func NewAuthMiddleware(tm security.TokenManager, cron security.CronVerifier) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tm, cron: cron}
}

// Handler authenticates a request according to its named route's level.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}
		level := config.RouteSecurity(name)

		if level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		// Cron callers present the shared secret instead of a token
		if level == config.SecurityCronOrAdmin {
			if secret := r.Header.Get(cronSecretHeader); secret != "" {
				if err := m.cron.Verify(secret); err != nil {
					writeError(w, http.StatusUnauthorized, "invalid cron secret", nil)
					return
				}
				next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), Caller{Cron: true})))
				return
			}
		}

		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authorization token is not provided", nil)
			return
		}

		claims, err := m.tokenManager.ValidateAdminToken(token)
		if err != nil && level == config.SecurityCronOrAdmin && m.cron.Verify(token) == nil {
			// scheduler platforms send the shared secret as a bearer token
			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), Caller{Cron: true})))
			return
		}
		switch {
		case err == nil:
		case errors.Is(err, security.ErrNotAdmin):
			writeError(w, http.StatusForbidden, "administrator role required", nil)
			return
		default:
			writeError(w, http.StatusUnauthorized, "invalid token", err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), Caller{ActorID: claims.ActorID()})))
	})
}

func bearerToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}

// RateLimiter throttles each caller with its own token bucket. Callers are
// keyed by the Authorization header when present, else by client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Limit(float64(requestsPerMinute) / 60),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= 10000 {
			l.sweep(now)
		}
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *RateLimiter) sweep(now time.Time) {
	for k, v := range l.limiters {
		if now.Sub(v.lastSeen) > l.idleTTL {
			delete(l.limiters, k)
		}
	}
}

func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return "auth:" + auth
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs each request with its outcome and latency.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		if rec.status >= http.StatusInternalServerError {
			logger.Error("HTTP request failed", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration_ms", duration.Milliseconds())
			return
		}
		logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration_ms", duration.Milliseconds())
	})
}

// Recoverer turns a handler panic into a 500.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Panic serving request", "method", r.Method, "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
