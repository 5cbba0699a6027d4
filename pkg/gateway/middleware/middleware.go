package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labworks/platform/pkg/auth"
	"github.com/labworks/platform/pkg/common/httpapi"
	"github.com/labworks/platform/pkg/common/logger"
	"github.com/labworks/platform/pkg/common/models"
	"github.com/labworks/platform/pkg/observability/metrics"
)

type contextKey string

const (
	userContextKey   contextKey = "user"
	claimsContextKey contextKey = "claims"
)

// UserResolver loads the live user record for a token subject. Role and
// laboratory always come from the store, never from token claims.
type UserResolver interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		r.Header.Set("X-Request-ID", reqID)

		metrics.IncHTTPRequests()
		next.ServeHTTP(w, r)

		logger.Log.WithFields(map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
			"request_id":  reqID,
			"duration":    time.Since(start).Milliseconds(),
		}).Info("HTTP request")
	})
}

func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Log.WithField("error", err).Error("Panic recovered")
				httpapi.WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// Authenticate validates the bearer token, rejects revoked tokens, and
// resolves the subject to a live user record placed on the request context.
// A user deleted after token issue therefore fails here, not deep in a
// handler.
func Authenticate(tokens *auth.JWTManager, revocations *auth.RevocationList, users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "authorization header required")
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")
			if token == header {
				httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "bearer token required")
				return
			}

			claims, err := tokens.ValidateToken(token)
			if err != nil {
				code := "invalid_token"
				if err == auth.ErrTokenExpired {
					code = "token_expired"
				}
				httpapi.WriteError(w, http.StatusUnauthorized, code, "invalid or expired token")
				return
			}

			if revocations != nil {
				if err := revocations.Check(r.Context(), claims); err != nil {
					httpapi.WriteError(w, http.StatusUnauthorized, "token_revoked", "token has been revoked")
					return
				}
			}

			subject, err := claims.SubjectID()
			if err != nil {
				httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid token subject")
				return
			}

			user, err := users.GetUserByID(r.Context(), subject)
			if err != nil {
				httpapi.WriteError(w, http.StatusUnauthorized, "invalid_token", "unknown token subject")
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			ctx = context.WithValue(ctx, claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CurrentUser returns the authenticated user placed on the context by
// Authenticate.
func CurrentUser(r *http.Request) (models.User, bool) {
	user, ok := r.Context().Value(userContextKey).(models.User)
	return user, ok
}

// CurrentClaims returns the validated token claims, for logout.
func CurrentClaims(r *http.Request) (*auth.Claims, bool) {
	claims, ok := r.Context().Value(claimsContextKey).(*auth.Claims)
	return claims, ok
}

// RateLimit is a per-process token bucket.
func RateLimit(rps int, burst int) func(http.Handler) http.Handler {
	type bucket struct {
		tokens int
		last   time.Time
		mu     sync.Mutex
	}
	b := &bucket{tokens: burst, last: time.Now()}
	refill := func() {
		now := time.Now()
		elapsed := now.Sub(b.last).Seconds()
		add := int(elapsed * float64(rps))
		if add > 0 {
			b.tokens += add
			if b.tokens > burst {
				b.tokens = burst
			}
			b.last = now
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			refill()
			if b.tokens <= 0 {
				b.mu.Unlock()
				httpapi.WriteError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			b.tokens--
			b.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
