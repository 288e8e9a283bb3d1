package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/strrl/ragchat/internal/identity"
	"github.com/strrl/ragchat/internal/system"
)

const (
	requestIDHeader = "X-Request-ID"
	identityKey     = "ragchat.identity"
)

// requestLogger logs one line per request through the shared logger and
// echoes (or assigns) the request id.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header(requestIDHeader, reqID)

		c.Next()

		system.Logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"user", c.GetString(identityKey),
			"request_id", reqID,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
	}
}

// requireIdentity rejects requests without a usable X-Username header.
func requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(identity.Header)
		if raw == "" {
			abort(c, http.StatusBadRequest, "missing "+identity.Header+" header")
			return
		}
		id, err := identity.Parse(raw)
		if err != nil {
			abort(c, http.StatusBadRequest, "invalid username")
			return
		}
		c.Set(identityKey, id.String())
		c.Next()
	}
}

func identityOf(c *gin.Context) identity.Identity {
	return identity.Identity(c.GetString(identityKey))
}

// Limiter hands out one token bucket per user.
type Limiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewLimiter allows perSecond requests per user with the given burst.
// A non-positive rate disables limiting.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether user may make another request now.
func (l *Limiter) Allow(user string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	limiter, ok := l.limiters[user]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[user] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// rateLimit answers 429 once a user exhausts their bucket.
func rateLimit(l *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetString(identityKey)
		if !l.Allow(user) {
			system.Logger.Warn("rate limit hit", "user", user, "path", c.Request.URL.Path)
			abort(c, http.StatusTooManyRequests, "too many requests")
			return
		}
		c.Next()
	}
}

// abort ends the request with a {"detail": ...} body.
func abort(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
