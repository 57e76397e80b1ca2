package app

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const headerRequestID = "X-Request-ID"

// RequestID propagates or assigns a request id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(headerRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func AccessLog(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(headerRequestID)))
	}
}

// limiterIdle is how long a client's limiter may go unused before it is
// dropped. A limiter idle for a minute has refilled its whole burst, so
// eviction never changes a decision.
const limiterIdle = 3 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	perMin    int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterStore(perMin int) *limiterStore {
	return &limiterStore{
		limiters: map[string]*limiterEntry{},
		perMin:   perMin,
		idle:     limiterIdle,
		now:      time.Now,
	}
}

func (s *limiterStore) get(ip string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.idle {
		s.sweep(now)
	}
	e, ok := s.limiters[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMin)), s.perMin)}
		s.limiters[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}

// sweep drops limiters unused for s.idle. Callers hold s.mu.
func (s *limiterStore) sweep(now time.Time) {
	for ip, e := range s.limiters {
		if now.Sub(e.lastSeen) >= s.idle {
			delete(s.limiters, ip)
		}
	}
	s.lastSweep = now
}

// RateLimit allows perMin requests per minute per client IP, with a burst
// of the same size.
func RateLimit(perMin int) gin.HandlerFunc {
	if perMin <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	store := newLimiterStore(perMin)
	return func(c *gin.Context) {
		if !store.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
