package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/azaliaz/library/library-service/internal/logger"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "requestID"

	clientTTL     = 3 * time.Minute
	sweepInterval = time.Minute
)

func requestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		rid := ctx.GetHeader(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		ctx.Set(ctxRequestID, rid)
		ctx.Header(headerRequestID, rid)
		ctx.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		log := logger.Get()
		event := log.Info()
		if ctx.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.Str("request_id", ctx.GetString(ctxRequestID)).
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Int("status", ctx.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("ip", ctx.ClientIP()).
			Msg("request handled")
	}
}

func recoverPanic(ctx *gin.Context, recovered any) {
	logger.Get().Error().Interface("panic", recovered).
		Str("request_id", ctx.GetString(ctxRequestID)).
		Msg("handler panicked")
	abortWithError(ctx, http.StatusInternalServerError, "Internal Server Error", "Something went wrong")
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter hands every client ip its own token bucket.
type ipLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	rps     rate.Limit
	burst   int
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*client),
		rps:     rate.Limit(rps),
		burst:   max(burst, 1),
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.clients[ip]
	if !found {
		c = &client{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = time.Now()
	return c.limiter.Allow()
}

func (l *ipLimiter) middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !l.allow(ctx.ClientIP()) {
			abortWithError(ctx, http.StatusTooManyRequests, "Too many requests", "Rate limit exceeded")
			return
		}
		ctx.Next()
	}
}

// sweep drops clients idle for longer than clientTTL until ctx is done.
func (l *ipLimiter) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			for ip, c := range l.clients {
				if time.Since(c.lastSeen) > clientTTL {
					delete(l.clients, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}
