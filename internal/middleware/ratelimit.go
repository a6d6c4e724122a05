package middleware

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/time/rate"

	"github.com/avisly/playengine/internal/fraud"
)

const (
	visitorIdleTimeout = 10 * time.Minute

	// DefaultMaxVisitors bounds the number of tracked client addresses
	DefaultMaxVisitors = 100000
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
//
// The client IP is the direct peer. X-Forwarded-For is believed only when
// the peer is a trusted proxy. Once maxVisitors addresses are tracked, new
// addresses are refused until idle ones are swept.
type RateLimiter struct {
	mu          sync.Mutex
	visitors    map[string]*visitor
	limit       rate.Limit
	burst       int
	trusted     []netip.Prefix
	maxVisitors int
	lastSweep   time.Time
	now         func() time.Time
}

// NewRateLimiter creates a limiter allowing rps requests per second per IP
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors:    make(map[string]*visitor),
		limit:       rate.Limit(rps),
		burst:       burst,
		maxVisitors: DefaultMaxVisitors,
		now:         time.Now,
	}
}

// WithTrustedProxies sets the proxies whose X-Forwarded-For is believed
func (l *RateLimiter) WithTrustedProxies(prefixes []netip.Prefix) *RateLimiter {
	l.trusted = prefixes
	return l
}

// WithMaxVisitors bounds the number of tracked addresses
func (l *RateLimiter) WithMaxVisitors(n int) *RateLimiter {
	if n > 0 {
		l.maxVisitors = n
	}
	return l
}

// Allow reports whether ip may make a request now
func (l *RateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > visitorIdleTimeout {
		l.sweep(now)
	}

	v, ok := l.visitors[ip]
	if !ok {
		if len(l.visitors) >= l.maxVisitors {
			l.sweep(now)
			if len(l.visitors) >= l.maxVisitors {
				return false
			}
		}
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *RateLimiter) sweep(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTimeout {
			delete(l.visitors, key)
		}
	}
	l.lastSweep = now
}

// Tracked returns the number of addresses holding a bucket
func (l *RateLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Interceptor refuses requests over the limit with resource_exhausted
func (l *RateLimiter) Interceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			ip := fraud.TrustedClientIP(req.Header(), req.Peer().Addr, l.trusted)
			if !l.Allow(ip) {
				return nil, connect.NewError(connect.CodeResourceExhausted, errTooManyRequests)
			}
			return next(ctx, req)
		}
	}
}
