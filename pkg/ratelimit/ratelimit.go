package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const idleEvict = 3 * time.Minute

// Limiter hands out one token-bucket limiter per client IP. Idle entries
// are evicted so the map does not grow with every address ever seen.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// New creates a limiter allowing rps requests per second with the given
// burst per IP.
func New(rps float64, burst int) *Limiter {
	l := &Limiter{
		clients: map[string]*client{},
		limit:   rate.Limit(rps),
		burst:   burst,
	}
	go l.evictLoop()
	return l
}

// Allow reports whether a request from ip may proceed now.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	c := l.clients[ip]
	if c == nil {
		c = &client{lim: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.seen = time.Now()
	l.mu.Unlock()
	return c.lim.Allow()
}

// Middleware enforces the rate limit before calling the next handler
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ip, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			ip = req.RemoteAddr // already a bare IP (e.g. behind RealIP)
		}
		if !l.Allow(ip) {
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (l *Limiter) evictLoop() {
	for range time.Tick(time.Minute) {
		cutoff := time.Now().Add(-idleEvict)
		l.mu.Lock()
		for ip, c := range l.clients {
			if c.seen.Before(cutoff) {
				delete(l.clients, ip)
			}
		}
		l.mu.Unlock()
	}
}
