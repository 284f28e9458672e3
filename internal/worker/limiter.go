package worker

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces out requests per source host. Each host gets its own
// token bucket; hosts can be slowed individually by configuration or by
// a robots.txt crawl delay.
type Limiter struct {
	mu    sync.Mutex
	hosts map[string]*rate.Limiter
	every rate.Limit
	burst int
}

// NewLimiter creates a limiter. requestsPerSecond <= 0 disables limiting;
// burst <= 0 means 5.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 5
	}
	every := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		every = rate.Inf
	}
	return &Limiter{
		hosts: make(map[string]*rate.Limiter),
		every: every,
		burst: burst,
	}
}

// Wait blocks until the host of rawURL may be called
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}
	return l.bucket(host).Wait(ctx)
}

// WaitWithDelay waits for a token and then sleeps for politeness
func (l *Limiter) WaitWithDelay(ctx context.Context, rawURL string, politeness time.Duration) error {
	if err := l.Wait(ctx, rawURL); err != nil {
		return err
	}
	if politeness <= 0 {
		return nil
	}
	t := time.NewTimer(politeness)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SetHostRate overrides the rate of one host (a bare host name or a URL)
func (l *Limiter) SetHostRate(host string, requestsPerSecond float64, burst int) {
	if h, err := hostOf(host); err == nil {
		host = h
	} else {
		host = normalizeHost(host)
	}
	if burst <= 0 {
		burst = l.burst
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts[host] = rate.NewLimiter(limit, burst)
}

// ApplyCrawlDelay slows the host of rawURL to one request per delay when
// that is stricter than its current rate. Tokens already spent stay spent.
func (l *Limiter) ApplyCrawlDelay(rawURL string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	host, err := hostOf(rawURL)
	if err != nil {
		return
	}
	every := rate.Every(delay)

	b := l.bucket(host)
	if b.Limit() <= every {
		return
	}
	b.SetLimit(every)
	b.SetBurst(1)
}

func (l *Limiter) allow(rawURL string) bool {
	host, err := hostOf(rawURL)
	if err != nil {
		return false
	}
	return l.bucket(host).Allow()
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.hosts[host]
	if !ok {
		b = rate.NewLimiter(l.every, l.burst)
		l.hosts[host] = b
	}
	return b
}

// hostOf returns the lower-cased host of rawURL, without the scheme's
// default port
func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	host := normalizeHost(u.Host)
	if port := u.Port(); (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		host = strings.ToLower(u.Hostname())
	}
	return host, nil
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	if host, port, err := net.SplitHostPort(h); err == nil && port == "" {
		return host
	}
	return h
}
