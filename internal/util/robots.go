package util

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultRobotsTTL is how long a parsed robots.txt is trusted
	DefaultRobotsTTL = 24 * time.Hour

	// robots.txt files are read up to 500 KiB (RFC 9309)
	maxRobotsBytes = 500 << 10
)

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// RobotsChecker answers whether the source APIs allow claimcheck to call
// a URL. Files are cached per origin; concurrent lookups of one origin
// share a single request.
type RobotsChecker struct {
	httpClient *http.Client
	userAgent  string
	ttl        time.Duration
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]robotsEntry
	group   singleflight.Group
}

// NewRobotsChecker creates a checker for userAgent. ttl <= 0 uses
// DefaultRobotsTTL.
func NewRobotsChecker(userAgent string, httpClient *http.Client, ttl time.Duration) *RobotsChecker {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = DefaultRobotsTTL
	}
	return &RobotsChecker{
		httpClient: httpClient,
		userAgent:  NormalizeUserAgent(userAgent),
		ttl:        ttl,
		now:        time.Now,
		entries:    make(map[string]robotsEntry),
	}
}

// CanFetch reports whether rawURL may be requested and the crawl delay
// the origin asks for. An unreachable robots.txt allows everything; a 5xx
// answer disallows everything.
func (r *RobotsChecker) CanFetch(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, fmt.Errorf("parse URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return false, 0, fmt.Errorf("parse URL: %q is not absolute", rawURL)
	}

	data, err := r.rules(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return true, 0, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	var delay time.Duration
	if g := data.FindGroup(r.userAgent); g != nil {
		delay = g.CrawlDelay
	}
	return data.TestAgent(path, r.userAgent), delay, nil
}

func (r *RobotsChecker) rules(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	if data, ok := r.cached(origin); ok {
		return data, nil
	}

	v, err, _ := r.group.Do(origin, func() (any, error) {
		if data, ok := r.cached(origin); ok {
			return data, nil
		}
		data, err := r.fetch(ctx, origin+"/robots.txt")
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.entries[origin] = robotsEntry{data: data, fetchedAt: r.now()}
		r.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*robotstxt.RobotsData), nil
}

func (r *RobotsChecker) cached(origin string) (*robotstxt.RobotsData, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[origin]
	if !ok || r.now().Sub(e.fetchedAt) >= r.ttl {
		return nil, false
	}
	return e.data, true
}

func (r *RobotsChecker) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

// NormalizeUserAgent reduces a user agent to its product token
// ("claimcheck/0.3 (+url)" -> "claimcheck")
func NormalizeUserAgent(ua string) string {
	parts := strings.Fields(ua)
	if len(parts) > 0 {
		return strings.Split(parts[0], "/")[0]
	}
	return ua
}
