// Package suno is a client for the cookie-authenticated Suno studio API.
//
// A Client starts unauthenticated. Init acquires the session id from the
// cookie and the first bearer token; Start keeps renewing the token in the
// background. Privileged calls renew a missing token first, and a call that
// is rejected with 401 renews once and retries once before failing with
// core.ErrAuth.
package suno

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"go.uber.org/zap"

	"muse/internal/core"
)

const (
	DefaultBaseURL     = "https://studio-api.suno.ai"
	DefaultClerkURL    = "https://clerk.suno.com"
	DefaultSongPageURL = "https://suno.com/song"
	DefaultCDNURL      = "https://cdn1.suno.ai"

	clerkJSVersion = "4.73.3"
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	generateTimeout = 10 * time.Second
	feedTimeout     = 3 * time.Second
	maxErrorBody    = 512
)

// statusError is a non-2xx response.
type statusError struct {
	method string
	url    string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("suno %s %s: status %d: %s", e.method, e.url, e.status, e.body)
}

type Client struct {
	http   *http.Client
	cookie string
	logger *zap.Logger

	baseURL     string
	clerkURL    string
	songPageURL string
	cdnURL      string

	keepAliveInterval time.Duration
	renewPauseMin     time.Duration
	renewPauseMax     time.Duration
	pollInitialWait   time.Duration
	pollMinInterval   time.Duration
	pollMaxInterval   time.Duration
	pollBudget        time.Duration
	lyricsInterval    time.Duration

	mu    sync.RWMutex
	sid   string
	token string

	stopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Client)

// WithBaseURLs overrides the studio API and Clerk endpoints.
func WithBaseURLs(baseURL, clerkURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
		c.clerkURL = clerkURL
	}
}

// WithSongPageURL overrides the public song page root used for scraping.
func WithSongPageURL(songPageURL string) Option {
	return func(c *Client) {
		c.songPageURL = songPageURL
	}
}

func WithKeepAliveInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.keepAliveInterval = interval
		}
	}
}

// WithPolling overrides the generation polling schedule: an initial wait,
// a jittered interval between polls and the overall budget.
func WithPolling(initialWait, minInterval, maxInterval, budget time.Duration) Option {
	return func(c *Client) {
		c.pollInitialWait = initialWait
		c.pollMinInterval = minInterval
		c.pollMaxInterval = maxInterval
		c.pollBudget = budget
	}
}

// WithRenewPause overrides the pause after a waited token renewal.
func WithRenewPause(minPause, maxPause time.Duration) Option {
	return func(c *Client) {
		c.renewPauseMin = minPause
		c.renewPauseMax = maxPause
	}
}

func WithLyricsInterval(interval time.Duration) Option {
	return func(c *Client) {
		c.lyricsInterval = interval
	}
}

func New(cookie string, logger *zap.Logger, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)

	c := &Client{
		http:              &http.Client{Jar: jar},
		cookie:            cookie,
		logger:            logger.Named("suno"),
		baseURL:           DefaultBaseURL,
		clerkURL:          DefaultClerkURL,
		songPageURL:       DefaultSongPageURL,
		cdnURL:            DefaultCDNURL,
		keepAliveInterval: time.Duration(core.DefaultSunoKeepAliveSecs) * time.Second,
		renewPauseMin:     time.Second,
		renewPauseMax:     2 * time.Second,
		pollInitialWait:   5 * time.Second,
		pollMinInterval:   3 * time.Second,
		pollMaxInterval:   6 * time.Second,
		pollBudget:        100 * time.Second,
		lyricsInterval:    2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Init acquires the session id and the first token.
func (c *Client) Init(ctx context.Context) error {
	var session struct {
		Response struct {
			LastActiveSessionID string `json:"last_active_session_id"`
		} `json:"response"`
	}

	url := fmt.Sprintf("%s/v1/client?_clerk_js_version=%s", c.clerkURL, clerkJSVersion)
	if err := c.send(ctx, http.MethodGet, url, nil, 0, &session); err != nil {
		return fmt.Errorf("%w: failed to get suno session: %v", core.ErrAuth, err)
	}
	if session.Response.LastActiveSessionID == "" {
		return fmt.Errorf("%w: no active suno session, the cookie may need updating", core.ErrAuth)
	}

	c.mu.Lock()
	c.sid = session.Response.LastActiveSessionID
	c.mu.Unlock()

	c.logger.Info("Acquired Suno session")
	return c.KeepAlive(ctx, false)
}

// KeepAlive renews the bearer token. With wait it pauses briefly afterwards
// so the new token is accepted everywhere before it is used.
func (c *Client) KeepAlive(ctx context.Context, wait bool) error {
	c.mu.RLock()
	sid := c.sid
	c.mu.RUnlock()
	if sid == "" {
		return fmt.Errorf("%w: suno session id is not set", core.ErrAuth)
	}

	var renewed struct {
		JWT string `json:"jwt"`
	}
	url := fmt.Sprintf("%s/v1/client/sessions/%s/tokens?_clerk_js_version=%s", c.clerkURL, sid, clerkJSVersion)
	if err := c.send(ctx, http.MethodPost, url, nil, 0, &renewed); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusUnauthorized {
			return fmt.Errorf("%w: suno token renewal rejected", core.ErrAuth)
		}
		return fmt.Errorf("suno token renewal: %w", err)
	}
	if renewed.JWT == "" {
		return fmt.Errorf("%w: suno token renewal returned no token", core.ErrAuth)
	}

	c.mu.Lock()
	c.token = renewed.JWT
	c.mu.Unlock()

	c.logger.Debug("Renewed Suno token")

	if wait {
		return sleep(ctx, jitter(c.renewPauseMin, c.renewPauseMax))
	}
	return nil
}

// Authenticated reports whether a bearer token is held.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// Start renews the token every keep-alive interval until ctx is done or Stop is called.
func (c *Client) Start(ctx context.Context) {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(c.keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.KeepAlive(ctx, false); err != nil && ctx.Err() == nil {
					c.logger.Warn("Suno keep-alive failed", zap.Error(err))
				}
			}
		}
	}(c.done)
}

// Stop ends the keep-alive loop and waits for it to exit.
func (c *Client) Stop() {
	c.stopMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.stopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// call performs a privileged request. A missing token is renewed first and
// a 401 response triggers one renewal and one retry.
func (c *Client) call(ctx context.Context, method, url string, body any, timeout time.Duration, out any) error {
	if !c.Authenticated() {
		if err := c.KeepAlive(ctx, false); err != nil {
			return err
		}
	}

	err := c.send(ctx, method, url, body, timeout, out)
	var se *statusError
	if !errors.As(err, &se) || se.status != http.StatusUnauthorized {
		return err
	}

	c.logger.Debug("Suno rejected token, renewing", zap.String("url", url))
	if err := c.KeepAlive(ctx, false); err != nil {
		return err
	}

	err = c.send(ctx, method, url, body, timeout, out)
	if errors.As(err, &se) && se.status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %v", core.ErrAuth, err)
	}
	return err
}

// send performs one request and decodes a JSON response into out.
func (c *Client) send(ctx context.Context, method, url string, body any, timeout time.Duration, out any) error {
	parent := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			return fmt.Errorf("suno %s %s: %w", method, url, core.ErrUpstreamTimeout)
		}
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &statusError{method: method, url: url, status: resp.StatusCode, body: string(snippet)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
			return fmt.Errorf("suno %s %s: %w", method, url, core.ErrUpstreamTimeout)
		}
		return fmt.Errorf("failed to decode suno response: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitter returns a random duration in [lo, hi].
func jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo+1)
}
