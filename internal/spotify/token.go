package spotify

import (
	"context"
	"fmt"
	"sync"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"muse/internal/core"
	"muse/pkg/retry"
)

const (
	// minRefreshInterval keeps a misbehaving token endpoint from being hammered
	minRefreshInterval = 10 * time.Second
	// failedRefreshWait is the pause after a refresh that exhausted its retries
	failedRefreshWait = time.Minute
)

// TokenKeeper holds a client-credentials access token and renews it at half
// its lifetime. It implements oauth2.TokenSource.
type TokenKeeper struct {
	config *clientcredentials.Config
	retry  retry.Config
	logger *zap.Logger
	now    func() time.Time

	mu        sync.RWMutex
	token     *oauth2.Token
	refreshIn time.Duration
}

type TokenOption func(*TokenKeeper)

// WithTokenURL overrides the Spotify accounts token endpoint.
func WithTokenURL(tokenURL string) TokenOption {
	return func(k *TokenKeeper) {
		k.config.TokenURL = tokenURL
	}
}

// WithRetryConfig overrides the grant retry policy.
func WithRetryConfig(rc retry.Config) TokenOption {
	return func(k *TokenKeeper) {
		k.retry = rc
	}
}

func NewTokenKeeper(config *core.SpotifyConfig, logger *zap.Logger, opts ...TokenOption) *TokenKeeper {
	k := &TokenKeeper{
		config: &clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     spotifyauth.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		retry:  retry.DefaultConfig,
		logger: logger.Named("spotify-token"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Refresh performs a client-credentials grant, retrying transient failures.
// Exhausted retries surface as core.ErrAuth.
func (k *TokenKeeper) Refresh(ctx context.Context) error {
	token, err := retry.Do(ctx, k.retry, k.logger, func(ctx context.Context) (*oauth2.Token, error) {
		return k.config.Token(ctx)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: spotify client credentials grant: %v", core.ErrAuth, err)
	}

	refreshIn := max(token.Expiry.Sub(k.now())/2, minRefreshInterval)

	k.mu.Lock()
	k.token = token
	k.refreshIn = refreshIn
	k.mu.Unlock()

	k.logger.Debug("Refreshed Spotify token", zap.Duration("refreshIn", refreshIn))
	return nil
}

// Run renews the token until ctx is done. Without a prior successful
// Refresh the first grant happens immediately.
func (k *TokenKeeper) Run(ctx context.Context) {
	for {
		wait := k.nextRefresh()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := k.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			k.logger.Error("Failed to refresh Spotify token", zap.Error(err))
			k.mu.Lock()
			k.refreshIn = failedRefreshWait
			k.mu.Unlock()
		}
	}
}

func (k *TokenKeeper) nextRefresh() time.Duration {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.refreshIn
}

// Token returns the current token or core.ErrAuth when none is valid.
func (k *TokenKeeper) Token() (*oauth2.Token, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.token == nil || (!k.token.Expiry.IsZero() && !k.now().Before(k.token.Expiry)) {
		return nil, fmt.Errorf("%w: no valid Spotify token", core.ErrAuth)
	}
	return k.token, nil
}
