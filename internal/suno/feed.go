package suno

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Get returns the current state of the given clips. Without ids it returns
// the account's feed.
func (c *Client) Get(ctx context.Context, ids []string) ([]AudioInfo, error) {
	endpoint := c.baseURL + "/api/feed/"
	if len(ids) > 0 {
		endpoint += "?ids=" + strings.Join(ids, ",")
	}

	var clips []clip
	if err := c.call(ctx, http.MethodGet, endpoint, nil, feedTimeout, &clips); err != nil {
		return nil, fmt.Errorf("suno feed: %w", err)
	}
	return toAudioInfos(clips), nil
}

func (c *Client) GetClip(ctx context.Context, clipID string) (AudioInfo, error) {
	var resp clip
	if err := c.call(ctx, http.MethodGet, c.baseURL+"/api/clip/"+url.PathEscape(clipID), nil, 0, &resp); err != nil {
		return AudioInfo{}, fmt.Errorf("suno clip: %w", err)
	}
	return resp.toAudioInfo(), nil
}

func (c *Client) GetCredits(ctx context.Context) (Credits, error) {
	var resp struct {
		TotalCreditsLeft int    `json:"total_credits_left"`
		Period           string `json:"period"`
		MonthlyLimit     int    `json:"monthly_limit"`
		MonthlyUsage     int    `json:"monthly_usage"`
	}
	if err := c.call(ctx, http.MethodGet, c.baseURL+"/api/billing/info/", nil, 0, &resp); err != nil {
		return Credits{}, fmt.Errorf("suno billing: %w", err)
	}
	return Credits{
		CreditsLeft:  resp.TotalCreditsLeft,
		Period:       resp.Period,
		MonthlyLimit: resp.MonthlyLimit,
		MonthlyUsage: resp.MonthlyUsage,
	}, nil
}
