package suno

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"muse/internal/core"
)

const (
	// placeholderDuration is used when a song's length is unknown
	placeholderDuration = 120
	// placeholderCreatedAt is used when a song's creation date is unknown
	placeholderCreatedAt = "2021-10-10T00:00:00Z"
)

// ErrInvalidSongURL is returned for URLs without a /song/<id> path.
var ErrInvalidSongURL = errors.New("invalid Suno song URL")

// SongIDFromURL returns the path segment following /song/.
func SongIDFromURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSongURL, err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, segment := range segments {
		if segment == "song" && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1], nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidSongURL, rawURL)
}

// Song looks a song up in the feed when the client is authenticated and
// falls back to the public song page otherwise. Missing metadata is filled
// with placeholders so the result is always playable.
func (c *Client) Song(ctx context.Context, id string) (AudioInfo, error) {
	if c.Authenticated() {
		infos, err := c.Get(ctx, []string{id})
		if err == nil && len(infos) > 0 {
			return c.withPlaceholders(infos[0], id), nil
		}
		c.logger.Debug("Suno feed lookup failed, scraping song page",
			zap.String("id", id),
			zap.Error(err))
	}

	page, err := c.ScrapeSong(ctx, id)
	if err != nil {
		return AudioInfo{}, err
	}

	return c.withPlaceholders(AudioInfo{
		ID:        id,
		Title:     page.Title,
		ImageURL:  page.ImageURL,
		ModelName: page.Author,
		Status:    StatusComplete,
	}, id), nil
}

func (c *Client) withPlaceholders(info AudioInfo, id string) AudioInfo {
	if info.ID == "" {
		info.ID = id
	}
	if info.AudioURL == "" {
		info.AudioURL = fmt.Sprintf("%s/%s.mp3", c.cdnURL, id)
	}
	if info.Duration <= 0 {
		info.Duration = placeholderDuration
	}
	if info.CreatedAt == "" {
		info.CreatedAt = placeholderCreatedAt
	}
	return info
}

// ScrapeSong reads the title, author and cover image from the public song page.
// Page titles look like "<title> by <author> | Suno".
func (c *Client) ScrapeSong(ctx context.Context, id string) (SongPage, error) {
	pageURL := c.songPageURL + "/" + url.PathEscape(id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return SongPage{}, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return SongPage{}, fmt.Errorf("failed to fetch suno song page: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return SongPage{}, fmt.Errorf("suno song %s: %w", id, core.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return SongPage{}, fmt.Errorf("suno song page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return SongPage{}, fmt.Errorf("failed to parse suno song page: %w", err)
	}

	rawTitle := strings.TrimSpace(doc.Find("title").First().Text())
	rawTitle = strings.TrimSpace(strings.TrimSuffix(rawTitle, "| Suno"))

	page := SongPage{Title: rawTitle}
	if title, author, ok := strings.Cut(rawTitle, " by "); ok {
		page.Title = strings.TrimSpace(title)
		page.Author = strings.TrimSpace(author)
	}
	page.ImageURL, _ = doc.Find(`meta[property="og:image"]`).First().Attr("content")

	if page.Title == "" {
		return SongPage{}, fmt.Errorf("suno song %s has no title: %w", id, core.ErrNotFound)
	}
	return page, nil
}
