package musiclink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// TidalResolver resolves Tidal track links by reading the public track page.
type TidalResolver struct {
	client  *http.Client
	pageURL string
}

func NewTidalResolver(opts ...Option) *TidalResolver {
	s := newSettings(opts)
	return &TidalResolver{
		client:  s.client,
		pageURL: strings.TrimSuffix(s.endpoints.TidalPages, "/"),
	}
}

func (r *TidalResolver) CanResolve(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	switch strings.ToLower(u.Hostname()) {
	case "tidal.com", "www.tidal.com", "listen.tidal.com":
		return true
	}
	return false
}

// Resolve supports /track/ links only; album and playlist pages have no
// single title to search for.
func (r *TidalResolver) Resolve(ctx context.Context, rawURL string) (*TrackInfo, error) {
	if !r.CanResolve(rawURL) {
		return nil, errors.New("not a Tidal URL")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(u.Path, "/track/") {
		return nil, fmt.Errorf("%w: only Tidal /track/ links are supported", ErrUnsupportedLink)
	}

	doc, err := fetchDocument(ctx, r.client, r.pageURL+u.Path, "Tidal")
	if err != nil {
		return nil, err
	}

	info := extractTidalTrack(doc)
	if info.Title == "" {
		return nil, fmt.Errorf("tidal %s: %w", rawURL, ErrNoTrackInfo)
	}
	return info, nil
}

// extractTidalTrack prefers the OpenGraph tags and falls back to the
// "Title – Artist | TIDAL" page title.
func extractTidalTrack(doc *goquery.Document) *TrackInfo {
	info := &TrackInfo{Title: metaContent(doc, "og:title")}

	description := metaContent(doc, "og:description")
	if idx := strings.Index(strings.ToLower(description), "by "); idx >= 0 {
		info.Artist = strings.TrimSpace(description[idx+len("by "):])
	}
	if info.Title != "" {
		return info
	}

	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())
	pageTitle = strings.TrimSpace(strings.TrimSuffix(pageTitle, "| TIDAL"))
	info.Title, info.Artist = splitTitleArtist(pageTitle, " – ", " - ")
	return info
}
