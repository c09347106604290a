package musiclink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// soundCloudOEmbed is the subset of SoundCloud's oEmbed response that is used.
type soundCloudOEmbed struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name"`
}

// SoundCloudResolver resolves SoundCloud links through the oEmbed API.
type SoundCloudResolver struct {
	client    *http.Client
	oembedURL string
}

func NewSoundCloudResolver(opts ...Option) *SoundCloudResolver {
	s := newSettings(opts)
	return &SoundCloudResolver{
		client:    s.client,
		oembedURL: s.endpoints.SoundCloudOEmbed,
	}
}

// CanResolve accepts the main, mobile and short link domains.
func (r *SoundCloudResolver) CanResolve(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	switch strings.ToLower(u.Hostname()) {
	case "soundcloud.com", "www.soundcloud.com", "m.soundcloud.com", "on.soundcloud.com":
		return true
	}
	return false
}

func (r *SoundCloudResolver) Resolve(ctx context.Context, rawURL string) (*TrackInfo, error) {
	if !r.CanResolve(rawURL) {
		return nil, errors.New("not a SoundCloud URL")
	}

	reqURL := fmt.Sprintf("%s?url=%s&format=json", r.oembedURL, url.QueryEscape(rawURL))
	var resp soundCloudOEmbed
	if err := fetchJSON(ctx, r.client, reqURL, "SoundCloud oEmbed", &resp); err != nil {
		return nil, err
	}

	info := parseSoundCloudTitle(resp)
	if info.Title == "" {
		return nil, fmt.Errorf("soundcloud %s: %w", rawURL, ErrNoTrackInfo)
	}
	return info, nil
}

// parseSoundCloudTitle splits "Track by Artist" titles and falls back to the
// uploader as the artist.
func parseSoundCloudTitle(resp soundCloudOEmbed) *TrackInfo {
	title, artist := splitTitleArtist(resp.Title, " by ")
	if artist == "" {
		artist = strings.TrimSpace(resp.AuthorName)
	}
	return &TrackInfo{Title: title, Artist: artist}
}
