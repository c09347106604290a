package musiclink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type iTunesLookupResponse struct {
	ResultCount int                 `json:"resultCount"`
	Results     []iTunesTrackResult `json:"results"`
}

type iTunesTrackResult struct {
	WrapperType string `json:"wrapperType"`
	TrackName   string `json:"trackName"`
	ArtistName  string `json:"artistName"`
}

// AppleMusicResolver resolves Apple Music song links through the iTunes lookup API.
type AppleMusicResolver struct {
	client    *http.Client
	lookupURL string
}

func NewAppleMusicResolver(opts ...Option) *AppleMusicResolver {
	s := newSettings(opts)
	return &AppleMusicResolver{
		client:    s.client,
		lookupURL: s.endpoints.ITunesLookup,
	}
}

func (r *AppleMusicResolver) CanResolve(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	hostname := strings.ToLower(u.Hostname())
	return hostname == "music.apple.com" || hostname == "itunes.apple.com"
}

func (r *AppleMusicResolver) Resolve(ctx context.Context, rawURL string) (*TrackInfo, error) {
	if !r.CanResolve(rawURL) {
		return nil, errors.New("not an Apple Music URL")
	}

	trackID, err := appleMusicTrackID(rawURL)
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s?id=%s&entity=song", r.lookupURL, url.QueryEscape(trackID))
	var resp iTunesLookupResponse
	if err := fetchJSON(ctx, r.client, reqURL, "iTunes lookup", &resp); err != nil {
		return nil, err
	}

	// With entity=song an album id also returns its songs; the track itself
	// is the first result that has a track name.
	for _, result := range resp.Results {
		if result.TrackName != "" {
			return &TrackInfo{Title: result.TrackName, Artist: result.ArtistName}, nil
		}
	}
	return nil, fmt.Errorf("apple music %s: %w", rawURL, ErrNoTrackInfo)
}

// appleMusicTrackID reads ?i=<id> from album links or the trailing id of /song/ links.
func appleMusicTrackID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	if id := u.Query().Get("i"); id != "" {
		return id, nil
	}

	if strings.Contains(u.Path, "/song/") {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if id := parts[len(parts)-1]; id != "" && id != "song" {
			return id, nil
		}
	}

	return "", fmt.Errorf("%w: Apple Music album links need a ?i= track id", ErrUnsupportedLink)
}
