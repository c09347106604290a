// Package musiclink reads track title and artist from other music services'
// share links so the track can be searched on YouTube.
package musiclink

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrUnsupportedLink is returned when no resolver handles a URL.
	ErrUnsupportedLink = errors.New("unsupported music link")
	// ErrNoTrackInfo is returned when a page or API response carries no title.
	ErrNoTrackInfo = errors.New("no track information found")
)

// TrackInfo holds the track information read from a music link.
type TrackInfo struct {
	Title  string // Track title.
	Artist string // Artist name(s), may be empty.
}

// Resolver reads track information from one provider's links.
type Resolver interface {
	// Resolve extracts track information from a music provider URL.
	Resolve(ctx context.Context, url string) (*TrackInfo, error)

	// CanResolve checks if this resolver can handle the given URL.
	CanResolve(url string) bool
}

// Endpoints are the upstream locations the resolvers read from.
type Endpoints struct {
	SoundCloudOEmbed string
	TidalPages       string
	ITunesLookup     string
}

// DefaultEndpoints are the public production endpoints.
var DefaultEndpoints = Endpoints{
	SoundCloudOEmbed: "https://soundcloud.com/oembed",
	TidalPages:       "https://tidal.com",
	ITunesLookup:     "https://itunes.apple.com/lookup",
}

type settings struct {
	client    *http.Client
	endpoints Endpoints
}

// Option configures the resolvers.
type Option func(*settings)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.client = client
	}
}

// WithEndpoints overrides the upstream endpoints. Empty fields keep their defaults.
func WithEndpoints(endpoints Endpoints) Option {
	return func(s *settings) {
		if endpoints.SoundCloudOEmbed != "" {
			s.endpoints.SoundCloudOEmbed = endpoints.SoundCloudOEmbed
		}
		if endpoints.TidalPages != "" {
			s.endpoints.TidalPages = endpoints.TidalPages
		}
		if endpoints.ITunesLookup != "" {
			s.endpoints.ITunesLookup = endpoints.ITunesLookup
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{endpoints: DefaultEndpoints}
	for _, opt := range opts {
		opt(&s)
	}
	if s.client == nil {
		s.client = newHTTPClient()
	}
	return s
}
