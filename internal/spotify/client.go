// Package spotify looks up Spotify tracks, albums, playlists and artists as
// name/artist stubs that can be searched on YouTube.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"muse/internal/core"
)

const (
	// playlistPageSize is the maximum page size of the playlist items endpoint
	playlistPageSize = 100
	// defaultMarket is used for artist top tracks when none is configured
	defaultMarket = "US"
)

// Track is the part of a Spotify track needed to find it elsewhere.
type Track struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
}

type Client struct {
	client *spotify.Client
	tokens oauth2.TokenSource
	market string
	logger *zap.Logger
}

type clientOptions struct {
	baseURL string
}

type ClientOption func(*clientOptions)

// WithAPIBaseURL points the client at another Web API root. It must end with a slash.
func WithAPIBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

func NewClient(
	ctx context.Context,
	config *core.SpotifyConfig,
	tokens oauth2.TokenSource,
	logger *zap.Logger,
	opts ...ClientOption,
) *Client {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	var spotifyOpts []spotify.ClientOption
	if o.baseURL != "" {
		spotifyOpts = append(spotifyOpts, spotify.WithBaseURL(o.baseURL))
	}

	market := config.Market
	if market == "" {
		market = defaultMarket
	}

	return &Client{
		client: spotify.New(oauth2.NewClient(ctx, tokens), spotifyOpts...),
		tokens: tokens,
		market: market,
		logger: logger.Named("spotify"),
	}
}

func (c *Client) GetTrack(ctx context.Context, rawURL string) (Track, error) {
	uri, err := c.prepare(rawURL, TypeTrack)
	if err != nil {
		return Track{}, err
	}

	track, err := c.client.GetTrack(ctx, spotify.ID(uri.ID))
	if err != nil {
		return Track{}, wrapError("get track", err)
	}

	return toTrack(track.Name, track.Artists), nil
}

// GetAlbum returns up to limit tracks of an album and a playlist reference to it.
func (c *Client) GetAlbum(ctx context.Context, rawURL string, limit int) ([]Track, *core.QueuedPlaylist, error) {
	uri, err := c.prepare(rawURL, TypeAlbum)
	if err != nil {
		return nil, nil, err
	}

	album, err := c.client.GetAlbum(ctx, spotify.ID(uri.ID))
	if err != nil {
		return nil, nil, wrapError("get album", err)
	}

	var tracks []Track
	page := &album.Tracks
	for {
		for i := range page.Tracks {
			if reachedLimit(tracks, limit) {
				break
			}
			artists := page.Tracks[i].Artists
			if len(artists) == 0 {
				artists = album.Artists
			}
			tracks = append(tracks, toTrack(page.Tracks[i].Name, artists))
		}
		if reachedLimit(tracks, limit) {
			break
		}

		err := c.client.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, nil, wrapError("album pagination", err)
		}
	}

	c.logger.Debug("Resolved album",
		zap.String("albumID", uri.ID),
		zap.Int("tracks", len(tracks)))

	return tracks, &core.QueuedPlaylist{Title: album.Name, Source: uri.URL()}, nil
}

// GetPlaylist returns up to limit tracks of a playlist, skipping local files and episodes.
func (c *Client) GetPlaylist(ctx context.Context, rawURL string, limit int) ([]Track, *core.QueuedPlaylist, error) {
	uri, err := c.prepare(rawURL, TypePlaylist)
	if err != nil {
		return nil, nil, err
	}
	playlistID := spotify.ID(uri.ID)

	playlist, err := c.client.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, nil, wrapError("get playlist", err)
	}

	var tracks []Track
	offset := 0
	for !reachedLimit(tracks, limit) {
		items, err := c.client.GetPlaylistItems(ctx, playlistID,
			spotify.Limit(playlistPageSize), spotify.Offset(offset))
		if err != nil {
			return nil, nil, wrapError("get playlist items", err)
		}

		for i := range items.Items {
			if reachedLimit(tracks, limit) {
				break
			}
			track := items.Items[i].Track.Track
			if track == nil || items.Items[i].IsLocal {
				continue
			}
			tracks = append(tracks, toTrack(track.Name, track.Artists))
		}

		if len(items.Items) < playlistPageSize {
			break
		}
		offset += playlistPageSize
	}

	c.logger.Debug("Resolved playlist",
		zap.String("playlistID", uri.ID),
		zap.Int("tracks", len(tracks)))

	return tracks, &core.QueuedPlaylist{Title: playlist.Name, Source: uri.URL()}, nil
}

// GetArtist returns up to limit of the artist's top tracks in the configured market.
func (c *Client) GetArtist(ctx context.Context, rawURL string, limit int) ([]Track, error) {
	uri, err := c.prepare(rawURL, TypeArtist)
	if err != nil {
		return nil, err
	}

	topTracks, err := c.client.GetArtistsTopTracks(ctx, spotify.ID(uri.ID), c.market)
	if err != nil {
		return nil, wrapError("get artist top tracks", err)
	}

	var tracks []Track
	for i := range topTracks {
		if reachedLimit(tracks, limit) {
			break
		}
		tracks = append(tracks, toTrack(topTracks[i].Name, topTracks[i].Artists))
	}
	return tracks, nil
}

// prepare parses rawURL, checks its entity type and that a token is available.
func (c *Client) prepare(rawURL string, expected EntityType) (URI, error) {
	uri, err := ParseURI(rawURL)
	if err != nil {
		return URI{}, err
	}
	if uri.Type != expected {
		return URI{}, fmt.Errorf("%w: expected %s, got %s", ErrInvalidURI, expected, uri.Type)
	}
	if _, err := c.tokens.Token(); err != nil {
		return URI{}, err
	}
	return uri, nil
}

func toTrack(name string, artists []spotify.SimpleArtist) Track {
	artist := core.UnknownArtist
	if len(artists) > 0 && artists[0].Name != "" {
		artist = artists[0].Name
	}
	return Track{Name: name, Artist: artist}
}

func reachedLimit(tracks []Track, limit int) bool {
	return limit > 0 && len(tracks) >= limit
}

func wrapError(op string, err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusNotFound, http.StatusBadRequest:
			return fmt.Errorf("%s: %s: %w", op, apiErr.Message, core.ErrNotFound)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %s: %w", op, apiErr.Message, core.ErrAuth)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
