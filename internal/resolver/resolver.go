// Package resolver turns a user query into playable track descriptors by
// routing it to YouTube, Spotify, Suno, a music link service or the stream prober.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"muse/internal/core"
	"muse/internal/spotify"
	"muse/internal/suno"
	"muse/pkg/musiclink"
	"muse/pkg/text"
)

// YouTube is the subset of the YouTube client the resolver needs.
type YouTube interface {
	Search(ctx context.Context, query string, splitChapters bool) ([]core.TrackDescriptor, error)
	GetVideo(ctx context.Context, rawURL string, splitChapters bool) ([]core.TrackDescriptor, error)
	GetPlaylist(ctx context.Context, listID string, splitChapters bool, limit int) ([]core.TrackDescriptor, error)
}

// Spotify is the subset of the Spotify client the resolver needs.
type Spotify interface {
	GetTrack(ctx context.Context, rawURL string) (spotify.Track, error)
	GetAlbum(ctx context.Context, rawURL string, limit int) ([]spotify.Track, *core.QueuedPlaylist, error)
	GetPlaylist(ctx context.Context, rawURL string, limit int) ([]spotify.Track, *core.QueuedPlaylist, error)
	GetArtist(ctx context.Context, rawURL string, limit int) ([]spotify.Track, error)
}

// Suno looks up a generated song by id.
type Suno interface {
	Song(ctx context.Context, id string) (suno.AudioInfo, error)
}

// StreamProber checks a raw media URL.
type StreamProber interface {
	Probe(ctx context.Context, streamURL string) (core.TrackDescriptor, error)
}

// LinkResolver reads title and artist from another music service's link.
type LinkResolver interface {
	Resolve(ctx context.Context, url string) (*musiclink.TrackInfo, error)
	CanResolve(url string) bool
}

// ErrSpotifyDisabled is returned for Spotify queries when no credentials are configured.
var ErrSpotifyDisabled = fmt.Errorf("%w: spotify is not configured", core.ErrAuth)

type Resolver struct {
	parser  *text.Parser
	youtube YouTube
	spotify Spotify
	suno    Suno
	prober  StreamProber
	links   LinkResolver
	logger  *zap.Logger

	playlistLimit int
}

type Option func(*Resolver)

// WithSpotify enables Spotify queries.
func WithSpotify(client Spotify) Option {
	return func(r *Resolver) {
		r.spotify = client
	}
}

func WithSuno(client Suno) Option {
	return func(r *Resolver) {
		r.suno = client
	}
}

func WithStreamProber(prober StreamProber) Option {
	return func(r *Resolver) {
		r.prober = prober
	}
}

func WithLinkResolver(links LinkResolver) Option {
	return func(r *Resolver) {
		r.links = links
	}
}

// WithPlaylistLimit sets the limit used when a request does not carry one.
func WithPlaylistLimit(limit int) Option {
	return func(r *Resolver) {
		if limit > 0 {
			r.playlistLimit = limit
		}
	}
}

func New(youtube YouTube, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		parser:        text.NewParser(),
		youtube:       youtube,
		logger:        logger.Named("resolver"),
		playlistLimit: core.DefaultPlaylistLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve classifies req.Query and resolves it through the matching branch.
// NotFound and Total are only set for Spotify and music link fan-outs.
func (r *Resolver) Resolve(ctx context.Context, req core.ResolveRequest) (core.ResolveResult, error) {
	query := r.parser.Classify(req.Query)
	if query.Text == "" {
		return core.ResolveResult{}, fmt.Errorf("empty query: %w", core.ErrNotFound)
	}

	limit := req.PlaylistLimit
	if limit <= 0 {
		limit = r.playlistLimit
	}

	r.logger.Debug("Resolving query",
		zap.String("kind", query.Kind.String()),
		zap.String("query", query.Text))

	switch query.Kind {
	case text.QuerySpotify:
		return r.SpotifySource(ctx, query.Text, limit, req.SplitChapters)

	case text.QuerySuno:
		return tracksOnly(r.SunoSource(ctx, query.Text))

	case text.QueryYouTube:
		return tracksOnly(r.youtubeURL(ctx, query.Text, req.SplitChapters, limit))

	case text.QueryMusicLink:
		return r.musicLink(ctx, query.Text, req.SplitChapters)

	case text.QueryStreamURL:
		track, err := r.HTTPLiveStream(ctx, query.Text)
		if err != nil {
			return core.ResolveResult{}, err
		}
		return core.ResolveResult{Tracks: []core.TrackDescriptor{track}}, nil

	default:
		return tracksOnly(r.YouTubeVideoSearch(ctx, query.Text, req.SplitChapters))
	}
}

func (r *Resolver) YouTubeVideoSearch(ctx context.Context, query string, splitChapters bool) ([]core.TrackDescriptor, error) {
	return r.youtube.Search(ctx, query, splitChapters)
}

func (r *Resolver) YouTubeVideo(ctx context.Context, rawURL string, splitChapters bool) ([]core.TrackDescriptor, error) {
	return r.youtube.GetVideo(ctx, rawURL, splitChapters)
}

func (r *Resolver) YouTubePlaylist(
	ctx context.Context,
	listID string,
	splitChapters bool,
	limit int,
) ([]core.TrackDescriptor, error) {
	return r.youtube.GetPlaylist(ctx, listID, splitChapters, limit)
}

// youtubeURL prefers the playlist when a URL carries both a list and a video,
// and falls back to the video when the playlist cannot be found.
func (r *Resolver) youtubeURL(ctx context.Context, rawURL string, splitChapters bool, limit int) ([]core.TrackDescriptor, error) {
	listID := text.ExtractYouTubePlaylistID(rawURL)
	_, videoErr := text.ExtractYouTubeVideoID(rawURL)
	hasVideo := videoErr == nil

	if listID == "" {
		return r.YouTubeVideo(ctx, rawURL, splitChapters)
	}

	tracks, err := r.YouTubePlaylist(ctx, listID, splitChapters, limit)
	if err != nil && hasVideo && errors.Is(err, core.ErrNotFound) {
		r.logger.Debug("Playlist not found, resolving video instead",
			zap.String("playlistID", listID),
			zap.String("url", rawURL))
		return r.YouTubeVideo(ctx, rawURL, splitChapters)
	}
	return tracks, err
}

// SpotifySource resolves a Spotify link into YouTube tracks. Unsupported
// entity types yield an empty result.
func (r *Resolver) SpotifySource(
	ctx context.Context,
	rawURL string,
	limit int,
	splitChapters bool,
) (core.ResolveResult, error) {
	if r.spotify == nil {
		return core.ResolveResult{}, ErrSpotifyDisabled
	}

	uri, err := spotify.ParseURI(rawURL)
	if err != nil {
		return core.ResolveResult{}, fmt.Errorf("%w: %v", core.ErrNotFound, err)
	}

	var (
		stubs    []spotify.Track
		playlist *core.QueuedPlaylist
	)
	switch uri.Type {
	case spotify.TypeTrack:
		track, err := r.spotify.GetTrack(ctx, rawURL)
		if err != nil {
			return core.ResolveResult{}, err
		}
		stubs = []spotify.Track{track}
	case spotify.TypeAlbum:
		stubs, playlist, err = r.spotify.GetAlbum(ctx, rawURL, limit)
	case spotify.TypePlaylist:
		stubs, playlist, err = r.spotify.GetPlaylist(ctx, rawURL, limit)
	case spotify.TypeArtist:
		stubs, err = r.spotify.GetArtist(ctx, rawURL, limit)
	default:
		r.logger.Debug("Ignoring unsupported Spotify entity", zap.String("type", string(uri.Type)))
		return core.ResolveResult{}, nil
	}
	if err != nil {
		return core.ResolveResult{}, err
	}

	return r.toYouTube(ctx, stubs, splitChapters, playlist), nil
}

// toYouTube searches YouTube for every stub concurrently. Failed searches
// are counted in NotFound; successful ones keep the stubs' order.
func (r *Resolver) toYouTube(
	ctx context.Context,
	stubs []spotify.Track,
	splitChapters bool,
	playlist *core.QueuedPlaylist,
) core.ResolveResult {
	results := make([][]core.TrackDescriptor, len(stubs))
	failed := make([]bool, len(stubs))

	var wg sync.WaitGroup
	for i, stub := range stubs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracks, err := r.youtube.Search(ctx, searchQuery(stub), splitChapters)
			if err != nil {
				r.logger.Debug("No YouTube match for track",
					zap.String("name", stub.Name),
					zap.String("artist", stub.Artist),
					zap.Error(err))
				failed[i] = true
				return
			}
			results[i] = tracks
		}()
	}
	wg.Wait()

	result := core.ResolveResult{Total: len(stubs)}
	for i, tracks := range results {
		if failed[i] {
			result.NotFound++
			continue
		}
		for _, track := range tracks {
			if playlist != nil {
				track = track.WithPlaylist(playlist)
			}
			result.Tracks = append(result.Tracks, track)
		}
	}

	if result.NotFound > 0 {
		r.logger.Info("Some tracks could not be found on YouTube",
			zap.Int("notFound", result.NotFound),
			zap.Int("total", result.Total))
	}
	return result
}

// SunoSource resolves a suno.com song page into a direct audio track.
func (r *Resolver) SunoSource(ctx context.Context, rawURL string) ([]core.TrackDescriptor, error) {
	if r.suno == nil {
		return nil, fmt.Errorf("suno is not configured: %w", core.ErrNotFound)
	}

	id, err := suno.SongIDFromURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrNotFound, err)
	}

	song, err := r.suno.Song(ctx, id)
	if err != nil {
		return nil, err
	}

	return []core.TrackDescriptor{{
		Source:       core.SourceHLS,
		Title:        orDefault(song.Title, core.UnknownTitle),
		Artist:       orDefault(song.ModelName, core.UnknownArtist),
		URL:          song.AudioURL,
		Length:       max(int(song.Duration), 0),
		ThumbnailURL: song.ImageURL,
	}}, nil
}

// HTTPLiveStream probes a raw media URL and returns it as a live track.
func (r *Resolver) HTTPLiveStream(ctx context.Context, streamURL string) (core.TrackDescriptor, error) {
	if r.prober == nil {
		return core.TrackDescriptor{}, fmt.Errorf("stream probing is not configured: %w", core.ErrNotFound)
	}
	return r.prober.Probe(ctx, streamURL)
}

// musicLink reads title and artist from a SoundCloud, Tidal or Apple Music link and
// searches YouTube for it. Links nothing can read fall back to the prober.
func (r *Resolver) musicLink(ctx context.Context, rawURL string, splitChapters bool) (core.ResolveResult, error) {
	if r.links == nil || !r.links.CanResolve(rawURL) {
		track, err := r.HTTPLiveStream(ctx, rawURL)
		if err != nil {
			return core.ResolveResult{}, err
		}
		return core.ResolveResult{Tracks: []core.TrackDescriptor{track}}, nil
	}

	info, err := r.links.Resolve(ctx, rawURL)
	if err != nil {
		return core.ResolveResult{}, fmt.Errorf("music link %s: %w", rawURL, err)
	}

	tracks, err := r.youtube.Search(ctx, searchQuery(spotify.Track{Name: info.Title, Artist: info.Artist}), splitChapters)
	if err != nil {
		return core.ResolveResult{}, err
	}
	return core.ResolveResult{Tracks: tracks}, nil
}

func searchQuery(track spotify.Track) string {
	if track.Artist == "" {
		return `"` + track.Name + `"`
	}
	return fmt.Sprintf(`"%s" "%s"`, track.Name, track.Artist)
}

func tracksOnly(tracks []core.TrackDescriptor, err error) (core.ResolveResult, error) {
	if err != nil {
		return core.ResolveResult{}, err
	}
	return core.ResolveResult{Tracks: tracks}, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
