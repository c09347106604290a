// Package youtube resolves YouTube searches, videos and playlists into track descriptors.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sosodev/duration"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"muse/internal/cache"
	"muse/internal/core"
	"muse/pkg/text"
)

const (
	searchLimit      = 10
	playlistPageSize = 50

	searchTTL   = time.Hour
	videoTTL    = time.Hour
	playlistTTL = time.Minute
)

// video is the subset of videos.list we keep, cached as JSON in the shared tier.
type video struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Channel     string `json:"channel"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
	Duration    int    `json:"duration"`
	IsLive      bool   `json:"is_live"`
}

type playlistInfo struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	ItemCount int    `json:"item_count"`
}

type playlistPage struct {
	VideoIDs      []string `json:"video_ids"`
	NextPageToken string   `json:"next_page_token"`
}

type Client struct {
	service   *youtube.Service
	searcher  Searcher
	cache     *cache.Provider
	searchSem *semaphore.Weighted
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewClient creates a Data API client. Extra options are passed to the API
// service and are mainly used to point it at a test server.
func NewClient(
	ctx context.Context,
	config *core.YouTubeConfig,
	cacheProvider *cache.Provider,
	logger *zap.Logger,
	opts ...option.ClientOption,
) (*Client, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(config.APIKey)}, opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	concurrency := config.SearchConcurrency
	if concurrency <= 0 {
		concurrency = core.DefaultSearchConcurrency
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), max(1, int(config.RequestsPerSecond)))
	}

	c := &Client{
		service:   service,
		cache:     cacheProvider,
		searchSem: semaphore.NewWeighted(int64(concurrency)),
		limiter:   limiter,
		logger:    logger.Named("youtube"),
	}

	switch config.SearchBackend {
	case "scrape":
		c.searcher = NewScrapeSearcher()
	default:
		c.searcher = NewAPISearcher(service)
	}

	return c, nil
}

// setSearcher replaces the search backend.
func (c *Client) setSearcher(searcher Searcher) {
	c.searcher = searcher
}

// Search resolves the first video result for a free-text query.
func (c *Client) Search(ctx context.Context, query string, splitChapters bool) ([]core.TrackDescriptor, error) {
	items, err := cache.Wrap(ctx, c.cache, "youtube.search", func(ctx context.Context) ([]SearchItem, error) {
		if err := c.searchSem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer c.searchSem.Release(1)

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.searcher.Search(ctx, query, searchLimit)
	}, searchTTL, query, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	for _, item := range items {
		if item.Kind == KindVideo && item.VideoID != "" {
			c.logger.Debug("Search matched video",
				zap.String("query", query),
				zap.String("videoID", item.VideoID),
				zap.String("title", item.Title))
			return c.GetVideo(ctx, item.VideoID, splitChapters)
		}
	}

	return nil, fmt.Errorf("no video results for %q: %w", query, core.ErrNotFound)
}

// GetVideo resolves a video URL or bare video ID.
func (c *Client) GetVideo(ctx context.Context, rawURL string, splitChapters bool) ([]core.TrackDescriptor, error) {
	id, err := text.ExtractYouTubeVideoID(rawURL)
	if err != nil {
		return nil, fmt.Errorf("video URL %q: %w", rawURL, core.ErrNotFound)
	}

	videos, err := c.videos(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("video %s: %w", id, core.ErrNotFound)
	}

	return descriptors(videos[0], nil, splitChapters), nil
}

// GetPlaylist resolves up to limit videos of a playlist in playlist order.
// A non-positive limit resolves the whole playlist. Deleted or private
// videos are skipped; a failed detail lookup fails the whole call.
func (c *Client) GetPlaylist(
	ctx context.Context,
	listID string,
	splitChapters bool,
	limit int,
) ([]core.TrackDescriptor, error) {
	info, err := c.playlist(ctx, listID)
	if err != nil {
		return nil, err
	}

	var pages [][]string
	fetched := 0
	pageToken := ""
	for fetched < info.ItemCount && (limit <= 0 || fetched < limit) {
		page, err := c.playlistItems(ctx, listID, pageToken)
		if err != nil {
			return nil, err
		}
		if len(page.VideoIDs) == 0 {
			break
		}

		ids := page.VideoIDs
		if limit > 0 && fetched+len(ids) > limit {
			ids = ids[:limit-fetched]
		}
		pages = append(pages, ids)
		fetched += len(ids)

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	details := make(map[string]video, fetched)
	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	for _, ids := range pages {
		g.Go(func() error {
			videos, err := c.videos(gCtx, ids)
			if err != nil {
				return fmt.Errorf("playlist %s: %w", listID, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, v := range videos {
				details[v.ID] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ref := &core.QueuedPlaylist{Title: info.Title, Source: info.ID}
	var tracks []core.TrackDescriptor
	for _, ids := range pages {
		for _, id := range ids {
			v, ok := details[id]
			if !ok {
				continue
			}
			tracks = append(tracks, descriptors(v, ref, splitChapters)...)
		}
	}

	c.logger.Debug("Resolved playlist",
		zap.String("playlistID", listID),
		zap.Int("items", fetched),
		zap.Int("tracks", len(tracks)))

	return tracks, nil
}

func (c *Client) videos(ctx context.Context, ids []string) ([]video, error) {
	return cache.Wrap(ctx, c.cache, "youtube.videos", func(ctx context.Context) ([]video, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.service.Videos.List([]string{"snippet", "contentDetails"}).
			Id(ids...).
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("videos.list failed: %w", err)
		}

		videos := make([]video, 0, len(resp.Items))
		for _, item := range resp.Items {
			videos = append(videos, toVideo(item))
		}
		return videos, nil
	}, videoTTL, ids)
}

func (c *Client) playlist(ctx context.Context, listID string) (playlistInfo, error) {
	info, err := cache.Wrap(ctx, c.cache, "youtube.playlists", func(ctx context.Context) (playlistInfo, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return playlistInfo{}, err
		}

		resp, err := c.service.Playlists.List([]string{"id", "snippet", "contentDetails"}).
			Id(listID).
			Context(ctx).
			Do()
		if err != nil {
			return playlistInfo{}, fmt.Errorf("playlists.list failed: %w", err)
		}
		if len(resp.Items) == 0 {
			return playlistInfo{}, fmt.Errorf("playlist %s: %w", listID, core.ErrNotFound)
		}

		item := resp.Items[0]
		info := playlistInfo{ID: item.Id}
		if item.Snippet != nil {
			info.Title = item.Snippet.Title
		}
		if item.ContentDetails != nil {
			info.ItemCount = int(item.ContentDetails.ItemCount)
		}
		return info, nil
	}, playlistTTL, listID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return playlistInfo{}, fmt.Errorf("playlist %s: %w", listID, err)
	}
	return info, err
}

func (c *Client) playlistItems(ctx context.Context, listID, pageToken string) (playlistPage, error) {
	return cache.Wrap(ctx, c.cache, "youtube.playlistItems", func(ctx context.Context) (playlistPage, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return playlistPage{}, err
		}

		call := c.service.PlaylistItems.List([]string{"id", "snippet", "contentDetails"}).
			PlaylistId(listID).
			MaxResults(playlistPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return playlistPage{}, fmt.Errorf("playlistItems.list failed: %w", err)
		}

		page := playlistPage{NextPageToken: resp.NextPageToken}
		for _, item := range resp.Items {
			if id := playlistItemVideoID(item); id != "" {
				page.VideoIDs = append(page.VideoIDs, id)
			}
		}
		return page, nil
	}, playlistTTL, listID, pageToken)
}

func playlistItemVideoID(item *youtube.PlaylistItem) string {
	if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
		return item.ContentDetails.VideoId
	}
	if item.Snippet != nil && item.Snippet.ResourceId != nil {
		return item.Snippet.ResourceId.VideoId
	}
	return ""
}

func toVideo(item *youtube.Video) video {
	v := video{ID: item.Id}
	if item.Snippet != nil {
		v.Title = item.Snippet.Title
		v.Channel = item.Snippet.ChannelTitle
		v.Description = item.Snippet.Description
		v.IsLive = item.Snippet.LiveBroadcastContent == "live"
		if item.Snippet.Thumbnails != nil && item.Snippet.Thumbnails.Medium != nil {
			v.Thumbnail = item.Snippet.Thumbnails.Medium.Url
		}
	}
	if item.ContentDetails != nil {
		v.Duration = parseDuration(item.ContentDetails.Duration)
	}
	return v
}

// parseDuration converts an ISO-8601 duration (PT4M13S) into whole seconds.
func parseDuration(iso string) int {
	if iso == "" {
		return 0
	}
	d, err := duration.Parse(iso)
	if err != nil {
		return 0
	}
	return int(d.ToTimeDuration() / time.Second)
}

func descriptors(v video, playlist *core.QueuedPlaylist, splitChapters bool) []core.TrackDescriptor {
	base := core.TrackDescriptor{
		Source:       core.SourceYouTube,
		Title:        orDefault(v.Title, core.UnknownTitle),
		Artist:       orDefault(v.Channel, core.UnknownArtist),
		URL:          v.ID,
		Length:       v.Duration,
		IsLive:       v.IsLive,
		ThumbnailURL: v.Thumbnail,
		Playlist:     playlist,
	}

	if !splitChapters || v.IsLive {
		return []core.TrackDescriptor{base}
	}

	chapters := ParseChapters(v.Description, v.Duration)
	if len(chapters) == 0 {
		return []core.TrackDescriptor{base}
	}

	tracks := make([]core.TrackDescriptor, 0, len(chapters))
	for _, chapter := range chapters {
		track := base
		track.Title = fmt.Sprintf("%s (%s)", chapter.Name, base.Title)
		track.Offset = chapter.Offset
		track.Length = chapter.Length
		tracks = append(tracks, track)
	}
	return tracks
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
