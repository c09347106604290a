package youtube

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppalone/ytsearch"
	"google.golang.org/api/youtube/v3"
)

type Kind string

const (
	KindVideo    Kind = "video"
	KindChannel  Kind = "channel"
	KindPlaylist Kind = "playlist"
)

// SearchItem is one entry of a search result stream. Only videos are playable.
type SearchItem struct {
	Kind    Kind   `json:"kind"`
	VideoID string `json:"video_id,omitempty"`
	Title   string `json:"title"`
}

// Searcher runs a free-text YouTube search.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchItem, error)
}

// APISearcher searches with the Data API search.list endpoint. Results mix
// videos, channels and playlists.
type APISearcher struct {
	service *youtube.Service
}

func NewAPISearcher(service *youtube.Service) *APISearcher {
	return &APISearcher{service: service}
}

func (s *APISearcher) Search(ctx context.Context, query string, limit int) ([]SearchItem, error) {
	resp, err := s.service.Search.List([]string{"id", "snippet"}).
		Q(query).
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("search.list failed: %w", err)
	}

	items := make([]SearchItem, 0, len(resp.Items))
	for _, result := range resp.Items {
		if result.Id == nil {
			continue
		}
		item := SearchItem{
			Kind:    Kind(strings.TrimPrefix(result.Id.Kind, "youtube#")),
			VideoID: result.Id.VideoId,
		}
		if result.Snippet != nil {
			item.Title = result.Snippet.Title
		}
		items = append(items, item)
	}
	return items, nil
}

// ScrapeSearcher searches the public results page and costs no API quota.
type ScrapeSearcher struct {
	search func(ctx context.Context, query string) ([]SearchItem, error)
}

func NewScrapeSearcher() *ScrapeSearcher {
	client := ytsearch.NewClient(nil)

	return &ScrapeSearcher{
		search: func(ctx context.Context, query string) ([]SearchItem, error) {
			res, err := client.Search(ctx, query)
			if err != nil {
				return nil, err
			}
			items := make([]SearchItem, 0, len(res.Results))
			for _, r := range res.Results {
				items = append(items, SearchItem{Kind: KindVideo, VideoID: r.VideoID, Title: r.Title})
			}
			return items, nil
		},
	}
}

func (s *ScrapeSearcher) Search(ctx context.Context, query string, limit int) ([]SearchItem, error) {
	items, err := s.search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("scrape search failed: %w", err)
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
