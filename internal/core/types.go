package core

import (
	"context"
	"errors"
)

const (
	// UnknownTitle is the display title used when upstream metadata has none
	UnknownTitle = "Unknown title"
	// UnknownArtist is the display artist used when upstream metadata has none
	UnknownArtist = "Unknown artist"
)

var (
	// ErrNotFound is returned when a lookup yields no playable result
	ErrNotFound = errors.New("not found")
	// ErrAuth is returned when a client has no valid credentials
	ErrAuth = errors.New("authentication failed")
	// ErrUpstreamTimeout is returned when an upstream exceeds its time budget
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

type MediaSource int

const (
	// SourceYouTube is a track the player resolves through YouTube
	SourceYouTube MediaSource = iota
	// SourceHLS is a direct media URL (live stream or file)
	SourceHLS
)

func (s MediaSource) String() string {
	switch s {
	case SourceYouTube:
		return "youtube"
	case SourceHLS:
		return "hls"
	default:
		return "unknown"
	}
}

// MarshalText renders the source by name in JSON payloads.
func (s MediaSource) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// QueuedPlaylist is the playlist a track was resolved from. Display only.
type QueuedPlaylist struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

// TrackDescriptor is the normalized, playable unit produced by resolution.
// Length and Offset are whole seconds; Length is 0 for live streams.
type TrackDescriptor struct {
	Source       MediaSource     `json:"source"`
	Title        string          `json:"title"`
	Artist       string          `json:"artist"`
	URL          string          `json:"url"`
	Length       int             `json:"length"`
	Offset       int             `json:"offset"`
	IsLive       bool            `json:"is_live"`
	ThumbnailURL string          `json:"thumbnail_url,omitempty"`
	Playlist     *QueuedPlaylist `json:"playlist"`
}

// WithPlaylist returns a copy of the descriptor attached to playlist.
func (t TrackDescriptor) WithPlaylist(playlist *QueuedPlaylist) TrackDescriptor {
	t.Playlist = playlist
	return t
}

type Chapter struct {
	Name   string
	Offset int
	Length int
}

// ResolveRequest is what the command layer hands to the resolver.
type ResolveRequest struct {
	Query         string
	SplitChapters bool
	PlaylistLimit int
}

// ResolveResult carries resolved tracks plus partial-failure counts.
// NotFound and Total are only non-zero for fan-out resolutions.
type ResolveResult struct {
	Tracks   []TrackDescriptor `json:"tracks"`
	NotFound int               `json:"not_found"`
	Total    int               `json:"total"`
}

type SongResolver interface {
	Resolve(ctx context.Context, req ResolveRequest) (ResolveResult, error)
}
