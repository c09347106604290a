// Package hls probes raw HTTP media URLs before they are queued.
package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/grafov/m3u8"
	"go.uber.org/zap"

	"muse/internal/core"
)

const (
	// DefaultProbeTimeout bounds a single probe request
	DefaultProbeTimeout = 10 * time.Second
	// maxPlaylistSize caps how much of a playlist body is decoded
	maxPlaylistSize = 1 << 20
	maxRedirects    = 5
)

// ErrNotPlayable is returned when a URL answers with neither a playlist nor media.
var ErrNotPlayable = errors.New("not a playable stream")

type Prober struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

func NewProber(cfg *core.HLSConfig, logger *zap.Logger) *Prober {
	timeout := DefaultProbeTimeout
	if cfg != nil && cfg.ProbeTimeout > 0 {
		timeout = cfg.ProbeTimeout
	}

	return &Prober{
		client: &http.Client{
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		timeout: timeout,
		logger:  logger.Named("hls"),
	}
}

// Probe checks that streamURL serves an M3U8 playlist or a media body and
// returns a live descriptor for it. Length is always 0 and the URL stands in
// for title and artist.
func (p *Prober) Probe(ctx context.Context, streamURL string) (core.TrackDescriptor, error) {
	if err := p.probe(ctx, streamURL); err != nil {
		p.logger.Debug("Stream probe failed", zap.String("url", streamURL), zap.Error(err))
		return core.TrackDescriptor{}, err
	}

	return core.TrackDescriptor{
		Source: core.SourceHLS,
		Title:  streamURL,
		Artist: streamURL,
		URL:    streamURL,
		Length: 0,
		IsLive: true,
	}, nil
}

func (p *Prober) probe(ctx context.Context, streamURL string) error {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, streamURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("invalid stream URL %q: %w", streamURL, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return p.wrapTransport(ctx, streamURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream %s returned status %d", streamURL, resp.StatusCode)
	}

	// Media bodies may never end, so they are accepted on the header alone.
	if isMediaType(resp.Header.Get("Content-Type")) {
		return nil
	}

	_, listType, err := m3u8.DecodeFrom(io.LimitReader(resp.Body, maxPlaylistSize), false)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return p.wrapTransport(ctx, streamURL, err)
		}
		return fmt.Errorf("%w: %s: %v", ErrNotPlayable, streamURL, err)
	}

	p.logger.Debug("Probed playlist",
		zap.String("url", streamURL),
		zap.Bool("master", listType == m3u8.MASTER))
	return nil
}

func (p *Prober) wrapTransport(parent context.Context, streamURL string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("probe %s: %w", streamURL, core.ErrUpstreamTimeout)
	}
	return fmt.Errorf("probe %s: %w", streamURL, err)
}

func isMediaType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	switch {
	case strings.HasPrefix(mediaType, "audio/"), strings.HasPrefix(mediaType, "video/"):
		// audio/mpegurl is a playlist, not media
		return !strings.Contains(mediaType, "mpegurl")
	case mediaType == "application/octet-stream":
		return true
	default:
		return false
	}
}
