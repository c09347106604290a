package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestMediaSource_String(t *testing.T) {
	tests := []struct {
		source   MediaSource
		expected string
	}{
		{SourceYouTube, "youtube"},
		{SourceHLS, "hls"},
		{MediaSource(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.source.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestTrackDescriptor_JSON(t *testing.T) {
	track := TrackDescriptor{
		Source: SourceHLS,
		Title:  "Radio",
		Artist: "Radio",
		URL:    "https://example.com/live.m3u8",
		IsLive: true,
	}

	data, err := json.Marshal(track)
	if err != nil {
		t.Fatalf("Marshal() unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() unexpected error: %v", err)
	}

	if decoded["source"] != "hls" {
		t.Errorf("source = %v, want hls", decoded["source"])
	}
	if decoded["playlist"] != nil {
		t.Errorf("playlist = %v, want null for standalone tracks", decoded["playlist"])
	}
}

func TestTrackDescriptor_WithPlaylist(t *testing.T) {
	base := TrackDescriptor{Title: "Song"}
	playlist := &QueuedPlaylist{Title: "Mix", Source: "PL123"}

	attached := base.WithPlaylist(playlist)

	if attached.Playlist != playlist {
		t.Error("WithPlaylist() should attach the playlist reference")
	}
	if base.Playlist != nil {
		t.Error("WithPlaylist() should not modify the receiver")
	}
}

func TestSentinelErrorsWrap(t *testing.T) {
	wrapped := fmt.Errorf("video dQw4w9WgXcQ: %w", ErrNotFound)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("wrapped error should match ErrNotFound")
	}
	if errors.Is(wrapped, ErrAuth) {
		t.Error("wrapped ErrNotFound should not match ErrAuth")
	}
}
