package text

import (
	"errors"
	"testing"
)

// runStringTransformationTest is a helper to run tests for string transformation functions.
func runStringTransformationTest(t *testing.T, testName string,
	transformFunc func(string) string, testCases []struct {
		name     string
		input    string
		expected string
	}) {
	t.Helper()
	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			result := transformFunc(tt.input)
			if result != tt.expected {
				t.Errorf("%s() = %q, want %q", testName, result, tt.expected)
			}
		})
	}
}

func TestParser_Classify(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		name     string
		input    string
		expected QueryKind
		text     string
	}{
		{"Free text", "  never gonna   give you up ", QueryFreeText, "never gonna give you up"},
		{"Spotify URI", "spotify:track:4uLU6hMCjMI75M1A2tKUQC", QuerySpotify, "spotify:track:4uLU6hMCjMI75M1A2tKUQC"},
		{
			"Spotify playlist URL with tracking",
			"https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M?si=abc123",
			QuerySpotify,
			"https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M",
		},
		{
			"Suno song URL",
			"https://suno.com/song/1a95710f-17fa-41fc-9477-c63f4bafb1f7",
			QuerySuno,
			"https://suno.com/song/1a95710f-17fa-41fc-9477-c63f4bafb1f7",
		},
		{"Suno non-song URL", "https://suno.com/explore", QueryStreamURL, "https://suno.com/explore"},
		{
			"YouTube video",
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ&feature=share",
			QueryYouTube,
			"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		{"YouTube short link", "https://youtu.be/dQw4w9WgXcQ", QueryYouTube, "https://youtu.be/dQw4w9WgXcQ"},
		{"SoundCloud link", "https://soundcloud.com/artist/track", QueryMusicLink, "https://soundcloud.com/artist/track"},
		{"Tidal link", "https://tidal.com/browse/track/12345", QueryMusicLink, "https://tidal.com/browse/track/12345"},
		{
			"Apple Music link",
			"https://music.apple.com/us/album/abc/123?i=456",
			QueryMusicLink,
			"https://music.apple.com/us/album/abc/123?i=456",
		},
		{
			"Radio stream keeps query",
			"https://radio.example.com/live.m3u8?token=abc&utm_source=x",
			QueryStreamURL,
			"https://radio.example.com/live.m3u8?token=abc&utm_source=x",
		},
		{"Text containing a URL is a search", "play https://youtu.be/dQw4w9WgXcQ now", QueryFreeText, "play https://youtu.be/dQw4w9WgXcQ now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parser.Classify(tt.input)
			if result.Kind != tt.expected {
				t.Errorf("Classify() kind = %v, want %v", result.Kind, tt.expected)
			}
			if result.Text != tt.text {
				t.Errorf("Classify() text = %q, want %q", result.Text, tt.text)
			}
		})
	}
}

func TestParser_normalizeText(t *testing.T) {
	parser := NewParser()

	runStringTransformationTest(t, "normalizeText", parser.normalizeText, []struct {
		name     string
		input    string
		expected string
	}{
		{"Trims whitespace", "  lofi  ", "lofi"},
		{"Collapses inner whitespace", "lofi\n\n  hip   hop", "lofi hip hop"},
		{"Applies NFKC", "ｆｕｌｌｗｉｄｔｈ", "fullwidth"},
	})
}

func TestExtractYouTubeVideoID(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		expectedID string
		wantError  bool
	}{
		{name: "Standard YouTube URL", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", expectedID: "dQw4w9WgXcQ"},
		{name: "YouTube short URL", url: "https://youtu.be/dQw4w9WgXcQ", expectedID: "dQw4w9WgXcQ"},
		{name: "YouTube Music URL", url: "https://music.youtube.com/watch?v=dQw4w9WgXcQ", expectedID: "dQw4w9WgXcQ"},
		{name: "Shorts URL", url: "https://www.youtube.com/shorts/dQw4w9WgXcQ", expectedID: "dQw4w9WgXcQ"},
		{name: "Embed URL", url: "https://www.youtube.com/embed/dQw4w9WgXcQ", expectedID: "dQw4w9WgXcQ"},
		{name: "Bare video ID", url: "dQw4w9WgXcQ", expectedID: "dQw4w9WgXcQ"},
		{
			name:       "URL with playlist parameter",
			url:        "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLrAXtmErZgOeiKm4sgNOknGvNjby9efdf",
			expectedID: "dQw4w9WgXcQ",
		},
		{name: "No video ID", url: "https://www.youtube.com/", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			videoID, err := ExtractYouTubeVideoID(tt.url)
			if tt.wantError {
				if !errors.Is(err, ErrNoVideoID) {
					t.Errorf("ExtractYouTubeVideoID() error = %v, want ErrNoVideoID", err)
				}
				return
			}
			if err != nil {
				t.Errorf("ExtractYouTubeVideoID() unexpected error: %v", err)
			}
			if videoID != tt.expectedID {
				t.Errorf("ExtractYouTubeVideoID() = %v, want %v", videoID, tt.expectedID)
			}
		})
	}
}

func TestExtractYouTubePlaylistID(t *testing.T) {
	runStringTransformationTest(t, "ExtractYouTubePlaylistID", ExtractYouTubePlaylistID, []struct {
		name     string
		input    string
		expected string
	}{
		{"Playlist URL", "https://www.youtube.com/playlist?list=PL123", "PL123"},
		{"Video in playlist", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123", "PL123"},
		{"Plain video", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", ""},
	})
}
