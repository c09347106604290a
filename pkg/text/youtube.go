package text

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrNoVideoID is returned when a YouTube URL carries no video identifier.
	ErrNoVideoID = errors.New("no video ID in YouTube URL")

	videoIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

	// Path prefixes that are followed by a video ID.
	videoPathPrefixes = []string{"shorts", "embed", "live", "v"}
)

// IsYouTubeHost reports whether hostname belongs to YouTube or YouTube Music.
func IsYouTubeHost(hostname string) bool {
	switch strings.ToLower(hostname) {
	case "youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

// ExtractYouTubeVideoID extracts a video ID from a YouTube URL or returns a bare ID unchanged.
func ExtractYouTubeVideoID(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if videoIDRegex.MatchString(rawURL) {
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	if strings.ToLower(u.Hostname()) == "youtu.be" {
		id := strings.Split(strings.Trim(u.Path, "/"), "/")[0]
		if id == "" {
			return "", ErrNoVideoID
		}
		return id, nil
	}

	if id := u.Query().Get("v"); id != "" {
		return id, nil
	}

	pathParts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, part := range pathParts {
		for _, prefix := range videoPathPrefixes {
			if part == prefix && i+1 < len(pathParts) && pathParts[i+1] != "" {
				return pathParts[i+1], nil
			}
		}
	}

	return "", ErrNoVideoID
}

// ExtractYouTubePlaylistID returns the list= parameter of a YouTube URL, or "".
func ExtractYouTubePlaylistID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Query().Get("list")
}
