package spotify

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

type EntityType string

const (
	TypeTrack    EntityType = "track"
	TypeAlbum    EntityType = "album"
	TypePlaylist EntityType = "playlist"
	TypeArtist   EntityType = "artist"
)

// ErrInvalidURI is returned when a string is neither a Spotify URI nor a Spotify URL.
var ErrInvalidURI = errors.New("invalid Spotify URI")

var (
	idRegex     = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	localeRegex = regexp.MustCompile(`^intl-[a-z]{2}$`)
)

// URI identifies a Spotify entity. Type is kept even when it is not one of
// the known entity types so callers can decide what to do with shows, episodes etc.
type URI struct {
	Type EntityType
	ID   string
}

func (u URI) String() string {
	return fmt.Sprintf("spotify:%s:%s", u.Type, u.ID)
}

// URL returns the public web URL of the entity.
func (u URI) URL() string {
	return fmt.Sprintf("https://open.spotify.com/%s/%s", u.Type, u.ID)
}

// ParseURI parses spotify:<type>:<id> URIs and open.spotify.com URLs,
// including localized (/intl-de/...), embed and legacy /user/<name>/playlist/ paths.
func ParseURI(raw string) (URI, error) {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "spotify:") {
		return fromSegments(strings.Split(strings.TrimPrefix(raw, "spotify:"), ":"), raw)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return URI{}, fmt.Errorf("%w: %s", ErrInvalidURI, raw)
	}

	switch strings.ToLower(u.Hostname()) {
	case "open.spotify.com", "play.spotify.com", "spotify.com", "www.spotify.com":
	default:
		return URI{}, fmt.Errorf("%w: %s", ErrInvalidURI, raw)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) > 0 && localeRegex.MatchString(segments[0]) {
		segments = segments[1:]
	}
	if len(segments) > 0 && segments[0] == "embed" {
		segments = segments[1:]
	}
	return fromSegments(segments, raw)
}

func fromSegments(segments []string, raw string) (URI, error) {
	// Legacy playlist form: user/<name>/playlist/<id>
	if len(segments) == 4 && segments[0] == "user" {
		segments = segments[2:]
	}
	if len(segments) != 2 || segments[0] == "" || !idRegex.MatchString(segments[1]) {
		return URI{}, fmt.Errorf("%w: %s", ErrInvalidURI, raw)
	}
	return URI{Type: EntityType(strings.ToLower(segments[0])), ID: segments[1]}, nil
}
