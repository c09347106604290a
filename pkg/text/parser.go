// Package text provides query normalization and URL classification for song resolution.
package text

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

type QueryKind int

const (
	// QueryFreeText is a search term
	QueryFreeText QueryKind = iota
	// QuerySpotify is a Spotify URI or open.spotify.com URL
	QuerySpotify
	// QuerySuno is a suno.com song page URL
	QuerySuno
	// QueryYouTube is a YouTube video or playlist URL
	QueryYouTube
	// QueryMusicLink is a link to another music service that needs a YouTube search
	QueryMusicLink
	// QueryStreamURL is any other http(s) URL, treated as a direct stream
	QueryStreamURL
)

func (k QueryKind) String() string {
	switch k {
	case QuerySpotify:
		return "spotify"
	case QuerySuno:
		return "suno"
	case QueryYouTube:
		return "youtube"
	case QueryMusicLink:
		return "musiclink"
	case QueryStreamURL:
		return "stream"
	default:
		return "search"
	}
}

// Query is a classified resolver input.
type Query struct {
	Kind QueryKind
	// Text is the normalized query; for URL kinds it is the cleaned URL.
	Text string
}

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	spotifyURIRegex = regexp.MustCompile(`^spotify:[a-z]+:[a-zA-Z0-9]+$`)

	spotifyDomains = map[string]bool{
		"open.spotify.com": true,
		"play.spotify.com": true,
		"spotify.com":      true,
	}

	sunoDomains = map[string]bool{
		"suno.com":     true,
		"www.suno.com": true,
		"suno.ai":      true,
		"app.suno.ai":  true,
	}

	musicLinkDomains = map[string]bool{
		"soundcloud.com":    true,
		"m.soundcloud.com":  true,
		"on.soundcloud.com": true,
		"tidal.com":         true,
		"listen.tidal.com":  true,
		"music.apple.com":   true,
		"itunes.apple.com":  true,
	}

	trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "si", "feature"}
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Classify normalizes raw and decides which upstream should resolve it.
func (p *Parser) Classify(raw string) Query {
	text := p.normalizeText(raw)

	if spotifyURIRegex.MatchString(text) {
		return Query{Kind: QuerySpotify, Text: text}
	}

	u, ok := parseHTTPURL(text)
	if !ok {
		return Query{Kind: QueryFreeText, Text: text}
	}

	hostname := strings.ToLower(u.Hostname())
	switch {
	case spotifyDomains[hostname]:
		return Query{Kind: QuerySpotify, Text: p.cleanURL(u)}
	case sunoDomains[hostname] && strings.Contains(u.Path, "/song/"):
		return Query{Kind: QuerySuno, Text: p.cleanURL(u)}
	case IsYouTubeHost(hostname):
		return Query{Kind: QueryYouTube, Text: p.cleanURL(u)}
	case musicLinkDomains[strings.TrimPrefix(hostname, "www.")]:
		return Query{Kind: QueryMusicLink, Text: p.cleanURL(u)}
	default:
		// Stream URLs may carry signed query parameters, keep them verbatim.
		return Query{Kind: QueryStreamURL, Text: text}
	}
}

func (p *Parser) normalizeText(text string) string {
	text = strings.TrimSpace(text)
	text = norm.NFKC.String(text)
	return whitespaceRegex.ReplaceAllString(text, " ")
}

func (p *Parser) cleanURL(u *url.URL) string {
	q := u.Query()
	for _, param := range trackingParams {
		q.Del(param)
	}

	cleaned := *u
	cleaned.RawQuery = q.Encode()
	return cleaned.String()
}

func parseHTTPURL(text string) (*url.URL, bool) {
	if strings.ContainsAny(text, " \t") {
		return nil, false
	}
	if !strings.HasPrefix(text, "http://") && !strings.HasPrefix(text, "https://") {
		return nil, false
	}

	u, err := url.Parse(text)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, true
}
