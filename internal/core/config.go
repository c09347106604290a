package core

import (
	"time"
)

const (
	// DefaultServerPort is the port of the resolve/metrics HTTP server
	DefaultServerPort = 8080
	// DefaultPlaylistLimit caps how many tracks a playlist-like query yields
	DefaultPlaylistLimit = 50
	// DefaultSearchConcurrency bounds simultaneous YouTube searches
	DefaultSearchConcurrency = 4
	// DefaultSunoKeepAliveSecs is how often the Suno bearer token is renewed
	DefaultSunoKeepAliveSecs = 45
	// DefaultFloodLimitPerMinute is the per-requester resolve limit
	DefaultFloodLimitPerMinute = 30
	// DefaultCacheSize is the number of entries the in-memory cache holds
	DefaultCacheSize = 4096
)

type Config struct {
	YouTube YouTubeConfig
	Spotify SpotifyConfig
	Suno    SunoConfig
	HLS     HLSConfig
	Cache   CacheConfig
	Server  ServerConfig
	Log     LogConfig
	App     AppConfig
}

type YouTubeConfig struct {
	APIKey string
	// SearchBackend is "api" (Data API search.list) or "scrape" (no quota)
	SearchBackend     string
	SearchConcurrency int
	RequestsPerSecond float64
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	Market       string
}

type SunoConfig struct {
	Cookie        string
	KeepAliveSecs int
}

type HLSConfig struct {
	ProbeTimeout time.Duration
}

type CacheConfig struct {
	Size     int
	RedisURL string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// TrustProxy keys clients by X-Forwarded-For; only safe behind a reverse proxy
	TrustProxy bool
}

type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type AppConfig struct {
	PlaylistLimit       int
	FloodLimitPerMinute int
}

func DefaultConfig() *Config {
	return &Config{
		YouTube: YouTubeConfig{
			SearchBackend:     "api",
			SearchConcurrency: DefaultSearchConcurrency,
		},
		Spotify: SpotifyConfig{
			Market: "US",
		},
		Suno: SunoConfig{
			KeepAliveSecs: DefaultSunoKeepAliveSecs,
		},
		HLS: HLSConfig{
			ProbeTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			Size: DefaultCacheSize,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         DefaultServerPort,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		App: AppConfig{
			PlaylistLimit:       DefaultPlaylistLimit,
			FloodLimitPerMinute: DefaultFloodLimitPerMinute,
		},
	}
}
