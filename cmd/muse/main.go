// Package main provides the muse CLI application entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"muse/internal/cache"
	"muse/internal/core"
	"muse/internal/flood"
	"muse/internal/hls"
	httpserver "muse/internal/http"
	"muse/internal/resolver"
	"muse/internal/spotify"
	"muse/internal/suno"
	"muse/internal/youtube"
	"muse/pkg/musiclink"
)

const (
	defaultServerHost = "0.0.0.0"
	envPrefix         = "MUSE"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "muse",
	Short: "muse - resolve song requests into playable tracks",
	Long: `muse turns free-text searches, YouTube, Spotify, Suno, music service links
and HTTP live streams into playable track descriptors, served over HTTP.`,
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resolve API and metrics server",
	RunE:  runServe,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <query>",
	Short: "Resolve a single query and print the result as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runResolve,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "also write logs to this file, rotated by size")
	flags.String("youtube-api-key", "", "YouTube Data API key")
	flags.String("youtube-search-backend", "api", "YouTube search backend (api, scrape)")
	flags.Int("youtube-search-concurrency", core.DefaultSearchConcurrency, "Maximum simultaneous YouTube searches")
	flags.Float64("youtube-qps", 0, "YouTube API requests per second, 0 disables throttling")
	flags.String("spotify-client-id", "", "Spotify client ID")
	flags.String("spotify-client-secret", "", "Spotify client secret")
	flags.String("spotify-market", "US", "Spotify market used for artist top tracks")
	flags.String("suno-cookie", "", "Suno session cookie")
	flags.Int("suno-keepalive-secs", core.DefaultSunoKeepAliveSecs, "Suno token renewal interval in seconds")
	flags.Duration("hls-probe-timeout", hls.DefaultProbeTimeout, "Timeout for probing a live stream")
	flags.Int("cache-size", core.DefaultCacheSize, "In-memory cache entries")
	flags.String("redis-url", "", "Redis URL for the shared cache tier (optional)")
	flags.String("server-host", defaultServerHost, "HTTP server host")
	flags.Int("server-port", core.DefaultServerPort, "HTTP server port")
	flags.Bool("server-trust-proxy", false, "Identify clients by X-Forwarded-For (only behind a reverse proxy)")
	flags.Int("playlist-limit", core.DefaultPlaylistLimit, "Default maximum tracks taken from a playlist, album or artist")
	flags.Int("flood-limit-per-minute", core.DefaultFloodLimitPerMinute, "Maximum resolve requests per client per minute, 0 disables")
	flags.Bool("generate-env-example", false, "Generate .env.example file from the available flags and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	rootCmd.AddCommand(serveCmd, resolveCmd)
	resolveCmd.Flags().Bool("split", false, "Split YouTube videos into chapters")
	resolveCmd.Flags().Int("limit", 0, "Maximum tracks for playlist-like queries")
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(&config.Log)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureYouTube(cfg)
	configureSpotify(cfg)
	configureSuno(cfg)
	configureHLS(cfg)
	configureCache(cfg)
	configureServer(cfg)
	configureApp(cfg)

	return cfg
}

func configureYouTube(cfg *core.Config) {
	cfg.YouTube.APIKey = viper.GetString("youtube-api-key")
	cfg.YouTube.SearchBackend = strings.ToLower(viper.GetString("youtube-search-backend"))
	if cfg.YouTube.SearchBackend == "" {
		cfg.YouTube.SearchBackend = "api"
	}
	cfg.YouTube.SearchConcurrency = viper.GetInt("youtube-search-concurrency")
	if cfg.YouTube.SearchConcurrency <= 0 {
		cfg.YouTube.SearchConcurrency = core.DefaultSearchConcurrency
	}
	cfg.YouTube.RequestsPerSecond = viper.GetFloat64("youtube-qps")
}

func configureSpotify(cfg *core.Config) {
	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	if market := viper.GetString("spotify-market"); market != "" {
		cfg.Spotify.Market = strings.ToUpper(market)
	}
}

func configureSuno(cfg *core.Config) {
	cfg.Suno.Cookie = viper.GetString("suno-cookie")
	cfg.Suno.KeepAliveSecs = viper.GetInt("suno-keepalive-secs")
	if cfg.Suno.KeepAliveSecs <= 0 {
		cfg.Suno.KeepAliveSecs = core.DefaultSunoKeepAliveSecs
	}
}

func configureHLS(cfg *core.Config) {
	cfg.HLS.ProbeTimeout = viper.GetDuration("hls-probe-timeout")
	if cfg.HLS.ProbeTimeout <= 0 {
		cfg.HLS.ProbeTimeout = hls.DefaultProbeTimeout
	}
}

func configureCache(cfg *core.Config) {
	cfg.Cache.Size = viper.GetInt("cache-size")
	if cfg.Cache.Size <= 0 {
		cfg.Cache.Size = core.DefaultCacheSize
	}
	cfg.Cache.RedisURL = viper.GetString("redis-url")
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Server.TrustProxy = viper.GetBool("server-trust-proxy")
	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.File = viper.GetString("log-file")
}

func configureApp(cfg *core.Config) {
	cfg.App.PlaylistLimit = viper.GetInt("playlist-limit")
	if cfg.App.PlaylistLimit <= 0 {
		cfg.App.PlaylistLimit = core.DefaultPlaylistLimit
	}

	cfg.App.FloodLimitPerMinute = viper.GetInt("flood-limit-per-minute")
	if cfg.App.FloodLimitPerMinute < 0 {
		fmt.Fprintf(os.Stderr, "Warning: Invalid flood limit (%d), using default (%d)\n",
			cfg.App.FloodLimitPerMinute, core.DefaultFloodLimitPerMinute)
		cfg.App.FloodLimitPerMinute = core.DefaultFloodLimitPerMinute
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// buildLogger writes JSON logs to stderr and, when a log file is configured,
// to a size-rotated copy of the same stream.
func buildLogger(cfg *core.LogConfig) *zap.Logger {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}
	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder.Clone(), zapcore.AddSync(fileWriter), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

func runServe(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting muse",
		zap.String("youtube_search_backend", config.YouTube.SearchBackend),
		zap.Bool("spotify_enabled", spotifyEnabled(config)),
		zap.Bool("suno_cookie", config.Suno.Cookie != ""),
		zap.Bool("redis_cache", config.Cache.RedisURL != ""))

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	return runServices(ctx, svcs)
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := validateConfig(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	split, err := cmd.Flags().GetBool("split")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	if svcs.tokens != nil {
		if err := svcs.tokens.Refresh(ctx); err != nil {
			logger.Warn("Spotify token grant failed", zap.Error(err))
		}
	}

	result, err := svcs.resolver.Resolve(ctx, core.ResolveRequest{
		Query:         strings.Join(args, " "),
		SplitChapters: split,
		PlaylistLimit: limit,
	})
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

type services struct {
	cache      *cache.Provider
	redis      *cache.RedisStore
	tokens     *spotify.TokenKeeper
	suno       *suno.Client
	floodgate  *flood.Floodgate
	resolver   *resolver.Resolver
	httpServer *httpserver.Server
}

func initializeServices(ctx context.Context) (*services, error) {
	svcs := &services{}

	cacheOpts := []cache.Option{cache.WithLogger(logger.Named("cache"))}
	if config.Cache.RedisURL != "" {
		store, err := cache.NewRedisStore(ctx, config.Cache.RedisURL, logger.Named("redis"))
		if err != nil {
			return nil, err
		}
		svcs.redis = store
		cacheOpts = append(cacheOpts, cache.WithStore(store))
	}
	svcs.cache = cache.New(config.Cache.Size, cacheOpts...)

	youtubeClient, err := youtube.NewClient(ctx, &config.YouTube, svcs.cache, logger)
	if err != nil {
		svcs.close()
		return nil, err
	}

	opts := []resolver.Option{
		resolver.WithStreamProber(hls.NewProber(&config.HLS, logger)),
		resolver.WithLinkResolver(musiclink.NewManager()),
		resolver.WithPlaylistLimit(config.App.PlaylistLimit),
	}

	if spotifyEnabled(config) {
		svcs.tokens = spotify.NewTokenKeeper(&config.Spotify, logger)
		spotifyClient := spotify.NewClient(ctx, &config.Spotify, svcs.tokens, logger)
		opts = append(opts, resolver.WithSpotify(spotifyClient))
	} else {
		logger.Info("Spotify credentials not set, Spotify queries are disabled")
	}

	svcs.suno = suno.New(config.Suno.Cookie, logger,
		suno.WithKeepAliveInterval(time.Duration(config.Suno.KeepAliveSecs)*time.Second))
	if config.Suno.Cookie != "" {
		if err := svcs.suno.Init(ctx); err != nil {
			logger.Warn("Suno session could not be established, falling back to public song pages",
				zap.Error(err))
		}
	}
	opts = append(opts, resolver.WithSuno(svcs.suno))

	svcs.resolver = resolver.New(youtubeClient, logger, opts...)
	svcs.floodgate = flood.New(config.App.FloodLimitPerMinute)
	svcs.httpServer = httpserver.NewServer(&config.Server, svcs.resolver, logger,
		httpserver.WithLimiter(svcs.floodgate),
		httpserver.WithCacheStats(svcs.cache))

	return svcs, nil
}

func (s *services) close() {
	if s.suno != nil {
		s.suno.Stop()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Debug("Failed to close Redis connection", zap.Error(err))
		}
	}
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	g.Go(func() error {
		return svcs.floodgate.Run(gCtx)
	})

	if svcs.tokens != nil {
		g.Go(func() error {
			svcs.tokens.Run(gCtx)
			return nil
		})
	}

	if svcs.suno.Authenticated() {
		svcs.suno.Start(gCtx)
	}

	logger.Info("muse started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("muse stopped with error", zap.Error(err))
		return err
	}

	logger.Info("muse stopped gracefully")
	return nil
}

func spotifyEnabled(cfg *core.Config) bool {
	return cfg.Spotify.ClientID != "" && cfg.Spotify.ClientSecret != ""
}

func validateConfig(cfg *core.Config) error {
	if cfg.YouTube.APIKey == "" {
		return errors.New("YouTube API key is required")
	}

	switch cfg.YouTube.SearchBackend {
	case "api", "scrape":
	default:
		return fmt.Errorf("unknown YouTube search backend: %s", cfg.YouTube.SearchBackend)
	}

	if (cfg.Spotify.ClientID == "") != (cfg.Spotify.ClientSecret == "") {
		return errors.New("spotify client ID and client secret must be set together")
	}

	return nil
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	if err := os.WriteFile(".env.example", []byte(generateEnvExampleContent(cmd)), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# muse Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	fmt.Fprintf(&content, "# Format: %s_<SETTING>=value, CLI equivalent: --<setting>\n", envPrefix)
	content.WriteString("#\n\n")

	cmd.Root().PersistentFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "generate-env-example" {
			return
		}
		fmt.Fprintf(&content, "# %s (default: %q)\n", f.Usage, f.DefValue)
		fmt.Fprintf(&content, "%s=%s\n\n", flagToEnvVar(f.Name), f.DefValue)
	})

	return content.String()
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
