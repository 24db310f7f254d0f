// Package main provides the Music Streamer CLI application entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"musicstreamer/internal/core"
	httpserver "musicstreamer/internal/http"
	"musicstreamer/internal/resolver"
	"musicstreamer/internal/store"
	"musicstreamer/pkg/stream"
)

const (
	defaultServerHost    = "0.0.0.0"
	defaultProviderOrder = "amazon,mirror,netease,ytdlp,spotify"
	envPrefix            = "MUSICSTREAMER"
	installTimeout       = 2 * time.Minute
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "musicstreamer",
	Short: "Music Streamer - track ID → playable stream URL",
	Long: `Music Streamer resolves a track identifier into a directly playable audio stream URL.
Providers are tried in priority order (Amazon Music first, then the configured fallbacks)
and successful resolutions are cached for a bounded time.`,
	RunE: runMusicStreamer,
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
	flags.String("log-file", "", "Optional rotated log file written in addition to stderr")
	flags.String("providers-file", "", "YAML/JSON/TOML file with a 'providers' list (overrides the provider flags)")
	flags.String("provider-order", defaultProviderOrder, "Comma-separated provider priority order")
	flags.Duration("provider-timeout", core.DefaultProviderTimeout, "Per-provider attempt timeout")
	flags.Float64("provider-requests-per-second", 0, "Outbound request rate per provider (0 disables pacing)")
	flags.String("amazon-api-url", core.DefaultAmazonAPIURL, "Amazon Music API base URL")
	flags.String("amazon-auth-token", "", "Amazon Music API bearer token")
	flags.String("mirror-urls", "", "Comma-separated mirror API base URLs")
	flags.String("mirror-auth-token", "", "Mirror API bearer token")
	flags.Duration("mirror-timeout", 0, "Timeout for each individual mirror (0 splits the provider timeout across mirrors)")
	flags.String("netease-api-url", "", "NetEase Cloud Music API base URL")
	flags.String("netease-cookie", "", "NetEase MUSIC_U cookie")
	flags.String("netease-level", stream.NetEaseDefaultLevel, "NetEase quality level")
	flags.Bool("ytdlp-enabled", false, "Enable the yt-dlp provider")
	flags.String("ytdlp-cookies", "", "Cookies file passed to yt-dlp")
	flags.String("spotify-client-id", "", "Spotify client ID (preview streams)")
	flags.String("spotify-client-secret", "", "Spotify client secret")
	flags.String("cache-backend", core.CacheBackendMemory, "Cache backend (memory, redis)")
	flags.Int("cache-max-entries", core.DefaultCacheMaxEntries, "Maximum entries in the memory cache")
	flags.String("redis-addr", "localhost:6379", "Redis address")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database")
	flags.String("redis-key-prefix", store.DefaultKeyPrefix, "Redis key prefix")
	flags.String("server-host", defaultServerHost, "HTTP server host")
	flags.Int("server-port", core.DefaultServerPort, "HTTP server port")
	flags.Duration("resolve-budget", 0, "Upper bound for a whole provider chain walk (0 disables it)")
	flags.Bool("install-ytdlp", false, "Download the yt-dlp binary on startup")
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
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

	cfg, err := buildConfig(viper.GetViper())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building configuration: %v\n", err)
		os.Exit(1)
	}
	config = cfg
	logger = buildLogger(config.Log)
}

func buildConfig(v *viper.Viper) (*core.Config, error) {
	cfg := core.DefaultConfig()

	if err := configureProviders(cfg, v); err != nil {
		return nil, err
	}
	configureCache(cfg, v)
	configureServer(cfg, v)
	configureApp(cfg, v)

	return cfg, nil
}

func configureProviders(cfg *core.Config, v *viper.Viper) error {
	if path := v.GetString("providers-file"); path != "" {
		providers, err := loadProvidersFile(path)
		if err != nil {
			return err
		}
		cfg.Providers = providers
		return nil
	}

	timeout := v.GetDuration("provider-timeout")
	rps := v.GetFloat64("provider-requests-per-second")

	for _, kind := range splitList(strings.ToLower(v.GetString("provider-order"))) {
		p := core.ProviderConfig{Kind: kind, Timeout: timeout, RequestsPerSecond: rps}

		switch kind {
		case core.ProviderKindAmazon:
			p.BaseURLs = []string{v.GetString("amazon-api-url")}
			if p.BaseURLs[0] == "" {
				p.BaseURLs[0] = core.DefaultAmazonAPIURL
			}
			p.Token = v.GetString("amazon-auth-token")
		case core.ProviderKindMirror:
			p.BaseURLs = splitList(v.GetString("mirror-urls"))
			if len(p.BaseURLs) == 0 {
				continue
			}
			p.Token = v.GetString("mirror-auth-token")
			p.MirrorTimeout = v.GetDuration("mirror-timeout")
		case core.ProviderKindNetEase:
			url := v.GetString("netease-api-url")
			if url == "" {
				continue
			}
			p.BaseURLs = []string{url}
			p.Cookie = v.GetString("netease-cookie")
			p.Quality = v.GetString("netease-level")
		case core.ProviderKindYTDLP:
			if !v.GetBool("ytdlp-enabled") {
				continue
			}
			p.Cookie = v.GetString("ytdlp-cookies")
		case core.ProviderKindSpotify:
			p.ClientID = v.GetString("spotify-client-id")
			p.ClientSecret = v.GetString("spotify-client-secret")
			if p.ClientID == "" {
				continue
			}
		default:
			fmt.Fprintf(os.Stderr, "Warning: Unknown provider '%s' in provider order, skipping\n", kind)
			continue
		}

		cfg.Providers = append(cfg.Providers, p)
	}
	return nil
}

// loadProvidersFile reads the "providers" list from a structured config file.
func loadProvidersFile(path string) ([]core.ProviderConfig, error) {
	fileViper := viper.New()
	fileViper.SetConfigFile(path)
	if err := fileViper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var providers []core.ProviderConfig
	if err := fileViper.UnmarshalKey("providers", &providers); err != nil {
		return nil, fmt.Errorf("failed to decode providers file: %w", err)
	}
	return providers, nil
}

func configureCache(cfg *core.Config, v *viper.Viper) {
	if backend := strings.ToLower(v.GetString("cache-backend")); backend != "" {
		cfg.Cache.Backend = backend
	}
	if maxEntries := v.GetInt("cache-max-entries"); maxEntries > 0 {
		cfg.Cache.MaxEntries = maxEntries
	}
	if addr := v.GetString("redis-addr"); addr != "" {
		cfg.Cache.RedisAddr = addr
	}
	cfg.Cache.RedisPassword = v.GetString("redis-password")
	cfg.Cache.RedisDB = v.GetInt("redis-db")
	if prefix := v.GetString("redis-key-prefix"); prefix != "" {
		cfg.Cache.KeyPrefix = prefix
	}
}

func configureServer(cfg *core.Config, v *viper.Viper) {
	cfg.Server.Host = v.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = defaultServerHost
	}
	if port := v.GetInt("server-port"); port != 0 {
		cfg.Server.Port = port
	}
	if level := v.GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	cfg.Log.File = v.GetString("log-file")
}

func configureApp(cfg *core.Config, v *viper.Viper) {
	cfg.App.InstallYTDLP = v.GetBool("install-ytdlp")
	cfg.App.ResolveBudget = v.GetDuration("resolve-budget")
	if cfg.App.ResolveBudget < 0 {
		fmt.Fprintf(os.Stderr, "Warning: Invalid resolve budget (%s), disabling it\n", cfg.App.ResolveBudget)
		cfg.App.ResolveBudget = 0
	}
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
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

func buildLogger(cfg core.LogConfig) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	builtLogger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}
	if cfg.File == "" {
		return builtLogger
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zapCfg.EncoderConfig),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}),
		zapCfg.Level,
	)
	return builtLogger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	}))
}

func runMusicStreamer(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Music Streamer",
		zap.String("version", core.Version),
		zap.Int("providers", len(config.Providers)),
		zap.String("cache_backend", config.Cache.Backend))

	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices(ctx)
	if err != nil {
		return err
	}
	defer svcs.close()

	return runServices(ctx, svcs)
}

type services struct {
	closers    []func() error
	service    *resolver.Service
	httpServer *httpserver.Server
}

func (s *services) close() {
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			logger.Debug("Failed to close resource", zap.Error(err))
		}
	}
}

func initializeServices(ctx context.Context) (*services, error) {
	svcs := &services{}

	if config.App.InstallYTDLP {
		installCtx, cancel := context.WithTimeout(ctx, installTimeout)
		err := stream.InstallYTDLP(installCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to install yt-dlp: %w", err)
		}
		logger.Info("yt-dlp installed")
	}

	cache, err := createCache(ctx, svcs)
	if err != nil {
		return nil, err
	}

	attempts, err := resolver.BuildChain(config.Providers, logger.Named("provider"))
	if err != nil {
		svcs.close()
		return nil, err
	}
	orchestrator := stream.NewOrchestrator(attempts, logger.Named("orchestrator"))

	metrics := httpserver.NewMetrics()
	svcs.service = resolver.NewService(orchestrator, cache, logger.Named("resolver"),
		resolver.WithRecorder(metrics),
		resolver.WithBudget(config.App.ResolveBudget))

	svcs.httpServer = httpserver.NewServer(&config.Server, httpserver.Info{
		ServiceName: config.App.ServiceName,
		Version:     core.Version,
	}, svcs.service, metrics, logger.Named("http"))

	logger.Info("Provider chain ready", zap.Strings("providers", orchestrator.Providers()))
	return svcs, nil
}

func createCache(ctx context.Context, svcs *services) (resolver.Cache, error) {
	switch config.Cache.Backend {
	case core.CacheBackendRedis:
		client, err := store.NewRedisClient(ctx, store.RedisConfig{
			Addr:     config.Cache.RedisAddr,
			Password: config.Cache.RedisPassword,
			DB:       config.Cache.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		svcs.closers = append(svcs.closers, client.Close)
		logger.Info("Using redis cache", zap.String("addr", config.Cache.RedisAddr))
		return store.NewRedisCache(client, config.Cache.KeyPrefix), nil
	default:
		logger.Info("Using in-memory cache", zap.Int("max_entries", config.Cache.MaxEntries))
		return store.NewMemoryCache(config.Cache.MaxEntries), nil
	}
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	logger.Info("Music Streamer started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Music Streamer stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Music Streamer stopped gracefully")
	return nil
}

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("✅ Successfully generated .env.example file")
	return nil
}

// envSections groups flags for the generated .env.example.
var envSections = []struct {
	title string
	flags []string
}{
	{title: "Provider Chain", flags: []string{"provider-order", "provider-timeout", "provider-requests-per-second", "providers-file"}},
	{title: "Amazon Music", flags: []string{"amazon-api-url", "amazon-auth-token"}},
	{title: "Mirrors", flags: []string{"mirror-urls", "mirror-auth-token", "mirror-timeout"}},
	{title: "NetEase Cloud Music", flags: []string{"netease-api-url", "netease-cookie", "netease-level"}},
	{title: "yt-dlp", flags: []string{"ytdlp-enabled", "ytdlp-cookies", "install-ytdlp"}},
	{title: "Spotify", flags: []string{"spotify-client-id", "spotify-client-secret"}},
	{title: "Cache", flags: []string{"cache-backend", "cache-max-entries", "redis-addr", "redis-password", "redis-db", "redis-key-prefix"}},
	{title: "HTTP Server", flags: []string{"server-host", "server-port", "resolve-budget"}},
	{title: "Logging", flags: []string{"log-level", "log-file"}},
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# Music Streamer Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	fmt.Fprintf(&content, "# Format: %s_<SECTION>_<SETTING>=value\n", envPrefix)
	content.WriteString("# CLI equivalent: --<section>-<setting>\n")
	content.WriteString("#\n\n")

	for _, section := range envSections {
		content.WriteString("# -----------------------------------------------------------------------------\n")
		fmt.Fprintf(&content, "# %s\n", section.title)
		content.WriteString("# -----------------------------------------------------------------------------\n")
		for _, name := range section.flags {
			f := cmd.PersistentFlags().Lookup(name)
			if f == nil {
				continue
			}
			fmt.Fprintf(&content, "# %s\n", f.Usage)
			fmt.Fprintf(&content, "%s=%s\n", flagToEnvVar(name), getDefaultValueString(cmd, name))
		}
		content.WriteString("\n")
	}

	return content.String()
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func getDefaultValueString(cmd *cobra.Command, flagName string) string {
	if f := cmd.PersistentFlags().Lookup(flagName); f != nil {
		return f.DefValue
	}
	return ""
}
