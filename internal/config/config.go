// Package config loads application configuration from config.yaml and
// MATCHPOINT_* environment variables, and initializes the global logger.
package config

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Scraper ScraperConfig `yaml:"scraper" mapstructure:"scraper"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects and configures the database backend. The driver is
// an explicit value threaded into the store constructor, never a
// process-wide switch.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ScraperConfig configures tournament scraping.
type ScraperConfig struct {
	// TournamentURLs maps tournament keys to source page URLs. Loaded
	// from the config file and merged with the
	// MATCHPOINT_SCRAPER_TOURNAMENT_URLS_JSON env blob.
	TournamentURLs map[string]string `yaml:"tournament_urls" mapstructure:"tournament_urls"`

	// BookmakerTitle is the title attribute identifying the designated
	// bookmaker's odds row on a match page.
	BookmakerTitle string `yaml:"bookmaker_title" mapstructure:"bookmaker_title"`

	// SeasonYear is recorded on tournaments created this season.
	SeasonYear int `yaml:"season_year" mapstructure:"season_year"`

	Headless  bool   `yaml:"headless" mapstructure:"headless"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`

	NavTimeoutSecs      int `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	WaitTimeoutSecs     int `yaml:"wait_timeout_secs" mapstructure:"wait_timeout_secs"`
	CookieTimeoutSecs   int `yaml:"cookie_timeout_secs" mapstructure:"cookie_timeout_secs"`
	ShowMoreTimeoutSecs int `yaml:"show_more_timeout_secs" mapstructure:"show_more_timeout_secs"`
	SettleMillis        int `yaml:"settle_millis" mapstructure:"settle_millis"`

	// SnapshotDir receives the per-run JSON snapshot files.
	SnapshotDir string `yaml:"snapshot_dir" mapstructure:"snapshot_dir"`

	// MaxMatches caps extraction per run for testing; 0 means all.
	MaxMatches int `yaml:"max_matches" mapstructure:"max_matches"`

	// Concurrency bounds how many tournaments run in parallel, each
	// with its own browser session.
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	APIKey          string   `yaml:"api_key" mapstructure:"api_key"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min" mapstructure:"rate_limit_per_min"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxPageSize     int      `yaml:"max_page_size" mapstructure:"max_page_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// tournamentURLsEnv carries the tournament map as a JSON blob for
// environments without a config file (CI schedules).
const tournamentURLsEnv = "MATCHPOINT_SCRAPER_TOURNAMENT_URLS_JSON"

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MATCHPOINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.rate_limit_per_min", 60)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_page_size", 1000)
	v.SetDefault("scraper.bookmaker_title", "TippmixPro")
	v.SetDefault("scraper.season_year", 2026)
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36")
	v.SetDefault("scraper.nav_timeout_secs", 30)
	v.SetDefault("scraper.wait_timeout_secs", 10)
	v.SetDefault("scraper.cookie_timeout_secs", 3)
	v.SetDefault("scraper.show_more_timeout_secs", 5)
	v.SetDefault("scraper.settle_millis", 1000)
	v.SetDefault("scraper.snapshot_dir", "data")
	v.SetDefault("scraper.concurrency", 1)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := mergeTournamentURLs(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeTournamentURLs overlays the env-provided JSON map onto the
// file-provided one. Viper's env binding does not reach into maps, so the
// blob is decoded explicitly.
func mergeTournamentURLs(cfg *Config) error {
	blob := os.Getenv(tournamentURLsEnv)
	if blob == "" {
		return nil
	}

	urls := map[string]string{}
	if err := json.Unmarshal([]byte(blob), &urls); err != nil {
		return eris.Wrapf(err, "config: parse %s", tournamentURLsEnv)
	}

	if cfg.Scraper.TournamentURLs == nil {
		cfg.Scraper.TournamentURLs = map[string]string{}
	}
	for k, u := range urls {
		cfg.Scraper.TournamentURLs[k] = u
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
