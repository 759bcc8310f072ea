package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/metafusion/metafusion/pkg/errors"
	"github.com/metafusion/metafusion/pkg/selector"
)

// Config holds the application configuration loaded from config files,
// environment variables, and .env files.
type Config struct {
	// Global flags
	Verbose bool
	Quiet   bool
	NoColor bool

	// Config file
	ConfigFile string

	// Media server
	PlexURL   string
	PlexToken string

	// Metadata provider
	TMDBAPIKey   string
	TMDBLanguage string
	TMDBRegion   string

	// Paths
	MetadataDir string
	AssetsDir   string
	CacheDir    string
	LockFile    string

	// S3 asset storage; local disk is used when Endpoint is empty.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3Region    string
	S3UseSSL    bool

	// Run tuning
	MaxWorkers    int
	Timeout       time.Duration
	MaxRetries    int
	BackoffFactor float64

	// Per-role selection policies; zero values fall back to the
	// engine's built-in cascades.
	PosterPolicy     selector.Policy
	BackgroundPolicy selector.Policy

	// Logging configuration
	LogLevel  string
	LogFormat string
	LogOutput string
}

// LoadConfig loads configuration from all sources in order of precedence:
// 1. Command-line flags (handled by cobra)
// 2. Environment variables
// 3. .env files
// 4. Config file (~/.metafusion.yaml)
// 5. Defaults
func LoadConfig() (*Config, error) {
	// Load .env files before Viper env binding
	loadEnvFiles()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	bindSecrets()
	setDefaults()

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.AddConfigPath(".")
			viper.SetConfigType("yaml")
			viper.SetConfigName(".metafusion")
		}
	}

	// Config file is optional
	_ = viper.ReadInConfig()

	config := &Config{
		Verbose: viper.GetBool("verbose"),
		Quiet:   viper.GetBool("quiet"),
		NoColor: viper.GetBool("no-color"),

		ConfigFile: viper.ConfigFileUsed(),

		PlexURL:   viper.GetString("plex_url"),
		PlexToken: viper.GetString("plex_token"),

		TMDBAPIKey:   viper.GetString("tmdb_api_key"),
		TMDBLanguage: viper.GetString("tmdb_language"),
		TMDBRegion:   viper.GetString("tmdb_region"),

		MetadataDir: viper.GetString("metadata_dir"),
		AssetsDir:   viper.GetString("assets_dir"),
		CacheDir:    viper.GetString("cache_dir"),
		LockFile:    viper.GetString("lock_file"),

		S3Endpoint:  viper.GetString("s3_endpoint"),
		S3AccessKey: viper.GetString("s3_access_key"),
		S3SecretKey: viper.GetString("s3_secret_key"),
		S3Bucket:    viper.GetString("s3_bucket"),
		S3Region:    viper.GetString("s3_region"),
		S3UseSSL:    viper.GetBool("s3_use_ssl"),

		MaxWorkers:    viper.GetInt("max_workers"),
		Timeout:       viper.GetDuration("timeout"),
		MaxRetries:    viper.GetInt("max_retries"),
		BackoffFactor: viper.GetFloat64("backoff_factor"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", ""),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "auto"),
		LogOutput: getEnvOrDefault("LOG_OUTPUT", "stderr"),
	}

	if config.LockFile == "" {
		config.LockFile = config.CacheDir + "/run.lock"
	}

	if err := viper.UnmarshalKey("poster_policy", &config.PosterPolicy); err != nil {
		return nil, errors.NewValidationError("poster_policy", nil, err.Error())
	}
	if err := viper.UnmarshalKey("background_policy", &config.BackgroundPolicy); err != nil {
		return nil, errors.NewValidationError("background_policy", nil, err.Error())
	}

	return config, nil
}

// ValidateRun checks the fields a reconciliation run requires.
func (c *Config) ValidateRun() error {
	if c.PlexURL == "" {
		return errors.NewValidationError("plex_url", "", "media server URL is required")
	}
	if c.PlexToken == "" {
		return errors.NewValidationError("plex_token", "", "media server token is required")
	}
	if c.TMDBAPIKey == "" {
		return errors.ErrAPIKeyRequired
	}
	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "" || c.S3Bucket == "") {
		return errors.NewValidationError("s3_endpoint", c.S3Endpoint, "S3 storage needs access key, secret key, and bucket")
	}
	return nil
}

// UpdateFromFlags updates config values from parsed command flags so flag
// values take precedence over config file and env vars.
func (c *Config) UpdateFromFlags(verbose, quiet, noColor bool, logLevel string) {
	c.Verbose = verbose
	c.Quiet = quiet
	c.NoColor = noColor
	if logLevel != "" {
		c.LogLevel = logLevel
	}
}

// loadEnvFiles loads environment variables from .env files.
// .env.local overrides .env.
func loadEnvFiles() {
	envFiles := []string{
		".env",
		".env.local",
	}

	for _, envFile := range envFiles {
		_ = godotenv.Load(envFile)
	}
}

// bindSecrets explicitly binds credential environment variables to Viper.
func bindSecrets() {
	secrets := []string{
		"PLEX_URL",
		"PLEX_TOKEN",
		"TMDB_API_KEY",
		"S3_ENDPOINT",
		"S3_ACCESS_KEY",
		"S3_SECRET_KEY",
	}

	for _, key := range secrets {
		if err := viper.BindEnv(key); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind environment variable %s: %v\n", key, err)
		}
	}
}

func setDefaults() {
	viper.SetDefault("tmdb_language", "en")
	viper.SetDefault("tmdb_region", "US")
	viper.SetDefault("metadata_dir", "metadata")
	viper.SetDefault("assets_dir", "assets")
	viper.SetDefault("cache_dir", "cache")
	viper.SetDefault("max_workers", 5)
	viper.SetDefault("max_retries", 3)
	viper.SetDefault("backoff_factor", 2.0)
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
