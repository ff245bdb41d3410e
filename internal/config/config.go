// Package config loads the application configuration.
//
// Sources, lowest priority first:
//  1. the embedded config.example.toml (defaults)
//  2. a TOML file given with --config
//  3. a .env file in the working directory (joho/godotenv)
//  4. environment variables
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server        ServerConfig        `toml:"server"`
	Database      DatabaseConfig      `toml:"database"`
	Auth          AuthConfig          `toml:"auth"`
	GitHub        GitHubConfig        `toml:"github"`
	Mail          MailConfig          `toml:"mail"`
	OpenFoodFacts OpenFoodFactsConfig `toml:"openfoodfacts"`
	Log           LogConfig           `toml:"log"`
}

type ServerConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	SiteURL       string `toml:"site_url"`
	SecureCookies bool   `toml:"secure_cookies"`
	Substitutes   int    `toml:"substitutes"`
}

// Addr is the listen address, e.g. ":8000".
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	URL    string `toml:"url"`
}

type AuthConfig struct {
	JWTSecret   string `toml:"jwt_secret"`
	SessionDays int    `toml:"session_days"`
	ResetDays   int    `toml:"reset_days"`
}

func (a AuthConfig) SessionDuration() time.Duration {
	return time.Duration(a.SessionDays) * 24 * time.Hour
}

func (a AuthConfig) ResetDuration() time.Duration {
	return time.Duration(a.ResetDays) * 24 * time.Hour
}

type GitHubConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	CallbackURL  string `toml:"callback_url"`
	// Enterprise hosts; empty means github.com.
	WebURL string `toml:"web_url"`
	APIURL string `toml:"api_url"`
}

// Enabled reports whether GitHub sign-in is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type MailConfig struct {
	Backend   string `toml:"backend"`
	Dir       string `toml:"dir"`
	From      string `toml:"from"`
	AWSRegion string `toml:"aws_region"`
}

type OpenFoodFactsConfig struct {
	BaseURL           string        `toml:"base_url"`
	PageSize          int           `toml:"page_size"`
	UserAgent         string        `toml:"user_agent"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	Workers           int           `toml:"workers"`
	Timeout           time.Duration `toml:"timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns the configuration of the embedded example file.
func DefaultConfig() *Config {
	var cfg Config
	if err := toml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("config: parsing embedded default config: %v", err))
	}
	return &cfg
}

// Load builds the configuration from defaults, the optional TOML file at
// path, the optional .env file and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// Decoding over the defaults keeps every key the file leaves out.
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides values from the environment. lookup is os.LookupEnv
// outside of tests.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	str("SITE_URL", &c.Server.SiteURL)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_PATH", &c.Database.Path)
	str("DATABASE_URL", &c.Database.URL)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("GITHUB_CLIENT_ID", &c.GitHub.ClientID)
	str("GITHUB_CLIENT_SECRET", &c.GitHub.ClientSecret)
	str("GITHUB_CALLBACK_URL", &c.GitHub.CallbackURL)
	str("MAIL_BACKEND", &c.Mail.Backend)
	str("SES_EMAIL", &c.Mail.From)
	str("AWS_REGION", &c.Mail.AWSRegion)
	str("LOG_LEVEL", &c.Log.Level)
	return nil
}

// publicSecrets are secrets shipped in earlier example configs. Anyone can
// sign sessions with them.
var publicSecrets = map[string]bool{
	"change-me-please-32-characters!!": true,
}

// Validate checks the values that would otherwise fail late, at the first
// request or the first email.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.Substitutes < 1 {
		problems = append(problems, "server.substitutes must be at least 1")
	}
	switch {
	case c.Auth.JWTSecret == "":
		problems = append(problems, "auth.jwt_secret is required (set it in the config file or JWT_SECRET)")
	case publicSecrets[c.Auth.JWTSecret]:
		problems = append(problems, "auth.jwt_secret is a published example value, generate your own")
	case len(c.Auth.JWTSecret) < 16:
		problems = append(problems, "auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.SessionDays < 1 || c.Auth.ResetDays < 1 {
		problems = append(problems, "auth.session_days and auth.reset_days must be at least 1")
	}

	if (c.GitHub.WebURL == "") != (c.GitHub.APIURL == "") {
		problems = append(problems, "github.web_url and github.api_url must be set together")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			problems = append(problems, "database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.URL == "" {
			problems = append(problems, "database.url is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q must be sqlite or postgres", c.Database.Driver))
	}

	switch c.Mail.Backend {
	case "file":
		if c.Mail.Dir == "" {
			problems = append(problems, "mail.dir is required for the file backend")
		}
	case "ses":
		if c.Mail.AWSRegion == "" {
			problems = append(problems, "mail.aws_region is required for the ses backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("mail.backend %q must be file or ses", c.Mail.Backend))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	if c.OpenFoodFacts.PageSize < 1 || c.OpenFoodFacts.Workers < 1 || c.OpenFoodFacts.RequestsPerSecond <= 0 {
		problems = append(problems, "openfoodfacts.page_size, workers and requests_per_second must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// CreateConfigFile writes the embedded example config to path. It refuses
// to overwrite an existing file.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: file already exists at %s", path)
	}
	if err := os.WriteFile(path, exampleConf, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}
