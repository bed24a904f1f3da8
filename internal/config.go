package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/dispatch/internal/site"
	"github.com/starford/dispatch/internal/vault"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	Site   SiteConfig        `yaml:"site"`
	Git    GitConfig         `yaml:"git"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Vault.Validate(); err != nil {
		return fmt.Errorf("vault: %w", err)
	}
	if err := c.Site.Validate(); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if err := c.Git.Validate(); err != nil {
		return fmt.Errorf("git: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig describes the source vault and which of its directories are
// publishable.
type VaultConfig struct {
	Path            string   `yaml:"path"`
	PublishableDirs []string `yaml:"publishable_dirs"`
	ExcludedDirs    []string `yaml:"excluded_dirs"`
	ScanLimit       int      `yaml:"scan_limit"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.PublishableDirs, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.ExcludedDirs, validation.Each(validation.Required)),
		validation.Field(&c.ScanLimit, validation.Min(0)),
	)
}

// SiteConfig describes the publication repository.
type SiteConfig struct {
	RepoPath      string `yaml:"repo_path"`
	ContentRoot   string `yaml:"content_root"`
	DraftsDir     string `yaml:"drafts_dir"`
	BaseURL       string `yaml:"base_url"`
	CDNHost       string `yaml:"cdn_host"`
	LongLinkWords int    `yaml:"long_link_words"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RepoPath, validation.Required),
		validation.Field(&c.ContentRoot, validation.Required),
		validation.Field(&c.DraftsDir, validation.Required),
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.CDNHost, is.Host),
		validation.Field(&c.LongLinkWords, validation.Min(1)),
	)
}

// Layout returns the publication layout described by the config.
func (c *SiteConfig) Layout() site.Layout {
	return site.Layout{ContentRoot: c.ContentRoot, DraftsDir: c.DraftsDir, BaseURL: c.BaseURL}
}

// GitConfig holds git subprocess and status polling settings.
type GitConfig struct {
	Binary         string        `yaml:"binary"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

// Validate validates the git configuration.
func (c *GitConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Binary, validation.Required),
		validation.Field(&c.StatusInterval, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// ScanOptions returns the vault tree rules and warning rules.
func (c *Config) ScanOptions() vault.Options {
	return vault.Options{
		PublishableDirs: c.Vault.PublishableDirs,
		ExcludedDirs:    c.Vault.ExcludedDirs,
		Rules:           vault.Rules{CDNHost: c.Site.CDNHost, LongLinkWords: c.Site.LongLinkWords},
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	tree := vault.DefaultOptions()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:            "./vault",
			PublishableDirs: tree.PublishableDirs,
			ExcludedDirs:    tree.ExcludedDirs,
		},
		Site: SiteConfig{
			RepoPath:      "./site",
			ContentRoot:   "content/blog",
			DraftsDir:     "drafts",
			BaseURL:       "https://example.com",
			CDNHost:       "res.cloudinary.com",
			LongLinkWords: tree.Rules.LongLinkWords,
		},
		Git: GitConfig{
			Binary:         "git",
			StatusInterval: 30 * time.Second,
		},
		SQLite: SQLiteConfig{
			Path: "./dispatch.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
