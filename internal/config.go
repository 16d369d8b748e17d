package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Vault  VaultConfig       `yaml:"vault"`
	Inbox  InboxConfig       `yaml:"inbox"`
	Graph  GraphConfig       `yaml:"graph"`
	Intake IntakeConfig      `yaml:"intake"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.SQLite, &c.Vault, &c.Inbox, &c.Intake} {
		if err := v.Validate(); err != nil {
			return err
		}
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

// VaultConfig controls archiving of ingested source files.
type VaultConfig struct {
	Path    string `yaml:"path"`
	Archive bool   `yaml:"archive"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Archive, validation.Required)),
	)
}

// InboxConfig controls the drop-directory watcher.
type InboxConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	Settle  time.Duration `yaml:"settle"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Settle, validation.Min(time.Duration(0))),
	)
}

// GraphConfig holds link graph policy.
type GraphConfig struct {
	AllowSelfLoops bool `yaml:"allow_self_loops"`
}

// IntakeConfig controls text extraction for non-plain-text files and which
// server directories the API and MCP surfaces may read documents from.
// An empty AllowedRoots disables path-based processing over those surfaces.
type IntakeConfig struct {
	PDFToText        bool          `yaml:"pdftotext"`
	PDFToTextBinary  string        `yaml:"pdftotext_binary"`
	ExtractorTimeout time.Duration `yaml:"extractor_timeout"`
	Markdown         bool          `yaml:"markdown"`
	AllowedRoots     []string      `yaml:"allowed_roots"`
}

// Validate validates the intake configuration.
func (c *IntakeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ExtractorTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.AllowedRoots, validation.Each(validation.Required)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./nexus.db",
		},
		Vault: VaultConfig{
			Path:    "./vault",
			Archive: true,
		},
		Inbox: InboxConfig{
			Path:   "./inbox",
			Settle: 500 * time.Millisecond,
		},
		Graph: GraphConfig{
			AllowSelfLoops: true,
		},
		Intake: IntakeConfig{
			PDFToTextBinary:  "pdftotext",
			ExtractorTimeout: 30 * time.Second,
			AllowedRoots:     []string{"./inbox"},
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
