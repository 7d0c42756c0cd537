package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/kiln/internal/format"
	"github.com/starford/kiln/internal/markerize"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config is the kiln configuration file. Every section has a usable default
// so an empty or absent file still yields a runnable server.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Site      SiteConfig        `yaml:"site"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Markerize MarkerizeConfig   `yaml:"markerize"`
}

type section interface{ Validate() error }

// Validate checks every section and reports the first failure prefixed with
// the section name.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		s    section
	}{
		{"app", &c.App},
		{"site", &c.Site},
		{"sqlite", &c.SQLite},
		{"auth", &c.Auth},
		{"markerize", &c.Markerize},
	}
	for _, sec := range sections {
		if err := sec.s.Validate(); err != nil {
			return fmt.Errorf("%s: %w", sec.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds process-wide settings.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP listener settings.
type HTTPConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Address returns the listen address; an empty host listens on all interfaces.
func (c *HTTPConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
	)
}

// SiteConfig holds the site root and which files in it kiln tracks.
// Component files carry a preamble; content files carry YAML frontmatter.
type SiteConfig struct {
	Path                string   `yaml:"path"`
	ComponentExtensions []string `yaml:"component_extensions"`
	ContentExtensions   []string `yaml:"content_extensions"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.ComponentExtensions, validation.Required, validation.Each(validation.By(extension))),
		validation.Field(&c.ContentExtensions, validation.Each(validation.By(extension))),
	); err != nil {
		return err
	}
	for _, ext := range c.ContentExtensions {
		if slices.Contains(c.ComponentExtensions, ext) {
			return fmt.Errorf("extension %q is listed as both component and content", ext)
		}
	}
	return nil
}

// Extensions returns every tracked extension, components first.
func (c *SiteConfig) Extensions() []string {
	return slices.Concat(c.ComponentExtensions, c.ContentExtensions)
}

func extension(v any) error {
	s, _ := v.(string)
	if len(s) < 2 || s[0] != '.' || strings.ContainsAny(s[1:], `./\ `) {
		return fmt.Errorf("must look like .ext, got %q", s)
	}
	return nil
}

// MarkerizeConfig tunes the region marker injector.
type MarkerizeConfig struct {
	// PropsSource is the expression component props are destructured from.
	PropsSource string `yaml:"props_source"`
}

// Validate validates the markerize configuration.
func (c *MarkerizeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PropsSource, validation.Required),
	)
}

// SQLiteConfig locates the index database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig controls access to the HTTP API. Mode "disabled" (also the
// empty value) serves everyone; mode "token" requires a Bearer token.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

var errEmptyToken = errors.New("token is empty")

// Validate validates the auth configuration. An empty mode becomes "disabled".
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.In(AuthModeDisabled, AuthModeToken)),
		validation.Field(&c.Token, validation.When(c.Mode == AuthModeToken,
			validation.By(func(any) error {
				if strings.TrimSpace(c.Token) == "" {
					return errEmptyToken
				}
				return nil
			}))),
	)
}

// AuthEnabled reports whether requests must carry the token.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns the configuration used when no file is given.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:            8080,
				ShutdownTimeout: 10 * time.Second,
			},
		},
		Site: SiteConfig{
			Path:                "./site",
			ComponentExtensions: slices.Clone(format.DefaultComponentExtensions),
			ContentExtensions:   []string{".md", ".mdx"},
		},
		SQLite: SQLiteConfig{
			Path: "./kiln.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Markerize: MarkerizeConfig{
			PropsSource: markerize.DefaultPropsSource,
		},
	}
}
