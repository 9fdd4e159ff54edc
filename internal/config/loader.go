package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Loader applies configuration sources in order of increasing priority:
// defaults, base.yaml, <environment>.yaml, the .env file and finally the
// process environment.
type Loader struct {
	basePath   string
	dotenvPath string
	lookuper   envconfig.Lookuper
	sources    []string
}

// Option customizes a Loader.
type Option func(*Loader)

// WithDotenv reads variables from path. A missing file is ignored.
func WithDotenv(path string) Option {
	return func(l *Loader) { l.dotenvPath = path }
}

// WithLookuper replaces the process environment as the variable source.
func WithLookuper(lk envconfig.Lookuper) Option {
	return func(l *Loader) { l.lookuper = lk }
}

// NewLoader creates a loader reading YAML files from basePath.
func NewLoader(basePath string, opts ...Option) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	l := &Loader{
		basePath:   basePath,
		dotenvPath: ".env",
		lookuper:   envconfig.OsLookuper(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds and validates the configuration.
func (l *Loader) Load(ctx context.Context) (*Config, error) {
	l.sources = nil

	lookuper, dotenv, err := l.variables()
	if err != nil {
		return nil, err
	}
	env := Development
	if v, ok := lookuper.Lookup("ENVIRONMENT"); ok && v != "" {
		env = Environment(strings.ToLower(v))
	}

	cfg := Defaults(env)
	l.sources = append(l.sources, "defaults")

	if err := l.loadFile("base", cfg); err != nil {
		return nil, fmt.Errorf("failed to load base config: %w", err)
	}
	if err := l.loadFile(string(env), cfg); err != nil {
		return nil, fmt.Errorf("failed to load %s config: %w", env, err)
	}

	if dotenv {
		l.sources = append(l.sources, l.dotenvPath)
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	l.sources = append(l.sources, "environment")

	cfg.LoadedFrom = l.sources
	cfg.applyEnvironmentDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// variables layers the .env file under the environment.
func (l *Loader) variables() (envconfig.Lookuper, bool, error) {
	if l.dotenvPath == "" {
		return l.lookuper, false, nil
	}
	vars, err := godotenv.Read(l.dotenvPath)
	if errors.Is(err, fs.ErrNotExist) {
		return l.lookuper, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", l.dotenvPath, err)
	}
	return envconfig.MultiLookuper(l.lookuper, envconfig.MapLookuper(vars)), true, nil
}

// loadFile decodes <name>.yaml or <name>.yml over cfg. A missing file is
// not an error.
func (l *Loader) loadFile(name string, cfg *Config) error {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(l.basePath, name+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		l.sources = append(l.sources, path)
		return nil
	}
	return nil
}

// Load reads the configuration from ./config, ./.env and the environment.
func Load(ctx context.Context) (*Config, error) {
	dir := os.Getenv("CONFIG_DIR")
	return NewLoader(dir).Load(ctx)
}
