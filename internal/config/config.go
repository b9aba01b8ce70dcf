// Package config defines the wptsync configuration and its loading.
//
// Configuration is an explicit value passed into each component at
// construction; there is no process-wide config singleton.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// RepoConfig describes one of the two repositories a sync operates on.
type RepoConfig struct {
	// Name is the repository's unique name (e.g. "web-platform-tests").
	Name string `mapstructure:"name"`

	// Root is the local clone's filesystem path.
	Root string `mapstructure:"root"`

	// Remote is the remote to fetch from.
	Remote string `mapstructure:"remote"`

	// BaseRef is the baseline ref new commits are diffed against
	// (e.g. "origin/master" upstream, "mozilla/central" downstream).
	BaseRef string `mapstructure:"base_ref"`
}

// Config is the full wptsync configuration.
type Config struct {
	// Source is the upstream test-suite repository.
	Source RepoConfig `mapstructure:"source"`

	// Target is the downstream tree the changes are ported into.
	Target RepoConfig `mapstructure:"target"`

	// PathPrefix is the subdirectory of the target tree that mirrors the
	// upstream project; all ported patches are rebased onto it.
	PathPrefix string `mapstructure:"path_prefix"`

	// MetaPath is the target-tree directory holding generated test
	// metadata, committed separately from ported commits.
	MetaPath string `mapstructure:"meta_path"`

	// CIContext is the single recognized CI status context; status events
	// with any other context are ignored.
	CIContext string `mapstructure:"ci_context"`

	// DefaultProduct and DefaultComponent are the catch-all routing
	// decision used when classification yields nothing usable.
	DefaultProduct   string `mapstructure:"default_product"`
	DefaultComponent string `mapstructure:"default_component"`

	// DatabasePath is the sqlite sync-state database file.
	DatabasePath string `mapstructure:"database_path"`

	// SpoolDir is the directory watched for inbound event files.
	SpoolDir string `mapstructure:"spool_dir"`

	// LogFile, when set, is where the serve command writes its rotating log.
	LogFile string `mapstructure:"log_file"`

	// CommandTimeout bounds each external VCS/build-tool invocation.
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// Default returns a configuration with the conventional wpt-to-gecko values.
func Default() *Config {
	return &Config{
		Source: RepoConfig{
			Name:    "web-platform-tests",
			Remote:  "origin",
			BaseRef: "origin/master",
		},
		Target: RepoConfig{
			Name:    "gecko",
			Remote:  "mozilla",
			BaseRef: "mozilla/central",
		},
		PathPrefix:       "testing/web-platform/tests",
		MetaPath:         "testing/web-platform/meta",
		CIContext:        "continuous-integration/travis-ci/pr",
		DefaultProduct:   "Testing",
		DefaultComponent: "web-platform-tests",
		DatabasePath:     ".wptsync/sync.db",
		SpoolDir:         ".wptsync/spool",
		CommandTimeout:   10 * time.Minute,
	}
}

// Load reads configuration from the given file path (yaml), overlaying the
// defaults. An empty path loads pure defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks the fields required for a sync run.
func (c *Config) Validate() error {
	if c.Source.Name == "" || c.Target.Name == "" {
		return fmt.Errorf("source and target repository names are required")
	}
	if c.Source.Root == "" || c.Target.Root == "" {
		return fmt.Errorf("source and target repository roots are required")
	}
	if c.PathPrefix == "" {
		return fmt.Errorf("path_prefix is required")
	}
	return nil
}
