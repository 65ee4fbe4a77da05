// Package config loads the .dephealth.yaml configuration. Every policy
// constant of the pipeline (chunk size, grace period, thresholds, point
// costs, caps, license allow-list) is configuration, not a literal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sambabib/dephealth/pkg/analyzer"
)

// DefaultConfigName is the file searched for in the project directory
// and its parents.
const DefaultConfigName = ".dephealth.yaml"

// Config is the full configuration for a health analysis run.
type Config struct {
	// ChunkSize bounds how many dependencies are analyzed concurrently.
	ChunkSize int `yaml:"chunkSize"`

	// GracePeriodDays is how long a new major release is not yet counted
	// as outdated.
	GracePeriodDays int `yaml:"gracePeriodDays"`
	// UnmaintainedDays is the publish age past which a package counts as
	// unmaintained.
	UnmaintainedDays int `yaml:"unmaintainedDays"`
	// ProbeTimeoutSeconds bounds each migration-guide URL probe.
	ProbeTimeoutSeconds int `yaml:"probeTimeoutSeconds"`

	Cache struct {
		PositiveTTLHours int `yaml:"positiveTtlHours"`
		NegativeTTLHours int `yaml:"negativeTtlHours"`
	} `yaml:"cache"`

	Registries struct {
		Npm string `yaml:"npm"`
		OSV string `yaml:"osv"`
	} `yaml:"registries"`

	License struct {
		// Allowed is the identifier allow-list.
		Allowed []string `yaml:"allowed"`
		// Project overrides the project license read from the manifest.
		Project string `yaml:"project"`
	} `yaml:"license"`

	Score analyzer.ScoreConfig `yaml:"score"`

	Output struct {
		Format string `yaml:"format"` // text, json, sarif
		File   string `yaml:"file"`   // stdout if empty
	} `yaml:"output"`

	// IgnorePackages are excluded from analysis entirely.
	IgnorePackages []string `yaml:"ignorePackages"`
}

// DefaultConfig returns the stock policy.
func DefaultConfig() *Config {
	cfg := &Config{
		ChunkSize:           analyzer.DefaultChunkSize,
		GracePeriodDays:     90,
		UnmaintainedDays:    730,
		ProbeTimeoutSeconds: 5,
		Score:               analyzer.DefaultScoreConfig(),
	}
	cfg.Cache.PositiveTTLHours = 24
	cfg.Cache.NegativeTTLHours = 7 * 24
	cfg.License.Allowed = []string{
		"MIT", "ISC", "Apache-2.0", "BSD-2-Clause", "BSD-3-Clause",
		"0BSD", "Unlicense", "CC0-1.0", "Zlib",
	}
	cfg.Output.Format = "text"
	return cfg
}

// GracePeriod converts the day count to a duration.
func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodDays) * 24 * time.Hour
}

// UnmaintainedAfter converts the day count to a duration.
func (c *Config) UnmaintainedAfter() time.Duration {
	return time.Duration(c.UnmaintainedDays) * 24 * time.Hour
}

// PositiveTTL converts the hour count to a duration.
func (c *Config) PositiveTTL() time.Duration {
	return time.Duration(c.Cache.PositiveTTLHours) * time.Hour
}

// NegativeTTL converts the hour count to a duration.
func (c *Config) NegativeTTL() time.Duration {
	return time.Duration(c.Cache.NegativeTTLHours) * time.Hour
}

// ProbeTimeout converts the second count to a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// IsPackageIgnored checks the ignore list.
func (c *Config) IsPackageIgnored(name string) bool {
	for _, ignored := range c.IgnorePackages {
		if ignored == name {
			return true
		}
	}
	return false
}

// LoadConfig loads configuration from the given path, or the defaults
// when the file does not exist. An empty path means DefaultConfigName
// in the current directory.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultConfigName
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// FindAndLoadConfig searches for a config file in the project directory
// and its parents, falling back to defaults when none is found.
func FindAndLoadConfig(projectPath string) (*Config, error) {
	currentDir := projectPath
	for {
		configPath := filepath.Join(currentDir, DefaultConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return LoadConfig(configPath)
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}
	return DefaultConfig(), nil
}
