// Package config loads the optional yarascan YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = ".yarascan.yml"

// DefaultTimeout is the per-target scan timeout.
const DefaultTimeout = 60 * time.Second

// Config mirrors the scan command's flags. Zero values mean "not set".
type Config struct {
	Rules           []string `yaml:"rules"`
	BundledRules    *bool    `yaml:"bundled_rules"`
	BundledRulesDir string   `yaml:"bundled_rules_dir"`
	RulesInclude    []string `yaml:"rules_include"`
	RulesExclude    []string `yaml:"rules_exclude"`

	// Timeout is in seconds, matching --timeout.
	Timeout int      `yaml:"timeout"`
	Include []string `yaml:"include"`
	Workers int      `yaml:"workers"`

	Format      string `yaml:"format"`
	Output      string `yaml:"output"`
	Annotations string `yaml:"annotations"`
	FailOn      string `yaml:"fail_on"`
	DB          string `yaml:"db"`

	Logger Logger `yaml:"logger"`
	S3     S3     `yaml:"s3"`
	Azure  Azure  `yaml:"azure"`
}

// S3 holds settings for s3:// outputs.
type S3 struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// Azure holds settings for azblob:// outputs.
type Azure struct {
	ConnectionString string `yaml:"connection_string"`
}

// Logger holds logging settings.
type Logger struct {
	Level      string `yaml:"level"`
	JSONFormat bool   `yaml:"json_format"`
}

// Load reads the config at path. An empty path falls back to DefaultFile,
// and a missing default file yields an empty Config.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	info, err := os.Stat(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("'%s' is a directory, not a file", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values no command could honor.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	switch c.Format {
	case "", "json", "sarif":
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
	switch c.Annotations {
	case "", "auto", "github", "none":
	default:
		return fmt.Errorf("unknown annotations mode %q", c.Annotations)
	}
	return nil
}

// TimeoutDuration returns the configured timeout or DefaultTimeout.
func (c *Config) TimeoutDuration() time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return DefaultTimeout
}

// UseBundledRules reports whether bundled rules are enabled (default true).
func (c *Config) UseBundledRules() bool {
	if c.BundledRules == nil {
		return true
	}
	return *c.BundledRules
}
