// Package config loads cmd/snapfsctl's settings from an optional YAML
// file plus environment variable overrides, the way the teacher's
// cmd/auth/config.go layers envconfig.Process on top of a YAML load.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	envVarPrefix = "SNAPFS"
	appName      = "snapfs"
)

// Config holds cmd/snapfsctl's settings: where the image lives, and
// FormatBlocks, a size for a freshly formatted image. cmd/mkfs does not
// read Config; it takes the image path and size from its own flags.
type Config struct {
	ImagePath    string `envconfig:"SNAPFS_IMAGE_PATH" yaml:"imagePath"`
	FormatBlocks uint32 `envconfig:"SNAPFS_FORMAT_BLOCKS" default:"16384" yaml:"formatBlocks"`
}

// Load reads SNAPFS_CONFIG_FILE (or ~/.config/snapfs.yaml) if present,
// then applies SNAPFS_* environment variable overrides on top.
func Load() (*Config, error) {
	configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE")
	if configFile == "" {
		configFile = filepath.Join(os.Getenv("HOME"), ".config", appName+".yaml")
	}

	var c Config
	data, err := ioutil.ReadFile(configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling config file: %w", err)
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	return &c, nil
}

// Validate checks that the settings a mounted-image command needs are
// present.
func (c *Config) Validate() error {
	if c.ImagePath == "" {
		return fmt.Errorf(
			"missing required configuration: imagePath / %s_IMAGE_PATH",
			envVarPrefix,
		)
	}
	return nil
}
