// Package config loads mount settings for circlefs from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Sentinel errors for package config.
var (
	ErrNegativeTTL  = errors.New("attr_ttl must not be negative")
	ErrEmptyFSName  = errors.New("fsname must not be empty")
	ErrProcOverlap  = errors.New("mountpoint overlaps the proc filesystem")
	ErrNoMountpoint = errors.New("mountpoint is required")
)

// Config holds everything the mount command needs.
type Config struct {
	Mountpoint  string        `yaml:"mountpoint"`
	FSName      string        `yaml:"fsname"`
	AllowOther  bool          `yaml:"allow_other"`
	AttrTTL     time.Duration `yaml:"attr_ttl"`
	ProcPath    string        `yaml:"proc_path"`
	MetricsAddr string        `yaml:"metrics_addr"`
	Debug       bool          `yaml:"debug"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		FSName:   "circlefs",
		AttrTTL:  time.Second,
		ProcPath: "/proc",
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c *Config) Validate() error {
	if c.Mountpoint == "" {
		return ErrNoMountpoint
	}
	if c.FSName == "" {
		return ErrEmptyFSName
	}
	if c.AttrTTL < 0 {
		return ErrNegativeTTL
	}
	if c.ProcPath != "" && PathsOverlap(c.Mountpoint, c.ProcPath) {
		return fmt.Errorf("%s and %s: %w", c.Mountpoint, c.ProcPath, ErrProcOverlap)
	}
	return nil
}

// Marshal renders c as YAML, as printed by mount --print-config.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// PathsOverlap reports whether one path contains the other.
func PathsOverlap(path1, path2 string) bool {
	abs1, err1 := filepath.Abs(path1)
	abs2, err2 := filepath.Abs(path2)
	if err1 != nil || err2 != nil {
		abs1, abs2 = filepath.Clean(path1), filepath.Clean(path2)
	}
	if abs1 == abs2 {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(abs1, strings.TrimSuffix(abs2, sep)+sep) ||
		strings.HasPrefix(abs2, strings.TrimSuffix(abs1, sep)+sep)
}
