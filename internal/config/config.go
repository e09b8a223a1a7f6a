package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working and home directories
const FileName = ".envpilot.yaml"

// EnvPrefix prefixes environment overrides, e.g. ENVPILOT_SCAN_MAX_DEPTH
const EnvPrefix = "ENVPILOT"

// Config represents the envpilot configuration file
type Config struct {
	Scan    ScanConfig    `mapstructure:"scan" yaml:"scan"`
	Runtime RuntimeConfig `mapstructure:"runtime" yaml:"runtime"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
}

// ScanConfig controls environment discovery
type ScanConfig struct {
	// Search root; empty means the home directory
	Root string `mapstructure:"root" yaml:"root"`
	// Levels below the root that are still inspected
	MaxDepth int `mapstructure:"max_depth" yaml:"max_depth"`
	// Added to the built-in exclusion set
	ExcludeDirs []string `mapstructure:"exclude_dirs" yaml:"exclude_dirs"`
	// Added to site-packages and .tox
	NestedMarkers []string `mapstructure:"nested_markers" yaml:"nested_markers"`
	// Old default creation directory
	LegacyDir string `mapstructure:"legacy_dir" yaml:"legacy_dir"`
}

// RuntimeConfig controls subprocesses
type RuntimeConfig struct {
	// Interpreter used to create environments
	Python         string        `mapstructure:"python" yaml:"python"`
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	// Bounds venv creation and pip install
	InstallTimeout time.Duration `mapstructure:"install_timeout" yaml:"install_timeout"`
	// Parallel inventory reads when matching
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// SyncConfig controls lock files
type SyncConfig struct {
	LockFile        string `mapstructure:"lock_file" yaml:"lock_file"`
	StrictSignature bool   `mapstructure:"strict_signature" yaml:"strict_signature"`
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		Scan: ScanConfig{
			MaxDepth:      5,
			ExcludeDirs:   []string{},
			NestedMarkers: []string{},
		},
		Runtime: RuntimeConfig{
			CommandTimeout: 60 * time.Second,
			InstallTimeout: 30 * time.Minute,
			Workers:        1,
		},
		Sync: SyncConfig{
			LockFile: "envpilot-lock.json",
		},
	}
}

// LoadOptions selects where configuration comes from
type LoadOptions struct {
	// ConfigFile, when set, is the only file read and must exist
	ConfigFile string
	// SearchDirs are tried in order for FileName
	SearchDirs []string
}

// LoadConfig loads configuration from file and ENVPILOT_* variables. It
// returns the config and the path of the file used ("" when only defaults
// and environment applied).
func LoadConfig(opts LoadOptions) (*Config, string, error) {
	v := viper.New()
	defaults := DefaultConfig()
	v.SetDefault("scan.root", defaults.Scan.Root)
	v.SetDefault("scan.max_depth", defaults.Scan.MaxDepth)
	v.SetDefault("scan.exclude_dirs", defaults.Scan.ExcludeDirs)
	v.SetDefault("scan.nested_markers", defaults.Scan.NestedMarkers)
	v.SetDefault("scan.legacy_dir", defaults.Scan.LegacyDir)
	v.SetDefault("runtime.python", defaults.Runtime.Python)
	v.SetDefault("runtime.command_timeout", defaults.Runtime.CommandTimeout)
	v.SetDefault("runtime.install_timeout", defaults.Runtime.InstallTimeout)
	v.SetDefault("runtime.workers", defaults.Runtime.Workers)
	v.SetDefault("sync.lock_file", defaults.Sync.LockFile)
	v.SetDefault("sync.strict_signature", defaults.Sync.StrictSignature)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	resolved := ""
	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", opts.ConfigFile)
		}
		resolved = opts.ConfigFile
	} else {
		for _, dir := range opts.SearchDirs {
			if dir == "" {
				continue
			}
			candidate := filepath.Join(dir, FileName)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				resolved = candidate
				break
			}
		}
	}

	if resolved != "" {
		v.SetConfigFile(resolved)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config file %s: %w", resolved, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

// Validate rejects values the scanner and runner cannot work with
func (c *Config) Validate() error {
	if c.Scan.MaxDepth < 1 {
		return fmt.Errorf("scan.max_depth must be at least 1 (got %d)", c.Scan.MaxDepth)
	}
	if c.Runtime.CommandTimeout <= 0 {
		return fmt.Errorf("runtime.command_timeout must be positive (got %s)", c.Runtime.CommandTimeout)
	}
	if c.Runtime.InstallTimeout <= 0 {
		return fmt.Errorf("runtime.install_timeout must be positive (got %s)", c.Runtime.InstallTimeout)
	}
	if c.Runtime.Workers < 1 {
		return fmt.Errorf("runtime.workers must be at least 1 (got %d)", c.Runtime.Workers)
	}
	return nil
}

// SearchRoot returns the configured scan root, defaulting to the home directory
func (c *Config) SearchRoot(h Host) string {
	if c.Scan.Root != "" {
		return expandHome(c.Scan.Root, h.HomeDir)
	}
	return h.HomeDir
}

// LegacyDir returns the old default creation directory
func (c *Config) LegacyDir(h Host) string {
	if c.Scan.LegacyDir != "" {
		return expandHome(c.Scan.LegacyDir, h.HomeDir)
	}
	return filepath.Join(h.HomeDir, ".envpilot-envs")
}

// Python returns the interpreter used to build new environments
func (c *Config) Python(h Host) string {
	if c.Runtime.Python != "" {
		return c.Runtime.Python
	}
	if h.OS == "windows" {
		return "python"
	}
	return "python3"
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return data, nil
}

// Template returns the file written by `envpilot init-config`
func Template() ([]byte, error) {
	body, err := DefaultConfig().Marshal()
	if err != nil {
		return nil, err
	}
	header := `# .envpilot.yaml
# Configuration file for envpilot
#
# scan.root            directory searched for environments (empty: home directory)
# scan.exclude_dirs    extra directory names never descended into
# scan.nested_markers  extra path segments that mark tool-managed environments
# runtime.workers      parallel pip queries while matching (1 = sequential)
# Every key can be overridden with ENVPILOT_<SECTION>_<KEY>, e.g. ENVPILOT_SCAN_ROOT.

`
	return append([]byte(header), body...), nil
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		return filepath.Join(home, path[2:])
	}
	return path
}
