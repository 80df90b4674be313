// Package config manages the .loom project directory: where checkpoints and
// engine logs live, plus the project settings file that tunes the engine.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoomDir is the directory created in each project that uses loom.
const LoomDir = ".loom"

const defaultSettingsYAML = `# loom project configuration
version: 1

# Directory names under .loom/.
checkpoints: checkpoints
logs: logs

# Hard ceiling on engine steps per run. 0 disables the limit.
max_steps: 0
`

// Settings models .loom/config.yaml.
type Settings struct {
	Version     int    `yaml:"version"`
	Checkpoints string `yaml:"checkpoints"`
	Logs        string `yaml:"logs"`
	MaxSteps    int    `yaml:"max_steps"`
}

// Config is the resolved runtime configuration for one project directory.
type Config struct {
	// ProjectDir is where the user ran loom from.
	ProjectDir string

	// LoomProjectDir is ProjectDir/.loom.
	LoomProjectDir string

	Settings Settings
}

func defaultSettings() Settings {
	return Settings{
		Version:     1,
		Checkpoints: "checkpoints",
		Logs:        "logs",
		MaxSteps:    0,
	}
}

// Init creates the .loom directory structure and a default config.yaml when
// one does not exist yet. Existing files are left alone.
func Init(projectDir string) error {
	loomDir := filepath.Join(projectDir, LoomDir)
	defaults := defaultSettings()
	dirs := []string{
		filepath.Join(loomDir, defaults.Checkpoints),
		filepath.Join(loomDir, defaults.Logs),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: ensure %s: %w", dir, err)
		}
	}
	path := filepath.Join(loomDir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(defaultSettingsYAML), 0o644); err != nil {
		return fmt.Errorf("config: write default settings: %w", err)
	}
	return nil
}

// Load reads the project settings. A missing config.yaml yields the defaults
// rather than an error so read-only commands work in uninitialized projects.
func Load(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:     projectDir,
		LoomProjectDir: filepath.Join(projectDir, LoomDir),
		Settings:       defaultSettings(),
	}
	path := filepath.Join(cfg.LoomProjectDir, "config.yaml")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg.Settings); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.Settings.Checkpoints == "" {
		cfg.Settings.Checkpoints = "checkpoints"
	}
	if cfg.Settings.Logs == "" {
		cfg.Settings.Logs = "logs"
	}
	if cfg.Settings.MaxSteps < 0 {
		return nil, fmt.Errorf("config: max_steps must not be negative, got %d", cfg.Settings.MaxSteps)
	}
	return cfg, nil
}

// CheckpointDir is the directory the file checkpoint store writes to.
func (c *Config) CheckpointDir() string {
	return filepath.Join(c.LoomProjectDir, c.Settings.Checkpoints)
}

// LogDir is the directory engine logs are appended to.
func (c *Config) LogDir() string {
	return filepath.Join(c.LoomProjectDir, c.Settings.Logs)
}
