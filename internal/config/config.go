package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Tools names the external binaries the codec drives.
type Tools struct {
	FFmpeg         string `toml:"ffmpeg"`
	FFprobe        string `toml:"ffprobe"`
	MP4Box         string `toml:"mp4box"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Encoding contains settings for building stem containers.
type Encoding struct {
	Codec      string `toml:"codec"`
	AACBitrate string `toml:"aac_bitrate"`
	Workers    int    `toml:"workers"`
	LockOutput bool   `toml:"lock_output"`
	// SplitLarge encodes 5-8 components as two containers of up to four.
	SplitLarge bool `toml:"split_large"`
}

// Decoding contains settings for reading stem containers back to PCM.
type Decoding struct {
	PCMFormat       string `toml:"pcm_format"`
	Workers         int    `toml:"workers"`
	OutputFormat    string `toml:"output_format"`
	ChannelsPerStem int    `toml:"channels_per_stem"`
}

// Paths contains directory configuration.
type Paths struct {
	WorkDir string `toml:"work_dir"`
	LogDir  string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for stemforge.
//
// Configuration sections by subsystem:
//   - Tools: ffmpeg, ffprobe and MP4Box binaries plus a per-invocation timeout
//   - Encoding: codec for normalized tracks and encode concurrency
//   - Decoding: PCM exchange format and extract concurrency
//   - Paths: scratch directory for cover sidecars and the log directory
//   - Logging: log format and level
type Config struct {
	Tools    Tools    `toml:"tools"`
	Encoding Encoding `toml:"encoding"`
	Decoding Decoding `toml:"decoding"`
	Paths    Paths    `toml:"paths"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("stemforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the work and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ToolTimeout returns the per-invocation limit for external tools. Zero means no limit.
func (c *Config) ToolTimeout() time.Duration {
	if c.Tools.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Tools.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultWorkDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "stemforge")
	}
	return "~/.cache/stemforge"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
