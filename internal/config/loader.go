package config

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix namespaces relay environment variables.
	EnvPrefix = "RELAY_"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// DefaultPath returns ~/.config/relay/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "relay", "config.yaml"), nil
}

// Load reads configuration from the given file and the environment.
//
// Precedence (highest to lowest):
//  1. RELAY_ environment variables (RELAY_AGENT_MAX_ITERATIONS -> agent.max_iterations)
//  2. Legacy variables: OPENAI_MODEL, OPENAI_API_KEY, OPENAI_BASE_URL,
//     AGENT_MAX_ITERATIONS, AGENT_MAX_EXECUTION_TIME
//  3. The config file (YAML; JSON documents parse as YAML)
//  4. Built-in defaults
//
// An empty configPath falls back to DefaultPath. A missing file at the
// default path is not an error; a missing explicit path is.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultsYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	explicit := configPath != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	content, err := readConfigFile(configPath)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, err
	}

	legacy := []struct {
		prefix  string
		section string
	}{
		{prefix: "OPENAI_", section: "agent"},
		{prefix: "AGENT_", section: "agent"},
	}
	for _, l := range legacy {
		l := l
		if err := k.Load(env.Provider(l.prefix, ".", func(s string) string {
			return l.section + "." + strings.ToLower(strings.TrimPrefix(s, l.prefix))
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load %s environment variables: %w", l.prefix, err)
		}
	}

	// Split on the first underscore only: RELAY_AGENT_MAX_ITERATIONS -> agent.max_iterations
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal config: %w", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readConfigFile opens the file once and validates it through the open
// descriptor to avoid a stat/open race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigFileProperties rejects directories, oversized files and
// world-writable files.
func validateConfigFileProperties(info os.FileInfo) error {
	if info.IsDir() {
		return fmt.Errorf("config path is a directory: %s", info.Name())
	}
	if runtime.GOOS != "windows" {
		if info.Mode().Perm()&0o002 != 0 {
			return fmt.Errorf("insecure config file permissions: %v (world-writable)", info.Mode().Perm())
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
