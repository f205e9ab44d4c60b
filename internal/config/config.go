// Package config provides configuration loading for relay.
//
// Configuration is layered: built-in defaults, then an optional YAML (or JSON)
// file, then environment variables. The result is validated once at startup and
// any error is fatal.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the complete relay configuration.
type Config struct {
	Agent      AgentConfig      `koanf:"agent"`
	Projects   ProjectsConfig   `koanf:"projects"`
	UseCases   UseCasesConfig   `koanf:"usecases"`
	Paths      PathsConfig      `koanf:"paths"`
	Journal    JournalConfig    `koanf:"journal"`
	Server     ServerConfig     `koanf:"server"`
	Vocabulary VocabularyConfig `koanf:"vocabulary"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Secrets    SecretsConfig    `koanf:"secrets"`
}

// AgentConfig holds reasoning agent settings.
type AgentConfig struct {
	Model       string  `koanf:"model"`
	BaseURL     string  `koanf:"base_url"`
	APIKey      Secret  `koanf:"api_key"`
	Temperature float64 `koanf:"temperature"`

	// MaxIterations bounds agent invocations per user turn and model calls per invocation.
	MaxIterations int `koanf:"max_iterations"`

	// MaxExecutionTime bounds a single agent invocation.
	MaxExecutionTime Duration `koanf:"max_execution_time"`

	// RequestsPerSecond throttles model calls. Zero disables throttling.
	RequestsPerSecond float64 `koanf:"requests_per_second"`

	// MaxFileChars truncates file contents returned by the read_file tool.
	MaxFileChars int `koanf:"max_file_chars"`
}

// ProjectsConfig describes the codebases the agent works across.
type ProjectsConfig struct {
	Dirs        map[string]string   `koanf:"dirs"`
	Frameworks  map[string]string   `koanf:"frameworks"`
	AliasGroups map[string][]string `koanf:"alias_groups"`
}

// UseCasesConfig describes known use cases and how to recognise them.
type UseCasesConfig struct {
	AliasGroups  map[string][]string `koanf:"alias_groups"`
	BackendHints map[string][]string `koanf:"backend_hints"`
	Descriptions map[string][]string `koanf:"descriptions"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	DocsDir          string `koanf:"docs_dir"`
	SystemPromptFile string `koanf:"system_prompt_file"`
}

// JournalConfig holds durable log settings.
type JournalConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// VocabularyConfig holds the language-specific literals the orchestrator matches on.
type VocabularyConfig struct {
	ConfirmationTokens   []string          `koanf:"confirmation_tokens"`
	CompletionPhrases    []string          `koanf:"completion_phrases"`
	ConfirmationSentinel string            `koanf:"confirmation_sentinel"`
	ExitKeywords         []string          `koanf:"exit_keywords"`
	FieldLabels          map[string]string `koanf:"field_labels"`
	Delimiter            string            `koanf:"delimiter"`
}

// LoggingConfig selects log verbosity and destination.
type LoggingConfig struct {
	Level       string `koanf:"level"`
	Format      string `koanf:"format"`
	Destination string `koanf:"destination"`
}

// TelemetryConfig controls OpenTelemetry export. Disabled by default.
type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`

	// Protocol is "grpc" or "http/protobuf".
	Protocol       string   `koanf:"protocol"`
	Insecure       bool     `koanf:"insecure"`
	ServiceName    string   `koanf:"service_name"`
	SamplingRate   float64  `koanf:"sampling_rate"`
	Metrics        bool     `koanf:"metrics"`
	ExportInterval Duration `koanf:"export_interval"`
}

// SecretsConfig controls redaction of file contents before they reach the model.
type SecretsConfig struct {
	Enabled   bool     `koanf:"enabled"`
	Redaction string   `koanf:"redaction"`
	AllowList []string `koanf:"allow_list"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Agent.Model) == "" {
		errs = append(errs, errors.New("agent.model is required"))
	}
	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations))
	}
	if c.Agent.MaxExecutionTime.Duration() <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_execution_time must be positive, got %s", c.Agent.MaxExecutionTime.Duration()))
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature must be within [0, 2], got %v", c.Agent.Temperature))
	}
	if c.Agent.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("agent.requests_per_second cannot be negative, got %v", c.Agent.RequestsPerSecond))
	}
	if c.Agent.MaxFileChars <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_file_chars must be positive, got %d", c.Agent.MaxFileChars))
	}
	if c.Paths.SystemPromptFile == "" {
		errs = append(errs, errors.New("paths.system_prompt_file is required"))
	}
	if c.Journal.Path == "" {
		errs = append(errs, errors.New("journal.path is required"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be within 1-65535, got %d", c.Server.Port))
	}
	if len(c.Vocabulary.ExitKeywords) == 0 {
		errs = append(errs, errors.New("vocabulary.exit_keywords cannot be empty"))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}
	errs = append(errs, c.Telemetry.validate()...)
	for key := range c.Projects.AliasGroups {
		if _, ok := c.Projects.Dirs[key]; !ok {
			errs = append(errs, fmt.Errorf("projects.alias_groups references unknown project %q", key))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (t TelemetryConfig) validate() []error {
	if !t.Enabled {
		return nil
	}
	var errs []error
	if t.Endpoint == "" {
		errs = append(errs, errors.New("telemetry.endpoint is required when telemetry is enabled"))
	}
	if t.ServiceName == "" {
		errs = append(errs, errors.New("telemetry.service_name is required when telemetry is enabled"))
	}
	if t.Protocol != "grpc" && t.Protocol != "http/protobuf" {
		errs = append(errs, fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", t.Protocol))
	}
	if t.Insecure && t.Endpoint != "" && !isLocalEndpoint(t.Endpoint) {
		errs = append(errs, errors.New("telemetry.insecure is only allowed for local endpoints"))
	}
	if t.SamplingRate < 0 || t.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampling_rate must be within [0, 1], got %v", t.SamplingRate))
	}
	if t.Metrics && t.ExportInterval.Duration() <= 0 {
		errs = append(errs, errors.New("telemetry.export_interval must be positive when metrics are exported"))
	}
	return errs
}

// isLocalEndpoint reports whether a host[:port] endpoint points at the local machine.
func isLocalEndpoint(endpoint string) bool {
	host := strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]"); idx != -1 {
			host = host[1:idx]
		}
	} else if strings.Count(host, ":") == 1 {
		host = host[:strings.LastIndex(host, ":")]
	}
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}
