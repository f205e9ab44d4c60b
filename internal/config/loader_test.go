package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearLegacyEnv unsets variables a developer shell commonly exports so
// tests only see what they set themselves.
func clearLegacyEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_MODEL", "OPENAI_API_KEY", "OPENAI_BASE_URL",
		"AGENT_MAX_ITERATIONS", "AGENT_MAX_EXECUTION_TIME",
	} {
		if old, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { os.Setenv(key, old) })
		}
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", cfg.Agent.Model)
	assert.Equal(t, 100, cfg.Agent.MaxIterations)
	assert.Equal(t, 280*time.Second, cfg.Agent.MaxExecutionTime.Duration())
	assert.Equal(t, 15000, cfg.Agent.MaxFileChars)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, " | ", cfg.Vocabulary.Delimiter)
	assert.Contains(t, cfg.Vocabulary.ConfirmationTokens, "sim")
	assert.Contains(t, cfg.Vocabulary.CompletionPhrases, "all set")
	assert.ElementsMatch(t, []string{"sair", "exit", "quit"}, cfg.Vocabulary.ExitKeywords)
	assert.Equal(t, "Prioridade", cfg.Vocabulary.FieldLabels["priority"])
}

func TestLoad_File(t *testing.T) {
	clearLegacyEnv(t)
	path := writeConfig(t, `
agent:
  model: gpt-4o
  max_iterations: 7
  max_execution_time: 30s
projects:
  dirs:
    frontend_legado: /src/legacy-fe
    backend_novo: /src/new-be
  alias_groups:
    frontend_legado: [vue2, legado]
usecases:
  descriptions:
    agendamento:
      - "Agendar consultas"
vocabulary:
  field_labels:
    priority: Priority
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Agent.Model)
	assert.Equal(t, 7, cfg.Agent.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.Agent.MaxExecutionTime.Duration())
	assert.Equal(t, "/src/legacy-fe", cfg.Projects.Dirs["frontend_legado"])
	assert.Equal(t, []string{"vue2", "legado"}, cfg.Projects.AliasGroups["frontend_legado"])
	assert.Equal(t, []string{"Agendar consultas"}, cfg.UseCases.Descriptions["agendamento"])

	// Maps merge over defaults key by key.
	assert.Equal(t, "Priority", cfg.Vocabulary.FieldLabels["priority"])
	assert.Equal(t, "Prazo", cfg.Vocabulary.FieldLabels["deadline"])
}

func TestLoad_JSONFile(t *testing.T) {
	clearLegacyEnv(t)
	path := writeConfig(t, `{"agent": {"max_iterations": 12}, "projects": {"dirs": {"api": "/src/api"}}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Agent.MaxIterations)
	assert.Equal(t, "/src/api", cfg.Projects.Dirs["api"])
}

func TestLoad_EnvPrecedence(t *testing.T) {
	clearLegacyEnv(t)
	path := writeConfig(t, "agent:\n  max_iterations: 7\n")

	t.Setenv("AGENT_MAX_ITERATIONS", "9")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Agent.MaxIterations, "legacy env overrides file")

	t.Setenv("RELAY_AGENT_MAX_ITERATIONS", "11")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 11, cfg.Agent.MaxIterations, "namespaced env overrides legacy env")
}

func TestLoad_LegacyEnv(t *testing.T) {
	clearLegacyEnv(t)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_MODEL", "gpt-4.1")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("AGENT_MAX_EXECUTION_TIME", "60")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1", cfg.Agent.Model)
	assert.Equal(t, "sk-test", cfg.Agent.APIKey.Value())
	assert.Equal(t, "[REDACTED]", cfg.Agent.APIKey.String())
	assert.Equal(t, 60*time.Second, cfg.Agent.MaxExecutionTime.Duration())
}

func TestLoad_InvalidBudgetsFailFast(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "zero iterations", yaml: "agent:\n  max_iterations: 0\n"},
		{name: "negative iterations", yaml: "agent:\n  max_iterations: -3\n"},
		{name: "zero time budget", yaml: "agent:\n  max_execution_time: 0s\n"},
		{name: "non-numeric env", yaml: "{}\n", env: map[string]string{"RELAY_AGENT_MAX_ITERATIONS": "lots"}},
		{name: "empty env", yaml: "{}\n", env: map[string]string{"AGENT_MAX_ITERATIONS": ""}},
		{name: "unparsable duration", yaml: "{}\n", env: map[string]string{"AGENT_MAX_EXECUTION_TIME": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearLegacyEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	clearLegacyEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_RejectsWorldWritable(t *testing.T) {
	clearLegacyEnv(t)
	path := writeConfig(t, "agent:\n  model: gpt-4o\n")
	require.NoError(t, os.Chmod(path, 0o666))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world-writable")
}

func TestLoad_UnknownAliasProject(t *testing.T) {
	clearLegacyEnv(t)
	path := writeConfig(t, `
projects:
  dirs:
    api: /src/api
  alias_groups:
    web: [frontend]
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown project "web"`)
}

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "280", want: 280 * time.Second},
		{in: "1m30s", want: 90 * time.Second},
		{in: "-5", wantErr: true},
		{in: "-1s", wantErr: true},
		{in: "later", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration())
		})
	}
}

func TestLoad_Telemetry(t *testing.T) {
	clearLegacyEnv(t)

	t.Run("disabled by default", func(t *testing.T) {
		path := writeConfig(t, "agent:\n  model: gpt-4o\n")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.False(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "grpc", cfg.Telemetry.Protocol)
	})

	t.Run("insecure remote endpoint rejected", func(t *testing.T) {
		path := writeConfig(t, "telemetry:\n  enabled: true\n  endpoint: otel.example.com:4317\n")
		_, err := Load(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "telemetry.insecure")
	})

	t.Run("env enables export", func(t *testing.T) {
		path := writeConfig(t, "agent:\n  model: gpt-4o\n")
		t.Setenv("RELAY_TELEMETRY_ENABLED", "true")
		t.Setenv("RELAY_TELEMETRY_PROTOCOL", "http/protobuf")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.True(t, cfg.Telemetry.Enabled)
		assert.Equal(t, "http/protobuf", cfg.Telemetry.Protocol)
	})

	t.Run("bad sampling rate", func(t *testing.T) {
		path := writeConfig(t, "telemetry:\n  enabled: true\n  sampling_rate: 1.5\n")
		_, err := Load(path)
		require.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestIsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     bool
	}{
		{"localhost:4317", true},
		{"127.0.0.1:4318", true},
		{"http://localhost:4318", true},
		{"[::1]:4317", true},
		{"otel.example.com:4317", false},
		{"10.0.0.5:4317", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isLocalEndpoint(tt.endpoint), tt.endpoint)
	}
}

func TestLoad_Secrets(t *testing.T) {
	clearLegacyEnv(t)

	cfg, err := Load(writeConfig(t, "agent:\n  model: gpt-4o\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Secrets.Enabled)
	assert.Equal(t, "[REDACTED]", cfg.Secrets.Redaction)

	cfg, err = Load(writeConfig(t, "secrets:\n  enabled: false\n  allow_list:\n    - EXAMPLE$\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Secrets.Enabled)
	assert.Equal(t, []string{"EXAMPLE$"}, cfg.Secrets.AllowList)
}
