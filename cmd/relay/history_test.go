package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/relay/internal/orchestrator"
)

func TestContextSummary(t *testing.T) {
	assert.Equal(t, "-", contextSummary(orchestrator.ContextFields{}))

	f := orchestrator.ContextFields{}.
		With(orchestrator.FieldTaskID, "T6").
		With(orchestrator.FieldUseCase, "usc_04_143")
	assert.Equal(t, "T6/usc_04_143", contextSummary(f))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n b\tc", 10))
	assert.Equal(t, "ééééééé...", truncate("éééééééééééé", 10))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123abcd", shortID("0123abcd-ef"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"chat", "serve", "history", "version"} {
		assert.True(t, names[want], want)
	}
	assert.NotNil(t, rootCmd.Flags().Lookup("autonomous"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestAutonomousHelp_NamesStopConditions(t *testing.T) {
	for _, c := range []*cobra.Command{rootCmd, chatCmd, serveCmd} {
		f := c.Flags().Lookup("autonomous")
		require.NotNil(t, f, c.Name())
		assert.Contains(t, f.Usage, "announces completion", c.Name())
		assert.Contains(t, f.Usage, "iteration budget", c.Name())
		assert.NotContains(t, f.Usage, "asks", c.Name())
	}
	assert.NotContains(t, chatCmd.Long, "asks a question")
}
