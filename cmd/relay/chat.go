package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fyrsmithlabs/relay/internal/session"
)

var (
	autonomous bool
	resume     bool
)

// chatCmd runs an interactive session on the terminal.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Start an interactive session. Each line you type is one turn.

By default every turn runs a single agent iteration. With --autonomous the
agent keeps iterating until its answer announces completion or the iteration
budget runs out. Questions from the agent do not stop the loop.

Examples:
  # Interactive session
  relay chat

  # Let the agent work on its own and start from the last recorded context
  relay chat --autonomous --resume`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, chatCmd} {
		c.Flags().BoolVar(&autonomous, "autonomous", false, "iterate until the agent announces completion or the iteration budget runs out")
		c.Flags().BoolVar(&resume, "resume", false, "seed the task context from the latest journal entry")
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	engine, err := a.newEngine(ctx, sessionOptions{
		autonomous: autonomous,
		resume:     resume,
		progress:   os.Stderr,
	})
	if err != nil {
		return err
	}

	loop := session.NewLoop(engine, os.Stdin, os.Stdout, session.LoopConfig{
		ExitKeywords: a.cfg.Vocabulary.ExitKeywords,
		Resolver:     a.resolver,
		ShowPrompt:   term.IsTerminal(int(os.Stdin.Fd())),
	})
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
