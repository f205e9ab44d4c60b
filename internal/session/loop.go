package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/relay/internal/alias"
)

const maxLineBytes = 1 << 20

// styles renders terminal output through a renderer bound to the output
// writer, so plain writers get plain text.
type styles struct {
	prompt  lipgloss.Style
	agent   lipgloss.Style
	section lipgloss.Style
	label   lipgloss.Style
	dim     lipgloss.Style
	err     lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		prompt: r.NewStyle().
			Foreground(lipgloss.Color("45")).
			Bold(true),
		agent: r.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true),
		section: r.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true),
		label: r.NewStyle().
			Foreground(lipgloss.Color("45")),
		dim: r.NewStyle().
			Foreground(lipgloss.Color("245")),
		err: r.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),
	}
}

// LoopConfig holds terminal loop settings.
type LoopConfig struct {
	// ExitKeywords end the session, compared case-insensitively.
	ExitKeywords []string

	// Resolver groups touched files by project. Optional.
	Resolver *alias.Resolver

	// ShowPrompt prints the input prompt. Disable when input is piped.
	ShowPrompt bool
}

// Loop reads user lines and runs them as turns until an exit keyword or EOF.
type Loop struct {
	engine   *Engine
	in       io.Reader
	out      io.Writer
	exit     map[string]struct{}
	resolver *alias.Resolver
	prompt   bool
	styles   styles
}

// NewLoop creates a terminal loop over engine.
func NewLoop(engine *Engine, in io.Reader, out io.Writer, cfg LoopConfig) *Loop {
	exit := make(map[string]struct{}, len(cfg.ExitKeywords))
	for _, k := range cfg.ExitKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			exit[k] = struct{}{}
		}
	}
	return &Loop{
		engine:   engine,
		in:       in,
		out:      out,
		exit:     exit,
		resolver: cfg.Resolver,
		prompt:   cfg.ShowPrompt,
		styles:   newStyles(out),
	}
}

// Run blocks until the user exits, input ends or ctx is cancelled. A failed
// turn is reported and the loop keeps accepting input.
func (l *Loop) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(l.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	l.printf("%s\n", l.styles.dim.Render(fmt.Sprintf("session %s, type %s to leave", l.engine.SessionID(), l.exitHint())))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if l.prompt {
			l.printf("%s ", l.styles.prompt.Render("You:"))
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if l.isExit(line) {
			l.printf("%s\n", l.styles.dim.Render("Bye."))
			return nil
		}

		res, err := l.engine.Turn(ctx, line)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !errors.Is(err, ErrEmptyInput) {
				l.printf("%s %v\n", l.styles.err.Render("Error:"), err)
			}
			l.printFiles(res.Files)
			continue
		}

		l.printf("%s %s\n", l.styles.agent.Render("Agent:"), res.Answer)
		l.printFiles(res.Files)
	}
}

func (l *Loop) isExit(line string) bool {
	_, ok := l.exit[strings.ToLower(line)]
	return ok
}

func (l *Loop) exitHint() string {
	words := make([]string, 0, len(l.exit))
	for w := range l.exit {
		words = append(words, w)
	}
	if len(words) == 0 {
		return "Ctrl-D"
	}
	sort.Strings(words)
	return strings.Join(words, "/")
}

// printFiles lists files written during the turn, grouped by project.
func (l *Loop) printFiles(files []string) {
	if len(files) == 0 {
		return
	}
	l.printf("\n%s\n", l.styles.section.Render("Files changed in this turn:"))

	if l.resolver == nil {
		for _, f := range files {
			l.printf("  - %s\n", f)
		}
		return
	}
	for _, g := range l.resolver.GroupPaths(files) {
		if len(g.Paths) == 0 {
			continue
		}
		l.printf("  %s\n", l.styles.label.Render(g.Name+":"))
		for _, p := range g.Paths {
			l.printf("    - %s\n", p)
		}
	}
}

func (l *Loop) printf(format string, args ...any) {
	fmt.Fprintf(l.out, format, args...)
}
