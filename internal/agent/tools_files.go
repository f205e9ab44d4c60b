package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/relay/internal/alias"
	"github.com/fyrsmithlabs/relay/internal/touched"
)

// ResolvePath turns "alias:relative/path" into a path under the project
// directory the alias names. Any other path is cleaned and returned as is.
func ResolvePath(resolver *alias.Resolver, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", errors.New("path is required")
	}
	if resolver != nil {
		if prefix, rest, ok := strings.Cut(path, ":"); ok && len(prefix) > 1 {
			if p, found := resolver.Project(prefix); found {
				if p.Dir == "" {
					return "", fmt.Errorf("project %q has no directory configured", p.Key)
				}
				rel := filepath.Clean("/" + strings.TrimLeft(rest, `/\`))
				return filepath.Join(p.Dir, rel), nil
			}
		}
	}
	return filepath.Clean(path), nil
}

type readFileInput struct {
	Path string `json:"path" jsonschema:"description=File path or alias:relative/path"`
}

// Redactor removes secrets from text. *secrets.Scrubber implements it.
type Redactor interface {
	Redact(content string) (string, int)
}

// FileOption configures the file tools.
type FileOption func(*fileOptions)

type fileOptions struct {
	redactor Redactor
	docsDir  string
	now      func() time.Time
}

func newFileOptions(opts []FileOption) fileOptions {
	o := fileOptions{docsDir: "docs", now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRedactor redacts file contents before read_file returns them.
func WithRedactor(r Redactor) FileOption {
	return func(o *fileOptions) { o.redactor = r }
}

// WithDocsDir sets the directory planning documents and decision logs are
// written under. Defaults to "docs".
func WithDocsDir(dir string) FileOption {
	return func(o *fileOptions) {
		if dir != "" {
			o.docsDir = dir
		}
	}
}

// WithClock sets the time source for decision timestamps.
func WithClock(now func() time.Time) FileOption {
	return func(o *fileOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewReadFileTool returns the read_file tool. Contents are redacted, then
// truncated to maxChars characters with a notice.
func NewReadFileTool(resolver *alias.Resolver, maxChars int, opts ...FileOption) Tool {
	o := newFileOptions(opts)
	metrics := NewMetrics()
	return NewTool("read_file",
		"Read a text file. Prefix the path with a project alias and a colon to read inside that project.",
		func(ctx context.Context, in readFileInput) (string, error) {
			path, err := ResolvePath(resolver, in.Path)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("read %s: %w", path, err)
			}
			content := string(data)
			if o.redactor != nil {
				var n int
				if content, n = o.redactor.Redact(content); n > 0 {
					metrics.SecretsRedacted.Add(float64(n))
				}
			}
			return truncate(content, maxChars), nil
		})
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 {
		return s
	}
	total := utf8.RuneCountInString(s)
	if total <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i] + fmt.Sprintf("\n\n[... truncated: showing first %d of %d characters]", maxChars, total)
		}
		n++
	}
	return s
}

type writeFileInput struct {
	Path    string `json:"path" jsonschema:"description=File path or alias:relative/path"`
	Content string `json:"content" jsonschema:"description=Full file content"`
}

// NewWriteFileTool returns the write_file tool. Written paths are recorded in
// the touched set carried by ctx.
func NewWriteFileTool(resolver *alias.Resolver) Tool {
	return NewTool("write_file",
		"Write a text file, replacing it if it exists and creating parent directories.",
		func(ctx context.Context, in writeFileInput) (string, error) {
			path, err := ResolvePath(resolver, in.Path)
			if err != nil {
				return "", err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", fmt.Errorf("create parent of %s: %w", path, err)
			}
			if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
				return "", fmt.Errorf("write %s: %w", path, err)
			}
			touched.Record(ctx, path)
			return fmt.Sprintf("File written: %s (%d bytes)", path, len(in.Content)), nil
		})
}

type listProjectsInput struct{}

// NewListProjectsTool returns the list_projects tool.
func NewListProjectsTool(resolver *alias.Resolver) Tool {
	return NewTool("list_projects",
		"List the configured projects with their frameworks, directories and aliases.",
		func(ctx context.Context, _ listProjectsInput) (string, error) {
			if resolver == nil {
				return "No projects configured.", nil
			}
			projects := resolver.Projects()
			if len(projects) == 0 {
				return "No projects configured.", nil
			}

			var b strings.Builder
			for _, p := range projects {
				fmt.Fprintf(&b, "- %s: %s", p.Key, p.DisplayName())
				if p.Dir != "" {
					fmt.Fprintf(&b, " | %s", p.Dir)
				}
				if len(p.Aliases) > 0 {
					fmt.Fprintf(&b, " | aliases: %s", strings.Join(p.Aliases, ", "))
				}
				b.WriteByte('\n')
			}
			return strings.TrimRight(b.String(), "\n"), nil
		})
}

// DefaultTools returns the built-in tool set.
func DefaultTools(resolver *alias.Resolver, maxFileChars int, opts ...FileOption) []Tool {
	return []Tool{
		NewUpdateContextTool(resolver),
		NewReadFileTool(resolver, maxFileChars, opts...),
		NewWriteFileTool(resolver),
		NewListProjectsTool(resolver),
		NewPlanTool(resolver, opts...),
		NewDecisionTool(opts...),
	}
}
