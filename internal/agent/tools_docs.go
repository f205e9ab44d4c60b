package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/relay/internal/alias"
	"github.com/fyrsmithlabs/relay/internal/touched"
)

// generalProject is the planning folder for plans whose project is unknown.
const generalProject = "geral"

// Slugify lowercases name and replaces every non-alphanumeric rune with a
// hyphen. Leading and trailing hyphens are trimmed; an empty result becomes
// "plano".
func Slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	slug := strings.Trim(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '-'
	}, name), "-")
	if slug == "" {
		return "plano"
	}
	return slug
}

type planInput struct {
	Project string `json:"project,omitempty" jsonschema:"description=Project name or alias the plan belongs to"`
	Name    string `json:"name" jsonschema:"description=Plan title, e.g. Planejamento T6"`
	Content string `json:"content,omitempty" jsonschema:"description=Plan body in markdown"`
}

// NewPlanTool returns the save_plan tool. Plans are written to
// <docs>/planejamentos/<project>/<slug>.md, replacing any previous version.
func NewPlanTool(resolver *alias.Resolver, opts ...FileOption) Tool {
	o := newFileOptions(opts)
	return NewTool("save_plan",
		"Create or replace a planning document in markdown for a project.",
		func(ctx context.Context, in planInput) (string, error) {
			name := strings.TrimSpace(in.Name)
			if name == "" {
				return "", errors.New("plan name is required")
			}

			project := generalProject
			if resolver != nil && strings.TrimSpace(in.Project) != "" {
				if p, ok := resolver.Project(in.Project); ok {
					project = p.Key
				}
			}

			body := strings.TrimSpace(in.Content)
			if body == "" {
				body = "_(plano criado sem conteúdo; preencha posteriormente)_"
			}
			content := "# " + name + "\n\n" + body + "\n"

			path := filepath.Join(o.docsDir, "planejamentos", project, Slugify(name)+".md")
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", fmt.Errorf("create parent of %s: %w", path, err)
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return "", fmt.Errorf("write %s: %w", path, err)
			}
			touched.Record(ctx, path)
			return fmt.Sprintf("Plano salvo com sucesso.\nProjeto: %s\nArquivo: %s", project, path), nil
		})
}

type decisionInput struct {
	Title        string `json:"title" jsonschema:"description=Short title of the decision"`
	Context      string `json:"context" jsonschema:"description=Situation that led to the decision"`
	Decision     string `json:"decision" jsonschema:"description=What was decided"`
	Consequences string `json:"consequences,omitempty" jsonschema:"description=Expected consequences and trade-offs"`
}

// NewDecisionTool returns the record_decision tool. Each call appends one
// block to <docs>/decisoes_arquitetura.md.
func NewDecisionTool(opts ...FileOption) Tool {
	o := newFileOptions(opts)
	return NewTool("record_decision",
		"Append an architecture decision record to the decision log.",
		func(ctx context.Context, in decisionInput) (string, error) {
			title := strings.TrimSpace(in.Title)
			decisionCtx := strings.TrimSpace(in.Context)
			decision := strings.TrimSpace(in.Decision)
			switch {
			case title == "":
				return "", errors.New("decision title is required")
			case decisionCtx == "":
				return "", errors.New("decision context is required")
			case decision == "":
				return "", errors.New("decision description is required")
			}

			lines := []string{
				"---",
				"**Data/Hora:** " + o.now().Format("2006-01-02 15:04:05"),
				"**Título:** " + title,
				"",
				"### Contexto",
				decisionCtx,
				"",
				"### Decisão",
				decision,
			}
			if cons := strings.TrimSpace(in.Consequences); cons != "" {
				lines = append(lines, "", "### Consequências", cons)
			}
			lines = append(lines, "", "")
			block := strings.Join(lines, "\n")

			path := filepath.Join(o.docsDir, "decisoes_arquitetura.md")
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", fmt.Errorf("create parent of %s: %w", path, err)
			}
			f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return "", fmt.Errorf("open %s: %w", path, err)
			}
			if _, err := f.WriteString(block); err != nil {
				f.Close()
				return "", fmt.Errorf("append %s: %w", path, err)
			}
			if err := f.Close(); err != nil {
				return "", fmt.Errorf("close %s: %w", path, err)
			}
			touched.Record(ctx, path)
			return "Decisão registrada em: " + path, nil
		})
}
