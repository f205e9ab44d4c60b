// Package prompt renders the agent system prompt from a template file.
package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/fyrsmithlabs/relay/internal/alias"
	"github.com/fyrsmithlabs/relay/internal/config"
)

// ErrTemplateNotFound is returned when the template file does not exist.
var ErrTemplateNotFound = errors.New("system prompt template not found")

// Data is exposed to the template.
type Data struct {
	// Paths maps project keys to directories.
	Paths map[string]string

	// Frameworks maps project keys to framework names.
	Frameworks map[string]string

	Projects []alias.Project

	// UseCases maps use-case keys to their description items.
	UseCases map[string][]string

	// UseCaseSection is UseCases pre-rendered as a markdown list.
	UseCaseSection string

	// BackendHints maps use-case keys to backend file names worth reading first.
	BackendHints map[string][]string

	// DocsDir is where planning documents are written.
	DocsDir string
}

// NewData builds template data from configuration.
func NewData(cfg *config.Config, resolver *alias.Resolver) Data {
	d := Data{
		Paths:          make(map[string]string, len(cfg.Projects.Dirs)),
		Frameworks:     make(map[string]string, len(cfg.Projects.Frameworks)),
		UseCases:       cfg.UseCases.Descriptions,
		UseCaseSection: FormatUseCases(cfg.UseCases.Descriptions),
		BackendHints:   cfg.UseCases.BackendHints,
		DocsDir:        cfg.Paths.DocsDir,
	}
	for k, v := range cfg.Projects.Dirs {
		d.Paths[k] = v
	}
	for k, v := range cfg.Projects.Frameworks {
		d.Frameworks[k] = v
	}
	if resolver != nil {
		d.Projects = resolver.Projects()
	}
	return d
}

// FormatUseCases renders descriptions sorted by key, each key as a bold
// upper-case bullet followed by its items.
func FormatUseCases(descriptions map[string][]string) string {
	keys := make([]string, 0, len(descriptions))
	for k := range descriptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		lines = append(lines, "- **"+strings.ToUpper(k)+"**")
		for _, item := range descriptions[k] {
			lines = append(lines, "  - "+item)
		}
	}
	return strings.Join(lines, "\n")
}

// Load parses the template at path with the sprig function map.
func Load(path string) (*template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
		}
		return nil, fmt.Errorf("reading system prompt template: %w", err)
	}

	tmpl, err := template.New(filepath.Base(path)).
		Funcs(sprig.TxtFuncMap()).
		Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing system prompt template: %w", err)
	}
	return tmpl, nil
}

// Render loads the template at path and executes it with data.
func Render(path string, data Data) (string, error) {
	tmpl, err := Load(path)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering system prompt: %w", err)
	}
	return buf.String(), nil
}
