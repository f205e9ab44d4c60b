// Package alias maps free-form project and use-case identifiers to their
// canonical keys, and groups paths under the project that owns them.
package alias

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

var separators = strings.NewReplacer("-", "_", ".", "_", "/", "_", " ", "_")

// Normalize lowercases and trims s, then turns - . / and spaces into underscores.
func Normalize(s string) string {
	return separators.Replace(strings.ToLower(strings.TrimSpace(s)))
}

// IsBackend reports whether a canonical project key names a backend project.
func IsBackend(key string) bool {
	return strings.HasPrefix(key, "backend")
}

// Project is a configured codebase.
type Project struct {
	Key       string
	Dir       string
	Framework string
	Aliases   []string
}

// DisplayName renders "Framework (key)", or a title-cased key when no
// framework is configured.
func (p Project) DisplayName() string {
	if p.Framework == "" {
		words := strings.Fields(strings.ReplaceAll(p.Key, "_", " "))
		for i, w := range words {
			r, size := utf8.DecodeRuneInString(w)
			words[i] = string(unicode.ToUpper(r)) + w[size:]
		}
		return strings.Join(words, " ")
	}
	return p.Framework + " (" + p.Key + ")"
}

// Resolver holds the alias tables. It is immutable after construction and
// safe for concurrent use.
type Resolver struct {
	projects map[string]Project
	byAlias  map[string]string
	useCases map[string]string
}

// NewResolver builds lookup tables. Every canonical key is also an alias of itself.
func NewResolver(dirs, frameworks map[string]string, projectGroups, useCaseGroups map[string][]string) *Resolver {
	r := &Resolver{
		projects: make(map[string]Project, len(dirs)),
		byAlias:  make(map[string]string),
		useCases: make(map[string]string),
	}

	for key, dir := range dirs {
		p := Project{Key: key, Framework: frameworks[key]}
		if dir != "" {
			p.Dir = filepath.Clean(dir)
		}
		r.projects[key] = p
		r.byAlias[Normalize(key)] = key
	}
	for key, aliases := range projectGroups {
		p := r.projects[key]
		p.Key = key
		for _, a := range aliases {
			r.byAlias[Normalize(a)] = key
			p.Aliases = append(p.Aliases, a)
		}
		sort.Strings(p.Aliases)
		r.projects[key] = p
	}
	for key, aliases := range useCaseGroups {
		r.useCases[Normalize(key)] = key
		for _, a := range aliases {
			r.useCases[Normalize(a)] = key
		}
	}
	return r
}

// Project resolves an alias to its canonical project.
func (r *Resolver) Project(name string) (Project, bool) {
	key, ok := r.byAlias[Normalize(name)]
	if !ok {
		return Project{}, false
	}
	return r.projects[key], true
}

// UseCase resolves an alias to its canonical use-case key.
func (r *Resolver) UseCase(name string) (string, bool) {
	key, ok := r.useCases[Normalize(name)]
	return key, ok
}

// Projects returns all projects sorted by key.
func (r *Resolver) Projects() []Project {
	out := make([]Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Group is a set of paths owned by one project.
type Group struct {
	Name  string
	Paths []string
}

// OtherGroup collects paths outside every configured project.
const OtherGroup = "Other"

// GroupPaths assigns each path to the first project (by key) whose directory
// contains it. The result lists OtherGroup first, then projects with a
// directory, each with sorted paths. Empty groups are kept.
func (r *Resolver) GroupPaths(paths []string) []Group {
	var projects []Project
	for _, p := range r.Projects() {
		if p.Dir != "" {
			projects = append(projects, p)
		}
	}

	buckets := make(map[string][]string, len(projects)+1)
	for _, path := range paths {
		clean := filepath.Clean(path)
		owner := OtherGroup
		for _, p := range projects {
			if clean == p.Dir || strings.HasPrefix(clean, p.Dir+string(filepath.Separator)) {
				owner = p.DisplayName()
				break
			}
		}
		buckets[owner] = append(buckets[owner], clean)
	}

	groups := make([]Group, 0, len(projects)+1)
	groups = append(groups, Group{Name: OtherGroup, Paths: sorted(buckets[OtherGroup])})
	for _, p := range projects {
		groups = append(groups, Group{Name: p.DisplayName(), Paths: sorted(buckets[p.DisplayName()])})
	}
	return groups
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
