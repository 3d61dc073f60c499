// internal/skills/registry.go
package skills

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Skill is one loaded markdown instruction file.
type Skill struct {
	Name        string
	Description string
	Content     string
	Tags        []string
}

// Registry holds the currently loaded skill set. Reloads swap the whole
// set at once, so readers never see a half-loaded directory.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// Replace swaps in a freshly loaded skill set.
func (r *Registry) Replace(loaded []Skill) {
	next := make(map[string]Skill, len(loaded))
	for _, s := range loaded {
		slog.Debug("registered skill", "name", s.Name, "description", s.Description)
		next[s.Name] = s
	}
	r.mu.Lock()
	r.skills = next
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// List returns all skills sorted by name.
func (r *Registry) List() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}

// BuildContext renders the skill instructions as a system prompt section.
// Returns "" when no skills are loaded.
func (r *Registry) BuildContext() string {
	skills := r.List()
	if len(skills) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("You have the following skills available. When relevant, follow these instructions:\n\n")
	for _, s := range skills {
		b.WriteString("## Skill: " + s.Name + "\n")
		b.WriteString(s.Content + "\n\n")
	}
	return b.String()
}
