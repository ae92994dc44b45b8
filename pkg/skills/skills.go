// Package skills implements a two-phase skill catalogue: every skill's
// name and one-line description is always visible to the model, but a
// skill's full instructions are only injected into context once the
// model has activated it.
package skills

import (
	"fmt"
	"strings"
	"sync"
)

// Visibility controls whether a skill's name+description appear in the
// always-on Phase 1 catalogue.
type Visibility string

const (
	VisibilityAdvertised Visibility = "advertised"
	VisibilityHidden     Visibility = "hidden"
)

// State tracks whether a skill's full instructions are currently injected.
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
)

// Skill is one entry in the catalogue.
type Skill struct {
	Name         string
	Description  string
	Instructions string
	Visibility   Visibility

	mu    sync.Mutex
	state State
}

// Registry holds the full skill catalogue for one Agent (or one cloned
// subagent — skills are not excluded on subagent clone, unlike tools,
// since a skill is inert until activated and costs nothing to advertise).
type Registry struct {
	mu     sync.RWMutex
	order  []string
	skills map[string]*Skill
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{skills: make(map[string]*Skill)}
}

// Register adds a skill, inactive by default.
func (r *Registry) Register(s *Skill) error {
	if s.Name == "" {
		return fmt.Errorf("skill name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.skills[s.Name]; exists {
		return fmt.Errorf("skill %q already registered", s.Name)
	}
	s.state = StateInactive
	r.skills[s.Name] = s
	r.order = append(r.order, s.Name)
	return nil
}

// Activate transitions a skill to active, so its instructions are injected
// on the next Phase2Instructions call.
func (r *Registry) Activate(name string) error {
	s, err := r.get(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()
	return nil
}

// Deactivate transitions a skill back to inactive.
func (r *Registry) Deactivate(name string) error {
	s, err := r.get(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.state = StateInactive
	s.mu.Unlock()
	return nil
}

// IsActive reports a skill's current activation state.
func (r *Registry) IsActive(name string) bool {
	s, err := r.get(name)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateActive
}

func (r *Registry) get(name string) (*Skill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	if !ok {
		return nil, fmt.Errorf("skill %q not registered", name)
	}
	return s, nil
}

// CatalogueEntry is one Phase 1 row: always visible, never the full body.
type CatalogueEntry struct {
	Name        string
	Description string
}

// Catalogue returns the Phase 1 always-advertise list, in registration
// order, skipping hidden skills.
func (r *Registry) Catalogue() []CatalogueEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []CatalogueEntry
	for _, name := range r.order {
		s := r.skills[name]
		if s.Visibility == VisibilityHidden {
			continue
		}
		out = append(out, CatalogueEntry{Name: s.Name, Description: s.Description})
	}
	return out
}

// Phase1Catalogue renders the always-on {name, description} catalogue as
// a system-prompt section, so the model knows what skills exist even
// before any of them are activated. Returns "" if there is nothing to
// advertise.
func (r *Registry) Phase1Catalogue() string {
	entries := r.Catalogue()
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Available skills (full instructions load once activated):\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s\n", e.Name, e.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Phase2Instructions renders the full instructions block for every
// currently active skill, to be injected into context (e.g. as a system
// message section) alongside the conversation.
//
// Multiple active skills' instructions are ordered by registration, not
// activation: registration order is stable and reproducible across runs
// (activation order depends on model behavior, which is
// nondeterministic), so a fixed ordering keeps the injected block's byte
// layout predictable for compaction/caching purposes, matching how tool
// definitions are always listed in registration order.
func (r *Registry) Phase2Instructions() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*Skill
	for _, name := range r.order {
		s := r.skills[name]
		s.mu.Lock()
		isActive := s.state == StateActive
		s.mu.Unlock()
		if isActive {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return ""
	}

	var b strings.Builder
	for i, s := range active {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n%s", s.Name, s.Instructions)
	}
	return b.String()
}

// Clone returns a copy of the registry with independent activation state,
// used when spawning a subagent whose skill activations should not leak
// back into the parent.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := New()
	for _, name := range r.order {
		s := r.skills[name]
		s.mu.Lock()
		cp := &Skill{
			Name:         s.Name,
			Description:  s.Description,
			Instructions: s.Instructions,
			Visibility:   s.Visibility,
			state:        s.state,
		}
		s.mu.Unlock()
		clone.skills[cp.Name] = cp
		clone.order = append(clone.order, cp.Name)
	}
	return clone
}
