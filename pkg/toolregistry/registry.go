// Package toolregistry implements the Tool Registry: dynamic
// registration, oversized-result pagination, per-file locking,
// clone-with-exclusion for subagents, and dispatch of tool handlers.
package toolregistry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Default oversized-result thresholds.
const (
	DefaultMaxInlineBytes = 30 * 1024
	DefaultPageBytes      = 30 * 1024
)

// HandlerFunc executes a tool call and produces text output. It must not
// panic; panics are recovered by Execute and reported as tool errors so a
// single broken handler never brings down the Agent loop.
type HandlerFunc func(ctx context.Context, args map[string]any) (string, error)

// Invoke calls f. Concrete built-in tools and MCP-wrapped tools are both
// just HandlerFuncs under
// the hood, and an embedder supplying its own callback is, in effect,
// using an "external handler" variant of that same capability.
func (f HandlerFunc) Invoke(ctx context.Context, args map[string]any) (string, error) {
	return f(ctx, args)
}

// Tool is a registered tool definition.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Handler     HandlerFunc
	// FileParam names the argument whose value identifies a file for
	// per-file locking, if any.
	FileParam string
	// Source tags where the tool came from: native, skill, or mcp
	// (supplement 4.1 in SPEC_FULL.md, grounded on registry.py's
	// set_tool_source/get_tool_summaries).
	Source string
}

// Definition is the provider-ready shape of a tool, returned by
// ListDefinitions.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Summary is a lightweight { name, description, source } view used for
// diagnostics and the supplemented tool-source tagging feature.
type Summary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// LockProvider acquires/releases advisory per-key locks around tool
// execution when a tool's FileParam is set.
type LockProvider interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Registry is the Tool Registry (component C).
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]*Tool

	lockProvider   LockProvider
	maxInlineBytes int
	pageBytes      int

	pagesMu sync.Mutex
	pages   map[string]string
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithLockProvider installs a LockProvider used for file_param locking.
func WithLockProvider(lp LockProvider) Option {
	return func(r *Registry) { r.lockProvider = lp }
}

// WithPagination overrides the default oversized-result thresholds.
func WithPagination(maxInlineBytes, pageBytes int) Option {
	return func(r *Registry) {
		if maxInlineBytes > 0 {
			r.maxInlineBytes = maxInlineBytes
		}
		if pageBytes > 0 {
			r.pageBytes = pageBytes
		}
	}
}

// New constructs an empty Registry. read_more is registered automatically
// as a normal tool.
func New(opts ...Option) *Registry {
	r := &Registry{
		tools:          make(map[string]*Tool),
		maxInlineBytes: DefaultMaxInlineBytes,
		pageBytes:      DefaultPageBytes,
		pages:          make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerReadMore()
	return r
}

// Register adds a new tool. Fails if the name already exists.
func (r *Registry) Register(name, description string, parameters map[string]any, handler HandlerFunc, fileParam string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = &Tool{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		Handler:     handler,
		FileParam:   fileParam,
		Source:      "native",
	}
	r.order = append(r.order, name)
	slog.Info("tool registered", "name", name, "file_param", fileParam)
	return nil
}

// SetSource tags a registered tool's origin (native/skill/mcp).
func (r *Registry) SetSource(name, source string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("tool %q not registered", name)
	}
	t.Source = source
	return nil
}

// Summaries returns { name, description, source } for every tool, in
// registration order.
func (r *Registry) Summaries() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Summary, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Summary{Name: t.Name, Description: t.Description, Source: t.Source})
	}
	return out
}

// ListDefinitions returns provider-ready tool schemas in stable
// registration order.
func (r *Registry) ListDefinitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Definition{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return out
}

// Clone returns a new Registry containing every tool except those named in
// exclude, in the parent's original order. Mutating the clone
// (registering/removing tools) never affects the parent, but handler
// closures — and therefore any Sandbox they capture — are shared between
// parent and clone.
func (r *Registry) Clone(exclude ...string) *Registry {
	excluded := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		excluded[e] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := &Registry{
		tools:          make(map[string]*Tool),
		lockProvider:   r.lockProvider,
		maxInlineBytes: r.maxInlineBytes,
		pageBytes:      r.pageBytes,
		pages:          make(map[string]string),
	}
	for _, name := range r.order {
		if excluded[name] || name == "read_more" {
			continue
		}
		t := *r.tools[name]
		clone.tools[name] = &t
		clone.order = append(clone.order, name)
	}
	// The clone gets its own read_more, bound to its own page cache.
	if !excluded["read_more"] {
		clone.registerReadMore()
	}
	return clone
}

// Execute dispatches a tool call by name. Handler panics and errors are
// both captured and returned as (formatted_error, is_error=true) rather
// than propagated, so one bad tool never aborts the caller's loop.
func (r *Registry) Execute(ctx context.Context, name string, arguments map[string]any) (text string, isError bool) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("unknown tool: %s", name), true
	}

	var unlock func()
	if tool.FileParam != "" && r.lockProvider != nil {
		if key, _ := arguments[tool.FileParam].(string); key != "" {
			u, err := r.lockProvider.Lock(ctx, key)
			if err != nil {
				return fmt.Sprintf("tool error: acquiring lock on %q: %v", key, err), true
			}
			unlock = u
			slog.Debug("acquired file lock", "tool", name, "key", key)
		}
	}
	if unlock != nil {
		defer func() {
			unlock()
			slog.Debug("released file lock", "tool", name)
		}()
	}

	result, err := r.safeInvoke(ctx, tool, arguments)
	if err != nil {
		return fmt.Sprintf("tool error: %v", err), true
	}
	if tool.Name == "read_more" {
		// A read_more page is already sized by pageBytes; paginating it
		// again would replace the requested page with a new page 1.
		return result, false
	}
	return r.maybePaginate(result), false
}

// safeInvoke calls the handler, converting a panic into an error.
func (r *Registry) safeInvoke(ctx context.Context, tool *Tool, arguments map[string]any) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %q panicked: %v", tool.Name, rec)
		}
	}()
	slog.Debug("executing tool", "name", tool.Name, "arguments", arguments)
	return tool.Handler.Invoke(ctx, arguments)
}
