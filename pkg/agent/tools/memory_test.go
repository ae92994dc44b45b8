package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/nstogner/agentcore/pkg/sandbox"
	"github.com/nstogner/agentcore/pkg/toolregistry"
)

func newMemoryRegistry(t *testing.T) *toolregistry.Registry {
	t.Helper()
	sb, err := sandbox.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	r := toolregistry.New()
	if err := RegisterMemory(r, sb); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestMemoryViewEmpty(t *testing.T) {
	r := newMemoryRegistry(t)
	out, isErr := r.Execute(context.Background(), "memory", map[string]any{"action": "view"})
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}
	if !strings.Contains(out, "no memory entries") {
		t.Fatalf("got %q", out)
	}
}

func TestMemoryWriteThenView(t *testing.T) {
	r := newMemoryRegistry(t)
	if out, isErr := r.Execute(context.Background(), "memory", map[string]any{
		"action": "write", "key": "notes", "content": "remember this",
	}); isErr {
		t.Fatalf("write failed: %s", out)
	}

	out, isErr := r.Execute(context.Background(), "memory", map[string]any{"action": "view"})
	if isErr {
		t.Fatalf("view failed: %s", out)
	}
	if out != "notes" {
		t.Fatalf("got %q, want %q", out, "notes")
	}

	out, isErr = r.Execute(context.Background(), "memory", map[string]any{"action": "view", "key": "notes"})
	if isErr {
		t.Fatalf("view key failed: %s", out)
	}
	if out != "remember this" {
		t.Fatalf("got %q, want %q", out, "remember this")
	}
}

func TestMemoryDelete(t *testing.T) {
	r := newMemoryRegistry(t)
	_, _ = r.Execute(context.Background(), "memory", map[string]any{
		"action": "write", "key": "temp", "content": "x",
	})

	if out, isErr := r.Execute(context.Background(), "memory", map[string]any{"action": "delete", "key": "temp"}); isErr {
		t.Fatalf("delete failed: %s", out)
	}

	out, isErr := r.Execute(context.Background(), "memory", map[string]any{"action": "view", "key": "temp"})
	if !isErr || !strings.Contains(out, "no entry") {
		t.Fatalf("expected missing-entry error, got (%q, %v)", out, isErr)
	}
}

func TestMemoryRejectsPathTraversal(t *testing.T) {
	r := newMemoryRegistry(t)
	out, isErr := r.Execute(context.Background(), "memory", map[string]any{
		"action": "write", "key": "../../etc/passwd", "content": "pwned",
	})
	if !isErr {
		t.Fatalf("expected traversal to be rejected, got %q", out)
	}
}

func TestMemoryUnknownAction(t *testing.T) {
	r := newMemoryRegistry(t)
	out, isErr := r.Execute(context.Background(), "memory", map[string]any{"action": "frobnicate"})
	if !isErr || !strings.Contains(out, "unknown action") {
		t.Fatalf("got (%q, %v)", out, isErr)
	}
}
