package toolregistry

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func echoTool() (string, string, map[string]any, HandlerFunc) {
	return "echo", "echoes its input", map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
	}, func(_ context.Context, args map[string]any) (string, error) {
		s, _ := args["text"].(string)
		return s, nil
	}
}

func TestRegisterAndExecute(t *testing.T) {
	r := New()
	name, desc, params, handler := echoTool()
	if err := r.Register(name, desc, params, handler, ""); err != nil {
		t.Fatal(err)
	}

	out, isErr := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	if isErr {
		t.Fatalf("unexpected error result: %s", out)
	}
	if out != "hi" {
		t.Fatalf("got %q, want %q", out, "hi")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := New()
	out, isErr := r.Execute(context.Background(), "nope", nil)
	if !isErr || !strings.Contains(out, "unknown tool") {
		t.Fatalf("expected unknown-tool error, got (%q, %v)", out, isErr)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	r := New()
	_ = r.Register("boom", "panics", nil, func(context.Context, map[string]any) (string, error) {
		panic("kaboom")
	}, "")

	out, isErr := r.Execute(context.Background(), "boom", nil)
	if !isErr || !strings.Contains(out, "panicked") {
		t.Fatalf("expected panic to be captured as an error result, got (%q, %v)", out, isErr)
	}
}

func TestListDefinitionsStableOrder(t *testing.T) {
	r := New()
	_ = r.Register("a", "", map[string]any{"type": "object"}, func(context.Context, map[string]any) (string, error) { return "", nil }, "")
	_ = r.Register("b", "", map[string]any{"type": "object"}, func(context.Context, map[string]any) (string, error) { return "", nil }, "")

	defs := r.ListDefinitions()
	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
	}
	want := []string{"read_more", "a", "b"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestCloneExcludesAndIsolates(t *testing.T) {
	r := New()
	_ = r.Register("subagent", "", nil, func(context.Context, map[string]any) (string, error) { return "", nil }, "")
	_ = r.Register("memory", "", nil, func(context.Context, map[string]any) (string, error) { return "mem", nil }, "")

	clone := r.Clone("subagent")
	for _, d := range clone.ListDefinitions() {
		if d.Name == "subagent" {
			t.Fatal("clone should not contain excluded tool")
		}
	}

	_ = clone.Register("only-in-clone", "", nil, func(context.Context, map[string]any) (string, error) { return "", nil }, "")
	for _, d := range r.ListDefinitions() {
		if d.Name == "only-in-clone" {
			t.Fatal("parent registry mutated by clone registration")
		}
	}
}

func TestPaginationRoundTrip(t *testing.T) {
	r := New(WithPagination(10, 10))
	big := strings.Repeat("x", 35)
	_ = r.Register("big", "", nil, func(context.Context, map[string]any) (string, error) { return big, nil }, "")

	out, isErr := r.Execute(context.Background(), "big", nil)
	if isErr {
		t.Fatalf("unexpected error: %s", out)
	}
	if !strings.Contains(out, "truncated") {
		t.Fatalf("expected truncation notice, got %q", out)
	}

	var id string
	for _, tok := range strings.Split(out, "result_id=") {
		if strings.HasPrefix(tok, "\"") {
			id = strings.SplitN(tok[1:], "\"", 2)[0]
			break
		}
	}
	if id == "" {
		t.Fatal("could not find result_id in truncation notice")
	}

	page2, isErr := r.Execute(context.Background(), "read_more", map[string]any{"result_id": id, "page": float64(2)})
	if isErr {
		t.Fatalf("read_more failed: %s", page2)
	}
	if !strings.Contains(page2, "page 2") {
		t.Fatalf("expected page 2 content, got %q", page2)
	}
}

func TestPageBoundariesNeverSplitOrDuplicateRunes(t *testing.T) {
	r := New(WithPagination(1000, 4))
	full := "ab€cd€ef"

	var reassembled strings.Builder
	total := -1
	for n := 1; total == -1 || n <= total; n++ {
		text, pages := r.page(full, n)
		total = pages
		reassembled.WriteString(text)
		if !isValidUTF8Page(text) {
			t.Fatalf("page %d is not valid UTF-8: %q", n, text)
		}
	}
	if reassembled.String() != full {
		t.Fatalf("expected round trip to reproduce input, got %q, want %q", reassembled.String(), full)
	}
}

func isValidUTF8Page(s string) bool {
	for _, r := range s {
		if r == '�' {
			return false
		}
	}
	return true
}

func TestFileLockSerializesExecution(t *testing.T) {
	r := New(WithLockProvider(NewKeyedLock()))
	var active int32
	var maxActive int32
	_ = r.Register("write", "", nil, func(context.Context, map[string]any) (string, error) {
		n := atomic.AddInt32(&active, 1)
		if n > atomic.LoadInt32(&maxActive) {
			atomic.StoreInt32(&maxActive, n)
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return "ok", nil
	}, "path")

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Execute(context.Background(), "write", map[string]any{"path": "same-file.txt"})
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected serialized execution (max concurrency 1), got %d", maxActive)
	}
}
