package sandbox

import (
	"context"
	"strings"
	"testing"
)

func TestValidatePathRejectsTraversal(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.ValidatePath("../../etc/passwd"); err == nil {
		t.Fatal("expected traversal outside root to be rejected")
	}
	if _, err := l.ValidatePath("subdir/file.txt"); err != nil {
		t.Fatalf("expected in-root path to validate, got %v", err)
	}
}

func TestExecRunsCommandInRoot(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	res, err := l.Exec(context.Background(), "pwd", 5, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Stdout, l.Root()) {
		t.Fatalf("expected pwd output to contain sandbox root, got %q", res.Stdout)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}
}

func TestExecTimesOut(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = l.Exec(context.Background(), "sleep 5", 1, "")
	if err == nil {
		t.Fatal("expected command to time out")
	}
}

func TestExecRejectsEscapingWorkingDir(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, err = l.Exec(context.Background(), "echo hi", 5, "../outside")
	if err == nil {
		t.Fatal("expected escaping working_dir to be rejected")
	}
}
