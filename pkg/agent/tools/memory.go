package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nstogner/agentcore/pkg/sandbox"
	"github.com/nstogner/agentcore/pkg/toolregistry"
)

// MemoryParams describes memory's arguments. Action selects the
// operation; Key and Content are only meaningful for the corresponding
// action.
type MemoryParams struct {
	Action  string `json:"action" jsonschema:"required,enum=view,enum=write,enum=delete,description=Which memory operation to perform."`
	Key     string `json:"key,omitempty" jsonschema:"description=Memory entry key. Omit with action=view to list all keys."`
	Content string `json:"content,omitempty" jsonschema:"description=Content to write, only used with action=write."`
}

// memoryDir is the subdirectory of the sandbox root that backs the
// memory tool's file store.
const memoryDir = "memory"

// RegisterMemory registers the memory tool, backed by files under sb's
// root as a plain file-backed key/value store. Path traversal protection
// is delegated to the Sandbox's own ValidatePath.
func RegisterMemory(registry *toolregistry.Registry, sb sandbox.Sandbox) error {
	handler := func(_ context.Context, args map[string]any) (string, error) {
		return memoryHandle(sb, args)
	}
	return registry.Register(
		"memory",
		"View, write, or delete entries in persistent key/value memory.",
		toolregistry.ParamsSchema(MemoryParams{}),
		handler,
		"key",
	)
}

func memoryHandle(sb sandbox.Sandbox, args map[string]any) (string, error) {
	action, _ := args["action"].(string)
	key, _ := args["key"].(string)

	switch action {
	case "view":
		if key == "" {
			return listMemoryKeys(sb)
		}
		return readMemoryKey(sb, key)
	case "write":
		text, _ := args["content"].(string)
		if key == "" {
			return "", fmt.Errorf("memory: write requires a key")
		}
		return writeMemoryKey(sb, key, text)
	case "delete":
		if key == "" {
			return "", fmt.Errorf("memory: delete requires a key")
		}
		return deleteMemoryKey(sb, key)
	default:
		return "", fmt.Errorf("memory: unknown action %q (want view, write, or delete)", action)
	}
}

func keyPath(key string) string {
	return filepath.Join(memoryDir, key)
}

func listMemoryKeys(sb sandbox.Sandbox) (string, error) {
	dir, err := sb.ValidatePath(memoryDir)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return "(no memory entries)", nil
	}
	if err != nil {
		return "", fmt.Errorf("memory: listing entries: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "(no memory entries)", nil
	}
	return strings.Join(names, "\n"), nil
}

func readMemoryKey(sb sandbox.Sandbox, key string) (string, error) {
	path, err := sb.ValidatePath(keyPath(key))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("memory: no entry for key %q", key)
	}
	if err != nil {
		return "", fmt.Errorf("memory: reading key %q: %w", key, err)
	}
	return string(data), nil
}

func writeMemoryKey(sb sandbox.Sandbox, key, text string) (string, error) {
	path, err := sb.ValidatePath(keyPath(key))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("memory: preparing directory for key %q: %w", key, err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("memory: writing key %q: %w", key, err)
	}
	return fmt.Sprintf("wrote %d bytes to %q", len(text), key), nil
}

func deleteMemoryKey(sb sandbox.Sandbox, key string) (string, error) {
	path, err := sb.ValidatePath(keyPath(key))
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("memory: no entry for key %q", key)
		}
		return "", fmt.Errorf("memory: deleting key %q: %w", key, err)
	}
	return fmt.Sprintf("deleted %q", key), nil
}
