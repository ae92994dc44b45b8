package agent

import "fmt"

const summaryMaxLen = 80

// toolSummaryLabels maps well-known tool names to a (label, arg key) pair
// for a human-readable one-line summary. Tools not listed here fall back
// to a generic "calling <name>" summary.
var toolSummaryLabels = map[string][2]string{
	"read_file":  {"reading file", "path"},
	"edit_file":  {"editing file", "path"},
	"list_files": {"listing files", "path"},
	"bash":       {"running command", "command"},
	"grep_search": {"searching code", "pattern"},
	"memory":     {"memory op", "action"},
	"create_subagent": {"delegating to subagent", "task"},
}

// toolSummary produces a human-readable one-liner for a tool_call_start
// event's payload.
func toolSummary(name string, input map[string]any) string {
	if pair, ok := toolSummaryLabels[name]; ok {
		label, key := pair[0], pair[1]
		value := fmt.Sprintf("%v", input[key])
		if len(value) > summaryMaxLen {
			value = value[:summaryMaxLen] + "..."
		}
		return fmt.Sprintf("%s: %s", label, value)
	}
	return fmt.Sprintf("calling %s", name)
}
