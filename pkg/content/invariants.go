package content

import "fmt"

// ValidatePairing checks that every tool_use block in an assistant turn
// has exactly one corresponding tool_result block in the immediately
// following user turn, keyed by tool_use_id, and that the conversation
// strictly alternates user/assistant.
func ValidatePairing(c Conversation) error {
	for i, m := range c.Messages {
		wantRole := RoleUser
		if i%2 == 1 {
			wantRole = RoleAssistant
		}
		if m.Role != wantRole {
			return fmt.Errorf("conversation does not strictly alternate at index %d: got %s, want %s", i, m.Role, wantRole)
		}

		if m.Role != RoleAssistant {
			continue
		}
		toolUses := m.ToolUseBlocks()
		if len(toolUses) == 0 {
			continue
		}
		if i+1 >= len(c.Messages) {
			return fmt.Errorf("assistant turn %d has tool_use blocks with no following user turn", i)
		}
		resultIDs := c.Messages[i+1].ToolResultIDs()
		for _, tu := range toolUses {
			if !resultIDs[tu.ToolUseID] {
				return fmt.Errorf("tool_use %q at turn %d has no matching tool_result in turn %d", tu.ToolUseID, i, i+1)
			}
		}
	}
	return nil
}
