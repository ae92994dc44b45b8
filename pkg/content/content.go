// Package content defines the provider-neutral conversation data model:
// messages, content blocks, and the conversation they form. This is the
// wire-independent representation every LLM provider adapter translates
// to and from at its own boundary.
package content

// Role indicates which side of the conversation a message belongs to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType discriminates the content block union.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
	BlockImage      BlockType = "image"
	BlockDocument   BlockType = "document"
)

// Block is a single component of a message. Exactly one of the type-specific
// fields is populated, selected by Type.
type Block struct {
	Type BlockType `json:"type"`

	// Text holds the text for Type == BlockText.
	Text string `json:"text,omitempty"`

	// ToolUse fields, assistant side only.
	ToolUseID   string `json:"tool_use_id,omitempty"`
	ToolName    string `json:"tool_name,omitempty"`
	ToolInput   map[string]any `json:"tool_input,omitempty"`

	// ToolResult fields, user side only. ToolResultForID keys the pairing
	// back to the ToolUseID of the tool_use block it answers.
	ToolResultForID string `json:"tool_result_for_id,omitempty"`
	ToolResultText  string `json:"tool_result_text,omitempty"`
	IsError         bool   `json:"is_error,omitempty"`

	// Image/Document fields, user side only.
	MediaType string `json:"media_type,omitempty"`
	Data      []byte `json:"data,omitempty"`
	Name      string `json:"name,omitempty"`
}

// Text constructs a text block.
func Text(text string) Block {
	return Block{Type: BlockText, Text: text}
}

// ToolUse constructs an assistant-side tool invocation block.
func ToolUse(id, name string, input map[string]any) Block {
	return Block{Type: BlockToolUse, ToolUseID: id, ToolName: name, ToolInput: input}
}

// ToolResult constructs a user-side tool reply block.
func ToolResult(toolUseID, text string, isError bool) Block {
	return Block{Type: BlockToolResult, ToolResultForID: toolUseID, ToolResultText: text, IsError: isError}
}

// Image constructs a user-side image block.
func Image(mediaType string, data []byte) Block {
	return Block{Type: BlockImage, MediaType: mediaType, Data: data}
}

// Document constructs a user-side document block.
func Document(mediaType string, data []byte, name string) Block {
	return Block{Type: BlockDocument, MediaType: mediaType, Data: data, Name: name}
}

// Message is one turn in a Conversation.
type Message struct {
	Role    Role    `json:"role"`
	Content []Block `json:"content"`
}

// ToolUseBlocks returns every tool_use block in the message, in order.
func (m Message) ToolUseBlocks() []Block {
	var out []Block
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// Text concatenates every text block in the message.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// Conversation is an ordered sequence of messages, strictly alternating
// user/assistant at the turn level.
type Conversation struct {
	Messages []Message `json:"messages"`
}

// Append adds a message to the end of the conversation.
func (c *Conversation) Append(m Message) {
	c.Messages = append(c.Messages, m)
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.Messages) }

// Last returns the last message and whether the conversation is non-empty.
func (c *Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// PopLast removes and returns the last message, used to rewind the
// conversation after an unrecoverable provider error on a fresh turn.
func (c *Conversation) PopLast() (Message, bool) {
	m, ok := c.Last()
	if !ok {
		return Message{}, false
	}
	c.Messages = c.Messages[:len(c.Messages)-1]
	return m, true
}

// Clone returns a deep-enough copy such that mutating the clone's messages
// or blocks does not affect the receiver. Used before compaction rewrites
// so a byte-identical-input check can compare against the pre-rewrite
// snapshot.
func (c Conversation) Clone() Conversation {
	out := Conversation{Messages: make([]Message, len(c.Messages))}
	for i, m := range c.Messages {
		blocks := make([]Block, len(m.Content))
		copy(blocks, m.Content)
		out.Messages[i] = Message{Role: m.Role, Content: blocks}
	}
	return out
}

// ToolResultIDs returns the set of tool_use_id values answered by the
// tool_result blocks in this message.
func (m Message) ToolResultIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, b := range m.Content {
		if b.Type == BlockToolResult {
			ids[b.ToolResultForID] = true
		}
	}
	return ids
}
