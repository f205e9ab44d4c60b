// Package conversation holds the role-tagged message log shared by the
// orchestrator and the agent adapter.
package conversation

// Role represents the author of a message.
type Role string

const (
	RoleHuman         Role = "human"
	RoleAgent         Role = "agent"
	RoleSystemContext Role = "system-context"

	// RoleTool marks tool output inside a single agent invocation. Tool
	// messages never reach the persisted history.
	RoleTool Role = "tool"
)

// ToolCall is a tool invocation requested by the agent.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is a single entry in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on agent messages that request tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID and Name are set on tool messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

func Human(content string) Message {
	return Message{Role: RoleHuman, Content: content}
}

func Agent(content string) Message {
	return Message{Role: RoleAgent, Content: content}
}

func SystemContext(content string) Message {
	return Message{Role: RoleSystemContext, Content: content}
}

// IsRole returns a predicate matching messages authored by role.
func IsRole(role Role) func(Message) bool {
	return func(m Message) bool { return m.Role == role }
}
