package agent

import (
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/relay/internal/conversation"
)

// toMessageContent maps conversation messages onto langchaingo chat content,
// with the system prompt first.
func toMessageContent(systemPrompt string, messages []conversation.Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages)+1)
	if systemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt))
	}

	for _, m := range messages {
		switch m.Role {
		case conversation.RoleSystemContext:
			content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case conversation.RoleHuman:
			content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case conversation.RoleAgent:
			parts := make([]llms.ContentPart, 0, len(m.ToolCalls)+1)
			if m.Content != "" || len(m.ToolCalls) == 0 {
				parts = append(parts, llms.TextContent{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			content = append(content, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case conversation.RoleTool:
			content = append(content, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.Name,
					Content:    m.Content,
				}},
			})
		}
	}
	return content
}

// fromChoice converts a model choice into an agent message.
func fromChoice(choice *llms.ContentChoice) conversation.Message {
	msg := conversation.Agent(choice.Content)
	for _, tc := range choice.ToolCalls {
		call := conversation.ToolCall{ID: tc.ID}
		if tc.FunctionCall != nil {
			call.Name = tc.FunctionCall.Name
			call.Arguments = tc.FunctionCall.Arguments
		}
		msg.ToolCalls = append(msg.ToolCalls, call)
	}
	return msg
}

// aiContent echoes a model choice back into the running transcript.
func aiContent(choice *llms.ContentChoice) llms.MessageContent {
	parts := make([]llms.ContentPart, 0, len(choice.ToolCalls)+1)
	if choice.Content != "" || len(choice.ToolCalls) == 0 {
		parts = append(parts, llms.TextContent{Text: choice.Content})
	}
	for _, tc := range choice.ToolCalls {
		parts = append(parts, tc)
	}
	return llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts}
}
