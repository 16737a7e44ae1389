package testutil

import (
	"encoding/json"
	"fmt"

	"fetchr/content"
	"fetchr/tools"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ToolCall builds a validated tool_use block against the default registry.
// It panics on invalid input, which is a bug in the test itself.
func ToolCall(name, id, input string) *content.ToolUse {
	use, err := tools.Default().CreateRequest(name, id, json.RawMessage(input))
	if err != nil {
		panic(fmt.Sprintf("invalid test tool call %s: %v", name, err))
	}
	return use
}

// ToolCallReply is an assistant turn calling one tool, as a provider returns it.
func ToolCallReply(name, id, input string) content.Turn {
	return content.BlockTurn(content.RoleAssistant, ToolCall(name, id, input))
}

// TextReply is a plain assistant answer.
func TextReply(text string) content.Turn {
	return content.TextTurn(content.RoleAssistant, text)
}

// TestConversation returns a short shopping conversation with one answered
// tool call.
func TestConversation() []content.Turn {
	return []content.Turn{
		content.TextTurn(content.RoleSystem, "You are a personal shopper."),
		content.TextTurn(content.RoleUser, "I need a linen shirt for summer"),
		ToolCallReply(tools.GenerateTitle, "call_title", `{"generated_title":"Linen shirt"}`),
		content.BlockTurn(content.RoleUser, content.NewToolResult("call_title", tools.NewGenerateTitleResponse("Linen shirt"))),
		content.TextTurn(content.RoleAssistant, "Looking for options now."),
	}
}

// SingleUserMessage returns a one-turn conversation.
func SingleUserMessage(text string) []content.Turn {
	return []content.Turn{content.TextTurn(content.RoleUser, text)}
}

// TestMCPTools returns the schemas of a few registered tools.
func TestMCPTools() []mcptypes.Tool {
	schemas, err := tools.Default().MCPTools(tools.GenerateTitle, tools.MessageUser, tools.PlaceOrder)
	if err != nil {
		panic(err)
	}
	return schemas
}
