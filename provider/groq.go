package provider

import (
	"context"
	"errors"
	"fmt"

	"fetchr/content"
	"fetchr/mcp"
	"fetchr/tools"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// GroqProvider implements Provider against Groq's OpenAI compatible endpoint.
type GroqProvider struct {
	client    *goopenai.Client
	model     string
	maxTokens int
	opts      options
}

// NewGroqProvider creates a Groq provider. cfg.Model defaults to
// "llama-3.3-70b-versatile". An API key is required.
func NewGroqProvider(cfg Config, opts ...Option) (*GroqProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Groq API key is required")
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = groqBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}

	return &GroqProvider{
		client:    goopenai.NewClientWithConfig(clientCfg),
		model:     model,
		maxTokens: int(cfg.MaxTokens),
		opts:      buildOptions(opts),
	}, nil
}

func (p *GroqProvider) Kind() content.Provider { return content.ProviderGroq }

func (p *GroqProvider) Complete(ctx context.Context, req Request) (content.Turn, error) {
	msgs, err := ToGroq(req.Turns, p.opts.logger)
	if err != nil {
		return content.Turn{}, err
	}

	chatReq := goopenai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  msgs,
		MaxTokens: p.maxTokens,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = mcp.ToGroqTools(req.Tools)
		chatReq.ToolChoice = "auto"
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return content.Turn{}, wrapError(ProviderTypeGroq, err)
	}
	if len(resp.Choices) == 0 {
		return content.Turn{}, &ProviderError{Provider: ProviderTypeGroq, Err: errors.New("response has no choices")}
	}
	return FromGroqMessage(resp.Choices[0].Message, p.opts.registry, p.opts.logger), nil
}

// ToGroq converts a chat log into OpenAI compatible messages for Groq.
// Groq cannot attach images to tool results; such results fail with
// ErrUnsupportedContent.
func ToGroq(turns []content.Turn, logger *zap.SugaredLogger) ([]goopenai.ChatCompletionMessage, error) {
	logger = orNop(logger)
	var out []goopenai.ChatCompletionMessage
	for _, turn := range prepare(turns, logger) {
		if turn.IsString() {
			out = append(out, goopenai.ChatCompletionMessage{Role: groqRole(turn.Role), Content: turn.Text})
			continue
		}
		for _, block := range turn.Blocks {
			switch b := block.(type) {
			case *content.Text:
				out = append(out, goopenai.ChatCompletionMessage{Role: groqRole(turn.Role), Content: b.Text})
			case *content.Image:
				imageRole(turn.Role, logger)
				out = append(out, goopenai.ChatCompletionMessage{
					Role:         goopenai.ChatMessageRoleUser,
					MultiContent: groqImageParts(b),
				})
			case *content.ToolUse:
				out = append(out, goopenai.ChatCompletionMessage{
					Role: goopenai.ChatMessageRoleAssistant,
					ToolCalls: []goopenai.ToolCall{{
						ID:   b.ID,
						Type: goopenai.ToolTypeFunction,
						Function: goopenai.FunctionCall{
							Name:      b.Name,
							Arguments: string(toolInput(b)),
						},
					}},
				})
			case *content.ToolResult:
				rendered := renderResult(b, content.ProviderGroq)
				if len(rendered.Images) > 0 {
					return nil, fmt.Errorf("tool result %s has images: %w", b.ToolUseID, ErrUnsupportedContent)
				}
				out = append(out, goopenai.ChatCompletionMessage{
					Role:       goopenai.ChatMessageRoleTool,
					Content:    rendered.Text,
					ToolCallID: b.ToolUseID,
				})
			}
		}
	}
	return out, nil
}

func groqRole(role content.Role) string {
	switch role {
	case content.RoleSystem:
		return goopenai.ChatMessageRoleSystem
	case content.RoleAssistant:
		return goopenai.ChatMessageRoleAssistant
	default:
		return goopenai.ChatMessageRoleUser
	}
}

func groqImageParts(img *content.Image) []goopenai.ChatMessagePart {
	parts := []goopenai.ChatMessagePart{{
		Type:     goopenai.ChatMessagePartTypeImageURL,
		ImageURL: &goopenai.ChatMessageImageURL{URL: imageURL(img)},
	}}
	if img.Caption != "" {
		parts = append(parts, goopenai.ChatMessagePart{Type: goopenai.ChatMessagePartTypeText, Text: img.Caption})
	}
	return parts
}

// FromGroqMessage converts a Groq reply into an assistant turn.
func FromGroqMessage(msg goopenai.ChatCompletionMessage, reg *tools.Registry, logger *zap.SugaredLogger) content.Turn {
	logger = orNop(logger)
	uses := make([]*content.ToolUse, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		uses = append(uses, toolUseFromCall(reg, call.ID, call.Function.Name, []byte(call.Function.Arguments), logger))
	}
	return assistantTurn(uses, msg.Content)
}
