package provider

import (
	"context"
	"errors"
	"fmt"

	"fetchr/content"
	"fetchr/mcp"
	"fetchr/tools"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

// OpenAIProvider implements Provider using OpenAI's official Go SDK.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	maxTokens int64
	opts      options
}

// NewOpenAIProvider creates an OpenAI provider.
//
// cfg.BaseURL defaults to "https://api.openai.com/v1" and cfg.Model to
// "gpt-4o". An API key is required.
func NewOpenAIProvider(cfg Config, opts ...Option) (*OpenAIProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4o
	}

	return &OpenAIProvider{
		client: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(cfg.APIKey),
		),
		model:     model,
		maxTokens: cfg.MaxTokens,
		opts:      buildOptions(opts),
	}, nil
}

func (p *OpenAIProvider) Kind() content.Provider { return content.ProviderOpenAI }

// Complete lets the model choose between answering and calling a tool.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (content.Turn, error) {
	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: ToOpenAI(req.Turns, p.opts.logger),
	}
	if len(req.Tools) > 0 {
		params.Tools = mcp.ToOpenAITools(req.Tools)
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
	}
	if p.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(p.maxTokens)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return content.Turn{}, wrapError(ProviderTypeOpenAI, err)
	}
	if len(resp.Choices) == 0 {
		return content.Turn{}, &ProviderError{Provider: ProviderTypeOpenAI, Err: errors.New("response has no choices")}
	}
	return FromOpenAIMessage(resp.Choices[0].Message, p.opts.registry, p.opts.logger), nil
}

// ToOpenAI converts a chat log into Chat Completions messages.
//
// Tool calls become assistant messages with a tool_calls array and results
// become tool messages keyed by call id. Images travel as URLs or data URLs.
// Images returned by a tool follow its tool message as a user message since
// tool messages only hold text.
func ToOpenAI(turns []content.Turn, logger *zap.SugaredLogger) []openai.ChatCompletionMessageParamUnion {
	logger = orNop(logger)
	var out []openai.ChatCompletionMessageParamUnion
	for _, turn := range prepare(turns, logger) {
		if turn.IsString() {
			out = append(out, openAIText(turn.Role, turn.Text))
			continue
		}
		for _, block := range turn.Blocks {
			switch b := block.(type) {
			case *content.Text:
				out = append(out, openAIText(turn.Role, b.Text))
			case *content.Image:
				imageRole(turn.Role, logger)
				out = append(out, openai.UserMessage(openAIImageParts(b)))
			case *content.ToolUse:
				out = append(out, openAIToolCall(b))
			case *content.ToolResult:
				rendered := renderResult(b, content.ProviderOpenAI)
				out = append(out, openai.ToolMessage(rendered.Text, b.ToolUseID))
				if len(rendered.Images) > 0 {
					var parts []openai.ChatCompletionContentPartUnionParam
					for _, img := range rendered.Images {
						parts = append(parts, openAIImageParts(img)...)
					}
					out = append(out, openai.UserMessage(parts))
				}
			}
		}
	}
	return out
}

func openAIText(role content.Role, text string) openai.ChatCompletionMessageParamUnion {
	switch role {
	case content.RoleSystem:
		return openai.SystemMessage(text)
	case content.RoleAssistant:
		return openai.AssistantMessage(text)
	default:
		return openai.UserMessage(text)
	}
}

func openAIImageParts(img *content.Image) []openai.ChatCompletionContentPartUnionParam {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL(img)}),
	}
	if img.Caption != "" {
		parts = append(parts, openai.TextContentPart(img.Caption))
	}
	return parts
}

func openAIToolCall(use *content.ToolUse) openai.ChatCompletionMessageParamUnion {
	return openai.ChatCompletionMessageParamUnion{
		OfAssistant: &openai.ChatCompletionAssistantMessageParam{
			ToolCalls: []openai.ChatCompletionMessageToolCallUnionParam{{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: use.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      use.Name,
						Arguments: string(toolInput(use)),
					},
				},
			}},
		},
	}
}

// FromOpenAIMessage converts a Chat Completions reply into an assistant turn.
func FromOpenAIMessage(msg openai.ChatCompletionMessage, reg *tools.Registry, logger *zap.SugaredLogger) content.Turn {
	logger = orNop(logger)
	var uses []*content.ToolUse
	for _, call := range msg.ToolCalls {
		if call.Type == "custom" {
			logger.Warnw("Ignoring custom tool call", "toolUseID", call.ID, "tool", call.Custom.Name)
			continue
		}
		uses = append(uses, toolUseFromCall(reg, call.ID, call.Function.Name, []byte(call.Function.Arguments), logger))
	}
	return assistantTurn(uses, msg.Content)
}
