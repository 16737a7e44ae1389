package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"fetchr/content"
	"fetchr/mcp"
	"fetchr/objectstore"
	"fetchr/tools"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const anthropicMaxTokens = 4096

// AnthropicProvider implements Provider using Anthropic's official Go SDK.
type AnthropicProvider struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
	opts      options
}

// NewAnthropicProvider creates an Anthropic provider.
//
// cfg.BaseURL defaults to "https://api.anthropic.com", cfg.Model to Claude
// Sonnet 4.5 and cfg.MaxTokens to 4096. An API key is required.
func NewAnthropicProvider(cfg Config, opts ...Option) (*AnthropicProvider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	model := anthropic.ModelClaudeSonnet4_5_20250929
	if cfg.Model != "" {
		model = anthropic.Model(cfg.Model)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(cfg.APIKey),
	)

	return &AnthropicProvider{
		client:    &client,
		model:     model,
		maxTokens: maxTokens,
		opts:      buildOptions(opts),
	}, nil
}

func (p *AnthropicProvider) Kind() content.Provider { return content.ProviderAnthropic }

// Complete requires the model to call one of the offered tools when any are
// offered.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (content.Turn, error) {
	msgs, err := ToAnthropic(ctx, req.Turns, p.opts.fetcher, p.opts.logger)
	if err != nil {
		return content.Turn{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  msgs,
	}
	if len(req.Tools) > 0 {
		params.Tools = mcp.ToAnthropicTools(req.Tools)
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return content.Turn{}, wrapError(ProviderTypeAnthropic, err)
	}
	return FromAnthropicMessage(resp, p.opts.registry, p.opts.logger), nil
}

// ToAnthropic converts a chat log into Messages API params.
//
// System turns are sent as user turns. Images are always inlined as base64;
// remote URLs are downloaded through fetcher first. Consecutive turns of the
// same role are merged into one message.
func ToAnthropic(ctx context.Context, turns []content.Turn, fetcher objectstore.Fetcher, logger *zap.SugaredLogger) ([]anthropic.MessageParam, error) {
	logger = orNop(logger)
	turns = prepare(turns, logger)

	images, err := resolveImages(ctx, turns, content.ProviderAnthropic, fetcher)
	if err != nil {
		return nil, err
	}

	var out []anthropic.MessageParam
	add := func(role content.Role, blocks ...anthropic.ContentBlockParamUnion) {
		if len(blocks) == 0 {
			return
		}
		r := anthropic.MessageParamRoleUser
		if role == content.RoleAssistant {
			r = anthropic.MessageParamRoleAssistant
		}
		if n := len(out); n > 0 && out[n-1].Role == r {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, anthropic.MessageParam{Role: r, Content: blocks})
	}

	for _, turn := range turns {
		if turn.IsString() {
			add(turn.Role, anthropicText(turn.Text)...)
			continue
		}
		for _, block := range turn.Blocks {
			switch b := block.(type) {
			case *content.Text:
				add(turn.Role, anthropicText(b.Text)...)
			case *content.Image:
				role := imageRole(turn.Role, logger)
				data, err := images.bytes(b)
				if err != nil {
					return nil, err
				}
				blocks := []anthropic.ContentBlockParamUnion{
					anthropic.NewImageBlockBase64(mediaType(data), base64.StdEncoding.EncodeToString(data)),
				}
				add(role, append(blocks, anthropicText(b.Caption)...)...)
			case *content.ToolUse:
				add(content.RoleAssistant, anthropic.NewToolUseBlock(b.ID, toolInput(b), b.Name))
			case *content.ToolResult:
				result, err := anthropicToolResult(b, images)
				if err != nil {
					return nil, err
				}
				add(content.RoleUser, result)
			}
		}
	}
	return out, nil
}

// anthropicText drops empty text, which the API rejects.
func anthropicText(text string) []anthropic.ContentBlockParamUnion {
	if text == "" {
		return nil
	}
	return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(text)}
}

func anthropicToolResult(res *content.ToolResult, images imageSet) (anthropic.ContentBlockParamUnion, error) {
	rendered := renderResult(res, content.ProviderAnthropic)
	block := anthropic.ToolResultBlockParam{
		ToolUseID: res.ToolUseID,
		IsError:   anthropic.Bool(rendered.IsError),
	}
	if rendered.Text != "" {
		block.Content = append(block.Content, anthropic.ToolResultBlockParamContentUnion{
			OfText: &anthropic.TextBlockParam{Text: rendered.Text},
		})
	}
	for _, img := range rendered.Images {
		data, err := images.bytes(img)
		if err != nil {
			return anthropic.ContentBlockParamUnion{}, err
		}
		block.Content = append(block.Content, anthropic.ToolResultBlockParamContentUnion{
			OfImage: &anthropic.ImageBlockParam{
				Source: anthropic.ImageBlockParamSourceUnion{
					OfBase64: &anthropic.Base64ImageSourceParam{
						Data:      base64.StdEncoding.EncodeToString(data),
						MediaType: anthropic.Base64ImageSourceMediaType(mediaType(data)),
					},
				},
			},
		})
		if img.Caption != "" {
			block.Content = append(block.Content, anthropic.ToolResultBlockParamContentUnion{
				OfText: &anthropic.TextBlockParam{Text: img.Caption},
			})
		}
	}
	return anthropic.ContentBlockParamUnion{OfToolResult: &block}, nil
}

// FromAnthropicMessage converts a Messages API reply into an assistant turn.
func FromAnthropicMessage(msg *anthropic.Message, reg *tools.Registry, logger *zap.SugaredLogger) content.Turn {
	logger = orNop(logger)
	var (
		uses  []*content.ToolUse
		texts []string
	)
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			texts = append(texts, block.Text)
		case "tool_use":
			uses = append(uses, toolUseFromCall(reg, block.ID, block.Name, block.Input, logger))
		default:
			logger.Debugw("Skipping content block", "type", block.Type)
		}
	}
	return assistantTurn(uses, strings.Join(texts, "\n"))
}
