package provider

import (
	"context"
	"encoding/json"

	"fetchr/content"
	"fetchr/mcp"
	"fetchr/objectstore"
	"fetchr/ollama"
	"fetchr/tools"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"go.uber.org/zap"
)

// OllamaProvider implements Provider for a local Ollama server.
type OllamaProvider struct {
	client *ollama.Client
	opts   options
}

// NewOllamaProvider creates an Ollama provider. Defaults come from the
// ollama package.
func NewOllamaProvider(cfg Config, opts ...Option) (*OllamaProvider, error) {
	client, err := ollama.NewClient(cfg.BaseURL, cfg.Model)
	if err != nil {
		return nil, err
	}
	return &OllamaProvider{client: client, opts: buildOptions(opts)}, nil
}

func (p *OllamaProvider) Kind() content.Provider { return content.ProviderOllama }

// Complete calls the model without streaming. Tool definitions are left out
// for models that are known not to support them.
func (p *OllamaProvider) Complete(ctx context.Context, req Request) (content.Turn, error) {
	msgs, err := ToOllama(ctx, req.Turns, p.opts.fetcher, p.opts.logger)
	if err != nil {
		return content.Turn{}, err
	}

	var ollamaTools []api.Tool
	if len(req.Tools) > 0 {
		if p.client.SupportsToolCalling() {
			ollamaTools = mcp.ToOllamaTools(req.Tools)
		} else {
			p.opts.logger.Warnw("Model does not support tool calling, sending without tools", "model", p.client.Model())
		}
	}

	reply, err := p.client.Chat(ctx, msgs, ollamaTools)
	if err != nil {
		return content.Turn{}, wrapError(ProviderTypeOllama, err)
	}
	return FromOllamaMessage(reply, p.opts.registry, p.opts.logger), nil
}

// ToOllama converts a chat log into Ollama chat messages. Ollama only accepts
// inline image bytes so remote URLs are downloaded through fetcher.
func ToOllama(ctx context.Context, turns []content.Turn, fetcher objectstore.Fetcher, logger *zap.SugaredLogger) ([]api.Message, error) {
	logger = orNop(logger)
	turns = prepare(turns, logger)

	images, err := resolveImages(ctx, turns, content.ProviderOllama, fetcher)
	if err != nil {
		return nil, err
	}

	var out []api.Message
	for _, turn := range turns {
		if turn.IsString() {
			out = append(out, api.Message{Role: string(turn.Role), Content: turn.Text})
			continue
		}
		for _, block := range turn.Blocks {
			switch b := block.(type) {
			case *content.Text:
				out = append(out, api.Message{Role: string(turn.Role), Content: b.Text})
			case *content.Image:
				role := imageRole(turn.Role, logger)
				data, err := images.bytes(b)
				if err != nil {
					return nil, err
				}
				out = append(out, api.Message{
					Role:    string(role),
					Content: b.Caption,
					Images:  []api.ImageData{data},
				})
			case *content.ToolUse:
				out = append(out, api.Message{
					Role: string(content.RoleAssistant),
					ToolCalls: []api.ToolCall{{
						Function: api.ToolCallFunction{
							Name:      b.Name,
							Arguments: ParseToolArguments(string(toolInput(b))),
						},
					}},
				})
			case *content.ToolResult:
				rendered := renderResult(b, content.ProviderOllama)
				msg := api.Message{Role: "tool", Content: rendered.Text}
				for _, img := range rendered.Images {
					data, err := images.bytes(img)
					if err != nil {
						return nil, err
					}
					msg.Images = append(msg.Images, data)
				}
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

// ParseToolArguments parses JSON arguments into a map. Invalid JSON yields an
// empty map.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// FromOllamaMessage converts an Ollama reply into an assistant turn. Ollama
// does not identify tool calls, so each one gets a fresh id.
func FromOllamaMessage(msg api.Message, reg *tools.Registry, logger *zap.SugaredLogger) content.Turn {
	logger = orNop(logger)
	uses := make([]*content.ToolUse, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		args, err := json.Marshal(call.Function.Arguments)
		if err != nil {
			args = nil
		}
		id := "call_" + uuid.NewString()
		uses = append(uses, toolUseFromCall(reg, id, call.Function.Name, args, logger))
	}
	return assistantTurn(uses, msg.Content)
}
