package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"fetchr/chatlog"
	"fetchr/content"
	"fetchr/objectstore"
	"fetchr/tools"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentFetches bounds parallel image downloads for one request.
const maxConcurrentFetches = 4

// defaultMediaType is sent for inline images whose format is not recognised.
const defaultMediaType = "image/jpeg"

var supportedMediaTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

func orNop(logger *zap.SugaredLogger) *zap.SugaredLogger {
	if logger == nil {
		return zap.NewNop().Sugar()
	}
	return logger
}

// prepare normalizes turns so every adapter sees a provider-safe log.
func prepare(turns []content.Turn, logger *zap.SugaredLogger) []content.Turn {
	return chatlog.Normalize(turns, logger)
}

// imageRole returns the role an image block is sent under. Only user turns
// may carry images.
func imageRole(role content.Role, logger *zap.SugaredLogger) content.Role {
	if role != content.RoleUser {
		logger.Warnw("Image attached to non-user turn, sending as user", "role", role)
	}
	return content.RoleUser
}

// renderResult renders a tool result for kind. Results whose payload could not
// be resolved fall back to the persisted content.
func renderResult(res *content.ToolResult, kind content.Provider) content.ToolOutput {
	if res.Payload != nil {
		return res.Payload.Render(kind)
	}
	out := content.ToolOutput{IsError: res.IsError}
	var s string
	if err := json.Unmarshal(res.Content, &s); err == nil {
		out.Text = s
	} else {
		out.Text = string(res.Content)
	}
	return out
}

func toolInput(use *content.ToolUse) json.RawMessage {
	if len(use.Input) == 0 {
		return json.RawMessage("{}")
	}
	return use.Input
}

func mediaType(data []byte) string {
	mt := http.DetectContentType(data)
	if supportedMediaTypes[mt] {
		return mt
	}
	return defaultMediaType
}

// imageURL returns the remote URL of img, or a data URL for inline bytes.
func imageURL(img *content.Image) string {
	if img.URL != "" {
		return img.URL
	}
	return "data:" + mediaType(img.Data) + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// imageSet holds the bytes of every remote image a request references.
type imageSet map[string][]byte

func (s imageSet) bytes(img *content.Image) ([]byte, error) {
	if len(img.Data) > 0 {
		return img.Data, nil
	}
	data, ok := s[img.URL]
	if !ok {
		return nil, fmt.Errorf("image %s was not resolved", img.URL)
	}
	return data, nil
}

// resolveImages downloads every remote image referenced by turns, including
// images inside tool results rendered for kind.
func resolveImages(ctx context.Context, turns []content.Turn, kind content.Provider, fetcher objectstore.Fetcher) (imageSet, error) {
	urls := map[string]struct{}{}
	for _, turn := range turns {
		for _, block := range turn.ContentBlocks() {
			switch b := block.(type) {
			case *content.Image:
				if b.URL != "" {
					urls[b.URL] = struct{}{}
				}
			case *content.ToolResult:
				for _, img := range renderResult(b, kind).Images {
					if img.URL != "" {
						urls[img.URL] = struct{}{}
					}
				}
			}
		}
	}

	set := imageSet{}
	if len(urls) == 0 {
		return set, nil
	}
	if fetcher == nil {
		return nil, errors.New("remote images need a fetcher")
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for u := range urls {
		g.Go(func() error {
			data, err := fetcher.FetchBytes(ctx, u)
			if err != nil {
				return fmt.Errorf("failed to fetch image %s: %w", u, err)
			}
			mu.Lock()
			set[u] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return set, nil
}

// toolUseFromCall builds the canonical request block for a call returned by a
// model. Calls the registry rejects keep a raw payload so the agent can answer
// them with an error result.
func toolUseFromCall(reg *tools.Registry, id, name string, args []byte, logger *zap.SugaredLogger) *content.ToolUse {
	input := json.RawMessage(args)
	if len(input) == 0 || !json.Valid(input) {
		logger.Warnw("Tool call with invalid arguments", "tool", name, "toolUseID", id, "arguments", string(args))
		input = json.RawMessage("{}")
	}
	use, err := reg.CreateRequest(name, id, input)
	if err == nil {
		return use
	}
	logger.Debugw("Keeping raw tool call", "tool", name, "toolUseID", id, "error", err)
	return &content.ToolUse{ID: id, Name: name, Input: input, Payload: content.NewRawRequest(name)}
}

// assistantTurn assembles a model reply: one block per tool call followed by
// the prose, or a plain string turn when there were no calls.
func assistantTurn(uses []*content.ToolUse, text string) content.Turn {
	if len(uses) == 0 {
		return content.TextTurn(content.RoleAssistant, text)
	}
	blocks := make([]content.Block, 0, len(uses)+1)
	for _, use := range uses {
		blocks = append(blocks, use)
	}
	if text != "" {
		blocks = append(blocks, &content.Text{Text: text})
	}
	return content.BlockTurn(content.RoleAssistant, blocks...)
}

// wrapError turns an SDK error into a *ProviderError carrying the HTTP status
// when one is known.
func wrapError(kind ProviderType, err error) error {
	pe := &ProviderError{Provider: kind, Err: err}

	var (
		oaiErr    *openai.Error
		antErr    *anthropic.Error
		apiErr    *goopenai.APIError
		reqErr    *goopenai.RequestError
		ollamaErr api.StatusError
	)
	switch {
	case errors.As(err, &oaiErr):
		pe.StatusCode = oaiErr.StatusCode
	case errors.As(err, &antErr):
		pe.StatusCode = antErr.StatusCode
	case errors.As(err, &apiErr):
		pe.StatusCode = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		pe.StatusCode = reqErr.HTTPStatusCode
	case errors.As(err, &ollamaErr):
		pe.StatusCode = ollamaErr.StatusCode
	}
	return pe
}
