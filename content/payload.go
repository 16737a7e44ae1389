package content

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Provider identifies a model backend whose wire format a payload may be
// rendered for.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGroq      Provider = "groq"
	ProviderOllama    Provider = "ollama"
)

// RequestPayload is the typed object behind a tool_use block.
//
// Request payloads carry a metadata bag that is never shown to the model.
// Orchestration code (for example a background search) attaches records to it
// after the request was created; repeated attachments merge shallowly.
type RequestPayload interface {
	ToolType() string
	Metadata() map[string]any
	AddMetadata(md map[string]any)
}

// ResponsePayload is the typed object behind a tool_result block.
type ResponsePayload interface {
	ToolType() string
	// Render produces the tool result shown to the given provider. It must be
	// pure: the same payload state always renders the same output.
	Render(p Provider) ToolOutput
}

// ToolOutput is a rendered tool result.
type ToolOutput struct {
	Text    string
	Images  []*Image
	IsError bool
}

// PayloadDecoder turns persisted payload JSON back into typed payloads.
// tools.Registry is the production implementation.
type PayloadDecoder interface {
	DecodeRequest(toolType string, data []byte) (RequestPayload, error)
	DecodeResponse(toolType string, data []byte) (ResponsePayload, error)
}

// RequestBase gives request payloads structural JSON serialization of the
// tool type tag and the metadata bag. Embed it in concrete payload structs.
type RequestBase struct {
	Type string         `json:"fetchrLLMToolType"`
	Meta map[string]any `json:"metadata,omitempty"`
}

// ToolType implements RequestPayload.
func (b *RequestBase) ToolType() string { return b.Type }

// Metadata implements RequestPayload.
func (b *RequestBase) Metadata() map[string]any { return b.Meta }

// AddMetadata implements RequestPayload.
func (b *RequestBase) AddMetadata(md map[string]any) {
	b.Meta = mergeMetadata(b.Meta, md)
}

// ResponseBase carries the tool type tag of a response payload.
type ResponseBase struct {
	Type string `json:"fetchrLLMToolType"`
}

// ToolType implements ResponsePayload.
func (b *ResponseBase) ToolType() string { return b.Type }

// mergeMetadata copies every value through JSON so the bag only ever holds
// JSON-safe values and never aliases caller memory.
func mergeMetadata(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = jsonCopy(v)
	}
	return dst
}

func jsonCopy(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Sprint(v)
	}
	return out
}

// RawRequest holds a request payload whose tool type the decoder does not
// know. Its fields are kept verbatim so it re-serializes unchanged.
type RawRequest struct {
	Fields map[string]any
}

// NewRawRequest creates a raw payload tagged with toolType.
func NewRawRequest(toolType string) *RawRequest {
	return &RawRequest{Fields: map[string]any{"fetchrLLMToolType": toolType}}
}

func (r *RawRequest) ToolType() string {
	s, _ := r.Fields["fetchrLLMToolType"].(string)
	return s
}

func (r *RawRequest) Metadata() map[string]any {
	md, _ := r.Fields["metadata"].(map[string]any)
	return md
}

func (r *RawRequest) AddMetadata(md map[string]any) {
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	r.Fields["metadata"] = mergeMetadata(r.Metadata(), md)
}

func (r *RawRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields)
}

func (r *RawRequest) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.Fields)
}

// RawResponse holds a response payload of an unknown tool type.
type RawResponse struct {
	Fields map[string]any
}

func (r *RawResponse) ToolType() string {
	s, _ := r.Fields["fetchrLLMToolType"].(string)
	return s
}

// Render shows an "error" field when present and the raw fields otherwise.
func (r *RawResponse) Render(Provider) ToolOutput {
	if msg, ok := r.Fields["error"].(string); ok {
		return ToolOutput{Text: msg, IsError: true}
	}
	fields := maps.Clone(r.Fields)
	delete(fields, "fetchrLLMToolType")
	data, _ := json.Marshal(fields)
	return ToolOutput{Text: string(data)}
}

func (r *RawResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Fields)
}

func (r *RawResponse) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &r.Fields)
}
