// Package tools is the static registry of tools the agents may invoke.
//
// Each tool couples an input schema (inferred from a Go struct with
// jsonschema-go) with the request and response payload types stored in the
// chat log. The registry also decodes persisted payloads back into their
// typed form, so it is the content.PayloadDecoder used across the module.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"fetchr/content"

	"github.com/google/jsonschema-go/jsonschema"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ErrToolNotFound is returned for tool names the registry does not know.
var ErrToolNotFound = errors.New("tool not found")

// ValidationError reports model-produced input that does not satisfy a
// tool's schema.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input for tool %s: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

type (
	requestDecoder  func(data []byte) (content.RequestPayload, error)
	responseDecoder func(data []byte) (content.ResponsePayload, error)
)

// Definition describes one tool.
type Definition struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema

	resolved       *jsonschema.Resolved
	build          func(input json.RawMessage) (content.RequestPayload, error)
	decodeRequest  requestDecoder
	decodeResponse responseDecoder
}

// HasResponse reports whether the tool has its own response payload type.
func (d *Definition) HasResponse() bool {
	return d.decodeResponse != nil
}

// Validate checks input against the tool schema.
func (d *Definition) Validate(input json.RawMessage) error {
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	var instance any
	if err := json.Unmarshal(input, &instance); err != nil {
		return &ValidationError{Tool: d.Name, Err: fmt.Errorf("input is not valid JSON: %w", err)}
	}
	if err := d.resolved.Validate(instance); err != nil {
		return &ValidationError{Tool: d.Name, Err: err}
	}
	return nil
}

// MCPTool converts the definition into the provider-neutral tool schema.
func (d *Definition) MCPTool() (mcptypes.Tool, error) {
	data, err := json.Marshal(d.Schema)
	if err != nil {
		return mcptypes.Tool{}, fmt.Errorf("failed to marshal schema for %s: %w", d.Name, err)
	}
	var s struct {
		Type       string         `json:"type"`
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
		Defs       map[string]any `json:"$defs"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return mcptypes.Tool{}, fmt.Errorf("failed to read schema for %s: %w", d.Name, err)
	}
	if s.Properties == nil {
		s.Properties = map[string]any{}
	}
	return mcptypes.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: mcptypes.ToolInputSchema{
			Type:       "object",
			Properties: s.Properties,
			Required:   s.Required,
			Defs:       s.Defs,
		},
	}, nil
}

// define builds a Definition whose input is decoded into In. tune may adjust
// the inferred schema (array bounds, optional fields) before it is resolved.
func define[In any](name, description string, build func(In) content.RequestPayload, decReq requestDecoder, decResp responseDecoder, tune func(*jsonschema.Schema)) (*Definition, error) {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, fmt.Errorf("failed to infer schema for %s: %w", name, err)
	}
	if tune != nil {
		tune(schema)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve schema for %s: %w", name, err)
	}
	return &Definition{
		Name:        name,
		Description: description,
		Schema:      schema,
		resolved:    resolved,
		build: func(input json.RawMessage) (content.RequestPayload, error) {
			var in In
			if err := json.Unmarshal(input, &in); err != nil {
				return nil, &ValidationError{Tool: name, Err: err}
			}
			return build(in), nil
		},
		decodeRequest:  decReq,
		decodeResponse: decResp,
	}, nil
}

func requestOf[T any, PT interface {
	*T
	content.RequestPayload
}]() requestDecoder {
	return func(data []byte) (content.RequestPayload, error) {
		p := PT(new(T))
		if err := json.Unmarshal(data, p); err != nil {
			return nil, err
		}
		return p, nil
	}
}

func responseOf[T any, PT interface {
	*T
	content.ResponsePayload
}]() responseDecoder {
	return func(data []byte) (content.ResponsePayload, error) {
		p := PT(new(T))
		if err := json.Unmarshal(data, p); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Registry maps tool names to their definitions.
type Registry struct {
	defs   map[string]*Definition
	common map[string]responseDecoder
}

// NewRegistry creates a registry holding defs plus the common response types.
func NewRegistry(defs ...*Definition) *Registry {
	r := &Registry{
		defs: make(map[string]*Definition, len(defs)),
		common: map[string]responseDecoder{
			TypeError:                responseOf[ErrorResponse](),
			TypeExecutingOutside:     responseOf[ExecutingOutsideResponse](),
			TypeExecutingNonBlocking: responseOf[ExecutingNonBlockingResponse](),
		},
	}
	for _, d := range defs {
		r.defs[d.Name] = d
	}
	return r
}

var defaultRegistry = sync.OnceValues(func() (*Registry, error) {
	defs, err := productTools()
	if err != nil {
		return nil, err
	}
	return NewRegistry(defs...), nil
})

// Default returns the registry of every product tool. It panics if a tool
// schema cannot be built, which only happens when a schema struct is broken.
func Default() *Registry {
	r, err := defaultRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Validate checks input against the schema of the named tool.
func (r *Registry) Validate(name string, input json.RawMessage) error {
	d, ok := r.defs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return d.Validate(input)
}

// CreateRequest validates a model-emitted invocation and wraps it in a
// tool_use block carrying the typed request payload.
func (r *Registry) CreateRequest(name, id string, input json.RawMessage) (*content.ToolUse, error) {
	d, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := d.Validate(input); err != nil {
		return nil, err
	}
	payload, err := d.build(input)
	if err != nil {
		return nil, err
	}
	return &content.ToolUse{
		ID:      id,
		Name:    name,
		Input:   input,
		Payload: payload,
	}, nil
}

// MCPTools returns the schemas of the named tools, or of every tool when no
// name is given.
func (r *Registry) MCPTools(names ...string) ([]mcptypes.Tool, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	out := make([]mcptypes.Tool, 0, len(names))
	for _, name := range names {
		d, ok := r.defs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
		}
		t, err := d.MCPTool()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// DecodeRequest implements content.PayloadDecoder. Unknown tool types
// return a nil payload so the caller keeps the raw form.
func (r *Registry) DecodeRequest(toolType string, data []byte) (content.RequestPayload, error) {
	d, ok := r.defs[toolType]
	if !ok || d.decodeRequest == nil {
		return nil, nil
	}
	p, err := d.decodeRequest(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s request payload: %w", toolType, err)
	}
	return p, nil
}

// DecodeResponse implements content.PayloadDecoder.
func (r *Registry) DecodeResponse(toolType string, data []byte) (content.ResponsePayload, error) {
	dec, ok := r.common[toolType]
	if !ok {
		d, found := r.defs[toolType]
		if !found || d.decodeResponse == nil {
			return nil, nil
		}
		dec = d.decodeResponse
	}
	p, err := dec(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s response payload: %w", toolType, err)
	}
	return p, nil
}
