package content

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// BlockType is the persisted "type" discriminator of a content block.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ErrInvalidImage is returned for image blocks that carry both or neither of
// inline bytes and a remote URL.
var ErrInvalidImage = errors.New("image block must carry exactly one of inline bytes or a remote url")

// Block is one content block of a Turn: *Text, *Image, *ToolUse or *ToolResult.
type Block interface {
	BlockType() BlockType
}

// Text is a plain text block.
type Text struct {
	Text string
}

func (*Text) BlockType() BlockType { return BlockText }

func (t *Text) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type BlockType `json:"type"`
		Text string    `json:"text"`
	}{BlockText, t.Text})
}

// Image is an image referenced either by inline bytes or by a remote URL.
// The block owns Data exclusively.
type Image struct {
	Data    []byte
	URL     string
	Caption string
}

func (*Image) BlockType() BlockType { return BlockImage }

// Validate checks that exactly one image source is set.
func (i *Image) Validate() error {
	if (len(i.Data) == 0) == (i.URL == "") {
		return ErrInvalidImage
	}
	return nil
}

type imageJSON struct {
	Type     BlockType `json:"type"`
	Image    string    `json:"image,omitempty"`
	ImageURL string    `json:"imageUrl,omitempty"`
	Caption  string    `json:"caption,omitempty"`
}

func (i *Image) MarshalJSON() ([]byte, error) {
	if err := i.Validate(); err != nil {
		return nil, err
	}
	out := imageJSON{Type: BlockImage, ImageURL: i.URL, Caption: i.Caption}
	if len(i.Data) > 0 {
		out.Image = base64.StdEncoding.EncodeToString(i.Data)
	}
	return json.Marshal(out)
}

func (i *Image) UnmarshalJSON(data []byte) error {
	var in imageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	i.URL = in.ImageURL
	i.Caption = in.Caption
	i.Data = nil
	if in.Image != "" {
		raw, err := base64.StdEncoding.DecodeString(in.Image)
		if err != nil {
			return fmt.Errorf("invalid base64 image: %w", err)
		}
		i.Data = raw
	}
	return i.Validate()
}

// ToolUse is a tool call requested by the model. ID is unique within the
// conversation.
type ToolUse struct {
	ID      string
	Name    string
	Input   json.RawMessage
	Payload RequestPayload
}

func (*ToolUse) BlockType() BlockType { return BlockToolUse }

type toolUseJSON struct {
	ID       string          `json:"id"`
	Input    json.RawMessage `json:"input"`
	Name     string          `json:"name"`
	Type     BlockType       `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	ToolType string          `json:"fetchrLLMToolType"`
}

func (u *ToolUse) MarshalJSON() ([]byte, error) {
	payload, err := marshalPayload(u.Payload, u.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool_use %s payload: %w", u.ID, err)
	}
	return json.Marshal(toolUseJSON{
		ID:       u.ID,
		Input:    orEmptyObject(u.Input),
		Name:     u.Name,
		Type:     BlockToolUse,
		Payload:  payload,
		ToolType: u.toolType(),
	})
}

func (u *ToolUse) UnmarshalJSON(data []byte) error {
	var in toolUseJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	u.ID = in.ID
	u.Name = in.Name
	u.Input = in.Input
	raw := &RawRequest{}
	if len(in.Payload) > 0 && string(in.Payload) != "null" {
		if err := raw.UnmarshalJSON(in.Payload); err != nil {
			return fmt.Errorf("invalid tool_use payload: %w", err)
		}
	}
	if raw.Fields == nil {
		raw = NewRawRequest(in.ToolType)
	}
	u.Payload = raw
	return nil
}

func (u *ToolUse) toolType() string {
	if u.Payload != nil && u.Payload.ToolType() != "" {
		return u.Payload.ToolType()
	}
	return u.Name
}

// ToolResult answers the ToolUse with ID ToolUseID. Content is the rendered
// result persisted alongside the payload for readers of the raw row.
type ToolResult struct {
	ToolUseID string
	IsError   bool
	Content   json.RawMessage
	Payload   ResponsePayload
}

func (*ToolResult) BlockType() BlockType { return BlockToolResult }

type toolResultJSON struct {
	ToolUseID string          `json:"tool_use_id"`
	IsError   bool            `json:"is_error"`
	Content   json.RawMessage `json:"content,omitempty"`
	Type      BlockType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

func (r *ToolResult) MarshalJSON() ([]byte, error) {
	payload, err := marshalPayload(r.Payload, "")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool_result %s payload: %w", r.ToolUseID, err)
	}
	return json.Marshal(toolResultJSON{
		ToolUseID: r.ToolUseID,
		IsError:   r.IsError,
		Content:   r.Content,
		Type:      BlockToolResult,
		Payload:   payload,
	})
}

func (r *ToolResult) UnmarshalJSON(data []byte) error {
	var in toolResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.ToolUseID = in.ToolUseID
	r.IsError = in.IsError
	r.Content = in.Content
	raw := &RawResponse{}
	if len(in.Payload) > 0 && string(in.Payload) != "null" {
		if err := raw.UnmarshalJSON(in.Payload); err != nil {
			return fmt.Errorf("invalid tool_result payload: %w", err)
		}
	}
	r.Payload = raw
	return nil
}

// NewToolResult wraps payload in a tool_result block for toolUseID. The
// persisted content is the payload's Anthropic rendering.
func NewToolResult(toolUseID string, payload ResponsePayload) *ToolResult {
	out := payload.Render(ProviderAnthropic)
	content, _ := json.Marshal(out.Text)
	return &ToolResult{
		ToolUseID: toolUseID,
		IsError:   out.IsError,
		Content:   content,
		Payload:   payload,
	}
}

func marshalPayload(p any, toolType string) (json.RawMessage, error) {
	if p == nil {
		if toolType == "" {
			return json.RawMessage("null"), nil
		}
		return json.Marshal(map[string]string{"fetchrLLMToolType": toolType})
	}
	return json.Marshal(p)
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}

func decodeBlock(data []byte) (Block, error) {
	// A bare string inside a content array is shorthand for a text block.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return &Text{Text: s}, nil
	}

	var head struct {
		Type BlockType `json:"type"`
		Text *string   `json:"text"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid content block: %w", err)
	}

	switch head.Type {
	case BlockText:
		if head.Text == nil {
			return nil, fmt.Errorf("text block without text")
		}
		return &Text{Text: *head.Text}, nil
	case BlockImage:
		img := &Image{}
		if err := img.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return img, nil
	case BlockToolUse:
		use := &ToolUse{}
		if err := use.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return use, nil
	case BlockToolResult:
		res := &ToolResult{}
		if err := res.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		return res, nil
	default:
		return nil, fmt.Errorf("unknown content block type %q", head.Type)
	}
}
