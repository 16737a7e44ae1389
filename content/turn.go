// Package content defines the provider-agnostic conversation model.
//
// A conversation is an ordered list of Turns. Each Turn holds either plain
// text or an ordered list of Blocks (text, image, tool_use, tool_result).
// The JSON produced here is the persisted row format, so field names and
// shapes must stay stable for previously stored conversations.
//
// Tool blocks carry typed payloads. Decoding a Turn on its own yields raw
// payloads; DecodeTurns or Resolve upgrades them through a PayloadDecoder:
//
//	turns, err := content.DecodeTurns(row.Turns, registry)
//	if err != nil {
//	    return err
//	}
package content

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role is the author of a Turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one role-tagged unit of conversation.
//
// When Blocks is nil the turn has string content held in Text. A string turn
// is shorthand for a single text block.
type Turn struct {
	Role      Role
	Text      string
	Blocks    []Block
	Timestamp *time.Time
}

// TextTurn creates a string-content turn.
func TextTurn(role Role, text string) Turn {
	return Turn{Role: role, Text: text}
}

// BlockTurn creates a turn with array content.
func BlockTurn(role Role, blocks ...Block) Turn {
	if blocks == nil {
		blocks = []Block{}
	}
	return Turn{Role: role, Blocks: blocks}
}

// IsString reports whether the turn has string content.
func (t Turn) IsString() bool {
	return t.Blocks == nil
}

// ContentBlocks returns the turn's blocks, expanding string content into a
// single text block.
func (t Turn) ContentBlocks() []Block {
	if t.IsString() {
		return []Block{&Text{Text: t.Text}}
	}
	return t.Blocks
}

// ToolUses returns the tool_use blocks of the turn in order.
func (t Turn) ToolUses() []*ToolUse {
	var uses []*ToolUse
	for _, b := range t.Blocks {
		if u, ok := b.(*ToolUse); ok {
			uses = append(uses, u)
		}
	}
	return uses
}

// ToolResults returns the tool_result blocks of the turn in order.
func (t Turn) ToolResults() []*ToolResult {
	var results []*ToolResult
	for _, b := range t.Blocks {
		if r, ok := b.(*ToolResult); ok {
			results = append(results, r)
		}
	}
	return results
}

// PlainText concatenates the text blocks of the turn.
func (t Turn) PlainText() string {
	if t.IsString() {
		return t.Text
	}
	var s string
	for _, b := range t.Blocks {
		if txt, ok := b.(*Text); ok {
			if s != "" {
				s += "\n"
			}
			s += txt.Text
		}
	}
	return s
}

type turnJSON struct {
	Role      Role            `json:"role"`
	Content   json.RawMessage `json:"content"`
	Timestamp *int64          `json:"timestamp,omitempty"`
}

func (t Turn) MarshalJSON() ([]byte, error) {
	var (
		content []byte
		err     error
	)
	if t.IsString() {
		content, err = json.Marshal(t.Text)
	} else {
		content, err = json.Marshal(t.Blocks)
	}
	if err != nil {
		return nil, err
	}
	out := turnJSON{Role: t.Role, Content: content}
	if t.Timestamp != nil {
		ms := t.Timestamp.UnixMilli()
		out.Timestamp = &ms
	}
	return json.Marshal(out)
}

func (t *Turn) UnmarshalJSON(data []byte) error {
	var in turnJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return fmt.Errorf("invalid turn role %q", in.Role)
	}

	*t = Turn{Role: in.Role}
	if in.Timestamp != nil {
		ts := time.UnixMilli(*in.Timestamp)
		t.Timestamp = &ts
	}

	var text string
	if err := json.Unmarshal(in.Content, &text); err == nil {
		t.Text = text
		return nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(in.Content, &raws); err != nil {
		return fmt.Errorf("turn content must be a string or an array: %w", err)
	}
	t.Blocks = make([]Block, 0, len(raws))
	for i, raw := range raws {
		b, err := decodeBlock(raw)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		t.Blocks = append(t.Blocks, b)
	}
	return nil
}

// EncodeTurns serializes turns to the persisted JSON array.
func EncodeTurns(turns []Turn) ([]byte, error) {
	if turns == nil {
		turns = []Turn{}
	}
	return json.Marshal(turns)
}

// DecodeTurns parses a persisted JSON array and resolves payloads with dec.
// An empty input decodes to an empty conversation.
func DecodeTurns(data []byte, dec PayloadDecoder) ([]Turn, error) {
	if len(data) == 0 || string(data) == "null" {
		return []Turn{}, nil
	}
	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to decode turns: %w", err)
	}
	if dec == nil {
		return turns, nil
	}
	if err := Resolve(turns, dec); err != nil {
		return nil, err
	}
	return turns, nil
}

// Resolve replaces raw payloads in turns with typed payloads from dec. Raw
// payloads whose tool type dec does not know are left as they are.
func Resolve(turns []Turn, dec PayloadDecoder) error {
	for i := range turns {
		for _, b := range turns[i].Blocks {
			switch blk := b.(type) {
			case *ToolUse:
				raw, ok := blk.Payload.(*RawRequest)
				if !ok {
					continue
				}
				toolType := raw.ToolType()
				if toolType == "" {
					toolType = blk.Name
				}
				data, err := raw.MarshalJSON()
				if err != nil {
					return err
				}
				p, err := dec.DecodeRequest(toolType, data)
				if err != nil {
					return fmt.Errorf("tool_use %s: %w", blk.ID, err)
				}
				if p != nil {
					blk.Payload = p
				}
			case *ToolResult:
				raw, ok := blk.Payload.(*RawResponse)
				if !ok {
					continue
				}
				data, err := raw.MarshalJSON()
				if err != nil {
					return err
				}
				p, err := dec.DecodeResponse(raw.ToolType(), data)
				if err != nil {
					return fmt.Errorf("tool_result %s: %w", blk.ToolUseID, err)
				}
				if p != nil {
					blk.Payload = p
				}
			}
		}
	}
	return nil
}

// CloneTurns deep copies turns through their JSON form, resolving payloads
// again with dec.
func CloneTurns(turns []Turn, dec PayloadDecoder) ([]Turn, error) {
	data, err := EncodeTurns(turns)
	if err != nil {
		return nil, err
	}
	return DecodeTurns(data, dec)
}
