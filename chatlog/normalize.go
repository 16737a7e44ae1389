package chatlog

import (
	"fetchr/content"
	"fetchr/tools"

	"go.uber.org/zap"
)

// placeholderText is the user turn appended so a conversation never ends on
// the model's own turn.
const placeholderText = "."

// Normalize repairs turns into a shape every provider accepts. It does not
// modify its input. The result satisfies:
//
//   - every tool_use is immediately followed by exactly one tool_result with
//     the same id, synthesized when the conversation was interrupted;
//   - every turn holds at most one block;
//   - tool results are always attributed to the user;
//   - the last turn is never an assistant turn.
//
// Normalize(Normalize(t)) equals Normalize(t).
func Normalize(turns []content.Turn, logger *zap.SugaredLogger) []content.Turn {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	endsOnAssistant := len(turns) > 0 && turns[len(turns)-1].Role == content.RoleAssistant

	repaired := synthesizeMissingResults(turns)
	flat := flatten(repaired)
	body, orphans := reorder(flat, logger)

	if endsOnAssistant || (len(body) > 0 && body[len(body)-1].Role == content.RoleAssistant) {
		body = append(body, content.TextTurn(content.RoleUser, placeholderText))
	}
	return append(body, orphans...)
}

// synthesizeMissingResults inserts an interrupted result right after each
// turn holding tool calls that were never answered anywhere in the log.
func synthesizeMissingResults(turns []content.Turn) []content.Turn {
	answered := make(map[string]bool)
	for _, t := range turns {
		for _, r := range t.ToolResults() {
			answered[r.ToolUseID] = true
		}
	}

	out := make([]content.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, t)

		var missing []content.Block
		for _, u := range t.ToolUses() {
			if answered[u.ID] {
				continue
			}
			answered[u.ID] = true
			missing = append(missing, content.NewToolResult(u.ID, tools.InterruptedResponse(u.Name)))
		}
		if len(missing) > 0 {
			out = append(out, content.BlockTurn(content.RoleUser, missing...))
		}
	}
	return out
}

// flatten splits multi-block turns into one turn per block.
func flatten(turns []content.Turn) []content.Turn {
	out := make([]content.Turn, 0, len(turns))
	for _, t := range turns {
		if t.IsString() || len(t.Blocks) == 0 {
			out = append(out, t)
			continue
		}
		for _, b := range t.Blocks {
			role := t.Role
			if _, ok := b.(*content.ToolResult); ok {
				role = content.RoleUser
			}
			out = append(out, content.Turn{
				Role:      role,
				Blocks:    []content.Block{b},
				Timestamp: t.Timestamp,
			})
		}
	}
	return out
}

// reorder moves every result turn right behind the turn of its request.
// Results that match no request are returned separately as orphans.
func reorder(turns []content.Turn, logger *zap.SugaredLogger) (body, orphans []content.Turn) {
	results := make(map[string]content.Turn)
	var order []string
	for _, t := range turns {
		r := singleResult(t)
		if r == nil {
			continue
		}
		if _, dup := results[r.ToolUseID]; dup {
			logger.Warnw("Dropping duplicate tool result", "toolUseID", r.ToolUseID)
		} else {
			order = append(order, r.ToolUseID)
		}
		results[r.ToolUseID] = t
	}

	body = make([]content.Turn, 0, len(turns))
	for _, t := range turns {
		if singleResult(t) != nil {
			continue
		}
		body = append(body, t)
		if u := singleUse(t); u != nil {
			if res, ok := results[u.ID]; ok {
				body = append(body, res)
				delete(results, u.ID)
			}
		}
	}

	for _, id := range order {
		if res, ok := results[id]; ok {
			logger.Warnw("Tool result has no matching tool use, appending at end", "toolUseID", id)
			orphans = append(orphans, res)
		}
	}
	return body, orphans
}

func singleResult(t content.Turn) *content.ToolResult {
	if len(t.Blocks) != 1 {
		return nil
	}
	r, _ := t.Blocks[0].(*content.ToolResult)
	return r
}

func singleUse(t content.Turn) *content.ToolUse {
	if len(t.Blocks) != 1 {
		return nil
	}
	u, _ := t.Blocks[0].(*content.ToolUse)
	return u
}
