package chatlog

import (
	"context"
	"strings"

	"fetchr/content"
)

const previewLength = 100

// Match is one turn whose text contains a search query.
type Match struct {
	ChatID    string
	TurnIndex int
	Role      content.Role
	Preview   string
}

// SearchTurns returns the non-system turns whose text contains query,
// ignoring case.
func SearchTurns(chatID string, turns []content.Turn, query string) []Match {
	if query == "" {
		return []Match{}
	}

	queryLower := strings.ToLower(query)
	var matches []Match
	for i, turn := range turns {
		if turn.Role == content.RoleSystem {
			continue
		}
		text := turn.PlainText()
		if !strings.Contains(strings.ToLower(text), queryLower) {
			continue
		}
		matches = append(matches, Match{
			ChatID:    chatID,
			TurnIndex: i,
			Role:      turn.Role,
			Preview:   preview(text),
		})
	}
	return matches
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}

// Search loads the chats ids and searches each of them.
func (s *Service) Search(ctx context.Context, ids []string, query string) ([]Match, error) {
	if query == "" {
		return []Match{}, nil
	}
	logs, err := s.LoadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	var matches []Match
	for _, l := range logs {
		matches = append(matches, SearchTurns(l.ID(), l.Turns(), query)...)
	}
	return matches, nil
}
