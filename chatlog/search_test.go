package chatlog

import (
	"context"
	"strings"
	"testing"

	"fetchr/content"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchTurns(t *testing.T) {
	turns := []content.Turn{
		content.TextTurn(content.RoleSystem, "You find linen shirts."),
		user("Do you have LINEN shirts?"),
		assistant("Here are three linen options."),
		user("thanks"),
	}

	tests := []struct {
		name    string
		query   string
		indexes []int
	}{
		{"case insensitive, skips system", "linen", []int{1, 2}},
		{"no match", "wool", nil},
		{"empty query", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := SearchTurns("c", turns, tt.query)
			var got []int
			for _, m := range matches {
				assert.Equal(t, "c", m.ChatID)
				got = append(got, m.TurnIndex)
			}
			assert.Equal(t, tt.indexes, got)
		})
	}
}

func TestSearchPreviewIsTruncatedOnRunes(t *testing.T) {
	long := strings.Repeat("é", 150)
	matches := SearchTurns("c", []content.Turn{user(long)}, "é")
	require.Len(t, matches, 1)
	assert.Equal(t, strings.Repeat("é", 100)+"...", matches[0].Preview)
}

func TestServiceSearch(t *testing.T) {
	svc, rows, _ := newTestService()
	rows.rows["a"] = []byte(`[{"role":"user","content":"red sneakers"}]`)
	rows.rows["b"] = []byte(`[{"role":"user","content":"blue sneakers"},{"role":"assistant","content":"found red ones too"}]`)

	matches, err := svc.Search(context.Background(), []string{"a", "b"}, "red")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ChatID)
	assert.Equal(t, "b", matches[1].ChatID)
	assert.Equal(t, content.RoleAssistant, matches[1].Role)
}
