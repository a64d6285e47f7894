package rag

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docvault/docvault/internal/provider"
)

func TestWindowHistoryDropsSystemTurns(t *testing.T) {
	turns := []provider.Turn{
		{Role: provider.RoleSystem, Content: "system prompt"},
		{Role: provider.RoleUser, Content: "q1"},
		{Role: provider.RoleAssistant, Content: "a1"},
		{Role: provider.RoleSystem, Content: "mid-conversation system"},
		{Role: provider.RoleUser, Content: "q2"},
	}

	got := WindowHistory(turns, 5)
	require.Len(t, got, 3)
	for _, turn := range got {
		assert.NotEqual(t, provider.RoleSystem, turn.Role)
	}
}

func TestWindowHistoryKeepsLastTurnsInOrder(t *testing.T) {
	var turns []provider.Turn
	for i := 0; i < 10; i++ {
		turns = append(turns,
			provider.Turn{Role: provider.RoleUser, Content: fmt.Sprintf("q%d", i)},
			provider.Turn{Role: provider.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
		)
	}

	got := WindowHistory(turns, 3)
	require.Len(t, got, 6)

	// The most recent three exchanges, oldest first.
	assert.Equal(t, "q7", got[0].Content)
	assert.Equal(t, "a7", got[1].Content)
	assert.Equal(t, "a9", got[5].Content)
}

func TestWindowHistoryShorterThanWindow(t *testing.T) {
	turns := []provider.Turn{
		{Role: provider.RoleUser, Content: "q1"},
		{Role: provider.RoleAssistant, Content: "a1"},
	}

	got := WindowHistory(turns, 5)
	assert.Equal(t, turns, got)
}

func TestWindowHistoryEmpty(t *testing.T) {
	assert.Empty(t, WindowHistory(nil, 5))
	assert.Empty(t, WindowHistory([]provider.Turn{{Role: provider.RoleUser, Content: "q"}}, 0))
}
