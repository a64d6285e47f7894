package rag

import "github.com/docvault/docvault/internal/provider"

// WindowHistory selects the most recent conversation turns for prompt
// inclusion: system turns are dropped (they are not part of the
// conversational back-and-forth), then the last 2×contextWindow turns are
// kept in chronological order. Pure function, no I/O.
func WindowHistory(turns []provider.Turn, contextWindow int) []provider.Turn {
	if contextWindow <= 0 {
		return nil
	}

	conversational := make([]provider.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role == provider.RoleSystem {
			continue
		}
		conversational = append(conversational, t)
	}

	limit := 2 * contextWindow
	if len(conversational) > limit {
		conversational = conversational[len(conversational)-limit:]
	}
	return conversational
}
