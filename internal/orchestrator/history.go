package orchestrator

import (
	"strings"

	"github.com/MrWong99/glyphoxa/pkg/types"
)

// identityMarkers are the heuristic substrings spec.md §4.12.6 uses to
// identify messages likely to carry booking-critical identity fields, so
// pruning does not silently drop a captured name/phone/email.
var identityMarkers = []string{"name", "phone", "email", "@", "captured"}

// looksLikeIdentity reports whether msg's content matches the identity
// heuristic.
func looksLikeIdentity(msg types.Message) bool {
	lower := strings.ToLower(msg.Content)
	for _, m := range identityMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// pruneHistory leaves history untouched when it holds at most maxHistory
// messages; otherwise it keeps only system-role messages, identity-bearing
// messages (heuristic), and the most recent keepRecent messages, per
// spec.md §4.12.6. The pruned result can still be longer than maxHistory.
func pruneHistory(history []types.Message, maxHistory, keepRecent int) []types.Message {
	if len(history) <= maxHistory {
		return history
	}

	tailStart := len(history) - keepRecent
	if tailStart < 0 {
		tailStart = 0
	}

	kept := make([]types.Message, 0, len(history))
	for i, msg := range history {
		if msg.Role == "system" || looksLikeIdentity(msg) || i >= tailStart {
			kept = append(kept, msg)
		}
	}
	return kept
}
