package metadata

import "github.com/gobwas/glob"

// MatchesRecipient implements the msg_to glob semantics of spec §4.2:
// exact matches match only that recipient; `*` matches within a
// segment; `/` is the hierarchy separator, so `O-A-*` matches
// `O-A-1`/`O-A-2` but not `O-B-1`, and `O-A-1/*` matches all of
// O-A-1's agents.
func MatchesRecipient(pattern, recipient string) bool {
	if pattern == recipient {
		return true
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return false
	}
	return g.Match(recipient)
}
