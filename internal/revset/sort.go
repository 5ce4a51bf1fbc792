package revset

import (
	"sort"

	"github.com/hox/hox/internal/metadata"
	"github.com/hox/hox/internal/vcs"
)

// SortByChangeID orders records by change-id ascending, the baseline
// determinism tie-break every query result applies (spec §4.3).
func SortByChangeID(records []vcs.Record) []vcs.Record {
	out := append([]vcs.Record(nil), records...)
	sort.Slice(out, func(i, j int) bool { return out[i].ChangeID < out[j].ChangeID })
	return out
}

var priorityRank = map[metadata.Priority]int{
	metadata.PriorityCritical: 0,
	metadata.PriorityHigh:     1,
	metadata.PriorityNormal:   2,
	metadata.PriorityLow:      3,
	metadata.PriorityUnspecified: 4,
}

// SortReady applies the ready-set tie-break of spec §4.3: change-id
// ascending first, then re-ranked by priority descending (critical
// first).
func SortReady(records []vcs.Record) []vcs.Record {
	out := SortByChangeID(records)
	sort.SliceStable(out, func(i, j int) bool {
		pi := priorityOf(out[i])
		pj := priorityOf(out[j])
		return priorityRank[pi] < priorityRank[pj]
	})
	return out
}

func priorityOf(r vcs.Record) metadata.Priority {
	meta := metadata.ParseAny(r.Description)
	if meta.Priority == nil {
		return metadata.PriorityUnspecified
	}
	return *meta.Priority
}
