// Package conflict implements the Conflict Resolver (spec §4.7,
// component C7): classify a conflicted change, pick a resolution
// strategy, and execute it with a recovery point captured before
// every attempt.
package conflict

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hox/hox/internal/vcs"
)

// Side picks which half of a two-way conflict wins under PickSide.
type Side string

const (
	SideOurs   Side = "ours"
	SideTheirs Side = "theirs"
)

// StrategyKind is the closed set of resolution strategies (spec
// §4.7 "Strategise").
type StrategyKind int

const (
	StrategyJjFix StrategyKind = iota
	StrategyPickSide
	StrategySpawnAgent
	StrategyHumanReview
)

func (s StrategyKind) String() string {
	switch s {
	case StrategyJjFix:
		return "jj_fix"
	case StrategyPickSide:
		return "pick_side"
	case StrategySpawnAgent:
		return "spawn_agent"
	case StrategyHumanReview:
		return "human_review"
	default:
		return "unknown"
	}
}

// Strategy is one chosen resolution path plus whatever parameters it
// needs to execute.
type Strategy struct {
	Kind         StrategyKind
	Side         Side   // PickSide only
	Context      string // SpawnAgent: task context handed to the resolver agent
	Reason       string // HumanReview: why no automated strategy applied
	EscalationID string // HumanReview: ticket id operators can grep the log for
}

func (s Strategy) String() string {
	switch s.Kind {
	case StrategyPickSide:
		return fmt.Sprintf("pick_side(%s)", s.Side)
	case StrategySpawnAgent:
		return "spawn_agent"
	case StrategyHumanReview:
		return fmt.Sprintf("human_review(%s, ticket=%s)", s.Reason, s.EscalationID)
	default:
		return s.Kind.String()
	}
}

// newEscalationID mints a ticket id for a HumanReview strategy so
// operators can correlate a single escalation across log lines.
func newEscalationID() string {
	return uuid.New().String()
}

// ConflictInfo is the result of analysing one conflicted change (spec
// §4.7 "Analyse").
type ConflictInfo struct {
	ChangeID         vcs.ChangeID
	Files            []string
	IsFormattingOnly bool
	// OriginAgent is the agent whose work introduced the conflicting
	// side, when known; used to prefer re-spawning the original agent
	// over a generic resolver agent for mutation conflicts.
	OriginAgent string
}

// ResolutionReport tallies a resolution run's outcome (spec §4.7
// "Execute": "Emit a ResolutionReport with counts").
type ResolutionReport struct {
	Total        int
	AutoResolved int
	AgentResolved int
	NeedsHuman   int
	Failed       int
}

func (r *ResolutionReport) record(kind StrategyKind, ok bool) {
	r.Total++
	if !ok {
		r.Failed++
		return
	}
	switch kind {
	case StrategyJjFix, StrategyPickSide:
		r.AutoResolved++
	case StrategySpawnAgent:
		r.AgentResolved++
	case StrategyHumanReview:
		r.NeedsHuman++
	}
}
