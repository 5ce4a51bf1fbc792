package conflict

import (
	"fmt"
	"os"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/hox/hox/internal/activitylog"
)

// wrapAsMain ensures snippets that forgot a package clause still
// evaluate; a snippet that already declares package main is used
// as-is.
func wrapAsMain(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	return "package main\n\n" + code
}

// ScriptedStrategy evaluates a user-supplied Go snippet in-process to
// decide a resolution strategy for conflicts that don't fit the
// built-in rules (spec §4.7; loaded from `hox run --conflict-script`). The
// snippet must define a function:
//
//	func Decide(changeID string, files []string, originAgent string) (kind string, param string)
//
// where kind is one of "jj_fix", "pick_side_ours", "pick_side_theirs",
// "spawn_agent", "human_review", and param carries the HumanReview
// reason or SpawnAgent context, as applicable. Returning an empty
// kind means "defer to the built-in strategy order".
type ScriptedStrategy struct {
	decide func(changeID string, files []string, originAgent string) (string, string)
}

// LoadScriptedStrategy compiles the snippet at path using an in-process
// yaegi interpreter and binds its Decide function.
func LoadScriptedStrategy(path string) (*ScriptedStrategy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conflict: reading scripted strategy %s: %w", path, err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("conflict: loading stdlib symbols: %w", err)
	}
	if _, err := i.Eval(wrapAsMain(string(src))); err != nil {
		return nil, fmt.Errorf("conflict: evaluating scripted strategy %s: %w", path, err)
	}

	v, err := i.Eval("main.Decide")
	if err != nil {
		return nil, fmt.Errorf("conflict: scripted strategy %s has no Decide function: %w", path, err)
	}
	fn, ok := v.Interface().(func(string, []string, string) (string, string))
	if !ok {
		return nil, fmt.Errorf("conflict: scripted strategy %s's Decide has the wrong signature", path)
	}
	return &ScriptedStrategy{decide: fn}, nil
}

// Evaluate calls the scripted Decide function for info and translates
// its result into a Strategy. ok is false when the script declined to
// opine (empty kind) or when it panicked, in which case the caller
// should fall through to the built-in strategy order — a scripted
// strategy is an enrichment, never a single point of failure.
func (s *ScriptedStrategy) Evaluate(info ConflictInfo) (strategy Strategy, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			activitylog.Warn(activitylog.CategoryConflict, "scripted strategy panicked on %s: %v", info.ChangeID, r)
			ok = false
		}
	}()

	kind, param := s.decide(string(info.ChangeID), info.Files, info.OriginAgent)
	switch kind {
	case "jj_fix":
		return Strategy{Kind: StrategyJjFix}, true
	case "pick_side_ours":
		return Strategy{Kind: StrategyPickSide, Side: SideOurs}, true
	case "pick_side_theirs":
		return Strategy{Kind: StrategyPickSide, Side: SideTheirs}, true
	case "spawn_agent":
		return Strategy{Kind: StrategySpawnAgent, Context: param}, true
	case "human_review":
		return Strategy{Kind: StrategyHumanReview, Reason: param}, true
	default:
		return Strategy{}, false
	}
}
