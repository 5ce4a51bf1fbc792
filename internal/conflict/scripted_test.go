package conflict

import (
	"os"
	"path/filepath"
	"testing"
)

const testScript = `
package main

func Decide(changeID string, files []string, originAgent string) (string, string) {
	if len(files) == 1 && files[0] == "generated.pb.go" {
		return "pick_side_theirs", ""
	}
	return "", ""
}
`

func TestScriptedStrategy_EvaluatesDecideFunction(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "strategy.go")
	if err := os.WriteFile(path, []byte(testScript), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadScriptedStrategy(path)
	if err != nil {
		t.Fatalf("unexpected error loading scripted strategy: %v", err)
	}

	strategy, ok := s.Evaluate(ConflictInfo{ChangeID: "c1", Files: []string{"generated.pb.go"}})
	if !ok {
		t.Fatal("expected the script to opine on a generated-file conflict")
	}
	if strategy.Kind != StrategyPickSide || strategy.Side != SideTheirs {
		t.Fatalf("expected pick_side(theirs), got %+v", strategy)
	}

	_, ok = s.Evaluate(ConflictInfo{ChangeID: "c2", Files: []string{"main.go"}})
	if ok {
		t.Fatal("expected the script to defer on an unrecognised file")
	}
}
