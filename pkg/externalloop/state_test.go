package externalloop

import (
	"encoding/json"
	"testing"
)

func TestOutputState_JSONRoundTripIsFixedPoint(t *testing.T) {
	reason := "awaiting review"
	cases := []OutputState{
		{
			Iteration: 1, Success: true, Output: "did a thing",
			Context: Context{
				CurrentFocus: &reason,
				Progress:     []string{"wrote types.rs"},
				NextSteps:    []string{},
				Blockers:     []string{},
				FilesTouched: []string{"types.rs"},
				Decisions:    []string{},
				LoopIteration: 1,
			},
			FilesCreated:  []string{"types.rs"},
			FilesModified: []string{},
			Usage:         Usage{InputTokens: 100, OutputTokens: 20},
			StopSignal:    StopNone,
		},
		{
			Iteration: 2, Success: true, Output: "[STOP]",
			Context:       Context{Progress: []string{}, NextSteps: []string{}, Blockers: []string{}, FilesTouched: []string{}, Decisions: []string{}, LoopIteration: 2},
			FilesCreated:  []string{},
			FilesModified: []string{},
			Usage:         Usage{InputTokens: 50, OutputTokens: 5},
			StopSignal:    StopLegacy,
		},
	}

	for _, want := range cases {
		data, err := json.Marshal(want)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var got OutputState
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		data2, err := json.Marshal(got)
		if err != nil {
			t.Fatalf("remarshal: %v", err)
		}
		if string(data) != string(data2) {
			t.Fatalf("marshal->unmarshal->marshal is not a fixed point:\n%s\nvs\n%s", data, data2)
		}
	}
}

func TestOutputState_StopSignalNoneMarshalsToNull(t *testing.T) {
	out := OutputState{Context: Context{Progress: []string{}, NextSteps: []string{}, Blockers: []string{}, FilesTouched: []string{}, Decisions: []string{}}, FilesCreated: []string{}, FilesModified: []string{}, StopSignal: StopNone}
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if v, ok := raw["stop_signal"]; !ok || v != nil {
		t.Fatalf("expected stop_signal to be JSON null, got %v (present=%v)", v, ok)
	}
}
