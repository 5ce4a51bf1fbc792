package agentloop

import "strings"

// DetectCompletion implements the stop-signal parsing of spec §4.5
// step 9: a legacy free-text marker or a structured promise tag.
func DetectCompletion(thinking string) bool {
	if strings.Contains(thinking, "[STOP]") || strings.Contains(thinking, "[DONE]") {
		return true
	}
	return strings.Contains(thinking, "<promise>COMPLETE</promise>")
}
