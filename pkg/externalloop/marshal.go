package externalloop

import "encoding/json"

// MarshalJSON renders StopNone as JSON null, matching spec §6's exact
// interchange shape ("stop_signal: null | ..."), rather than the
// empty string encoding/json would otherwise produce for a bare
// string type.
func (s StopSignal) MarshalJSON() ([]byte, error) {
	if s == StopNone {
		return []byte("null"), nil
	}
	return json.Marshal(string(s))
}

// UnmarshalJSON accepts JSON null (mapped to StopNone) or any string value.
func (s *StopSignal) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = StopNone
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = StopSignal(str)
	return nil
}
