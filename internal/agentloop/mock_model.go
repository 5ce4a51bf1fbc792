package agentloop

import "context"

// MockTransport is a scripted ModelTransport for tests: it returns
// the next queued response on each Call, repeating the last one once
// exhausted.
type MockTransport struct {
	Responses []ModelResponse
	calls     int
	Requests  []ModelRequest
}

func (m *MockTransport) Call(ctx context.Context, req ModelRequest) (ModelResponse, error) {
	m.Requests = append(m.Requests, req)
	if len(m.Responses) == 0 {
		return ModelResponse{}, nil
	}
	idx := m.calls
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.calls++
	return m.Responses[idx], nil
}

var _ ModelTransport = (*MockTransport)(nil)
