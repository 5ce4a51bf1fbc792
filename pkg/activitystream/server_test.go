package activitystream

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRouter_StreamsPublishedSnapshotAsSSE(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(NewRouter(hub))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	// Give the handler a moment to register its subscription before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Subscribers() == 0 {
		t.Fatal("handler never subscribed to the hub")
	}

	hub.PublishState(Snapshot{OrchestratorState: "Planning"})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for i := 0; i < 2; i++ {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading SSE frame: %v", err)
		}
		lines = append(lines, strings.TrimRight(line, "\n"))
	}

	if lines[0] != "event: state" {
		t.Fatalf("expected event: state, got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "data: ") || !strings.Contains(lines[1], "Planning") {
		t.Fatalf("expected data line containing the snapshot, got %q", lines[1])
	}
}
