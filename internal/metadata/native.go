package metadata

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/hox/hox/internal/errkind"
	"github.com/hox/hox/internal/vcs"
)

// nativeTrailer is the single-line marker the native-field variant
// appends to a description. jj has no first-class metadata field
// store, so "native" here means a single, machine-only trailer line
// rather than the human-authored block the description-embedded
// variant parses — it must round-trip through VCS operations that
// don't know about it (spec §4.2 "Backward compatibility").
const nativeTrailer = "X-Hox-Meta:"

// nativePayload is the JSON shape stored after nativeTrailer. Pointer
// fields preserve the same present/absent distinction as HoxMetadata.
type nativePayload struct {
	Task              *string      `json:"task,omitempty"`
	Priority          *Priority    `json:"priority,omitempty"`
	Status            *Status      `json:"status,omitempty"`
	Agent             *string      `json:"agent,omitempty"`
	Orchestrator      *string      `json:"orchestrator,omitempty"`
	MsgTo             *string      `json:"msg_to,omitempty"`
	MsgType           *MessageType `json:"msg_type,omitempty"`
	LoopIteration     *int         `json:"loop_iteration,omitempty"`
	LoopMaxIterations *int         `json:"loop_max_iterations,omitempty"`
	Unknown           map[string]string `json:"unknown,omitempty"`
}

// NativeProvider is the native-field variant of Provider (spec §4.2).
type NativeProvider struct {
	gw vcs.Gateway
}

// NewNativeProvider returns a Provider backed by gw.
func NewNativeProvider(gw vcs.Gateway) *NativeProvider {
	return &NativeProvider{gw: gw}
}

func (p *NativeProvider) Read(ctx context.Context, id string) (HoxMetadata, error) {
	records, err := p.gw.Log(ctx, id, "")
	if err != nil {
		return HoxMetadata{}, err
	}
	if len(records) == 0 {
		return HoxMetadata{}, errkind.New(errkind.NoSuchID, "metadata.Read", nil)
	}
	return parseNative(records[0].Description), nil
}

func (p *NativeProvider) Write(ctx context.Context, id string, meta HoxMetadata) error {
	current, err := p.gw.Log(ctx, id, "")
	if err != nil {
		return err
	}
	body := ""
	if len(current) > 0 {
		body = stripNativeTrailer(current[0].Description)
	}
	return p.gw.Describe(ctx, vcs.ChangeID(id), renderNative(body, meta))
}

// ParseAny tries the description-embedded block first and, only if
// that yields no metadata, reads a native trailer, so that callers that don't know
// which backend stamped a change (e.g. the revset layer's priority
// tie-break) can still recover its metadata.
func ParseAny(desc string) HoxMetadata {
	meta := ParseDescription(desc)
	if !meta.IsEmpty() {
		return meta
	}
	return parseNative(desc)
}

func parseNative(desc string) HoxMetadata {
	lines := strings.Split(desc, "\n")
	meta := HoxMetadata{Unknown: make(map[string]string)}

	var bodyLines []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, nativeTrailer) {
			raw := strings.TrimSpace(strings.TrimPrefix(trimmed, nativeTrailer))
			var payload nativePayload
			if err := json.Unmarshal([]byte(raw), &payload); err == nil {
				meta.Task = payload.Task
				meta.Priority = payload.Priority
				meta.Status = payload.Status
				meta.Agent = payload.Agent
				meta.Orchestrator = payload.Orchestrator
				meta.MsgTo = payload.MsgTo
				meta.MsgType = payload.MsgType
				meta.LoopIteration = payload.LoopIteration
				meta.LoopMaxIterations = payload.LoopMaxIterations
				if payload.Unknown != nil {
					meta.Unknown = payload.Unknown
				}
			}
			// A malformed trailer is dropped rather than surfaced as an
			// error: reading must never fail on a hand-edited description.
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	meta.Body = strings.TrimRight(strings.Join(bodyLines, "\n"), "\n")
	return meta
}

func stripNativeTrailer(desc string) string {
	var kept []string
	for _, line := range strings.Split(desc, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), nativeTrailer) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimRight(strings.Join(kept, "\n"), "\n")
}

func renderNative(body string, meta HoxMetadata) string {
	payload := nativePayload{
		Task: meta.Task, Priority: meta.Priority, Status: meta.Status,
		Agent: meta.Agent, Orchestrator: meta.Orchestrator, MsgTo: meta.MsgTo,
		MsgType: meta.MsgType, LoopIteration: meta.LoopIteration,
		LoopMaxIterations: meta.LoopMaxIterations,
	}
	if len(meta.Unknown) > 0 {
		payload.Unknown = meta.Unknown
	}
	encoded, _ := json.Marshal(payload)

	var b strings.Builder
	b.WriteString(body)
	if body != "" {
		b.WriteByte('\n')
	}
	b.WriteString(nativeTrailer)
	b.WriteByte(' ')
	b.Write(encoded)
	return b.String()
}

var _ Provider = (*NativeProvider)(nil)
