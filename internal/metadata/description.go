package metadata

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hox/hox/internal/errkind"
	"github.com/hox/hox/internal/vcs"
)

// knownKeys is the recognised Key set of the description-embedded
// block, in the canonical order Render emits them (spec §4.2's
// "Per-change metadata encoding" list).
var knownKeys = []string{
	"Task", "Priority", "Status", "Agent", "Orchestrator",
	"MsgTo", "MsgType", "LoopIteration", "LoopMax",
}

func isKnownKey(k string) bool {
	for _, kk := range knownKeys {
		if kk == k {
			return true
		}
	}
	return false
}

// DescriptionProvider reads and writes HoxMetadata encoded as a
// structured block at the head of the change description (spec §4.2
// "Description-embedded").
type DescriptionProvider struct {
	gw vcs.Gateway
}

// NewDescriptionProvider returns a Provider backed by gw.
func NewDescriptionProvider(gw vcs.Gateway) *DescriptionProvider {
	return &DescriptionProvider{gw: gw}
}

func (p *DescriptionProvider) Read(ctx context.Context, id string) (HoxMetadata, error) {
	records, err := p.gw.Log(ctx, id, "")
	if err != nil {
		return HoxMetadata{}, err
	}
	if len(records) == 0 {
		return HoxMetadata{}, errkind.New(errkind.NoSuchID, "metadata.Read", nil)
	}
	return ParseDescription(records[0].Description), nil
}

func (p *DescriptionProvider) Write(ctx context.Context, id string, meta HoxMetadata) error {
	return p.gw.Describe(ctx, vcs.ChangeID(id), RenderDescription(meta))
}

// ParseDescription extracts a HoxMetadata block from the head of a
// change description. It tolerates a missing block, unknown keys, and
// reordered lines (spec §4.2 "Backward compatibility"): any prefix of
// contiguous `Key: value` lines is treated as the block, and parsing
// never fails — an unparseable head is simply treated as pure body
// text with an empty HoxMetadata.
func ParseDescription(desc string) HoxMetadata {
	lines := strings.Split(desc, "\n")

	var blockEnd int
	for blockEnd = 0; blockEnd < len(lines); blockEnd++ {
		if !isKeyValueLine(lines[blockEnd]) {
			break
		}
	}

	meta := HoxMetadata{Unknown: make(map[string]string)}
	for i := 0; i < blockEnd; i++ {
		key, value := splitKeyValue(lines[i])
		assign(&meta, key, value)
	}

	rest := lines[blockEnd:]
	// A single blank line separates the block from the body; consume
	// at most one so that a body that itself starts blank is preserved.
	if len(rest) > 0 && strings.TrimSpace(rest[0]) == "" {
		rest = rest[1:]
	}
	meta.Body = strings.Join(rest, "\n")

	if meta.IsEmpty() {
		// No recognisable block: treat the whole description as body,
		// exactly as before parsing was attempted.
		meta.Body = desc
	}
	return meta
}

func isKeyValueLine(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return false
	}
	key := strings.TrimSpace(line[:idx])
	if key == "" {
		return false
	}
	for _, r := range key {
		if !(r == '_' || r == '-' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9')) {
			return false
		}
	}
	return true
}

func splitKeyValue(line string) (string, string) {
	idx := strings.Index(line, ":")
	key := strings.TrimSpace(line[:idx])
	value := strings.TrimSpace(line[idx+1:])
	return key, value
}

func assign(meta *HoxMetadata, key, value string) {
	switch key {
	case "Task":
		meta.Task = strPtr(value)
	case "Priority":
		v := Priority(value)
		meta.Priority = &v
	case "Status":
		v := Status(value)
		meta.Status = &v
	case "Agent":
		meta.Agent = strPtr(value)
	case "Orchestrator":
		meta.Orchestrator = strPtr(value)
	case "MsgTo":
		meta.MsgTo = strPtr(value)
	case "MsgType":
		v := MessageType(value)
		meta.MsgType = &v
	case "LoopIteration":
		if n, err := strconv.Atoi(value); err == nil {
			meta.LoopIteration = intPtr(n)
		} else {
			meta.Unknown[key] = value
		}
	case "LoopMax":
		if n, err := strconv.Atoi(value); err == nil {
			meta.LoopMaxIterations = intPtr(n)
		} else {
			meta.Unknown[key] = value
		}
	default:
		meta.Unknown[key] = value
	}
}

// RenderDescription serialises meta back into a description string:
// known fields in canonical order, then unknown keys sorted for
// determinism, a blank separator line, then the free-form body.
// Parsing Render's own output reproduces meta exactly (spec §4.2
// invariant: "reading then writing without modification leaves the
// change description byte-identical").
func RenderDescription(meta HoxMetadata) string {
	var lines []string

	add := func(key, value string) { lines = append(lines, fmt.Sprintf("%s: %s", key, value)) }

	if meta.Task != nil {
		add("Task", *meta.Task)
	}
	if meta.Priority != nil {
		add("Priority", string(*meta.Priority))
	}
	if meta.Status != nil {
		add("Status", string(*meta.Status))
	}
	if meta.Agent != nil {
		add("Agent", *meta.Agent)
	}
	if meta.Orchestrator != nil {
		add("Orchestrator", *meta.Orchestrator)
	}
	if meta.MsgTo != nil {
		add("MsgTo", *meta.MsgTo)
	}
	if meta.MsgType != nil {
		add("MsgType", string(*meta.MsgType))
	}
	if meta.LoopIteration != nil {
		add("LoopIteration", strconv.Itoa(*meta.LoopIteration))
	}
	if meta.LoopMaxIterations != nil {
		add("LoopMax", strconv.Itoa(*meta.LoopMaxIterations))
	}

	unknownKeys := make([]string, 0, len(meta.Unknown))
	for k := range meta.Unknown {
		unknownKeys = append(unknownKeys, k)
	}
	sort.Strings(unknownKeys)
	for _, k := range unknownKeys {
		add(k, meta.Unknown[k])
	}

	if len(lines) == 0 {
		return meta.Body
	}

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(meta.Body)
	return b.String()
}

var _ Provider = (*DescriptionProvider)(nil)
