// Package metadata implements the Metadata Provider (spec §4.2,
// component C2): a polymorphic read/write capability for the Hox
// attributes attached to a change, backed either by a structured
// block embedded in the change description or by native commit
// fields. Both variants satisfy the same Provider interface.
package metadata

// Status is the closed set of task/change lifecycle states a
// HoxMetadata block may carry (spec §3: `status ∈ {open, in_progress,
// blocked, review, done, abandoned}`).
type Status string

const (
	StatusUnspecified Status = ""
	StatusOpen        Status = "open"
	StatusInProgress  Status = "in_progress"
	StatusBlocked     Status = "blocked"
	StatusReview      Status = "review"
	StatusDone        Status = "done"
	StatusAbandoned   Status = "abandoned"
)

// Priority is the closed set of task priorities.
type Priority string

const (
	PriorityUnspecified Priority = ""
	PriorityLow         Priority = "low"
	PriorityNormal      Priority = "normal"
	PriorityHigh        Priority = "high"
	PriorityCritical    Priority = "critical"
)

// MessageType is the closed set of message kinds a change can carry
// (spec §3: "Message").
type MessageType string

const (
	MsgTypeUnspecified  MessageType = ""
	MsgTypeMutation     MessageType = "mutation"
	MsgTypeInfo         MessageType = "info"
	MsgTypeAlignRequest MessageType = "align_request"
)

// HoxMetadata is the attribute set Hox attaches to a change. Every
// field is a pointer so that "absent" and "zero value" are distinct,
// per spec §4.2: "the absence of a field is semantically distinct
// from a default."
type HoxMetadata struct {
	Task              *string
	Priority          *Priority
	Status            *Status
	Agent             *string
	Orchestrator      *string
	MsgTo             *string
	MsgType           *MessageType
	LoopIteration     *int
	LoopMaxIterations *int

	// Unknown carries any recognised-key-shaped line the parser did not
	// understand, preserved verbatim for round-tripping (spec §4.2
	// "Backward compatibility").
	Unknown map[string]string

	// Body is the free-form text that follows the metadata block.
	Body string
}

// IsEmpty reports whether no known or unknown field is set.
func (m HoxMetadata) IsEmpty() bool {
	return m.Task == nil && m.Priority == nil && m.Status == nil && m.Agent == nil &&
		m.Orchestrator == nil && m.MsgTo == nil && m.MsgType == nil &&
		m.LoopIteration == nil && m.LoopMaxIterations == nil && len(m.Unknown) == 0
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

// WithStatus returns a copy of m with Status set, for callers that
// prefer a fluent construction style when stamping a change.
func (m HoxMetadata) WithStatus(s Status) HoxMetadata {
	m.Status = &s
	return m
}

// WithMsg returns a copy of m addressed to recipient with the given type.
func (m HoxMetadata) WithMsg(to string, typ MessageType) HoxMetadata {
	m.MsgTo = strPtr(to)
	m.MsgType = &typ
	return m
}
