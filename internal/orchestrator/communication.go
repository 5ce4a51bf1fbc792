package orchestrator

import (
	"context"
	"fmt"

	"github.com/hox/hox/internal/metadata"
	"github.com/hox/hox/internal/revset"
	"github.com/hox/hox/internal/vcs"
)

// Mailbox implements the orchestrator<->agent and orchestrator<->
// orchestrator message protocol of spec §4.6 "Communication
// protocol": messages are changes carrying msg_to/msg_type metadata,
// discovered via the revset layer's MessagesTo query.
type Mailbox struct {
	gw       vcs.Gateway
	meta     metadata.Provider
	queries  *revset.Queries
	selfID   string
}

// NewMailbox returns a Mailbox that sends as selfID (an agent or
// orchestrator identifier) and reads whatever metadata provider the
// caller configured.
func NewMailbox(gw vcs.Gateway, meta metadata.Provider, selfID string) *Mailbox {
	return &Mailbox{gw: gw, meta: meta, queries: revset.New(gw), selfID: selfID}
}

// Send creates a new empty change addressed to recipient (which may
// be an exact ID or a glob pattern, per spec §4.2 msg_to semantics)
// carrying body as its message text.
func (mb *Mailbox) Send(ctx context.Context, recipient string, kind metadata.MessageType, body string) (vcs.ChangeID, error) {
	id, err := mb.gw.NewChange(ctx, nil, "")
	if err != nil {
		return "", err
	}
	meta := metadata.HoxMetadata{Body: body}
	meta = meta.WithMsg(recipient, kind)
	if mb.selfID != "" {
		meta.Agent = &mb.selfID
	}
	if err := mb.meta.Write(ctx, string(id), meta); err != nil {
		return "", err
	}
	return id, nil
}

// Mutation sends a mutation-kind message: a request that the
// recipient integrate or react to a completed change.
func (mb *Mailbox) Mutation(ctx context.Context, recipient string, body string) (vcs.ChangeID, error) {
	return mb.Send(ctx, recipient, metadata.MsgTypeMutation, body)
}

// AlignRequest sends an align_request-kind message: a request that
// the recipient pause and reconcile state before proceeding (spec
// §4.6, used around integration and conflict resolution).
func (mb *Mailbox) AlignRequest(ctx context.Context, recipient string, body string) (vcs.ChangeID, error) {
	return mb.Send(ctx, recipient, metadata.MsgTypeAlignRequest, body)
}

// Inbox is one message addressed to the Mailbox's owner.
type Inbox struct {
	ChangeID vcs.ChangeID
	From     string
	Type     metadata.MessageType
	Body     string
}

// Poll returns every undelivered message addressed to recipient
// (usually mb.selfID), filtering the coarse revset match down to an
// exact glob match per spec §4.2.
func (mb *Mailbox) Poll(ctx context.Context, recipient string) ([]Inbox, error) {
	records, err := mb.queries.MessagesTo(ctx, recipient)
	if err != nil {
		return nil, err
	}

	var inbox []Inbox
	for _, r := range records {
		m := metadata.ParseAny(r.Description)
		if m.MsgTo == nil || !metadata.MatchesRecipient(*m.MsgTo, recipient) {
			continue
		}
		from := ""
		if m.Agent != nil {
			from = *m.Agent
		}
		typ := metadata.MsgTypeUnspecified
		if m.MsgType != nil {
			typ = *m.MsgType
		}
		inbox = append(inbox, Inbox{ChangeID: r.ChangeID, From: from, Type: typ, Body: m.Body})
	}
	return inbox, nil
}

// Acknowledge abandons a delivered message so it does not reappear
// in future polls; per spec §4.6 messages are
// consumed, not replayed.
func (mb *Mailbox) Acknowledge(ctx context.Context, id vcs.ChangeID) error {
	if err := mb.gw.Abandon(ctx, id); err != nil {
		return fmt.Errorf("acknowledge %s: %w", id, err)
	}
	return nil
}
