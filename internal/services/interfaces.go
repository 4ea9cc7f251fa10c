package services

import (
	"context"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"
)

// MailStore is the narrow remote surface the core services depend on.
// internal/gmail.Client implements it; tests substitute fakes.
type MailStore interface {
	// ListThreads returns one page of thread summaries matching a query
	ListThreads(ctx context.Context, query string, maxResults int64, pageToken string) ([]*gmailapi.Thread, string, error)
	// FetchThreadMembers returns the thread's current member messages with
	// ids and label ids only (minimal format)
	FetchThreadMembers(ctx context.Context, threadID string) ([]*gmailapi.Message, error)
	// GetMessage fetches a single message with display metadata headers
	GetMessage(ctx context.Context, messageID string) (*gmailapi.Message, error)
	// BatchModifyMessages applies a label delta to an explicit id list
	BatchModifyMessages(ctx context.Context, messageIDs, addLabelIDs, removeLabelIDs []string) error
	// ModifyThread applies a label delta to all current members of a thread
	ModifyThread(ctx context.Context, threadID string, addLabelIDs, removeLabelIDs []string) error
	// ListLabels returns all of the account's labels
	ListLabels(ctx context.Context) ([]*gmailapi.Label, error)
	// CreateLabel creates a label; hidden controls list visibility
	CreateLabel(ctx context.Context, name string, hidden bool) (*gmailapi.Label, error)
}

// MessageSnapshot is a point-in-time view of one thread member: its id and
// the label ids it carried when fetched. It may be stale by the time it is
// used; the reconciler is built around that.
type MessageSnapshot struct {
	ID       string
	ThreadID string
	LabelIDs []string
}

// HasLabel reports whether the snapshot carried the given label id
func (m MessageSnapshot) HasLabel(labelID string) bool {
	for _, id := range m.LabelIDs {
		if id == labelID {
			return true
		}
	}
	return false
}

// ThreadSnapshot is a point-in-time view of a thread's membership
type ThreadSnapshot struct {
	ThreadID  string
	Messages  []MessageSnapshot
	FetchedAt time.Time
}

// MessageIDs returns the member ids in observed order
func (t *ThreadSnapshot) MessageIDs() []string {
	ids := make([]string, 0, len(t.Messages))
	for _, m := range t.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

// HasMessagesInInbox reports whether any member still carries INBOX
func (t *ThreadSnapshot) HasMessagesInInbox() bool {
	for _, m := range t.Messages {
		if m.HasLabel(InboxLabelID) {
			return true
		}
	}
	return false
}

// SnapshotFromMessages builds a ThreadSnapshot from minimal-format messages
func SnapshotFromMessages(threadID string, msgs []*gmailapi.Message, fetchedAt time.Time) *ThreadSnapshot {
	snap := &ThreadSnapshot{ThreadID: threadID, FetchedAt: fetchedAt}
	for _, m := range msgs {
		snap.Messages = append(snap.Messages, MessageSnapshot{
			ID:       m.Id,
			ThreadID: threadID,
			LabelIDs: m.LabelIds,
		})
	}
	return snap
}

// LabelDirectory handles hierarchical label name/id resolution
type LabelDirectory interface {
	// Init bulk-fetches all existing labels into the directory
	Init(ctx context.Context) error
	// GetOrCreate resolves a hierarchical label name, creating every missing
	// ancestor prefix remotely before the leaf
	GetOrCreate(ctx context.Context, name string) (*gmailapi.Label, error)
	// ByName returns an already-resolved label without a remote call
	ByName(name string) (*gmailapi.Label, bool)
	// ByID returns an already-resolved label without a remote call
	ByID(id string) (*gmailapi.Label, bool)
	// Labels returns all resolved labels sorted by name
	Labels() []*gmailapi.Label
}

// ThreadReconciler applies label deltas to threads while tolerating the
// store's eventual consistency
type ThreadReconciler interface {
	// ApplyDelta mutates the known messages, verifies the thread state and
	// widens to the whole thread only when safe and necessary
	ApplyDelta(ctx context.Context, threadID string, known []MessageSnapshot, addLabelIDs, removeLabelIDs []string) error
	// Archive removes INBOX from the messages' thread
	Archive(ctx context.Context, known []MessageSnapshot) error
	// Keep applies the directory-resolved keep label to the messages' thread
	Keep(ctx context.Context, known []MessageSnapshot) error
}

// SnapshotService persists observed thread snapshots for the session
type SnapshotService interface {
	SaveSnapshot(ctx context.Context, snap *ThreadSnapshot) error
	LoadSnapshot(ctx context.Context, threadID string) (*ThreadSnapshot, bool, error)
	DeleteSnapshot(ctx context.Context, threadID string) error
	PruneSnapshots(ctx context.Context, olderThan time.Duration) (int64, error)
}

// UndoActionType represents the kind of undoable action
type UndoActionType string

const (
	UndoActionLabelDelta UndoActionType = "label_delta"
	UndoActionArchive    UndoActionType = "archive"
	UndoActionKeep       UndoActionType = "keep"
)

// UndoableAction records an applied label delta for potential undo
type UndoableAction struct {
	ID              string
	Type            UndoActionType
	ThreadID        string
	MessageIDs      []string
	AddedLabelIDs   []string
	RemovedLabelIDs []string
	// Widened marks that the delta was additionally applied thread-wide
	Widened     bool
	Description string
	Timestamp   time.Time
}

// UndoResult contains the result of an undo operation
type UndoResult struct {
	Success      bool
	Description  string
	MessageCount int
	Errors       []string
}

// UndoService provides single-level undo of applied label deltas
type UndoService interface {
	RecordAction(ctx context.Context, action *UndoableAction) error
	UndoLastAction(ctx context.Context) (*UndoResult, error)
	HasUndoableAction() bool
	GetUndoDescription() string
	ClearUndoHistory()
}
