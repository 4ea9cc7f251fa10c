package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/teamail/teamail/internal/db"
)

// SnapshotServiceImpl implements SnapshotService on top of the SQLite
// snapshot store. It keeps the member/label state a thread had when it was
// shown to the user, so a later delta is applied against what the user saw
// rather than whatever the store holds by then.
type SnapshotServiceImpl struct {
	store        *db.SnapshotStore
	accountEmail string
	logger       *log.Logger // Optional - for debug logging
}

// NewSnapshotService creates a new snapshot service for one account
func NewSnapshotService(store *db.SnapshotStore, accountEmail string) *SnapshotServiceImpl {
	return &SnapshotServiceImpl{
		store:        store,
		accountEmail: accountEmail,
	}
}

// SetLogger sets the logger for debug output
func (s *SnapshotServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SaveSnapshot persists the observed thread snapshot
func (s *SnapshotServiceImpl) SaveSnapshot(ctx context.Context, snap *ThreadSnapshot) error {
	if snap == nil || strings.TrimSpace(snap.ThreadID) == "" {
		return fmt.Errorf("%w: nil or empty snapshot", ErrInvalidInput)
	}
	msgs := make([]db.SnapshotMessage, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		msgs = append(msgs, db.SnapshotMessage{MessageID: m.ID, LabelIDs: m.LabelIDs})
	}
	fetchedAt := snap.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}
	if err := s.store.SaveThreadSnapshot(ctx, s.accountEmail, snap.ThreadID, msgs, fetchedAt.Unix()); err != nil {
		return fmt.Errorf("failed to save snapshot for thread %s: %w", snap.ThreadID, err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot for a thread, if any
func (s *SnapshotServiceImpl) LoadSnapshot(ctx context.Context, threadID string) (*ThreadSnapshot, bool, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, false, fmt.Errorf("%w: threadID cannot be empty", ErrInvalidInput)
	}
	msgs, fetchedAt, ok, err := s.store.LoadThreadSnapshot(ctx, s.accountEmail, threadID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load snapshot for thread %s: %w", threadID, err)
	}
	if !ok {
		return nil, false, nil
	}
	snap := &ThreadSnapshot{ThreadID: threadID, FetchedAt: time.Unix(fetchedAt, 0)}
	for _, m := range msgs {
		snap.Messages = append(snap.Messages, MessageSnapshot{
			ID:       m.MessageID,
			ThreadID: threadID,
			LabelIDs: m.LabelIDs,
		})
	}
	return snap, true, nil
}

// DeleteSnapshot removes the stored snapshot for a thread
func (s *SnapshotServiceImpl) DeleteSnapshot(ctx context.Context, threadID string) error {
	if strings.TrimSpace(threadID) == "" {
		return fmt.Errorf("%w: threadID cannot be empty", ErrInvalidInput)
	}
	return s.store.DeleteThreadSnapshot(ctx, s.accountEmail, threadID)
}

// PruneSnapshots removes snapshots older than the given age
func (s *SnapshotServiceImpl) PruneSnapshots(ctx context.Context, olderThan time.Duration) (int64, error) {
	before := time.Now().Add(-olderThan).Unix()
	n, err := s.store.PruneSnapshots(ctx, s.accountEmail, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	if s.logger != nil && n > 0 {
		s.logger.Printf("pruned %d snapshot rows older than %s", n, olderThan)
	}
	return n, nil
}
