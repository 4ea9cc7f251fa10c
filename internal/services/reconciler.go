package services

import (
	"context"
	"fmt"
	"log"
)

// InboxLabelID is the remote store's well-known inbox label id
const InboxLabelID = "INBOX"

// DefaultKeepLabel is the hierarchical name resolved by Keep when no other
// name is configured
const DefaultKeepLabel = "tm/keep"

// ThreadReconcilerImpl implements ThreadReconciler. It applies a label delta
// to the messages the caller knows about, then re-reads the thread and widens
// the mutation to the whole thread only when that is both necessary and safe.
//
// The remote store's thread-level view can diverge from its message-level
// view: a message may appear via a thread read but not via a message read.
// Mutating the known message ids is therefore not always enough, and blindly
// mutating the whole thread risks touching a message that arrived while the
// mutation was in flight. The two-step protocol below threads that needle.
//
// No state is kept between calls and calls on the same thread are not
// serialized against each other; two rapid deltas on one thread race exactly
// as they do against a second session.
type ThreadReconcilerImpl struct {
	store     MailStore
	directory LabelDirectory
	undo      UndoService // Optional - for recording undo actions
	keepLabel string
	logger    *log.Logger // Optional - for debug logging
}

// NewThreadReconciler creates a new reconciler. keepLabel is the hierarchical
// label name used by Keep; empty selects DefaultKeepLabel.
func NewThreadReconciler(store MailStore, directory LabelDirectory, keepLabel string) *ThreadReconcilerImpl {
	if keepLabel == "" {
		keepLabel = DefaultKeepLabel
	}
	return &ThreadReconcilerImpl{
		store:     store,
		directory: directory,
		keepLabel: keepLabel,
	}
}

// SetUndoService sets the undo service for recording undo actions.
// This is called after initialization to avoid circular dependencies.
func (s *ThreadReconcilerImpl) SetUndoService(undo UndoService) {
	s.undo = undo
}

// SetLogger sets the logger for debug output
func (s *ThreadReconcilerImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// ApplyDelta applies the add/remove label sets to the known messages, then
// verifies the thread:
//
//  1. one batch mutation covering exactly the known ids;
//  2. re-fetch the thread's current members and labels;
//  3. members unknown to the caller mean new mail arrived mid-flight: never
//     widen, return success with the known subset mutated;
//  4. otherwise, if the observed label union shows the delta did not fully
//     take, issue one idempotent thread-wide mutation.
//
// Re-running the call with the same arguments converges to the same end
// state; both mutations are idempotent set operations.
func (s *ThreadReconcilerImpl) ApplyDelta(ctx context.Context, threadID string, known []MessageSnapshot, addLabelIDs, removeLabelIDs []string) error {
	return s.applyDelta(ctx, UndoActionLabelDelta, threadID, known, addLabelIDs, removeLabelIDs)
}

func (s *ThreadReconcilerImpl) applyDelta(ctx context.Context, actionType UndoActionType, threadID string, known []MessageSnapshot, addLabelIDs, removeLabelIDs []string) error {
	if threadID == "" {
		return fmt.Errorf("%w: threadID cannot be empty", ErrInvalidInput)
	}
	if len(known) == 0 {
		return fmt.Errorf("%w: no known messages provided", ErrInvalidInput)
	}
	if len(addLabelIDs) == 0 && len(removeLabelIDs) == 0 {
		return fmt.Errorf("%w: empty label delta", ErrInvalidInput)
	}

	knownIDs := make([]string, 0, len(known))
	knownSet := make(map[string]struct{}, len(known))
	for _, m := range known {
		if m.ID == "" {
			return fmt.Errorf("%w: known message without id", ErrInvalidInput)
		}
		knownIDs = append(knownIDs, m.ID)
		knownSet[m.ID] = struct{}{}
	}

	// Step 1: mutate exactly the known ids.
	if err := s.store.BatchModifyMessages(ctx, knownIDs, addLabelIDs, removeLabelIDs); err != nil {
		return fmt.Errorf("failed to modify messages: %w", err)
	}

	var action *UndoableAction
	if s.undo != nil {
		action = &UndoableAction{
			Type:            actionType,
			ThreadID:        threadID,
			MessageIDs:      knownIDs,
			AddedLabelIDs:   addLabelIDs,
			RemovedLabelIDs: removeLabelIDs,
			Description:     fmt.Sprintf("%s on %d message(s)", actionType, len(knownIDs)),
		}
		if err := s.undo.RecordAction(ctx, action); err != nil && s.logger != nil {
			s.logger.Printf("could not record undo action for thread %s: %v", threadID, err)
		}
	}

	// Step 2: re-read the thread. The step-1 mutation stands either way; a
	// fetch failure here only means verification did not run.
	fresh, err := s.store.FetchThreadMembers(ctx, threadID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}

	// Step 3: a member we did not know about arrived while the mutation was
	// in flight. Widening would mutate mail the user never triaged, so stop
	// here and accept the mixed state.
	for _, m := range fresh {
		if _, ok := knownSet[m.Id]; !ok {
			if s.logger != nil {
				s.logger.Printf("thread %s gained message %s mid-mutation, not widening", threadID, m.Id)
			}
			return nil
		}
	}

	// Step 4: check the delta took across the thread as observed.
	allLabels := make(map[string]struct{})
	for _, m := range fresh {
		for _, id := range m.LabelIds {
			allLabels[id] = struct{}{}
		}
	}
	if !needsWidening(allLabels, addLabelIDs, removeLabelIDs) {
		return nil
	}

	if s.logger != nil {
		s.logger.Printf("delta did not fully take on thread %s, widening", threadID)
	}
	if err := s.store.ModifyThread(ctx, threadID, addLabelIDs, removeLabelIDs); err != nil {
		// No rollback: the known-message mutation is kept.
		return fmt.Errorf("failed to widen modification to thread %s: %w", threadID, err)
	}
	if action != nil {
		action.Widened = true
		if err := s.undo.RecordAction(ctx, action); err != nil && s.logger != nil {
			s.logger.Printf("could not record widened undo action for thread %s: %v", threadID, err)
		}
	}
	return nil
}

func needsWidening(allLabels map[string]struct{}, addLabelIDs, removeLabelIDs []string) bool {
	for _, id := range addLabelIDs {
		if _, ok := allLabels[id]; !ok {
			return true
		}
	}
	for _, id := range removeLabelIDs {
		if _, ok := allLabels[id]; ok {
			return true
		}
	}
	return false
}

// Archive removes the inbox label from the messages' thread
func (s *ThreadReconcilerImpl) Archive(ctx context.Context, known []MessageSnapshot) error {
	threadID, err := commonThreadID(known)
	if err != nil {
		return err
	}
	return s.applyDelta(ctx, UndoActionArchive, threadID, known, nil, []string{InboxLabelID})
}

// Keep applies the configured keep label, resolving (and creating) it through
// the directory first
func (s *ThreadReconcilerImpl) Keep(ctx context.Context, known []MessageSnapshot) error {
	threadID, err := commonThreadID(known)
	if err != nil {
		return err
	}
	label, err := s.directory.GetOrCreate(ctx, s.keepLabel)
	if err != nil {
		return fmt.Errorf("failed to resolve keep label: %w", err)
	}
	return s.applyDelta(ctx, UndoActionKeep, threadID, known, []string{label.Id}, nil)
}

// commonThreadID returns the thread id shared by all snapshots
func commonThreadID(known []MessageSnapshot) (string, error) {
	if len(known) == 0 {
		return "", fmt.Errorf("%w: no known messages provided", ErrInvalidInput)
	}
	threadID := known[0].ThreadID
	if threadID == "" {
		return "", fmt.Errorf("%w: known message without thread id", ErrInvalidInput)
	}
	for _, m := range known[1:] {
		if m.ThreadID != threadID {
			return "", fmt.Errorf("%w: messages span multiple threads", ErrInvalidInput)
		}
	}
	return threadID, nil
}
