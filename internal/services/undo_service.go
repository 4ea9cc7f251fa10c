package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UndoServiceImpl implements UndoService with single-level undo: only the
// most recently recorded delta can be reversed.
type UndoServiceImpl struct {
	store  MailStore
	logger *log.Logger // Optional - for debug logging

	mu         sync.RWMutex
	lastAction *UndoableAction
}

// NewUndoService creates a new undo service
func NewUndoService(store MailStore) *UndoServiceImpl {
	return &UndoServiceImpl{store: store}
}

// SetLogger sets the logger for debug output
func (s *UndoServiceImpl) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// RecordAction records an action for potential undo
func (s *UndoServiceImpl) RecordAction(ctx context.Context, action *UndoableAction) error {
	if action == nil {
		return fmt.Errorf("%w: action cannot be nil", ErrInvalidInput)
	}
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAction = action
	return nil
}

// UndoLastAction replays the inverse of the last recorded delta: swapped
// add/remove sets against the same message ids, and against the whole thread
// when the original delta was widened.
func (s *UndoServiceImpl) UndoLastAction(ctx context.Context) (*UndoResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastAction == nil {
		return &UndoResult{
			Success:     false,
			Description: "No action to undo",
			Errors:      []string{"no undoable action available"},
		}, nil
	}

	action := s.lastAction
	result := &UndoResult{
		Success:      true,
		Description:  fmt.Sprintf("Undid %s", action.Description),
		MessageCount: len(action.MessageIDs),
	}

	inverseAdd := action.RemovedLabelIDs
	inverseRemove := action.AddedLabelIDs

	if err := s.store.BatchModifyMessages(ctx, action.MessageIDs, inverseAdd, inverseRemove); err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}

	if action.Widened {
		if err := s.store.ModifyThread(ctx, action.ThreadID, inverseAdd, inverseRemove); err != nil {
			result.Success = false
			result.Errors = append(result.Errors, err.Error())
			return result, nil
		}
	}

	if s.logger != nil {
		s.logger.Printf("undid action %s (%s)", action.ID, action.Type)
	}
	s.lastAction = nil
	return result, nil
}

// HasUndoableAction returns whether there is an action available to undo
func (s *UndoServiceImpl) HasUndoableAction() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAction != nil
}

// GetUndoDescription returns a description of what would be undone
func (s *UndoServiceImpl) GetUndoDescription() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastAction == nil {
		return ""
	}
	return s.lastAction.Description
}

// ClearUndoHistory clears the recorded action
func (s *UndoServiceImpl) ClearUndoHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAction = nil
}
