package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SnapshotMessage is one stored thread member: its id and the label ids it
// carried when the thread was last observed
type SnapshotMessage struct {
	MessageID string
	LabelIDs  []string
}

// SnapshotStore persists the last observed member/label state per thread
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore creates a new snapshot store from a base store
func NewSnapshotStore(store *Store) *SnapshotStore {
	if store == nil {
		return nil
	}
	return &SnapshotStore{db: store.DB()}
}

// SaveThreadSnapshot replaces the stored snapshot for (account_email, thread_id)
func (ss *SnapshotStore) SaveThreadSnapshot(ctx context.Context, accountEmail, threadID string, msgs []SnapshotMessage, fetchedAt int64) error {
	if ss == nil || ss.db == nil {
		return fmt.Errorf("snapshot store not initialized")
	}
	if strings.TrimSpace(accountEmail) == "" || strings.TrimSpace(threadID) == "" || len(msgs) == 0 {
		return fmt.Errorf("invalid snapshot inputs")
	}

	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM thread_snapshots WHERE account_email=? AND thread_id=?`, accountEmail, threadID); err != nil {
		_ = tx.Rollback()
		return err
	}
	for i, m := range msgs {
		if strings.TrimSpace(m.MessageID) == "" {
			_ = tx.Rollback()
			return fmt.Errorf("snapshot message %d has no id", i)
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO thread_snapshots(account_email, thread_id, message_id, label_ids, position, fetched_at)
VALUES(?,?,?,?,?,?)`, accountEmail, threadID, m.MessageID, strings.Join(m.LabelIDs, ","), i, fetchedAt)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadThreadSnapshot returns the stored snapshot members in observed order
func (ss *SnapshotStore) LoadThreadSnapshot(ctx context.Context, accountEmail, threadID string) ([]SnapshotMessage, int64, bool, error) {
	if ss == nil || ss.db == nil {
		return nil, 0, false, fmt.Errorf("snapshot store not initialized")
	}
	rows, err := ss.db.QueryContext(ctx, `SELECT message_id, label_ids, fetched_at FROM thread_snapshots
WHERE account_email=? AND thread_id=? ORDER BY position ASC`, accountEmail, threadID)
	if err != nil {
		return nil, 0, false, err
	}
	defer rows.Close()

	var msgs []SnapshotMessage
	var fetchedAt int64
	for rows.Next() {
		var m SnapshotMessage
		var labels string
		if err := rows.Scan(&m.MessageID, &labels, &fetchedAt); err != nil {
			return nil, 0, false, err
		}
		if labels != "" {
			m.LabelIDs = strings.Split(labels, ",")
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, false, err
	}
	if len(msgs) == 0 {
		return nil, 0, false, nil
	}
	return msgs, fetchedAt, true, nil
}

// DeleteThreadSnapshot removes the stored snapshot for (account_email, thread_id)
func (ss *SnapshotStore) DeleteThreadSnapshot(ctx context.Context, accountEmail, threadID string) error {
	if ss == nil || ss.db == nil {
		return fmt.Errorf("snapshot store not initialized")
	}
	_, err := ss.db.ExecContext(ctx, `DELETE FROM thread_snapshots WHERE account_email=? AND thread_id=?`, accountEmail, threadID)
	return err
}

// PruneSnapshots removes snapshots fetched before the given unix timestamp
// and returns the number of rows removed
func (ss *SnapshotStore) PruneSnapshots(ctx context.Context, accountEmail string, before int64) (int64, error) {
	if ss == nil || ss.db == nil {
		return 0, fmt.Errorf("snapshot store not initialized")
	}
	res, err := ss.db.ExecContext(ctx, `DELETE FROM thread_snapshots WHERE account_email=? AND fetched_at<?`, accountEmail, before)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
