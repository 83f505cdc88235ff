package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

// ============================================
// Event queue
// ============================================

const queueColumns = `id, delivery_id, payload, received_at, visible_at, receipt, receive_count, dead_letter, last_error`

func (s *Store) Enqueue(ctx context.Context, msg *domain.QueueMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.timestamp()
	}
	if msg.VisibleAt.IsZero() {
		msg.VisibleAt = msg.ReceivedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_queue (`+queueColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, msg.DeliveryID, msg.Payload, msg.ReceivedAt.UTC(), msg.VisibleAt.UTC(),
		"", 0, false, "")
	return wrapUniqueError(err)
}

// Receive leases the oldest visible message under a fresh receipt. The
// lease is taken with a compare-and-set on the previous receipt so two
// workers racing for the same row cannot both win.
func (s *Store) Receive(ctx context.Context, visibility time.Duration) (*domain.QueueMessage, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := s.timestamp()
	var msg domain.QueueMessage
	err = tx.GetContext(ctx, &msg,
		`SELECT `+queueColumns+` FROM event_queue
		 WHERE dead_letter = $1 AND visible_at <= $2
		 ORDER BY visible_at, received_at LIMIT 1`, false, now)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	receipt := uuid.New().String()
	visibleAt := now.Add(visibility)
	result, err := tx.ExecContext(ctx,
		`UPDATE event_queue SET receipt = $1, visible_at = $2, receive_count = receive_count + 1
		 WHERE id = $3 AND receipt = $4`,
		receipt, visibleAt, msg.ID, msg.Receipt)
	if err != nil {
		return nil, err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, domain.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing lease: %w", err)
	}

	msg.Receipt = receipt
	msg.VisibleAt = visibleAt
	msg.ReceiveCount++
	return &msg, nil
}

func (s *Store) Delete(ctx context.Context, receipt string) error {
	if receipt == "" {
		return domain.ErrNotFound
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM event_queue WHERE receipt = $1`, receipt)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeadLetter(ctx context.Context, receipt, reason string) error {
	if receipt == "" {
		return domain.ErrNotFound
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE event_queue SET dead_letter = $1, last_error = $2 WHERE receipt = $3`,
		true, reason, receipt)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) QueueStats(ctx context.Context) (*domain.QueueStats, error) {
	now := s.timestamp()
	var stats domain.QueueStats
	if err := s.db.GetContext(ctx, &stats.Visible,
		`SELECT COUNT(*) FROM event_queue WHERE dead_letter = $1 AND visible_at <= $2`, false, now); err != nil {
		return nil, err
	}
	if err := s.db.GetContext(ctx, &stats.InFlight,
		`SELECT COUNT(*) FROM event_queue WHERE dead_letter = $1 AND visible_at > $2`, false, now); err != nil {
		return nil, err
	}
	if err := s.db.GetContext(ctx, &stats.DeadLetter,
		`SELECT COUNT(*) FROM event_queue WHERE dead_letter = $1`, true); err != nil {
		return nil, err
	}
	return &stats, nil
}
