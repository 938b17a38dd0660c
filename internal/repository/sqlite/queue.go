package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/growing-together/internal/errs"
	"github.com/and161185/growing-together/internal/model"
)

const queueCols = `id, kind, op, record_id, payload, enqueued_at, retry_count, last_error, next_attempt_at`

// Add appends m to the queue.
func (s *Store) Add(ctx context.Context, m model.QueuedMutation) (int64, error) {
	if err := checkMutation(m); err != nil {
		return 0, err
	}
	return enqueue(ctx, s.db, m, s.now())
}

func checkMutation(m model.QueuedMutation) error {
	if !m.Op.Valid() {
		return fmt.Errorf("%w: operation %q", errs.ErrInvalid, m.Op)
	}
	if m.RecordID.IsNil() {
		return fmt.Errorf("%w: mutation without record id", errs.ErrInvalid)
	}
	_, err := model.Lookup(m.Kind)
	return err
}

func enqueue(ctx context.Context, q querier, m model.QueuedMutation, now time.Time) (int64, error) {
	payload := m.Payload
	if payload == nil {
		payload = model.Row{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, errs.Storage("enqueue", err)
	}
	if m.EnqueuedAt.IsZero() {
		m.EnqueuedAt = now
	}
	res, err := q.ExecContext(ctx,
		`INSERT INTO mutation_queue (kind, op, record_id, payload, enqueued_at) VALUES (?, ?, ?, ?, ?)`,
		string(m.Kind), string(m.Op), m.RecordID.String(), string(b), model.FormatTime(m.EnqueuedAt))
	if err != nil {
		return 0, errs.Storage("enqueue", err)
	}
	id, err := res.LastInsertId()
	return id, errs.Storage("enqueue", err)
}

// Drain returns all queued entries in enqueue order. Entries stay queued.
func (s *Store) Drain(ctx context.Context) ([]model.QueuedMutation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+queueCols+` FROM mutation_queue ORDER BY id`)
	if err != nil {
		return nil, errs.Storage("drain", err)
	}
	defer rows.Close()
	var out []model.QueuedMutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, errs.Storage("drain", err)
		}
		out = append(out, m)
	}
	return out, errs.Storage("drain", rows.Err())
}

type scanner interface{ Scan(dest ...any) error }

func scanMutation(sc scanner) (model.QueuedMutation, error) {
	var (
		m                       model.QueuedMutation
		kind, op, rid, payload  string
		enqueued, next, lastErr string
	)
	if err := sc.Scan(&m.ID, &kind, &op, &rid, &payload, &enqueued, &m.RetryCount, &lastErr, &next); err != nil {
		return m, err
	}
	m.Kind, m.Op, m.LastError = model.Kind(kind), model.Operation(op), lastErr
	spec, err := model.Lookup(m.Kind)
	if err != nil {
		return m, fmt.Errorf("entry %d: %w", m.ID, err)
	}
	if m.RecordID, err = uuid.FromString(rid); err != nil {
		return m, fmt.Errorf("entry %d: %w", m.ID, err)
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return m, fmt.Errorf("entry %d payload: %w", m.ID, err)
	}
	if m.Payload, err = spec.Normalize(raw); err != nil {
		return m, fmt.Errorf("entry %d payload: %w", m.ID, err)
	}
	if m.EnqueuedAt, err = model.ParseTime(enqueued); err != nil {
		return m, fmt.Errorf("entry %d: %w", m.ID, err)
	}
	if next != "" {
		if m.NextAttemptAt, err = model.ParseTime(next); err != nil {
			return m, fmt.Errorf("entry %d: %w", m.ID, err)
		}
	}
	return m, nil
}

// Remove deletes one entry.
func (s *Store) Remove(ctx context.Context, entryID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mutation_queue WHERE id = ?`, entryID)
	return errs.Storage("remove", err)
}

// MarkFailed bumps the retry count of an entry and defers it until next.
func (s *Store) MarkFailed(ctx context.Context, entryID int64, cause string, next time.Time) error {
	const q = `UPDATE mutation_queue SET retry_count = retry_count + 1, last_error = ?, next_attempt_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, cause, model.FormatTime(next), entryID)
	if err != nil {
		return errs.Storage("mark failed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.log.Warn("mark failed: entry already gone", zap.Int64("entry", entryID))
	}
	return nil
}

// Stats reports the queue length and its head.
func (s *Store) Stats(ctx context.Context) (model.QueueStats, error) {
	var st model.QueueStats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mutation_queue`).Scan(&st.Pending); err != nil {
		return st, errs.Storage("stats", err)
	}
	if st.Pending == 0 {
		return st, nil
	}
	head, err := scanMutation(s.db.QueryRowContext(ctx, `SELECT `+queueCols+` FROM mutation_queue ORDER BY id LIMIT 1`))
	if err != nil && !isNoRows(err) {
		return st, errs.Storage("stats", err)
	}
	if err == nil {
		st.Head = &head
	}
	return st, nil
}

// PendingIDs returns record ids of kind with queued entries.
func (s *Store) PendingIDs(ctx context.Context, kind model.Kind) (map[uuid.UUID]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT record_id FROM mutation_queue WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, errs.Storage("pending ids", err)
	}
	defer rows.Close()
	out := map[uuid.UUID]struct{}{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errs.Storage("pending ids", err)
		}
		id, err := uuid.FromString(raw)
		if err != nil {
			return nil, errs.Storage("pending ids", err)
		}
		out[id] = struct{}{}
	}
	return out, errs.Storage("pending ids", rows.Err())
}

// Count returns the number of entries queued for one record.
func (s *Store) Count(ctx context.Context, kind model.Kind, id uuid.UUID) (int, error) {
	n, err := countFor(ctx, s.db, kind, id)
	return n, errs.Storage("count", err)
}

func countFor(ctx context.Context, q querier, kind model.Kind, id uuid.UUID) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mutation_queue WHERE kind = ? AND record_id = ?`, string(kind), id.String()).Scan(&n)
	return n, err
}
