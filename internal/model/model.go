// Package model defines domain entities, the entity kind registry and the
// row/filter shapes shared by the local cache, the mutation queue and the remote data source.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// SyncStatus tells whether a cached record matches the last known remote state.
type SyncStatus string

const (
	StatusSynced  SyncStatus = "synced"
	StatusPending SyncStatus = "pending"
)

// Operation is a queued write intent.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// QueuedMutation is one entry of the durable mutation queue.
type QueuedMutation struct {
	ID            int64 // autoincrement, defines global replay order
	Kind          Kind
	Op            Operation
	RecordID      uuid.UUID
	Payload       Row // full row for insert, partial for update, empty for delete
	EnqueuedAt    time.Time
	RetryCount    int
	LastError     string
	NextAttemptAt time.Time // zero means due immediately
}

// Due reports whether the entry may be attempted at now.
func (m QueuedMutation) Due(now time.Time) bool {
	return m.NextAttemptAt.IsZero() || !m.NextAttemptAt.After(now)
}

// QueueStats summarizes the mutation queue for the sync health signal.
type QueueStats struct {
	Pending int
	Head    *QueuedMutation // oldest entry, nil when empty
}

// Base carries the fields every cached record has.
type Base struct {
	ID         uuid.UUID  `json:"id"`
	SyncStatus SyncStatus `json:"sync_status,omitempty"`
}

// RecordID returns the record identifier.
func (b Base) RecordID() uuid.UUID { return b.ID }

// SyncState returns the record sync status.
func (b Base) SyncState() SyncStatus { return b.SyncStatus }

// SetRecordID assigns the record identifier.
func (b *Base) SetRecordID(id uuid.UUID) { b.ID = id }

// SetSyncState assigns the record sync status.
func (b *Base) SetSyncState(s SyncStatus) { b.SyncStatus = s }

// Record is implemented by every entity value.
type Record interface {
	Kind() Kind
	RecordID() uuid.UUID
	SyncState() SyncStatus
	ToRow() Row
}

// RecordPtr is implemented by pointers to entity values; gateways are generic over it.
type RecordPtr[T any] interface {
	*T
	Record
	SetRecordID(uuid.UUID)
	SetSyncState(SyncStatus)
	FromRow(Row) error
}
