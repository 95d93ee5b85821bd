package models

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action says whether a queue entry creates the remote document or updates
// an existing one.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// EntryStatus is the lifecycle of one queue entry.
type EntryStatus string

const (
	EntryPending EntryStatus = "pending"
	EntrySyncing EntryStatus = "syncing"
	EntrySynced  EntryStatus = "synced"
	EntryFailed  EntryStatus = "failed"
)

// Retry defaults, matching the save path: five attempts, one second initial
// backoff doubling per failure, capped at thirty seconds.
const (
	DefaultMaxRetries = 5
	InitialBackoffMs  = 1000
	MaxBackoffMs      = 30000
)

// SyncQueueEntry is one durable intent to mutate the remote store.
type SyncQueueEntry struct {
	// ID is globally unique: unix-nano timestamp plus cryptographically
	// random bytes, collision-safe under concurrent entry creation.
	ID string

	PatientID string
	DataType  DataType
	Action    Action
	Payload   Document

	Status     EntryStatus
	RetryCount int
	MaxRetries int
	BackoffMs  int
	// NextRetryAt gates retry eligibility; entries are invisible to a
	// flush until it passes.
	NextRetryAt time.Time
	LastError   *string

	CreatedAt time.Time
}

// NewSyncQueueEntry builds a pending entry with retry defaults.
func NewSyncQueueEntry(patientID string, dataType DataType, action Action, payload Document) *SyncQueueEntry {
	now := time.Now().UTC()
	return &SyncQueueEntry{
		ID:          NewQueueID(),
		PatientID:   patientID,
		DataType:    dataType,
		Action:      action,
		Payload:     payload,
		Status:      EntryPending,
		MaxRetries:  DefaultMaxRetries,
		BackoffMs:   InitialBackoffMs,
		NextRetryAt: now,
		CreatedAt:   now,
	}
}

// NewQueueID returns "queue_<unixnano>_<16 random hex chars>".
func NewQueueID() string {
	return fmt.Sprintf("queue_%d_%s", time.Now().UnixNano(), randomHex(8))
}

// TempIDPrefix marks locally generated patient identifiers that have not
// been confirmed by the server yet.
const TempIDPrefix = "tmp_"

// NewTempPatientID returns a device-scoped placeholder id for a patient
// created offline. The uuid fragment keeps two devices from ever colliding,
// the timestamp keeps ids sortable for debugging.
func NewTempPatientID() string {
	device := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s%s_%d_%s", TempIDPrefix, device, time.Now().UnixMilli(), randomHex(4))
}

// IsTempID reports whether id is a client-generated placeholder.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; fall back to
		// a uuid so id generation cannot return an empty suffix.
		return strings.ReplaceAll(uuid.NewString(), "-", "")[:n*2]
	}
	return hex.EncodeToString(b)
}
