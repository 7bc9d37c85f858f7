package models

import (
	"time"

	"github.com/google/uuid"
)

type SyncOutcome string

const (
	OutcomeAppliedIncoming SyncOutcome = "applied_incoming"
	OutcomeKeptExisting    SyncOutcome = "kept_existing"
	OutcomeDeleted         SyncOutcome = "deleted"
	OutcomeNotFound        SyncOutcome = "not_found"
)

type SyncOperation string

const (
	OperationUpsert SyncOperation = "upsert"
	OperationDelete SyncOperation = "delete"
)

// SyncEvent is one ledger row describing a processed change.
type SyncEvent struct {
	ID         uuid.UUID     `json:"id"`
	Direction  string        `json:"direction"`
	Collection string        `json:"collection"`
	ExternalID string        `json:"external_id"`
	Operation  SyncOperation `json:"operation"`
	Outcome    SyncOutcome   `json:"outcome"`
	CreatedAt  time.Time     `json:"created_at"`
}
