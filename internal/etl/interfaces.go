package etl

import (
	"context"
	"time"

	"github.com/BartekS5/caregap/internal/store"
	"github.com/BartekS5/caregap/pkg/models"
)

// SystemSource resolves a system id to its configuration.
type SystemSource interface {
	Get(id string) (*models.SystemConfig, error)
}

// RecordReader loads a fresh snapshot of persisted records.
type RecordReader interface {
	LoadExisting(ctx context.Context) ([]models.ExistingRecord, error)
}

// Store is what the executor needs from the persisted store.
type Store interface {
	Begin(ctx context.Context) (store.UnitOfWork, error)
}

// DueDateCalculator derives the due date of a measure from its status.
type DueDateCalculator interface {
	CalculateDueDate(statusDate, measureStatus, tracking1, tracking2 *string) models.DueDate
}

// DuplicateSynchronizer recalculates duplicate flags across the store.
type DuplicateSynchronizer interface {
	SyncAllDuplicateFlags(ctx context.Context) error
}

// PreviewStore holds previews between review and execution. Claim hands a
// preview to exactly one executor at a time.
type PreviewStore interface {
	Store(e models.PreviewEntry, ttl time.Duration) string
	Get(id string) (*models.PreviewEntry, bool)
	Claim(id string) (*models.PreviewEntry, error)
	Release(id string)
	Delete(id string) bool
}
