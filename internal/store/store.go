// Package store implements the persisted patient/measure store on SQL
// Server, MongoDB and in memory.
package store

import (
	"context"

	"github.com/BartekS5/caregap/pkg/models"
)

// Store is a persisted store the import pipeline reads from and commits into.
type Store interface {
	// LoadExisting returns every stored (patient, measure) fact ordered by row order.
	LoadExisting(ctx context.Context) ([]models.ExistingRecord, error)
	// Begin opens a unit of work.
	Begin(ctx context.Context) (UnitOfWork, error)
	// SyncAllDuplicateFlags flags every measure that shares
	// (patient, request type, quality measure) with another one.
	SyncAllDuplicateFlags(ctx context.Context) error
}

// UnitOfWork is one transaction against the store. Writes become visible to
// other readers only after Commit. Rollback after Commit is a no-op, so
// callers defer Rollback unconditionally.
type UnitOfWork interface {
	// FindPatient returns nil, nil when no patient has that identity.
	FindPatient(ctx context.Context, name, dob string) (*models.Patient, error)
	CreatePatient(ctx context.Context, p *models.Patient) error
	UpdatePatient(ctx context.Context, p *models.Patient) error
	CreateMeasure(ctx context.Context, m *models.PatientMeasure) error
	// UpdateMeasure rewrites status, status date and due date in place.
	// It returns models.ErrNotFound when the measure does not exist.
	UpdateMeasure(ctx context.Context, m *models.PatientMeasure) error
	DeleteMeasures(ctx context.Context, ids []string) (int, error)
	MaxMeasureOrder(ctx context.Context) (int, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
