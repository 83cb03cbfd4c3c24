package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/caregap/internal/store"
	"github.com/BartekS5/caregap/pkg/logger"
	"github.com/BartekS5/caregap/pkg/models"
	"github.com/BartekS5/caregap/pkg/utils"
)

// Executor replays a cached diff against the persisted store in one unit of work.
type Executor struct {
	Store      Store
	Previews   PreviewStore
	DueDates   DueDateCalculator
	Duplicates DuplicateSynchronizer
	Now        func() time.Time
}

func NewExecutor(st Store, previews PreviewStore, dueDates DueDateCalculator, duplicates DuplicateSynchronizer) *Executor {
	return &Executor{
		Store:      st,
		Previews:   previews,
		DueDates:   dueDates,
		Duplicates: duplicates,
		Now:        time.Now,
	}
}

// Execute commits the preview's changes. A missing, expired or already
// executing preview is the only returned error. A failed transaction yields
// Success=false with a single synthetic error and zero stats, and leaves the
// preview available for a retry. Per-change failures are collected in Errors
// while the rest of the changes commit.
func (e *Executor) Execute(ctx context.Context, previewID string) (*models.ExecutionResult, error) {
	entry, err := e.Previews.Claim(previewID)
	switch {
	case errors.Is(err, models.ErrPreviewInUse):
		return nil, &PreviewInUseError{ID: previewID}
	case err != nil:
		return nil, &PreviewNotFoundError{ID: previewID}
	}

	start := e.now()
	log := logger.L().With().Str("preview_id", previewID).Str("mode", string(entry.Diff.Mode)).Logger()
	log.Info().Int("changes", len(entry.Diff.Changes)).Msg("import execution started")

	run := &execution{
		Executor: e,
		patients: make(map[patientKey]*models.Patient),
	}
	if err := run.apply(ctx, entry.Diff); err != nil {
		e.Previews.Release(previewID)
		log.Error().Err(err).Msg("import transaction failed")
		return &models.ExecutionResult{
			Success: false,
			Mode:    entry.Diff.Mode,
			Errors: []models.ExecutionError{{
				ChangeIndex: -1,
				Message:     fmt.Sprintf("Transaction failed: %v", err),
			}},
			Duration: e.now().Sub(start),
		}, nil
	}

	for _, ce := range run.errors {
		log.Warn().Int("change", ce.ChangeIndex).Str("member", ce.MemberName).Msg(ce.Message)
	}

	if e.Duplicates != nil {
		if err := e.Duplicates.SyncAllDuplicateFlags(ctx); err != nil {
			log.Warn().Err(err).Msg("duplicate flag sync failed")
		}
	}
	e.Previews.Delete(previewID)

	result := &models.ExecutionResult{
		Success:  true,
		Mode:     entry.Diff.Mode,
		Stats:    run.stats,
		Errors:   run.errors,
		Duration: e.now().Sub(start),
	}
	if result.Errors == nil {
		result.Errors = []models.ExecutionError{}
	}
	log.Info().
		Int("inserted", result.Stats.Inserted).
		Int("updated", result.Stats.Updated).
		Int("deleted", result.Stats.Deleted).
		Int("skipped", result.Stats.Skipped).
		Int("both", result.Stats.Both).
		Int("patients_created", result.Stats.PatientsCreated).
		Int("errors", len(result.Errors)).
		Dur("duration", result.Duration).
		Msg("import committed")
	return result, nil
}

func (e *Executor) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// execution is the state of one Execute call.
type execution struct {
	*Executor
	uow      store.UnitOfWork
	stats    models.ExecutionStats
	errors   []models.ExecutionError
	patients map[patientKey]*models.Patient

	orderLoaded bool
	nextOrder   int
}

func (x *execution) apply(ctx context.Context, diff models.DiffResult) error {
	uow, err := x.Store.Begin(ctx)
	if err != nil {
		return err
	}
	x.uow = uow
	defer func() {
		if err := uow.Rollback(ctx); err != nil {
			logger.Warnf("rollback failed: %v", err)
		}
	}()

	if diff.Mode == models.ModeReplace {
		err = x.applyReplace(ctx, diff.Changes)
	} else {
		err = x.applyMerge(ctx, diff.Changes)
	}
	if err != nil {
		return err
	}
	return uow.Commit(ctx)
}

func (x *execution) applyReplace(ctx context.Context, changes []models.DiffChange) error {
	var ids []string
	for _, c := range changes {
		if c.Action == models.ActionDelete && c.ExistingMeasureID != nil {
			ids = append(ids, *c.ExistingMeasureID)
		}
	}
	if len(ids) > 0 {
		n, err := x.uow.DeleteMeasures(ctx, ids)
		if err != nil {
			return err
		}
		x.stats.Deleted = n
	}
	for i, c := range changes {
		if c.Action != models.ActionInsert {
			continue
		}
		if err := x.insert(ctx, i, c, nil); err != nil {
			return err
		}
	}
	return nil
}

func (x *execution) applyMerge(ctx context.Context, changes []models.DiffChange) error {
	for i, c := range changes {
		var err error
		switch c.Action {
		case models.ActionInsert:
			err = x.insert(ctx, i, c, nil)
		case models.ActionBoth:
			if c.ExistingPatientID == nil {
				x.fail(i, c, "Missing existing patient - cannot insert alongside prior record")
				continue
			}
			err = x.insert(ctx, i, c, c.ExistingPatientID)
		case models.ActionUpdate:
			err = x.update(ctx, i, c)
		case models.ActionSkip:
			x.stats.Skipped++
		case models.ActionDelete:
			x.stats.Deleted++
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// insert appends a measure for the change's patient. patientID pins the
// patient for BOTH; otherwise the patient is reused by identity or created.
func (x *execution) insert(ctx context.Context, i int, c models.DiffChange, patientID *string) error {
	if c.MemberDob == nil || *c.MemberDob == "" {
		x.fail(i, c, "Missing date of birth - cannot create patient")
		return nil
	}

	id := utils.Deref(patientID)
	if id == "" {
		p, err := x.resolvePatient(ctx, c)
		if err != nil {
			return err
		}
		id = p.ID
	}

	order, err := x.rowOrder(ctx)
	if err != nil {
		return err
	}
	now := x.now()
	m := &models.PatientMeasure{
		ID:             uuid.NewString(),
		PatientID:      id,
		RequestType:    c.RequestType,
		QualityMeasure: c.QualityMeasure,
		MeasureStatus:  c.NewStatus,
		StatusDate:     c.StatusDate,
		Tracking1:      c.Tracking1,
		Tracking2:      c.Tracking2,
		IsDuplicate:    false,
		RowOrder:       order,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	x.applyDueDate(m)
	if err := x.uow.CreateMeasure(ctx, m); err != nil {
		return err
	}

	if c.Action == models.ActionBoth {
		x.stats.Both++
	} else {
		x.stats.Inserted++
	}
	return nil
}

func (x *execution) resolvePatient(ctx context.Context, c models.DiffChange) (*models.Patient, error) {
	key := patientKey{c.MemberName, *c.MemberDob}
	p, ok := x.patients[key]
	if !ok {
		found, err := x.uow.FindPatient(ctx, c.MemberName, *c.MemberDob)
		if err != nil {
			return nil, err
		}
		p = found
	}

	now := x.now()
	if p == nil {
		p = &models.Patient{
			ID:              uuid.NewString(),
			MemberName:      c.MemberName,
			MemberDob:       *c.MemberDob,
			MemberTelephone: c.MemberTelephone,
			MemberAddress:   c.MemberAddress,
			OwnerID:         c.OwnerID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := x.uow.CreatePatient(ctx, p); err != nil {
			return nil, err
		}
		x.stats.PatientsCreated++
		x.patients[key] = p
		return p, nil
	}

	if changed(p.MemberTelephone, c.MemberTelephone) || changed(p.MemberAddress, c.MemberAddress) {
		if c.MemberTelephone != nil {
			p.MemberTelephone = c.MemberTelephone
		}
		if c.MemberAddress != nil {
			p.MemberAddress = c.MemberAddress
		}
		p.UpdatedAt = now
		if err := x.uow.UpdatePatient(ctx, p); err != nil {
			return nil, err
		}
		x.stats.PatientsUpdated++
	}
	x.patients[key] = p
	return p, nil
}

func (x *execution) update(ctx context.Context, i int, c models.DiffChange) error {
	if c.ExistingMeasureID == nil {
		x.fail(i, c, "Missing existing measure - cannot update")
		return nil
	}
	m := &models.PatientMeasure{
		ID:            *c.ExistingMeasureID,
		MeasureStatus: c.NewStatus,
		StatusDate:    c.StatusDate,
		Tracking1:     c.Tracking1,
		Tracking2:     c.Tracking2,
		UpdatedAt:     x.now(),
	}
	x.applyDueDate(m)
	err := x.uow.UpdateMeasure(ctx, m)
	if errors.Is(err, models.ErrNotFound) {
		x.fail(i, c, "Existing measure no longer exists - cannot update")
		return nil
	}
	if err != nil {
		return err
	}
	x.stats.Updated++
	return nil
}

func (x *execution) applyDueDate(m *models.PatientMeasure) {
	if x.DueDates == nil {
		return
	}
	due := x.DueDates.CalculateDueDate(m.StatusDate, m.MeasureStatus, m.Tracking1, m.Tracking2)
	m.DueDate = due.DueDate
	m.TimeIntervalDays = due.TimeIntervalDays
}

// rowOrder hands out ordinals after the store's current maximum.
func (x *execution) rowOrder(ctx context.Context) (int, error) {
	if !x.orderLoaded {
		max, err := x.uow.MaxMeasureOrder(ctx)
		if err != nil {
			return 0, err
		}
		x.nextOrder = max
		x.orderLoaded = true
	}
	x.nextOrder++
	return x.nextOrder, nil
}

func (x *execution) fail(i int, c models.DiffChange, msg string) {
	x.errors = append(x.errors, models.ExecutionError{
		ChangeIndex:    i,
		Action:         c.Action,
		MemberName:     c.MemberName,
		QualityMeasure: c.QualityMeasure,
		Message:        msg,
	})
}

// changed reports whether an imported value should overwrite the stored one.
func changed(stored, imported *string) bool {
	if imported == nil {
		return false
	}
	return stored == nil || *stored != *imported
}
