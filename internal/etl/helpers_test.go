package etl

import (
	"context"
	"errors"
	"time"

	"github.com/BartekS5/caregap/internal/store"
	"github.com/BartekS5/caregap/pkg/models"
)

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func testSystem() *models.SystemConfig {
	cfg := &models.SystemConfig{
		ID:   "hill",
		Name: "Hill Healthcare",
		PatientColumns: map[string]string{
			"Patient": models.FieldMemberName,
			"DOB":     models.FieldMemberDob,
			"Phone":   models.FieldMemberTelephone,
			"Address": models.FieldMemberAddress,
		},
		MeasureColumns: map[string]models.MeasureColumnConfig{
			"AWV Q1":         {RequestType: "AWV", QualityMeasure: "Annual Wellness Visit", Role: models.MeasureRoleDate},
			"AWV Q2":         {RequestType: "AWV", QualityMeasure: "Annual Wellness Visit", Role: models.MeasureRoleStatus},
			"Colon 45-49 Q2": {RequestType: "Screening", QualityMeasure: "Colon Cancer Screening", Role: models.MeasureRoleStatus},
			"Colon 50-75 Q2": {RequestType: "Screening", QualityMeasure: "Colon Cancer Screening", Role: models.MeasureRoleStatus},
			"Eye Exam Q2":    {RequestType: "Quality", QualityMeasure: "Diabetic Eye Exam", Role: models.MeasureRoleStatus},
		},
		SkipColumns: []string{"Age", "MRN"},
		StatusMap: map[string]models.StatusLabels{
			"Annual Wellness Visit":  {Compliant: "AWV completed", NonCompliant: "Not Addressed"},
			"Colon Cancer Screening": {Compliant: "Colon cancer screen completed", NonCompliant: "Not Addressed"},
		},
	}
	cfg.Normalize()
	return cfg
}

type systemsStub map[string]*models.SystemConfig

func (s systemsStub) Get(id string) (*models.SystemConfig, error) {
	if cfg, ok := s[id]; ok {
		return cfg, nil
	}
	return nil, errors.New("unknown system: " + id)
}

type readerStub struct {
	records []models.ExistingRecord
	err     error
	calls   int
}

func (r *readerStub) LoadExisting(ctx context.Context) ([]models.ExistingRecord, error) {
	r.calls++
	return r.records, r.err
}

// failingStore wraps a store and makes the n-th CreateMeasure fail.
type failingStore struct {
	store.Store
	failOn int
}

func (f *failingStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	uow, err := f.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &failingUnitOfWork{UnitOfWork: uow, failOn: f.failOn}, nil
}

type failingUnitOfWork struct {
	store.UnitOfWork
	failOn int
	calls  int
}

func (f *failingUnitOfWork) CreateMeasure(ctx context.Context, m *models.PatientMeasure) error {
	f.calls++
	if f.calls == f.failOn {
		return errors.New("constraint violation")
	}
	return f.UnitOfWork.CreateMeasure(ctx, m)
}

// gatedStore parks Begin until release is closed.
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Store.Begin(ctx)
}

type dupSyncSpy struct {
	calls int
	err   error
}

func (d *dupSyncSpy) SyncAllDuplicateFlags(ctx context.Context) error {
	d.calls++
	return d.err
}

type dueDateStub struct{}

func (dueDateStub) CalculateDueDate(statusDate, measureStatus, tracking1, tracking2 *string) models.DueDate {
	if statusDate == nil {
		return models.DueDate{}
	}
	days := 30
	due := "2024-07-01"
	return models.DueDate{DueDate: &due, TimeIntervalDays: &days}
}
