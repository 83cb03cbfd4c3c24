package etl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/caregap/internal/preview"
	"github.com/BartekS5/caregap/internal/rules"
	"github.com/BartekS5/caregap/internal/store"
	"github.com/BartekS5/caregap/pkg/models"
	"github.com/BartekS5/caregap/pkg/utils"
)

type executorFixture struct {
	store    *store.MemoryStore
	previews *preview.Cache
	dups     *dupSyncSpy
	exec     *Executor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()
	f := &executorFixture{
		store:    store.NewMemoryStore(),
		previews: preview.New(time.Minute),
		dups:     &dupSyncSpy{},
	}
	f.exec = &Executor{
		Store:      f.store,
		Previews:   f.previews,
		DueDates:   dueDateStub{},
		Duplicates: f.dups,
		Now:        fixedNow,
	}
	f.store.Seed(
		[]models.Patient{{ID: "p1", MemberName: "Jane Doe", MemberDob: "1980-05-01", CreatedAt: testNow}},
		[]models.PatientMeasure{
			{ID: "m1", PatientID: "p1", RequestType: "AWV", QualityMeasure: "Annual Wellness Visit",
				MeasureStatus: utils.Ptr("AWV completed"), RowOrder: 1},
			{ID: "m2", PatientID: "p1", RequestType: "Screening", QualityMeasure: "Colon Cancer Screening",
				MeasureStatus: utils.Ptr("Not Addressed"), RowOrder: 2},
		},
	)
	return f
}

// stage runs the diff against the fixture store and caches it.
func (f *executorFixture) stage(t *testing.T, mode models.ImportMode, rows ...models.TransformedRow) string {
	t.Helper()
	d := &DiffCalculator{Reader: f.store, Now: fixedNow}
	diff, err := d.Calculate(context.Background(), rows, mode)
	require.NoError(t, err)
	return f.previews.Store(models.PreviewEntry{SystemID: "hill", Mode: mode, Diff: *diff, Rows: rows}, 0)
}

func measuresByQM(ms []models.PatientMeasure) map[string][]models.PatientMeasure {
	out := map[string][]models.PatientMeasure{}
	for _, m := range ms {
		out[m.QualityMeasure] = append(out[m.QualityMeasure], m)
	}
	return out
}

func TestExecute_Merge(t *testing.T) {
	f := newExecutorFixture(t)
	id := f.stage(t, models.ModeMerge,
		row(0, "Jane Doe", "1980-05-01", "AWV", "Annual Wellness Visit", "Not Addressed"),
		row(0, "Jane Doe", "1980-05-01", "Screening", "Colon Cancer Screening", "Colon cancer screen completed"),
		row(0, "Jane Doe", "1980-05-01", "Quality", "Diabetic Eye Exam", "Not Addressed"),
		row(1, "John Roe", "1970-01-01", "AWV", "Annual Wellness Visit", "AWV completed"),
		row(2, "Ann Poe", "", "AWV", "Annual Wellness Visit", "AWV completed"),
	)

	res, err := f.exec.Execute(context.Background(), id)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.ExecutionStats{Inserted: 2, Updated: 1, Both: 1, PatientsCreated: 1, PatientsUpdated: 1}, res.Stats)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 4, res.Errors[0].ChangeIndex)
	assert.Equal(t, "Missing date of birth - cannot create patient", res.Errors[0].Message)

	byQM := measuresByQM(f.store.Measures())
	require.Len(t, byQM["Annual Wellness Visit"], 3)
	assert.Equal(t, "AWV completed", *byQM["Annual Wellness Visit"][0].MeasureStatus)
	assert.Equal(t, "Not Addressed", *byQM["Annual Wellness Visit"][1].MeasureStatus)
	assert.Equal(t, "p1", byQM["Annual Wellness Visit"][1].PatientID)
	assert.Equal(t, 3, byQM["Annual Wellness Visit"][1].RowOrder)

	colon := byQM["Colon Cancer Screening"]
	require.Len(t, colon, 1)
	assert.Equal(t, "Colon cancer screen completed", *colon[0].MeasureStatus)
	assert.Equal(t, "2024-07-01", *colon[0].DueDate)

	assert.Len(t, f.store.Patients(), 2)
	assert.Equal(t, 1, f.dups.calls)
	_, ok := f.previews.Get(id)
	assert.False(t, ok)
}

func TestExecute_MergeSkipAndPatientUpdate(t *testing.T) {
	f := newExecutorFixture(t)
	r := row(0, "Jane Doe", "1980-05-01", "AWV", "Annual Wellness Visit", "AWV completed")
	r2 := row(0, "Jane Doe", "1980-05-01", "Quality", "Diabetic Eye Exam", "Not Addressed")
	r2.MemberAddress = utils.Ptr("9 Elm St")
	id := f.stage(t, models.ModeMerge, r, r2)

	res, err := f.exec.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStats{Inserted: 1, Skipped: 1, PatientsUpdated: 1}, res.Stats)
	assert.Empty(t, res.Errors)

	p := f.store.Patients()[0]
	assert.Equal(t, "9 Elm St", *p.MemberAddress)
	assert.Equal(t, "(555) 123-4567", *p.MemberTelephone)
}

func TestExecute_Replace(t *testing.T) {
	f := newExecutorFixture(t)
	id := f.stage(t, models.ModeReplace,
		row(0, "Jane Doe", "1980-05-01", "AWV", "Annual Wellness Visit", "Not Addressed"),
		row(1, "John Roe", "1970-01-01", "AWV", "Annual Wellness Visit", "AWV completed"),
	)

	res, err := f.exec.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.ExecutionStats{Inserted: 2, Deleted: 2, PatientsCreated: 1, PatientsUpdated: 1}, res.Stats)

	measures := f.store.Measures()
	require.Len(t, measures, 2)
	for _, m := range measures {
		assert.NotEqual(t, "m1", m.ID)
		assert.NotEqual(t, "m2", m.ID)
	}
}

func TestExecute_TransactionFailureRollsBack(t *testing.T) {
	f := newExecutorFixture(t)
	f.exec.Store = &failingStore{Store: f.store, failOn: 3}
	id := f.stage(t, models.ModeMerge,
		row(0, "Ann Poe", "1990-02-02", "AWV", "Annual Wellness Visit", "AWV completed"),
		row(1, "Bob Loe", "1991-03-03", "AWV", "Annual Wellness Visit", "AWV completed"),
		row(2, "Cid Moe", "1992-04-04", "AWV", "Annual Wellness Visit", "AWV completed"),
	)
	before := f.store.Measures()

	res, err := f.exec.Execute(context.Background(), id)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, models.ExecutionStats{}, res.Stats)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, -1, res.Errors[0].ChangeIndex)
	assert.Contains(t, res.Errors[0].Message, "Transaction failed")
	assert.Contains(t, res.Errors[0].Message, "constraint violation")

	assert.Equal(t, before, f.store.Measures())
	assert.Len(t, f.store.Patients(), 1)
	assert.Zero(t, f.dups.calls)

	// the preview survives for a retry
	_, ok := f.previews.Get(id)
	assert.True(t, ok)

	f.exec.Store = f.store
	res, err = f.exec.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Stats.Inserted)
}

func TestExecute_ConcurrentCallsApplyPreviewOnce(t *testing.T) {
	f := newExecutorFixture(t)
	gate := &gatedStore{Store: f.store, entered: make(chan struct{}, 1), release: make(chan struct{})}
	f.exec.Store = gate
	id := f.stage(t, models.ModeMerge, row(0, "John Roe", "1970-01-01", "AWV", "Annual Wellness Visit", "AWV completed"))

	type outcome struct {
		res *models.ExecutionResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := f.exec.Execute(context.Background(), id)
		first <- outcome{res, err}
	}()
	<-gate.entered

	// the first call holds the preview inside its transaction
	_, err := f.exec.Execute(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPreviewInUse)
	var inUse *PreviewInUseError
	require.True(t, errors.As(err, &inUse))
	assert.Equal(t, id, inUse.ID)

	close(gate.release)
	out := <-first
	require.NoError(t, out.err)
	assert.True(t, out.res.Success)
	assert.Equal(t, 1, out.res.Stats.Inserted)

	_, err = f.exec.Execute(context.Background(), id)
	assert.ErrorIs(t, err, ErrPreviewNotFound)

	assert.Len(t, measuresByQM(f.store.Measures())["Annual Wellness Visit"], 2)
}

func TestExecute_TrackingDrivesDueDate(t *testing.T) {
	f := newExecutorFixture(t)
	f.exec.DueDates = rules.NewIntervalCalculator()

	insert := row(0, "John Roe", "1970-01-01", "AWV", "Annual Wellness Visit", "AWV completed")
	insert.Tracking1 = utils.Ptr("2024-07-15")
	upgrade := row(1, "Jane Doe", "1980-05-01", "Screening", "Colon Cancer Screening", "Colon cancer screen completed")
	upgrade.Tracking1 = utils.Ptr("2024-06-20")
	id := f.stage(t, models.ModeMerge, insert, upgrade)

	res, err := f.exec.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Inserted)
	assert.Equal(t, 1, res.Stats.Updated)

	byQM := measuresByQM(f.store.Measures())
	awv := byQM["Annual Wellness Visit"]
	require.Len(t, awv, 2)
	assert.Equal(t, "2024-07-15", *awv[1].Tracking1)
	assert.Equal(t, "2024-07-15", *awv[1].DueDate)
	assert.Equal(t, 44, *awv[1].TimeIntervalDays)

	colon := byQM["Colon Cancer Screening"]
	require.Len(t, colon, 1)
	assert.Equal(t, "2024-06-20", *colon[0].Tracking1)
	assert.Equal(t, "2024-06-20", *colon[0].DueDate)
	assert.Equal(t, 19, *colon[0].TimeIntervalDays)
}

func TestExecute_PreviewNotFound(t *testing.T) {
	f := newExecutorFixture(t)

	_, err := f.exec.Execute(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrPreviewNotFound)

	var nf *PreviewNotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing", nf.ID)
}

func TestExecute_DuplicateSyncFailureStillSucceeds(t *testing.T) {
	f := newExecutorFixture(t)
	f.dups.err = errors.New("sync failed")
	id := f.stage(t, models.ModeMerge, row(0, "John Roe", "1970-01-01", "AWV", "Annual Wellness Visit", "AWV completed"))

	res, err := f.exec.Execute(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Stats.Inserted)
}
