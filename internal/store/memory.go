package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/BartekS5/caregap/pkg/models"
)

// MemoryStore keeps patients and measures in process. Transactions are
// serialized and work on a private copy that replaces the live data on Commit.
type MemoryStore struct {
	txMu     sync.Mutex
	mu       sync.RWMutex
	patients map[string]models.Patient
	measures map[string]models.PatientMeasure
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients: make(map[string]models.Patient),
		measures: make(map[string]models.PatientMeasure),
	}
}

func (s *MemoryStore) LoadExisting(ctx context.Context) ([]models.ExistingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return joinRecords(s.patients, sortedMeasures(s.measures)), nil
}

// Patients returns a copy of every stored patient.
func (s *MemoryStore) Patients() []models.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Patient, 0, len(s.patients))
	for _, p := range s.patients {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Measures returns a copy of every stored measure ordered by row order.
func (s *MemoryStore) Measures() []models.PatientMeasure {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedMeasures(s.measures)
}

// Seed inserts records directly, outside any transaction.
func (s *MemoryStore) Seed(patients []models.Patient, measures []models.PatientMeasure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patients {
		s.patients[p.ID] = p
	}
	for _, m := range measures {
		s.measures[m.ID] = m
	}
}

func (s *MemoryStore) Begin(ctx context.Context) (UnitOfWork, error) {
	s.txMu.Lock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := &memoryUnitOfWork{
		store:    s,
		patients: make(map[string]models.Patient, len(s.patients)),
		measures: make(map[string]models.PatientMeasure, len(s.measures)),
	}
	for k, v := range s.patients {
		u.patients[k] = v
	}
	for k, v := range s.measures {
		u.measures[k] = v
	}
	return u, nil
}

func (s *MemoryStore) SyncAllDuplicateFlags(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[duplicateKey]int)
	for _, m := range s.measures {
		counts[keyOf(m)]++
	}
	for id, m := range s.measures {
		m.IsDuplicate = counts[keyOf(m)] > 1
		s.measures[id] = m
	}
	return nil
}

type duplicateKey struct {
	patientID, requestType, qualityMeasure string
}

func keyOf(m models.PatientMeasure) duplicateKey {
	return duplicateKey{m.PatientID, m.RequestType, m.QualityMeasure}
}

var errTxDone = errors.New("transaction already finished")

type memoryUnitOfWork struct {
	store    *MemoryStore
	patients map[string]models.Patient
	measures map[string]models.PatientMeasure
	done     bool
}

func (u *memoryUnitOfWork) FindPatient(ctx context.Context, name, dob string) (*models.Patient, error) {
	if u.done {
		return nil, errTxDone
	}
	var found *models.Patient
	for _, p := range u.patients {
		if p.MemberName == name && p.MemberDob == dob {
			if found == nil || p.CreatedAt.Before(found.CreatedAt) {
				cp := p
				found = &cp
			}
		}
	}
	return found, nil
}

func (u *memoryUnitOfWork) CreatePatient(ctx context.Context, p *models.Patient) error {
	if u.done {
		return errTxDone
	}
	if _, exists := u.patients[p.ID]; exists {
		return fmt.Errorf("patient %s already exists", p.ID)
	}
	u.patients[p.ID] = *p
	return nil
}

func (u *memoryUnitOfWork) UpdatePatient(ctx context.Context, p *models.Patient) error {
	if u.done {
		return errTxDone
	}
	cur, ok := u.patients[p.ID]
	if !ok {
		return fmt.Errorf("patient %s: %w", p.ID, models.ErrNotFound)
	}
	cur.MemberTelephone = p.MemberTelephone
	cur.MemberAddress = p.MemberAddress
	cur.UpdatedAt = p.UpdatedAt
	u.patients[p.ID] = cur
	return nil
}

func (u *memoryUnitOfWork) CreateMeasure(ctx context.Context, m *models.PatientMeasure) error {
	if u.done {
		return errTxDone
	}
	if _, ok := u.patients[m.PatientID]; !ok {
		return fmt.Errorf("measure %s references missing patient %s", m.ID, m.PatientID)
	}
	if _, exists := u.measures[m.ID]; exists {
		return fmt.Errorf("measure %s already exists", m.ID)
	}
	u.measures[m.ID] = *m
	return nil
}

func (u *memoryUnitOfWork) UpdateMeasure(ctx context.Context, m *models.PatientMeasure) error {
	if u.done {
		return errTxDone
	}
	cur, ok := u.measures[m.ID]
	if !ok {
		return fmt.Errorf("measure %s: %w", m.ID, models.ErrNotFound)
	}
	cur.MeasureStatus = m.MeasureStatus
	cur.StatusDate = m.StatusDate
	cur.DueDate = m.DueDate
	cur.TimeIntervalDays = m.TimeIntervalDays
	if m.Tracking1 != nil {
		cur.Tracking1 = m.Tracking1
	}
	if m.Tracking2 != nil {
		cur.Tracking2 = m.Tracking2
	}
	cur.UpdatedAt = m.UpdatedAt
	u.measures[m.ID] = cur
	return nil
}

func (u *memoryUnitOfWork) DeleteMeasures(ctx context.Context, ids []string) (int, error) {
	if u.done {
		return 0, errTxDone
	}
	n := 0
	for _, id := range ids {
		if _, ok := u.measures[id]; ok {
			delete(u.measures, id)
			n++
		}
	}
	return n, nil
}

func (u *memoryUnitOfWork) MaxMeasureOrder(ctx context.Context) (int, error) {
	if u.done {
		return 0, errTxDone
	}
	max := 0
	for _, m := range u.measures {
		if m.RowOrder > max {
			max = m.RowOrder
		}
	}
	return max, nil
}

func (u *memoryUnitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return errTxDone
	}
	u.store.mu.Lock()
	u.store.patients = u.patients
	u.store.measures = u.measures
	u.store.mu.Unlock()
	u.finish()
	return nil
}

func (u *memoryUnitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.finish()
	return nil
}

func (u *memoryUnitOfWork) finish() {
	u.done = true
	u.store.txMu.Unlock()
}

func sortedMeasures(measures map[string]models.PatientMeasure) []models.PatientMeasure {
	out := make([]models.PatientMeasure, 0, len(measures))
	for _, m := range measures {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RowOrder != out[j].RowOrder {
			return out[i].RowOrder < out[j].RowOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// joinRecords pairs measures (already in row order) with their patients.
func joinRecords(patients map[string]models.Patient, measures []models.PatientMeasure) []models.ExistingRecord {
	records := make([]models.ExistingRecord, 0, len(measures))
	for _, m := range measures {
		p, ok := patients[m.PatientID]
		if !ok {
			continue
		}
		records = append(records, models.ExistingRecord{
			PatientID:      p.ID,
			MeasureID:      m.ID,
			MemberName:     p.MemberName,
			MemberDob:      p.MemberDob,
			RequestType:    m.RequestType,
			QualityMeasure: m.QualityMeasure,
			MeasureStatus:  m.MeasureStatus,
			OwnerID:        p.OwnerID,
		})
	}
	return records
}
