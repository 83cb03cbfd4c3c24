package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlserver"

	"github.com/BartekS5/caregap/pkg/models"
	"github.com/BartekS5/caregap/pkg/utils"
)

const (
	patientsTable = "patients"
	measuresTable = "patient_measures"

	// SQL Server caps a statement at 2100 parameters.
	deleteChunk = 1000
)

// SQLStore persists patients and measures in SQL Server.
type SQLStore struct {
	db      *sql.DB
	dialect goqu.DialectWrapper
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open connection pool.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: goqu.Dialect("sqlserver"),
	}
}

func (s *SQLStore) LoadExisting(ctx context.Context) ([]models.ExistingRecord, error) {
	query, args, err := s.dialect.
		From(goqu.T(measuresTable).As("m")).
		Join(goqu.T(patientsTable).As("p"), goqu.On(goqu.I("m.patient_id").Eq(goqu.I("p.id")))).
		Select(
			goqu.I("p.id"), goqu.I("m.id"),
			goqu.I("p.member_name"), goqu.I("p.member_dob"),
			goqu.I("m.request_type"), goqu.I("m.quality_measure"),
			goqu.I("m.measure_status"), goqu.I("p.owner_id"),
		).
		Order(goqu.I("m.row_order").Asc(), goqu.I("m.id").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build existing records query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing records: %w", err)
	}
	defer rows.Close()

	var records []models.ExistingRecord
	for rows.Next() {
		var (
			r      models.ExistingRecord
			dob    time.Time
			status sql.NullString
			owner  sql.NullString
		)
		if err := rows.Scan(&r.PatientID, &r.MeasureID, &r.MemberName, &dob,
			&r.RequestType, &r.QualityMeasure, &status, &owner); err != nil {
			return nil, fmt.Errorf("scan existing record: %w", err)
		}
		r.MemberDob = utils.FormatDate(dob)
		r.MeasureStatus = fromNullString(status)
		r.OwnerID = fromNullString(owner)
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &sqlUnitOfWork{tx: tx, dialect: s.dialect}, nil
}

func (s *SQLStore) SyncAllDuplicateFlags(ctx context.Context) error {
	const query = `UPDATE m SET is_duplicate = CASE WHEN g.cnt > 1 THEN 1 ELSE 0 END
FROM patient_measures m
JOIN (
	SELECT patient_id, request_type, quality_measure, COUNT(*) AS cnt
	FROM patient_measures
	GROUP BY patient_id, request_type, quality_measure
) g ON g.patient_id = m.patient_id
	AND g.request_type = m.request_type
	AND g.quality_measure = m.quality_measure`

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("sync duplicate flags: %w", err)
	}
	return nil
}

type sqlUnitOfWork struct {
	tx      *sql.Tx
	dialect goqu.DialectWrapper
}

func (u *sqlUnitOfWork) FindPatient(ctx context.Context, name, dob string) (*models.Patient, error) {
	query, args, err := u.dialect.From(patientsTable).
		Select("id", "member_name", "member_dob", "member_telephone", "member_address",
			"owner_id", "created_at", "updated_at").
		Where(goqu.Ex{"member_name": name, "member_dob": dob}).
		Order(goqu.I("created_at").Asc()).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build patient query: %w", err)
	}

	var (
		p     models.Patient
		dobAt time.Time
		phone sql.NullString
		addr  sql.NullString
		owner sql.NullString
	)
	err = u.tx.QueryRowContext(ctx, query, args...).Scan(&p.ID, &p.MemberName, &dobAt,
		&phone, &addr, &owner, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find patient: %w", err)
	}
	p.MemberDob = utils.FormatDate(dobAt)
	p.MemberTelephone = fromNullString(phone)
	p.MemberAddress = fromNullString(addr)
	p.OwnerID = fromNullString(owner)
	return &p, nil
}

func (u *sqlUnitOfWork) CreatePatient(ctx context.Context, p *models.Patient) error {
	record := goqu.Record{
		"id":               p.ID,
		"member_name":      p.MemberName,
		"member_dob":       p.MemberDob,
		"member_telephone": toNullString(p.MemberTelephone),
		"member_address":   toNullString(p.MemberAddress),
		"owner_id":         toNullString(p.OwnerID),
		"created_at":       p.CreatedAt,
		"updated_at":       p.UpdatedAt,
	}
	query, args, err := u.dialect.Insert(patientsTable).Rows(record).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build patient insert: %w", err)
	}
	if _, err := u.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (u *sqlUnitOfWork) UpdatePatient(ctx context.Context, p *models.Patient) error {
	record := goqu.Record{
		"member_telephone": toNullString(p.MemberTelephone),
		"member_address":   toNullString(p.MemberAddress),
		"updated_at":       p.UpdatedAt,
	}
	query, args, err := u.dialect.Update(patientsTable).Set(record).
		Where(goqu.Ex{"id": p.ID}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build patient update: %w", err)
	}
	return execOne(ctx, u.tx, query, args, "patient", p.ID)
}

func (u *sqlUnitOfWork) CreateMeasure(ctx context.Context, m *models.PatientMeasure) error {
	record := goqu.Record{
		"id":                 m.ID,
		"patient_id":         m.PatientID,
		"request_type":       m.RequestType,
		"quality_measure":    m.QualityMeasure,
		"measure_status":     toNullString(m.MeasureStatus),
		"status_date":        toNullString(m.StatusDate),
		"due_date":           toNullString(m.DueDate),
		"time_interval_days": toNullInt(m.TimeIntervalDays),
		"tracking1":          toNullString(m.Tracking1),
		"tracking2":          toNullString(m.Tracking2),
		"is_duplicate":       m.IsDuplicate,
		"row_order":          m.RowOrder,
		"created_at":         m.CreatedAt,
		"updated_at":         m.UpdatedAt,
	}
	query, args, err := u.dialect.Insert(measuresTable).Rows(record).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build measure insert: %w", err)
	}
	if _, err := u.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert measure: %w", err)
	}
	return nil
}

func (u *sqlUnitOfWork) UpdateMeasure(ctx context.Context, m *models.PatientMeasure) error {
	record := goqu.Record{
		"measure_status":     toNullString(m.MeasureStatus),
		"status_date":        toNullString(m.StatusDate),
		"due_date":           toNullString(m.DueDate),
		"time_interval_days": toNullInt(m.TimeIntervalDays),
		"updated_at":         m.UpdatedAt,
	}
	if m.Tracking1 != nil {
		record["tracking1"] = *m.Tracking1
	}
	if m.Tracking2 != nil {
		record["tracking2"] = *m.Tracking2
	}
	query, args, err := u.dialect.Update(measuresTable).Set(record).
		Where(goqu.Ex{"id": m.ID}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build measure update: %w", err)
	}
	return execOne(ctx, u.tx, query, args, "measure", m.ID)
}

func (u *sqlUnitOfWork) DeleteMeasures(ctx context.Context, ids []string) (int, error) {
	total := 0
	for start := 0; start < len(ids); start += deleteChunk {
		end := start + deleteChunk
		if end > len(ids) {
			end = len(ids)
		}
		query, args, err := u.dialect.Delete(measuresTable).
			Where(goqu.Ex{"id": ids[start:end]}).Prepared(true).ToSQL()
		if err != nil {
			return total, fmt.Errorf("build measure delete: %w", err)
		}
		res, err := u.tx.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("delete measures: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("delete measures: %w", err)
		}
		total += int(n)
	}
	return total, nil
}

func (u *sqlUnitOfWork) MaxMeasureOrder(ctx context.Context) (int, error) {
	query, args, err := u.dialect.From(measuresTable).
		Select(goqu.COALESCE(goqu.MAX("row_order"), 0)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build row order query: %w", err)
	}
	var max int
	if err := u.tx.QueryRowContext(ctx, query, args...).Scan(&max); err != nil {
		return 0, fmt.Errorf("query max row order: %w", err)
	}
	return max, nil
}

func (u *sqlUnitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (u *sqlUnitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func execOne(ctx context.Context, tx *sql.Tx, query string, args []interface{}, kind, id string) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", kind, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrNotFound)
	}
	return nil
}

func toNullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func fromNullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func toNullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
