package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/caregap/pkg/models"
)

const (
	patientsCollection = "patients"
	measuresCollection = "patient_measures"
)

// MongoStore persists patients and measures in MongoDB. Units of work run as
// multi-document transactions and need a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ Store = (*MongoStore)(nil)

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		client: client,
		db:     client.Database(database),
	}
}

func (s *MongoStore) patients() *mongo.Collection { return s.db.Collection(patientsCollection) }
func (s *MongoStore) measures() *mongo.Collection { return s.db.Collection(measuresCollection) }

func (s *MongoStore) LoadExisting(ctx context.Context) ([]models.ExistingRecord, error) {
	pcur, err := s.patients().Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}
	var patients []models.Patient
	if err := pcur.All(ctx, &patients); err != nil {
		return nil, fmt.Errorf("decode patients: %w", err)
	}
	byID := make(map[string]models.Patient, len(patients))
	for _, p := range patients {
		byID[p.ID] = p
	}

	opts := options.Find().SetSort(bson.D{{Key: "row_order", Value: 1}, {Key: "_id", Value: 1}})
	mcur, err := s.measures().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find measures: %w", err)
	}
	var measures []models.PatientMeasure
	if err := mcur.All(ctx, &measures); err != nil {
		return nil, fmt.Errorf("decode measures: %w", err)
	}
	return joinRecords(byID, measures), nil
}

func (s *MongoStore) Begin(ctx context.Context) (UnitOfWork, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return nil, fmt.Errorf("start transaction: %w", err)
	}
	return &mongoUnitOfWork{store: s, sess: sess}, nil
}

func (s *MongoStore) SyncAllDuplicateFlags(ctx context.Context) error {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "patient_id", Value: "$patient_id"},
				{Key: "request_type", Value: "$request_type"},
				{Key: "quality_measure", Value: "$quality_measure"},
			}},
			{Key: "ids", Value: bson.D{{Key: "$push", Value: "$_id"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "count", Value: bson.D{{Key: "$gt", Value: 1}}}}}},
	}
	cur, err := s.measures().Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate duplicates: %w", err)
	}
	var groups []struct {
		IDs []string `bson:"ids"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return fmt.Errorf("decode duplicate groups: %w", err)
	}

	dupIDs := []string{}
	for _, g := range groups {
		dupIDs = append(dupIDs, g.IDs...)
	}
	if len(dupIDs) > 0 {
		if _, err := s.measures().UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": dupIDs}},
			bson.M{"$set": bson.M{"is_duplicate": true}}); err != nil {
			return fmt.Errorf("flag duplicates: %w", err)
		}
	}
	if _, err := s.measures().UpdateMany(ctx,
		bson.M{"_id": bson.M{"$nin": dupIDs}, "is_duplicate": true},
		bson.M{"$set": bson.M{"is_duplicate": false}}); err != nil {
		return fmt.Errorf("clear duplicate flags: %w", err)
	}
	return nil
}

type mongoUnitOfWork struct {
	store *MongoStore
	sess  mongo.Session
	done  bool
}

func (u *mongoUnitOfWork) sc(ctx context.Context) mongo.SessionContext {
	return mongo.NewSessionContext(ctx, u.sess)
}

func (u *mongoUnitOfWork) FindPatient(ctx context.Context, name, dob string) (*models.Patient, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	var p models.Patient
	err := u.store.patients().FindOne(u.sc(ctx),
		bson.M{"member_name": name, "member_dob": dob}, opts).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return &p, nil
}

func (u *mongoUnitOfWork) CreatePatient(ctx context.Context, p *models.Patient) error {
	if _, err := u.store.patients().InsertOne(u.sc(ctx), p); err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (u *mongoUnitOfWork) UpdatePatient(ctx context.Context, p *models.Patient) error {
	res, err := u.store.patients().UpdateByID(u.sc(ctx), p.ID, bson.M{"$set": bson.M{
		"member_telephone": p.MemberTelephone,
		"member_address":   p.MemberAddress,
		"updated_at":       p.UpdatedAt,
	}})
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("patient %s: %w", p.ID, models.ErrNotFound)
	}
	return nil
}

func (u *mongoUnitOfWork) CreateMeasure(ctx context.Context, m *models.PatientMeasure) error {
	if _, err := u.store.measures().InsertOne(u.sc(ctx), m); err != nil {
		return fmt.Errorf("insert measure: %w", err)
	}
	return nil
}

func (u *mongoUnitOfWork) UpdateMeasure(ctx context.Context, m *models.PatientMeasure) error {
	set := bson.M{
		"measure_status":     m.MeasureStatus,
		"status_date":        m.StatusDate,
		"due_date":           m.DueDate,
		"time_interval_days": m.TimeIntervalDays,
		"updated_at":         m.UpdatedAt,
	}
	if m.Tracking1 != nil {
		set["tracking1"] = m.Tracking1
	}
	if m.Tracking2 != nil {
		set["tracking2"] = m.Tracking2
	}
	res, err := u.store.measures().UpdateByID(u.sc(ctx), m.ID, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update measure: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("measure %s: %w", m.ID, models.ErrNotFound)
	}
	return nil
}

func (u *mongoUnitOfWork) DeleteMeasures(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := u.store.measures().DeleteMany(u.sc(ctx), bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("delete measures: %w", err)
	}
	return int(res.DeletedCount), nil
}

func (u *mongoUnitOfWork) MaxMeasureOrder(ctx context.Context) (int, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "row_order", Value: -1}}).
		SetProjection(bson.M{"row_order": 1})
	var doc struct {
		RowOrder int `bson:"row_order"`
	}
	err := u.store.measures().FindOne(u.sc(ctx), bson.M{}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query max row order: %w", err)
	}
	return doc.RowOrder, nil
}

func (u *mongoUnitOfWork) Commit(ctx context.Context) error {
	defer u.end(ctx)
	if err := u.sess.CommitTransaction(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (u *mongoUnitOfWork) Rollback(ctx context.Context) error {
	if u.done {
		return nil
	}
	defer u.end(ctx)
	if err := u.sess.AbortTransaction(ctx); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (u *mongoUnitOfWork) end(ctx context.Context) {
	if u.done {
		return
	}
	u.done = true
	u.sess.EndSession(ctx)
}
