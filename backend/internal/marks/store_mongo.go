package marks

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lms_core/backend/internal/shared"
)

// MongoStore keeps score records of every kind in one collection and
// ledgers in the marks collection.
type MongoStore struct {
	shared.MongoTx

	recordsCol *mongo.Collection
	ledgerCol  *mongo.Collection
}

// NewMongoStore creates a store over db
func NewMongoStore(client *mongo.Client, db *mongo.Database, useTransactions bool) *MongoStore {
	return &MongoStore{
		MongoTx:    shared.MongoTx{Client: client, Enabled: useTransactions},
		recordsCol: db.Collection(shared.CollectionScoreRecords),
		ledgerCol:  db.Collection(shared.CollectionLedgers),
	}
}

// InsertRecord implements Store
func (s *MongoStore) InsertRecord(ctx context.Context, rec *shared.ScoreRecord) error {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	_, err := s.recordsCol.InsertOne(queryCtx, rec)
	return shared.MapMongoError(err)
}

// GetRecord implements Store
func (s *MongoStore) GetRecord(ctx context.Context, kind string, id primitive.ObjectID) (*shared.ScoreRecord, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	var rec shared.ScoreRecord
	err := s.recordsCol.FindOne(queryCtx, bson.M{"_id": id, "kind": kind}).Decode(&rec)
	if err != nil {
		return nil, shared.MapMongoError(err)
	}
	return &rec, nil
}

// ReplaceRecord implements Store
func (s *MongoStore) ReplaceRecord(ctx context.Context, rec *shared.ScoreRecord) error {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	res, err := s.recordsCol.ReplaceOne(queryCtx, bson.M{"_id": rec.ID, "kind": rec.Kind}, rec)
	if err != nil {
		return shared.MapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteRecord implements Store
func (s *MongoStore) DeleteRecord(ctx context.Context, kind string, id primitive.ObjectID) error {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	res, err := s.recordsCol.DeleteOne(queryCtx, bson.M{"_id": id, "kind": kind})
	if err != nil {
		return shared.MapMongoError(err)
	}
	if res.DeletedCount == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListRecords implements Store
func (s *MongoStore) ListRecords(ctx context.Context, filter RecordFilter) ([]shared.ScoreRecord, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	query := bson.M{}
	if filter.Kind != "" {
		query["kind"] = filter.Kind
	}
	if filter.Student != nil {
		query["student"] = *filter.Student
	}

	cursor, err := s.recordsCol.Find(queryCtx, query, shared.BuildFindOptions(0, "created_at", 1))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(queryCtx)

	records := []shared.ScoreRecord{}
	if err := cursor.All(queryCtx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetLedger implements Store
func (s *MongoStore) GetLedger(ctx context.Context, student primitive.ObjectID) (*shared.MarksLedger, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	var l shared.MarksLedger
	if err := s.ledgerCol.FindOne(queryCtx, bson.M{"student": student}).Decode(&l); err != nil {
		return nil, shared.MapMongoError(err)
	}
	return &l, nil
}

// floorAdd adds d to field, rounds to two decimals and floors at zero
func floorAdd(field string, d float64) bson.M {
	sum := bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$" + field, 0}}, d}}
	return bson.M{"$max": bson.A{0, bson.M{"$round": bson.A{sum, 2}}}}
}

// gradeExpr evaluates shared.LetterGrade inside the update pipeline. The
// field is removed while max_marks is zero.
func gradeExpr() bson.M {
	branches := make(bson.A, 0, len(shared.GradeBands))
	for _, b := range shared.GradeBands {
		branches = append(branches, bson.M{
			"case": bson.M{"$gte": bson.A{
				bson.M{"$multiply": bson.A{"$total_marks", 100}},
				bson.M{"$multiply": bson.A{"$max_marks", b.MinPercent}},
			}},
			"then": b.Grade,
		})
	}
	return bson.M{"$cond": bson.A{
		bson.M{"$gt": bson.A{"$max_marks", 0}},
		bson.M{"$switch": bson.M{"branches": branches, "default": shared.GradeF}},
		"$$REMOVE",
	}}
}

// ApplyLedgerDelta implements Store. The accumulators and the grade change
// in a single pipeline update so concurrent deltas for one student never
// overwrite each other.
func (s *MongoStore) ApplyLedgerDelta(ctx context.Context, student primitive.ObjectID, d LedgerDelta) (*shared.MarksLedger, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	now := time.Now().UTC()
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"student":    student,
			"ca_marks":   floorAdd("ca_marks", d.CA),
			"exam_marks": floorAdd("exam_marks", d.Exam),
			"max_marks":  floorAdd("max_marks", d.Max),
			"updated_at": now,
		}}},
		{{Key: "$set", Value: bson.M{
			"total_marks": bson.M{"$round": bson.A{bson.M{"$add": bson.A{"$ca_marks", "$exam_marks"}}, 2}},
		}}},
		{{Key: "$set", Value: bson.M{"grade": gradeExpr()}}},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var l shared.MarksLedger
	if err := s.ledgerCol.FindOneAndUpdate(queryCtx, bson.M{"student": student}, pipeline, opts).Decode(&l); err != nil {
		return nil, shared.MapMongoError(err)
	}

	return &l, nil
}

// ReplaceLedger implements Store
func (s *MongoStore) ReplaceLedger(ctx context.Context, l *shared.MarksLedger) error {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	doc := *l
	doc.ID = primitive.NilObjectID
	_, err := s.ledgerCol.ReplaceOne(queryCtx, bson.M{"student": l.Student}, doc, options.Replace().SetUpsert(true))
	return shared.MapMongoError(err)
}
