package submission

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"lms_core/backend/internal/shared"
)

// MongoStore keeps submissions in the exam_submissions collection
type MongoStore struct {
	col *mongo.Collection
}

// NewMongoStore creates a store over db
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection(shared.CollectionSubmissions)}
}

// Insert implements Store
func (s *MongoStore) Insert(ctx context.Context, sub *shared.ExamSubmission) error {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	_, err := s.col.InsertOne(queryCtx, sub)
	return shared.MapMongoError(err)
}

// Get implements Store
func (s *MongoStore) Get(ctx context.Context, id primitive.ObjectID) (*shared.ExamSubmission, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	var sub shared.ExamSubmission
	if err := s.col.FindOne(queryCtx, bson.M{"_id": id}).Decode(&sub); err != nil {
		return nil, shared.MapMongoError(err)
	}
	return &sub, nil
}

// Replace implements Store
func (s *MongoStore) Replace(ctx context.Context, sub *shared.ExamSubmission, prevUpdatedAt primitive.DateTime) error {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	res, err := s.col.ReplaceOne(queryCtx, bson.M{"_id": sub.ID, "updated_at": prevUpdatedAt}, sub)
	if err != nil {
		return shared.MapMongoError(err)
	}
	if res.MatchedCount == 0 {
		count, err := s.col.CountDocuments(queryCtx, bson.M{"_id": sub.ID})
		if err != nil {
			return err
		}
		if count == 0 {
			return shared.ErrNotFound
		}
		return ErrStale
	}
	return nil
}

// List implements Store; newest first
func (s *MongoStore) List(ctx context.Context, filter Filter) ([]shared.ExamSubmission, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	query := bson.M{}
	if filter.Exam != nil {
		query["exam"] = *filter.Exam
	}
	if filter.Student != nil {
		query["student"] = *filter.Student
	}

	cursor, err := s.col.Find(queryCtx, query, shared.BuildFindOptions(0, "created_at", -1))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(queryCtx)

	subs := []shared.ExamSubmission{}
	if err := cursor.All(queryCtx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}
