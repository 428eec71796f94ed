package exam

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lms_core/backend/internal/shared"
)

// MongoStore keeps exams, sections and questions in their own collections
type MongoStore struct {
	shared.MongoTx

	examsCol     *mongo.Collection
	sectionsCol  *mongo.Collection
	questionsCol *mongo.Collection
}

// NewMongoStore creates a store over db
func NewMongoStore(client *mongo.Client, db *mongo.Database, useTransactions bool) *MongoStore {
	return &MongoStore{
		MongoTx:      shared.MongoTx{Client: client, Enabled: useTransactions},
		examsCol:     db.Collection(shared.CollectionExams),
		sectionsCol:  db.Collection(shared.CollectionSections),
		questionsCol: db.Collection(shared.CollectionQuestions),
	}
}

var byOrder = bson.D{{Key: "order", Value: 1}, {Key: "created_at", Value: 1}}

// InsertExam implements Store; the (title, created_by) unique index reports duplicates
func (s *MongoStore) InsertExam(ctx context.Context, e *shared.Exam) error {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	_, err := s.examsCol.InsertOne(queryCtx, e)
	return shared.MapMongoError(err)
}

// GetExam implements Store
func (s *MongoStore) GetExam(ctx context.Context, id primitive.ObjectID) (*shared.Exam, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	var e shared.Exam
	if err := s.examsCol.FindOne(queryCtx, bson.M{"_id": id}).Decode(&e); err != nil {
		return nil, shared.MapMongoError(err)
	}
	return &e, nil
}

// ListExams implements Store; newest first
func (s *MongoStore) ListExams(ctx context.Context, filter ExamFilter) ([]shared.Exam, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	query := bson.M{}
	if filter.CreatedBy != nil {
		query["created_by"] = *filter.CreatedBy
	}
	if filter.PublishedOnly {
		query["status"] = shared.ExamPublished
		query["available"] = true
	}

	cursor, err := s.examsCol.Find(queryCtx, query, shared.BuildFindOptions(0, "created_at", -1))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(queryCtx)

	exams := []shared.Exam{}
	if err := cursor.All(queryCtx, &exams); err != nil {
		return nil, err
	}
	return exams, nil
}

// UpdateExamStatus implements Store
func (s *MongoStore) UpdateExamStatus(ctx context.Context, id primitive.ObjectID, change StatusChange, now time.Time) (*shared.Exam, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	set := bson.M{"updated_at": now}
	if change.Status != nil {
		set["status"] = *change.Status
	}
	if change.Available != nil {
		set["available"] = *change.Available
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var e shared.Exam
	if err := s.examsCol.FindOneAndUpdate(queryCtx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&e); err != nil {
		return nil, shared.MapMongoError(err)
	}
	return &e, nil
}

// AppendSection implements Store
func (s *MongoStore) AppendSection(ctx context.Context, examID, sectionID primitive.ObjectID, now time.Time) error {
	return s.updateExam(ctx, examID, bson.M{
		"$push": bson.M{"sections": sectionID},
		"$set":  bson.M{"updated_at": now},
	})
}

// IncrementQuestions implements Store
func (s *MongoStore) IncrementQuestions(ctx context.Context, examID primitive.ObjectID, n int, now time.Time) error {
	return s.updateExam(ctx, examID, bson.M{
		"$inc": bson.M{"total_questions": n},
		"$set": bson.M{"updated_at": now},
	})
}

func (s *MongoStore) updateExam(ctx context.Context, examID primitive.ObjectID, update bson.M) error {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	res, err := s.examsCol.UpdateOne(queryCtx, bson.M{"_id": examID}, update)
	if err != nil {
		return shared.MapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// InsertSection implements Store
func (s *MongoStore) InsertSection(ctx context.Context, sec *shared.Section) error {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	_, err := s.sectionsCol.InsertOne(queryCtx, sec)
	return shared.MapMongoError(err)
}

// GetSection implements Store
func (s *MongoStore) GetSection(ctx context.Context, id primitive.ObjectID) (*shared.Section, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	var sec shared.Section
	if err := s.sectionsCol.FindOne(queryCtx, bson.M{"_id": id}).Decode(&sec); err != nil {
		return nil, shared.MapMongoError(err)
	}
	return &sec, nil
}

// ListSections implements Store
func (s *MongoStore) ListSections(ctx context.Context, examID primitive.ObjectID) ([]shared.Section, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	cursor, err := s.sectionsCol.Find(queryCtx, bson.M{"exam": examID}, options.Find().SetSort(byOrder))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(queryCtx)

	sections := []shared.Section{}
	if err := cursor.All(queryCtx, &sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// AppendQuestion implements Store
func (s *MongoStore) AppendQuestion(ctx context.Context, sectionID, questionID primitive.ObjectID) error {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	res, err := s.sectionsCol.UpdateOne(queryCtx, bson.M{"_id": sectionID}, bson.M{"$push": bson.M{"questions": questionID}})
	if err != nil {
		return shared.MapMongoError(err)
	}
	if res.MatchedCount == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// InsertQuestion implements Store
func (s *MongoStore) InsertQuestion(ctx context.Context, q *shared.Question) error {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	_, err := s.questionsCol.InsertOne(queryCtx, q)
	return shared.MapMongoError(err)
}

// GetQuestion implements Store
func (s *MongoStore) GetQuestion(ctx context.Context, id primitive.ObjectID) (*shared.Question, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	var q shared.Question
	if err := s.questionsCol.FindOne(queryCtx, bson.M{"_id": id}).Decode(&q); err != nil {
		return nil, shared.MapMongoError(err)
	}
	return &q, nil
}

// ListQuestions implements Store
func (s *MongoStore) ListQuestions(ctx context.Context, sectionID primitive.ObjectID) ([]shared.Question, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	cursor, err := s.questionsCol.Find(queryCtx, bson.M{"section": sectionID}, options.Find().SetSort(byOrder))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(queryCtx)

	questions := []shared.Question{}
	if err := cursor.All(queryCtx, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}
