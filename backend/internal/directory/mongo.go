package directory

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lms_core/backend/internal/shared"
)

// MongoDirectory reads users and sources from their collections
type MongoDirectory struct {
	usersCol       *mongo.Collection
	assessmentsCol *mongo.Collection
	assignmentsCol *mongo.Collection
	examsCol       *mongo.Collection
}

// NewMongoDirectory creates a directory over db
func NewMongoDirectory(db *mongo.Database) *MongoDirectory {
	return &MongoDirectory{
		usersCol:       db.Collection(shared.CollectionUsers),
		assessmentsCol: db.Collection(shared.CollectionAssessments),
		assignmentsCol: db.Collection(shared.CollectionAssignments),
		examsCol:       db.Collection(shared.CollectionExams),
	}
}

// GetUser finds a user by id
func (d *MongoDirectory) GetUser(ctx context.Context, id primitive.ObjectID) (*shared.User, error) {
	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	var user shared.User
	opts := options.FindOne().SetProjection(bson.M{"password_hash": 0})
	if err := d.usersCol.FindOne(queryCtx, bson.M{"_id": id}, opts).Decode(&user); err != nil {
		return nil, shared.MapMongoError(err)
	}
	return &user, nil
}

// GetSource finds the graded item of the given kind
func (d *MongoDirectory) GetSource(ctx context.Context, kind string, id primitive.ObjectID) (*shared.Source, error) {
	col, err := d.sourceCollection(kind)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, shared.QueryTimeout)
	defer cancel()

	var source shared.Source
	opts := options.FindOne().SetProjection(bson.M{"title": 1, "total_marks": 1})
	if err := col.FindOne(queryCtx, bson.M{"_id": id}, opts).Decode(&source); err != nil {
		return nil, shared.MapMongoError(err)
	}
	source.Kind = kind
	return &source, nil
}

func (d *MongoDirectory) sourceCollection(kind string) (*mongo.Collection, error) {
	switch kind {
	case shared.KindAssessment:
		return d.assessmentsCol, nil
	case shared.KindAssignment:
		return d.assignmentsCol, nil
	case shared.KindExam:
		return d.examsCol, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}
