// Package submission tracks student attempts at exams from the first saved
// answer through grading and review.
package submission

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"lms_core/backend/internal/shared"
)

// ErrStale is returned by Replace when the stored submission changed after
// it was loaded.
var ErrStale = errors.New("submission was modified concurrently")

// Filter narrows List; zero values match everything
type Filter struct {
	Exam    *primitive.ObjectID
	Student *primitive.ObjectID
}

// Store persists submissions
type Store interface {
	Insert(ctx context.Context, sub *shared.ExamSubmission) error
	Get(ctx context.Context, id primitive.ObjectID) (*shared.ExamSubmission, error)
	// Replace writes sub only if the stored copy still carries prevUpdatedAt.
	Replace(ctx context.Context, sub *shared.ExamSubmission, prevUpdatedAt primitive.DateTime) error
	List(ctx context.Context, filter Filter) ([]shared.ExamSubmission, error)
}
