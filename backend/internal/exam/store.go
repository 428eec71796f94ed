// Package exam authors IELTS-style exams: exams own ordered sections and
// sections own ordered questions.
package exam

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"lms_core/backend/internal/shared"
)

// ExamFilter narrows ListExams; zero values match everything
type ExamFilter struct {
	CreatedBy     *primitive.ObjectID
	PublishedOnly bool
}

// Matches reports whether e passes the filter
func (f ExamFilter) Matches(e *shared.Exam) bool {
	if f.CreatedBy != nil && e.CreatedBy != *f.CreatedBy {
		return false
	}
	if f.PublishedOnly && !e.IsOpen() {
		return false
	}
	return true
}

// StatusChange holds the exam flags to set; nil fields are left alone
type StatusChange struct {
	Status    *string
	Available *bool
}

// Store persists the exam aggregate. Lookups return shared.ErrNotFound for
// missing documents and InsertExam returns shared.ErrDuplicate when the
// creator already has an exam with the same title.
type Store interface {
	shared.TxRunner

	InsertExam(ctx context.Context, e *shared.Exam) error
	GetExam(ctx context.Context, id primitive.ObjectID) (*shared.Exam, error)
	ListExams(ctx context.Context, filter ExamFilter) ([]shared.Exam, error)
	UpdateExamStatus(ctx context.Context, id primitive.ObjectID, change StatusChange, now time.Time) (*shared.Exam, error)
	AppendSection(ctx context.Context, examID, sectionID primitive.ObjectID, now time.Time) error
	IncrementQuestions(ctx context.Context, examID primitive.ObjectID, n int, now time.Time) error

	InsertSection(ctx context.Context, s *shared.Section) error
	GetSection(ctx context.Context, id primitive.ObjectID) (*shared.Section, error)
	// ListSections returns the sections of an exam sorted by order
	ListSections(ctx context.Context, examID primitive.ObjectID) ([]shared.Section, error)
	AppendQuestion(ctx context.Context, sectionID, questionID primitive.ObjectID) error

	InsertQuestion(ctx context.Context, q *shared.Question) error
	GetQuestion(ctx context.Context, id primitive.ObjectID) (*shared.Question, error)
	// ListQuestions returns the questions of a section sorted by order
	ListQuestions(ctx context.Context, sectionID primitive.ObjectID) ([]shared.Question, error)
}
