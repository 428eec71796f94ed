package marks

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"lms_core/backend/internal/shared"
)

// LedgerDelta is a signed change applied to one student's ledger
type LedgerDelta struct {
	CA   float64
	Exam float64
	Max  float64
}

// deltaFor builds the delta a record of kind adds to its ledger
func deltaFor(kind string, contribution, weight float64) LedgerDelta {
	if shared.BucketFor(kind) == shared.BucketExam {
		return LedgerDelta{Exam: contribution, Max: weight}
	}
	return LedgerDelta{CA: contribution, Max: weight}
}

// Plus adds two deltas
func (d LedgerDelta) Plus(o LedgerDelta) LedgerDelta {
	return LedgerDelta{CA: d.CA + o.CA, Exam: d.Exam + o.Exam, Max: d.Max + o.Max}
}

// Negate flips the sign of every component
func (d LedgerDelta) Negate() LedgerDelta {
	return LedgerDelta{CA: -d.CA, Exam: -d.Exam, Max: -d.Max}
}

// IsZero reports whether applying d changes nothing
func (d LedgerDelta) IsZero() bool {
	return d.CA == 0 && d.Exam == 0 && d.Max == 0
}

// String renders a delta for logs
func (d LedgerDelta) String() string {
	return fmt.Sprintf("ca=%+.2f exam=%+.2f max=%+.2f", d.CA, d.Exam, d.Max)
}

// ApplyDelta returns the ledger after d: each accumulator is rounded to two
// decimals and floored at zero, the total is the sum of both buckets and the
// grade is recomputed. l may be nil for a student without a ledger.
func ApplyDelta(l *shared.MarksLedger, student primitive.ObjectID, d LedgerDelta, now time.Time) shared.MarksLedger {
	var out shared.MarksLedger
	if l != nil {
		out = *l
	}
	out.Student = student
	out.CAMarks = floorRound(out.CAMarks + d.CA)
	out.ExamMarks = floorRound(out.ExamMarks + d.Exam)
	out.MaxMarks = floorRound(out.MaxMarks + d.Max)
	out.TotalMarks = shared.Round2(out.CAMarks + out.ExamMarks)
	out.Grade = shared.LetterGrade(out.TotalMarks, out.MaxMarks)
	out.UpdatedAt = now
	return out
}

func floorRound(v float64) float64 {
	v = shared.Round2(v)
	if v < 0 {
		return 0
	}
	return v
}

// RecordFilter narrows ListRecords; zero values match everything
type RecordFilter struct {
	Kind    string
	Student *primitive.ObjectID
}

// Store persists score records and ledgers. Lookups return
// shared.ErrNotFound when nothing matches.
type Store interface {
	shared.TxRunner

	InsertRecord(ctx context.Context, rec *shared.ScoreRecord) error
	GetRecord(ctx context.Context, kind string, id primitive.ObjectID) (*shared.ScoreRecord, error)
	ReplaceRecord(ctx context.Context, rec *shared.ScoreRecord) error
	DeleteRecord(ctx context.Context, kind string, id primitive.ObjectID) error
	ListRecords(ctx context.Context, filter RecordFilter) ([]shared.ScoreRecord, error)

	GetLedger(ctx context.Context, student primitive.ObjectID) (*shared.MarksLedger, error)
	// ApplyLedgerDelta upserts the student's ledger and applies d atomically.
	ApplyLedgerDelta(ctx context.Context, student primitive.ObjectID, d LedgerDelta) (*shared.MarksLedger, error)
	// ReplaceLedger upserts the whole ledger document.
	ReplaceLedger(ctx context.Context, l *shared.MarksLedger) error
}
