// Package marks records graded items and keeps each student's consolidated
// marks ledger in step with them.
package marks

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lms_core/backend/internal/audit"
	"lms_core/backend/internal/directory"
	"lms_core/backend/internal/policy"
	"lms_core/backend/internal/shared"
)

// MarksService maintains score records and applies their contributions to
// the ledger as deltas.
type MarksService struct {
	store  Store
	dir    directory.Directory
	policy *policy.Checker
	audit  audit.Recorder
	logger *shared.Logger
}

// NewMarksService creates a new MarksService instance
func NewMarksService(store Store, dir directory.Directory, checker *policy.Checker, recorder audit.Recorder, logger *shared.Logger) *MarksService {
	return &MarksService{
		store:  store,
		dir:    dir,
		policy: checker,
		audit:  recorder,
		logger: logger,
	}
}

// CreateInput is the body of a score record create
type CreateInput struct {
	Student  string   `json:"student" validate:"required,objectid"`
	Source   string   `json:"source" validate:"required,objectid"`
	MaxMarks *float64 `json:"maxMarks" validate:"required"`
	Weight   *float64 `json:"weight" validate:"required"`
	Marks    *float64 `json:"marks" validate:"required"`
}

// UpdateInput carries the fields to change; nil fields keep their value
type UpdateInput struct {
	Student  *string  `json:"student,omitempty"`
	Source   *string  `json:"source,omitempty"`
	MaxMarks *float64 `json:"maxMarks,omitempty"`
	Weight   *float64 `json:"weight,omitempty"`
	Marks    *float64 `json:"marks,omitempty"`
}

// checkBounds enforces 0 <= marks <= maxMarks, maxMarks > 0 and the weight
// rule of the record kind.
func checkBounds(kind string, maxMarks, weight, marks float64) error {
	if maxMarks <= 0 {
		return status.Error(codes.InvalidArgument, "maxMarks must be greater than 0")
	}
	if kind == shared.KindExam {
		if weight <= 0 {
			return status.Error(codes.InvalidArgument, "weight must be greater than 0 for exam marks")
		}
	} else if weight < 0 {
		return status.Error(codes.InvalidArgument, "weight must not be negative")
	}
	if marks < 0 {
		return status.Error(codes.InvalidArgument, "marks must not be negative")
	}
	if marks > maxMarks {
		return status.Errorf(codes.InvalidArgument, "marks (%v) must not exceed maxMarks (%v)", marks, maxMarks)
	}
	return nil
}

func checkKind(kind string) error {
	if !shared.IsValidKind(kind) {
		return status.Errorf(codes.InvalidArgument, "invalid score record kind %q, expected one of: %s",
			kind, strings.Join(shared.ScoreKinds, ", "))
	}
	return nil
}

// resolveStudent requires id to be a student in the directory
func (s *MarksService) resolveStudent(ctx context.Context, id primitive.ObjectID) error {
	_, err := directory.RequireRole(ctx, s.dir, id, shared.RoleStudent)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return status.Errorf(codes.NotFound, "student not found: %s", id.Hex())
	case errors.Is(err, directory.ErrWrongRole):
		return status.Errorf(codes.InvalidArgument, "user %s is not a student", id.Hex())
	case err != nil:
		return s.internal("", err, "failed to resolve student")
	}
	return nil
}

// resolveSource requires id to be a graded item of the record's kind
func (s *MarksService) resolveSource(ctx context.Context, kind string, id primitive.ObjectID) error {
	_, err := s.dir.GetSource(ctx, kind, id)
	if errors.Is(err, shared.ErrNotFound) {
		return status.Errorf(codes.NotFound, "%s not found: %s", kind, id.Hex())
	}
	if err != nil {
		return s.internal("", err, "failed to resolve source")
	}
	return nil
}

func (s *MarksService) internal(userID string, err error, msg string) error {
	s.logger.Errorf(userID, err, "marks: %s", msg)
	return status.Error(codes.Internal, msg)
}

func (s *MarksService) record(ctx context.Context, p policy.Principal, action, resource string, details map[string]interface{}) {
	if err := s.audit.Record(ctx, p.ID, action, resource, details); err != nil {
		s.logger.Warnf("audit %s on %s failed: %v", action, resource, err)
	}
}

// Create validates and stores a score record, then adds its contribution
// to the student's ledger.
func (s *MarksService) Create(ctx context.Context, p policy.Principal, kind string, in CreateInput) (*shared.ScoreRecord, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if err := s.policy.Require(p, policy.MarksWrite); err != nil {
		return nil, err
	}
	if err := shared.Validate(in); err != nil {
		return nil, err
	}
	if err := checkBounds(kind, *in.MaxMarks, *in.Weight, *in.Marks); err != nil {
		return nil, err
	}

	studentID, err := shared.ParseID("student", in.Student)
	if err != nil {
		return nil, err
	}
	sourceID, err := shared.ParseID("source", in.Source)
	if err != nil {
		return nil, err
	}
	if err := s.resolveStudent(ctx, studentID); err != nil {
		return nil, err
	}
	if err := s.resolveSource(ctx, kind, sourceID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &shared.ScoreRecord{
		ID:           primitive.NewObjectID(),
		Kind:         kind,
		Student:      studentID,
		Source:       sourceID,
		MaxMarks:     *in.MaxMarks,
		Weight:       *in.Weight,
		Marks:        *in.Marks,
		Contribution: shared.Contribution(*in.Marks, *in.MaxMarks, *in.Weight),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Totals above maxMarks are not rejected here; with contribution <= weight
	// they cannot arise from creates alone.
	err = s.store.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.store.InsertRecord(txCtx, rec); err != nil {
			return err
		}
		_, err := s.store.ApplyLedgerDelta(txCtx, studentID, deltaFor(kind, rec.Contribution, rec.Weight))
		return err
	})
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to save score record")
	}

	s.record(ctx, p, shared.ActionScoreCreate, kind+":"+rec.ID.Hex(), map[string]interface{}{
		"student":      studentID.Hex(),
		"contribution": rec.Contribution,
	})
	return rec, nil
}

// Update changes any subset of a record's fields and moves the difference
// in contribution into the ledger. It fails with FailedPrecondition, and
// writes nothing, when the resulting ledger total would exceed its maximum.
func (s *MarksService) Update(ctx context.Context, p policy.Principal, kind, id string, in UpdateInput) (*shared.ScoreRecord, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if err := s.policy.Require(p, policy.MarksWrite); err != nil {
		return nil, err
	}
	recID, err := shared.ParseID("id", id)
	if err != nil {
		return nil, err
	}

	old, err := s.store.GetRecord(ctx, kind, recID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "%s marks not found: %s", kind, id)
	}
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to load score record")
	}

	updated := *old
	if in.Student != nil {
		if updated.Student, err = shared.ParseID("student", *in.Student); err != nil {
			return nil, err
		}
	}
	if in.Source != nil {
		if updated.Source, err = shared.ParseID("source", *in.Source); err != nil {
			return nil, err
		}
	}
	if in.MaxMarks != nil {
		updated.MaxMarks = *in.MaxMarks
	}
	if in.Weight != nil {
		updated.Weight = *in.Weight
	}
	if in.Marks != nil {
		updated.Marks = *in.Marks
	}
	if err := checkBounds(kind, updated.MaxMarks, updated.Weight, updated.Marks); err != nil {
		return nil, err
	}
	if updated.Student != old.Student {
		if err := s.resolveStudent(ctx, updated.Student); err != nil {
			return nil, err
		}
	}
	if updated.Source != old.Source {
		if err := s.resolveSource(ctx, kind, updated.Source); err != nil {
			return nil, err
		}
	}

	updated.Contribution = shared.Contribution(updated.Marks, updated.MaxMarks, updated.Weight)
	updated.UpdatedAt = time.Now().UTC()

	oldDelta := deltaFor(kind, old.Contribution, old.Weight).Negate()
	newDelta := deltaFor(kind, updated.Contribution, updated.Weight)

	deltas := map[primitive.ObjectID]LedgerDelta{}
	if updated.Student == old.Student {
		deltas[old.Student] = oldDelta.Plus(newDelta)
	} else {
		deltas[old.Student] = oldDelta
		deltas[updated.Student] = newDelta
	}

	// Check every touched ledger before the first write.
	for student, d := range deltas {
		current, err := s.store.GetLedger(ctx, student)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, s.internal(p.ID, err, "failed to load marks ledger")
		}
		next := ApplyDelta(current, student, d, updated.UpdatedAt)
		if next.TotalMarks > next.MaxMarks {
			return nil, status.Errorf(codes.FailedPrecondition,
				"update would raise total marks (%v) above max marks (%v)", next.TotalMarks, next.MaxMarks)
		}
	}

	err = s.store.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.store.ReplaceRecord(txCtx, &updated); err != nil {
			return err
		}
		for student, d := range deltas {
			if d.IsZero() {
				continue
			}
			s.logger.Debugf("ledger %s: %s", student.Hex(), d)
			if _, err := s.store.ApplyLedgerDelta(txCtx, student, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to update score record")
	}

	s.record(ctx, p, shared.ActionScoreUpdate, kind+":"+id, map[string]interface{}{
		"old_contribution": old.Contribution,
		"new_contribution": updated.Contribution,
	})
	return &updated, nil
}

// Delete removes a record after subtracting its contribution from the
// ledger, flooring every accumulator at zero.
func (s *MarksService) Delete(ctx context.Context, p policy.Principal, kind, id string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if err := s.policy.Require(p, policy.MarksWrite); err != nil {
		return err
	}
	recID, err := shared.ParseID("id", id)
	if err != nil {
		return err
	}

	rec, err := s.store.GetRecord(ctx, kind, recID)
	if errors.Is(err, shared.ErrNotFound) {
		return status.Errorf(codes.NotFound, "%s marks not found: %s", kind, id)
	}
	if err != nil {
		return s.internal(p.ID, err, "failed to load score record")
	}

	err = s.store.WithinTx(ctx, func(txCtx context.Context) error {
		if _, err := s.store.ApplyLedgerDelta(txCtx, rec.Student, deltaFor(kind, rec.Contribution, rec.Weight).Negate()); err != nil {
			return err
		}
		return s.store.DeleteRecord(txCtx, kind, recID)
	})
	if errors.Is(err, shared.ErrNotFound) {
		return status.Errorf(codes.NotFound, "%s marks not found: %s", kind, id)
	}
	if err != nil {
		return s.internal(p.ID, err, "failed to delete score record")
	}

	s.record(ctx, p, shared.ActionScoreDelete, kind+":"+id, map[string]interface{}{
		"student":      rec.Student.Hex(),
		"contribution": rec.Contribution,
	})
	return nil
}

// Get returns one record; students only see their own
func (s *MarksService) Get(ctx context.Context, p policy.Principal, kind, id string) (*shared.ScoreRecord, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	recID, err := shared.ParseID("id", id)
	if err != nil {
		return nil, err
	}

	rec, err := s.store.GetRecord(ctx, kind, recID)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "%s marks not found: %s", kind, id)
	}
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to load score record")
	}

	if err := s.policy.RequireOwnerOr(p, rec.Student.Hex(), policy.MarksReadOwn, policy.MarksReadAll); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns the records of one kind, optionally for a single student
func (s *MarksService) List(ctx context.Context, p policy.Principal, kind, studentID string) ([]shared.ScoreRecord, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}

	filter := RecordFilter{Kind: kind}
	if studentID == "" {
		if err := s.policy.Require(p, policy.MarksReadAll); err != nil {
			return nil, err
		}
	} else {
		sid, err := shared.ParseID("student", studentID)
		if err != nil {
			return nil, err
		}
		if err := s.policy.RequireOwnerOr(p, studentID, policy.MarksReadOwn, policy.MarksReadAll); err != nil {
			return nil, err
		}
		filter.Student = &sid
	}

	records, err := s.store.ListRecords(ctx, filter)
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to list score records")
	}
	return records, nil
}

// GetLedger returns the student's consolidated marks
func (s *MarksService) GetLedger(ctx context.Context, p policy.Principal, studentID string) (*shared.MarksLedger, error) {
	sid, err := shared.ParseID("student", studentID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.RequireOwnerOr(p, studentID, policy.MarksReadOwn, policy.MarksReadAll); err != nil {
		return nil, err
	}

	l, err := s.store.GetLedger(ctx, sid)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "no marks recorded for student %s", studentID)
	}
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to load marks ledger")
	}
	return l, nil
}

// RebuildLedger recomputes a student's ledger from all of their records,
// repairing drift left by interrupted writes.
func (s *MarksService) RebuildLedger(ctx context.Context, p policy.Principal, studentID string) (*shared.MarksLedger, error) {
	if err := s.policy.Require(p, policy.MarksRebuild); err != nil {
		return nil, err
	}
	sid, err := shared.ParseID("student", studentID)
	if err != nil {
		return nil, err
	}
	if err := s.resolveStudent(ctx, sid); err != nil {
		return nil, err
	}

	records, err := s.store.ListRecords(ctx, RecordFilter{Student: &sid})
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to list score records")
	}

	var sum LedgerDelta
	for _, rec := range records {
		sum = sum.Plus(deltaFor(rec.Kind, rec.Contribution, rec.Weight))
	}
	rebuilt := ApplyDelta(nil, sid, sum, time.Now().UTC())

	if current, err := s.store.GetLedger(ctx, sid); err == nil {
		rebuilt.ID = current.ID
		if current.TotalMarks != rebuilt.TotalMarks || current.MaxMarks != rebuilt.MaxMarks {
			s.logger.Warnf("ledger drift for student %s: total %v -> %v, max %v -> %v",
				studentID, current.TotalMarks, rebuilt.TotalMarks, current.MaxMarks, rebuilt.MaxMarks)
		}
	}

	if err := s.store.ReplaceLedger(ctx, &rebuilt); err != nil {
		return nil, s.internal(p.ID, err, "failed to save marks ledger")
	}

	s.record(ctx, p, shared.ActionLedgerRebuild, "marks:"+studentID, map[string]interface{}{
		"records": len(records),
		"total":   rebuilt.TotalMarks,
	})
	return &rebuilt, nil
}
