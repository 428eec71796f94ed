package marks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lms_core/backend/internal/audit"
	"lms_core/backend/internal/directory"
	"lms_core/backend/internal/policy"
	"lms_core/backend/internal/shared"
)

type testEnv struct {
	svc        *MarksService
	store      *MemoryStore
	dir        *directory.MemoryDirectory
	audit      *audit.MemoryRecorder
	instructor policy.Principal
	student    primitive.ObjectID
	quiz       primitive.ObjectID
	homework   primitive.ObjectID
	final      primitive.ObjectID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := directory.NewMemoryDirectory()
	store := NewMemoryStore()
	recorder := audit.NewMemoryRecorder()

	env := &testEnv{
		store:    store,
		dir:      dir,
		audit:    recorder,
		student:  dir.AddUser("Ama Mensah", shared.RoleStudent),
		quiz:     dir.AddSource(shared.KindAssessment, "Quiz 1", 20),
		homework: dir.AddSource(shared.KindAssignment, "Essay draft", 50),
		final:    dir.AddSource(shared.KindExam, "Final exam", 100),
	}
	instructorID := dir.AddUser("Kofi Boateng", shared.RoleInstructor)
	env.instructor = policy.Principal{ID: instructorID.Hex(), Role: shared.RoleInstructor}
	env.svc = NewMarksService(store, dir, policy.NewChecker(nil), recorder, shared.NewTestLogger())
	return env
}

func f(v float64) *float64 { return &v }
func str(v string) *string { return &v }

func (e *testEnv) create(t *testing.T, kind string, source primitive.ObjectID, maxMarks, weight, marks float64) *shared.ScoreRecord {
	t.Helper()
	rec, err := e.svc.Create(context.Background(), e.instructor, kind, CreateInput{
		Student:  e.student.Hex(),
		Source:   source.Hex(),
		MaxMarks: f(maxMarks),
		Weight:   f(weight),
		Marks:    f(marks),
	})
	require.NoError(t, err)
	return rec
}

func (e *testEnv) ledger(t *testing.T) *shared.MarksLedger {
	t.Helper()
	l, err := e.store.GetLedger(context.Background(), e.student)
	require.NoError(t, err)
	return l
}

func TestCreate_LedgerAdditivity(t *testing.T) {
	env := newTestEnv(t)

	r1 := env.create(t, shared.KindAssessment, env.quiz, 20, 10, 15)     // 7.5
	r2 := env.create(t, shared.KindAssignment, env.homework, 50, 20, 40) // 16
	r3 := env.create(t, shared.KindExam, env.final, 100, 60, 45)         // 27

	assert.Equal(t, 7.5, r1.Contribution)
	assert.Equal(t, 16.0, r2.Contribution)
	assert.Equal(t, 27.0, r3.Contribution)

	l := env.ledger(t)
	assert.Equal(t, 23.5, l.CAMarks)
	assert.Equal(t, 27.0, l.ExamMarks)
	assert.Equal(t, 50.5, l.TotalMarks)
	assert.Equal(t, 90.0, l.MaxMarks)
	assert.Equal(t, shared.GradeD, l.Grade)
}

func TestCreate_FirstRecordSeedsLedger(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, shared.KindAssessment, env.quiz, 20, 10, 16)

	l := env.ledger(t)
	assert.Equal(t, 8.0, l.CAMarks)
	assert.Equal(t, 0.0, l.ExamMarks)
	assert.Equal(t, 8.0, l.TotalMarks)
	assert.Equal(t, 10.0, l.MaxMarks)
	assert.Equal(t, shared.GradeA, l.Grade)
	assert.Equal(t, []string{shared.ActionScoreCreate}, env.audit.Actions())
}

func TestCreate_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	base := func() CreateInput {
		return CreateInput{
			Student:  env.student.Hex(),
			Source:   env.quiz.Hex(),
			MaxMarks: f(20),
			Weight:   f(10),
			Marks:    f(10),
		}
	}

	tests := []struct {
		name   string
		kind   string
		mutate func(in *CreateInput)
		code   codes.Code
	}{
		{"marks above max", shared.KindAssessment, func(in *CreateInput) { in.Marks = f(21) }, codes.InvalidArgument},
		{"negative marks", shared.KindAssessment, func(in *CreateInput) { in.Marks = f(-1) }, codes.InvalidArgument},
		{"negative weight", shared.KindAssessment, func(in *CreateInput) { in.Weight = f(-0.5) }, codes.InvalidArgument},
		{"zero max", shared.KindAssessment, func(in *CreateInput) { in.MaxMarks = f(0) }, codes.InvalidArgument},
		{"missing marks", shared.KindAssessment, func(in *CreateInput) { in.Marks = nil }, codes.InvalidArgument},
		{"malformed student id", shared.KindAssessment, func(in *CreateInput) { in.Student = "123" }, codes.InvalidArgument},
		{"unknown kind", "quiz", func(in *CreateInput) {}, codes.InvalidArgument},
		{"exam needs positive weight", shared.KindExam, func(in *CreateInput) {
			in.Source = env.final.Hex()
			in.Weight = f(0)
		}, codes.InvalidArgument},
		{"unknown student", shared.KindAssessment, func(in *CreateInput) { in.Student = primitive.NewObjectID().Hex() }, codes.NotFound},
		{"source of another kind", shared.KindAssignment, func(in *CreateInput) {}, codes.NotFound},
		{"student is an instructor", shared.KindAssessment, func(in *CreateInput) { in.Student = env.instructor.ID }, codes.InvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base()
			tt.mutate(&in)
			_, err := env.svc.Create(ctx, env.instructor, tt.kind, in)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}

	_, err := env.store.GetLedger(ctx, env.student)
	assert.ErrorIs(t, err, shared.ErrNotFound, "rejected creates must not touch the ledger")

	t.Run("zero weight and zero marks are allowed for assessments", func(t *testing.T) {
		in := base()
		in.Weight = f(0)
		in.Marks = f(0)
		rec, err := env.svc.Create(ctx, env.instructor, shared.KindAssessment, in)
		require.NoError(t, err)
		assert.Equal(t, 0.0, rec.Contribution)
	})
}

func TestCreate_StudentsCannotWrite(t *testing.T) {
	env := newTestEnv(t)
	student := policy.Principal{ID: env.student.Hex(), Role: shared.RoleStudent}

	_, err := env.svc.Create(context.Background(), student, shared.KindAssessment, CreateInput{
		Student: env.student.Hex(), Source: env.quiz.Hex(), MaxMarks: f(10), Weight: f(10), Marks: f(10),
	})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestUpdate_DeltaCorrectness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.create(t, shared.KindAssignment, env.homework, 50, 20, 10)    // 4
	rec := env.create(t, shared.KindAssessment, env.quiz, 20, 10, 10) // 5
	before := 4.0

	updated, err := env.svc.Update(ctx, env.instructor, shared.KindAssessment, rec.ID.Hex(), UpdateInput{Marks: f(18)})
	require.NoError(t, err)
	assert.Equal(t, 9.0, updated.Contribution)

	l := env.ledger(t)
	assert.Equal(t, before+9.0, l.CAMarks, "bucket must hold pre-create value plus the new contribution only")
	assert.Equal(t, 30.0, l.MaxMarks)

	t.Run("weight change moves ledger max", func(t *testing.T) {
		_, err := env.svc.Update(ctx, env.instructor, shared.KindAssessment, rec.ID.Hex(), UpdateInput{Weight: f(20)})
		require.NoError(t, err)

		l := env.ledger(t)
		assert.Equal(t, 40.0, l.MaxMarks)
		assert.Equal(t, 22.0, l.CAMarks) // 4 + 18/20*20
	})

	t.Run("post-update bound uses merged values", func(t *testing.T) {
		_, err := env.svc.Update(ctx, env.instructor, shared.KindAssessment, rec.ID.Hex(), UpdateInput{MaxMarks: f(15)})
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("unknown record", func(t *testing.T) {
		_, err := env.svc.Update(ctx, env.instructor, shared.KindAssessment, primitive.NewObjectID().Hex(), UpdateInput{Marks: f(1)})
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("wrong kind does not find the record", func(t *testing.T) {
		_, err := env.svc.Update(ctx, env.instructor, shared.KindAssignment, rec.ID.Hex(), UpdateInput{Marks: f(1)})
		assert.Equal(t, codes.NotFound, status.Code(err))
	})
}

func TestUpdate_RejectsTotalAboveMax(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.create(t, shared.KindAssessment, env.quiz, 10, 10, 5)

	// Simulate drift: the ledger lost part of its maximum.
	drifted := *env.ledger(t)
	drifted.MaxMarks = 6
	require.NoError(t, env.store.ReplaceLedger(ctx, &drifted))

	_, err := env.svc.Update(ctx, env.instructor, shared.KindAssessment, rec.ID.Hex(), UpdateInput{Marks: f(9)})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	stored, err := env.store.GetRecord(ctx, shared.KindAssessment, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, stored.Marks, "record must be unchanged")
	assert.Equal(t, 5.0, env.ledger(t).CAMarks, "ledger must be unchanged")
}

func TestUpdate_StudentChangeMovesContribution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	other := env.dir.AddUser("Esi Owusu", shared.RoleStudent)

	rec := env.create(t, shared.KindExam, env.final, 100, 50, 80) // 40

	_, err := env.svc.Update(ctx, env.instructor, shared.KindExam, rec.ID.Hex(), UpdateInput{Student: str(other.Hex())})
	require.NoError(t, err)

	l := env.ledger(t)
	assert.Equal(t, 0.0, l.ExamMarks)
	assert.Equal(t, 0.0, l.MaxMarks)
	assert.Equal(t, "", l.Grade)

	moved, err := env.store.GetLedger(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, 40.0, moved.ExamMarks)
	assert.Equal(t, 50.0, moved.MaxMarks)

	_, err = env.svc.Update(ctx, env.instructor, shared.KindExam, rec.ID.Hex(), UpdateInput{Student: str(primitive.NewObjectID().Hex())})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestDelete_Symmetry(t *testing.T) {
	ctx := context.Background()

	t.Run("returns ledger to pre-create value", func(t *testing.T) {
		env := newTestEnv(t)
		env.create(t, shared.KindAssessment, env.quiz, 20, 10, 20)
		before := *env.ledger(t)

		rec := env.create(t, shared.KindExam, env.final, 100, 40, 70)
		require.NoError(t, env.svc.Delete(ctx, env.instructor, shared.KindExam, rec.ID.Hex()))

		after := env.ledger(t)
		assert.Equal(t, before.CAMarks, after.CAMarks)
		assert.Equal(t, before.ExamMarks, after.ExamMarks)
		assert.Equal(t, before.TotalMarks, after.TotalMarks)
		assert.Equal(t, before.MaxMarks, after.MaxMarks)

		_, err := env.store.GetRecord(ctx, shared.KindExam, rec.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("floors at zero on an empty ledger", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.create(t, shared.KindAssessment, env.quiz, 20, 10, 20)

		// Simulate drift below the record's contribution.
		drifted := *env.ledger(t)
		drifted.CAMarks, drifted.TotalMarks, drifted.MaxMarks = 3, 3, 4
		require.NoError(t, env.store.ReplaceLedger(ctx, &drifted))

		require.NoError(t, env.svc.Delete(ctx, env.instructor, shared.KindAssessment, rec.ID.Hex()))

		l := env.ledger(t)
		assert.Equal(t, 0.0, l.CAMarks)
		assert.Equal(t, 0.0, l.TotalMarks)
		assert.Equal(t, 0.0, l.MaxMarks)
	})

	t.Run("unknown record", func(t *testing.T) {
		env := newTestEnv(t)
		err := env.svc.Delete(ctx, env.instructor, shared.KindAssessment, primitive.NewObjectID().Hex())
		assert.Equal(t, codes.NotFound, status.Code(err))
	})
}

func TestGetLedger_Ownership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, shared.KindAssessment, env.quiz, 20, 10, 10)

	self := policy.Principal{ID: env.student.Hex(), Role: shared.RoleStudent}
	l, err := env.svc.GetLedger(ctx, self, env.student.Hex())
	require.NoError(t, err)
	assert.Equal(t, 5.0, l.TotalMarks)

	other := policy.Principal{ID: primitive.NewObjectID().Hex(), Role: shared.RoleStudent}
	_, err = env.svc.GetLedger(ctx, other, env.student.Hex())
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = env.svc.GetLedger(ctx, env.instructor, primitive.NewObjectID().Hex())
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestGetAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rec := env.create(t, shared.KindAssessment, env.quiz, 20, 10, 10)
	env.create(t, shared.KindExam, env.final, 100, 50, 50)

	got, err := env.svc.Get(ctx, env.instructor, shared.KindAssessment, rec.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	all, err := env.svc.List(ctx, env.instructor, shared.KindAssessment, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	self := policy.Principal{ID: env.student.Hex(), Role: shared.RoleStudent}
	own, err := env.svc.List(ctx, self, shared.KindExam, env.student.Hex())
	require.NoError(t, err)
	assert.Len(t, own, 1)

	_, err = env.svc.List(ctx, self, shared.KindExam, "")
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestRebuildLedger(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, shared.KindAssessment, env.quiz, 20, 10, 10) // 5
	env.create(t, shared.KindExam, env.final, 100, 50, 90)     // 45

	drifted := *env.ledger(t)
	drifted.ExamMarks, drifted.TotalMarks = 0, 5
	require.NoError(t, env.store.ReplaceLedger(ctx, &drifted))

	rebuilt, err := env.svc.RebuildLedger(ctx, env.instructor, env.student.Hex())
	require.NoError(t, err)
	assert.Equal(t, 5.0, rebuilt.CAMarks)
	assert.Equal(t, 45.0, rebuilt.ExamMarks)
	assert.Equal(t, 50.0, rebuilt.TotalMarks)
	assert.Equal(t, 60.0, rebuilt.MaxMarks)
	assert.Equal(t, shared.GradeA, rebuilt.Grade)
	assert.Equal(t, 50.0, env.ledger(t).TotalMarks)

	student := policy.Principal{ID: env.student.Hex(), Role: shared.RoleStudent}
	_, err = env.svc.RebuildLedger(ctx, student, env.student.Hex())
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestApplyDelta(t *testing.T) {
	student := primitive.NewObjectID()

	l := ApplyDelta(nil, student, LedgerDelta{CA: 0.1, Max: 1}, time.Time{})
	l = ApplyDelta(&l, student, LedgerDelta{CA: 0.2}, time.Time{})
	assert.Equal(t, 0.3, l.CAMarks)
	assert.Equal(t, 0.3, l.TotalMarks)

	l = ApplyDelta(&l, student, LedgerDelta{CA: -5, Max: -5}, time.Time{})
	assert.Equal(t, 0.0, l.CAMarks)
	assert.Equal(t, 0.0, l.MaxMarks)
	assert.Equal(t, "", l.Grade)
}
