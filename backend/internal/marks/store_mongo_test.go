package marks

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"lms_core/backend/internal/shared"
)

func TestMongoStore_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set; skipping Mongo integration test")
	}

	ctx := context.Background()
	client, db, err := shared.ConnectMongoDB(shared.DefaultMongoConfig(uri, "lms_marks_test"))
	require.NoError(t, err)
	defer shared.DisconnectMongoDB(client)
	defer db.Drop(ctx)
	require.NoError(t, shared.EnsureIndexes(ctx, db))

	store := NewMongoStore(client, db, false)
	student := primitive.NewObjectID()

	t.Run("Concurrent deltas are not lost", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.ApplyLedgerDelta(ctx, student, LedgerDelta{CA: 0.5, Max: 1})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		l, err := store.GetLedger(ctx, student)
		require.NoError(t, err)
		assert.Equal(t, 10.0, l.CAMarks)
		assert.Equal(t, 10.0, l.TotalMarks)
		assert.Equal(t, 20.0, l.MaxMarks)
		assert.Equal(t, shared.GradeD, l.Grade)
	})

	t.Run("Grade always matches the stored totals", func(t *testing.T) {
		other := primitive.NewObjectID()
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			d := LedgerDelta{CA: 1, Max: 10}
			if i%2 == 0 {
				d = LedgerDelta{Exam: 9.5, Max: 10}
			}
			wg.Add(1)
			go func(d LedgerDelta) {
				defer wg.Done()
				l, err := store.ApplyLedgerDelta(ctx, other, d)
				if assert.NoError(t, err) {
					assert.Equal(t, shared.LetterGrade(l.TotalMarks, l.MaxMarks), l.Grade)
				}
			}(d)
		}
		wg.Wait()

		l, err := store.GetLedger(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, 105.0, l.TotalMarks)
		assert.Equal(t, 200.0, l.MaxMarks)
		assert.Equal(t, shared.GradeD, l.Grade)
	})

	t.Run("Negative deltas floor at zero", func(t *testing.T) {
		l, err := store.ApplyLedgerDelta(ctx, student, LedgerDelta{CA: -100, Max: -100})
		require.NoError(t, err)
		assert.Equal(t, 0.0, l.CAMarks)
		assert.Equal(t, 0.0, l.MaxMarks)
		assert.Equal(t, "", l.Grade)
	})

	t.Run("Records are scoped by kind", func(t *testing.T) {
		rec := &shared.ScoreRecord{ID: primitive.NewObjectID(), Kind: shared.KindExam, Student: student, MaxMarks: 10, Weight: 5, Marks: 5}
		require.NoError(t, store.InsertRecord(ctx, rec))

		_, err := store.GetRecord(ctx, shared.KindAssessment, rec.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)

		got, err := store.GetRecord(ctx, shared.KindExam, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, 5.0, got.Marks)

		list, err := store.ListRecords(ctx, RecordFilter{Student: &student})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, store.DeleteRecord(ctx, shared.KindExam, rec.ID))
		assert.ErrorIs(t, store.DeleteRecord(ctx, shared.KindExam, rec.ID), shared.ErrNotFound)
	})
}

func TestGradeExpr(t *testing.T) {
	expr := gradeExpr()

	cond, ok := expr["$cond"].(bson.A)
	require.True(t, ok)
	require.Len(t, cond, 3)
	assert.Equal(t, "$$REMOVE", cond[2])

	sw := cond[1].(bson.M)["$switch"].(bson.M)
	assert.Equal(t, shared.GradeF, sw["default"])

	branches := sw["branches"].(bson.A)
	require.Len(t, branches, len(shared.GradeBands))
	for i, b := range shared.GradeBands {
		assert.Equal(t, b.Grade, branches[i].(bson.M)["then"])
	}
}
