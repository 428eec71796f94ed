package exam

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lms_core/backend/internal/audit"
	"lms_core/backend/internal/cache"
	"lms_core/backend/internal/directory"
	"lms_core/backend/internal/policy"
	"lms_core/backend/internal/shared"
)

type testEnv struct {
	svc        *ExamService
	store      *MemoryStore
	cache      *cache.MemoryCache
	audit      *audit.MemoryRecorder
	dir        *directory.MemoryDirectory
	instructor policy.Principal
	other      policy.Principal
	student    policy.Principal
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := directory.NewMemoryDirectory()
	env := &testEnv{
		store: NewMemoryStore(),
		cache: cache.NewMemoryCache(),
		audit: audit.NewMemoryRecorder(),
		dir:   dir,
	}
	env.instructor = policy.Principal{ID: dir.AddUser("Grace Ansah", shared.RoleInstructor).Hex(), Role: shared.RoleInstructor}
	env.other = policy.Principal{ID: dir.AddUser("Yaw Darko", shared.RoleInstructor).Hex(), Role: shared.RoleInstructor}
	env.student = policy.Principal{ID: dir.AddUser("Esi Owusu", shared.RoleStudent).Hex(), Role: shared.RoleStudent}
	env.svc = NewExamService(env.store, dir, policy.NewChecker(nil), env.audit, env.cache, shared.NewTestLogger())
	return env
}

func examInput(createdBy, title string) CreateExamInput {
	return CreateExamInput{
		Title:       title,
		Description: "Academic reading practice",
		Duration:    60,
		Difficulty:  "Intermediate",
		Type:        "Reading",
		CreatedBy:   createdBy,
	}
}

func (e *testEnv) exam(t *testing.T) *shared.Exam {
	t.Helper()
	ex, err := e.svc.CreateExam(context.Background(), e.instructor, examInput(e.instructor.ID, "Mock Test 1"))
	require.NoError(t, err)
	return ex
}

func (e *testEnv) section(t *testing.T, examID primitive.ObjectID, order int) *shared.Section {
	t.Helper()
	sec, err := e.svc.CreateSection(context.Background(), e.instructor, examID.Hex(), CreateSectionInput{Title: "Passage", Order: order})
	require.NoError(t, err)
	return sec
}

func (e *testEnv) mcq(t *testing.T, sectionID primitive.ObjectID, order int, answer string) *shared.Question {
	t.Helper()
	points := 5.0
	q, err := e.svc.CreateQuestion(context.Background(), e.instructor, sectionID.Hex(), CreateQuestionInput{
		Type:     shared.QuestionMCQ,
		Question: "What is the capital of France?",
		Options:  []string{"Paris", "London", "Rome"},
		Answer:   answer,
		Points:   &points,
		Order:    order,
	})
	require.NoError(t, err)
	return q
}

func (e *testEnv) publish(t *testing.T, examID primitive.ObjectID) {
	t.Helper()
	published := shared.ExamPublished
	yes := true
	_, err := e.svc.UpdateExamStatus(context.Background(), e.instructor, examID.Hex(), UpdateStatusInput{Status: &published, Available: &yes})
	require.NoError(t, err)
}

func code(err error) codes.Code { return status.Code(err) }

func TestCreateExam(t *testing.T) {
	ctx := context.Background()

	t.Run("New exams start as unavailable drafts", func(t *testing.T) {
		env := newTestEnv(t)
		ex := env.exam(t)

		assert.Equal(t, shared.ExamDraft, ex.Status)
		assert.False(t, ex.Available)
		assert.Equal(t, 0, ex.TotalQuestions)
		assert.Equal(t, env.instructor.ID, ex.CreatedBy.Hex())
		assert.Equal(t, []string{shared.ActionExamCreate}, env.audit.Actions())
	})

	t.Run("Duplicate title for the same instructor conflicts", func(t *testing.T) {
		env := newTestEnv(t)
		env.exam(t)

		_, err := env.svc.CreateExam(ctx, env.instructor, examInput(env.instructor.ID, "Mock Test 1"))
		assert.Equal(t, codes.AlreadyExists, code(err))
	})

	t.Run("Same title for another instructor is allowed", func(t *testing.T) {
		env := newTestEnv(t)
		env.exam(t)

		_, err := env.svc.CreateExam(ctx, env.other, examInput(env.other.ID, "Mock Test 1"))
		assert.NoError(t, err)
	})

	t.Run("Unknown creator is not found", func(t *testing.T) {
		env := newTestEnv(t)
		admin := policy.Principal{ID: primitive.NewObjectID().Hex(), Role: shared.RoleAdmin}

		_, err := env.svc.CreateExam(ctx, admin, examInput(primitive.NewObjectID().Hex(), "Ghost"))
		assert.Equal(t, codes.NotFound, code(err))
	})

	t.Run("Creator must be an instructor", func(t *testing.T) {
		env := newTestEnv(t)
		admin := policy.Principal{ID: primitive.NewObjectID().Hex(), Role: shared.RoleAdmin}

		_, err := env.svc.CreateExam(ctx, admin, examInput(env.student.ID, "Student exam"))
		assert.Equal(t, codes.InvalidArgument, code(err))
	})

	t.Run("Instructors create only for themselves", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.CreateExam(ctx, env.instructor, examInput(env.other.ID, "Borrowed"))
		assert.Equal(t, codes.PermissionDenied, code(err))
	})

	t.Run("Students cannot author exams", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.CreateExam(ctx, env.student, examInput(env.student.ID, "Nope"))
		assert.Equal(t, codes.PermissionDenied, code(err))
	})

	tests := []struct {
		name    string
		mutate  func(in *CreateExamInput)
		message string
	}{
		{"missing title", func(in *CreateExamInput) { in.Title = "" }, "title is required"},
		{"blank title", func(in *CreateExamInput) { in.Title = "   " }, "title is required"},
		{"blank description", func(in *CreateExamInput) { in.Description = "\t" }, "description is required"},
		{"missing description", func(in *CreateExamInput) { in.Description = "" }, "description is required"},
		{"negative duration", func(in *CreateExamInput) { in.Duration = -5 }, "duration must be greater than 0"},
		{"bad difficulty", func(in *CreateExamInput) { in.Difficulty = "Expert" }, "difficulty"},
		{"bad type", func(in *CreateExamInput) { in.Type = "Maths" }, "type"},
		{"malformed creator", func(in *CreateExamInput) { in.CreatedBy = "abc" }, "createdBy must be a valid id"},
	}
	for _, tt := range tests {
		t.Run("Rejects "+tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			in := examInput(env.instructor.ID, "Mock")
			tt.mutate(&in)

			_, err := env.svc.CreateExam(ctx, env.instructor, in)
			require.Error(t, err)
			assert.Equal(t, codes.InvalidArgument, code(err))
			assert.Contains(t, status.Convert(err).Message(), tt.message)
		})
	}
}

func TestCreateSection(t *testing.T) {
	ctx := context.Background()

	t.Run("Appends the section to its exam", func(t *testing.T) {
		env := newTestEnv(t)
		ex := env.exam(t)
		s1 := env.section(t, ex.ID, 1)
		s2 := env.section(t, ex.ID, 2)

		stored, err := env.store.GetExam(ctx, ex.ID)
		require.NoError(t, err)
		assert.Equal(t, []primitive.ObjectID{s1.ID, s2.ID}, stored.Sections)
		assert.Equal(t, ex.ID, s1.Exam)
	})

	t.Run("Unknown exam is not found", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.CreateSection(ctx, env.instructor, primitive.NewObjectID().Hex(), CreateSectionInput{Title: "Part 1"})
		assert.Equal(t, codes.NotFound, code(err))
	})

	t.Run("Only the author may add sections", func(t *testing.T) {
		env := newTestEnv(t)
		ex := env.exam(t)
		_, err := env.svc.CreateSection(ctx, env.other, ex.ID.Hex(), CreateSectionInput{Title: "Part 1"})
		assert.Equal(t, codes.PermissionDenied, code(err))
	})

	t.Run("Requires a title", func(t *testing.T) {
		env := newTestEnv(t)
		ex := env.exam(t)
		_, err := env.svc.CreateSection(ctx, env.instructor, ex.ID.Hex(), CreateSectionInput{})
		assert.Equal(t, codes.InvalidArgument, code(err))

		_, err = env.svc.CreateSection(ctx, env.instructor, ex.ID.Hex(), CreateSectionInput{Title: "  "})
		assert.Equal(t, codes.InvalidArgument, code(err))

		stored, err := env.store.GetExam(ctx, ex.ID)
		require.NoError(t, err)
		assert.Empty(t, stored.Sections)
	})
}

func TestCreateQuestion(t *testing.T) {
	ctx := context.Background()

	t.Run("Counter equals the number of created questions", func(t *testing.T) {
		env := newTestEnv(t)
		ex := env.exam(t)
		s1 := env.section(t, ex.ID, 1)
		s2 := env.section(t, ex.ID, 2)

		const k = 7
		for i := 0; i < k; i++ {
			sec := s1
			if i%2 == 1 {
				sec = s2
			}
			env.mcq(t, sec.ID, i, "Paris")
		}

		stored, err := env.store.GetExam(ctx, ex.ID)
		require.NoError(t, err)
		assert.Equal(t, k, stored.TotalQuestions)

		sec, err := env.store.GetSection(ctx, s1.ID)
		require.NoError(t, err)
		assert.Len(t, sec.Questions, 4)
	})

	t.Run("Points default to one", func(t *testing.T) {
		env := newTestEnv(t)
		sec := env.section(t, env.exam(t).ID, 1)

		q, err := env.svc.CreateQuestion(ctx, env.instructor, sec.ID.Hex(), CreateQuestionInput{
			Type: shared.QuestionTyping, Question: "Write the missing word",
		})
		require.NoError(t, err)
		assert.Equal(t, 1.0, q.Points)
	})

	t.Run("Unknown section is not found", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.CreateQuestion(ctx, env.instructor, primitive.NewObjectID().Hex(), CreateQuestionInput{
			Type: shared.QuestionTyping, Question: "?",
		})
		assert.Equal(t, codes.NotFound, code(err))
	})

	negative := -1.0
	tests := []struct {
		name string
		in   CreateQuestionInput
	}{
		{"mcq without options", CreateQuestionInput{Type: shared.QuestionMCQ, Question: "?"}},
		{"mcq with blank options", CreateQuestionInput{Type: shared.QuestionMCQ, Question: "?", Options: []string{" ", ""}}},
		{"matching without options", CreateQuestionInput{Type: shared.QuestionMatching, Question: "?"}},
		{"essay without word limit", CreateQuestionInput{Type: shared.QuestionEssay, Question: "Discuss"}},
		{"unknown type", CreateQuestionInput{Type: "drawing", Question: "?"}},
		{"missing text", CreateQuestionInput{Type: shared.QuestionTyping}},
		{"blank text", CreateQuestionInput{Type: shared.QuestionTyping, Question: "  \n "}},
		{"negative points", CreateQuestionInput{Type: shared.QuestionOral, Question: "Describe", Points: &negative}},
	}
	for _, tt := range tests {
		t.Run("Rejects "+tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ex := env.exam(t)
			sec := env.section(t, ex.ID, 1)

			_, err := env.svc.CreateQuestion(ctx, env.instructor, sec.ID.Hex(), tt.in)
			assert.Equal(t, codes.InvalidArgument, code(err))

			stored, err := env.store.GetExam(ctx, ex.ID)
			require.NoError(t, err)
			assert.Equal(t, 0, stored.TotalQuestions)
		})
	}

	t.Run("Essay with word limit is accepted", func(t *testing.T) {
		env := newTestEnv(t)
		sec := env.section(t, env.exam(t).ID, 1)
		_, err := env.svc.CreateQuestion(ctx, env.instructor, sec.ID.Hex(), CreateQuestionInput{
			Type: shared.QuestionEssay, Question: "Discuss", WordLimit: 250,
		})
		assert.NoError(t, err)
	})
}

func TestGetExamByID(t *testing.T) {
	ctx := context.Background()

	build := func(t *testing.T, env *testEnv) *shared.Exam {
		ex := env.exam(t)
		late := env.section(t, ex.ID, 2)
		early := env.section(t, ex.ID, 1)
		env.mcq(t, late.ID, 2, "Rome")
		env.mcq(t, late.ID, 1, "Paris")
		env.mcq(t, early.ID, 1, "London")
		env.publish(t, ex.ID)
		return ex
	}

	t.Run("Populates sections and questions in order", func(t *testing.T) {
		env := newTestEnv(t)
		ex := build(t, env)

		view, err := env.svc.GetExamByID(ctx, env.instructor, ex.ID.Hex())
		require.NoError(t, err)
		require.Len(t, view.Sections, 2)
		assert.Equal(t, 1, view.Sections[0].Order)
		assert.Equal(t, 2, view.Sections[1].Order)
		require.Len(t, view.Sections[1].Questions, 2)
		assert.Equal(t, "Paris", view.Sections[1].Questions[0].Answer)
		assert.Equal(t, "Rome", view.Sections[1].Questions[1].Answer)
		assert.Equal(t, 3, view.TotalQuestions)
	})

	t.Run("Students never see answer keys", func(t *testing.T) {
		env := newTestEnv(t)
		ex := build(t, env)

		// Warm the full view first so the student read cannot reuse it.
		_, err := env.svc.GetExamByID(ctx, env.instructor, ex.ID.Hex())
		require.NoError(t, err)

		view, err := env.svc.GetExamByID(ctx, env.student, ex.ID.Hex())
		require.NoError(t, err)
		for _, sec := range view.Sections {
			for _, q := range sec.Questions {
				assert.Empty(t, q.Answer)
				assert.NotEmpty(t, q.Options)
			}
		}
	})

	t.Run("Writes invalidate the cached view", func(t *testing.T) {
		env := newTestEnv(t)
		ex := build(t, env)

		_, err := env.svc.GetExamByID(ctx, env.student, ex.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, 1, env.cache.Len())

		sec := env.section(t, ex.ID, 3)
		assert.Equal(t, 0, env.cache.Len())
		env.mcq(t, sec.ID, 1, "Paris")

		view, err := env.svc.GetExamByID(ctx, env.student, ex.ID.Hex())
		require.NoError(t, err)
		assert.Len(t, view.Sections, 3)
		assert.Equal(t, 4, view.TotalQuestions)
	})

	t.Run("Unknown exam is not found", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.GetExamByID(ctx, env.student, primitive.NewObjectID().Hex())
		assert.Equal(t, codes.NotFound, code(err))
	})

	t.Run("Students cannot see drafts or unavailable exams", func(t *testing.T) {
		env := newTestEnv(t)
		ex := env.exam(t)
		env.section(t, ex.ID, 1)

		_, err := env.svc.GetExamByID(ctx, env.student, ex.ID.Hex())
		assert.Equal(t, codes.NotFound, code(err))

		// The author still sees the draft.
		_, err = env.svc.GetExamByID(ctx, env.instructor, ex.ID.Hex())
		require.NoError(t, err)

		env.publish(t, ex.ID)
		_, err = env.svc.GetExamByID(ctx, env.student, ex.ID.Hex())
		require.NoError(t, err)

		no := false
		_, err = env.svc.UpdateExamStatus(ctx, env.instructor, ex.ID.Hex(), UpdateStatusInput{Available: &no})
		require.NoError(t, err)

		// Withdrawing the exam hides it again.
		_, err = env.svc.GetExamByID(ctx, env.student, ex.ID.Hex())
		assert.Equal(t, codes.NotFound, code(err))
	})

	t.Run("Malformed id is invalid", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.GetExamByID(ctx, env.student, "not-an-id")
		assert.Equal(t, codes.InvalidArgument, code(err))
	})
}

func TestUpdateExamStatus(t *testing.T) {
	ctx := context.Background()
	published := shared.ExamPublished
	bogus := "bogus"
	yes := true

	t.Run("Rejects unknown status without change", func(t *testing.T) {
		env := newTestEnv(t)
		ex := env.exam(t)

		_, err := env.svc.UpdateExamStatus(ctx, env.instructor, ex.ID.Hex(), UpdateStatusInput{Status: &bogus})
		assert.Equal(t, codes.InvalidArgument, code(err))

		stored, err := env.store.GetExam(ctx, ex.ID)
		require.NoError(t, err)
		assert.Equal(t, shared.ExamDraft, stored.Status)
	})

	t.Run("Requires at least one field", func(t *testing.T) {
		env := newTestEnv(t)
		ex := env.exam(t)
		_, err := env.svc.UpdateExamStatus(ctx, env.instructor, ex.ID.Hex(), UpdateStatusInput{})
		assert.Equal(t, codes.InvalidArgument, code(err))
	})

	t.Run("Flags change independently", func(t *testing.T) {
		env := newTestEnv(t)
		ex := env.exam(t)

		updated, err := env.svc.UpdateExamStatus(ctx, env.instructor, ex.ID.Hex(), UpdateStatusInput{Status: &published})
		require.NoError(t, err)
		assert.Equal(t, shared.ExamPublished, updated.Status)
		assert.False(t, updated.Available)

		updated, err = env.svc.UpdateExamStatus(ctx, env.instructor, ex.ID.Hex(), UpdateStatusInput{Available: &yes})
		require.NoError(t, err)
		assert.Equal(t, shared.ExamPublished, updated.Status)
		assert.True(t, updated.Available)
	})

	t.Run("Other instructors are denied but admins are not", func(t *testing.T) {
		env := newTestEnv(t)
		ex := env.exam(t)

		_, err := env.svc.UpdateExamStatus(ctx, env.other, ex.ID.Hex(), UpdateStatusInput{Available: &yes})
		assert.Equal(t, codes.PermissionDenied, code(err))

		admin := policy.Principal{ID: primitive.NewObjectID().Hex(), Role: shared.RoleAdmin}
		_, err = env.svc.UpdateExamStatus(ctx, admin, ex.ID.Hex(), UpdateStatusInput{Available: &yes})
		assert.NoError(t, err)
	})
}

func TestListExams(t *testing.T) {
	ctx := context.Background()
	published := shared.ExamPublished
	yes := true

	env := newTestEnv(t)
	live := env.exam(t)
	_, err := env.svc.CreateExam(ctx, env.instructor, examInput(env.instructor.ID, "Mock Test 2"))
	require.NoError(t, err)
	_, err = env.svc.CreateExam(ctx, env.other, examInput(env.other.ID, "Listening 1"))
	require.NoError(t, err)

	_, err = env.svc.UpdateExamStatus(ctx, env.instructor, live.ID.Hex(), UpdateStatusInput{Status: &published, Available: &yes})
	require.NoError(t, err)

	t.Run("Published lists only available published exams", func(t *testing.T) {
		exams, err := env.svc.ListPublishedExams(ctx, env.student)
		require.NoError(t, err)
		require.Len(t, exams, 1)
		assert.Equal(t, live.ID, exams[0].ID)
	})

	t.Run("Instructor list defaults to own exams", func(t *testing.T) {
		exams, err := env.svc.ListExams(ctx, env.instructor, "")
		require.NoError(t, err)
		assert.Len(t, exams, 2)
	})

	t.Run("Instructor cannot list another instructor's exams", func(t *testing.T) {
		_, err := env.svc.ListExams(ctx, env.instructor, env.other.ID)
		assert.Equal(t, codes.PermissionDenied, code(err))
	})
}

func TestExamQuestions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	ex := env.exam(t)
	s2 := env.section(t, ex.ID, 2)
	s1 := env.section(t, ex.ID, 1)
	q3 := env.mcq(t, s2.ID, 1, "Rome")
	q1 := env.mcq(t, s1.ID, 1, "Paris")
	q2 := env.mcq(t, s1.ID, 2, "London")

	questions, err := env.svc.ExamQuestions(ctx, ex.ID)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.Equal(t, []primitive.ObjectID{q1.ID, q2.ID, q3.ID},
		[]primitive.ObjectID{questions[0].ID, questions[1].ID, questions[2].ID})
	assert.Equal(t, "Paris", questions[0].Answer)

	got, err := env.svc.GetQuestion(ctx, q2.ID)
	require.NoError(t, err)
	assert.Equal(t, "London", got.Answer)

	_, err = env.svc.GetQuestion(ctx, primitive.NewObjectID())
	assert.Equal(t, codes.NotFound, code(err))
}
