package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestContribution(t *testing.T) {
	tests := []struct {
		name                    string
		marks, maxMarks, weight float64
		want                    float64
	}{
		{"full marks", 50, 50, 20, 20},
		{"half marks", 25, 50, 20, 10},
		{"rounded", 1, 3, 10, 3.33},
		{"zero weight", 40, 50, 0, 0},
		{"non-positive max", 10, 0, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Contribution(tt.marks, tt.maxMarks, tt.weight))
		})
	}
}

func TestLetterGrade(t *testing.T) {
	assert.Equal(t, "", LetterGrade(0, 0))
	assert.Equal(t, GradeA, LetterGrade(80, 100))
	assert.Equal(t, GradeB, LetterGrade(14, 20))
	assert.Equal(t, GradeC, LetterGrade(60, 100))
	assert.Equal(t, GradeD, LetterGrade(5, 10))
	assert.Equal(t, GradeF, LetterGrade(49.99, 100))
	assert.Equal(t, GradeD, LetterGrade(105, 200))
	assert.Equal(t, GradeF, LetterGrade(-1, 10))
}

func TestIsValidKind(t *testing.T) {
	for _, kind := range ScoreKinds {
		assert.True(t, IsValidKind(kind), kind)
	}
	assert.False(t, IsValidKind("quiz"))
	assert.False(t, IsValidKind(""))
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, BucketCA, BucketFor(KindAssessment))
	assert.Equal(t, BucketCA, BucketFor(KindAssignment))
	assert.Equal(t, BucketExam, BucketFor(KindExam))
}

func TestSubmissionMaps(t *testing.T) {
	sub := &ExamSubmission{Answers: map[string]interface{}{"q1": "a"}}

	sub.MergeAnswers(map[string]interface{}{"q2": "b"})
	assert.Equal(t, map[string]interface{}{"q1": "a", "q2": "b"}, sub.Answers)

	sub.MergeMetadata(map[string]interface{}{"device": "tablet"})
	assert.Equal(t, "tablet", sub.Metadata["device"])

	v, ok := sub.AnswerString("q2")
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	sub.Answers["q3"] = 2.0
	_, ok = sub.AnswerString("q3")
	assert.False(t, ok)
	_, ok = sub.Answer("q4")
	assert.False(t, ok)
}

func TestExamViewWithoutAnswers(t *testing.T) {
	view := &ExamView{
		Exam: Exam{ID: primitive.NewObjectID(), Title: "Reading Test 1"},
		Sections: []SectionView{{
			Section:   Section{ID: primitive.NewObjectID()},
			Questions: []Question{{ID: primitive.NewObjectID(), Type: QuestionMCQ, Answer: "A"}},
		}},
	}

	stripped := view.WithoutAnswers()
	assert.Equal(t, "", stripped.Sections[0].Questions[0].Answer)
	assert.Equal(t, "A", view.Sections[0].Questions[0].Answer, "original view must not change")
	assert.Equal(t, view.Title, stripped.Title)
}

func TestEnumHelpers(t *testing.T) {
	assert.True(t, IsValidKind(KindExam))
	assert.False(t, IsValidKind("quiz"))
	assert.True(t, IsValidRole(RoleInstructor))
	assert.False(t, IsValidRole("faculty"))
	assert.True(t, IsValidExamStatus(ExamArchived))
	assert.False(t, IsValidSubmissionStatus("bogus"))
	assert.Equal(t, "paris", NormalizeAnswer("  Paris "))
}
