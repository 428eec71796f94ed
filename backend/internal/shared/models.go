// ============================================================================
// backend/internal/shared/models.go
// Shared data models and structs for MongoDB documents
// ============================================================================

package shared

import (
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ============================================================================
// Directory Models
// ============================================================================

// User is a directory entry for a student, instructor or admin
type User struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash,omitempty" json:"-"` // Never expose in JSON
	Role         string             `bson:"role" json:"role"`                 // student, instructor, admin
	CreatedAt    time.Time          `bson:"created_at,omitempty" json:"createdAt,omitempty"`
}

// Source is the graded item a score record points at (assessment, assignment or exam)
type Source struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	Kind       string             `bson:"-" json:"kind"`
	Title      string             `bson:"title" json:"title"`
	TotalMarks float64            `bson:"total_marks,omitempty" json:"totalMarks,omitempty"`
}

// ============================================================================
// Marks Models
// ============================================================================

// ScoreRecord is one graded item's contribution before aggregation
type ScoreRecord struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	Kind         string             `bson:"kind" json:"kind"` // assessment, assignment, exam
	Student      primitive.ObjectID `bson:"student" json:"student"`
	Source       primitive.ObjectID `bson:"source" json:"source"`
	MaxMarks     float64            `bson:"max_marks" json:"maxMarks"`
	Weight       float64            `bson:"weight" json:"weight"`
	Marks        float64            `bson:"marks" json:"marks"`
	Contribution float64            `bson:"contribution" json:"contribution"`
	CreatedAt    time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updatedAt"`
}

// MarksLedger is the per-student running total of all contributions
type MarksLedger struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Student    primitive.ObjectID `bson:"student" json:"student"`
	CAMarks    float64            `bson:"ca_marks" json:"caMarks"`
	ExamMarks  float64            `bson:"exam_marks" json:"examMarks"`
	TotalMarks float64            `bson:"total_marks" json:"totalMarks"`
	MaxMarks   float64            `bson:"max_marks" json:"maxMarks"`
	Grade      string             `bson:"grade,omitempty" json:"grade,omitempty"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updatedAt"`
}

// ============================================================================
// Exam Models
// ============================================================================

// Exam is the root of the authoring aggregate
type Exam struct {
	ID             primitive.ObjectID   `bson:"_id" json:"id"`
	Title          string               `bson:"title" json:"title"`
	Description    string               `bson:"description" json:"description"`
	Duration       int                  `bson:"duration" json:"duration"` // minutes
	Difficulty     string               `bson:"difficulty" json:"difficulty"`
	Type           string               `bson:"type" json:"type"`
	Status         string               `bson:"status" json:"status"`
	Available      bool                 `bson:"available" json:"available"`
	TotalQuestions int                  `bson:"total_questions" json:"totalQuestions"`
	Sections       []primitive.ObjectID `bson:"sections" json:"sections"`
	CreatedBy      primitive.ObjectID   `bson:"created_by" json:"createdBy"`
	CreatedAt      time.Time            `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time            `bson:"updated_at" json:"updatedAt"`
}

// IsOpen reports whether students may see and sit the exam
func (e *Exam) IsOpen() bool {
	return e.Status == ExamPublished && e.Available
}

// Section groups questions of an exam
type Section struct {
	ID           primitive.ObjectID   `bson:"_id" json:"id"`
	Exam         primitive.ObjectID   `bson:"exam" json:"exam"`
	Title        string               `bson:"title" json:"title"`
	Duration     int                  `bson:"duration,omitempty" json:"duration,omitempty"`
	AudioURL     string               `bson:"audio_url,omitempty" json:"audioUrl,omitempty"`
	Instructions string               `bson:"instructions,omitempty" json:"instructions,omitempty"`
	Questions    []primitive.ObjectID `bson:"questions" json:"questions"`
	Order        int                  `bson:"order" json:"order"`
	CreatedAt    time.Time            `bson:"created_at" json:"createdAt"`
}

// Question is a single item of a section
type Question struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Section   primitive.ObjectID `bson:"section" json:"section"`
	Type      string             `bson:"type" json:"type"`
	Question  string             `bson:"question" json:"question"`
	Options   []string           `bson:"options,omitempty" json:"options,omitempty"`
	Passage   string             `bson:"passage,omitempty" json:"passage,omitempty"`
	Answer    string             `bson:"answer,omitempty" json:"answer,omitempty"`
	WordLimit int                `bson:"word_limit,omitempty" json:"wordLimit,omitempty"`
	Points    float64            `bson:"points" json:"points"`
	Order     int                `bson:"order" json:"order"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

// ExamView is an exam with its sections and their questions populated
type ExamView struct {
	Exam
	Sections []SectionView `json:"sections"`
}

// SectionView is a section with its questions populated
type SectionView struct {
	Section
	Questions []Question `json:"questions"`
}

// WithoutAnswers returns a copy of the view with every answer key removed
func (v *ExamView) WithoutAnswers() *ExamView {
	out := &ExamView{Exam: v.Exam, Sections: make([]SectionView, len(v.Sections))}
	for i, sec := range v.Sections {
		qs := make([]Question, len(sec.Questions))
		for j, q := range sec.Questions {
			q.Answer = ""
			qs[j] = q
		}
		out.Sections[i] = SectionView{Section: sec.Section, Questions: qs}
	}
	return out
}

// ============================================================================
// Submission Models
// ============================================================================

// ExamSubmission is a student's attempt at an exam
type ExamSubmission struct {
	ID          primitive.ObjectID     `bson:"_id" json:"id"`
	Student     primitive.ObjectID     `bson:"student" json:"student"`
	Exam        primitive.ObjectID     `bson:"exam" json:"exam"`
	SectionIDs  []primitive.ObjectID   `bson:"section_ids" json:"sectionIds"`
	Answers     map[string]interface{} `bson:"answers" json:"answers"`
	Status      string                 `bson:"status" json:"status"`
	TotalScore  float64                `bson:"total_score" json:"totalScore"`
	Feedback    string                 `bson:"feedback,omitempty" json:"feedback,omitempty"`
	Metadata    map[string]interface{} `bson:"metadata" json:"metadata"`
	SubmittedAt *time.Time             `bson:"submitted_at,omitempty" json:"submittedAt,omitempty"`
	GradedAt    *time.Time             `bson:"graded_at,omitempty" json:"gradedAt,omitempty"`
	GradedBy    *primitive.ObjectID    `bson:"graded_by,omitempty" json:"gradedBy,omitempty"`
	CreatedAt   time.Time              `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time              `bson:"updated_at" json:"updatedAt"`
}

// Answer returns the raw answer stored for a question
func (s *ExamSubmission) Answer(questionID string) (interface{}, bool) {
	if s.Answers == nil {
		return nil, false
	}
	v, ok := s.Answers[questionID]
	return v, ok
}

// AnswerString returns the answer for a question when it is a string
func (s *ExamSubmission) AnswerString(questionID string) (string, bool) {
	v, ok := s.Answer(questionID)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// MergeAnswers adds or replaces the given keys, keeping every other answer
func (s *ExamSubmission) MergeAnswers(answers map[string]interface{}) {
	s.Answers = mergeMap(s.Answers, answers)
}

// MergeMetadata adds or replaces the given keys, keeping every other entry
func (s *ExamSubmission) MergeMetadata(metadata map[string]interface{}) {
	s.Metadata = mergeMap(s.Metadata, metadata)
}

func mergeMap(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// ============================================================================
// Audit Log Models
// ============================================================================

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        string                 `bson:"_id" json:"id"`
	Timestamp time.Time              `bson:"timestamp" json:"timestamp"`
	UserID    string                 `bson:"user_id" json:"user_id"`
	Action    string                 `bson:"action" json:"action"`
	Resource  string                 `bson:"resource" json:"resource"`
	Details   map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
}

// ============================================================================
// Helper Methods
// ============================================================================

// Round2 rounds to two decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Contribution is the weighted amount a score adds to the ledger:
// (marks / maxMarks) * weight, rounded to two decimals.
func Contribution(marks, maxMarks, weight float64) float64 {
	if maxMarks <= 0 {
		return 0
	}
	return Round2(marks / maxMarks * weight)
}

// GradeBand is the lowest percentage that earns a letter
type GradeBand struct {
	Grade      string
	MinPercent float64
}

// GradeBands are checked top down; anything below the last band is an F.
var GradeBands = []GradeBand{
	{GradeA, 80},
	{GradeB, 70},
	{GradeC, 60},
	{GradeD, 50},
}

// LetterGrade maps a ledger total to a letter; empty when nothing is graded yet.
// The percentage is compared as total*100 >= max*band so the ledger pipeline
// can evaluate the same rule without dividing.
func LetterGrade(total, max float64) string {
	if max <= 0 {
		return ""
	}
	for _, b := range GradeBands {
		if total*100 >= max*b.MinPercent {
			return b.Grade
		}
	}
	return GradeF
}

// BucketFor returns the ledger bucket a record kind feeds
func BucketFor(kind string) string {
	if kind == KindExam {
		return BucketExam
	}
	return BucketCA
}

// NormalizeAnswer trims and lowercases a free-text answer for comparison
func NormalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ============================================================================
// Validation Constants
// ============================================================================

const (
	// User roles
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"

	// Score record kinds
	KindAssessment = "assessment"
	KindAssignment = "assignment"
	KindExam       = "exam"

	// Ledger buckets
	BucketCA   = "ca_marks"
	BucketExam = "exam_marks"

	// Grades
	GradeA = "A"
	GradeB = "B"
	GradeC = "C"
	GradeD = "D"
	GradeF = "F"

	// Exam statuses
	ExamDraft     = "draft"
	ExamPublished = "published"
	ExamArchived  = "archived"

	// Submission statuses
	SubmissionInProgress = "in-progress"
	SubmissionSubmitted  = "submitted"
	SubmissionGraded     = "graded"
	SubmissionReviewed   = "reviewed"

	// Question types
	QuestionReading        = "reading"
	QuestionMCQ            = "mcq"
	QuestionTyping         = "typing"
	QuestionEssay          = "essay"
	QuestionFormCompletion = "form-completion"
	QuestionMatching       = "matching"
	QuestionOral           = "oral"

	// Audit actions
	ActionScoreCreate      = "score_create"
	ActionScoreUpdate      = "score_update"
	ActionScoreDelete      = "score_delete"
	ActionLedgerRebuild    = "ledger_rebuild"
	ActionExamCreate       = "exam_create"
	ActionExamStatus       = "exam_status"
	ActionSectionCreate    = "section_create"
	ActionQuestionCreate   = "question_create"
	ActionSubmissionCreate = "submission_create"
	ActionSubmissionUpdate = "submission_update"
	ActionSubmissionGrade  = "submission_grade"
	ActionAutoGrade        = "submission_autograde"

	// Collections
	CollectionUsers        = "users"
	CollectionAssessments  = "assessments"
	CollectionAssignments  = "assignments"
	CollectionScoreRecords = "score_records"
	CollectionLedgers      = "marks"
	CollectionExams        = "exams"
	CollectionSections     = "sections"
	CollectionQuestions    = "questions"
	CollectionSubmissions  = "exam_submissions"
	CollectionAuditLogs    = "audit_logs"
)

// ScoreKinds lists every valid score record kind
var ScoreKinds = []string{KindAssessment, KindAssignment, KindExam}

// IsValidKind checks if a score record kind is valid
func IsValidKind(kind string) bool {
	for _, k := range ScoreKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// IsValidRole checks if user role is valid
func IsValidRole(role string) bool {
	validRoles := map[string]bool{
		RoleStudent: true, RoleInstructor: true, RoleAdmin: true,
	}
	return validRoles[role]
}

// IsValidExamStatus checks if exam status is valid
func IsValidExamStatus(status string) bool {
	return status == ExamDraft || status == ExamPublished || status == ExamArchived
}

// IsValidSubmissionStatus checks if submission status is valid
func IsValidSubmissionStatus(status string) bool {
	switch status {
	case SubmissionInProgress, SubmissionSubmitted, SubmissionGraded, SubmissionReviewed:
		return true
	}
	return false
}
