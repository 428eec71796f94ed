package submission

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lms_core/backend/internal/audit"
	"lms_core/backend/internal/directory"
	"lms_core/backend/internal/grading"
	"lms_core/backend/internal/policy"
	"lms_core/backend/internal/shared"
)

// AutoGradeKey is the metadata entry a persisted auto-grade is merged under
const AutoGradeKey = "auto_grade"

// ExamLookup resolves the exam side of a submission. Errors are gRPC statuses.
type ExamLookup interface {
	FindExam(ctx context.Context, id primitive.ObjectID) (*shared.Exam, error)
	FindSection(ctx context.Context, id primitive.ObjectID) (*shared.Section, error)
	ExamQuestions(ctx context.Context, examID primitive.ObjectID) ([]shared.Question, error)
}

// SubmissionService runs the submission lifecycle
type SubmissionService struct {
	store       Store
	exams       ExamLookup
	dir         directory.Directory
	policy      *policy.Checker
	transitions TransitionPolicy
	grader      *grading.Grader
	audit       audit.Recorder
	logger      *shared.Logger
}

// NewSubmissionService creates a new SubmissionService instance
func NewSubmissionService(store Store, exams ExamLookup, dir directory.Directory, checker *policy.Checker, transitions TransitionPolicy, recorder audit.Recorder, logger *shared.Logger) *SubmissionService {
	if transitions == nil {
		transitions = Permissive{}
	}
	return &SubmissionService{
		store:       store,
		exams:       exams,
		dir:         dir,
		policy:      checker,
		transitions: transitions,
		grader:      grading.NewGrader(),
		audit:       recorder,
		logger:      logger,
	}
}

// CreateInput is the body of a submission create
type CreateInput struct {
	Student    string                 `json:"student" validate:"required,objectid"`
	Exam       string                 `json:"exam" validate:"required,objectid"`
	SectionIDs []string               `json:"sectionIds" validate:"required,min=1,dive,objectid"`
	Answers    map[string]interface{} `json:"answers"`
}

// UpdateInput carries a partial update. Answers and metadata are merged
// key by key; the other fields overwrite when present.
type UpdateInput struct {
	Answers    map[string]interface{} `json:"answers,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Status     *string                `json:"status,omitempty"`
	TotalScore *float64               `json:"totalScore,omitempty"`
	Feedback   *string                `json:"feedback,omitempty"`
	SectionIDs []string               `json:"sectionIds,omitempty"`
}

// GradeInput is the body of a grade request; status defaults to graded
type GradeInput struct {
	TotalScore *float64 `json:"totalScore" validate:"required"`
	Feedback   string   `json:"feedback"`
	Status     string   `json:"status" validate:"omitempty,oneof=graded reviewed"`
}

// AutoGradeResult is the auto-grade breakdown of one submission
type AutoGradeResult struct {
	SubmissionID string `json:"submissionId"`
	grading.Summary
	Persisted bool `json:"persisted"`
}

// now is truncated to the precision Mongo stores
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *SubmissionService) internal(userID string, err error, msg string) error {
	s.logger.Errorf(userID, err, "submission: %s", msg)
	return status.Error(codes.Internal, msg)
}

func (s *SubmissionService) record(ctx context.Context, p policy.Principal, action, resource string, details map[string]interface{}) {
	if err := s.audit.Record(ctx, p.ID, action, resource, details); err != nil {
		s.logger.Warnf("audit %s on %s failed: %v", action, resource, err)
	}
}

func (s *SubmissionService) load(ctx context.Context, userID, id string) (*shared.ExamSubmission, error) {
	sid, err := shared.ParseID("id", id)
	if err != nil {
		return nil, err
	}
	sub, err := s.store.Get(ctx, sid)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "submission not found: %s", id)
	}
	if err != nil {
		return nil, s.internal(userID, err, "failed to load submission")
	}
	return sub, nil
}

// save writes sub over the copy last stamped prev
func (s *SubmissionService) save(ctx context.Context, userID string, sub *shared.ExamSubmission, prev time.Time) error {
	err := s.store.Replace(ctx, sub, primitive.NewDateTimeFromTime(prev))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, shared.ErrNotFound):
		return status.Errorf(codes.NotFound, "submission not found: %s", sub.ID.Hex())
	case errors.Is(err, ErrStale):
		return status.Error(codes.Aborted, "submission was modified concurrently, retry")
	default:
		return s.internal(userID, err, "failed to save submission")
	}
}

// changeStatus checks a status move and stamps the matching timestamp
func (s *SubmissionService) changeStatus(sub *shared.ExamSubmission, to string, at time.Time) error {
	if !shared.IsValidSubmissionStatus(to) {
		return status.Errorf(codes.InvalidArgument, "invalid submission status: %s", to)
	}
	if err := s.transitions.Allow(sub.Status, to); err != nil {
		return err
	}
	if to == shared.SubmissionSubmitted && sub.Status != shared.SubmissionSubmitted {
		sub.SubmittedAt = &at
	}
	sub.Status = to
	return nil
}

// CreateSubmission starts an in-progress attempt at an exam
func (s *SubmissionService) CreateSubmission(ctx context.Context, p policy.Principal, in CreateInput) (*shared.ExamSubmission, error) {
	if err := s.policy.Require(p, policy.SubmissionCreate); err != nil {
		return nil, err
	}
	if err := shared.Validate(in); err != nil {
		return nil, err
	}
	if !s.policy.Has(p.Role, policy.SubmissionViewAll) && in.Student != p.ID {
		return nil, status.Error(codes.PermissionDenied, "students may only submit for themselves")
	}

	studentID, err := shared.ParseID("student", in.Student)
	if err != nil {
		return nil, err
	}
	examID, err := shared.ParseID("exam", in.Exam)
	if err != nil {
		return nil, err
	}
	sectionIDs, err := shared.ParseIDs("sectionIds", in.SectionIDs)
	if err != nil {
		return nil, err
	}

	_, err = directory.RequireRole(ctx, s.dir, studentID, shared.RoleStudent)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return nil, status.Errorf(codes.NotFound, "student not found: %s", in.Student)
	case errors.Is(err, directory.ErrWrongRole):
		return nil, status.Errorf(codes.InvalidArgument, "user %s is not a student", in.Student)
	case err != nil:
		return nil, s.internal(p.ID, err, "failed to resolve student")
	}

	ex, err := s.exams.FindExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !s.policy.Has(p.Role, policy.SubmissionViewAll) && !ex.IsOpen() {
		return nil, status.Errorf(codes.FailedPrecondition, "exam %s is not open for submissions", in.Exam)
	}
	section, err := s.exams.FindSection(ctx, sectionIDs[0])
	if err != nil {
		return nil, err
	}
	if section.Exam != examID {
		return nil, status.Errorf(codes.InvalidArgument, "section %s does not belong to exam %s", section.ID.Hex(), in.Exam)
	}

	at := now()
	sub := &shared.ExamSubmission{
		ID:         primitive.NewObjectID(),
		Student:    studentID,
		Exam:       examID,
		SectionIDs: sectionIDs,
		Status:     shared.SubmissionInProgress,
		Metadata:   map[string]interface{}{},
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	sub.MergeAnswers(in.Answers)

	if err := s.store.Insert(ctx, sub); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return nil, status.Errorf(codes.AlreadyExists, "student %s already has a submission for exam %s", in.Student, in.Exam)
		}
		return nil, s.internal(p.ID, err, "failed to create submission")
	}

	s.record(ctx, p, shared.ActionSubmissionCreate, "submission:"+sub.ID.Hex(), map[string]interface{}{
		"exam":    in.Exam,
		"student": in.Student,
	})
	return sub, nil
}

// UpdateSubmission merges answers and metadata and applies any other field
// present. Students may only touch their own open submission and only move
// it between in-progress and submitted.
func (s *SubmissionService) UpdateSubmission(ctx context.Context, p policy.Principal, id string, in UpdateInput) (*shared.ExamSubmission, error) {
	sub, err := s.load(ctx, p.ID, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.RequireOwnerOr(p, sub.Student.Hex(), policy.SubmissionUpdateOwn, policy.SubmissionUpdate); err != nil {
		return nil, err
	}

	if in.Status != nil && !shared.IsValidSubmissionStatus(*in.Status) {
		return nil, status.Errorf(codes.InvalidArgument, "invalid submission status: %s", *in.Status)
	}

	limited := !s.policy.Has(p.Role, policy.SubmissionUpdate)
	if limited {
		if in.TotalScore != nil || in.Feedback != nil {
			return nil, status.Error(codes.PermissionDenied, "students may not set scores or feedback")
		}
		if sub.Status == shared.SubmissionGraded || sub.Status == shared.SubmissionReviewed {
			return nil, status.Errorf(codes.FailedPrecondition, "submission is already %s", sub.Status)
		}
		if in.Status != nil && *in.Status != shared.SubmissionInProgress && *in.Status != shared.SubmissionSubmitted {
			return nil, status.Errorf(codes.PermissionDenied, "students may not set status %s", *in.Status)
		}
	}
	if in.TotalScore != nil && *in.TotalScore < 0 {
		return nil, status.Error(codes.InvalidArgument, "totalScore must not be negative")
	}

	prev := sub.UpdatedAt
	at := now()
	if in.Status != nil {
		if err := s.changeStatus(sub, *in.Status, at); err != nil {
			return nil, err
		}
	}
	if in.SectionIDs != nil {
		ids, err := shared.ParseIDs("sectionIds", in.SectionIDs)
		if err != nil {
			return nil, err
		}
		sub.SectionIDs = ids
	}
	if in.TotalScore != nil {
		sub.TotalScore = *in.TotalScore
	}
	if in.Feedback != nil {
		sub.Feedback = *in.Feedback
	}
	sub.MergeAnswers(in.Answers)
	sub.MergeMetadata(in.Metadata)
	sub.UpdatedAt = at

	if err := s.save(ctx, p.ID, sub, prev); err != nil {
		return nil, err
	}

	s.record(ctx, p, shared.ActionSubmissionUpdate, "submission:"+id, map[string]interface{}{
		"status":  sub.Status,
		"answers": len(in.Answers),
	})
	return sub, nil
}

// GradeSubmission records the final score and stamps who graded it and when
func (s *SubmissionService) GradeSubmission(ctx context.Context, p policy.Principal, id string, in GradeInput) (*shared.ExamSubmission, error) {
	if err := s.policy.Require(p, policy.SubmissionGrade); err != nil {
		return nil, err
	}
	if err := shared.Validate(in); err != nil {
		return nil, err
	}
	if *in.TotalScore < 0 {
		return nil, status.Error(codes.InvalidArgument, "totalScore must not be negative")
	}
	target := in.Status
	if target == "" {
		target = shared.SubmissionGraded
	}

	sub, err := s.load(ctx, p.ID, id)
	if err != nil {
		return nil, err
	}

	prev := sub.UpdatedAt
	at := now()
	if err := s.changeStatus(sub, target, at); err != nil {
		return nil, err
	}
	sub.TotalScore = *in.TotalScore
	sub.Feedback = in.Feedback
	sub.GradedAt = &at
	if grader, err := primitive.ObjectIDFromHex(p.ID); err == nil {
		sub.GradedBy = &grader
	}
	sub.UpdatedAt = at

	if err := s.save(ctx, p.ID, sub, prev); err != nil {
		return nil, err
	}

	s.record(ctx, p, shared.ActionSubmissionGrade, "submission:"+id, map[string]interface{}{
		"total_score": sub.TotalScore,
		"status":      sub.Status,
	})
	return sub, nil
}

// GetSubmission returns one submission; students only see their own
func (s *SubmissionService) GetSubmission(ctx context.Context, p policy.Principal, id string) (*shared.ExamSubmission, error) {
	sub, err := s.load(ctx, p.ID, id)
	if err != nil {
		return nil, err
	}
	if err := s.policy.RequireOwnerOr(p, sub.Student.Hex(), policy.SubmissionViewOwn, policy.SubmissionViewAll); err != nil {
		return nil, err
	}
	return sub, nil
}

// ListSubmissions filters by exam and student. Callers without the view-all
// permission are limited to their own submissions.
func (s *SubmissionService) ListSubmissions(ctx context.Context, p policy.Principal, examID, studentID string) ([]shared.ExamSubmission, error) {
	if studentID == "" && !s.policy.Has(p.Role, policy.SubmissionViewAll) {
		studentID = p.ID
	}
	if studentID != "" {
		if err := s.policy.RequireOwnerOr(p, studentID, policy.SubmissionViewOwn, policy.SubmissionViewAll); err != nil {
			return nil, err
		}
	} else if err := s.policy.Require(p, policy.SubmissionViewAll); err != nil {
		return nil, err
	}

	var filter Filter
	if examID != "" {
		eid, err := shared.ParseID("exam", examID)
		if err != nil {
			return nil, err
		}
		filter.Exam = &eid
	}
	if studentID != "" {
		sid, err := shared.ParseID("student", studentID)
		if err != nil {
			return nil, err
		}
		filter.Student = &sid
	}

	subs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to list submissions")
	}
	return subs, nil
}

// AutoGrade scores every auto-gradable answer of a submission. With persist
// the breakdown is merged into metadata; totalScore is never changed.
func (s *SubmissionService) AutoGrade(ctx context.Context, p policy.Principal, id string, persist bool) (*AutoGradeResult, error) {
	if err := s.policy.Require(p, policy.SubmissionGrade); err != nil {
		return nil, err
	}
	sub, err := s.load(ctx, p.ID, id)
	if err != nil {
		return nil, err
	}

	questions, err := s.exams.ExamQuestions(ctx, sub.Exam)
	if err != nil {
		return nil, err
	}
	summary := s.grader.GradeAll(questions, sub)
	result := &AutoGradeResult{SubmissionID: id, Summary: summary}

	if persist {
		prev := sub.UpdatedAt
		at := now()
		sub.MergeMetadata(map[string]interface{}{
			AutoGradeKey: map[string]interface{}{
				"auto_total":   summary.AutoTotal,
				"max_total":    summary.MaxTotal,
				"needs_manual": summary.NeedsManual,
				"results":      summary.Results,
				"graded_at":    at,
			},
		})
		sub.UpdatedAt = at
		if err := s.save(ctx, p.ID, sub, prev); err != nil {
			return nil, err
		}
		result.Persisted = true
	}

	s.record(ctx, p, shared.ActionAutoGrade, "submission:"+id, map[string]interface{}{
		"auto_total":   summary.AutoTotal,
		"needs_manual": summary.NeedsManual,
		"persisted":    persist,
	})
	return result, nil
}
