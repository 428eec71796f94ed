package exam

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lms_core/backend/internal/audit"
	"lms_core/backend/internal/cache"
	"lms_core/backend/internal/directory"
	"lms_core/backend/internal/policy"
	"lms_core/backend/internal/shared"
)

// sectionLoaders bounds the concurrent question queries of one exam view
const sectionLoaders = 4

// ExamService authors exams and serves their populated views
type ExamService struct {
	store  Store
	dir    directory.Directory
	policy *policy.Checker
	audit  audit.Recorder
	cache  cache.ExamCache
	logger *shared.Logger
}

// NewExamService creates a new ExamService instance
func NewExamService(store Store, dir directory.Directory, checker *policy.Checker, recorder audit.Recorder, examCache cache.ExamCache, logger *shared.Logger) *ExamService {
	if examCache == nil {
		examCache = cache.NoopCache{}
	}
	return &ExamService{
		store:  store,
		dir:    dir,
		policy: checker,
		audit:  recorder,
		cache:  examCache,
		logger: logger,
	}
}

// CreateExamInput is the body of an exam create
type CreateExamInput struct {
	Title       string `json:"title" validate:"notblank"`
	Description string `json:"description" validate:"notblank"`
	Duration    int    `json:"duration" validate:"required,gt=0"`
	Difficulty  string `json:"difficulty" validate:"required,oneof=Beginner Intermediate Advanced"`
	Type        string `json:"type" validate:"required,oneof=Reading Writing Listening Speaking"`
	CreatedBy   string `json:"createdBy" validate:"required,objectid"`
}

// CreateSectionInput is the body of a section create
type CreateSectionInput struct {
	Title        string `json:"title" validate:"notblank"`
	Duration     int    `json:"duration" validate:"gte=0"`
	AudioURL     string `json:"audioUrl"`
	Instructions string `json:"instructions"`
	Order        int    `json:"order"`
}

// CreateQuestionInput is the body of a question create. Points defaults to 1.
type CreateQuestionInput struct {
	Type      string   `json:"type" validate:"required,oneof=reading mcq typing essay form-completion matching oral"`
	Question  string   `json:"question" validate:"notblank"`
	Options   []string `json:"options"`
	Passage   string   `json:"passage"`
	Answer    string   `json:"answer"`
	WordLimit int      `json:"wordLimit" validate:"gte=0"`
	Points    *float64 `json:"points"`
	Order     int      `json:"order"`
}

// UpdateStatusInput changes the lifecycle flags of an exam independently
type UpdateStatusInput struct {
	Status    *string `json:"status,omitempty"`
	Available *bool   `json:"available,omitempty"`
}

// checkQuestion applies the rules that depend on the question type
func checkQuestion(in CreateQuestionInput) error {
	switch in.Type {
	case shared.QuestionMCQ, shared.QuestionMatching:
		for _, opt := range in.Options {
			if strings.TrimSpace(opt) != "" {
				return nil
			}
		}
		return status.Errorf(codes.InvalidArgument, "%s questions need at least one option", in.Type)
	case shared.QuestionEssay:
		if in.WordLimit <= 0 {
			return status.Error(codes.InvalidArgument, "essay questions need a wordLimit greater than 0")
		}
	}
	return nil
}

func (s *ExamService) internal(userID string, err error, msg string) error {
	s.logger.Errorf(userID, err, "exam: %s", msg)
	return status.Error(codes.Internal, msg)
}

func (s *ExamService) record(ctx context.Context, p policy.Principal, action, resource string, details map[string]interface{}) {
	if err := s.audit.Record(ctx, p.ID, action, resource, details); err != nil {
		s.logger.Warnf("audit %s on %s failed: %v", action, resource, err)
	}
}

func (s *ExamService) invalidate(ctx context.Context, examID primitive.ObjectID) {
	if err := s.cache.Delete(ctx, cache.ExamKeys(examID.Hex())...); err != nil {
		s.logger.Warnf("exam cache invalidation for %s failed: %v", examID.Hex(), err)
	}
}

// loadExam maps a missing exam to NotFound
func (s *ExamService) loadExam(ctx context.Context, userID string, id primitive.ObjectID) (*shared.Exam, error) {
	e, err := s.store.GetExam(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "exam not found: %s", id.Hex())
	}
	if err != nil {
		return nil, s.internal(userID, err, "failed to load exam")
	}
	return e, nil
}

// loadSection maps a missing section to NotFound
func (s *ExamService) loadSection(ctx context.Context, userID string, id primitive.ObjectID) (*shared.Section, error) {
	sec, err := s.store.GetSection(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "section not found: %s", id.Hex())
	}
	if err != nil {
		return nil, s.internal(userID, err, "failed to load section")
	}
	return sec, nil
}

// requireAuthor allows the exam's creator, or anyone allowed to edit every exam
func (s *ExamService) requireAuthor(p policy.Principal, e *shared.Exam) error {
	return s.policy.RequireOwnerOr(p, e.CreatedBy.Hex(), policy.ExamUpdate, policy.ExamUpdateAny)
}

// CreateExam stores a new draft exam owned by an instructor
func (s *ExamService) CreateExam(ctx context.Context, p policy.Principal, in CreateExamInput) (*shared.Exam, error) {
	if err := s.policy.Require(p, policy.ExamCreate); err != nil {
		return nil, err
	}
	if err := shared.Validate(in); err != nil {
		return nil, err
	}
	creator, err := shared.ParseID("createdBy", in.CreatedBy)
	if err != nil {
		return nil, err
	}
	if !s.policy.Has(p.Role, policy.ExamUpdateAny) && creator.Hex() != p.ID {
		return nil, status.Error(codes.PermissionDenied, "instructors may only create exams for themselves")
	}

	_, err = directory.RequireRole(ctx, s.dir, creator, shared.RoleInstructor)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return nil, status.Errorf(codes.NotFound, "instructor not found: %s", in.CreatedBy)
	case errors.Is(err, directory.ErrWrongRole):
		return nil, status.Errorf(codes.InvalidArgument, "user %s is not an instructor", in.CreatedBy)
	case err != nil:
		return nil, s.internal(p.ID, err, "failed to resolve instructor")
	}

	now := time.Now().UTC()
	e := &shared.Exam{
		ID:             primitive.NewObjectID(),
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Duration:       in.Duration,
		Difficulty:     in.Difficulty,
		Type:           in.Type,
		Status:         shared.ExamDraft,
		Available:      false,
		TotalQuestions: 0,
		Sections:       []primitive.ObjectID{},
		CreatedBy:      creator,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.store.InsertExam(ctx, e); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return nil, status.Errorf(codes.AlreadyExists, "exam with title %q already exists", e.Title)
		}
		return nil, s.internal(p.ID, err, "failed to create exam")
	}

	s.record(ctx, p, shared.ActionExamCreate, "exam:"+e.ID.Hex(), map[string]interface{}{
		"title": e.Title,
	})
	return e, nil
}

// CreateSection adds a section to an exam and appends it to the exam's list
func (s *ExamService) CreateSection(ctx context.Context, p policy.Principal, examID string, in CreateSectionInput) (*shared.Section, error) {
	eid, err := shared.ParseID("exam", examID)
	if err != nil {
		return nil, err
	}
	if err := shared.Validate(in); err != nil {
		return nil, err
	}
	e, err := s.loadExam(ctx, p.ID, eid)
	if err != nil {
		return nil, err
	}
	if err := s.requireAuthor(p, e); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sec := &shared.Section{
		ID:           primitive.NewObjectID(),
		Exam:         eid,
		Title:        in.Title,
		Duration:     in.Duration,
		AudioURL:     in.AudioURL,
		Instructions: in.Instructions,
		Questions:    []primitive.ObjectID{},
		Order:        in.Order,
		CreatedAt:    now,
	}

	err = s.store.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.store.InsertSection(txCtx, sec); err != nil {
			return err
		}
		return s.store.AppendSection(txCtx, eid, sec.ID, now)
	})
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to create section")
	}
	s.invalidate(ctx, eid)

	s.record(ctx, p, shared.ActionSectionCreate, "section:"+sec.ID.Hex(), map[string]interface{}{
		"exam": examID,
	})
	return sec, nil
}

// CreateQuestion adds a question to a section and bumps the exam's
// question counter by one.
func (s *ExamService) CreateQuestion(ctx context.Context, p policy.Principal, sectionID string, in CreateQuestionInput) (*shared.Question, error) {
	sid, err := shared.ParseID("section", sectionID)
	if err != nil {
		return nil, err
	}
	if err := shared.Validate(in); err != nil {
		return nil, err
	}
	if err := checkQuestion(in); err != nil {
		return nil, err
	}
	points := 1.0
	if in.Points != nil {
		points = *in.Points
	}
	if points < 0 {
		return nil, status.Error(codes.InvalidArgument, "points must not be negative")
	}

	sec, err := s.loadSection(ctx, p.ID, sid)
	if err != nil {
		return nil, err
	}
	e, err := s.loadExam(ctx, p.ID, sec.Exam)
	if err != nil {
		return nil, err
	}
	if err := s.requireAuthor(p, e); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	q := &shared.Question{
		ID:        primitive.NewObjectID(),
		Section:   sid,
		Type:      in.Type,
		Question:  in.Question,
		Options:   in.Options,
		Passage:   in.Passage,
		Answer:    in.Answer,
		WordLimit: in.WordLimit,
		Points:    points,
		Order:     in.Order,
		CreatedAt: now,
	}

	err = s.store.WithinTx(ctx, func(txCtx context.Context) error {
		if err := s.store.InsertQuestion(txCtx, q); err != nil {
			return err
		}
		if err := s.store.AppendQuestion(txCtx, sid, q.ID); err != nil {
			return err
		}
		return s.store.IncrementQuestions(txCtx, e.ID, 1, now)
	})
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to create question")
	}
	s.invalidate(ctx, e.ID)

	s.record(ctx, p, shared.ActionQuestionCreate, "question:"+q.ID.Hex(), map[string]interface{}{
		"exam":    e.ID.Hex(),
		"section": sectionID,
		"type":    q.Type,
	})
	return q, nil
}

// GetExamByID returns the exam with its sections and questions populated in
// order. Callers that may not see answer keys get them stripped.
func (s *ExamService) GetExamByID(ctx context.Context, p policy.Principal, examID string) (*shared.ExamView, error) {
	if err := s.policy.Require(p, policy.ExamView); err != nil {
		return nil, err
	}
	eid, err := shared.ParseID("exam", examID)
	if err != nil {
		return nil, err
	}

	withAnswers := s.policy.Has(p.Role, policy.ExamViewKey)
	key := cache.ExamKey(eid.Hex(), withAnswers)

	var view *shared.ExamView
	var cached shared.ExamView
	found, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warnf("exam cache read %s failed: %v", key, err)
	}
	if found && err == nil {
		view = &cached
	} else {
		view, err = s.loadView(ctx, p.ID, eid)
		if err != nil {
			return nil, err
		}
		if !withAnswers {
			view = view.WithoutAnswers()
		}
		if err := s.cache.Set(ctx, key, view); err != nil {
			s.logger.Warnf("exam cache write %s failed: %v", key, err)
		}
	}

	// Drafts and withdrawn exams stay hidden from callers who cannot author.
	if !s.policy.Has(p.Role, policy.ExamUpdate) && !view.IsOpen() {
		return nil, status.Errorf(codes.NotFound, "exam not found: %s", examID)
	}
	return view, nil
}

// loadView populates an exam, querying each section's questions concurrently
func (s *ExamService) loadView(ctx context.Context, userID string, eid primitive.ObjectID) (*shared.ExamView, error) {
	e, err := s.loadExam(ctx, userID, eid)
	if err != nil {
		return nil, err
	}
	sections, err := s.store.ListSections(ctx, eid)
	if err != nil {
		return nil, s.internal(userID, err, "failed to load sections")
	}

	view := &shared.ExamView{Exam: *e, Sections: make([]shared.SectionView, len(sections))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sectionLoaders)
	for i := range sections {
		i := i
		g.Go(func() error {
			questions, err := s.store.ListQuestions(gctx, sections[i].ID)
			if err != nil {
				return err
			}
			view.Sections[i] = shared.SectionView{Section: sections[i], Questions: questions}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, s.internal(userID, err, "failed to load questions")
	}
	return view, nil
}

// UpdateExamStatus changes the status, the availability flag, or both
func (s *ExamService) UpdateExamStatus(ctx context.Context, p policy.Principal, examID string, in UpdateStatusInput) (*shared.Exam, error) {
	eid, err := shared.ParseID("exam", examID)
	if err != nil {
		return nil, err
	}
	if in.Status == nil && in.Available == nil {
		return nil, status.Error(codes.InvalidArgument, "status or available is required")
	}
	if in.Status != nil && !shared.IsValidExamStatus(*in.Status) {
		return nil, status.Errorf(codes.InvalidArgument, "invalid exam status: %s", *in.Status)
	}

	e, err := s.loadExam(ctx, p.ID, eid)
	if err != nil {
		return nil, err
	}
	if err := s.requireAuthor(p, e); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateExamStatus(ctx, eid, StatusChange{Status: in.Status, Available: in.Available}, time.Now().UTC())
	if errors.Is(err, shared.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "exam not found: %s", examID)
	}
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to update exam status")
	}
	s.invalidate(ctx, eid)

	s.record(ctx, p, shared.ActionExamStatus, "exam:"+examID, map[string]interface{}{
		"status":    updated.Status,
		"available": updated.Available,
	})
	return updated, nil
}

// ListPublishedExams returns the exams students can currently take
func (s *ExamService) ListPublishedExams(ctx context.Context, p policy.Principal) ([]shared.Exam, error) {
	if err := s.policy.Require(p, policy.ExamView); err != nil {
		return nil, err
	}
	exams, err := s.store.ListExams(ctx, ExamFilter{PublishedOnly: true})
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to list exams")
	}
	return exams, nil
}

// ListExams returns the exams authored by createdBy, defaulting to the caller
func (s *ExamService) ListExams(ctx context.Context, p policy.Principal, createdBy string) ([]shared.Exam, error) {
	if createdBy == "" {
		createdBy = p.ID
	}
	if err := s.policy.RequireOwnerOr(p, createdBy, policy.ExamCreate, policy.ExamUpdateAny); err != nil {
		return nil, err
	}
	creator, err := shared.ParseID("createdBy", createdBy)
	if err != nil {
		return nil, err
	}

	exams, err := s.store.ListExams(ctx, ExamFilter{CreatedBy: &creator})
	if err != nil {
		return nil, s.internal(p.ID, err, "failed to list exams")
	}
	return exams, nil
}

// ---- lookups for the submission workflow ----

// FindExam returns an exam or a NotFound status
func (s *ExamService) FindExam(ctx context.Context, id primitive.ObjectID) (*shared.Exam, error) {
	return s.loadExam(ctx, "", id)
}

// FindSection returns a section or a NotFound status
func (s *ExamService) FindSection(ctx context.Context, id primitive.ObjectID) (*shared.Section, error) {
	return s.loadSection(ctx, "", id)
}

// GetQuestion returns a single question including its answer key
func (s *ExamService) GetQuestion(ctx context.Context, id primitive.ObjectID) (*shared.Question, error) {
	q, err := s.store.GetQuestion(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "question not found: %s", id.Hex())
	}
	if err != nil {
		return nil, s.internal("", err, "failed to load question")
	}
	return q, nil
}

// ExamQuestions returns every question of an exam, answers included, in
// section then question order.
func (s *ExamService) ExamQuestions(ctx context.Context, examID primitive.ObjectID) ([]shared.Question, error) {
	view, err := s.loadView(ctx, "", examID)
	if err != nil {
		return nil, err
	}
	var questions []shared.Question
	for _, sec := range view.Sections {
		questions = append(questions, sec.Questions...)
	}
	return questions, nil
}
