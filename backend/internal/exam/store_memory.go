package exam

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"lms_core/backend/internal/shared"
)

// MemoryStore keeps the exam aggregate in process
type MemoryStore struct {
	shared.NoTx

	mu        sync.Mutex
	exams     map[primitive.ObjectID]shared.Exam
	sections  map[primitive.ObjectID]shared.Section
	questions map[primitive.ObjectID]shared.Question
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		exams:     make(map[primitive.ObjectID]shared.Exam),
		sections:  make(map[primitive.ObjectID]shared.Section),
		questions: make(map[primitive.ObjectID]shared.Question),
	}
}

// InsertExam implements Store
func (m *MemoryStore) InsertExam(_ context.Context, e *shared.Exam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.exams {
		if existing.ID == e.ID || (existing.Title == e.Title && existing.CreatedBy == e.CreatedBy) {
			return shared.ErrDuplicate
		}
	}
	e.Sections = append([]primitive.ObjectID(nil), e.Sections...)
	m.exams[e.ID] = *e
	return nil
}

// GetExam implements Store
func (m *MemoryStore) GetExam(_ context.Context, id primitive.ObjectID) (*shared.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	e.Sections = append([]primitive.ObjectID(nil), e.Sections...)
	return &e, nil
}

// ListExams implements Store; newest first
func (m *MemoryStore) ListExams(_ context.Context, filter ExamFilter) ([]shared.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []shared.Exam{}
	for _, e := range m.exams {
		if filter.Matches(&e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// UpdateExamStatus implements Store
func (m *MemoryStore) UpdateExamStatus(_ context.Context, id primitive.ObjectID, change StatusChange, now time.Time) (*shared.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if change.Status != nil {
		e.Status = *change.Status
	}
	if change.Available != nil {
		e.Available = *change.Available
	}
	e.UpdatedAt = now
	m.exams[id] = e
	return &e, nil
}

// AppendSection implements Store
func (m *MemoryStore) AppendSection(_ context.Context, examID, sectionID primitive.ObjectID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[examID]
	if !ok {
		return shared.ErrNotFound
	}
	e.Sections = append(append([]primitive.ObjectID(nil), e.Sections...), sectionID)
	e.UpdatedAt = now
	m.exams[examID] = e
	return nil
}

// IncrementQuestions implements Store
func (m *MemoryStore) IncrementQuestions(_ context.Context, examID primitive.ObjectID, n int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[examID]
	if !ok {
		return shared.ErrNotFound
	}
	e.TotalQuestions += n
	e.UpdatedAt = now
	m.exams[examID] = e
	return nil
}

// InsertSection implements Store
func (m *MemoryStore) InsertSection(_ context.Context, s *shared.Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sections[s.ID]; exists {
		return shared.ErrDuplicate
	}
	s.Questions = append([]primitive.ObjectID(nil), s.Questions...)
	m.sections[s.ID] = *s
	return nil
}

// GetSection implements Store
func (m *MemoryStore) GetSection(_ context.Context, id primitive.ObjectID) (*shared.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sections[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	s.Questions = append([]primitive.ObjectID(nil), s.Questions...)
	return &s, nil
}

// ListSections implements Store
func (m *MemoryStore) ListSections(_ context.Context, examID primitive.ObjectID) ([]shared.Section, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []shared.Section{}
	for _, s := range m.sections {
		if s.Exam == examID {
			s.Questions = append([]primitive.ObjectID(nil), s.Questions...)
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// AppendQuestion implements Store
func (m *MemoryStore) AppendQuestion(_ context.Context, sectionID, questionID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sections[sectionID]
	if !ok {
		return shared.ErrNotFound
	}
	s.Questions = append(append([]primitive.ObjectID(nil), s.Questions...), questionID)
	m.sections[sectionID] = s
	return nil
}

// InsertQuestion implements Store
func (m *MemoryStore) InsertQuestion(_ context.Context, q *shared.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.questions[q.ID]; exists {
		return shared.ErrDuplicate
	}
	q.Options = append([]string(nil), q.Options...)
	m.questions[q.ID] = *q
	return nil
}

// GetQuestion implements Store
func (m *MemoryStore) GetQuestion(_ context.Context, id primitive.ObjectID) (*shared.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &q, nil
}

// ListQuestions implements Store
func (m *MemoryStore) ListQuestions(_ context.Context, sectionID primitive.ObjectID) ([]shared.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []shared.Question{}
	for _, q := range m.questions {
		if q.Section == sectionID {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
