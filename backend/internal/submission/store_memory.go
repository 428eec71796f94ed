package submission

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"lms_core/backend/internal/shared"
)

// MemoryStore keeps submissions in process
type MemoryStore struct {
	mu   sync.Mutex
	subs map[primitive.ObjectID]shared.ExamSubmission
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[primitive.ObjectID]shared.ExamSubmission)}
}

// clone copies the maps and slices so callers never share state with the store
func clone(sub shared.ExamSubmission) shared.ExamSubmission {
	sub.SectionIDs = append([]primitive.ObjectID(nil), sub.SectionIDs...)
	sub.Answers = copyMap(sub.Answers)
	sub.Metadata = copyMap(sub.Metadata)
	return sub
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Insert implements Store
func (m *MemoryStore) Insert(_ context.Context, sub *shared.ExamSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.subs[sub.ID]; exists {
		return shared.ErrDuplicate
	}
	// one submission per (student, exam), like the unique index
	for _, other := range m.subs {
		if other.Student == sub.Student && other.Exam == sub.Exam {
			return shared.ErrDuplicate
		}
	}
	m.subs[sub.ID] = clone(*sub)
	return nil
}

// Get implements Store
func (m *MemoryStore) Get(_ context.Context, id primitive.ObjectID) (*shared.ExamSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	out := clone(sub)
	return &out, nil
}

// Replace implements Store
func (m *MemoryStore) Replace(_ context.Context, sub *shared.ExamSubmission, prevUpdatedAt primitive.DateTime) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.subs[sub.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if primitive.NewDateTimeFromTime(current.UpdatedAt) != prevUpdatedAt {
		return ErrStale
	}
	m.subs[sub.ID] = clone(*sub)
	return nil
}

// List implements Store; newest first
func (m *MemoryStore) List(_ context.Context, filter Filter) ([]shared.ExamSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []shared.ExamSubmission{}
	for _, sub := range m.subs {
		if filter.Exam != nil && sub.Exam != *filter.Exam {
			continue
		}
		if filter.Student != nil && sub.Student != *filter.Student {
			continue
		}
		out = append(out, clone(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
