package marks

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"lms_core/backend/internal/shared"
)

// MemoryStore keeps records and ledgers in process
type MemoryStore struct {
	shared.NoTx

	mu      sync.Mutex
	records map[primitive.ObjectID]shared.ScoreRecord
	ledgers map[primitive.ObjectID]shared.MarksLedger
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[primitive.ObjectID]shared.ScoreRecord),
		ledgers: make(map[primitive.ObjectID]shared.MarksLedger),
	}
}

// InsertRecord implements Store
func (m *MemoryStore) InsertRecord(_ context.Context, rec *shared.ScoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.ID]; exists {
		return shared.ErrDuplicate
	}
	m.records[rec.ID] = *rec
	return nil
}

// GetRecord implements Store
func (m *MemoryStore) GetRecord(_ context.Context, kind string, id primitive.ObjectID) (*shared.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Kind != kind {
		return nil, shared.ErrNotFound
	}
	return &rec, nil
}

// ReplaceRecord implements Store
func (m *MemoryStore) ReplaceRecord(_ context.Context, rec *shared.ScoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; !ok {
		return shared.ErrNotFound
	}
	m.records[rec.ID] = *rec
	return nil
}

// DeleteRecord implements Store
func (m *MemoryStore) DeleteRecord(_ context.Context, kind string, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || rec.Kind != kind {
		return shared.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// ListRecords implements Store; results are ordered by creation time
func (m *MemoryStore) ListRecords(_ context.Context, filter RecordFilter) ([]shared.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []shared.ScoreRecord{}
	for _, rec := range m.records {
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if filter.Student != nil && rec.Student != *filter.Student {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetLedger implements Store
func (m *MemoryStore) GetLedger(_ context.Context, student primitive.ObjectID) (*shared.MarksLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[student]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &l, nil
}

// ApplyLedgerDelta implements Store
func (m *MemoryStore) ApplyLedgerDelta(_ context.Context, student primitive.ObjectID, d LedgerDelta) (*shared.MarksLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *shared.MarksLedger
	if l, ok := m.ledgers[student]; ok {
		current = &l
	}
	next := ApplyDelta(current, student, d, time.Now().UTC())
	if next.ID.IsZero() {
		next.ID = primitive.NewObjectID()
	}
	m.ledgers[student] = next
	return &next, nil
}

// ReplaceLedger implements Store
func (m *MemoryStore) ReplaceLedger(_ context.Context, l *shared.MarksLedger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.ledgers[l.Student]; ok && l.ID.IsZero() {
		l.ID = existing.ID
	}
	if l.ID.IsZero() {
		l.ID = primitive.NewObjectID()
	}
	m.ledgers[l.Student] = *l
	return nil
}
