package directory

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"lms_core/backend/internal/shared"
)

// MemoryDirectory is an in-process directory used by tests and local runs
type MemoryDirectory struct {
	mu      sync.RWMutex
	users   map[primitive.ObjectID]shared.User
	sources map[string]map[primitive.ObjectID]shared.Source
}

// NewMemoryDirectory creates an empty directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:   make(map[primitive.ObjectID]shared.User),
		sources: make(map[string]map[primitive.ObjectID]shared.Source),
	}
}

// AddUser registers a user and returns its id
func (d *MemoryDirectory) AddUser(name, role string) primitive.ObjectID {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := primitive.NewObjectID()
	d.users[id] = shared.User{ID: id, Name: name, Role: role}
	return id
}

// AddSource registers a graded item of the given kind and returns its id
func (d *MemoryDirectory) AddSource(kind, title string, totalMarks float64) primitive.ObjectID {
	id := primitive.NewObjectID()
	d.PutSource(shared.Source{ID: id, Kind: kind, Title: title, TotalMarks: totalMarks})
	return id
}

// PutSource registers a graded item under its own id
func (d *MemoryDirectory) PutSource(source shared.Source) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sources[source.Kind] == nil {
		d.sources[source.Kind] = make(map[primitive.ObjectID]shared.Source)
	}
	d.sources[source.Kind][source.ID] = source
}

// GetUser implements Directory
func (d *MemoryDirectory) GetUser(_ context.Context, id primitive.ObjectID) (*shared.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &user, nil
}

// GetSource implements Directory
func (d *MemoryDirectory) GetSource(_ context.Context, kind string, id primitive.ObjectID) (*shared.Source, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	source, ok := d.sources[kind][id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &source, nil
}
