// Package audit keeps a trail of every mutation performed through the core.
package audit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"lms_core/backend/internal/shared"
)

// Recorder stores audit entries. Failures are returned so callers can log
// them; they never abort the audited operation.
type Recorder interface {
	Record(ctx context.Context, userID, action, resource string, details map[string]interface{}) error
}

func newEntry(userID, action, resource string, details map[string]interface{}) shared.AuditLog {
	return shared.AuditLog{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Details:   details,
	}
}

// MongoRecorder writes entries to the audit_logs collection
type MongoRecorder struct {
	auditCol *mongo.Collection
}

// NewMongoRecorder creates a recorder over db
func NewMongoRecorder(db *mongo.Database) *MongoRecorder {
	return &MongoRecorder{auditCol: db.Collection(shared.CollectionAuditLogs)}
}

// Record implements Recorder
func (r *MongoRecorder) Record(ctx context.Context, userID, action, resource string, details map[string]interface{}) error {
	if r.auditCol == nil {
		return fmt.Errorf("audit collection is nil")
	}

	insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := r.auditCol.InsertOne(insertCtx, newEntry(userID, action, resource, details)); err != nil {
		log.Printf("Warning: Failed to log audit event: %v", err)
		return err
	}
	return nil
}

// MemoryRecorder keeps entries in process
type MemoryRecorder struct {
	mu      sync.Mutex
	entries []shared.AuditLog
}

// NewMemoryRecorder creates an empty recorder
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// Record implements Recorder
func (r *MemoryRecorder) Record(_ context.Context, userID, action, resource string, details map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, newEntry(userID, action, resource, details))
	return nil
}

// Entries returns a copy of the recorded entries, oldest first
func (r *MemoryRecorder) Entries() []shared.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.AuditLog, len(r.entries))
	copy(out, r.entries)
	return out
}

// Actions returns the recorded action names, oldest first
func (r *MemoryRecorder) Actions() []string {
	entries := r.Entries()
	actions := make([]string, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	return actions
}
