package audit

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"lms_core/backend/internal/shared"
)

func TestMemoryRecorder(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, "u1", shared.ActionExamCreate, "exam:1", nil))
	require.NoError(t, r.Record(ctx, "u1", shared.ActionSectionCreate, "section:2", map[string]interface{}{"exam": "1"}))

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, []string{shared.ActionExamCreate, shared.ActionSectionCreate}, r.Actions())

	_, err := uuid.Parse(entries[0].ID)
	assert.NoError(t, err)
	assert.NotEqual(t, entries[0].ID, entries[1].ID)
	assert.Equal(t, "1", entries[1].Details["exam"])
}

func TestMongoRecorder_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set; skipping Mongo integration test")
	}

	client, db, err := shared.ConnectMongoDB(shared.DefaultMongoConfig(uri, "lms_audit_test"))
	require.NoError(t, err)
	defer shared.DisconnectMongoDB(client)
	defer db.Drop(context.Background())

	r := NewMongoRecorder(db)
	require.NoError(t, r.Record(context.Background(), "u1", shared.ActionScoreCreate, "score_record:1", nil))

	count, err := db.Collection(shared.CollectionAuditLogs).CountDocuments(context.Background(), bson.M{"user_id": "u1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
