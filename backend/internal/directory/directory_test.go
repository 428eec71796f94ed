package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"lms_core/backend/internal/shared"
)

func TestMemoryDirectory(t *testing.T) {
	ctx := context.Background()
	dir := NewMemoryDirectory()

	studentID := dir.AddUser("Ama", shared.RoleStudent)
	sourceID := dir.AddSource(shared.KindAssessment, "Quiz 1", 20)

	t.Run("Get User", func(t *testing.T) {
		user, err := dir.GetUser(ctx, studentID)
		require.NoError(t, err)
		assert.Equal(t, "Ama", user.Name)

		_, err = dir.GetUser(ctx, primitive.NewObjectID())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("Get Source scoped by kind", func(t *testing.T) {
		source, err := dir.GetSource(ctx, shared.KindAssessment, sourceID)
		require.NoError(t, err)
		assert.Equal(t, 20.0, source.TotalMarks)

		_, err = dir.GetSource(ctx, shared.KindAssignment, sourceID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("Require Role", func(t *testing.T) {
		user, err := RequireRole(ctx, dir, studentID, shared.RoleStudent)
		require.NoError(t, err)
		assert.Equal(t, "Ama", user.Name)

		_, err = RequireRole(ctx, dir, studentID, shared.RoleInstructor)
		assert.ErrorIs(t, err, ErrWrongRole)

		_, err = RequireRole(ctx, dir, primitive.NewObjectID(), shared.RoleStudent)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
