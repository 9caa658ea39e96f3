package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/ddialog/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunProgressStoreContract runs a suite of tests to verify that a ProgressStore
// implementation adheres to the defined interface contract.
func RunProgressStoreContract(t *testing.T, store ProgressStore) {
	ctx := context.Background()
	conversationID := "contract-" + time.Now().Format("20060102150405.000000000")

	t.Run("Save and Load", func(t *testing.T) {
		p := domain.NewProgress(conversationID)
		p.DialogName = "greeting"
		p.StepIndex = 1
		p.Values["name"] = "Dave"
		p.Values["age"] = int64(30)

		require.NoError(t, store.Save(ctx, conversationID, p), "Save should not return error")

		loaded, err := store.Load(ctx, conversationID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, "greeting", loaded.DialogName)
		assert.Equal(t, 1, loaded.StepIndex)
		assert.Equal(t, "Dave", loaded.Values["name"])
		assert.Equal(t, int64(30), loaded.Values["age"], "integer values must survive persistence")
		assert.Equal(t, domain.ConfirmationNone, loaded.Confirmation)
	})

	t.Run("Pending Result", func(t *testing.T) {
		p := domain.NewProgress(conversationID)
		p.DialogName = "greeting"
		p.Confirmation = domain.ConfirmationAwaiting
		p.Pending = &domain.StepResult{StepName: "age", Intent: "None", Value: int64(42), Type: domain.ValueInteger, Succeeded: true}

		require.NoError(t, store.Save(ctx, conversationID, p))

		loaded, err := store.Load(ctx, conversationID)
		require.NoError(t, err)
		require.NotNil(t, loaded.Pending)
		assert.Equal(t, domain.PhaseAwaitingConfirmation, loaded.Phase())
		assert.Equal(t, int64(42), loaded.Pending.Value)
	})

	t.Run("Load Isolation", func(t *testing.T) {
		p := domain.NewProgress(conversationID)
		p.DialogName = "greeting"
		require.NoError(t, store.Save(ctx, conversationID, p))

		p.DialogName = "mutated-after-save"
		loaded, err := store.Load(ctx, conversationID)
		require.NoError(t, err)
		assert.Equal(t, "greeting", loaded.DialogName)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+conversationID)
		assert.ErrorIs(t, err, domain.ErrProgressNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, conversationID, domain.NewProgress(conversationID)))

		require.NoError(t, store.Delete(ctx, conversationID), "Delete should not return error")

		_, err := store.Load(ctx, conversationID)
		assert.ErrorIs(t, err, domain.ErrProgressNotFound, "Load after Delete should return ErrProgressNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := conversationID + "-1"
		id2 := conversationID + "-2"
		require.NoError(t, store.Save(ctx, id1, domain.NewProgress(id1)))
		require.NoError(t, store.Save(ctx, id2, domain.NewProgress(id2)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
