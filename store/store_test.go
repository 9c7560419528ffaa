package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBatch(client string, updates ...string) Batch {
	raws := make([]json.RawMessage, len(updates))
	for i, u := range updates {
		raws[i] = json.RawMessage(u)
	}
	return Batch{
		ClientID:  client,
		Updates:   raws,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// testNotebookStore runs the behaviour every NotebookStore shares.
func testNotebookStore(t *testing.T, newStore func(t *testing.T) NotebookStore) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, "nb1", "Analysis", `{"type":"doc"}`))

		info, err := s.Get(ctx, "nb1")
		require.NoError(t, err)
		assert.Equal(t, "nb1", info.ID)
		assert.Equal(t, "Analysis", info.Title)
		assert.Equal(t, `{"type":"doc"}`, info.Content)
		assert.Equal(t, 0, info.Version)
		assert.Empty(t, info.Labels)
		assert.NotNil(t, info.Labels)
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, "nb1", "", ""))
		assert.ErrorIs(t, s.Create(ctx, "nb1", "", ""), ErrExists)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		for _, id := range []string{"c", "a", "b"} {
			require.NoError(t, s.Create(ctx, id, "title "+id, ""))
		}
		infos, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, infos, 3)
		assert.Equal(t, "a", infos[0].ID)
		assert.Equal(t, "b", infos[1].ID)
		assert.Equal(t, "title c", infos[2].Title)
	})

	t.Run("UpdateContent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, "nb1", "", "v0"))
		require.NoError(t, s.UpdateContent(ctx, "nb1", "v1", 1))

		info, err := s.Get(ctx, "nb1")
		require.NoError(t, err)
		assert.Equal(t, "v1", info.Content)
		assert.Equal(t, 1, info.Version)

		assert.ErrorIs(t, s.UpdateContent(ctx, "nope", "", 1), ErrNotFound)
	})

	t.Run("SetLabels", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, "nb1", "", ""))
		labels := []string{"draft", "ml"}
		require.NoError(t, s.SetLabels(ctx, "nb1", labels))
		labels[0] = "mutated"

		info, err := s.Get(ctx, "nb1")
		require.NoError(t, err)
		assert.Equal(t, []string{"draft", "ml"}, info.Labels)

		require.NoError(t, s.SetLabels(ctx, "nb1", nil))
		info, err = s.Get(ctx, "nb1")
		require.NoError(t, err)
		assert.Empty(t, info.Labels)

		assert.ErrorIs(t, s.SetLabels(ctx, "nope", labels), ErrNotFound)
	})

	t.Run("Batches", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Create(ctx, "nb1", "", ""))

		b1 := testBatch("alice", `{"type":"insertText","text":"a"}`)
		b2 := testBatch("bob", `{"type":"undo"}`, `{"type":"redo"}`)
		require.NoError(t, s.AppendBatch(ctx, "nb1", b1, 1))
		require.NoError(t, s.AppendBatch(ctx, "nb1", b2, 2))

		info, err := s.Get(ctx, "nb1")
		require.NoError(t, err)
		assert.Equal(t, 2, info.Version)

		batches, err := s.GetBatches(ctx, "nb1", 0)
		require.NoError(t, err)
		require.Len(t, batches, 2)
		assert.Equal(t, "alice", batches[0].ClientID)
		assert.Equal(t, b1.Updates, batches[0].Updates)
		assert.Equal(t, b2.Updates, batches[1].Updates)
		assert.True(t, b1.CreatedAt.Equal(batches[0].CreatedAt))

		batches, err = s.GetBatches(ctx, "nb1", 1)
		require.NoError(t, err)
		require.Len(t, batches, 1)
		assert.Equal(t, "bob", batches[0].ClientID)

		batches, err = s.GetBatches(ctx, "nb1", 2)
		require.NoError(t, err)
		assert.Empty(t, batches)

		_, err = s.GetBatches(ctx, "nb1", -1)
		assert.ErrorIs(t, err, ErrInvalidVersion)
		_, err = s.GetBatches(ctx, "nb1", 3)
		assert.ErrorIs(t, err, ErrInvalidVersion, "past the end of the log")
	})

	t.Run("BatchesNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetBatches(ctx, "nope", 0)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.AppendBatch(ctx, "nope", testBatch("x"), 1), ErrNotFound)
	})
}
