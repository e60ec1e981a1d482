package store_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxbookapp/voxbook-server/internal/store"
)

type TestEntity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

func setupTestStore(t *testing.T) (*store.Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "entity-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	s, err := store.New(dbPath, nil, store.NewNoopEmitter())
	require.NoError(t, err)

	cleanup := func() {
		_ = s.Close()
		_ = os.RemoveAll(tmpDir)
	}

	return s, cleanup
}

func TestEntity_Create_Success(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[TestEntity](s, "test:")

	testData := &TestEntity{
		ID:    "1",
		Name:  "John Doe",
		Group: "g1",
	}

	err := entity.Create(context.Background(), "1", testData)
	require.NoError(t, err)

	// Verify we can retrieve it
	retrieved, err := entity.Get(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, testData.ID, retrieved.ID)
	require.Equal(t, testData.Name, retrieved.Name)
}

func TestEntity_Create_AlreadyExists(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[TestEntity](s, "test:")

	err := entity.Create(context.Background(), "1", &TestEntity{ID: "1", Name: "John"})
	require.NoError(t, err)

	err = entity.Create(context.Background(), "1", &TestEntity{ID: "1", Name: "Jane"})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestEntity_Get_NotFound(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[TestEntity](s, "test:")

	_, err := entity.Get(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEntity_IndexConflict(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[TestEntity](s, "test:").
		WithIndex("name", func(e *TestEntity) []string {
			return []string{e.Name}
		})

	require.NoError(t, entity.Create(context.Background(), "1", &TestEntity{ID: "1", Name: "John"}))

	// A different ID claiming the same index value conflicts.
	err := entity.Create(context.Background(), "2", &TestEntity{ID: "2", Name: "John"})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestEntity_GetByIndex_WithTransform(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[TestEntity](s, "test:").
		WithIndexTransform("name",
			func(e *TestEntity) []string {
				return []string{strings.ToLower(e.Name)}
			},
			strings.ToLower,
		)

	require.NoError(t, entity.Create(context.Background(), "1", &TestEntity{ID: "1", Name: "john"}))

	// Lookup goes through the transform, so case doesn't matter.
	retrieved, err := entity.GetByIndex(context.Background(), "name", "JOHN")
	require.NoError(t, err)
	assert.Equal(t, "1", retrieved.ID)
}

func TestEntity_Update_MaintainsIndexes(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[TestEntity](s, "test:").
		WithIndex("name", func(e *TestEntity) []string {
			return []string{e.Name}
		})

	ctx := context.Background()
	require.NoError(t, entity.Create(ctx, "1", &TestEntity{ID: "1", Name: "John"}))

	require.NoError(t, entity.Update(ctx, "1", &TestEntity{ID: "1", Name: "Johnny"}))

	// New index value resolves.
	retrieved, err := entity.GetByIndex(ctx, "name", "Johnny")
	require.NoError(t, err)
	assert.Equal(t, "1", retrieved.ID)

	// Old index value is gone.
	_, err = entity.GetByIndex(ctx, "name", "John")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Freed value can be claimed by another entity.
	require.NoError(t, entity.Create(ctx, "2", &TestEntity{ID: "2", Name: "John"}))
}

func TestEntity_Update_NotFound(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[TestEntity](s, "test:")

	err := entity.Update(context.Background(), "ghost", &TestEntity{ID: "ghost"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEntity_Delete_Idempotent(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[TestEntity](s, "test:").
		WithIndex("name", func(e *TestEntity) []string {
			return []string{e.Name}
		})

	ctx := context.Background()
	require.NoError(t, entity.Create(ctx, "1", &TestEntity{ID: "1", Name: "John"}))

	require.NoError(t, entity.Delete(ctx, "1"))
	require.NoError(t, entity.Delete(ctx, "1"))

	_, err := entity.Get(ctx, "1")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Index entry cleaned up with the record.
	_, err = entity.GetByIndex(ctx, "name", "John")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestEntity_List(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[TestEntity](s, "test:").
		WithIndex("name", func(e *TestEntity) []string {
			return []string{e.Name}
		})

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("%d", i)
		require.NoError(t, entity.Create(ctx, id, &TestEntity{ID: id, Name: "user-" + id}))
	}

	var ids []string
	for e, err := range entity.List(ctx) {
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	// Index keys are skipped; only the three records come back.
	assert.ElementsMatch(t, []string{"1", "2", "3"}, ids)
}

func TestEntity_ListByIndexPrefix(t *testing.T) {
	s, cleanup := setupTestStore(t)
	defer cleanup()

	entity := store.NewEntity[TestEntity](s, "test:").
		WithIndex("group_name", func(e *TestEntity) []string {
			return []string{e.Group + ":" + e.Name}
		})

	ctx := context.Background()
	require.NoError(t, entity.Create(ctx, "1", &TestEntity{ID: "1", Name: "beta", Group: "g1"}))
	require.NoError(t, entity.Create(ctx, "2", &TestEntity{ID: "2", Name: "alpha", Group: "g1"}))
	require.NoError(t, entity.Create(ctx, "3", &TestEntity{ID: "3", Name: "gamma", Group: "g2"}))

	matches, err := entity.ListByIndexPrefix(ctx, "group_name", "g1:")
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Ordered by index value, not insertion order.
	assert.Equal(t, "alpha", matches[0].Name)
	assert.Equal(t, "beta", matches[1].Name)
}
