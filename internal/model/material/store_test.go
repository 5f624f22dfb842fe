package material

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(Seed())

	items, err := store.List()
	require.NoError(t, err)
	require.Len(t, items, 2)

	mat, ok, err := store.FindByID("mat-calculus-limits")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Limits cheat sheet", mat.Name)

	_, ok, err = store.FindByID("nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreCopiesInput(t *testing.T) {
	seed := Seed()
	store := NewMemoryStore(seed)

	seed[0].Name = "mutated"

	mat, ok, err := store.FindByID(seed[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, "mutated", mat.Name)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "materials.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()

	items, err := store.List()
	require.NoError(t, err)
	require.Empty(t, items)

	first := Material{
		ID:        "mat-1",
		FolderID:  "folder-a",
		Name:      "Notes",
		Kind:      "note",
		Content:   "some content",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, store.Insert(first))
	require.NoError(t, store.Insert(Material{ID: "mat-2", Name: "Later", Kind: "note"}))

	items, err = store.List()
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "mat-1", items[0].ID)

	mat, ok, err := store.FindByID("mat-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Notes", mat.Name)
	require.Equal(t, "some content", mat.Content)

	_, ok, err = store.FindByID("missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "materials.db")

	store, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Insert(Material{ID: "mat-1", Name: "Notes", Kind: "note"}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	items, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, items, 1)
}
