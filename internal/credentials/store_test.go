package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/profiledir/internal/models"
)

func testUser() *models.User {
	return &models.User{
		ID:          7,
		Username:    "ada",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		City:        "London",
		Skills:      "math, engines",
		IsAvailable: true,
		Role:        "freelancer",
		Rating:      4.8,
	}
}

func testBundle() models.CredentialBundle {
	return models.CredentialBundle{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		User:         testUser(),
	}
}

// plainStorage hides the Batcher methods of MemoryStorage so the per-key path is exercised.
type plainStorage struct {
	m *MemoryStorage
}

func (p plainStorage) Put(key, value string) error          { return p.m.Put(key, value) }
func (p plainStorage) Get(key string) (string, bool, error) { return p.m.Get(key) }
func (p plainStorage) Remove(key string) error              { return p.m.Remove(key) }

func storages(t *testing.T) map[string]Storage {
	t.Helper()

	fileStorage, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	sqliteStorage, err := OpenSQLiteStorage(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStorage.Close() })

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"plain":  plainStorage{m: NewMemoryStorage()},
		"file":   fileStorage,
		"sqlite": sqliteStorage,
	}
}

func TestStore_SaveBundle(t *testing.T) {
	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(storage)

			require.NoError(t, store.SaveBundle(testBundle()))

			access, ok := store.AccessToken()
			require.True(t, ok)
			assert.Equal(t, "access-123", access)

			refresh, ok := store.RefreshToken()
			require.True(t, ok)
			assert.Equal(t, "refresh-456", refresh)

			user, ok := store.User()
			require.True(t, ok)
			assert.Equal(t, testUser(), user)
		})
	}
}

func TestStore_SaveBundleRequiresUser(t *testing.T) {
	store := NewStore(NewMemoryStorage())

	err := store.SaveBundle(models.CredentialBundle{AccessToken: "a"})
	assert.ErrorIs(t, err, ErrNilUser)

	_, ok := store.AccessToken()
	assert.False(t, ok)
}

func TestStore_Clear(t *testing.T) {
	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(storage)
			require.NoError(t, store.SaveBundle(testBundle()))

			require.NoError(t, store.Clear())

			for _, key := range bundleKeys {
				_, ok, err := storage.Get(key)
				require.NoError(t, err)
				assert.False(t, ok, "key %s should be absent", key)
			}
			assert.True(t, store.Bundle().Empty())

			// clearing again is harmless
			require.NoError(t, store.Clear())
		})
	}
}

func TestStore_SaveUserKeepsTokens(t *testing.T) {
	for name, storage := range storages(t) {
		t.Run(name, func(t *testing.T) {
			store := NewStore(storage)
			require.NoError(t, store.SaveBundle(testBundle()))

			updated := testUser()
			updated.City = "Berlin"
			require.NoError(t, store.SaveUser(updated))

			user, ok := store.User()
			require.True(t, ok)
			assert.Equal(t, "Berlin", user.City)

			access, _ := store.AccessToken()
			refresh, _ := store.RefreshToken()
			assert.Equal(t, "access-123", access)
			assert.Equal(t, "refresh-456", refresh)
		})
	}
}

func TestStore_CorruptUserSnapshot(t *testing.T) {
	snapshots := map[string]string{
		"malformed":     "{not json",
		"null":          "null",
		"empty object":  "{}",
		"wrong type":    `"ada"`,
		"missing login": `{"id": 7, "city": "Paris"}`,
	}

	for snapshotName, snapshot := range snapshots {
		for name, storage := range storages(t) {
			t.Run(snapshotName+"/"+name, func(t *testing.T) {
				store := NewStore(storage)
				require.NoError(t, storage.Put(KeyAccessToken, "access-123"))
				require.NoError(t, storage.Put(KeyUser, snapshot))

				user, ok := store.User()
				assert.False(t, ok)
				assert.Nil(t, user)

				// the corrupt entry is evicted, the token is left alone
				_, present, err := storage.Get(KeyUser)
				require.NoError(t, err)
				assert.False(t, present)

				access, ok := store.AccessToken()
				assert.True(t, ok)
				assert.Equal(t, "access-123", access)
			})
		}
	}
}

func TestStore_NoopStorage(t *testing.T) {
	store := NewStore(nil)

	require.NoError(t, store.SaveBundle(testBundle()))

	_, ok := store.AccessToken()
	assert.False(t, ok)
	_, ok = store.User()
	assert.False(t, ok)
	assert.True(t, store.Bundle().Empty())
	require.NoError(t, store.Clear())
}

func TestStore_EmptyValueIsAbsent(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Put(KeyAccessToken, ""))

	_, ok := NewStore(storage).AccessToken()
	assert.False(t, ok)
}

func TestFileStorage(t *testing.T) {
	t.Run("creates directory with correct permissions", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "profiledir")

		storage, err := NewFileStorage(dir)
		require.NoError(t, err)
		require.NoError(t, storage.Put("k", "v"))

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

		info, err = os.Stat(storage.Path())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})

	t.Run("persists across instances", func(t *testing.T) {
		dir := t.TempDir()

		first, err := NewFileStorage(dir)
		require.NoError(t, err)
		require.NoError(t, NewStore(first).SaveBundle(testBundle()))

		second, err := NewFileStorage(dir)
		require.NoError(t, err)
		bundle := NewStore(second).Bundle()
		assert.Equal(t, testBundle(), bundle)
	})

	t.Run("corrupt document is treated as empty", func(t *testing.T) {
		dir := t.TempDir()
		storage, err := NewFileStorage(dir)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(storage.Path(), []byte("garbage"), 0600))

		_, ok, err := storage.Get(KeyAccessToken)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, storage.Put(KeyAccessToken, "fresh"))
		value, ok, err := storage.Get(KeyAccessToken)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "fresh", value)
	})

	t.Run("leaves no temp file behind", func(t *testing.T) {
		dir := t.TempDir()
		storage, err := NewFileStorage(dir)
		require.NoError(t, err)
		require.NoError(t, storage.PutAll(map[string]string{"a": "1", "b": "2"}))

		_, err = os.Stat(storage.Path() + ".tmp")
		assert.True(t, os.IsNotExist(err))
	})
}

func TestOpenSQLiteStorage(t *testing.T) {
	t.Run("requires a path", func(t *testing.T) {
		_, err := OpenSQLiteStorage("  ")
		assert.Error(t, err)
	})

	t.Run("persists across instances", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.db")

		first, err := OpenSQLiteStorage(path)
		require.NoError(t, err)
		require.NoError(t, NewStore(first).SaveBundle(testBundle()))
		require.NoError(t, first.Close())

		second, err := OpenSQLiteStorage(path)
		require.NoError(t, err)
		defer second.Close()

		assert.Equal(t, testBundle(), NewStore(second).Bundle())
	})
}
