package user

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/garage-relay/internal/infrastructure/database"
	_ "github.com/nerrad567/garage-relay/migrations"
)

// testRepo opens an in-memory database with the embedded schema applied.
func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: ":memory:", BusyTimeout: 5})
	require.NoError(t, err, "opening test db")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate(context.Background()), "migrating test db")
	return NewSQLiteRepository(db.DB)
}

func TestRegister_GeneratesUUID(t *testing.T) {
	repo := testRepo(t)

	u, err := repo.Register(context.Background(), "alice")
	require.NoError(t, err)

	parsed, err := uuid.Parse(u.Key)
	require.NoError(t, err, "key %q is not a UUID", u.Key)
	assert.EqualValues(t, 4, parsed.Version())
	assert.False(t, u.CreatedAt.IsZero(), "CreatedAt should be set")
}

func TestRegister_SameNameDifferentKeys(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	first, err := repo.Register(ctx, "alice")
	require.NoError(t, err)
	second, err := repo.Register(ctx, "alice")
	require.NoError(t, err)

	assert.NotEqual(t, first.Key, second.Key)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRegister_EmptyName(t *testing.T) {
	repo := testRepo(t)

	u, err := repo.Register(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, u.Key, "key should be generated")
}

func TestGetByKey(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	u, err := repo.Register(ctx, "bob")
	require.NoError(t, err)

	got, err := repo.GetByKey(ctx, u.Key)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Name)
	assert.True(t, got.CreatedAt.Equal(u.CreatedAt), "CreatedAt = %v, want %v", got.CreatedAt, u.CreatedAt)
}

func TestGetByKey_NotFound(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.GetByKey(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreate_DuplicateKey(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	key := uuid.NewString()
	require.NoError(t, repo.Create(ctx, &User{Key: key, Name: "a"}))
	assert.ErrorIs(t, repo.Create(ctx, &User{Key: key, Name: "b"}), ErrKeyExists)
}

func TestList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	empty, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty, "empty table should give an empty slice")
	assert.Empty(t, empty)

	for _, name := range []string{"alice", "bob", "carol"} {
		_, err := repo.Register(ctx, name)
		require.NoError(t, err, name)
	}

	users, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].Name)
	assert.Equal(t, "carol", users[2].Name)
}

func TestRegister_Concurrent(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	keys := make(chan string, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := repo.Register(ctx, "door")
			if !assert.NoError(t, err) {
				return
			}
			keys <- u.Key
		}()
	}
	wg.Wait()
	close(keys)

	seen := make(map[string]bool)
	for k := range keys {
		assert.False(t, seen[k], "duplicate key %q", k)
		seen[k] = true
	}
	assert.Len(t, seen, n)
}
