package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/garage-relay/internal/infrastructure/database"
	_ "github.com/nerrad567/garage-relay/migrations"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: ":memory:", BusyTimeout: 5})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return NewSQLiteRepository(db.DB)
}

func TestCreate_GeneratesIDAndTimestamp(t *testing.T) {
	repo := testRepo(t)

	entry := &AuditLog{Action: ActionToggle, EntityType: EntityDoor, EntityID: "2", Source: "api"}
	require.NoError(t, repo.Create(context.Background(), entry))

	assert.Contains(t, entry.ID, "aud-")
	assert.False(t, entry.CreatedAt.IsZero())
}

func TestList_FilterAndOrder(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	entries := []AuditLog{
		{Action: ActionRegister, EntityType: EntityUser, EntityID: "k1", Source: "api", CreatedAt: base},
		{Action: ActionToggle, EntityType: EntityDoor, EntityID: "2", Source: "api", CreatedAt: base.Add(time.Minute),
			Details: map[string]any{"hold_ms": 200}},
		{Action: ActionFailed, EntityType: EntityDoor, EntityID: "2", Source: "api", CreatedAt: base.Add(2 * time.Minute)},
		{Action: ActionToggle, EntityType: EntityDoor, EntityID: "2", Source: "cli", CreatedAt: base.Add(3 * time.Minute)},
	}
	for i := range entries {
		require.NoError(t, repo.Create(ctx, &entries[i]))
	}

	all, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 4, all.Total)
	assert.Equal(t, defaultLimit, all.Limit)
	require.Len(t, all.Logs, 4)
	assert.Equal(t, "cli", all.Logs[0].Source, "newest first")

	toggles, err := repo.List(ctx, Filter{Action: ActionToggle})
	require.NoError(t, err)
	assert.Equal(t, 2, toggles.Total)
	assert.EqualValues(t, 200, toggles.Logs[1].Details["hold_ms"])

	users, err := repo.List(ctx, Filter{EntityType: EntityUser, EntityID: "k1"})
	require.NoError(t, err)
	require.Len(t, users.Logs, 1)
	assert.Equal(t, ActionRegister, users.Logs[0].Action)
	assert.True(t, users.Logs[0].CreatedAt.Equal(base))
}

func TestList_Pagination(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	for range 5 {
		require.NoError(t, repo.Create(ctx, &AuditLog{Action: ActionToggle, EntityType: EntityDoor, Source: "api"}))
	}

	page, err := repo.List(ctx, Filter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Logs, 1)
	assert.Empty(t, page.Logs[0].EntityID)

	clamped, err := repo.List(ctx, Filter{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, clamped.Limit)
	assert.Equal(t, 0, clamped.Offset)
}

func TestList_EmptyIsNotNil(t *testing.T) {
	repo := testRepo(t)

	res, err := repo.List(context.Background(), Filter{Action: "nothing"})
	require.NoError(t, err)
	assert.NotNil(t, res.Logs)
	assert.Empty(t, res.Logs)
}
