// ABOUTME: Tests for audit log store operations
// ABOUTME: Covers Append and List with filtering for the audit_log table

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditStore_Append(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entry := &AuditEntry{
		ActorID:    1,
		ActorName:  "wizard",
		Action:     AuditBootSession,
		TargetType: "actor",
		TargetID:   "#2",
		Detail:     map[string]any{"sessions": 2},
	}

	err := store.AppendAuditLog(ctx, entry)
	require.NoError(t, err)

	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestAuditStore_List_NoFilter(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, action := range []AuditAction{AuditBootSession, AuditSetCredential, AuditServiceStop} {
		entry := &AuditEntry{
			ActorID:    1,
			ActorName:  "wizard",
			Action:     action,
			TargetType: "actor",
			TargetID:   fmt.Sprintf("#%d", i+10),
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.AppendAuditLog(ctx, entry))
	}

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// newest first
	assert.Equal(t, AuditServiceStop, entries[0].Action)
	assert.Equal(t, AuditSetCredential, entries[1].Action)
	assert.Equal(t, AuditBootSession, entries[2].Action)
}

func TestAuditStore_List_SubSecondOrdering(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 100_000_000, time.UTC)

	require.NoError(t, store.AppendAuditLog(ctx, &AuditEntry{Action: AuditReload, TargetType: "process", TargetID: "a", Timestamp: base}))
	require.NoError(t, store.AppendAuditLog(ctx, &AuditEntry{Action: AuditReload, TargetType: "process", TargetID: "b", Timestamp: base.Add(20 * time.Millisecond)}))

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].TargetID)
	assert.True(t, entries[0].Timestamp.Equal(base.Add(20*time.Millisecond)))
}

func TestAuditStore_List_Filters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	entries := []*AuditEntry{
		{ActorID: 1, ActorName: "wizard", Action: AuditBootSession, TargetType: "actor", TargetID: "#5", Timestamp: base},
		{ActorID: 2, ActorName: "admin", Action: AuditServiceStop, TargetType: "service", TargetID: "websocket", Timestamp: base.Add(time.Minute)},
		{ActorID: 1, ActorName: "wizard", Action: AuditServiceStart, TargetType: "service", TargetID: "websocket", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendAuditLog(ctx, e))
	}

	t.Run("by actor", func(t *testing.T) {
		actor := int64(1)
		got, err := store.ListAuditLog(ctx, AuditFilter{ActorID: &actor})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by action", func(t *testing.T) {
		action := AuditServiceStop
		got, err := store.ListAuditLog(ctx, AuditFilter{Action: &action})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "admin", got[0].ActorName)
	})

	t.Run("by target", func(t *testing.T) {
		tt, id := "service", "websocket"
		got, err := store.ListAuditLog(ctx, AuditFilter{TargetType: &tt, TargetID: &id})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by time window", func(t *testing.T) {
		since := base.Add(30 * time.Second)
		until := base.Add(90 * time.Second)
		got, err := store.ListAuditLog(ctx, AuditFilter{Since: &since, Until: &until})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, AuditServiceStop, got[0].Action)
	})

	t.Run("limit", func(t *testing.T) {
		got, err := store.ListAuditLog(ctx, AuditFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestAuditStore_DetailRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendAuditLog(ctx, &AuditEntry{
		Action:     AuditReload,
		TargetType: "process",
		TargetID:   "caches",
		Detail:     map[string]any{"scopes": []any{"aliases", "scripts"}},
	}))

	got, err := store.ListAuditLog(ctx, AuditFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []any{"aliases", "scripts"}, got[0].Detail["scopes"])
}

func TestAuditFilter_Where(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		clause, args := AuditFilter{}.where()
		assert.Empty(t, clause)
		assert.Empty(t, args)
	})

	t.Run("only set fields bind", func(t *testing.T) {
		actor := int64(4)
		action := AuditReload
		since := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
		clause, args := AuditFilter{ActorID: &actor, Action: &action, Since: &since}.where()
		assert.Equal(t, " WHERE actor_id = ? AND action = ? AND ts >= ?", clause)
		assert.Equal(t, []any{int64(4), "reload", "2026-01-02T03:04:05.000000006Z"}, args)
	})
}

func TestAuditFilter_MatchesAgreesWithSQL(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var all []AuditEntry
	for i, action := range []AuditAction{AuditReload, AuditShutdown, AuditReload, AuditBootSession} {
		e := &AuditEntry{
			ActorID:    int64(i%2 + 1),
			Action:     action,
			TargetType: "process",
			TargetID:   "caches",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.AppendAuditLog(ctx, e))
		all = append(all, *e)
	}

	actor := int64(1)
	reload := AuditReload
	until := base.Add(90 * time.Second)
	filters := []AuditFilter{
		{},
		{ActorID: &actor},
		{Action: &reload},
		{ActorID: &actor, Action: &reload, Until: &until},
		{Since: &until},
	}
	for _, f := range filters {
		got, err := store.ListAuditLog(ctx, f)
		require.NoError(t, err)

		var want []string
		for i := len(all) - 1; i >= 0; i-- {
			if f.Matches(all[i]) {
				want = append(want, all[i].ID)
			}
		}
		ids := make([]string, 0, len(got))
		for _, e := range got {
			ids = append(ids, e.ID)
		}
		assert.ElementsMatch(t, want, ids)
	}
}

func TestNormalizeAuditLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeAuditLimit(0))
	assert.Equal(t, 100, normalizeAuditLimit(-5))
	assert.Equal(t, 50, normalizeAuditLimit(50))
	assert.Equal(t, 1000, normalizeAuditLimit(5000))
}
