// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jeff9497/200Model8Dev/internal/model"
)

const limitedModel = "llama-3.3-70b-versatile" // 1000 per day

func newTestTracker(t *testing.T, store Store, at time.Time) (*Tracker, *time.Time) {
	t.Helper()
	tr := NewTracker(store, nil)
	now := at
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestNextMidnight(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"afternoon", time.Date(2025, 3, 10, 15, 4, 5, 0, loc), time.Date(2025, 3, 11, 0, 0, 0, 0, loc)},
		{"exact midnight", time.Date(2025, 3, 10, 0, 0, 0, 0, loc), time.Date(2025, 3, 11, 0, 0, 0, 0, loc)},
		{"month end", time.Date(2025, 1, 31, 23, 59, 59, 0, loc), time.Date(2025, 2, 1, 0, 0, 0, 0, loc)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(NextMidnight(tt.now)))
		})
	}
}

func TestRecord_JSONShape(t *testing.T) {
	data, err := json.Marshal(Record{Requests: 3, MaxRequests: 1000, ResetTime: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"requests":3,"maxRequests":1000,"resetTime":"2025-01-02T00:00:00Z"}`, string(data))
	assert.Equal(t, "rateLimit_gemma2-9b-it", Key("gemma2-9b-it"))
}

func TestTracker_IncrementAndCap(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tr, _ := newTestTracker(t, store, time.Date(2025, 5, 1, 10, 0, 0, 0, time.Local))

	rec, err := tr.Increment(ctx, limitedModel, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Requests)
	assert.Equal(t, 1000, rec.MaxRequests)
	assert.Equal(t, 999, rec.Remaining())

	rec, err = tr.Increment(ctx, limitedModel, 5000)
	require.NoError(t, err)
	assert.Equal(t, 1000, rec.Requests)

	ok, err := tr.CanUse(ctx, limitedModel)
	require.NoError(t, err)
	assert.False(t, ok)

	raw, found, err := store.Get(ctx, Key(limitedModel))
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, string(raw), `"requests":1000`)
}

func TestTracker_ResetAfterMidnight(t *testing.T) {
	ctx := context.Background()
	tr, now := newTestTracker(t, NewMemoryStore(), time.Date(2025, 5, 1, 23, 0, 0, 0, time.Local))

	_, err := tr.Increment(ctx, limitedModel, 1000)
	require.NoError(t, err)
	ok, err := tr.CanUse(ctx, limitedModel)
	require.NoError(t, err)
	assert.False(t, ok)

	*now = time.Date(2025, 5, 2, 0, 0, 0, 0, time.Local)

	rec, found, err := tr.Get(ctx, limitedModel)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, rec.Requests)
	assert.True(t, rec.ResetTime.Equal(time.Date(2025, 5, 3, 0, 0, 0, 0, time.Local)))

	ok, err = tr.CanUse(ctx, limitedModel)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err = tr.Increment(ctx, limitedModel, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Requests)
}

func TestTracker_CanUse(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t, NewMemoryStore(), time.Now())

	tests := []struct {
		model string
		want  bool
	}{
		{"claude-3-5-sonnet", true},
		{"gemma2-9b-it", true},
		{"gpt-unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			ok, err := tr.CanUse(ctx, tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestTracker_IgnoresUntrackedModels(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tr, _ := newTestTracker(t, store, time.Now())

	_, err := tr.Increment(ctx, "claude-3-7-sonnet", 1)
	require.NoError(t, err)
	_, err = tr.Increment(ctx, "not-a-model", 1)
	require.NoError(t, err)

	keys, err := store.Keys(ctx, KeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)

	_, found, err := tr.Get(ctx, "claude-3-7-sonnet")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTracker_Overrides(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemoryStore(), map[string]int{limitedModel: 2})

	_, err := tr.Increment(ctx, limitedModel, 2)
	require.NoError(t, err)
	ok, err := tr.CanUse(ctx, limitedModel)
	require.NoError(t, err)
	assert.False(t, ok)

	// The stored max is refreshed from the current quota.
	tr.SetOverride(limitedModel, 5)
	rec, _, err := tr.Get(ctx, limitedModel)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.MaxRequests)
	assert.Equal(t, 2, rec.Requests)

	tr.SetOverride(limitedModel, 0)
	rec, _, err = tr.Get(ctx, limitedModel)
	require.NoError(t, err)
	assert.Equal(t, 1000, rec.MaxRequests)
}

func TestTracker_SetOverridesReplacesAll(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(NewMemoryStore(), map[string]int{limitedModel: 2, "gemma2-9b-it": 3})

	tr.SetOverrides(map[string]int{"gemma2-9b-it": 7, "llama-3.1-8b-instant": -1})

	rec, _, err := tr.Get(ctx, limitedModel)
	require.NoError(t, err)
	assert.Equal(t, 1000, rec.MaxRequests)

	rec, _, err = tr.Get(ctx, "gemma2-9b-it")
	require.NoError(t, err)
	assert.Equal(t, 7, rec.MaxRequests)

	rec, _, err = tr.Get(ctx, "llama-3.1-8b-instant")
	require.NoError(t, err)
	assert.Equal(t, 14400, rec.MaxRequests)
}

func TestTracker_UnreadableRecord(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, Key(limitedModel), []byte("not json")))
	tr, _ := newTestTracker(t, store, time.Now())

	rec, found, err := tr.Get(ctx, limitedModel)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, rec.Requests)
	assert.Equal(t, 1000, rec.MaxRequests)
}

func TestTracker_Alternatives(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t, NewMemoryStore(), time.Date(2025, 5, 1, 9, 0, 0, 0, time.Local))

	alts, err := tr.Alternatives(ctx, limitedModel)
	require.NoError(t, err)
	assert.Equal(t, []string{"claude-3-5-sonnet", "claude-3-7-sonnet"}, ids(alts))

	_, err = tr.Increment(ctx, "gemma2-9b-it", 14400)
	require.NoError(t, err)

	alts, err = tr.Alternatives(ctx, "claude-3-5-sonnet")
	require.NoError(t, err)
	got := ids(alts)
	assert.Contains(t, got, "claude-3-7-sonnet")
	assert.Contains(t, got, limitedModel)
	assert.NotContains(t, got, "claude-3-5-sonnet")
	assert.NotContains(t, got, "gemma2-9b-it")
	assert.Len(t, got, len(model.Models)-2)

	alts, err = tr.Alternatives(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, alts)
}

func TestTracker_AllAndReset(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker(t, NewMemoryStore(), time.Now())

	_, err := tr.Increment(ctx, "mistral-saba-24b", 4)
	require.NoError(t, err)

	all, err := tr.All(ctx)
	require.NoError(t, err)
	assert.NotContains(t, all, "claude-3-5-sonnet")
	assert.Equal(t, 4, all["mistral-saba-24b"].Requests)
	assert.Equal(t, 14400, all["llama3-70b-8192"].MaxRequests)

	require.NoError(t, tr.Reset(ctx))
	all, err = tr.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, all["mistral-saba-24b"].Requests)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "quotas.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)

	_, found, err := store.Get(ctx, "rateLimit_x")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "rateLimit_x", []byte(`{"requests":1}`)))
	require.NoError(t, store.Put(ctx, "rateLimit_x", []byte(`{"requests":2}`)))
	require.NoError(t, store.Put(ctx, "other", []byte(`1`)))

	v, found, err := store.Get(ctx, "rateLimit_x")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"requests":2}`, string(v))

	keys, err := store.Keys(ctx, KeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"rateLimit_x"}, keys)

	require.NoError(t, store.Close())

	// Values survive reopening.
	store, err = OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	tr := NewTracker(store, nil)
	_, err = tr.Increment(ctx, limitedModel, 3)
	require.NoError(t, err)
	rec, _, err := tr.Get(ctx, limitedModel)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Requests)

	require.NoError(t, store.Delete(ctx, "rateLimit_x"))
	_, found, err = store.Get(ctx, "rateLimit_x")
	require.NoError(t, err)
	assert.False(t, found)
}

func ids(models []model.ModelInfo) []string {
	out := make([]string, len(models))
	for i, m := range models {
		out[i] = m.ID
	}
	return out
}
