// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Jeff9497/200Model8Dev/internal/model"
)

// KeyPrefix prefixes every rate-limit record key.
const KeyPrefix = "rateLimit_"

// Record is one model's daily counter.
type Record struct {
	Requests    int       `json:"requests"`
	MaxRequests int       `json:"maxRequests"`
	ResetTime   time.Time `json:"resetTime"`
}

// Remaining returns how many requests are left before the reset.
func (r Record) Remaining() int {
	return max(r.MaxRequests-r.Requests, 0)
}

// Key returns the store key for modelID.
func Key(modelID string) string {
	return KeyPrefix + modelID
}

// NextMidnight returns the first local midnight strictly after now.
func NextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker evaluates and updates rate-limit records.
type Tracker struct {
	store     Store
	mu        sync.Mutex
	overrides map[string]int
	now       func() time.Time
}

// NewTracker creates a tracker over store. overrides replaces catalog quotas
// per model id.
func NewTracker(store Store, overrides map[string]int) *Tracker {
	t := &Tracker{
		store:     store,
		overrides: make(map[string]int, len(overrides)),
		now:       time.Now,
	}
	for id, limit := range overrides {
		t.overrides[id] = limit
	}
	return t
}

// SetOverride replaces the daily quota for modelID. A non-positive limit
// removes the override.
func (t *Tracker) SetOverride(modelID string, limit int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 {
		delete(t.overrides, modelID)
		return
	}
	t.overrides[modelID] = limit
}

// SetOverrides replaces every override at once. Non-positive limits are
// dropped.
func (t *Tracker) SetOverrides(overrides map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.overrides = make(map[string]int, len(overrides))
	for id, limit := range overrides {
		if limit > 0 {
			t.overrides[id] = limit
		}
	}
}

func (t *Tracker) maxFor(modelID string) int {
	if limit, ok := t.overrides[modelID]; ok {
		return limit
	}
	return model.QuotaFor(modelID)
}

func tracked(modelID string) bool {
	info, ok := model.GetModel(modelID)
	return ok && !info.Unlimited()
}

// Get returns the current record for a quota-limited model. A record whose
// reset time has passed reads as a fresh one. The quota is always taken from
// the catalog and overrides, never from the stored value.
func (t *Tracker) Get(ctx context.Context, modelID string) (Record, bool, error) {
	if !tracked(modelID) {
		return Record{}, false, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.load(ctx, modelID)
	if err != nil {
		return Record{}, false, err
	}
	if !t.now().Before(rec.ResetTime) {
		rec.Requests = 0
		rec.ResetTime = NextMidnight(t.now())
	}
	return rec, true, nil
}

// Increment adds n requests to modelID's record and persists it. The count is
// capped at the quota; after the reset time it restarts at n. Unlimited and
// unknown models are ignored.
func (t *Tracker) Increment(ctx context.Context, modelID string, n int) (Record, error) {
	if !tracked(modelID) {
		return Record{}, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, err := t.load(ctx, modelID)
	if err != nil {
		return Record{}, err
	}
	now := t.now()
	if !now.Before(rec.ResetTime) {
		rec.Requests = n
		rec.ResetTime = NextMidnight(now)
	} else {
		rec.Requests = min(rec.Requests+n, rec.MaxRequests)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode rate limit: %w", err)
	}
	if err := t.store.Put(ctx, Key(modelID), data); err != nil {
		return Record{}, err
	}
	slog.Debug("rate limit updated", "model", modelID, "requests", rec.Requests, "max", rec.MaxRequests)
	return rec, nil
}

// CanUse reports whether modelID may be called now. Unknown models cannot be
// used; unlimited models always can.
func (t *Tracker) CanUse(ctx context.Context, modelID string) (bool, error) {
	info, ok := model.GetModel(modelID)
	if !ok {
		return false, nil
	}
	if info.Unlimited() {
		return true, nil
	}
	rec, _, err := t.Get(ctx, modelID)
	if err != nil {
		return false, err
	}
	return rec.Requests < rec.MaxRequests, nil
}

// Alternatives suggests models to switch to. A quota-limited model gets the
// unlimited models; an unlimited model gets every other model that is either
// unlimited or still usable.
func (t *Tracker) Alternatives(ctx context.Context, modelID string) ([]model.ModelInfo, error) {
	current, ok := model.GetModel(modelID)
	if !ok {
		return nil, nil
	}

	var out []model.ModelInfo
	for _, m := range model.ListModels() {
		if !current.Unlimited() {
			if m.Unlimited() {
				out = append(out, m)
			}
			continue
		}
		if m.ID == modelID {
			continue
		}
		usable, err := t.CanUse(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		if usable {
			out = append(out, m)
		}
	}
	return out, nil
}

// All returns the current record of every quota-limited catalog model.
func (t *Tracker) All(ctx context.Context) (map[string]Record, error) {
	out := make(map[string]Record)
	for _, m := range model.ListModels() {
		if m.Unlimited() {
			continue
		}
		rec, _, err := t.Get(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		out[m.ID] = rec
	}
	return out, nil
}

// Reset deletes the stored records of every model.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys, err := t.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := t.store.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// load reads the stored record, falling back to a fresh one when it is
// missing or unreadable. Callers hold t.mu.
func (t *Tracker) load(ctx context.Context, modelID string) (Record, error) {
	fresh := Record{MaxRequests: t.maxFor(modelID), ResetTime: NextMidnight(t.now())}

	data, ok, err := t.store.Get(ctx, Key(modelID))
	if err != nil {
		return Record{}, err
	}
	if !ok {
		return fresh, nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.ResetTime.IsZero() {
		slog.Warn("discarding unreadable rate limit record", "model", modelID,
			"value", strings.TrimSpace(string(data)))
		return fresh, nil
	}
	rec.MaxRequests = fresh.MaxRequests
	return rec, nil
}
