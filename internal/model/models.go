// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"
)

// =============================================================================
// BACKEND FAMILY
// =============================================================================

// Family selects the completion backend for a model.
type Family string

const (
	// FamilyUnlimited models have no tracked quota.
	FamilyUnlimited Family = "unlimited"

	// FamilyQuota models have a per-model daily request quota reset at local midnight.
	FamilyQuota Family = "quota"
)

// DefaultDailyQuota applies to quota-family models the catalog does not list.
const DefaultDailyQuota = 2000

// =============================================================================
// MODEL INFO
// =============================================================================

// ModelInfo contains information about a selectable model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Family      Family `json:"family"`
	Category    string `json:"category"`
	Description string `json:"description"`
	// DailyQuota is 0 for unlimited models.
	DailyQuota int `json:"dailyQuota"`
}

// Unlimited reports whether the model is exempt from quota tracking.
func (m ModelInfo) Unlimited() bool {
	return m.Family == FamilyUnlimited
}

// Models is the registry of selectable models.
var Models = map[string]ModelInfo{
	"claude-3-5-sonnet": {
		ID: "claude-3-5-sonnet", Name: "Claude 3.5 Sonnet", Family: FamilyUnlimited,
		Category: "premium", Description: "Best for complex coding tasks",
	},
	"claude-3-7-sonnet": {
		ID: "claude-3-7-sonnet", Name: "Claude 3.7 Sonnet", Family: FamilyUnlimited,
		Category: "premium", Description: "Latest Claude model for debugging",
	},
	"deepseek-r1-distill-llama-70b": {
		ID: "deepseek-r1-distill-llama-70b", Name: "DeepSeek R1 Distill Llama 70B", Family: FamilyQuota,
		Category: "fast", Description: "Excellent reasoning for debugging", DailyQuota: 1000,
	},
	"llama-3.3-70b-versatile": {
		ID: "llama-3.3-70b-versatile", Name: "Llama 3.3 70B Versatile", Family: FamilyQuota,
		Category: "fast", Description: "Great general coding capabilities", DailyQuota: 1000,
	},
	"llama3-70b-8192": {
		ID: "llama3-70b-8192", Name: "Llama 3 70B", Family: FamilyQuota,
		Category: "fast", Description: "Solid coding performance", DailyQuota: 14400,
	},
	"llama-3.1-8b-instant": {
		ID: "llama-3.1-8b-instant", Name: "Llama 3.1 8B Instant", Family: FamilyQuota,
		Category: "efficient", Description: "Super fast for simple debugging", DailyQuota: 14400,
	},
	"gemma2-9b-it": {
		ID: "gemma2-9b-it", Name: "Gemma 2 9B", Family: FamilyQuota,
		Category: "efficient", Description: "Lightweight coding assistance", DailyQuota: 14400,
	},
	"mistral-saba-24b": {
		ID: "mistral-saba-24b", Name: "Mistral Saba 24B", Family: FamilyQuota,
		Category: "efficient", Description: "Multilingual coding help", DailyQuota: 1000,
	},
}

// FamilyOf selects the backend family by naming convention: any id containing
// "claude" is unlimited, everything else is quota-limited.
func FamilyOf(modelID string) Family {
	if strings.Contains(strings.ToLower(modelID), "claude") {
		return FamilyUnlimited
	}
	return FamilyQuota
}

// GetModel returns the catalog entry for id.
func GetModel(id string) (ModelInfo, bool) {
	info, ok := Models[id]
	return info, ok
}

// QuotaFor returns the daily quota of a quota-family model, or 0 if unlimited.
func QuotaFor(modelID string) int {
	if FamilyOf(modelID) == FamilyUnlimited {
		return 0
	}
	if info, ok := Models[modelID]; ok && info.DailyQuota > 0 {
		return info.DailyQuota
	}
	return DefaultDailyQuota
}

// ListModels returns the catalog ordered unlimited first, then by id.
func ListModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(Models))
	for _, info := range Models {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Family != out[j].Family {
			return out[i].Family == FamilyUnlimited
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ResolveModel maps loose user input ("llama 70b", "sonnet 3.7") to a catalog id.
// Exact ids win; otherwise the best fuzzy match is returned.
func ResolveModel(query string) (ModelInfo, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return ModelInfo{}, false
	}
	if info, ok := Models[query]; ok {
		return info, true
	}

	models := ListModels()
	candidates := make([]string, len(models))
	for i, m := range models {
		candidates[i] = strings.ToLower(m.ID + " " + m.Name)
	}
	pattern := strings.ReplaceAll(strings.ToLower(query), " ", "")
	matches := fuzzy.Find(pattern, candidates)
	if len(matches) == 0 {
		return ModelInfo{}, false
	}
	return models[matches[0].Index], true
}
