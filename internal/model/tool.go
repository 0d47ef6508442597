// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"strings"
)

// =============================================================================
// TOOL DESCRIPTOR
// =============================================================================

// Canonical tool names.
const (
	ToolWebSearch    = "web_search"
	ToolCodeDocs     = "code_docs"
	ToolGitHubSearch = "github_search"
)

// ToolDescriptor describes one invokable tool. Catalog entries are immutable;
// WithParameters returns a copy carrying resolved request parameters.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	DisplayName string         `json:"displayName"`
	Description string         `json:"description"`
	Provider    string         `json:"provider"`
	Parameters  map[string]any `json:"parameters"`
}

// WithParameters returns a copy of the descriptor with params attached.
func (d ToolDescriptor) WithParameters(params map[string]any) ToolDescriptor {
	out := d
	out.Parameters = make(map[string]any, len(params))
	for k, v := range params {
		out.Parameters[k] = v
	}
	return out
}

var toolCatalog = map[string]ToolDescriptor{
	ToolWebSearch: {
		Name:        ToolWebSearch,
		DisplayName: "Web Search",
		Description: "Search the web for current information, news, and resources using DuckDuckGo",
		Provider:    "DuckDuckGo Direct API",
	},
	ToolCodeDocs: {
		Name:        ToolCodeDocs,
		DisplayName: "Code Documentation",
		Description: "Get up-to-date library documentation to ensure current, working code",
		Provider:    "Context7 MCP Server",
	},
	ToolGitHubSearch: {
		Name:        ToolGitHubSearch,
		DisplayName: "Repository Search",
		Description: "Search GitHub repositories, code examples, and open source projects",
		Provider:    "GitHub REST API",
	},
}

// toolAliases routes deprecated names to their replacements.
var toolAliases = map[string]string{
	"exa_search":      ToolWebSearch,
	"context7_search": ToolCodeDocs,
}

// CanonicalToolName resolves aliases. Unknown names are returned unchanged
// with ok=false.
func CanonicalToolName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if alias, ok := toolAliases[name]; ok {
		return alias, true
	}
	_, ok := toolCatalog[name]
	return name, ok
}

// LookupTool returns the catalog descriptor for name or one of its aliases.
func LookupTool(name string) (ToolDescriptor, bool) {
	canonical, ok := CanonicalToolName(name)
	if !ok {
		return ToolDescriptor{}, false
	}
	return toolCatalog[canonical], true
}

// ListTools returns the catalog in a stable order.
func ListTools() []ToolDescriptor {
	out := make([]ToolDescriptor, 0, len(toolCatalog))
	for _, name := range ToolNames() {
		out = append(out, toolCatalog[name])
	}
	return out
}

// ToolNames returns the canonical tool names, sorted.
func ToolNames() []string {
	names := make([]string, 0, len(toolCatalog))
	for name := range toolCatalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolNamesWithAliases returns every name a directive may use.
func ToolNamesWithAliases() []string {
	names := ToolNames()
	aliases := make([]string, 0, len(toolAliases))
	for alias := range toolAliases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return append(names, aliases...)
}
