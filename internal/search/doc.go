// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package search implements the direct web search backend.
//
// A query runs through an ordered list of strategies. The HTML results page
// is scraped first; if it yields too little text the instant-answer JSON API
// is tried; if that also yields too little a canned fallback message naming
// the query is returned. "No hits" is never an error.
//
// All page scraping is isolated in Normalize. Callers only see plain text
// plus the label of the strategy that produced it.
//
// # Key Types
//
//   - Client: runs the strategy list with per-fetch deadlines and pacing
//   - Strategy: one way of turning a query into result text
//   - Result: text plus source label
//
// # Usage
//
//	client := search.NewClient(cfg.Search)
//	res, err := client.Search(ctx, "trending topics Kenya")
//	fmt.Println(res.Source) // duckduckgo-html, duckduckgo-instant or duckduckgo-fallback
package search
