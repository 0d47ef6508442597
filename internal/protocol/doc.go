// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol parses tool directives embedded in model replies.
//
// A model asks for a tool by writing one line in its reply, in either the
// canonical form or the bare form models tend to drift into:
//
//	TOOL_REQUEST: web_search | trending topics Kenya
//	web_search | trending topics Kenya
//
// The canonical form is tried first anywhere in the text; the bare form only
// matches at the start of a line and only for catalog names and aliases.
// Both forms stay supported since models do not reliably emit the prefix.
//
// # Key Types
//
//   - Directive: the tool name and query extracted from a reply
//
// # Usage
//
//	if d, ok := protocol.Parse(reply); ok {
//	    fmt.Println(d.Tool, d.Query)
//	}
//	clean := protocol.StripDirective(reply)
package protocol
