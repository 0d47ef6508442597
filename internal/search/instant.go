// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// InstantAnswer is the subset of the DuckDuckGo instant-answer response we render.
type InstantAnswer struct {
	Abstract         string         `json:"Abstract"`
	AbstractSource   string         `json:"AbstractSource"`
	AbstractURL      string         `json:"AbstractURL"`
	Answer           looseString    `json:"Answer"`
	AnswerType       string         `json:"AnswerType"`
	Definition       string         `json:"Definition"`
	DefinitionSource string         `json:"DefinitionSource"`
	DefinitionURL    string         `json:"DefinitionURL"`
	RelatedTopics    []RelatedTopic `json:"RelatedTopics"`
	Infobox          Infobox        `json:"Infobox"`
}

// RelatedTopic is one related-topic entry. Grouped entries carry no Text.
type RelatedTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}

// Infobox holds structured facts. The API sends "" when there are none.
type Infobox struct {
	Content []InfoboxItem `json:"content"`
}

// InfoboxItem is a single label/value fact.
type InfoboxItem struct {
	Label string      `json:"label"`
	Value looseString `json:"value"`
}

// UnmarshalJSON accepts either an object or the empty string.
func (i *Infobox) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		*i = Infobox{}
		return nil
	}
	type plain Infobox
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*i = Infobox(p)
	return nil
}

// looseString decodes a JSON string, or renders any other value as compact JSON.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = looseString(str)
		return nil
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = ""
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	*s = looseString(buf.String())
	return nil
}

// Limits for list sections.
const (
	maxRelatedTopics = 5
	maxInfoboxItems  = 5
)

// FormatInstant renders an instant answer as text. The output is never
// empty: an answer with no content produces a status message naming the query.
func FormatInstant(a InstantAnswer, query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 DuckDuckGo Search Results for \"%s\":\n\n", query)
	hasContent := false

	if a.Abstract != "" {
		fmt.Fprintf(&b, "📝 **Summary**: %s\n", a.Abstract)
		if a.AbstractSource != "" {
			fmt.Fprintf(&b, "   📖 Source: %s\n", a.AbstractSource)
		}
		if a.AbstractURL != "" {
			fmt.Fprintf(&b, "   🔗 URL: %s\n", a.AbstractURL)
		}
		b.WriteString("\n")
		hasContent = true
	}

	if a.Answer != "" {
		fmt.Fprintf(&b, "💡 **Direct Answer**: %s\n", a.Answer)
		if a.AnswerType != "" {
			fmt.Fprintf(&b, "   📋 Type: %s\n", a.AnswerType)
		}
		b.WriteString("\n")
		hasContent = true
	}

	if a.Definition != "" {
		fmt.Fprintf(&b, "📖 **Definition**: %s\n", a.Definition)
		if a.DefinitionSource != "" {
			fmt.Fprintf(&b, "   📚 Source: %s\n", a.DefinitionSource)
		}
		if a.DefinitionURL != "" {
			fmt.Fprintf(&b, "   🔗 URL: %s\n", a.DefinitionURL)
		}
		b.WriteString("\n")
		hasContent = true
	}

	if len(a.RelatedTopics) > 0 {
		shown := min(len(a.RelatedTopics), maxRelatedTopics)
		fmt.Fprintf(&b, "🔎 **Related Topics** (%d shown):\n", shown)
		for i, topic := range a.RelatedTopics[:shown] {
			if topic.Text == "" {
				continue
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, topic.Text)
			if topic.FirstURL != "" {
				fmt.Fprintf(&b, "   🌐 %s\n", topic.FirstURL)
			}
		}
		b.WriteString("\n")
		hasContent = true
	}

	if len(a.Infobox.Content) > 0 {
		b.WriteString("ℹ️ **Additional Information**:\n")
		for _, item := range a.Infobox.Content[:min(len(a.Infobox.Content), maxInfoboxItems)] {
			if item.Label != "" && item.Value != "" {
				fmt.Fprintf(&b, "• **%s**: %s\n", item.Label, item.Value)
			}
		}
		b.WriteString("\n")
		hasContent = true
	}

	if !hasContent {
		fmt.Fprintf(&b, "📋 **Search Status**: DuckDuckGo's instant answer API did not return specific results for \"%s\".\n\n", query)
		b.WriteString("This could mean:\n")
		b.WriteString("• The query is very specific or recent\n")
		b.WriteString("• No instant answers are available for this topic\n")
		b.WriteString("• Try rephrasing the search query\n\n")
		b.WriteString("💡 **Suggestion**: The search was performed successfully, but instant answers may be limited for this topic.\n\n")
	}

	fmt.Fprintf(&b, "🕒 Search performed: %s\n", now().Format(timestampLayout))
	b.WriteString("📊 Source: DuckDuckGo Instant Answer API")
	return b.String()
}
