// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/k3a/html2text"
)

// =============================================================================
// PERFORMANCE: Pre-compiled regex (compiled once at startup)
// =============================================================================

var (
	// Result links: any anchor whose class mentions "result".
	resultLinkRegex = regexp.MustCompile(`(?i)<a[^>]*class="[^"]*result[^"]*"[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)

	// Redirect links carrying the target in the uddg parameter.
	redirectLinkRegex = regexp.MustCompile(`(?i)<a[^>]*href="//duckduckgo\.com/l/\?uddg=([^"]*)"[^>]*>(.*?)</a>`)

	// Any anchor at all; last resort for unusual layouts.
	anyLinkRegex = regexp.MustCompile(`(?i)<a[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)

	snippetAnchorRegex = regexp.MustCompile(`(?i)<a[^>]*class="[^"]*result__snippet[^"]*"[^>]*>(.*?)</a>`)
	snippetSpanRegex   = regexp.MustCompile(`(?i)<span[^>]*class="[^"]*result__snippet[^"]*"[^>]*>(.*?)</span>`)

	tagRegex     = regexp.MustCompile(`<[^>]*>`)
	numberRegex  = regexp.MustCompile(`^\d+\.$`)
	lettersRegex = regexp.MustCompile(`[a-zA-Z]`)
)

// Limits applied while collecting candidates.
const (
	maxPrimaryLinks    = 10
	maxFallbackLinks   = 8
	maxPrimarySnippets = 10
	maxSpanSnippets    = 8
	maxFormattedLinks  = 6
	maxLooseSnippets   = 4
)

// timestampLayout mirrors a browser's locale string.
const timestampLayout = "1/2/2006, 3:04:05 PM"

var now = time.Now

type link struct {
	url   string
	title string
}

// =============================================================================
// NORMALIZER
// =============================================================================

// Normalize turns a DuckDuckGo HTML results page into numbered plain text.
//
// Up to six results are rendered as title, URL and, when one matches, a
// snippet. Pages without usable links fall back to up to four loose
// snippets. An empty string means nothing usable was found.
func Normalize(html, query string) string {
	links := collectLinks(html)
	snippets := collectSnippets(html)

	var b strings.Builder
	fmt.Fprintf(&b, "🔍 DuckDuckGo Web Search Results for \"%s\":\n\n", query)

	count := 0
	queryWord := firstWord(query)
	for i := 0; i < len(links) && i < maxFormattedLinks; i++ {
		count++
		fmt.Fprintf(&b, "%d. **%s**\n", count, links[i].title)
		fmt.Fprintf(&b, "   🔗 %s\n", links[i].url)
		if snippet, ok := matchSnippet(snippets, queryWord, links[i].title); ok {
			fmt.Fprintf(&b, "   📄 %s\n", snippet)
		}
		b.WriteString("\n")
	}

	if count == 0 && len(snippets) > 0 {
		b.WriteString("📋 **Found Information**:\n")
		for i := 0; i < len(snippets) && i < maxLooseSnippets; i++ {
			count++
			fmt.Fprintf(&b, "%d. %s\n\n", count, snippets[i])
		}
	}

	if count == 0 {
		return ""
	}

	fmt.Fprintf(&b, "🕒 Search performed: %s\n", now().Format(timestampLayout))
	fmt.Fprintf(&b, "📊 Source: DuckDuckGo HTML Search (%d results)", count)
	return b.String()
}

func collectLinks(html string) []link {
	var links []link

	for _, m := range resultLinkRegex.FindAllStringSubmatch(html, -1) {
		if len(links) >= maxPrimaryLinks {
			break
		}
		u := strings.TrimSpace(m[1])
		title := cleanText(m[2])
		n := utf8.RuneCountInString(title)
		if isExternalURL(u) && n > 5 && n < 200 {
			links = append(links, link{url: u, title: title})
		}
	}

	if len(links) >= 3 {
		return links
	}

	for _, m := range redirectLinkRegex.FindAllStringSubmatch(html, -1) {
		if len(links) >= maxFallbackLinks {
			break
		}
		decoded, err := url.QueryUnescape(strings.TrimSpace(htmlAmpersands(m[1])))
		if err != nil {
			continue
		}
		// The captured value may still carry trailing redirect parameters.
		if i := strings.Index(decoded, "&rut="); i >= 0 {
			decoded = decoded[:i]
		}
		title := cleanText(m[2])
		if title != "" && strings.HasPrefix(decoded, "http") && !strings.Contains(decoded, "duckduckgo.com") {
			links = append(links, link{url: decoded, title: title})
		}
	}

	if len(links) >= 2 {
		return links
	}

	for _, m := range anyLinkRegex.FindAllStringSubmatch(html, -1) {
		if len(links) >= maxFallbackLinks {
			break
		}
		u := strings.TrimSpace(m[1])
		title := cleanText(m[2])
		n := utf8.RuneCountInString(title)
		if isExternalURL(u) && n > 10 && n < 150 {
			links = append(links, link{url: u, title: title})
		}
	}

	return links
}

func collectSnippets(html string) []string {
	var snippets []string

	for _, m := range snippetAnchorRegex.FindAllStringSubmatch(html, -1) {
		if len(snippets) >= maxPrimarySnippets {
			break
		}
		text := cleanText(m[1])
		if isMeaningfulSnippet(text) {
			snippets = append(snippets, text)
		}
	}

	if len(snippets) >= 3 {
		return snippets
	}

	for _, m := range snippetSpanRegex.FindAllStringSubmatch(html, -1) {
		if len(snippets) >= maxSpanSnippets {
			break
		}
		text := cleanText(m[1])
		if n := utf8.RuneCountInString(text); n > 20 && n < 500 {
			snippets = append(snippets, text)
		}
	}

	return snippets
}

func isExternalURL(u string) bool {
	return strings.HasPrefix(u, "http") &&
		!strings.Contains(u, "duckduckgo.com") &&
		!strings.Contains(u, "javascript:")
}

func isMeaningfulSnippet(text string) bool {
	n := utf8.RuneCountInString(text)
	if n <= 20 || n >= 500 {
		return false
	}
	for _, noise := range []string{"DuckDuckGo", "Settings", "Privacy"} {
		if strings.Contains(text, noise) {
			return false
		}
	}
	return !numberRegex.MatchString(text) && lettersRegex.MatchString(text)
}

// matchSnippet picks the first snippet mentioning the query's first word, or
// whose own first word appears in the title.
func matchSnippet(snippets []string, queryWord, title string) (string, bool) {
	lowerTitle := strings.ToLower(title)
	for _, s := range snippets {
		lower := strings.ToLower(s)
		if strings.Contains(lower, queryWord) || strings.Contains(lowerTitle, firstWord(s)) {
			return s, true
		}
	}
	return "", false
}

func firstWord(s string) string {
	return strings.SplitN(strings.ToLower(s), " ", 2)[0]
}

// cleanText strips markup, decodes entities and folds whitespace.
func cleanText(fragment string) string {
	text := tagRegex.ReplaceAllString(fragment, "")
	text = html2text.HTML2Text(text)
	return strings.Join(strings.Fields(text), " ")
}

func htmlAmpersands(s string) string {
	return strings.ReplaceAll(s, "&amp;", "&")
}
