// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/Jeff9497/200Model8Dev/internal/config"
	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/util"
)

// Source labels reported with each result.
const (
	SourceHTML     = "duckduckgo-html"
	SourceInstant  = "duckduckgo-instant"
	SourceFallback = "duckduckgo-fallback"
)

// instantUserAgent identifies us to the instant-answer API.
const instantUserAgent = "200Model8-Dev/1.0 (Web Search Bot)"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 5 * 1024 * 1024

// ErrNoResults is returned by a strategy whose response held nothing usable.
var ErrNoResults = errors.New("no meaningful results")

// Result is the outcome of a search.
type Result struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Strategy turns a query into result text.
type Strategy interface {
	// Name is the source label reported when this strategy wins.
	Name() string
	Fetch(ctx context.Context, query string) (string, error)
}

// Stage pairs a strategy with the minimum text length it must produce to be accepted.
type Stage struct {
	Strategy  Strategy
	MinLength int
}

// =============================================================================
// CLIENT
// =============================================================================

// Client runs the search strategies in order.
type Client struct {
	stages  []Stage
	timeout time.Duration
	limiter *rate.Limiter
}

// NewClient builds the default html → instant chain from cfg.
func NewClient(cfg config.SearchConfig) *Client {
	httpClient := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			return nil
		},
	}

	c := &Client{timeout: cfg.Timeout()}
	c.stages = []Stage{
		{Strategy: &HTMLStrategy{URL: cfg.HTMLURL, UserAgent: cfg.UserAgent, HTTP: httpClient}, MinLength: cfg.MinHTMLLength},
		{Strategy: &InstantStrategy{URL: cfg.InstantURL, HTTP: httpClient}, MinLength: cfg.MinInstantLength},
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// WithStages replaces the strategy list.
func (c *Client) WithStages(stages ...Stage) *Client {
	c.stages = stages
	return c
}

// WithTimeout sets the per-fetch deadline (0 disables it).
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// Search runs each stage until one yields enough text, falling back to a
// canned message naming the query. It fails only for an empty query or
// when ctx ends.
func (c *Client) Search(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, fmt.Errorf("%w: search query is empty", errs.ErrInvalidRequest)
	}

	var failures errs.Failures
	for _, stage := range c.stages {
		text, err := c.fetch(ctx, stage.Strategy, query)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			failures.Add(stage.Strategy.Name(), err)
			slog.Debug("search strategy failed", "strategy", stage.Strategy.Name(), "error", err)
			continue
		}
		if utf8.RuneCountInString(text) > stage.MinLength {
			slog.Info("search completed", "strategy", stage.Strategy.Name(), "query", util.TruncateDisplay(query, 60))
			return Result{Text: text, Source: stage.Strategy.Name()}, nil
		}
		failures.Add(stage.Strategy.Name(), fmt.Errorf("%w: %d characters", ErrNoResults, utf8.RuneCountInString(text)))
	}

	slog.Info("search fell back to canned message", "query", util.TruncateDisplay(query, 60), "reasons", failures.Error())
	return Result{Text: FallbackText(query), Source: SourceFallback}, nil
}

func (c *Client) fetch(ctx context.Context, s Strategy, query string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return s.Fetch(ctx, query)
}

// FallbackText is the message returned when no strategy found anything.
func FallbackText(query string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 Search attempted for \"%s\" but no detailed results were found.\n\n", query)
	b.WriteString("This could be because:\n")
	b.WriteString("• The query is very recent or specific\n")
	b.WriteString("• DuckDuckGo's API has limited data for this topic\n")
	b.WriteString("• Network connectivity issues\n\n")
	b.WriteString("💡 Try:\n")
	b.WriteString("• Using more general search terms\n")
	b.WriteString("• Rephrasing your query\n")
	b.WriteString("• Searching for related topics\n\n")
	fmt.Fprintf(&b, "🕒 Search performed at: %s", now().Format(timestampLayout))
	return b.String()
}

// =============================================================================
// STRATEGIES
// =============================================================================

// HTMLStrategy scrapes the HTML results page.
type HTMLStrategy struct {
	URL       string
	UserAgent string
	HTTP      *http.Client
}

// Name implements Strategy.
func (s *HTMLStrategy) Name() string { return SourceHTML }

// Fetch implements Strategy.
func (s *HTMLStrategy) Fetch(ctx context.Context, query string) (string, error) {
	body, err := get(ctx, s.HTTP, s.URL+"?q="+url.QueryEscape(query), map[string]string{
		"User-Agent":      s.UserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
	})
	if err != nil {
		return "", err
	}
	text := Normalize(string(body), query)
	// Anything this short is only the header line.
	if utf8.RuneCountInString(text) <= 50 {
		return "", ErrNoResults
	}
	return text, nil
}

// InstantStrategy queries the instant-answer JSON API.
type InstantStrategy struct {
	URL  string
	HTTP *http.Client
}

// Name implements Strategy.
func (s *InstantStrategy) Name() string { return SourceInstant }

// Fetch implements Strategy.
func (s *InstantStrategy) Fetch(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	body, err := get(ctx, s.HTTP, s.URL+"?"+params.Encode(), map[string]string{
		"User-Agent": instantUserAgent,
		"Accept":     "application/json",
	})
	if err != nil {
		return "", err
	}

	var answer InstantAnswer
	if err := json.Unmarshal(body, &answer); err != nil {
		return "", fmt.Errorf("%w: decode instant answer: %v", errs.ErrTransportFailure, err)
	}
	return FormatInstant(answer, query), nil
}

func get(ctx context.Context, client *http.Client, target string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTransportFailure, err)
	}
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", errs.ErrTransportFailure, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errs.ErrTransportFailure, err)
	}
	return body, nil
}
