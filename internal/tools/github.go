// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Jeff9497/200Model8Dev/internal/config"
	"github.com/Jeff9497/200Model8Dev/internal/errs"
	"github.com/Jeff9497/200Model8Dev/internal/model"
	"github.com/Jeff9497/200Model8Dev/internal/util"
)

// GitHub envelope labels.
const (
	SourceGitHub = "github-api"
	MethodGitHub = "GitHub REST API"
)

const githubUserAgent = "200Model8-Dev"

// Repository is one repository search hit.
type Repository struct {
	Name        string    `json:"name"`
	FullName    string    `json:"fullName"`
	Description string    `json:"description"`
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	Language    string    `json:"language"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Topics      []string  `json:"topics"`
}

// RepositoryResult is the envelope result of a repository search.
type RepositoryResult struct {
	Repositories []Repository `json:"repositories"`
	TotalCount   int          `json:"totalCount"`
}

// githubSearchResponse mirrors the fields we use from search/repositories.
type githubSearchResponse struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		Name            string    `json:"name"`
		FullName        string    `json:"full_name"`
		Description     *string   `json:"description"`
		StargazersCount int       `json:"stargazers_count"`
		ForksCount      int       `json:"forks_count"`
		Language        *string   `json:"language"`
		HTMLURL         string    `json:"html_url"`
		CreatedAt       time.Time `json:"created_at"`
		UpdatedAt       time.Time `json:"updated_at"`
		Topics          []string  `json:"topics"`
	} `json:"items"`
}

// GitHubClient searches public repositories.
type GitHubClient struct {
	BaseURL string
	Token   string
	PerPage int
	HTTP    *http.Client
	now     func() time.Time
}

// NewGitHubClient creates a client from configuration.
func NewGitHubClient(cfg config.GitHubConfig) *GitHubClient {
	return &GitHubClient{
		BaseURL: strings.TrimRight(cfg.APIURL, "/"),
		Token:   cfg.Token,
		PerPage: cfg.PerPage,
		HTTP:    &http.Client{Timeout: cfg.Timeout()},
		now:     time.Now,
	}
}

// Search returns the most-starred repositories matching query.
func (g *GitHubClient) Search(ctx context.Context, query string) (*model.Envelope, error) {
	perPage := g.PerPage
	if perPage <= 0 {
		perPage = 5
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("sort", "stars")
	q.Set("order", "desc")
	q.Set("per_page", strconv.Itoa(perPage))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/search/repositories?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTransportFailure, err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", githubUserAgent)
	if g.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.Token)
	}

	client := g.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GitHub API: %v", errs.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: GitHub API: read body: %v", errs.ErrTransportFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GitHub API error: %s: %s", errs.ErrTransportFailure, resp.Status,
			util.TruncateRunes(strings.TrimSpace(string(body)), 200))
	}

	var data githubSearchResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: GitHub API: malformed body: %v", errs.ErrTransportFailure, err)
	}

	repos := make([]Repository, 0, len(data.Items))
	for _, item := range data.Items {
		r := Repository{
			Name:        item.Name,
			FullName:    item.FullName,
			Description: "No description available",
			Stars:       item.StargazersCount,
			Forks:       item.ForksCount,
			URL:         item.HTMLURL,
			CreatedAt:   item.CreatedAt,
			UpdatedAt:   item.UpdatedAt,
			Topics:      item.Topics,
		}
		if item.Description != nil && *item.Description != "" {
			r.Description = *item.Description
		}
		if item.Language != nil {
			r.Language = *item.Language
		}
		if r.Topics == nil {
			r.Topics = []string{}
		}
		repos = append(repos, r)
	}

	now := time.Now
	if g.now != nil {
		now = g.now
	}
	return &model.Envelope{
		Query:     query,
		Result:    RepositoryResult{Repositories: repos, TotalCount: data.TotalCount},
		Source:    SourceGitHub,
		Timestamp: now(),
		Success:   true,
		Method:    MethodGitHub,
	}, nil
}
