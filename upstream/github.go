package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/petal-labs/npmsentinel/schema"
)

// GitHubRepository is the subset of GET /repos/{owner}/{repo} the tools read.
type GitHubRepository struct {
	FullName         string `json:"full_name" jsonschema:"required"`
	Description      string `json:"description,omitempty"`
	HTMLURL          string `json:"html_url,omitempty"`
	StargazersCount  int    `json:"stargazers_count" jsonschema:"required"`
	ForksCount       int    `json:"forks_count" jsonschema:"required"`
	OpenIssuesCount  int    `json:"open_issues_count" jsonschema:"required"`
	SubscribersCount int    `json:"subscribers_count,omitempty"`
	DefaultBranch    string `json:"default_branch,omitempty"`
	PushedAt         string `json:"pushed_at,omitempty"`
	Archived         bool   `json:"archived,omitempty"`
	License          *struct {
		SPDXID string `json:"spdx_id,omitempty"`
	} `json:"license,omitempty"`
}

var (
	gitHubRepositoryShape = schema.Reflect[GitHubRepository]()
	gitHubURLPattern      = regexp.MustCompile(`github\.com[/:]([^/\s]+)/([^/\s#?]+)`)
)

// ParseGitHubURL extracts owner and repo from the many forms a package's
// repository field takes: git+https, git@, github:owner/repo, or owner/repo.
func ParseGitHubURL(raw string) (owner, repo string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false
	}
	if rest, found := strings.CutPrefix(raw, "github:"); found {
		raw = "github.com/" + rest
	} else if !strings.Contains(raw, ":") && strings.Count(raw, "/") == 1 {
		raw = "github.com/" + raw
	}
	match := gitHubURLPattern.FindStringSubmatch(raw)
	if match == nil {
		return "", "", false
	}
	owner = match[1]
	repo = strings.TrimSuffix(match[2], ".git")
	if owner == "" || repo == "" {
		return "", "", false
	}
	return owner, repo, true
}

// Repository fetches GitHub repository stats. The configured token, if any,
// is sent as a bearer credential.
func (c *Client) Repository(ctx context.Context, owner, repo string) (*GitHubRepository, error) {
	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")
	header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.githubToken != "" {
		header.Set("Authorization", "Bearer "+c.githubToken)
	}
	var out GitHubRepository
	err := c.fetch(ctx, request{
		upstream:  GitHub,
		operation: "repository",
		method:    http.MethodGet,
		url:       fmt.Sprintf("%s/repos/%s/%s", c.endpoints.GitHub, url.PathEscape(owner), url.PathEscape(repo)),
		header:    header,
		notFound:  fmt.Sprintf("GitHub repository %s/%s not found", owner, repo),
	}, gitHubRepositoryShape, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
