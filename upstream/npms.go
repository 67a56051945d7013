package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/petal-labs/npmsentinel/schema"
)

// PackageScore is the npms.io analysis of a package.
type PackageScore struct {
	AnalyzedAt string     `json:"analyzedAt,omitempty"`
	Collected  Collected  `json:"collected,omitempty"`
	Evaluation Evaluation `json:"evaluation,omitempty"`
	Score      Score      `json:"score" jsonschema:"required"`
}

// Score holds the final and per-dimension scores, each in [0,1].
type Score struct {
	Final  float64     `json:"final" jsonschema:"required"`
	Detail ScoreDetail `json:"detail" jsonschema:"required"`
}

// ScoreDetail holds the three npms.io dimensions.
type ScoreDetail struct {
	Quality     float64 `json:"quality" jsonschema:"required"`
	Popularity  float64 `json:"popularity" jsonschema:"required"`
	Maintenance float64 `json:"maintenance" jsonschema:"required"`
}

// Collected is the raw metadata npms.io gathered.
type Collected struct {
	Metadata struct {
		Name    string `json:"name,omitempty"`
		Version string `json:"version,omitempty"`
	} `json:"metadata,omitempty"`
	GitHub struct {
		StarsCount       int `json:"starsCount,omitempty"`
		ForksCount       int `json:"forksCount,omitempty"`
		SubscribersCount int `json:"subscribersCount,omitempty"`
		Issues           struct {
			Count     int `json:"count,omitempty"`
			OpenCount int `json:"openCount,omitempty"`
		} `json:"issues,omitempty"`
	} `json:"github,omitempty"`
}

// Evaluation holds the metrics behind each score dimension.
type Evaluation struct {
	Quality struct {
		Carefulness float64 `json:"carefulness,omitempty"`
		Tests       float64 `json:"tests,omitempty"`
		Health      float64 `json:"health,omitempty"`
		Branding    float64 `json:"branding,omitempty"`
	} `json:"quality,omitempty"`
	Popularity struct {
		CommunityInterest     float64 `json:"communityInterest,omitempty"`
		DownloadsCount        float64 `json:"downloadsCount,omitempty"`
		DownloadsAcceleration float64 `json:"downloadsAcceleration,omitempty"`
		DependentsCount       float64 `json:"dependentsCount,omitempty"`
	} `json:"popularity,omitempty"`
	Maintenance struct {
		ReleasesFrequency  float64 `json:"releasesFrequency,omitempty"`
		CommitsFrequency   float64 `json:"commitsFrequency,omitempty"`
		OpenIssues         float64 `json:"openIssues,omitempty"`
		IssuesDistribution float64 `json:"issuesDistribution,omitempty"`
	} `json:"maintenance,omitempty"`
}

var packageScoreShape = schema.Reflect[PackageScore]()

// Score fetches the npms.io analysis of name.
func (c *Client) Score(ctx context.Context, name string) (*PackageScore, error) {
	var out PackageScore
	err := c.fetch(ctx, request{
		upstream:  NPMS,
		operation: "package",
		method:    http.MethodGet,
		url:       c.endpoints.NPMS + "/v2/package/" + escapeNameStrict(name),
		notFound:  fmt.Sprintf("npms.io has no analysis for %q", name),
	}, packageScoreShape, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
