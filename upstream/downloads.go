package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/petal-labs/npmsentinel/schema"
)

// Download periods accepted by the npm downloads API.
const (
	PeriodLastDay   = "last-day"
	PeriodLastWeek  = "last-week"
	PeriodLastMonth = "last-month"
	PeriodLastYear  = "last-year"
)

// DownloadPoint is the total download count of a package over a period.
type DownloadPoint struct {
	Downloads int64  `json:"downloads" jsonschema:"required"`
	Start     string `json:"start" jsonschema:"required"`
	End       string `json:"end" jsonschema:"required"`
	Package   string `json:"package" jsonschema:"required"`
}

// DownloadRange holds per-day download counts over a period.
type DownloadRange struct {
	Start     string     `json:"start" jsonschema:"required"`
	End       string     `json:"end" jsonschema:"required"`
	Package   string     `json:"package" jsonschema:"required"`
	Downloads []DayCount `json:"downloads" jsonschema:"required"`
}

// DayCount is one day of a DownloadRange.
type DayCount struct {
	Day       string `json:"day" jsonschema:"required"`
	Downloads int64  `json:"downloads" jsonschema:"required"`
}

var (
	downloadPointShape = schema.Reflect[DownloadPoint]()
	downloadRangeShape = schema.Reflect[DownloadRange]()
)

// Downloads fetches the download count of name over period.
func (c *Client) Downloads(ctx context.Context, period, name string) (*DownloadPoint, error) {
	var out DownloadPoint
	err := c.fetch(ctx, request{
		upstream:  NPMDownloads,
		operation: "downloads_point",
		method:    http.MethodGet,
		url:       fmt.Sprintf("%s/downloads/point/%s/%s", c.endpoints.NPMDownloads, period, name),
		notFound:  fmt.Sprintf("no download data for %q", name),
	}, downloadPointShape, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadRange fetches daily download counts of name over period.
func (c *Client) DownloadRange(ctx context.Context, period, name string) (*DownloadRange, error) {
	var out DownloadRange
	err := c.fetch(ctx, request{
		upstream:  NPMDownloads,
		operation: "downloads_range",
		method:    http.MethodGet,
		url:       fmt.Sprintf("%s/downloads/range/%s/%s", c.endpoints.NPMDownloads, period, name),
		notFound:  fmt.Sprintf("no download data for %q", name),
	}, downloadRangeShape, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
