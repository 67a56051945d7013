package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/petal-labs/npmsentinel/schema"
)

// BundleSize is bundlephobia's size report for one package version.
type BundleSize struct {
	Name            string `json:"name" jsonschema:"required"`
	Version         string `json:"version" jsonschema:"required"`
	Size            int64  `json:"size" jsonschema:"required"`
	Gzip            int64  `json:"gzip" jsonschema:"required"`
	DependencyCount int    `json:"dependencyCount,omitempty"`
	HasJSModule     any    `json:"hasJSModule,omitempty"`
	HasSideEffects  any    `json:"hasSideEffects,omitempty"`
	IsModuleType    bool   `json:"isModuleType,omitempty"`
}

var bundleSizeShape = schema.Reflect[BundleSize]()

// BundleSize fetches the bundle size of spec ("name" or "name@version").
func (c *Client) BundleSize(ctx context.Context, spec string) (*BundleSize, error) {
	query := url.Values{}
	query.Set("package", spec)
	var out BundleSize
	err := c.fetch(ctx, request{
		upstream:  Bundlephobia,
		operation: "size",
		method:    http.MethodGet,
		url:       c.endpoints.Bundlephobia + "/api/size?" + query.Encode(),
		notFound:  fmt.Sprintf("bundlephobia has no size data for %q", spec),
	}, bundleSizeShape, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
