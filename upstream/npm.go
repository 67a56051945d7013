package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/petal-labs/npmsentinel/schema"
)

// Packument is the registry document listing every version of a package.
type Packument struct {
	Name        string                      `json:"name" jsonschema:"required"`
	Description string                      `json:"description,omitempty"`
	DistTags    map[string]string           `json:"dist-tags,omitempty"`
	Versions    map[string]PackumentVersion `json:"versions" jsonschema:"required"`
	// Time maps versions to publish timestamps plus "created" and "modified".
	Time        map[string]any `json:"time,omitempty"`
	Maintainers []Person       `json:"maintainers,omitempty"`
	Readme      string         `json:"readme,omitempty"`
	License     any            `json:"license,omitempty"`
	Homepage    string         `json:"homepage,omitempty"`
	Repository  any            `json:"repository,omitempty"`
	Keywords    any            `json:"keywords,omitempty"`
}

// PackumentVersion is the subset of a version entry the tools read.
type PackumentVersion struct {
	Version    string `json:"version" jsonschema:"required"`
	Deprecated any    `json:"deprecated,omitempty"`
}

// DeprecationNotice returns the deprecation message, if the version is deprecated.
func (v PackumentVersion) DeprecationNotice() (string, bool) {
	return deprecationNotice(v.Deprecated)
}

// Person is an npm maintainer or author.
type Person struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	URL   string `json:"url,omitempty"`
}

func (p Person) String() string {
	switch {
	case p.Name != "" && p.Email != "":
		return fmt.Sprintf("%s <%s>", p.Name, p.Email)
	case p.Name != "":
		return p.Name
	default:
		return p.Email
	}
}

// Manifest is one published version of a package.
type Manifest struct {
	Name                 string            `json:"name" jsonschema:"required"`
	Version              string            `json:"version" jsonschema:"required"`
	Description          string            `json:"description,omitempty"`
	License              any               `json:"license,omitempty"`
	Homepage             string            `json:"homepage,omitempty"`
	Repository           any               `json:"repository,omitempty"`
	Keywords             any               `json:"keywords,omitempty"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
	DevDependencies      map[string]string `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	Types                string            `json:"types,omitempty"`
	Typings              string            `json:"typings,omitempty"`
	Deprecated           any               `json:"deprecated,omitempty"`
}

// LicenseName normalizes the license field, which is a string, a
// {type,url} object, or (legacy) an array of such objects.
func (m Manifest) LicenseName() string {
	return licenseName(m.License)
}

// LicenseName normalizes the packument license field.
func (p Packument) LicenseName() string {
	return licenseName(p.License)
}

// RepositoryURL returns the repository URL whether the field is a string or object.
func (m Manifest) RepositoryURL() string {
	return repositoryURL(m.Repository)
}

// RepositoryURL returns the packument repository URL.
func (p Packument) RepositoryURL() string {
	return repositoryURL(p.Repository)
}

// KeywordList returns keywords whether the field is an array or a comma list.
func (m Manifest) KeywordList() []string {
	return keywordList(m.Keywords)
}

// DeprecationNotice returns the deprecation message, if any.
func (m Manifest) DeprecationNotice() (string, bool) {
	return deprecationNotice(m.Deprecated)
}

// TypesEntry returns the bundled declaration entry point, if any.
func (m Manifest) TypesEntry() string {
	if m.Types != "" {
		return m.Types
	}
	return m.Typings
}

// PublishedAt returns the publish timestamp of version, if recorded.
func (p Packument) PublishedAt(version string) string {
	if s, ok := p.Time[version].(string); ok {
		return s
	}
	return ""
}

// SearchResult is the registry search response.
type SearchResult struct {
	Objects []SearchObject `json:"objects" jsonschema:"required"`
	Total   int            `json:"total,omitempty"`
}

// SearchObject is one search hit.
type SearchObject struct {
	Package SearchPackage `json:"package" jsonschema:"required"`
	Score   struct {
		Final float64 `json:"final,omitempty"`
	} `json:"score,omitempty"`
}

// SearchPackage is the package summary attached to a search hit.
type SearchPackage struct {
	Name        string `json:"name" jsonschema:"required"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Keywords    any    `json:"keywords,omitempty"`
	Date        string `json:"date,omitempty"`
	Links       struct {
		NPM        string `json:"npm,omitempty"`
		Homepage   string `json:"homepage,omitempty"`
		Repository string `json:"repository,omitempty"`
	} `json:"links,omitempty"`
}

var (
	packumentShape = schema.Reflect[Packument]()
	manifestShape  = schema.Reflect[Manifest]()
	searchShape    = schema.Reflect[SearchResult]()
)

// Packument fetches the full registry document for name.
func (c *Client) Packument(ctx context.Context, name string) (*Packument, error) {
	var out Packument
	err := c.fetch(ctx, request{
		upstream:  NPMRegistry,
		operation: "packument",
		method:    http.MethodGet,
		url:       c.endpoints.NPMRegistry + "/" + escapeName(name),
		notFound:  fmt.Sprintf("package %q not found", name),
	}, packumentShape, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Manifest fetches one version of name. An empty version means "latest".
func (c *Client) Manifest(ctx context.Context, name, version string) (*Manifest, error) {
	if strings.TrimSpace(version) == "" {
		version = "latest"
	}
	var out Manifest
	err := c.fetch(ctx, request{
		upstream:  NPMRegistry,
		operation: "manifest",
		method:    http.MethodGet,
		url:       c.endpoints.NPMRegistry + "/" + escapeName(name) + "/" + url.PathEscape(version),
		notFound:  fmt.Sprintf("package %q version %q not found", name, version),
	}, manifestShape, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Search queries the registry search endpoint.
func (c *Client) Search(ctx context.Context, text string, size int) (*SearchResult, error) {
	query := url.Values{}
	query.Set("text", text)
	query.Set("size", strconv.Itoa(size))
	var out SearchResult
	err := c.fetch(ctx, request{
		upstream:  NPMRegistry,
		operation: "search",
		method:    http.MethodGet,
		url:       c.endpoints.NPMRegistry + "/-/v1/search?" + query.Encode(),
	}, searchShape, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func licenseName(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case map[string]any:
		if t, ok := value["type"].(string); ok {
			return strings.TrimSpace(t)
		}
	case []any:
		names := make([]string, 0, len(value))
		for _, item := range value {
			if name := licenseName(item); name != "" {
				names = append(names, name)
			}
		}
		if len(names) > 1 {
			return "(" + strings.Join(names, " OR ") + ")"
		}
		return strings.Join(names, "")
	}
	return ""
}

func repositoryURL(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case map[string]any:
		if u, ok := value["url"].(string); ok {
			return strings.TrimSpace(u)
		}
	}
	return ""
}

func keywordList(v any) []string {
	var out []string
	switch value := v.(type) {
	case []any:
		for _, item := range value {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// deprecationNotice handles "deprecated" being a message string or a bare true.
func deprecationNotice(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		if strings.TrimSpace(value) == "" {
			return "", false
		}
		return value, true
	case bool:
		if value {
			return "deprecated", true
		}
	}
	return "", false
}

// KeywordList returns the search package's keywords.
func (p SearchPackage) KeywordList() []string {
	return keywordList(p.Keywords)
}
