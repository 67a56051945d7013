package upstream

import (
	"fmt"
	"net/url"
	"strings"
)

// Upstream identifiers.
const (
	NPMRegistry  = "npm-registry"
	NPMDownloads = "npm-downloads"
	Bundlephobia = "bundlephobia"
	OSV          = "osv"
	NPMS         = "npms"
	GitHub       = "github"
)

var displayNames = map[string]string{
	NPMRegistry:  "npm registry",
	NPMDownloads: "npm downloads API",
	Bundlephobia: "bundlephobia",
	OSV:          "OSV",
	NPMS:         "npms.io",
	GitHub:       "GitHub",
}

// Names returns every upstream identifier in a fixed order.
func Names() []string {
	return []string{NPMRegistry, NPMDownloads, Bundlephobia, OSV, NPMS, GitHub}
}

// DisplayName returns the human-readable name of an upstream.
func DisplayName(upstream string) string {
	if name, ok := displayNames[upstream]; ok {
		return name
	}
	return upstream
}

// Endpoints holds the base URL of each upstream.
type Endpoints struct {
	NPMRegistry  string `yaml:"npm_registry,omitempty" json:"npm_registry,omitempty"`
	NPMDownloads string `yaml:"npm_downloads,omitempty" json:"npm_downloads,omitempty"`
	Bundlephobia string `yaml:"bundlephobia,omitempty" json:"bundlephobia,omitempty"`
	OSV          string `yaml:"osv,omitempty" json:"osv,omitempty"`
	NPMS         string `yaml:"npms,omitempty" json:"npms,omitempty"`
	GitHub       string `yaml:"github,omitempty" json:"github,omitempty"`
}

// DefaultEndpoints returns the public production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		NPMRegistry:  "https://registry.npmjs.org",
		NPMDownloads: "https://api.npmjs.org",
		Bundlephobia: "https://bundlephobia.com",
		OSV:          "https://api.osv.dev",
		NPMS:         "https://api.npms.io",
		GitHub:       "https://api.github.com",
	}
}

// WithDefaults fills empty endpoints from DefaultEndpoints and trims trailing slashes.
func (e Endpoints) WithDefaults() Endpoints {
	defaults := DefaultEndpoints()
	pick := func(value, fallback string) string {
		value = strings.TrimRight(strings.TrimSpace(value), "/")
		if value == "" {
			return fallback
		}
		return value
	}
	return Endpoints{
		NPMRegistry:  pick(e.NPMRegistry, defaults.NPMRegistry),
		NPMDownloads: pick(e.NPMDownloads, defaults.NPMDownloads),
		Bundlephobia: pick(e.Bundlephobia, defaults.Bundlephobia),
		OSV:          pick(e.OSV, defaults.OSV),
		NPMS:         pick(e.NPMS, defaults.NPMS),
		GitHub:       pick(e.GitHub, defaults.GitHub),
	}
}

// Base returns the base URL of the named upstream.
func (e Endpoints) Base(upstream string) (string, bool) {
	switch upstream {
	case NPMRegistry:
		return e.NPMRegistry, true
	case NPMDownloads:
		return e.NPMDownloads, true
	case Bundlephobia:
		return e.Bundlephobia, true
	case OSV:
		return e.OSV, true
	case NPMS:
		return e.NPMS, true
	case GitHub:
		return e.GitHub, true
	default:
		return "", false
	}
}

// Validate checks that every endpoint is an absolute http(s) URL.
func (e Endpoints) Validate() error {
	for _, name := range Names() {
		base, _ := e.Base(name)
		parsed, err := url.Parse(base)
		if err != nil {
			return fmt.Errorf("endpoint %s: %w", name, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("endpoint %s: %q must be an absolute http(s) URL", name, base)
		}
		if parsed.Host == "" {
			return fmt.Errorf("endpoint %s: %q has no host", name, base)
		}
	}
	return nil
}
