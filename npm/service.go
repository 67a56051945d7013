package npm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/petal-labs/npmsentinel/fanout"
	"github.com/petal-labs/npmsentinel/report"
	"github.com/petal-labs/npmsentinel/tool"
	"github.com/petal-labs/npmsentinel/upstream"
)

// Prober checks upstream reachability. *health.Monitor and *upstream.Client
// both satisfy it.
type Prober interface {
	Probe(ctx context.Context, name string) (upstream.ProbeResult, error)
}

// Config wires a Service.
type Config struct {
	Client *upstream.Client
	// Prober defaults to Client.
	Prober Prober
	// ItemTimeout bounds each package's work. Zero disables the bound.
	ItemTimeout time.Duration
	Logger      *slog.Logger
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

// Service holds the dependencies shared by every tool handler.
type Service struct {
	client      *upstream.Client
	prober      Prober
	itemTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	if cfg.Client == nil {
		cfg.Client = upstream.New(upstream.Config{Logger: cfg.Logger})
	}
	if cfg.Prober == nil {
		cfg.Prober = cfg.Client
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		client:      cfg.Client,
		prober:      cfg.Prober,
		itemTimeout: cfg.ItemTimeout,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
}

// PackagesArgs is the input of every plain per-package tool.
type PackagesArgs struct {
	Packages []string `json:"packages" jsonschema:"required" jsonschema_description:"npm package names, e.g. react or @types/node"`
}

// errNoPackages is the top-level error for an empty package list.
var errNoPackages = tool.NewToolError(tool.ToolErrorCodeInvalidArguments, "no packages provided", fanout.ErrNoItems)

// batch describes one fan-out tool invocation.
type batch[T any] struct {
	title     string
	items     []string
	fetch     fanout.Func[T]
	render    func(item string, value T) string
	summarize func(results []fanout.Result[T]) string
}

// runBatch fans out b.fetch over b.items and renders the report. Only an
// empty item list is a top-level error.
func runBatch[T any](ctx context.Context, s *Service, b batch[T]) (tool.Result, error) {
	results, err := fanout.Run(ctx, b.items, b.fetch, fanout.WithItemTimeout(s.itemTimeout))
	if err != nil {
		if errors.Is(err, fanout.ErrNoItems) {
			return tool.Result{}, errNoPackages
		}
		return tool.Result{}, err
	}

	rep := report.FromResults(b.title, results, b.render)
	if b.summarize != nil && fanout.Succeeded(results) > 0 {
		rep.Summary = b.summarize(results)
	}

	failures := rep.Failures()
	if failures > 0 {
		s.logger.DebugContext(ctx, "tool batch had failures",
			"title", b.title,
			"items", len(results),
			"failures", failures,
			"request_id", tool.RequestIDFrom(ctx),
		)
	}
	return tool.Result{Text: rep.String(), Items: len(results), Failures: failures}, nil
}

// Tools returns every tool descriptor in the order advertised to clients.
func (s *Service) Tools() []tool.Descriptor {
	return []tool.Descriptor{
		tool.New("npmVersions", "List published versions and dist-tags of npm packages.", s.Versions, tool.WithTitle("Package versions")),
		tool.New("npmLatest", "Show the latest release of npm packages: version, description, license, and links.", s.Latest, tool.WithTitle("Latest release")),
		tool.New("npmDeps", "List the dependencies, peer dependencies, and dev dependencies of npm packages.", s.Deps, tool.WithTitle("Dependencies")),
		tool.New("npmTypes", "Check whether npm packages ship TypeScript types or have a DefinitelyTyped package.", s.Types, tool.WithTitle("TypeScript types")),
		tool.New("npmSize", "Report minified and gzipped bundle size of npm packages from bundlephobia.", s.Size, tool.WithTitle("Bundle size")),
		tool.New("npmVulnerabilities", "List known vulnerabilities of npm packages from the OSV database. Accepts name or name@version.", s.Vulnerabilities, tool.WithTitle("Vulnerabilities")),
		tool.New("npmTrends", "Report download counts of npm packages over a period.", s.Trends, tool.WithTitle("Download trends")),
		tool.New("npmCompare", "Compare npm packages by version, license, dependencies, and monthly downloads.", s.Compare, tool.WithTitle("Compare packages")),
		tool.New("npmMaintainers", "List the maintainers of npm packages.", s.Maintainers, tool.WithTitle("Maintainers")),
		tool.New("npmScore", "Show npms.io final, quality, popularity, and maintenance scores.", s.Score, tool.WithTitle("Package score")),
		tool.New("npmQuality", "Show the npms.io quality score and its metrics.", s.Quality, tool.WithTitle("Quality score")),
		tool.New("npmMaintenance", "Show the npms.io maintenance score and its metrics.", s.Maintenance, tool.WithTitle("Maintenance score")),
		tool.New("npmPopularity", "Show the npms.io popularity score and its metrics.", s.Popularity, tool.WithTitle("Popularity score")),
		tool.New("npmPackageReadme", "Fetch the README of npm packages.", s.Readme, tool.WithTitle("README")),
		tool.New("npmSearch", "Search the npm registry.", s.Search, tool.WithTitle("Search")),
		tool.New("npmLicenseCompatibility", "Classify the licenses of npm packages and flag mixes of copyleft and unknown licenses.", s.LicenseCompatibility, tool.WithTitle("License compatibility")),
		tool.New("npmRepoStats", "Show GitHub repository statistics for npm packages.", s.RepoStats, tool.WithTitle("Repository stats")),
		tool.New("npmDeprecated", "Check whether npm packages or any of their versions are deprecated.", s.Deprecated, tool.WithTitle("Deprecation")),
		tool.New("npmChangelogAnalysis", "Analyze the release history of npm packages.", s.ChangelogAnalysis, tool.WithTitle("Release history")),
		tool.New("npmAlternatives", "Suggest alternative packages that share keywords with npm packages.", s.Alternatives, tool.WithTitle("Alternatives")),
		tool.New("npmDownloadHistory", "Show weekly download history of npm packages.", s.DownloadHistory, tool.WithTitle("Download history")),
		tool.New("upstreamStatus", "Check reachability and latency of the upstream APIs.", s.UpstreamStatus, tool.WithTitle("Upstream status")),
	}
}
