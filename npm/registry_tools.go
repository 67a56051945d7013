package npm

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/petal-labs/npmsentinel/fanout"
	"github.com/petal-labs/npmsentinel/report"
	"github.com/petal-labs/npmsentinel/tool"
	"github.com/petal-labs/npmsentinel/upstream"
)

const (
	recentVersionCount  = 10
	defaultReadmeLimit  = 4000
	maxAlternatives     = 5
	alternativeKeywords = 5
)

// packument validates name and fetches its packument.
func (s *Service) packument(ctx context.Context, name string) (*upstream.Packument, error) {
	if err := upstream.ValidatePackageName(name); err != nil {
		return nil, err
	}
	return s.client.Packument(ctx, name)
}

// manifest parses a "name[@version]" spec and fetches that manifest.
func (s *Service) manifest(ctx context.Context, spec string) (*upstream.Manifest, error) {
	name, version, err := upstream.ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	return s.client.Manifest(ctx, name, version)
}

type publishedVersion struct {
	version   string
	published time.Time
}

// publishedVersions returns versions with a publish time, newest first.
func publishedVersions(p *upstream.Packument) []publishedVersion {
	out := make([]publishedVersion, 0, len(p.Versions))
	for v := range p.Versions {
		t, ok := parseTime(p.PublishedAt(v))
		if !ok {
			continue
		}
		out = append(out, publishedVersion{version: v, published: t})
	}
	slices.SortFunc(out, func(a, b publishedVersion) int {
		if c := b.published.Compare(a.published); c != 0 {
			return c
		}
		return strings.Compare(b.version, a.version)
	})
	return out
}

// Versions implements npmVersions.
func (s *Service) Versions(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[*upstream.Packument]{
		title: "Package versions",
		items: args.Packages,
		fetch: s.packument,
		render: func(_ string, p *upstream.Packument) string {
			var l report.Lines
			l.Addf("Total versions", "%d", len(p.Versions))

			tags := make([]string, 0, len(p.DistTags))
			for tag, v := range p.DistTags {
				tags = append(tags, tag+": "+v)
			}
			slices.Sort(tags)
			l.List("Dist-tags", tags)

			recent := publishedVersions(p)
			if len(recent) > recentVersionCount {
				recent = recent[:recentVersionCount]
			}
			entries := make([]string, 0, len(recent))
			for _, v := range recent {
				entries = append(entries, fmt.Sprintf("%s (%s)", v.version, v.published.Format(time.DateOnly)))
			}
			l.List("Recent versions", entries)
			return l.String()
		},
	})
}

// Latest implements npmLatest.
func (s *Service) Latest(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[*upstream.Manifest]{
		title: "Latest release",
		items: args.Packages,
		fetch: func(ctx context.Context, item string) (*upstream.Manifest, error) {
			name, _ := upstream.SplitSpec(item)
			return s.manifest(ctx, name)
		},
		render: func(_ string, m *upstream.Manifest) string {
			var l report.Lines
			l.Add("Version", m.Version)
			l.Add("Description", m.Description)
			l.Add("License", valueOr(m.LicenseName(), "unknown"))
			l.Add("Homepage", m.Homepage)
			l.Add("Repository", m.RepositoryURL())
			l.Addf("Dependencies", "%d", len(m.Dependencies))
			if notice, ok := m.DeprecationNotice(); ok {
				l.Add("Deprecated", notice)
			}
			return l.String()
		},
	})
}

// Deps implements npmDeps.
func (s *Service) Deps(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[*upstream.Manifest]{
		title: "Dependencies",
		items: args.Packages,
		fetch: s.manifest,
		render: func(_ string, m *upstream.Manifest) string {
			var l report.Lines
			l.Add("Version", m.Version)
			l.List(fmt.Sprintf("Dependencies (%d)", len(m.Dependencies)), dependencyList(m.Dependencies))
			l.List(fmt.Sprintf("Peer dependencies (%d)", len(m.PeerDependencies)), dependencyList(m.PeerDependencies))
			l.List(fmt.Sprintf("Dev dependencies (%d)", len(m.DevDependencies)), dependencyList(m.DevDependencies))
			if len(m.OptionalDependencies) > 0 {
				l.List(fmt.Sprintf("Optional dependencies (%d)", len(m.OptionalDependencies)), dependencyList(m.OptionalDependencies))
			}
			return l.String()
		},
	})
}

type typesInfo struct {
	version string
	bundled string
	// definitelyTyped is "@types/x@version" when a DefinitelyTyped package exists.
	definitelyTyped string
}

// Types implements npmTypes.
func (s *Service) Types(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[typesInfo]{
		title: "TypeScript types",
		items: args.Packages,
		fetch: func(ctx context.Context, item string) (typesInfo, error) {
			m, err := s.manifest(ctx, item)
			if err != nil {
				return typesInfo{}, err
			}
			info := typesInfo{version: m.Version, bundled: m.TypesEntry()}
			if info.bundled != "" || strings.HasPrefix(m.Name, "@types/") {
				return info, nil
			}
			typesName := upstream.TypesPackageName(m.Name)
			dt, err := s.client.Manifest(ctx, typesName, "")
			switch {
			case err == nil:
				info.definitelyTyped = typesName + "@" + dt.Version
			case tool.ErrorCode(err) != tool.ToolErrorCodeNotFound:
				return typesInfo{}, err
			}
			return info, nil
		},
		render: func(item string, info typesInfo) string {
			var l report.Lines
			l.Add("Version", info.version)
			switch {
			case info.bundled != "":
				l.Addf("Types", "bundled (%s)", info.bundled)
			case strings.HasPrefix(item, "@types/"):
				l.Add("Types", "this is a DefinitelyTyped package")
			case info.definitelyTyped != "":
				l.Addf("Types", "via DefinitelyTyped (%s)", info.definitelyTyped)
			default:
				l.Add("Types", "none found")
			}
			return l.String()
		},
	})
}

// Maintainers implements npmMaintainers.
func (s *Service) Maintainers(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[*upstream.Packument]{
		title: "Maintainers",
		items: args.Packages,
		fetch: s.packument,
		render: func(_ string, p *upstream.Packument) string {
			people := make([]string, 0, len(p.Maintainers))
			for _, m := range p.Maintainers {
				if person := m.String(); person != "" {
					people = append(people, person)
				}
			}
			var l report.Lines
			l.List(fmt.Sprintf("Maintainers (%d)", len(people)), people)
			return l.String()
		},
	})
}

// ReadmeArgs is the input of npmPackageReadme.
type ReadmeArgs struct {
	Packages  []string `json:"packages" jsonschema:"required" jsonschema_description:"npm package names"`
	MaxLength int      `json:"maxLength,omitempty" jsonschema:"minimum=0,default=4000" jsonschema_description:"maximum README length in characters; 0 uses the default"`
}

// Readme implements npmPackageReadme.
func (s *Service) Readme(ctx context.Context, args ReadmeArgs) (tool.Result, error) {
	limit := args.MaxLength
	if limit <= 0 {
		limit = defaultReadmeLimit
	}
	return runBatch(ctx, s, batch[*upstream.Packument]{
		title: "README",
		items: args.Packages,
		fetch: s.packument,
		render: func(_ string, p *upstream.Packument) string {
			readme := strings.TrimSpace(p.Readme)
			if readme == "" || readme == "ERROR: No README data found!" {
				return "No README available."
			}
			text, truncated := truncateText(readme, limit)
			if truncated {
				text += fmt.Sprintf("\n\n[truncated to %d characters]", limit)
			}
			return text
		},
	})
}

type deprecationInfo struct {
	latest     string
	notice     string
	deprecated int
	total      int
}

// Deprecated implements npmDeprecated.
func (s *Service) Deprecated(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[deprecationInfo]{
		title: "Deprecation",
		items: args.Packages,
		fetch: func(ctx context.Context, item string) (deprecationInfo, error) {
			p, err := s.packument(ctx, item)
			if err != nil {
				return deprecationInfo{}, err
			}
			info := deprecationInfo{latest: p.DistTags["latest"], total: len(p.Versions)}
			for v, entry := range p.Versions {
				notice, ok := entry.DeprecationNotice()
				if !ok {
					continue
				}
				info.deprecated++
				if v == info.latest {
					info.notice = notice
				}
			}
			return info, nil
		},
		render: func(_ string, info deprecationInfo) string {
			var l report.Lines
			l.Add("Latest", valueOr(info.latest, "unknown"))
			if info.notice != "" {
				l.Add("Status", "DEPRECATED")
				l.Add("Notice", info.notice)
			} else {
				l.Add("Status", "not deprecated")
			}
			l.Addf("Deprecated versions", "%d of %d", info.deprecated, info.total)
			return l.String()
		},
		summarize: func(results []fanout.Result[deprecationInfo]) string {
			var flagged []string
			for _, r := range results {
				if r.OK() && r.Value.notice != "" {
					flagged = append(flagged, r.Item)
				}
			}
			if len(flagged) == 0 {
				return "No latest release is deprecated."
			}
			return "Deprecated: " + strings.Join(flagged, ", ")
		},
	})
}

type releaseHistory struct {
	releases      int
	lastYear      int
	avgGapDays    float64
	first, last   publishedVersion
	majorReleases []publishedVersion
	prereleases   int
}

func analyzeReleases(p *upstream.Packument, now time.Time) releaseHistory {
	published := publishedVersions(p)
	// oldest first
	slices.Reverse(published)

	h := releaseHistory{releases: len(published)}
	if len(published) == 0 {
		return h
	}
	h.first, h.last = published[0], published[len(published)-1]
	cutoff := now.AddDate(-1, 0, 0)

	seenMajor := map[uint64]bool{}
	for _, pv := range published {
		if pv.published.After(cutoff) {
			h.lastYear++
		}
		v, err := semver.StrictNewVersion(pv.version)
		if err != nil {
			continue
		}
		if v.Prerelease() != "" {
			h.prereleases++
			continue
		}
		if !seenMajor[v.Major()] {
			seenMajor[v.Major()] = true
			h.majorReleases = append(h.majorReleases, pv)
		}
	}
	if len(published) > 1 {
		span := h.last.published.Sub(h.first.published)
		h.avgGapDays = span.Hours() / 24 / float64(len(published)-1)
	}
	return h
}

// ChangelogAnalysis implements npmChangelogAnalysis.
func (s *Service) ChangelogAnalysis(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	now := s.now()
	return runBatch(ctx, s, batch[releaseHistory]{
		title: "Release history",
		items: args.Packages,
		fetch: func(ctx context.Context, item string) (releaseHistory, error) {
			p, err := s.packument(ctx, item)
			if err != nil {
				return releaseHistory{}, err
			}
			return analyzeReleases(p, now), nil
		},
		render: func(_ string, h releaseHistory) string {
			var l report.Lines
			l.Addf("Releases", "%d", h.releases)
			if h.releases == 0 {
				return l.String()
			}
			l.Addf("First release", "%s (%s)", h.first.version, h.first.published.Format(time.DateOnly))
			l.Addf("Latest release", "%s (%s)", h.last.version, h.last.published.Format(time.DateOnly))
			l.Addf("Releases in last 12 months", "%d", h.lastYear)
			if h.releases > 1 {
				l.Addf("Average days between releases", "%.1f", h.avgGapDays)
			}
			l.Addf("Pre-releases", "%d", h.prereleases)
			majors := make([]string, 0, len(h.majorReleases))
			for _, pv := range h.majorReleases {
				majors = append(majors, fmt.Sprintf("%s (%s)", pv.version, pv.published.Format(time.DateOnly)))
			}
			l.List("Major versions", majors)
			return l.String()
		},
	})
}

// SearchArgs is the input of npmSearch.
type SearchArgs struct {
	Query string `json:"query" jsonschema:"required" jsonschema_description:"search text; supports npm qualifiers such as keywords:"`
	Limit int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=250,default=10" jsonschema_description:"maximum number of results"`
}

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 250
)

// Search implements npmSearch. It is a single request, not a fan-out.
func (s *Service) Search(ctx context.Context, args SearchArgs) (tool.Result, error) {
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return tool.Result{}, tool.NewToolError(tool.ToolErrorCodeInvalidArguments, "query must not be empty", nil)
	}
	limit := args.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if limit < 1 || limit > maxSearchLimit {
		return tool.Result{}, tool.NewToolError(tool.ToolErrorCodeInvalidArguments,
			fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit), nil)
	}

	result, err := s.client.Search(ctx, query, limit)
	if err != nil {
		return tool.Result{}, err
	}

	rep := report.Report{Title: fmt.Sprintf("Search results for %q", query)}
	for _, obj := range result.Objects {
		pkg := obj.Package
		var l report.Lines
		l.Add("Version", pkg.Version)
		l.Add("Description", pkg.Description)
		l.Add("Keywords", strings.Join(pkg.KeywordList(), ", "))
		l.Add("Published", formatDate(pkg.Date))
		l.Add("Link", valueOr(pkg.Links.NPM, "https://www.npmjs.com/package/"+pkg.Name))
		rep.Sections = append(rep.Sections, report.Success(pkg.Name, l.String()))
	}
	rep.Summary = fmt.Sprintf("Showing %d of %d results.", len(result.Objects), max(result.Total, len(result.Objects)))
	return tool.Result{Text: rep.String(), Items: len(rep.Sections)}, nil
}

// Alternatives implements npmAlternatives.
func (s *Service) Alternatives(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[[]upstream.SearchPackage]{
		title: "Alternatives",
		items: args.Packages,
		fetch: func(ctx context.Context, item string) ([]upstream.SearchPackage, error) {
			name, _ := upstream.SplitSpec(item)
			m, err := s.manifest(ctx, name)
			if err != nil {
				return nil, err
			}
			keywords := m.KeywordList()
			if len(keywords) == 0 {
				return nil, tool.NewToolError(tool.ToolErrorCodeNotFound, "package has no keywords to search by", nil)
			}
			if len(keywords) > alternativeKeywords {
				keywords = keywords[:alternativeKeywords]
			}
			result, err := s.client.Search(ctx, "keywords:"+strings.Join(keywords, ","), maxAlternatives*2+1)
			if err != nil {
				return nil, err
			}
			out := make([]upstream.SearchPackage, 0, maxAlternatives)
			for _, obj := range result.Objects {
				if obj.Package.Name == m.Name {
					continue
				}
				out = append(out, obj.Package)
				if len(out) == maxAlternatives {
					break
				}
			}
			return out, nil
		},
		render: func(_ string, alts []upstream.SearchPackage) string {
			entries := make([]string, 0, len(alts))
			for _, alt := range alts {
				entry := alt.Name
				if alt.Description != "" {
					entry += ": " + alt.Description
				}
				entries = append(entries, entry)
			}
			var l report.Lines
			l.List("Alternatives", entries)
			return l.String()
		},
	})
}

// sortByDesc orders items by key, largest first, keeping input order on ties.
func sortByDesc[T any](items []T, key func(T) int64) {
	slices.SortStableFunc(items, func(a, b T) int {
		return cmp.Compare(key(b), key(a))
	})
}
