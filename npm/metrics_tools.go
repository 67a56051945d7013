package npm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/petal-labs/npmsentinel/fanout"
	"github.com/petal-labs/npmsentinel/report"
	"github.com/petal-labs/npmsentinel/tool"
	"github.com/petal-labs/npmsentinel/upstream"
)

// Size implements npmSize.
func (s *Service) Size(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[*upstream.BundleSize]{
		title: "Bundle size",
		items: args.Packages,
		fetch: func(ctx context.Context, item string) (*upstream.BundleSize, error) {
			if _, _, err := upstream.ParseSpec(item); err != nil {
				return nil, err
			}
			return s.client.BundleSize(ctx, item)
		},
		render: func(_ string, b *upstream.BundleSize) string {
			var l report.Lines
			l.Add("Version", b.Version)
			l.Add("Minified", formatBytes(b.Size))
			l.Add("Minified + gzipped", formatBytes(b.Gzip))
			l.Addf("Dependencies", "%d", b.DependencyCount)
			if esm, ok := b.HasJSModule.(string); ok && esm != "" {
				l.Add("ES module", "yes")
			} else if esm, ok := b.HasJSModule.(bool); ok {
				l.Add("ES module", yesNo(esm))
			}
			return l.String()
		},
		summarize: func(results []fanout.Result[*upstream.BundleSize]) string {
			ok := okValues(results)
			sortByDesc(ok, func(r fanout.Result[*upstream.BundleSize]) int64 { return -r.Value.Gzip })
			entries := make([]string, 0, len(ok))
			for _, r := range ok {
				entries = append(entries, fmt.Sprintf("%s: %s gzipped", r.Item, formatBytes(r.Value.Gzip)))
			}
			var l report.Lines
			l.List("Smallest first", entries)
			return l.String()
		},
	})
}

type vulnerabilityReport struct {
	version string
	vulns   []upstream.Vulnerability
}

// Vulnerabilities implements npmVulnerabilities.
func (s *Service) Vulnerabilities(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[vulnerabilityReport]{
		title: "Vulnerabilities",
		items: args.Packages,
		fetch: func(ctx context.Context, item string) (vulnerabilityReport, error) {
			name, version, err := upstream.ParseSpec(item)
			if err != nil {
				return vulnerabilityReport{}, err
			}
			list, err := s.client.Vulnerabilities(ctx, name, version)
			if err != nil {
				return vulnerabilityReport{}, err
			}
			return vulnerabilityReport{version: version, vulns: list.Vulns}, nil
		},
		render: func(_ string, r vulnerabilityReport) string {
			var l report.Lines
			l.Add("Version", valueOr(r.version, "all versions"))
			if len(r.vulns) == 0 {
				l.Text("No known vulnerabilities.")
				return l.String()
			}
			entries := make([]string, 0, len(r.vulns))
			for _, v := range r.vulns {
				entry := fmt.Sprintf("%s [%s]", v.ID, v.SeverityLabel())
				if summary := strings.TrimSpace(v.Summary); summary != "" {
					entry += " " + summary
				}
				entries = append(entries, entry)
			}
			l.List(fmt.Sprintf("Vulnerabilities (%d)", len(r.vulns)), entries)
			return l.String()
		},
		summarize: func(results []fanout.Result[vulnerabilityReport]) string {
			total, affected := 0, 0
			for _, r := range results {
				if r.OK() && len(r.Value.vulns) > 0 {
					affected++
					total += len(r.Value.vulns)
				}
			}
			return fmt.Sprintf("%d vulnerabilities across %d of %d packages.", total, affected, len(results))
		},
	})
}

// TrendsArgs is the input of npmTrends.
type TrendsArgs struct {
	Packages []string `json:"packages" jsonschema:"required" jsonschema_description:"npm package names"`
	Period   string   `json:"period,omitempty" jsonschema:"enum=last-day,enum=last-week,enum=last-month,enum=last-year,default=last-month" jsonschema_description:"download window"`
}

// Trends implements npmTrends.
func (s *Service) Trends(ctx context.Context, args TrendsArgs) (tool.Result, error) {
	period := valueOr(args.Period, upstream.PeriodLastMonth)
	return runBatch(ctx, s, batch[*upstream.DownloadPoint]{
		title: "Downloads (" + period + ")",
		items: args.Packages,
		fetch: func(ctx context.Context, item string) (*upstream.DownloadPoint, error) {
			if err := upstream.ValidatePackageName(item); err != nil {
				return nil, err
			}
			return s.client.Downloads(ctx, period, item)
		},
		render: func(_ string, p *upstream.DownloadPoint) string {
			var l report.Lines
			l.Add("Downloads", formatCount(p.Downloads))
			l.Addf("Window", "%s to %s", p.Start, p.End)
			return l.String()
		},
		summarize: func(results []fanout.Result[*upstream.DownloadPoint]) string {
			return rankByDownloads(okValues(results), func(p *upstream.DownloadPoint) int64 { return p.Downloads })
		},
	})
}

// HistoryArgs is the input of npmDownloadHistory.
type HistoryArgs struct {
	Packages []string `json:"packages" jsonschema:"required" jsonschema_description:"npm package names"`
	Period   string   `json:"period,omitempty" jsonschema:"enum=last-week,enum=last-month,enum=last-year,default=last-month" jsonschema_description:"history window"`
}

type weekBucket struct {
	start     string
	days      int
	downloads int64
}

func (b weekBucket) complete() bool {
	return b.days == 7
}

// weeklyBuckets folds daily counts into consecutive 7-day buckets. The last
// bucket holds the remainder and may be partial.
func weeklyBuckets(days []upstream.DayCount) []weekBucket {
	var out []weekBucket
	for i, day := range days {
		if i%7 == 0 {
			out = append(out, weekBucket{start: day.Day})
		}
		out[len(out)-1].days++
		out[len(out)-1].downloads += day.Downloads
	}
	return out
}

// weeklyChange compares the first and last complete weeks, in percent.
func weeklyChange(buckets []weekBucket) (float64, bool) {
	complete := make([]weekBucket, 0, len(buckets))
	for _, b := range buckets {
		if b.complete() {
			complete = append(complete, b)
		}
	}
	if len(complete) < 2 || complete[0].downloads == 0 {
		return 0, false
	}
	first, last := complete[0], complete[len(complete)-1]
	return float64(last.downloads-first.downloads) / float64(first.downloads) * 100, true
}

// DownloadHistory implements npmDownloadHistory.
func (s *Service) DownloadHistory(ctx context.Context, args HistoryArgs) (tool.Result, error) {
	period := valueOr(args.Period, upstream.PeriodLastMonth)
	return runBatch(ctx, s, batch[*upstream.DownloadRange]{
		title: "Download history (" + period + ")",
		items: args.Packages,
		fetch: func(ctx context.Context, item string) (*upstream.DownloadRange, error) {
			if err := upstream.ValidatePackageName(item); err != nil {
				return nil, err
			}
			return s.client.DownloadRange(ctx, period, item)
		},
		render: func(_ string, r *upstream.DownloadRange) string {
			buckets := weeklyBuckets(r.Downloads)
			var total int64
			entries := make([]string, 0, len(buckets))
			for _, b := range buckets {
				total += b.downloads
				entry := fmt.Sprintf("week of %s: %s", b.start, formatCount(b.downloads))
				if !b.complete() {
					entry += fmt.Sprintf(" (partial, %d days)", b.days)
				}
				entries = append(entries, entry)
			}
			var l report.Lines
			l.Add("Total", formatCount(total))
			l.List("Weekly downloads", entries)
			if change, ok := weeklyChange(buckets); ok {
				l.Addf("Change (first to last full week)", "%+.1f%%", change)
			}
			return l.String()
		},
	})
}

type comparison struct {
	manifest     *upstream.Manifest
	downloads    int64
	downloadsErr error // a downloads outage still renders the manifest
}

// Compare implements npmCompare.
func (s *Service) Compare(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[comparison]{
		title: "Package comparison",
		items: args.Packages,
		fetch: func(ctx context.Context, item string) (comparison, error) {
			name, _ := upstream.SplitSpec(item)
			m, err := s.manifest(ctx, name)
			if err != nil {
				return comparison{}, err
			}
			c := comparison{manifest: m}
			point, err := s.client.Downloads(ctx, upstream.PeriodLastMonth, name)
			if err != nil {
				c.downloadsErr = err
			} else {
				c.downloads = point.Downloads
			}
			return c, nil
		},
		render: func(_ string, c comparison) string {
			var l report.Lines
			l.Add("Version", c.manifest.Version)
			l.Add("License", valueOr(c.manifest.LicenseName(), "unknown"))
			l.Addf("Dependencies", "%d", len(c.manifest.Dependencies))
			if c.downloadsErr != nil {
				l.Add("Monthly downloads", "unavailable ("+fanout.Reason(c.downloadsErr)+")")
			} else {
				l.Add("Monthly downloads", formatCount(c.downloads))
			}
			l.Add("Description", c.manifest.Description)
			return l.String()
		},
		summarize: func(results []fanout.Result[comparison]) string {
			var ranked []comparison
			for _, r := range results {
				if r.OK() && r.Value.downloadsErr == nil {
					ranked = append(ranked, r.Value)
				}
			}
			sortByDesc(ranked, func(c comparison) int64 { return c.downloads })
			entries := make([]string, 0, len(ranked))
			for i, c := range ranked {
				entries = append(entries, fmt.Sprintf("%d. %s (%s/month)", i+1, c.manifest.Name, formatCount(c.downloads)))
			}
			var l report.Lines
			l.List("Ranked by monthly downloads", entries)
			return l.String()
		},
	})
}

func (s *Service) score(ctx context.Context, item string) (*upstream.PackageScore, error) {
	if err := upstream.ValidatePackageName(item); err != nil {
		return nil, err
	}
	return s.client.Score(ctx, item)
}

// Score implements npmScore.
func (s *Service) Score(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[*upstream.PackageScore]{
		title: "npms.io scores",
		items: args.Packages,
		fetch: s.score,
		render: func(_ string, p *upstream.PackageScore) string {
			var l report.Lines
			l.Add("Final", formatScore(p.Score.Final))
			l.Add("Quality", formatScore(p.Score.Detail.Quality))
			l.Add("Popularity", formatScore(p.Score.Detail.Popularity))
			l.Add("Maintenance", formatScore(p.Score.Detail.Maintenance))
			l.Add("Analyzed", formatDate(p.AnalyzedAt))
			return l.String()
		},
		summarize: func(results []fanout.Result[*upstream.PackageScore]) string {
			ok := okValues(results)
			sortByDesc(ok, func(r fanout.Result[*upstream.PackageScore]) int64 {
				return int64(r.Value.Score.Final * 1e6)
			})
			entries := make([]string, 0, len(ok))
			for i, r := range ok {
				entries = append(entries, fmt.Sprintf("%d. %s (%s)", i+1, r.Item, formatScore(r.Value.Score.Final)))
			}
			var l report.Lines
			l.List("Ranked by final score", entries)
			return l.String()
		},
	})
}

// Quality implements npmQuality.
func (s *Service) Quality(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[*upstream.PackageScore]{
		title: "Quality",
		items: args.Packages,
		fetch: s.score,
		render: func(_ string, p *upstream.PackageScore) string {
			q := p.Evaluation.Quality
			var l report.Lines
			l.Add("Quality score", formatScore(p.Score.Detail.Quality))
			l.Add("Carefulness", formatScore(q.Carefulness))
			l.Add("Tests", formatScore(q.Tests))
			l.Add("Health", formatScore(q.Health))
			l.Add("Branding", formatScore(q.Branding))
			return l.String()
		},
	})
}

// Maintenance implements npmMaintenance.
func (s *Service) Maintenance(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[*upstream.PackageScore]{
		title: "Maintenance",
		items: args.Packages,
		fetch: s.score,
		render: func(_ string, p *upstream.PackageScore) string {
			m := p.Evaluation.Maintenance
			var l report.Lines
			l.Add("Maintenance score", formatScore(p.Score.Detail.Maintenance))
			l.Add("Release frequency", formatScore(m.ReleasesFrequency))
			l.Add("Commit frequency", formatScore(m.CommitsFrequency))
			l.Add("Open issues", formatScore(m.OpenIssues))
			l.Add("Issue distribution", formatScore(m.IssuesDistribution))
			if issues := p.Collected.GitHub.Issues; issues.Count > 0 {
				l.Addf("GitHub issues", "%d open of %d", issues.OpenCount, issues.Count)
			}
			return l.String()
		},
	})
}

// Popularity implements npmPopularity.
func (s *Service) Popularity(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	return runBatch(ctx, s, batch[*upstream.PackageScore]{
		title: "Popularity",
		items: args.Packages,
		fetch: s.score,
		render: func(_ string, p *upstream.PackageScore) string {
			pop := p.Evaluation.Popularity
			var l report.Lines
			l.Add("Popularity score", formatScore(p.Score.Detail.Popularity))
			l.Add("Community interest", formatCount(int64(pop.CommunityInterest)))
			l.Add("Downloads (npms.io window)", formatCount(int64(pop.DownloadsCount)))
			l.Addf("Downloads acceleration", "%.1f", pop.DownloadsAcceleration)
			l.Add("Dependents", formatCount(int64(pop.DependentsCount)))
			if gh := p.Collected.GitHub; gh.StarsCount > 0 {
				l.Add("GitHub stars", formatCount(int64(gh.StarsCount)))
			}
			return l.String()
		},
	})
}

type repoStats struct {
	repo *upstream.GitHubRepository
}

// RepoStats implements npmRepoStats.
func (s *Service) RepoStats(ctx context.Context, args PackagesArgs) (tool.Result, error) {
	now := s.now()
	return runBatch(ctx, s, batch[repoStats]{
		title: "Repository stats",
		items: args.Packages,
		fetch: func(ctx context.Context, item string) (repoStats, error) {
			name, _ := upstream.SplitSpec(item)
			m, err := s.manifest(ctx, name)
			if err != nil {
				return repoStats{}, err
			}
			raw := m.RepositoryURL()
			if raw == "" {
				return repoStats{}, tool.NewToolError(tool.ToolErrorCodeNotFound, "package declares no repository", nil)
			}
			owner, repo, ok := upstream.ParseGitHubURL(raw)
			if !ok {
				return repoStats{}, tool.NewToolError(tool.ToolErrorCodeNotFound,
					fmt.Sprintf("repository %s is not hosted on GitHub", raw), nil)
			}
			r, err := s.client.Repository(ctx, owner, repo)
			if err != nil {
				return repoStats{}, err
			}
			return repoStats{repo: r}, nil
		},
		render: func(_ string, st repoStats) string {
			r := st.repo
			var l report.Lines
			l.Add("Repository", r.FullName)
			l.Add("Stars", formatCount(int64(r.StargazersCount)))
			l.Add("Forks", formatCount(int64(r.ForksCount)))
			l.Add("Open issues", formatCount(int64(r.OpenIssuesCount)))
			l.Add("Watchers", formatCount(int64(r.SubscribersCount)))
			l.Add("Default branch", r.DefaultBranch)
			if pushed, ok := parseTime(r.PushedAt); ok {
				days := int(now.Sub(pushed).Hours() / 24)
				l.Addf("Last push", "%s (%d days ago)", pushed.Format(time.DateOnly), max(days, 0))
			}
			if r.Archived {
				l.Add("Status", "ARCHIVED")
			}
			return l.String()
		},
	})
}

func rankByDownloads[T any](results []fanout.Result[T], downloads func(T) int64) string {
	sortByDesc(results, func(r fanout.Result[T]) int64 { return downloads(r.Value) })
	entries := make([]string, 0, len(results))
	for i, r := range results {
		entries = append(entries, fmt.Sprintf("%d. %s (%s)", i+1, r.Item, formatCount(downloads(r.Value))))
	}
	var l report.Lines
	l.List("Ranked by downloads", entries)
	return l.String()
}

// okValues returns the successful results, in input order.
func okValues[T any](results []fanout.Result[T]) []fanout.Result[T] {
	out := make([]fanout.Result[T], 0, len(results))
	for _, r := range results {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
