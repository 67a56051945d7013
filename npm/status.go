package npm

import (
	"context"
	"fmt"
	"time"

	"github.com/petal-labs/npmsentinel/fanout"
	"github.com/petal-labs/npmsentinel/report"
	"github.com/petal-labs/npmsentinel/tool"
	"github.com/petal-labs/npmsentinel/upstream"
)

// StatusArgs is the input of upstreamStatus.
type StatusArgs struct {
	Upstreams []string `json:"upstreams,omitempty" jsonschema_description:"upstream identifiers to probe; empty probes all of npm-registry, npm-downloads, bundlephobia, osv, npms, github"`
}

// UpstreamStatus implements upstreamStatus. It fans out over upstream
// names rather than packages.
func (s *Service) UpstreamStatus(ctx context.Context, args StatusArgs) (tool.Result, error) {
	names := args.Upstreams
	if len(names) == 0 {
		names = upstream.Names()
	}
	results, err := fanout.Run(ctx, names, s.prober.Probe, fanout.WithItemTimeout(s.itemTimeout))
	if err != nil {
		return tool.Result{}, err
	}

	rep := report.FromResults("Upstream status", results, func(name string, r upstream.ProbeResult) string {
		var l report.Lines
		l.Add("Service", upstream.DisplayName(name))
		if r.Up() {
			l.Add("Status", "up")
		} else {
			l.Add("Status", "down")
		}
		if r.StatusCode > 0 {
			l.Addf("HTTP status", "%d", r.StatusCode)
		}
		l.Add("Latency", r.Latency.Round(time.Millisecond).String())
		if r.Err != nil {
			l.Add("Error", fanout.Reason(r.Err))
		}
		return l.String()
	})

	up := 0
	for _, r := range results {
		if r.OK() && r.Value.Up() {
			up++
		}
	}
	rep.Summary = fmt.Sprintf("%d of %d upstreams up.", up, len(results))
	return tool.Result{Text: rep.String(), Items: len(results), Failures: len(results) - up}, nil
}
