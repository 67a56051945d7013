// Package health tracks upstream reachability. A Monitor probes each
// upstream on a cron schedule, remembers the last result per upstream, and
// reports state transitions to the tool observer.
package health
