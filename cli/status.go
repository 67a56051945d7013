package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/petal-labs/npmsentinel/fanout"
	"github.com/petal-labs/npmsentinel/upstream"
)

// NewStatusCmd creates the "status" subcommand.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probe every upstream once and print reachability",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	a.monitor.RunOnce(cmd.Context())

	down := 0
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "UPSTREAM\tSTATUS\tHTTP\tLATENCY\tERROR")
	for _, state := range a.monitor.Snapshot() {
		status := "up"
		if !state.Up {
			status = "down"
			down++
		}
		code := "-"
		if state.Result.StatusCode > 0 {
			code = fmt.Sprintf("%d", state.Result.StatusCode)
		}
		errText := "-"
		if state.Result.Err != nil {
			errText = fanout.Reason(state.Result.Err)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			upstream.DisplayName(state.Upstream),
			status,
			code,
			state.Result.Latency.Round(time.Millisecond),
			errText,
		)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	if down > 0 {
		return exitError(exitRuntime, "%d upstream(s) down", down)
	}
	return nil
}
