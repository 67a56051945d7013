package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/petal-labs/npmsentinel/fanout"
	"github.com/petal-labs/npmsentinel/tool"
)

// NewToolsCmd creates the "tools" command group.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and invoke tools without an MCP client",
	}
	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsInspectCmd())
	cmd.AddCommand(newToolsCallCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tools",
		Args:  cobra.NoArgs,
		RunE:  runToolsList,
	}
}

func runToolsList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "NAME\tTITLE\tARGUMENTS")
	for _, d := range a.registry.List() {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", d.Name, valueOrDash(d.Title), valueOrDash(argumentSummary(d)))
	}
	return writer.Flush()
}

func newToolsInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <name>",
		Short: "Print a tool's description and input schema",
		Args:  cobra.ExactArgs(1),
		RunE:  runToolsInspect,
	}
}

func runToolsInspect(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	d, ok := a.registry.Get(strings.TrimSpace(args[0]))
	if !ok {
		return exitError(exitValidation, "unknown tool %q", args[0])
	}

	payload := map[string]any{
		"name":        d.Name,
		"title":       d.Title,
		"description": d.Description,
		"inputSchema": d.InputSchema,
		"annotations": d.Annotations,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "encoding tool: %v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func newToolsCallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call <name>",
		Short: "Invoke a tool once and print its report",
		Example: `  npmsentinel tools call npmLatest --args '{"packages":["react","vue"]}'
  npmsentinel tools call npmSearch --args '{"query":"http client","limit":5}'`,
		Args: cobra.ExactArgs(1),
		RunE: runToolsCall,
	}
	cmd.Flags().String("args", "{}", "Tool arguments as a JSON object")
	return cmd
}

func runToolsCall(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	raw, _ := cmd.Flags().GetString("args")
	var callArgs map[string]any
	if err := json.Unmarshal([]byte(raw), &callArgs); err != nil {
		return exitError(exitValidation, "invalid --args JSON: %v", err)
	}
	if callArgs == nil {
		callArgs = map[string]any{}
	}

	ctx := tool.WithRequestID(cmd.Context(), "cli")
	result, err := a.registry.Dispatch(ctx, strings.TrimSpace(args[0]), callArgs)
	if err != nil {
		code := exitToolFailed
		if errors.Is(err, tool.ErrUnknownTool) || errors.Is(err, tool.ErrSchemaMismatch) {
			code = exitValidation
		}
		return exitError(code, "Error: %s", fanout.Reason(err))
	}
	fmt.Fprintln(cmd.OutOrStdout(), result.Text)
	return nil
}

// argumentSummary lists top-level argument names, required ones marked
// with an asterisk.
func argumentSummary(d tool.Descriptor) string {
	shape := d.Shape()
	names := make([]string, 0, len(shape.Properties))
	for _, name := range shape.PropertyNames() {
		if shape.Properties[name].Required {
			name += "*"
		}
		names = append(names, name)
	}
	return strings.Join(names, ",")
}

func valueOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
