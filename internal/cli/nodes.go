package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/orbitsplat/internal/nodes"
)

// NewNodesCommand creates the nodes command.
func NewNodesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes [name]",
		Short: "List the available nodes and their ports",
		Long: `List every node with its typed input and output ports, defaults and
bounds. With a name only that node is shown.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			return runNodes(rootOpts, name, cmd)
		},
	}
	return cmd
}

func runNodes(opts *RootOptions, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	catalog := nodes.Default().Catalog()
	if name != "" {
		var found []nodes.NodeInfo
		for _, n := range catalog {
			if n.Name == name {
				found = append(found, n)
			}
		}
		if len(found) == 0 {
			return f.Report(ExitCommandError, "UNKNOWN_NODE", fmt.Sprintf("no node named %q", name), nil)
		}
		catalog = found
	}

	if opts.Format == "json" {
		return f.Success(catalog)
	}
	w := cmd.OutOrStdout()
	for i, n := range catalog {
		if i > 0 {
			fmt.Fprintln(w)
		}
		writeNode(w, n)
	}
	return nil
}

func writeNode(w io.Writer, n nodes.NodeInfo) {
	fmt.Fprintf(w, "%s (%s)", n.Name, n.Category)
	if n.Output {
		fmt.Fprint(w, " [output]")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  inputs:")
	for _, p := range n.Inputs {
		fmt.Fprintf(w, "    %-36s %-15s%s\n", p.Name, p.Type, portConstraints(p))
	}
	fmt.Fprintln(w, "  outputs:")
	for _, p := range n.Outputs {
		fmt.Fprintf(w, "    %-36s %s\n", p.Name, p.Type)
	}
}

func portConstraints(p nodes.PortInfo) string {
	s := ""
	if p.Optional {
		s += " optional"
	}
	if p.Default != nil {
		if str, ok := p.Default.(string); !ok || (str != "" && len(str) <= 40) {
			s += fmt.Sprintf(" default=%v", p.Default)
		}
	}
	if p.Min != nil {
		s += fmt.Sprintf(" min=%g", *p.Min)
	}
	if p.Max != nil {
		s += fmt.Sprintf(" max=%g", *p.Max)
	}
	return s
}
