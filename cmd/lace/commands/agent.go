package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/runlace/core/internal/agent"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "inspect the persona registry",
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "list registered personas",
	RunE:  runAgentList,
}

func init() {
	agentCmd.AddCommand(agentListCmd)
}

func runAgentList(cmd *cobra.Command, args []string) error {
	reg := agent.NewRegistry()

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMODE\tBUILT-IN\tDESCRIPTION")
	for _, a := range reg.List() {
		builtIn := "no"
		if a.BuiltIn {
			builtIn = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Name, a.Mode, builtIn, a.Description)
	}
	return w.Flush()
}
