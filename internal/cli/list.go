package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List defined domains",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	drv, err := newDriver()
	if err != nil {
		return err
	}

	domains := drv.List()
	if len(domains) == 0 {
		fmt.Println("No domains defined.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tUUID\tSTATE")
	for _, d := range domains {
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name(), d.UUID(), d.State())
	}
	return w.Flush()
}
