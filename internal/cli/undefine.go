package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var undefineCmd = &cobra.Command{
	Use:   "undefine <name>",
	Short: "Remove a stopped domain's definition",
	Args:  cobra.ExactArgs(1),
	RunE:  runUndefine,
}

func runUndefine(cmd *cobra.Command, args []string) error {
	drv, err := newDriver()
	if err != nil {
		return err
	}

	if err := drv.Undefine(args[0]); err != nil {
		return err
	}

	fmt.Printf("Domain '%s' undefined\n", args[0])
	return nil
}
