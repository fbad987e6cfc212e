package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var defineCmd = &cobra.Command{
	Use:   "define <domain.xml>",
	Short: "Define a domain from an XML description",
	Long:  `Parse a libvirt-style domain XML file, register the domain, and persist its definition.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDefine,
}

func runDefine(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read description: %w", err)
	}

	drv, err := newDriver()
	if err != nil {
		return err
	}

	dom, err := drv.Define(data)
	if err != nil {
		return err
	}

	fmt.Printf("Domain '%s' defined (uuid %s)\n", dom.Name(), dom.UUID())
	return nil
}
