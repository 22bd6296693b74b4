package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/attic/pkg/attic"
)

const modulePath = "github.com/mesh-intelligence/attic"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the attic version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "attic v%s\nmodule: %s\n", attic.Version, modulePath)
			return nil
		},
	}
}
