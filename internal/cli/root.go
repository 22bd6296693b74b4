// Package cli implements the attic command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/attic/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	using     string
	jsonMode  bool
}

var flags rootFlags

// NewRootCmd creates the top-level "attic" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	flags = rootFlags{}
	root := &cobra.Command{
		Use:   "attic",
		Short: "Archive relational records instead of deleting them",
		Long: "Attic archives rows of a relational database together with everything their\n" +
			"foreign keys cascade to, and restores them again.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory for the default sqlite database (default: .attic)")
	root.PersistentFlags().StringVar(&flags.using, "using", "", "database alias (default: routed alias)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newArchiveCmd())
	root.AddCommand(newUnarchiveCmd())
	root.AddCommand(newPurgeCmd())
	root.AddCommand(newListCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "attic:", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

// exitCode maps caller mistakes to exitUserError and everything else to
// exitSysError.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, types.ErrPrecondition),
		errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrUnknownEntity),
		errors.Is(err, types.ErrUnknownView),
		errors.Is(err, types.ErrRestricted),
		errors.Is(err, errUsage):
		return exitUserError
	default:
		return exitSysError
	}
}
