package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/attic/pkg/attic"
	"github.com/mesh-intelligence/attic/pkg/types"
)

// operation runs one of Archiver's record operations.
type operation func(a *attic.Archiver, cmd *cobra.Command, ref *types.Ref, opts []attic.CallOption) (types.Summary, error)

func newRecordCmd(use, short string, op operation, withKeepParents bool) *cobra.Command {
	var keepParents bool
	cmd := &cobra.Command{
		Use:   use + " <entity> <key>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			a, err := openArchiver(s)
			if err != nil {
				return err
			}
			defer a.Close()

			ref, err := loadRef(commandContext(cmd), a, args[0], args[1])
			if err != nil {
				return err
			}
			sum, err := op(a, cmd, ref, callOptions(keepParents))
			if err != nil {
				return fmt.Errorf("%s %s %s: %w", use, args[0], args[1], err)
			}
			return printSummary(cmd.OutOrStdout(), use, ref, sum)
		},
	}
	if withKeepParents {
		cmd.Flags().BoolVar(&keepParents, "keep-parents", false, "leave rows this row extends through a parent link alone")
	}
	return cmd
}

func newArchiveCmd() *cobra.Command {
	return newRecordCmd("archive", "Archive a row and everything that cascades from it",
		func(a *attic.Archiver, cmd *cobra.Command, ref *types.Ref, opts []attic.CallOption) (types.Summary, error) {
			return a.Archive(commandContext(cmd), ref, opts...)
		}, true)
}

func newUnarchiveCmd() *cobra.Command {
	return newRecordCmd("unarchive", "Restore an archived row and the rows archived with it",
		func(a *attic.Archiver, cmd *cobra.Command, ref *types.Ref, opts []attic.CallOption) (types.Summary, error) {
			return a.Unarchive(commandContext(cmd), ref, opts...)
		}, true)
}

func newPurgeCmd() *cobra.Command {
	return newRecordCmd("purge", "Physically delete a row, cascading as the schema says",
		func(a *attic.Archiver, cmd *cobra.Command, ref *types.Ref, opts []attic.CallOption) (types.Summary, error) {
			return a.ForceDelete(commandContext(cmd), ref, opts...)
		}, true)
}
