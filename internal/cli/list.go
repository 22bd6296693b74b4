package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/attic/pkg/attic"
)

func newListCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list <entity>",
		Short: "List rows of an entity with their archive state",
		Long: "List rows of an entity. --state selects non-archived (non), archived (arc)\n" +
			"or all rows (the default).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := attic.ParseView(state)
			if err != nil {
				return err
			}
			s, err := loadSettings()
			if err != nil {
				return err
			}
			a, err := openArchiver(s)
			if err != nil {
				return err
			}
			defer a.Close()

			refs, err := a.List(commandContext(cmd), args[0], view, callOptions(false)...)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if flags.jsonMode {
				return writeJSON(w, refs)
			}
			for _, ref := range refs {
				stamp := "-"
				if ref.ArchivedAt != nil {
					stamp = ref.ArchivedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%v\t%s\n", ref.Key, stamp)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "archive state filter: non, arc or all")
	return cmd
}
