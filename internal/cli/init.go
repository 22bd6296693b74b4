package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/attic/internal/sqlite"
	"github.com/mesh-intelligence/attic/pkg/types"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize attic configuration and sqlite tables",
		Long: "Create the configuration directory and a default config.yaml, then create\n" +
			"the tables of the configured schema in every sqlite database.",
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	a, err := openArchiver(s)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	for alias, dbCfg := range s.config.Databases {
		if dbCfg.Driver != types.DriverSQLite {
			continue
		}
		db, err := a.DB(alias)
		if err != nil {
			return err
		}
		if err := sqlite.CreateSchema(ctx, db, a.Schema()); err != nil {
			return fmt.Errorf("initialize %s: %w", alias, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "attic initialized (config: %s, %d entity types)\n",
		s.configDir, len(a.Schema().Entities()))
	return nil
}
