package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/axellelanca/funnelstats/cmd"
	"github.com/axellelanca/funnelstats/internal/database"
	customerrors "github.com/axellelanca/funnelstats/internal/errors"
)

// MigrateCmd represents the 'migrate' command
// This command handles database schema creation and updates
var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Executes database migrations to create or update tables.",
	Long: `This command connects to the configured SQL database (SQLite or Postgres)
and executes GORM automatic migrations to create the analytics_sessions,
analytics_events, blogs and related_searches tables.`,
	RunE: func(c *cobra.Command, args []string) error {
		cfg := cmd.Cfg
		if !database.IsSQL(cfg.Database.Driver) {
			return fmt.Errorf("%w: migrations only apply to sqlite and postgres, not %q",
				customerrors.ErrUnsupportedDriver, cfg.Database.Driver)
		}

		db, err := database.Open(cfg)
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := database.Migrate(db); err != nil {
			return err
		}

		fmt.Fprintln(c.OutOrStdout(), "Database migrations executed successfully.")
		return nil
	},
}

func init() {
	cmd.RootCmd.AddCommand(MigrateCmd)
}
