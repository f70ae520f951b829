package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/axellelanca/funnelstats/cmd"
	"github.com/axellelanca/funnelstats/internal/analytics"
)

var limitFlag int

// SessionsCmd représente la commande 'sessions'
var SessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Liste les sessions, de la plus récente à la plus ancienne.",
	Long: `Liste une ligne par session avec ses compteurs de pages vues et de clics.
Les sessions synthétisées (événements sans session enregistrée) sont marquées d'un *.

Exemple:
  funnelstats sessions --country=IN --limit=20`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		svc, store, err := openAnalytics(c.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		d := svc.Dashboard(c.Context(), filtersFromFlags())
		views := d.Sessions
		if limitFlag > 0 && len(views) > limitFlag {
			views = views[:limitFlag]
		}
		if jsonFlag {
			return printJSON(c.OutOrStdout(), views)
		}
		if err := writeSessions(c.OutOrStdout(), views); err != nil {
			return err
		}
		if d.Error != "" {
			return fmt.Errorf("analytics store unavailable: %s", d.Error)
		}
		return nil
	},
}

func init() {
	addFilterFlags(SessionsCmd)
	addJSONFlag(SessionsCmd)
	SessionsCmd.Flags().IntVar(&limitFlag, "limit", 50, "Maximum number of sessions to print (0 for all)")
	cmd.RootCmd.AddCommand(SessionsCmd)
}

func writeSessions(out io.Writer, views []analytics.SessionView) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tCREATED\tCOUNTRY\tSOURCE\tDEVICE\tVIEWS\tCLICKS\tUNIQUE")
	for _, v := range views {
		id := v.SessionID
		if v.Synthesized {
			id += "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			id, v.CreatedAt.Format("2006-01-02 15:04:05"), v.Country, v.Source, v.Device,
			v.PageViews, v.TotalClicks, v.UniqueClicks)
	}
	return w.Flush()
}
