package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/axellelanca/funnelstats/cmd"
	"github.com/axellelanca/funnelstats/internal/analytics"
	"github.com/axellelanca/funnelstats/internal/services"
)

// StatsCmd représente la commande 'stats'
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Affiche les compteurs globaux du dashboard.",
	Long: `Affiche le nombre de sessions, de pages vues, de clics et de visiteurs uniques,
ainsi que les contenus et recherches les plus cliqués.

Exemple:
  funnelstats stats --country=US --source=meta`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	addFilterFlags(StatsCmd)
	addJSONFlag(StatsCmd)
	cmd.RootCmd.AddCommand(StatsCmd)
}

// runStats exécute la logique pour la commande stats
func runStats(c *cobra.Command, args []string) error {
	svc, store, err := openAnalytics(c.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	d := svc.Dashboard(c.Context(), filtersFromFlags())
	if jsonFlag {
		return printJSON(c.OutOrStdout(), d)
	}
	writeStats(c.OutOrStdout(), d)
	if d.Error != "" {
		return fmt.Errorf("analytics store unavailable: %s", d.Error)
	}
	return nil
}

func writeStats(out io.Writer, d services.Dashboard) {
	fmt.Fprintf(out, "Statistiques pour %s", d.Property)
	if !d.Filters.IsZero() {
		fmt.Fprintf(out, " (%s)", d.Filters.Key())
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Sessions: %d\n", d.Stats.TotalSessions)
	fmt.Fprintf(out, "Pages vues: %d\n", d.Stats.TotalPageViews)
	fmt.Fprintf(out, "Total de clics: %d\n", d.Stats.TotalClicks)
	fmt.Fprintf(out, "Visiteurs uniques: %d\n", d.Stats.UniqueVisitors)
	if d.SkippedEvents > 0 {
		fmt.Fprintf(out, "Événements ignorés: %d\n", d.SkippedEvents)
	}

	writeBreakdown(out, "Contenus les plus cliqués", d.ContentBreakdown)
	writeBreakdown(out, "Recherches les plus cliquées", d.SearchBreakdown)
}

// writeBreakdown affiche les dix premières entités d'une répartition.
func writeBreakdown(out io.Writer, title string, rows []analytics.Breakdown) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	for i, b := range rows {
		if i == 10 {
			break
		}
		fmt.Fprintf(out, "  %3d clics (%d uniques)  %s\n", b.TotalClicks, b.UniqueVisitors, b.Title)
	}
}
