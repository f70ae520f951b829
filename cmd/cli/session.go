package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/axellelanca/funnelstats/cmd"
	"github.com/axellelanca/funnelstats/internal/analytics"
)

// SessionCmd représente la commande 'session'
var SessionCmd = &cobra.Command{
	Use:   "session [session-id]",
	Short: "Affiche la carte d'une session et son détail.",
	Long:  `Affiche les compteurs d'une session puis le détail de ses clics et des emails capturés.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		sessionID := args[0]

		svc, store, err := openAnalytics(c.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		view, err := svc.Session(c.Context(), sessionID)
		if err != nil {
			return err
		}
		card, err := svc.Expand(c.Context(), sessionID)
		if err != nil {
			return err
		}

		if jsonFlag {
			return printJSON(c.OutOrStdout(), struct {
				Session analytics.SessionView    `json:"session"`
				Detail  *analytics.SessionDetail `json:"detail"`
			}{view, card.Detail})
		}
		writeSession(c.OutOrStdout(), view, card.Detail)
		return nil
	},
}

func init() {
	addJSONFlag(SessionCmd)
	cmd.RootCmd.AddCommand(SessionCmd)
}

func writeSession(out io.Writer, v analytics.SessionView, d *analytics.SessionDetail) {
	fmt.Fprintf(out, "Session: %s", v.SessionID)
	if v.Synthesized {
		fmt.Fprint(out, " (synthétisée)")
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "IP: %s  Pays: %s  Source: %s  Appareil: %s\n", v.IPAddress, v.Country, v.Source, v.Device)
	fmt.Fprintf(out, "Créée: %s  Dernière activité: %s\n",
		v.CreatedAt.Format("2006-01-02 15:04:05"), v.LastActive.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Pages vues: %d  Clics: %d (%d uniques)\n", v.PageViews, v.TotalClicks, v.UniqueClicks)

	if d == nil {
		return
	}
	writeBreakdown(out, "Contenus cliqués", d.ContentClicks)
	writeBreakdown(out, "Recherches cliquées", d.SearchClicks)
	writeBreakdown(out, "Clics sortants", d.OutboundClicks)
	if len(d.Emails) > 0 {
		fmt.Fprintln(out, "\nEmails capturés:")
		for _, e := range d.Emails {
			fmt.Fprintf(out, "  %s  %s\n", e.CapturedAt.Format("2006-01-02 15:04:05"), e.Address)
		}
	}
}
