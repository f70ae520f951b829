package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/axellelanca/funnelstats/cmd"
	"github.com/axellelanca/funnelstats/internal/analytics"
	"github.com/axellelanca/funnelstats/internal/app"
	customerrors "github.com/axellelanca/funnelstats/internal/errors"
	"github.com/axellelanca/funnelstats/internal/models"
	"github.com/axellelanca/funnelstats/internal/services"
	"github.com/axellelanca/funnelstats/internal/workers"
)

var (
	trackSession   string
	trackSource    string
	trackCountry   string
	trackUserAgent string
	trackIP        string
	trackKind      string
	trackPageType  string
	trackPageID    string
	trackContent   string
	trackSearch    string
	trackTitle     string
	trackPayload   string
)

// TrackCmd regroupe les commandes d'enregistrement manuel.
var TrackCmd = &cobra.Command{
	Use:   "track",
	Short: "Enregistre une session ou un événement dans le store SQL.",
}

// TrackSessionCmd représente la commande 'track session'
var TrackSessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Enregistre une session visiteur.",
	Long: `Enregistre une session. Sans --session, un identifiant ULID est généré.
Une session déjà connue n'est pas modifiée.

Exemple:
  funnelstats track session --source=meta --country=US --user-agent="Mozilla/5.0 (iPhone)"`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		return withTracking(c.Context(), func(svc *services.TrackingService) error {
			session, created, err := svc.StartSession(c.Context(), services.SessionInput{
				SessionID: trackSession,
				Source:    trackSource,
				UserAgent: trackUserAgent,
				Country:   trackCountry,
				IPAddress: trackIP,
			})
			if err != nil {
				return err
			}
			if jsonFlag {
				return printJSON(c.OutOrStdout(), session)
			}
			state := "existante"
			if created {
				state = "créée"
			}
			fmt.Fprintf(c.OutOrStdout(), "Session %s (%s): %s, %s, %s\n",
				session.SessionID, state, session.Country, session.Source, session.Device)
			return nil
		})
	},
}

// TrackEventCmd représente la commande 'track event'
var TrackEventCmd = &cobra.Command{
	Use:   "event",
	Short: "Enregistre un événement du funnel.",
	Long: `Enregistre un événement avec le vocabulaire de la propriété configurée
(page_view, blog_click, related_search_click, visit_now_click...).

Exemple:
  funnelstats track event --session=01J... --kind=blog_click --content=12`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		return withTracking(c.Context(), func(svc *services.TrackingService) error {
			id, err := svc.Track(services.EventInput{
				SessionID:  trackSession,
				Kind:       trackKind,
				OccurredAt: time.Now(),
				PageType:   trackPageType,
				PageID:     trackPageID,
				ContentID:  trackContent,
				SearchID:   trackSearch,
				Title:      trackTitle,
				Payload:    trackPayload,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "Événement %s mis en file (%s)\n", id, trackKind)
			return nil
		})
	},
}

func init() {
	TrackSessionCmd.Flags().StringVar(&trackSession, "session", "", "Session id (generated when empty)")
	TrackSessionCmd.Flags().StringVar(&trackSource, "source", "", "Traffic source (defaults to direct)")
	TrackSessionCmd.Flags().StringVar(&trackCountry, "country", "", "ISO country code (defaults to WW)")
	TrackSessionCmd.Flags().StringVar(&trackUserAgent, "user-agent", "", "Visitor user agent, used to classify the device")
	TrackSessionCmd.Flags().StringVar(&trackIP, "ip", "", "Visitor IP address")
	addJSONFlag(TrackSessionCmd)

	TrackEventCmd.Flags().StringVar(&trackSession, "session", "", "Session id of the event")
	TrackEventCmd.Flags().StringVar(&trackKind, "kind", "", "Event kind in the property vocabulary")
	TrackEventCmd.Flags().StringVar(&trackPageType, "page-type", "", "Page type for page views")
	TrackEventCmd.Flags().StringVar(&trackPageID, "page-id", "", "Page id for page views")
	TrackEventCmd.Flags().StringVar(&trackContent, "content", "", "Clicked content id")
	TrackEventCmd.Flags().StringVar(&trackSearch, "search", "", "Clicked related search id")
	TrackEventCmd.Flags().StringVar(&trackTitle, "title", "", "Free-form title of the clicked entity")
	TrackEventCmd.Flags().StringVar(&trackPayload, "payload", "", "Outbound URL or captured email")
	TrackEventCmd.MarkFlagRequired("kind")

	TrackCmd.AddCommand(TrackSessionCmd, TrackEventCmd)
	cmd.RootCmd.AddCommand(TrackCmd)
}

// withTracking ouvre le store SQL, démarre un worker pour la durée de fn puis
// attend que les événements en file soient persistés.
func withTracking(ctx context.Context, fn func(*services.TrackingService) error) error {
	cfg := cmd.Cfg
	store, err := app.OpenStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	if store.Tracking == nil {
		return fmt.Errorf("%w: %s", customerrors.ErrTrackingUnavailable, cfg.Database.Driver)
	}

	property, ok := analytics.LookupProperty(cfg.Analytics.Property)
	if !ok {
		return fmt.Errorf("%w: %q", customerrors.ErrUnknownProperty, cfg.Analytics.Property)
	}

	events := make(chan models.EventRecord, 1)
	wg := workers.StartEventWorkers(1, events, store.Tracking)
	err = fn(services.NewTrackingService(store.Tracking, property, events))
	close(events)
	wg.Wait()
	return err
}
