package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/axellelanca/funnelstats/cmd"
	"github.com/axellelanca/funnelstats/internal/analytics"
	"github.com/axellelanca/funnelstats/internal/app"
	"github.com/axellelanca/funnelstats/internal/services"
)

// Flags partagés par les commandes de lecture.
var (
	countryFlag string
	sourceFlag  string
	jsonFlag    bool
)

func addFilterFlags(c *cobra.Command) {
	c.Flags().StringVar(&countryFlag, "country", "", "Only sessions from this country code (WW for unknown)")
	c.Flags().StringVar(&sourceFlag, "source", "", "Only sessions from this traffic source (direct, meta...)")
}

func addJSONFlag(c *cobra.Command) {
	c.Flags().BoolVar(&jsonFlag, "json", false, "Print the result as JSON")
}

func filtersFromFlags() analytics.Filters {
	return analytics.Filters{Country: countryFlag, Source: sourceFlag}
}

// openAnalytics ouvre le store configuré et construit le service d'analytics.
func openAnalytics(ctx context.Context) (*services.AnalyticsService, *app.Store, error) {
	cfg := cmd.Cfg
	store, err := app.OpenStore(ctx, cfg, false)
	if err != nil {
		return nil, nil, err
	}
	svc, err := services.NewAnalyticsService(store.Analytics, services.AnalyticsOptions{
		Property:  cfg.Analytics.Property,
		DetailTTL: cfg.DetailCacheTTL(),
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return svc, store, nil
}

// printJSON écrit v indenté sur w.
func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
