package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/axellelanca/funnelstats/internal/analytics"
	"github.com/axellelanca/funnelstats/internal/logging"
	"github.com/axellelanca/funnelstats/internal/services"
)

// DashboardSource builds dashboards; *services.AnalyticsService satisfies it.
type DashboardSource interface {
	Dashboard(ctx context.Context, filters analytics.Filters) services.Dashboard
}

// Change is one summary tile whose value moved between two checks.
type Change struct {
	Tile     string
	Previous int
	Current  int
}

// StatsMonitor periodically rebuilds the unfiltered dashboard and logs the
// summary tiles that changed since the previous check.
type StatsMonitor struct {
	source      DashboardSource
	interval    time.Duration
	knownStates map[string]int // tile name -> last value
	mu          sync.Mutex
}

// NewStatsMonitor creates and returns a new instance of StatsMonitor.
func NewStatsMonitor(source DashboardSource, interval time.Duration) *StatsMonitor {
	return &StatsMonitor{
		source:      source,
		interval:    interval,
		knownStates: make(map[string]int),
	}
}

// Start runs a check immediately, then every interval until ctx is done.
// A non-positive interval disables the monitor and Start returns at once.
func (m *StatsMonitor) Start(ctx context.Context) {
	if m.interval <= 0 {
		logging.Info().Msg("[MONITOR] Stats monitor disabled")
		return
	}
	logging.Info().Dur("interval", m.interval).Msg("[MONITOR] Starting stats monitor")
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("[MONITOR] Stats monitor stopped")
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// check compares the current tiles with the known ones. The first check only
// records the initial state. Dashboards built from a failed fetch are ignored.
func (m *StatsMonitor) check(ctx context.Context) []Change {
	d := m.source.Dashboard(ctx, analytics.Filters{})
	if d.Error != "" {
		logging.Warn().Str("error", d.Error).Msg("[MONITOR] Skipping check, analytics store unavailable")
		return nil
	}

	current := tiles(d.Stats)
	m.mu.Lock()
	defer m.mu.Unlock()

	var changes []Change
	first := len(m.knownStates) == 0
	for _, name := range tileNames {
		previous, known := m.knownStates[name]
		m.knownStates[name] = current[name]
		if known && previous != current[name] {
			changes = append(changes, Change{Tile: name, Previous: previous, Current: current[name]})
		}
	}

	if first {
		logging.Info().
			Int("sessions", d.Stats.TotalSessions).
			Int("page_views", d.Stats.TotalPageViews).
			Int("clicks", d.Stats.TotalClicks).
			Int("visitors", d.Stats.UniqueVisitors).
			Msg("[MONITOR] Initial stats")
	}
	for _, c := range changes {
		logging.Info().
			Str("tile", c.Tile).
			Int("previous", c.Previous).
			Int("current", c.Current).
			Msg("[NOTIFICATION] Stats changed")
	}
	return changes
}

var tileNames = []string{"sessions", "page_views", "clicks", "visitors"}

func tiles(s analytics.GlobalStats) map[string]int {
	return map[string]int{
		"sessions":   s.TotalSessions,
		"page_views": s.TotalPageViews,
		"clicks":     s.TotalClicks,
		"visitors":   s.UniqueVisitors,
	}
}
