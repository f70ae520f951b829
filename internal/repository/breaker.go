package repository

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/axellelanca/funnelstats/internal/logging"
)

// breakerFailureThreshold consecutive failures open the circuit of a remote store.
const breakerFailureThreshold = 5

func newBreaker(name string) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("store", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}
