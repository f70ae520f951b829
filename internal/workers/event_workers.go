// Package workers persists tracked funnel events off the request path.
package workers

import (
	"context"
	"sync"
	"time"

	customerrors "github.com/axellelanca/funnelstats/internal/errors"
	"github.com/axellelanca/funnelstats/internal/logging"
	"github.com/axellelanca/funnelstats/internal/metrics"
	"github.com/axellelanca/funnelstats/internal/models"
	"github.com/axellelanca/funnelstats/internal/repository"
)

// persistTimeout bounds one database write.
const persistTimeout = 5 * time.Second

// StartEventWorkers launches a pool of worker goroutines to persist tracked events asynchronously.
// Parameters:
//   - workerCount: number of concurrent workers to spawn
//   - events: channel that receives the events to be persisted
//   - repo: repository used to write the events
//
// The returned WaitGroup is done once events is closed and drained.
func StartEventWorkers(workerCount int, events <-chan models.EventRecord, repo repository.TrackingRepository) *sync.WaitGroup {
	if workerCount < 1 {
		workerCount = 1
	}
	logging.Info().Int("workers", workerCount).Msg("Starting event workers")

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func(id int) {
			defer wg.Done()
			eventWorker(id, events, repo)
		}(i)
	}
	return &wg
}

// eventWorker persists events until the channel is closed. A failed write is
// logged and counted; the worker keeps going.
func eventWorker(id int, events <-chan models.EventRecord, repo repository.TrackingRepository) {
	log := logging.With("workers").With().Int("worker", id).Logger()
	for record := range events {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := repo.CreateEvent(ctx, record.ToModel())
		cancel()

		if err != nil {
			metrics.RecordTracked("failed")
			log.Error().Err(customerrors.ErrEventRecordingFailed{
				SessionID: record.SessionID,
				Kind:      record.Kind,
				Reason:    err.Error(),
			}).Msg("Failed to save event")
			continue
		}
		metrics.RecordTracked("persisted")
		log.Debug().Str("session_id", record.SessionID).Str("kind", record.Kind).Msg("Event recorded")
	}
}
