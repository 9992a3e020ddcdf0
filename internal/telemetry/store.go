package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/skybridge-io/mavfabric/internal/config"
	"github.com/skybridge-io/mavfabric/internal/hub"
)

const reviveBatchSize = 10

// Store is the Telemetry Store-and-Forward component (§4.6): it
// subscribes to the Hub's telemetry projection queue, buffers records
// in memory with periodic disk checkpoints, and runs an independent
// sync loop against the central REST ingestion endpoint plus a
// best-effort realtime side-channel.
type Store struct {
	log       *slog.Logger
	vehicleID string
	cfg       config.TelemetryConfig

	buf      *buffer
	ingest   *ingestClient
	realtime *realtimeClient

	recordsSinceCheckpoint int
}

// New builds a Store from config. vehicleID identifies this fabric
// instance in every uploaded record and the REST payload's "source"
// field.
func New(log *slog.Logger, cfg config.TelemetryConfig, vehicleID string) *Store {
	return &Store{
		log:       log,
		vehicleID: vehicleID,
		cfg:       cfg,
		buf:       newBuffer(cfg.MaxMemoryRecords),
		ingest:    newIngestClient(cfg.IngestBaseURL, cfg.IngestAPIKey, vehicleID),
		realtime:  newRealtimeClient(log, cfg.RealtimeURL, cfg.IngestAPIKey),
	}
}

// Stats returns the buffer's current statistics for the gateway's
// connection_status/stats_update payloads.
func (s *Store) Stats() Stats {
	_, _, stats := s.buf.snapshot()
	return stats
}

// Run loads any persisted buffer, then drives intake, sync, checkpoint,
// and the realtime side-channel until ctx is canceled, flushing to disk
// on the way out (§5 shutdown order: "flush Telemetry Store to disk").
func (s *Store) Run(ctx context.Context, events <-chan hub.TelemetryEvent) {
	main, failed, stats := load(s.log, s.cfg.BufferFile)
	s.buf.restore(main, failed, stats)

	go s.realtime.Run(ctx)

	syncInterval := time.Duration(s.cfg.SyncIntervalSec) * time.Second
	if syncInterval <= 0 {
		syncInterval = 5 * time.Second
	}
	syncTicker := time.NewTicker(syncInterval)
	defer syncTicker.Stop()

	retentionTicker := time.NewTicker(time.Minute)
	defer retentionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.checkpoint()
			return

		case ev, ok := <-events:
			if !ok {
				s.checkpoint()
				return
			}
			s.intake(ev)

		case <-syncTicker.C:
			s.syncOnce(ctx)

		case <-retentionTicker.C:
			s.buf.evictStale(time.Now())
		}
	}
}

func (s *Store) intake(ev hub.TelemetryEvent) {
	captureTime := float64(time.Now().UnixNano()) / 1e9
	r := fromDelta(s.vehicleID, captureTime, ev.Delta)
	if len(r.Data) == 0 {
		return
	}
	s.buf.add(r)
	s.realtime.sendRecord(r)

	s.recordsSinceCheckpoint++
	if s.recordsSinceCheckpoint >= s.cfg.CheckpointInterval {
		s.checkpoint()
	}
}

func (s *Store) checkpoint() {
	main, failed, stats := s.buf.snapshot()
	save(s.log, s.cfg.BufferFile, main, failed, stats)
	s.recordsSinceCheckpoint = 0
}

// syncOnce runs one sync-loop tick: one batch upload attempt plus a
// periodic re-admission of failed records (§4.6 steps 1-5).
func (s *Store) syncOnce(ctx context.Context) {
	batch := s.buf.pending(s.cfg.BatchSize)
	if len(batch) > 0 {
		if err := s.ingest.post(ctx, batch); err != nil {
			s.log.Warn("telemetry sync failed", "err", err, "batch_size", len(batch))
			s.buf.markFailed(batch, s.cfg.MaxRetries)
		} else {
			s.buf.markSynced(batch)
		}
	}

	revived := s.buf.reviveFailed(reviveBatchSize)
	if len(revived) > 0 {
		s.log.Info("retrying failed telemetry records", "count", len(revived))
	}
}
