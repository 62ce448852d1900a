package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tvwebhook/internal/service"
)

// SnapshotFunc reads the current pipeline counters.
type SnapshotFunc func() service.StatsSnapshot

// StatsReporter logs how many alerts were accepted and rejected per bucket.
type StatsReporter struct {
	read   SnapshotFunc
	logger zerolog.Logger

	mu   sync.Mutex
	prev service.StatsSnapshot
}

// NewStatsReporter wires a reporter to a counter source.
func NewStatsReporter(read SnapshotFunc, logger zerolog.Logger) *StatsReporter {
	return &StatsReporter{
		read:   read,
		logger: logger.With().Str("component", "stats").Logger(),
	}
}

// Tick logs the delta since the previous tick. It matches TickFunc.
func (r *StatsReporter) Tick(_ context.Context, bucket time.Time) error {
	delta := r.advance()

	event := r.logger.Info()
	if delta.StoreFailures > 0 || delta.MirrorFailures > 0 || delta.NotifyFailures > 0 {
		event = r.logger.Warn()
	}
	event.Time("bucket", bucket).
		Int64("accepted", delta.Accepted).
		Int64("rejected", delta.Rejected()).
		Int64("no_body", delta.NoBody).
		Int64("bad_token", delta.BadToken).
		Int64("selftest_disabled", delta.SelfTestOff).
		Int64("store_failures", delta.StoreFailures).
		Int64("mirror_failures", delta.MirrorFailures).
		Int64("notify_failures", delta.NotifyFailures).
		Msg("ingestion summary")
	return nil
}

func (r *StatsReporter) advance() service.StatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.read()
	delta := cur.Sub(r.prev)
	r.prev = cur
	return delta
}
