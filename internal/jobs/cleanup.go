// Package jobs runs scheduled maintenance against the datastore: purging
// expired idempotency records and read notifications past their retention.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/tbourn/go-realtime-chat/internal/config"
	"github.com/tbourn/go-realtime-chat/internal/repo"
)

// runTimeout bounds one cleanup run.
const runTimeout = time.Minute

// Cleanup purges stale rows.
type Cleanup struct {
	DB        *gorm.DB
	Retention time.Duration
	Log       zerolog.Logger

	now func() time.Time
}

// Result reports what one run removed.
type Result struct {
	Idempotency   int64
	Notifications int64
}

// Run performs one cleanup pass. A failure in one purge does not skip the
// other; the first error is returned.
func (j *Cleanup) Run(ctx context.Context) (Result, error) {
	ctx, span := otel.Tracer("jobs/Cleanup").Start(ctx, "Run")
	defer span.End()

	now := time.Now().UTC()
	if j.now != nil {
		now = j.now()
	}

	var (
		res      Result
		firstErr error
	)
	n, err := repo.PurgeExpiredIdempotency(ctx, j.DB, now)
	if err != nil {
		firstErr = err
		j.Log.Error().Err(err).Msg("purge idempotency failed")
	}
	res.Idempotency = n

	n, err = repo.PurgeReadNotifications(ctx, j.DB, now.Add(-j.Retention))
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		j.Log.Error().Err(err).Msg("purge notifications failed")
	}
	res.Notifications = n

	j.Log.Info().
		Int64("idempotency", res.Idempotency).
		Int64("notifications", res.Notifications).
		Msg("cleanup done")
	return res, firstErr
}

// Start schedules the cleanup on cfg.CleanupSchedule and returns the running
// scheduler. Stop it with Stop(), which waits for a run in progress.
func Start(db *gorm.DB, cfg config.JobsConfig, log zerolog.Logger) (*cron.Cron, error) {
	job := &Cleanup{
		DB:        db,
		Retention: cfg.NotificationRetention,
		Log:       log.With().Str("job", "cleanup").Logger(),
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(cfg.CleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		_, _ = job.Run(ctx)
	}); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
