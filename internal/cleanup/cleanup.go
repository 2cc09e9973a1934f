package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Expirer deletes records that expired before the given time.
type Expirer interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// Job periodically removes codes and tokens that expired more than
// retention ago. Expiry is enforced at read time, so the job only reclaims
// space.
type Job struct {
	expirer   Expirer
	interval  time.Duration
	retention time.Duration
	nowFunc   func() time.Time
	onDeleted func(int64)
}

type JobOption func(*Job)

func WithNowFunc(now func() time.Time) JobOption {
	return func(j *Job) {
		j.nowFunc = now
	}
}

// WithOnDeleted registers a callback receiving the count of each sweep.
func WithOnDeleted(fn func(int64)) JobOption {
	return func(j *Job) {
		j.onDeleted = fn
	}
}

func New(expirer Expirer, interval, retention time.Duration, options ...JobOption) *Job {
	j := &Job{
		expirer:   expirer,
		interval:  interval,
		retention: retention,
		nowFunc:   time.Now,
	}
	for _, opt := range options {
		opt(j)
	}
	return j
}

// RunOnce performs a single sweep.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	before := j.nowFunc().Add(-j.retention)
	n, err := j.expirer.DeleteExpired(ctx, before)
	if n > 0 && j.onDeleted != nil {
		j.onDeleted(n)
	}
	return n, err
}

// Run sweeps every interval until ctx is cancelled. A non-positive interval
// disables the job.
func (j *Job) Run(ctx context.Context) error {
	if j.interval <= 0 {
		log.Info().Msg("cleanup job disabled")
		return nil
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := j.RunOnce(ctx)
			if err != nil {
				log.Error().Err(err).Msg("cleanup sweep failed")
				continue
			}
			log.Debug().Int64("deleted", n).Msg("cleanup sweep finished")
		}
	}
}
