package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Windi-Fikriyansyah/platform_be_servis/internal/metrics"
)

// Job is a unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// PaymentExpirer is the slice of the order engine the expiry job needs.
type PaymentExpirer interface {
	ExpireStalePayments(ctx context.Context, timeout time.Duration) (int, error)
}

// PaymentExpiryJob fails payments nobody settled within Timeout.
type PaymentExpiryJob struct {
	Orders  PaymentExpirer
	Timeout time.Duration
	Metrics *metrics.Metrics
	Log     *zap.Logger
}

func (j *PaymentExpiryJob) Name() string { return "payment_expiry" }

func (j *PaymentExpiryJob) Run(ctx context.Context) error {
	n, err := j.Orders.ExpireStalePayments(ctx, j.Timeout)
	if n > 0 {
		j.Metrics.ExpiredPaymentsSwept.Add(float64(n))
		j.Log.Info("expired stale payments", zap.Int("count", n))
	}
	return err
}

// Scheduler runs jobs on cron specs. A run never overlaps the previous one.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	timeout time.Duration
}

func NewScheduler(log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		log:     log,
		timeout: time.Minute,
	}
}

func (s *Scheduler) Add(spec string, job Job) error {
	if _, err := s.cron.AddJob(spec, s.wrap(job)); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	return nil
}

func (s *Scheduler) wrap(job Job) cron.Job {
	name := job.Name()
	return cron.FuncJob(func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if err := job.Run(ctx); err != nil {
			s.log.Error("job failed", zap.String("job", name), zap.Error(err))
		}
		s.log.Debug("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
