package queue

import (
	"context"
	"sync"
	"time"

	"github.com/NordCoder/Herald/internal/domain/queue"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/obs/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Config struct {
	Workers        int           `mapstructure:"workers"`
	BatchSize      int           `mapstructure:"batch_size"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	InProgressTTL  time.Duration `mapstructure:"in_progress_ttl"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
}

var (
	mPicked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_picked_total", Help: "Tasks picked into processing.",
	})
	mOk = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_processed_ok_total", Help: "Tasks processed successfully.",
	})
	mErr = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_processed_err_total", Help: "Runner and handler errors.",
	})
	mParked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_parked_total", Help: "Tasks that exhausted their attempts.",
	})
	mTickDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "queue_tick_duration_seconds", Help: "Tick duration.",
		Buckets: prometheus.DefBuckets,
	})
	mBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "queue_last_batch_size", Help: "Size of last picked batch.",
	})
)

// Runner polls due tasks and hands them to a handler. Delivery is
// at-least-once: a task picked by a worker that dies is picked again once
// InProgressTTL has passed.
type Runner struct {
	log     *zap.Logger
	repo    queue.Repository
	handle  queue.Handler
	cfg     Config
	backoff retry.Backoff
}

func NewRunner(log *zap.Logger, repo queue.Repository, handle queue.Handler, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.InProgressTTL <= 0 {
		cfg.InProgressTTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Runner{
		log:     log.With(zap.String("component", "queue.runner")),
		repo:    repo,
		handle:  instrument(handle),
		cfg:     cfg,
		backoff: retry.ExpoJitter{Base: 2 * time.Second, Max: 10 * time.Minute, Jitter: 0.2},
	}
}

func (r *Runner) WithBackoff(b retry.Backoff) *Runner {
	cp := *r
	cp.backoff = b
	return &cp
}

// Run blocks until ctx is done and all workers have returned.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go r.worker(ctx, &wg, i)
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Runner) worker(ctx context.Context, wg *sync.WaitGroup, n int) {
	defer wg.Done()
	log := r.log.With(zap.Int("worker", n))
	log.Info("queue worker started", zap.Duration("poll", r.cfg.PollInterval))

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("queue worker stop")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick picks one batch and processes it. It returns the number of tasks
// picked and the number that succeeded.
func (r *Runner) tick(ctx context.Context) (int, int) {
	t0 := time.Now()
	defer func() { mTickDur.Observe(time.Since(t0).Seconds()) }()

	tr := otel.Tracer("queue.runner")
	ctxSpan, span := tr.Start(ctx, "queue.tick", trace.WithAttributes(
		attribute.Int("batch.limit", r.cfg.BatchSize),
		attribute.String("in_progress_ttl", r.cfg.InProgressTTL.String()),
	))
	defer span.End()

	tasks, err := r.repo.PickDue(ctxSpan, r.cfg.BatchSize, r.cfg.InProgressTTL)
	if err != nil {
		span.RecordError(err)
		mErr.Inc()
		obs.WithTrace(ctxSpan, r.log).Error("queue pick error", zap.Error(err))
		return 0, 0
	}
	mPicked.Add(float64(len(tasks)))
	mBatchSize.Set(float64(len(tasks)))

	ok := 0
	for _, t := range tasks {
		if r.process(ctxSpan, t) {
			ok++
		}
	}
	return len(tasks), ok
}

func (r *Runner) process(ctx context.Context, t queue.Task) bool {
	log := obs.WithTrace(ctx, r.log).With(
		zap.String("task_id", t.ID),
		zap.String("kind", string(t.Kind)),
		zap.Int("attempt", t.Attempts),
	)

	hctx := ctx
	if r.cfg.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, r.cfg.HandlerTimeout)
		defer cancel()
	}

	herr := r.handle(hctx, t.Kind, t.Payload)
	if herr == nil {
		if err := r.repo.Complete(ctx, t.ID); err != nil {
			mErr.Inc()
			log.Error("queue complete error", zap.Error(err))
			return false
		}
		mOk.Inc()
		return true
	}

	mErr.Inc()
	if t.Attempts >= r.cfg.MaxAttempts {
		mParked.Inc()
		log.Error("queue task parked", zap.Error(herr))
		if err := r.repo.Park(ctx, t.ID, herr.Error()); err != nil {
			log.Error("queue park error", zap.Error(err))
		}
		return false
	}

	delay := r.backoff.Next(t.Attempts - 1)
	log.Warn("queue task failed; retry scheduled", zap.Duration("delay", delay), zap.Error(herr))
	if err := r.repo.Retry(ctx, t.ID, delay, herr.Error()); err != nil {
		log.Error("queue retry error", zap.Error(err))
	}
	return false
}
