package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Herald/internal/domain/events"
	"github.com/NordCoder/Herald/internal/domain/inbox"
	"github.com/NordCoder/Herald/internal/domain/job"
	"github.com/NordCoder/Herald/internal/domain/mail"
	"github.com/NordCoder/Herald/internal/domain/paging"
	"github.com/NordCoder/Herald/internal/domain/queue"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/obs/retry"
	"github.com/NordCoder/Herald/internal/pkg/validate"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Tx runs fn inside one database transaction carried by ctx.
type Tx interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Deps struct {
	Jobs     job.Repo
	Inbox    inbox.Repo
	Queue    queue.Queue
	Tx       Tx
	Resolver *Resolver
	// Announcer is optional; without it SendEmail is ignored.
	Announcer *Announcer
	// Events is optional.
	Events events.DeliveryEvents
	Clock  func() time.Time
	NewID  func() string
	Log    *zap.Logger
}

// Engine owns the job lifecycle: it persists jobs, schedules deferred
// ones on the queue and fans due jobs out into inbox rows.
type Engine struct {
	jobs      job.Repo
	inbox     inbox.Repo
	queue     queue.Queue
	tx        Tx
	resolver  *Resolver
	announcer *Announcer
	events    events.DeliveryEvents
	clk       func() time.Time
	newID     func() string
	log       *zap.Logger
}

func New(d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Engine{
		jobs:      d.Jobs,
		inbox:     d.Inbox,
		queue:     d.Queue,
		tx:        d.Tx,
		resolver:  d.Resolver,
		announcer: d.Announcer,
		events:    d.Events,
		clk:       d.Clock,
		newID:     d.NewID,
		log:       d.Log.With(zap.String("component", "notifier.engine")),
	}
}

var tracer = otel.Tracer("notifier.engine")

const (
	// sideEffectTimeout bounds work that must outlive the caller's context.
	sideEffectTimeout = 30 * time.Second
	// announceRounds caps how often undelivered recipients are queued again.
	announceRounds     = 4
	announceRetryDelay = time.Minute
)

// announceTask is the payload of a KindAnnounce queue task.
type announceTask struct {
	Job   job.Job  `json:"job"`
	To    []string `json:"to"`
	Round int      `json:"round"`
}

func (e *Engine) Create(ctx context.Context, d job.Draft) (*job.Job, error) {
	if err := validate.Struct(d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	ctx, span := tracer.Start(ctx, "engine.create")
	defer span.End()

	now := e.clk()
	j := d.Job(e.newID(), now)
	span.SetAttributes(attribute.String("job.id", j.ID), attribute.Bool("job.scheduled", !j.Due(now)))
	log := obs.WithTrace(ctx, e.log).With(zap.String("job_id", j.ID))

	if j.Due(now) {
		if err := e.jobs.Create(ctx, j); err != nil {
			mJobs.WithLabelValues("create", "error").Inc()
			span.RecordError(err)
			return nil, err
		}
		if err := e.deliverNow(ctx, j, log); err != nil {
			mJobs.WithLabelValues("create", "error").Inc()
			span.RecordError(err)
			return nil, err
		}
		if !j.IsSent {
			mJobs.WithLabelValues("create", "deferred").Inc()
			return j, nil
		}
		mJobs.WithLabelValues("create", "delivered").Inc()
		log.Info("job delivered on create")
		return j, nil
	}

	payload, err := queue.Wrap(queue.KindScheduled, j)
	if err != nil {
		return nil, fmt.Errorf("encode queue payload: %w", err)
	}
	err = e.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := e.jobs.Create(ctx, j); err != nil {
			return err
		}
		handle, err := e.queue.Enqueue(ctx, queue.KindScheduled, payload, j.ScheduleDate.Sub(now))
		if err != nil {
			return fmt.Errorf("%w: enqueue: %w", ErrQueueOperation, err)
		}
		if err := e.jobs.SetQueueJobID(ctx, j.ID, handle); err != nil {
			return err
		}
		j.QueueJobID = &handle
		return nil
	})
	if err != nil {
		mJobs.WithLabelValues("create", "error").Inc()
		span.SetStatus(codes.Error, "schedule failed")
		span.RecordError(err)
		log.Error("schedule job", zap.Error(err))
		return nil, err
	}
	mJobs.WithLabelValues("create", "scheduled").Inc()
	log.Info("job scheduled", zap.Time("schedule_date", *j.ScheduleDate), zap.String("queue_job_id", *j.QueueJobID))
	return j, nil
}

func (e *Engine) Get(ctx context.Context, id string) (*job.Job, error) {
	j, err := e.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, mapJobErr(err, ErrConflict)
	}
	return j, nil
}

func (e *Engine) List(ctx context.Context, f job.Filter, p paging.Page) ([]*job.Job, int, error) {
	return e.jobs.List(ctx, f, p)
}

func (e *Engine) Update(ctx context.Context, id string, p job.Patch) (*job.Job, error) {
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	ctx, span := tracer.Start(ctx, "engine.update", trace.WithAttributes(attribute.String("job.id", id)))
	defer span.End()
	log := obs.WithTrace(ctx, e.log).With(zap.String("job_id", id))

	cur, err := e.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, mapJobErr(err, ErrConflict)
	}
	if cur.IsSent {
		mJobs.WithLabelValues("update", "conflict").Inc()
		return nil, fmt.Errorf("%w: job %s", ErrConflict, id)
	}

	now := e.clk()
	change := p.Apply(cur, now)
	if err := e.jobs.Update(ctx, cur); err != nil {
		mJobs.WithLabelValues("update", "error").Inc()
		span.RecordError(err)
		return nil, mapJobErr(err, ErrConflict)
	}

	switch {
	case change == job.ScheduleCleared:
		if cur.QueueJobID != nil {
			e.queueCall(ctx, log, "remove", e.queue.Remove(ctx, *cur.QueueJobID))
		}
		if err := e.deliverNow(ctx, cur, log); err != nil {
			mJobs.WithLabelValues("update", "error").Inc()
			return nil, err
		}
		if !cur.IsSent {
			mJobs.WithLabelValues("update", "deferred").Inc()
			return cur, nil
		}
		mJobs.WithLabelValues("update", "delivered").Inc()
		log.Info("schedule cleared, job delivered")
		return cur, nil

	case cur.QueueJobID != nil:
		handle := *cur.QueueJobID
		err := e.moveTask(ctx, handle, cur, change, now)
		if errors.Is(err, queue.ErrTaskNotPending) {
			// The task already ran, is running or was parked. A fresh one
			// keeps the job deliverable; a duplicate is absorbed by is_sent.
			log.Warn("queue task no longer pending, enqueueing a fresh one", zap.String("queue_job_id", handle))
			err = e.schedule(ctx, cur, now)
		}
		e.queueCall(ctx, log, "reschedule", err)

	case change == job.ScheduleMoved:
		// An unsent job without a task, e.g. one whose immediate fan-out
		// failed, gets a fresh task for its new date.
		if err := e.schedule(ctx, cur, now); err != nil {
			e.queueCall(ctx, log, "enqueue", err)
		}
	}

	mJobs.WithLabelValues("update", "ok").Inc()
	return cur, nil
}

func (e *Engine) Remove(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "engine.remove", trace.WithAttributes(attribute.String("job.id", id)))
	defer span.End()
	log := obs.WithTrace(ctx, e.log).With(zap.String("job_id", id))

	cur, err := e.jobs.GetByID(ctx, id)
	if err != nil {
		return mapJobErr(err, ErrInvalidOperation)
	}
	if cur.IsSent {
		mJobs.WithLabelValues("remove", "invalid").Inc()
		return fmt.Errorf("%w: job %s was already sent", ErrInvalidOperation, id)
	}
	if err := e.jobs.Delete(ctx, id); err != nil {
		mJobs.WithLabelValues("remove", "error").Inc()
		return mapJobErr(err, ErrInvalidOperation)
	}
	if cur.QueueJobID != nil {
		e.queueCall(ctx, log, "remove", e.queue.Remove(ctx, *cur.QueueJobID))
	}
	mJobs.WithLabelValues("remove", "ok").Inc()
	log.Info("job removed")
	return nil
}

// HandleTask is the queue callback. It is safe to run more than once for
// the same task.
func (e *Engine) HandleTask(ctx context.Context, kind queue.Kind, payload []byte) error {
	var env queue.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decode queue envelope: %w", err)
	}
	if env.Kind != "" && env.Kind != kind {
		return fmt.Errorf("queue kind mismatch: task %q, payload %q", kind, env.Kind)
	}

	switch kind {
	case queue.KindScheduled:
		var snap job.Job
		if err := json.Unmarshal(env.Data, &snap); err != nil {
			return fmt.Errorf("decode scheduled job: %w", err)
		}
		if snap.ID == "" {
			return errors.New("scheduled task without job id")
		}
		return e.fireScheduled(ctx, snap.ID)

	case queue.KindAnnounce:
		var t announceTask
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return fmt.Errorf("decode announcement: %w", err)
		}
		return e.announce(ctx, t)

	case queue.KindTriggered:
		var rows []*inbox.Notification
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return fmt.Errorf("decode triggered notifications: %w", err)
		}
		if err := e.inbox.BulkCreate(ctx, rows); err != nil {
			return fmt.Errorf("store triggered notifications: %w", err)
		}
		mRecipients.Add(float64(len(rows)))
		obs.WithTrace(ctx, e.log).Debug("triggered notifications stored", zap.Int("count", len(rows)))
		return nil
	}
	return fmt.Errorf("unknown queue kind %q", kind)
}

func (e *Engine) fireScheduled(ctx context.Context, id string) error {
	log := obs.WithTrace(ctx, e.log).With(zap.String("job_id", id))

	cur, err := e.jobs.GetByID(ctx, id)
	if errors.Is(err, job.ErrNotFound) {
		log.Debug("scheduled job is gone, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	if cur.IsSent {
		log.Debug("scheduled job already sent, skipping")
		return nil
	}
	// A reschedule that lost the race with this task leaves a date in the
	// future. Deliver then, not now.
	if now := e.clk(); !cur.Due(now) {
		log.Info("scheduled job moved later, rescheduling", zap.Time("schedule_date", *cur.ScheduleDate))
		return e.schedule(ctx, cur, now)
	}
	_, err = e.fanOut(ctx, cur)
	return err
}

// announce mails one chunk of a delivered job. Recipients that failed with
// a retryable error are queued again with a growing delay until
// announceRounds is reached; the rest are dropped. Errors are not returned
// to the runner so a partially sent chunk is never replayed in full.
func (e *Engine) announce(ctx context.Context, t announceTask) error {
	log := obs.WithTrace(ctx, e.log).With(zap.String("job_id", t.Job.ID), zap.Int("round", t.Round))
	if e.announcer == nil {
		log.Warn("announcement dropped, no mail transport", zap.Int("recipients", len(t.To)))
		return nil
	}

	err := e.announcer.Announce(ctx, &t.Job, t.To)
	if err == nil {
		log.Info("announcement sent", zap.Int("recipients", len(t.To)))
		return nil
	}
	var be *mail.BatchError
	if !errors.As(err, &be) {
		mEmailsDropped.Add(float64(len(t.To)))
		log.Error("announcement failed", zap.Int("recipients", len(t.To)), zap.Error(err))
		return nil
	}

	var again []string
	for _, f := range be.Failed {
		if !retry.IsPermanent(f.Err) {
			again = append(again, f.To)
		}
	}
	mEmailsDropped.Add(float64(len(be.Failed) - len(again)))
	log.Warn("announcement incomplete", zap.Int("failed", len(be.Failed)), zap.Int("retryable", len(again)), zap.Error(err))
	if len(again) == 0 {
		return nil
	}
	if t.Round+1 >= announceRounds {
		mEmailsDropped.Add(float64(len(again)))
		log.Error("announcement retries exhausted", zap.Strings("to", again))
		return nil
	}

	next := announceTask{Job: t.Job, To: again, Round: t.Round + 1}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if err := e.enqueueAnnounce(ctx, next, announceRetryDelay*time.Duration(next.Round)); err != nil {
		mEmailsDropped.Add(float64(len(again)))
		e.queueCall(ctx, log, "enqueue_announce", err)
	}
	return nil
}

// Trigger queues ad-hoc inbox rows for immediate storage and returns their
// ids. Ids are fixed here so a redelivered task cannot duplicate rows.
func (e *Engine) Trigger(ctx context.Context, drafts []inbox.Draft) ([]string, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: no notifications", ErrValidation)
	}
	for i := range drafts {
		if err := validate.Struct(drafts[i]); err != nil {
			return nil, fmt.Errorf("%w: notification %d: %v", ErrValidation, i, err)
		}
	}

	now := e.clk()
	ids := make([]string, 0, len(drafts))
	rows := make([]*inbox.Notification, 0, len(drafts))
	for _, d := range drafts {
		n := d.Notification(e.newID(), now)
		ids = append(ids, n.ID)
		rows = append(rows, n)
	}
	payload, err := queue.Wrap(queue.KindTriggered, rows)
	if err != nil {
		return nil, fmt.Errorf("encode queue payload: %w", err)
	}
	if _, err := e.queue.Enqueue(ctx, queue.KindTriggered, payload, 0); err != nil {
		mJobs.WithLabelValues("trigger", "error").Inc()
		return nil, fmt.Errorf("%w: enqueue: %w", ErrQueueOperation, err)
	}
	mJobs.WithLabelValues("trigger", "ok").Inc()
	return ids, nil
}

func (e *Engine) MarkSeen(ctx context.Context, ids []string) (bool, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return true, nil
	}
	if _, err := e.inbox.MarkSeen(ctx, ids, e.clk()); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) MarkRead(ctx context.Context, id string) (bool, error) {
	if err := e.inbox.MarkRead(ctx, id, e.clk()); err != nil {
		if errors.Is(err, inbox.ErrNotFound) {
			return false, fmt.Errorf("%w: notification %s", ErrNotFound, id)
		}
		return false, err
	}
	return true, nil
}

func (e *Engine) ListUserNotifications(ctx context.Context, userID string, p paging.Page) ([]*inbox.Notification, int, error) {
	return e.inbox.ListByUser(ctx, userID, p)
}

// fanOut writes one inbox row per receiver and flips the job to sent in the
// same transaction. It reports false when another path already sent it.
func (e *Engine) fanOut(ctx context.Context, j *job.Job) (bool, error) {
	ctx, span := tracer.Start(ctx, "engine.fanout", trace.WithAttributes(attribute.String("job.id", j.ID)))
	defer span.End()
	start := time.Now()
	log := obs.WithTrace(ctx, e.log).With(zap.String("job_id", j.ID))

	ids, err := e.resolver.ReceiverIDs(ctx, j)
	if err != nil {
		mFanouts.WithLabelValues("error").Inc()
		span.RecordError(err)
		return false, err
	}

	now := e.clk()
	won := false
	err = e.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := e.jobs.MarkSent(ctx, j.ID)
		if err != nil || !ok {
			return err
		}
		won = true
		if len(ids) == 0 {
			return nil
		}
		jobID := j.ID
		rows := make([]*inbox.Notification, 0, len(ids))
		for _, uid := range ids {
			rows = append(rows, &inbox.Notification{
				ID:             e.newID(),
				NotificationID: &jobID,
				UserID:         uid,
				Title:          j.Title,
				Text:           j.Text,
				LinkURL:        j.LinkURL,
				LinkText:       j.LinkText,
				SentAt:         &now,
			})
		}
		return e.inbox.BulkCreate(ctx, rows)
	})
	if err != nil {
		mFanouts.WithLabelValues("error").Inc()
		span.RecordError(err)
		log.Error("fan-out failed", zap.Error(err))
		return false, fmt.Errorf("fan out job %s: %w", j.ID, err)
	}
	mFanoutDur.Observe(time.Since(start).Seconds())

	if !won {
		mFanouts.WithLabelValues("skipped").Inc()
		log.Debug("job was sent by another path")
		j.IsSent = true
		return false, nil
	}

	j.IsSent = true
	mFanouts.WithLabelValues("delivered").Inc()
	mRecipients.Add(float64(len(ids)))
	span.SetAttributes(attribute.Int("fanout.recipients", len(ids)))
	log.Info("job fanned out", zap.Int("recipients", len(ids)))

	e.afterDelivery(ctx, j, ids, now)
	return true, nil
}

// deliverNow fans j out. When that fails the job is handed to the queue
// with no delay so the worker delivers it later, and j comes back unsent
// with its new handle. The fan-out error is returned only when the
// hand-off fails too.
func (e *Engine) deliverNow(ctx context.Context, j *job.Job, log *zap.Logger) error {
	_, err := e.fanOut(ctx, j)
	if err == nil {
		return nil
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	if serr := e.schedule(sctx, j, e.clk()); serr != nil {
		e.queueCall(sctx, log, "enqueue", serr)
		return err
	}
	log.Warn("immediate delivery failed, handed to the queue", zap.String("queue_job_id", *j.QueueJobID), zap.Error(err))
	return nil
}

// afterDelivery runs the side effects of a committed delivery on a context
// detached from the caller. Email is only queued here; the worker sends it.
// Failures are logged and counted only.
func (e *Engine) afterDelivery(ctx context.Context, j *job.Job, ids []string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()
	log := obs.WithTrace(ctx, e.log).With(zap.String("job_id", j.ID))
	emailed := j.SendEmail && e.announcer != nil

	if e.events != nil {
		ev := events.DeliveryEvent{JobID: j.ID, Recipients: len(ids), Email: emailed, DeliveredAt: at}
		if err := e.events.PublishDelivered(ctx, ev); err != nil {
			log.Warn("publish delivery event", zap.Error(err))
		}
	}

	if !emailed || len(ids) == 0 {
		return
	}
	emails, err := e.resolver.EmailsOf(ctx, ids)
	if err != nil {
		mEmailFailures.Inc()
		log.Error("resolve announcement emails", zap.Error(err))
		return
	}
	size := e.announcer.ChunkSize()
	for lo := 0; lo < len(emails); lo += size {
		chunk := emails[lo:min(lo+size, len(emails))]
		if err := e.enqueueAnnounce(ctx, announceTask{Job: *j, To: chunk}, 0); err != nil {
			mEmailFailures.Inc()
			mEmailsDropped.Add(float64(len(chunk)))
			e.queueCall(ctx, log, "enqueue_announce", err)
		}
	}
}

func (e *Engine) enqueueAnnounce(ctx context.Context, t announceTask, delay time.Duration) error {
	payload, err := queue.Wrap(queue.KindAnnounce, t)
	if err != nil {
		return err
	}
	_, err = e.queue.Enqueue(ctx, queue.KindAnnounce, payload, delay)
	return err
}

func (e *Engine) schedule(ctx context.Context, j *job.Job, now time.Time) error {
	payload, err := queue.Wrap(queue.KindScheduled, j)
	if err != nil {
		return err
	}
	var delay time.Duration
	if j.ScheduleDate != nil {
		delay = max(j.ScheduleDate.Sub(now), 0)
	}
	return e.tx.WithTx(ctx, func(ctx context.Context) error {
		handle, err := e.queue.Enqueue(ctx, queue.KindScheduled, payload, delay)
		if err != nil {
			return err
		}
		if err := e.jobs.SetQueueJobID(ctx, j.ID, handle); err != nil {
			return err
		}
		j.QueueJobID = &handle
		return nil
	})
}

// moveTask points a pending task at the updated job.
func (e *Engine) moveTask(ctx context.Context, handle string, j *job.Job, change job.ScheduleChange, now time.Time) error {
	if change == job.ScheduleMoved {
		if err := e.queue.ChangeDelay(ctx, handle, max(j.ScheduleDate.Sub(now), 0)); err != nil {
			return err
		}
	}
	payload, err := queue.Wrap(queue.KindScheduled, j)
	if err != nil {
		return err
	}
	return e.queue.UpdatePayload(ctx, handle, payload)
}

func (e *Engine) queueCall(ctx context.Context, log *zap.Logger, op string, err error) {
	if err == nil {
		return
	}
	mQueueFailures.WithLabelValues(op).Inc()
	trace.SpanFromContext(ctx).RecordError(err)
	if errors.Is(err, queue.ErrTaskNotPending) {
		log.Warn("queue task no longer pending", zap.String("op", op), zap.Error(err))
		return
	}
	log.Error("queue operation failed", zap.String("op", op), zap.Error(err))
}

// mapJobErr translates repository errors. sentErr is what a lost
// is_sent race means for the calling operation.
func mapJobErr(err error, sentErr error) error {
	switch {
	case errors.Is(err, job.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, job.ErrAlreadySent):
		return fmt.Errorf("%w: %w", sentErr, err)
	}
	return err
}
