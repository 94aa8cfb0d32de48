package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_jobs_total",
		Help: "Job mutations by operation and outcome.",
	}, []string{"op", "result"})
	mFanouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_fanouts_total",
		Help: "Fan-out attempts by outcome (delivered, skipped, error).",
	}, []string{"result"})
	mRecipients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_inbox_rows_total",
		Help: "Inbox rows written by fan-out and triggers.",
	})
	mFanoutDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "notifier_fanout_duration_seconds",
		Help:    "Resolve and persist time for one fan-out.",
		Buckets: prometheus.DefBuckets,
	})
	mQueueFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_queue_failures_total",
		Help: "Queue calls that failed after the job mutation was applied.",
	}, []string{"op"})
	mEmailFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_email_failures_total",
		Help: "Announcement batches that could not be sent.",
	})
	mEmailsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_emails_dropped_total",
		Help: "Announcement recipients given up on.",
	})
	mEmailsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_emails_sent_total",
		Help: "Announcement recipients handed to the mail transport.",
	})
)
