package mailer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_mailer_send_total",
		Help: "Provider calls by transport, mode and result.",
	}, []string{"transport", "mode", "result"})
	sendDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "herald_mailer_send_duration_seconds",
		Help:    "Provider call latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport", "mode"})
)

func observe(transport, mode string, start time.Time, err error) {
	res := "ok"
	if err != nil {
		res = "error"
	}
	sendTotal.WithLabelValues(transport, mode, res).Inc()
	sendDuration.WithLabelValues(transport, mode).Observe(time.Since(start).Seconds())
}
