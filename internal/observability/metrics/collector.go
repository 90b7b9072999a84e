// Package metrics turns bus events into Prometheus series.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remindbot/internal/eventbus"
	"remindbot/internal/lifecycle"
)

const namespace = "remindbot"

// Collector owns a private registry so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	Reminders     *prometheus.CounterVec // op: created|deleted|updated
	Due           prometheus.Counter
	Fired         prometheus.Counter
	RearmFailures prometheus.Counter
	Notifications *prometheus.CounterVec // result: sent|failed|queued|dropped|deduped
	Reloads       prometheus.Counter
	ReloadRecords *prometheus.GaugeVec // outcome: armed|kept|skipped|failed|removed
	ReloadSeconds prometheus.Histogram
}

// New builds the collector. jobs, when non-nil, backs the registered-jobs gauge.
func New(jobs func() int) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_operations_total",
			Help:      "Reminder mutations by operation.",
		}, []string{"op"}),
		Due: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_due_total",
			Help:      "Reminder fires handed to delivery.",
		}),
		Fired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "fired_total",
			Help:      "Timer fires across all jobs.",
		}),
		RearmFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "rearm_failures_total",
			Help:      "Jobs that could not compute their next fire.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "notifications_total",
			Help:      "Notifier outcomes by result.",
		}, []string{"result"}),
		Reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Completed reload passes.",
		}),
		ReloadRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reload_records",
			Help:      "Record counts from the last reload by outcome.",
		}, []string{"outcome"}),
		ReloadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reload_duration_seconds",
			Help:      "Reload pass duration.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	c.registry.MustRegister(
		c.Reminders, c.Due, c.Fired, c.RearmFailures,
		c.Notifications, c.Reloads, c.ReloadRecords, c.ReloadSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if jobs != nil {
		c.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "registered_jobs",
			Help:      "Reminder jobs currently armed.",
		}, func() float64 { return float64(jobs()) }))
	}
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Run consumes bus events until ctx is done.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(ev)
		}
	}
}

// Observe records a single event. Unknown types are ignored.
func (c *Collector) Observe(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TypeReminderCreated:
		c.Reminders.WithLabelValues("created").Inc()
	case eventbus.TypeReminderDeleted:
		c.Reminders.WithLabelValues("deleted").Inc()
	case eventbus.TypeReminderUpdated:
		c.Reminders.WithLabelValues("updated").Inc()
	case eventbus.TypeReminderDue:
		c.Due.Inc()
	case eventbus.TypeJobFired:
		c.Fired.Inc()
	case eventbus.TypeJobRearmFailed:
		c.RearmFailures.Inc()
	case eventbus.TypeNotifySent:
		c.Notifications.WithLabelValues("sent").Inc()
	case eventbus.TypeNotifyFailed:
		c.Notifications.WithLabelValues("failed").Inc()
	case eventbus.TypeNotifyQueued:
		c.Notifications.WithLabelValues("queued").Inc()
	case eventbus.TypeNotifyDropped:
		c.Notifications.WithLabelValues("dropped").Inc()
	case eventbus.TypeNotifyDeduped:
		c.Notifications.WithLabelValues("deduped").Inc()
	case eventbus.TypeReloadDone:
		c.Reloads.Inc()
		rep, ok := ev.Data.(lifecycle.ReloadReport)
		if !ok {
			return
		}
		c.ReloadRecords.WithLabelValues("armed").Set(float64(rep.Armed))
		c.ReloadRecords.WithLabelValues("kept").Set(float64(rep.Kept))
		c.ReloadRecords.WithLabelValues("skipped").Set(float64(rep.Skipped))
		c.ReloadRecords.WithLabelValues("failed").Set(float64(rep.Failed))
		c.ReloadRecords.WithLabelValues("removed").Set(float64(rep.Removed))
		c.ReloadSeconds.Observe(rep.Took.Seconds())
	}
}
