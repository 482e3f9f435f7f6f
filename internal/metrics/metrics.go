// Package metrics exposes catalog and transfer activity as Prometheus
// metrics. It is fed from the event bus and served on an optional local
// listener.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vaultlink/vaultlink/internal/catalog"
	"github.com/vaultlink/vaultlink/internal/events"
	"github.com/vaultlink/vaultlink/internal/transfer"
)

// Recorder owns a private registry so several instances (tests, multiple
// sessions) never collide.
type Recorder struct {
	reg *prometheus.Registry

	transfersTotal   *prometheus.CounterVec
	transferDuration *prometheus.HistogramVec
	tasks            *prometheus.GaugeVec

	catalogFiles     prometheus.Gauge
	catalogBytes     prometheus.Gauge
	catalogDownloads prometheus.Gauge
	catalogRefreshes *prometheus.CounterVec

	mu      sync.Mutex
	started map[string]time.Time
}

// New creates a recorder with its metrics registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		reg: reg,
		transfersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultlink_transfers_total",
			Help: "Settled transfer attempts by direction and outcome",
		}, []string{"direction", "outcome"}),
		transferDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vaultlink_transfer_duration_seconds",
			Help:    "Duration of successful transfer attempts",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"direction"}),
		tasks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vaultlink_transfer_tasks",
			Help: "Tracked transfer tasks by state",
		}, []string{"state"}),
		catalogFiles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vaultlink_catalog_files",
			Help: "Files in the current catalog snapshot",
		}),
		catalogBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vaultlink_catalog_bytes",
			Help: "Total size of the current catalog snapshot",
		}),
		catalogDownloads: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vaultlink_catalog_downloads",
			Help: "Sum of download counts in the current catalog snapshot",
		}),
		catalogRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vaultlink_catalog_refreshes_total",
			Help: "Catalog refreshes by result",
		}, []string{"result"}),
		started: make(map[string]time.Time),
	}
}

// Registry returns the registry backing this recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// WatchDropped exports the bus's dropped event count.
func (r *Recorder) WatchDropped(bus *events.EventBus) {
	r.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "vaultlink_events_dropped",
		Help: "Events dropped because a subscriber was full",
	}, func() float64 { return float64(bus.DroppedEvents()) }))
}

// ObserveCatalog sets the catalog gauges from a snapshot.
func (r *Recorder) ObserveCatalog(snap *catalog.Snapshot) {
	if snap == nil {
		r.catalogFiles.Set(0)
		r.catalogBytes.Set(0)
		r.catalogDownloads.Set(0)
		return
	}
	r.catalogFiles.Set(float64(snap.TotalCount))
	r.catalogBytes.Set(snap.TotalSize.Float64())
	r.catalogDownloads.Set(snap.TotalDownloads.Float64())
}

// ObserveTasks sets the per-state task gauges.
func (r *Recorder) ObserveTasks(stats transfer.Stats) {
	r.tasks.WithLabelValues(string(transfer.StateQueued)).Set(float64(stats.Queued))
	r.tasks.WithLabelValues(string(transfer.StateRunning)).Set(float64(stats.Running))
	r.tasks.WithLabelValues(string(transfer.StateSucceeded)).Set(float64(stats.Succeeded))
	r.tasks.WithLabelValues(string(transfer.StateFailed)).Set(float64(stats.Failed))
	r.tasks.WithLabelValues(string(transfer.StateCancelled)).Set(float64(stats.Cancelled))
}

// Sources lets Follow refresh gauges after an event. Either field may be nil.
type Sources struct {
	Catalog func() *catalog.Snapshot
	Tasks   func() transfer.Stats
}

// Follow updates the metrics from bus events until ctx is done or the bus
// is closed.
func (r *Recorder) Follow(ctx context.Context, bus *events.EventBus, src Sources) {
	ch := bus.Subscribe(
		events.EventCatalogLoaded, events.EventCatalogInvalidated,
		events.EventCatalogRefreshFailed, events.EventCatalogRefreshStale,
		events.EventTransferStarted, events.EventTransferSucceeded,
		events.EventTransferFailed, events.EventTransferCancelled,
		events.EventTransferQueued, events.EventTransferDismissed,
	)
	defer bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			r.handle(ev, src)
		}
	}
}

func (r *Recorder) handle(ev events.Event, src Sources) {
	switch e := ev.(type) {
	case *events.CatalogEvent:
		switch e.Type() {
		case events.EventCatalogLoaded:
			r.catalogRefreshes.WithLabelValues("ok").Inc()
		case events.EventCatalogRefreshFailed:
			r.catalogRefreshes.WithLabelValues("failed").Inc()
		case events.EventCatalogRefreshStale:
			r.catalogRefreshes.WithLabelValues("stale").Inc()
		}
		if src.Catalog != nil {
			r.ObserveCatalog(src.Catalog())
		}

	case *events.TransferEvent:
		r.handleTransfer(e)
		if src.Tasks != nil {
			r.ObserveTasks(src.Tasks())
		}
	}
}

func (r *Recorder) handleTransfer(e *events.TransferEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Type() {
	case events.EventTransferStarted:
		r.started[e.TaskID] = e.Timestamp()
	case events.EventTransferSucceeded:
		r.transfersTotal.WithLabelValues(e.Direction, "succeeded").Inc()
		if at, ok := r.started[e.TaskID]; ok {
			r.transferDuration.WithLabelValues(e.Direction).Observe(e.Timestamp().Sub(at).Seconds())
		}
		delete(r.started, e.TaskID)
	case events.EventTransferFailed:
		r.transfersTotal.WithLabelValues(e.Direction, "failed").Inc()
		delete(r.started, e.TaskID)
	case events.EventTransferCancelled:
		r.transfersTotal.WithLabelValues(e.Direction, "cancelled").Inc()
		delete(r.started, e.TaskID)
	}
}
