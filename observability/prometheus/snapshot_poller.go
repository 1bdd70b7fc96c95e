package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-rapid-task/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SerialSnapshotProvider provides current serial executor stats snapshots.
type SerialSnapshotProvider interface {
	Stats() core.SerialStats
}

// QueueSnapshotProvider provides current dispatch queue stats snapshots.
type QueueSnapshotProvider interface {
	Stats() core.DispatchQueueStats
}

// SnapshotPoller periodically exports executor and dispatch queue Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	mu      sync.RWMutex
	pools   map[string]PoolSnapshotProvider
	serials map[string]SerialSnapshotProvider
	queues  map[string]QueueSnapshotProvider

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolPeak    *prom.GaugeVec
	poolRunning *prom.GaugeVec

	serialPending   *prom.GaugeVec
	serialActive    *prom.GaugeVec
	serialCompleted *prom.GaugeVec

	queuePending    *prom.GaugeVec
	queueDispatched *prom.GaugeVec
	queuePanics     *prom.GaugeVec
	queueClosed     *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}

	p := &SnapshotPoller{
		interval: interval,
		pools:    make(map[string]PoolSnapshotProvider),
		serials:  make(map[string]SerialSnapshotProvider),
		queues:   make(map[string]QueueSnapshotProvider),

		poolQueued:  gauge("pool_queued", "Queued work per pool.", "pool"),
		poolActive:  gauge("pool_active", "Active work per pool.", "pool"),
		poolWorkers: gauge("pool_workers", "Worker count per pool.", "pool"),
		poolPeak:    gauge("pool_peak_workers", "Largest worker count reached per pool.", "pool"),
		poolRunning: gauge("pool_running", "Pool running state (1=running, 0=stopped).", "pool"),

		serialPending:   gauge("serial_pending", "Units waiting in a serial executor.", "serial"),
		serialActive:    gauge("serial_active", "Serial executor busy state (1=busy, 0=idle).", "serial"),
		serialCompleted: gauge("serial_completed", "Serial executor completed unit count snapshot.", "serial"),

		queuePending:    gauge("dispatch_pending", "Messages waiting on the affinity queue.", "queue"),
		queueDispatched: gauge("dispatch_dispatched", "Messages dispatched snapshot.", "queue"),
		queuePanics:     gauge("dispatch_panics", "Message panics snapshot.", "queue"),
		queueClosed:     gauge("dispatch_closed", "Affinity queue closed state (1=closed, 0=open).", "queue"),
	}

	for _, c := range []**prom.GaugeVec{
		&p.poolQueued, &p.poolActive, &p.poolWorkers, &p.poolPeak, &p.poolRunning,
		&p.serialPending, &p.serialActive, &p.serialCompleted,
		&p.queuePending, &p.queueDispatched, &p.queuePanics, &p.queueClosed,
	} {
		registered, err := registerCollector(reg, *c)
		if err != nil {
			return nil, err
		}
		*c = registered
	}
	return p, nil
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.mu.Lock()
	p.pools[normalizeLabel(name, "pool")] = provider
	p.mu.Unlock()
}

// AddSerial adds or replaces a serial executor snapshot provider by name.
func (p *SnapshotPoller) AddSerial(name string, provider SerialSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.mu.Lock()
	p.serials[normalizeLabel(name, "serial")] = provider
	p.mu.Unlock()
}

// AddQueue adds or replaces a dispatch queue snapshot provider by name.
func (p *SnapshotPoller) AddQueue(name string, provider QueueSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	p.mu.Lock()
	p.queues[normalizeLabel(name, "queue")] = provider
	p.mu.Unlock()
}

// AddRuntime registers every component of rt under its own name.
func (p *SnapshotPoller) AddRuntime(rt *core.Runtime) {
	if rt == nil {
		return
	}
	p.AddPool(rt.Pool().ID(), rt.Pool())
	p.AddSerial(rt.Serial().Name(), rt.Serial())
	p.AddQueue(rt.Queue().Name(), rt.Queue())
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.running {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce takes one snapshot of every registered provider.
func (p *SnapshotPoller) CollectOnce() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolPeak.WithLabelValues(name).Set(float64(stats.Peak))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}

	for name, provider := range p.serials {
		stats := provider.Stats()
		p.serialPending.WithLabelValues(name).Set(float64(stats.Pending))
		p.serialActive.WithLabelValues(name).Set(boolGauge(stats.Active))
		p.serialCompleted.WithLabelValues(name).Set(float64(stats.Completed))
	}

	for name, provider := range p.queues {
		stats := provider.Stats()
		p.queuePending.WithLabelValues(name).Set(float64(stats.Pending))
		p.queueDispatched.WithLabelValues(name).Set(float64(stats.Dispatched))
		p.queuePanics.WithLabelValues(name).Set(float64(stats.Panics))
		p.queueClosed.WithLabelValues(name).Set(boolGauge(stats.Closed))
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
