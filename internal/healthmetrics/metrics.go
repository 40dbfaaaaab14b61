// Package healthmetrics aggregates per-component counters and process
// resource stats for the /health endpoint, grounded on the teacher's
// system-status handler's getSystemStats CPU/RAM sampling.
package healthmetrics

import (
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Counters is a plain-value form of the health counters. The live values
// reported on the health endpoint are held by Registry, not by Counters.
type Counters struct {
	DecodeErrors      int64
	ValidationDrops   int64
	StoreRetries      int64
	StoreRejections   int64
	CacheHits         int64
	CacheMisses       int64
	BroadcastDropped  int64
	BackfillSucceeded int64
	BackfillFailed    int64
}

// Registry holds the live atomic counters plus process-level sampling.
type Registry struct {
	startedAt time.Time

	decodeErrors      int64
	validationDrops   int64
	storeRetries      int64
	storeRejections   int64
	broadcastDropped  int64
	backfillSucceeded int64
	backfillFailed    int64
}

// New returns a Registry stamped with the current time as startup.
func New() *Registry {
	return &Registry{startedAt: time.Now()}
}

func (r *Registry) IncDecodeErrors()      { atomic.AddInt64(&r.decodeErrors, 1) }
func (r *Registry) IncValidationDrops()   { atomic.AddInt64(&r.validationDrops, 1) }
func (r *Registry) IncStoreRetries()      { atomic.AddInt64(&r.storeRetries, 1) }
func (r *Registry) IncStoreRejections()   { atomic.AddInt64(&r.storeRejections, 1) }
func (r *Registry) IncBroadcastDropped()  { atomic.AddInt64(&r.broadcastDropped, 1) }
func (r *Registry) IncBackfillSucceeded() { atomic.AddInt64(&r.backfillSucceeded, 1) }
func (r *Registry) IncBackfillFailed()    { atomic.AddInt64(&r.backfillFailed, 1) }

// SetDecodeErrors and SetBroadcastDropped overwrite the counter from an
// externally-tracked cumulative total (ingest's and broadcast's own
// atomic counters), so the health snapshot reflects them without every
// call site needing a reference to the registry.
func (r *Registry) SetDecodeErrors(n int64)     { atomic.StoreInt64(&r.decodeErrors, n) }
func (r *Registry) SetBroadcastDropped(n int64) { atomic.StoreInt64(&r.broadcastDropped, n) }

// Snapshot is the full health-endpoint payload.
type Snapshot struct {
	Status          string        `json:"status"`
	UptimeSeconds   float64       `json:"uptime_seconds"`
	CPUPercent      float64       `json:"cpu_percent"`
	MemoryPercent   float64       `json:"memory_percent"`
	DecodeErrors    int64         `json:"decode_errors"`
	ValidationDrops int64         `json:"validation_drops"`
	StoreRetries    int64         `json:"store_retries"`
	StoreRejections int64         `json:"store_rejections"`
	CacheHitRate    float64       `json:"cache_hit_rate"`
	BroadcastDrops  int64         `json:"broadcast_drops"`
	BackfillOK      int64         `json:"backfill_succeeded"`
	BackfillFailed  int64         `json:"backfill_failed"`
}

// Snapshot samples process stats (100ms CPU window, matching the
// teacher's fast-response rationale for a frequently-polled endpoint)
// and folds in every counter.
func (r *Registry) Snapshot(cacheHitRate float64) Snapshot {
	cpuPct := sampleCPU()
	memPct := sampleMem()

	status := "healthy"
	if atomic.LoadInt64(&r.storeRejections) > 0 {
		status = "degraded"
	}

	return Snapshot{
		Status:          status,
		UptimeSeconds:   time.Since(r.startedAt).Seconds(),
		CPUPercent:      cpuPct,
		MemoryPercent:   memPct,
		DecodeErrors:    atomic.LoadInt64(&r.decodeErrors),
		ValidationDrops: atomic.LoadInt64(&r.validationDrops),
		StoreRetries:    atomic.LoadInt64(&r.storeRetries),
		StoreRejections: atomic.LoadInt64(&r.storeRejections),
		CacheHitRate:    cacheHitRate,
		BroadcastDrops:  atomic.LoadInt64(&r.broadcastDropped),
		BackfillOK:      atomic.LoadInt64(&r.backfillSucceeded),
		BackfillFailed:  atomic.LoadInt64(&r.backfillFailed),
	}
}

func sampleCPU() float64 {
	percents, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(percents) == 0 {
		return 0
	}
	return percents[0]
}

func sampleMem() float64 {
	stat, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return stat.UsedPercent
}
