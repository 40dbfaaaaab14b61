package backfill

import (
	"sync"
	"time"

	"github.com/foaggregator/fo-aggregator/internal/domain"
)

// InstrumentRef identifies one tracked instrument for gap-detection and
// immediate backfill dispatch.
type InstrumentRef struct {
	Token      int64
	Symbol     string
	Segment    string
	Expiry     *time.Time
	Strike     *float64
	OptionSide *domain.OptionSide
}

// registry tracks instruments currently subscribed, keyed by instrument
// token, so the scheduled scan knows what to check for gaps.
type registry struct {
	mu   sync.RWMutex
	byID map[int64]InstrumentRef
}

func newRegistry() *registry {
	return &registry{byID: make(map[int64]InstrumentRef)}
}

func (r *registry) upsert(inst InstrumentRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[inst.Token] = inst
}

func (r *registry) remove(token int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, token)
}

func (r *registry) all() []InstrumentRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]InstrumentRef, 0, len(r.byID))
	for _, inst := range r.byID {
		out = append(out, inst)
	}
	return out
}
