package query

import (
	"time"

	"github.com/rs/zerolog"
)

// timer measures one query-surface request's latency for the
// elapsed_ms response envelope field (spec.md §6), logging requests
// slower than 500ms at warn level.
type timer struct {
	start time.Time
	name  string
	log   zerolog.Logger
}

func newTimer(name string, log zerolog.Logger) *timer {
	return &timer{start: time.Now(), name: name, log: log}
}

// elapsedMs returns the milliseconds elapsed since the timer was created,
// warning if the request crossed a slow-query threshold.
func (t *timer) elapsedMs() float64 {
	d := time.Since(t.start)
	ms := float64(d.Microseconds()) / 1000.0
	if d > 500*time.Millisecond {
		t.log.Warn().Str("query", t.name).Dur("duration", d).Msg("slow query-surface request")
	} else {
		t.log.Debug().Str("query", t.name).Dur("duration", d).Msg("query-surface request")
	}
	return ms
}
