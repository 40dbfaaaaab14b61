package ingest

import (
	"context"
	"sync/atomic"
)

// ringBuffer is a bounded per-channel message queue (§4.5): on overflow
// the oldest message is dropped and a loss counter increments, never
// blocking the producing socket indefinitely (§5 "Backpressure").
type ringBuffer struct {
	ch   chan []byte
	lost int64
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{ch: make(chan []byte, capacity)}
}

// push enqueues raw, dropping the oldest queued message first if full.
func (rb *ringBuffer) push(raw []byte) {
	select {
	case rb.ch <- raw:
		return
	default:
	}
	select {
	case <-rb.ch:
		atomic.AddInt64(&rb.lost, 1)
	default:
	}
	select {
	case rb.ch <- raw:
	default:
		atomic.AddInt64(&rb.lost, 1)
	}
}

// pop blocks until a message is available or ctx is done, returning
// ok=false in the latter case.
func (rb *ringBuffer) pop(ctx context.Context) ([]byte, bool) {
	select {
	case v := <-rb.ch:
		return v, true
	case <-ctx.Done():
		return nil, false
	}
}

func (rb *ringBuffer) lossCount() int64 { return atomic.LoadInt64(&rb.lost) }
