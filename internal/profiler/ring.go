// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package profiler

import "github.com/sigil-dev/modelroute/pkg/health"

// ring is a bounded FIFO of metrics. It grows by append until full and
// then overwrites the oldest slot. Not safe for concurrent use; the
// Profiler lock guards every ring.
type ring struct {
	buf      []health.ModelMetric
	head     int // index of the oldest metric once the ring is full
	capacity int
}

func newRing(capacity int) *ring {
	return &ring{capacity: capacity}
}

// push appends m and reports whether the oldest metric was evicted.
func (r *ring) push(m health.ModelMetric) bool {
	if len(r.buf) < r.capacity {
		r.buf = append(r.buf, m)
		return false
	}
	r.buf[r.head] = m
	r.head = (r.head + 1) % r.capacity
	return true
}

func (r *ring) size() int {
	return len(r.buf)
}

// last returns the most recent metric, or nil when the ring is empty.
// The pointer aliases ring storage and must only be used under the lock.
func (r *ring) last() *health.ModelMetric {
	if len(r.buf) == 0 {
		return nil
	}
	return &r.buf[(r.head+len(r.buf)-1)%len(r.buf)]
}

// items returns deep copies of the metrics, oldest first.
func (r *ring) items() []health.ModelMetric {
	out := make([]health.ModelMetric, 0, len(r.buf))
	for i := range r.buf {
		out = append(out, r.buf[(r.head+i)%len(r.buf)].Clone())
	}
	return out
}
