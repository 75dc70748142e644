// Package event implements the system-event ring shared between the
// kernel and a process.  The ring is single-producer (kernel) /
// single-consumer (the process); no ordering beyond that is promised.
package event

import "sync/atomic"

import "manycore/defs"

/// Event_t is a single system event.
type Event_t struct {
	Type defs.Evtype_t
	Arg1 int
	Arg2 int
}

/// RINGSZ is the event ring capacity.  Power of two.
const RINGSZ = 128

/// Ring_t is the event ring living in procdata.  prod and cons are
/// free-running; an entry is live in [cons, prod).
type Ring_t struct {
	buf  [RINGSZ]Event_t
	prod uint32
	cons uint32
}

/// Trypush appends an event, failing when the ring is full.  Producer
/// side only; the kernel serializes producers per ring.
func (r *Ring_t) Trypush(ev Event_t) bool {
	prod := atomic.LoadUint32(&r.prod)
	cons := atomic.LoadUint32(&r.cons)
	if prod-cons == RINGSZ {
		return false
	}
	r.buf[prod%RINGSZ] = ev
	// entry must be visible before the producer index moves
	atomic.StoreUint32(&r.prod, prod+1)
	return true
}

/// Pop removes and returns the oldest event.  Consumer side only.
func (r *Ring_t) Pop() (Event_t, bool) {
	cons := atomic.LoadUint32(&r.cons)
	prod := atomic.LoadUint32(&r.prod)
	if cons == prod {
		return Event_t{}, false
	}
	ev := r.buf[cons%RINGSZ]
	atomic.StoreUint32(&r.cons, cons+1)
	return ev, true
}

/// Len returns the number of queued events.
func (r *Ring_t) Len() int {
	return int(atomic.LoadUint32(&r.prod) - atomic.LoadUint32(&r.cons))
}
