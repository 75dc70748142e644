// Package seqlock implements the sequence counter protecting the shared
// coremap in procinfo.  The writer holds the process lock; readers (user
// space included) are lock-free and retry.
package seqlock

import "sync/atomic"
import "unsafe"

/// Seqctr_t is a seqlock counter.  The writer increments it to odd,
/// mutates the protected data, then increments it to even.  A reader
/// snapshots the counter, reads, and retries if the snapshot was odd or
/// the counter moved.
type Seqctr_t uint32

func (s *Seqctr_t) _aptr() *uint32 {
	return (*uint32)(unsafe.Pointer(s))
}

/// Write_start opens a write section.  Panics on a nested write, which
/// would mean two writers or a missed Write_end.
func (s *Seqctr_t) Write_start() {
	n := atomic.AddUint32(s._aptr(), 1)
	if n&1 == 0 {
		panic("nested seqctr write")
	}
}

/// Write_end closes a write section.
func (s *Seqctr_t) Write_end() {
	n := atomic.AddUint32(s._aptr(), 1)
	if n&1 != 0 {
		panic("write_end without write_start")
	}
}

/// Read snapshots the counter before a read section.
func (s *Seqctr_t) Read() uint32 {
	return atomic.LoadUint32(s._aptr())
}

/// Retry reports whether a read section that started with snapshot v
/// must be retried.
func (s *Seqctr_t) Retry(v uint32) bool {
	return v&1 != 0 || atomic.LoadUint32(s._aptr()) != v
}
