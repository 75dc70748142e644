// Package kref implements the strong reference count that governs
// process lifetime.  References are acyclic; dropping the last one runs
// a release hook.
package kref

import "sync/atomic"

/// Kref_t is a strong reference count with a release hook.  The zero
/// value is a dead object; call Init before sharing.
type Kref_t struct {
	cnt int64
}

/// Init sets the count.  Objects are typically born with two
/// references: one for existing, one handed back to the creator.
func (k *Kref_t) Init(n int) {
	if n <= 0 {
		panic("kref init with no refs")
	}
	atomic.StoreInt64(&k.cnt, int64(n))
}

/// Refcnt returns the current count.  Debugging only; the value is
/// stale the moment it is read.
func (k *Kref_t) Refcnt() int {
	return int(atomic.LoadInt64(&k.cnt))
}

/// Get takes n additional references.  The caller must already hold
/// one; taking a reference on a dead object is a bug.
func (k *Kref_t) Get(n int) {
	if n <= 0 {
		panic("bad kref get")
	}
	c := atomic.AddInt64(&k.cnt, int64(n))
	if c <= int64(n) {
		panic("kref get after free")
	}
}

/// Get_not_zero tries to take n references, failing if the count has
/// already reached zero.  Used by lookup paths that race with release.
func (k *Kref_t) Get_not_zero(n int) bool {
	for {
		old := atomic.LoadInt64(&k.cnt)
		if old == 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&k.cnt, old, old+int64(n)) {
			return true
		}
	}
}

/// Put drops one reference, running release when the count reaches
/// zero.  Exactly one caller will observe zero.
func (k *Kref_t) Put(release func()) {
	c := atomic.AddInt64(&k.cnt, -1)
	if c < 0 {
		panic("kref put on zero")
	}
	if c == 0 {
		release()
	}
}
