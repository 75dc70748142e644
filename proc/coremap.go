package proc

import "runtime"
import "sync/atomic"

// The three vcore lists are intrusive: the links live in the vcoremap
// entries themselves, so an entry is on exactly one list at any time
// and moving it never allocates.  All list mutation is under the
// process lock.

type vclist_t struct {
	head int32
	tail int32
	n    int
}

func (l *vclist_t) init() {
	l.head, l.tail = -1, -1
	l.n = 0
}

func (l *vclist_t) empty() bool {
	return l.head == -1
}

func (l *vclist_t) size() int {
	return l.n
}

func (p *Proc_t) vc(v int32) *Vcore_t {
	return &p.Procinfo.Vcoremap[v]
}

func (p *Proc_t) vc_insert_head(l *vclist_t, v int32) {
	vc := p.vc(v)
	if vc.nexti != -1 || vc.previ != -1 {
		panic("vcore already on a list")
	}
	vc.nexti = l.head
	vc.previ = -1
	if l.head != -1 {
		p.vc(l.head).previ = v
	} else {
		l.tail = v
	}
	l.head = v
	l.n++
}

func (p *Proc_t) vc_insert_tail(l *vclist_t, v int32) {
	vc := p.vc(v)
	if vc.nexti != -1 || vc.previ != -1 {
		panic("vcore already on a list")
	}
	vc.nexti = -1
	vc.previ = l.tail
	if l.tail != -1 {
		p.vc(l.tail).nexti = v
	} else {
		l.head = v
	}
	l.tail = v
	l.n++
}

func (p *Proc_t) vc_remove(l *vclist_t, v int32) {
	vc := p.vc(v)
	if vc.previ != -1 {
		p.vc(vc.previ).nexti = vc.nexti
	} else {
		if l.head != v {
			panic("vcore not on this list")
		}
		l.head = vc.nexti
	}
	if vc.nexti != -1 {
		p.vc(vc.nexti).previ = vc.previ
	} else {
		if l.tail != v {
			panic("vcore not on this list")
		}
		l.tail = vc.previ
	}
	vc.nexti, vc.previ = -1, -1
	l.n--
}

// vc_pop_head removes and returns the first vcore of the list, or -1.
func (p *Proc_t) vc_pop_head(l *vclist_t) int32 {
	v := l.head
	if v == -1 {
		return -1
	}
	p.vc_remove(l, v)
	return v
}

/// Online_vcs snapshots the online list in order.  Debugging and tests.
func (p *Proc_t) Online_vcs() []int {
	p.Lock()
	defer p.Unlock()
	return p.list_ids(&p.online_vcs)
}

/// Bulk_preempted_vcs snapshots the bulk-preempted list in order.
func (p *Proc_t) Bulk_preempted_vcs() []int {
	p.Lock()
	defer p.Unlock()
	return p.list_ids(&p.bulk_preempted_vcs)
}

/// Inactive_vcs snapshots the inactive list in order.
func (p *Proc_t) Inactive_vcs() []int {
	p.Lock()
	defer p.Unlock()
	return p.list_ids(&p.inactive_vcs)
}

func (p *Proc_t) list_ids(l *vclist_t) []int {
	var ret []int
	for v := l.head; v != -1; v = p.vc(v).nexti {
		ret = append(ret, int(v))
	}
	return ret
}

// __map_vcore installs the vcore->pcore mapping and its inverse.  Hold
// the lock.  The spin synchronizes with the receive side of an
// in-flight __preempt or __death, which clears Valid on another core.
func (p *Proc_t) __map_vcore(vcoreid, pcoreid int32) {
	vc := p.vc(vcoreid)
	for atomic.LoadUint32(&vc.Valid) != 0 {
		runtime.Gosched()
	}
	vc.Pcoreid = pcoreid
	// pcoreid must be visible before the entry goes valid
	atomic.StoreUint32(&vc.Valid, 1)
	pm := &p.Procinfo.Pcoremap[pcoreid]
	pm.Vcoreid = vcoreid
	atomic.StoreUint32(&pm.Valid, 1)
}

// __unmap_vcore removes the mapping, inverse first.  Hold the lock, or
// be the pcore named by the mapping with interrupts disabled (the
// __preempt/__death receive side).  A stale preempt warning dies with
// the mapping.
func (p *Proc_t) __unmap_vcore(vcoreid int32) {
	vc := p.vc(vcoreid)
	atomic.StoreUint32(&p.Procinfo.Pcoremap[vc.Pcoreid].Valid, 0)
	atomic.StoreUint32(&vc.Valid, 0)
	vc.set_pending(0)
}

/// Vcore_is_mapped reports whether the vcore is backed by a pcore.
func (p *Proc_t) Vcore_is_mapped(vcoreid int) bool {
	return p.vc(int32(vcoreid)).Mapped()
}

// is_mapped_vcore: is the given pcore running one of our vcores?  No
// locking involved, be careful.
func (p *Proc_t) is_mapped_vcore(pcoreid int) bool {
	return p.Procinfo.Pcoremap[pcoreid].Mapped()
}

// get_vcoreid finds the vcoreid for a mapped pcore.  Only sound
// outside the lock when the caller is that pcore with interrupts
// disabled.  Panics on failure.
func (p *Proc_t) get_vcoreid(pcoreid int) int32 {
	if !p.is_mapped_vcore(pcoreid) {
		panic("pcore not mapped")
	}
	return p.Procinfo.Pcoremap[pcoreid].Vcoreid
}

// try_get_pcoreid may return a stale or wrong answer; use it only when
// that is tolerable.
func (p *Proc_t) try_get_pcoreid(vcoreid int32) int32 {
	return p.vc(vcoreid).Pcoreid
}

// get_pcoreid panics if the vcore is unmapped.
func (p *Proc_t) get_pcoreid(vcoreid int32) int32 {
	if !p.vc(vcoreid).Mapped() {
		panic("vcore not mapped")
	}
	return p.try_get_pcoreid(vcoreid)
}

func (p *Proc_t) vcpd(vcoreid int32) *Vcpd_t {
	return &p.Procdata.Vcore_preempt_data[vcoreid]
}
