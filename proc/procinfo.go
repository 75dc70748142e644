package proc

import "sync/atomic"

import "manycore/defs"
import "manycore/event"
import "manycore/seqlock"
import "manycore/trap"

/// Vcore_t is one entry of the vcoremap, embedded in procinfo.  The
/// pcoreid is only meaningful while Valid is set.  The list links embed
/// the entry in exactly one of the three per-process vcore lists at all
/// times.
type Vcore_t struct {
	Pcoreid         int32
	Valid           uint32
	Preempt_pending uint64 /// absolute warning deadline; 0 = none
	Preempt_served  uint32 /// a __preempt for this vcore is in flight
	// list links; -1 terminates
	nexti int32
	previ int32
}

/// Mapped reports whether the vcore is currently backed by a pcore.
func (vc *Vcore_t) Mapped() bool {
	return atomic.LoadUint32(&vc.Valid) != 0
}

func (vc *Vcore_t) served() bool {
	return atomic.LoadUint32(&vc.Preempt_served) != 0
}

func (vc *Vcore_t) set_served(b bool) {
	var v uint32
	if b {
		v = 1
	}
	atomic.StoreUint32(&vc.Preempt_served, v)
}

func (vc *Vcore_t) pending() uint64 {
	return atomic.LoadUint64(&vc.Preempt_pending)
}

func (vc *Vcore_t) set_pending(when uint64) {
	atomic.StoreUint64(&vc.Preempt_pending, when)
}

/// Pcoremap_t is the inverse map entry: which vcore, if any, a pcore is
/// running for this process.
type Pcoremap_t struct {
	Vcoreid int32
	Valid   uint32
}

/// Mapped reports whether the pcore runs a vcore of this process.
func (pm *Pcoremap_t) Mapped() bool {
	return atomic.LoadUint32(&pm.Valid) != 0
}

/// Sizes of the packed argument area in procinfo.
const (
	PROCINFO_MAX_ARGP = 32
	PROCINFO_ARGBUF   = 3072
)

/// Procinfo_t is the kernel-written, user-readable shared page.  The
/// layout, and in particular Coremap_seqctr wrapping every coremap
/// mutation, is external ABI.
type Procinfo_t struct {
	Pid            defs.Pid_t
	Ppid           defs.Pid_t
	Max_vcores     int32
	Tsc_freq       uint64
	Heap_bottom    uintptr
	Argp           [PROCINFO_MAX_ARGP]int32 /// offsets into Argbuf; -1 = unused
	Argbuf         [PROCINFO_ARGBUF]uint8
	num_vcores     uint32
	Is_mcp         bool
	Coremap_seqctr seqlock.Seqctr_t
	Vcoremap       [defs.MAX_CPUS]Vcore_t
	Pcoremap       [defs.MAX_CPUS]Pcoremap_t
}

func (pi *Procinfo_t) nvcores() uint32 {
	return atomic.LoadUint32(&pi.num_vcores)
}

func (pi *Procinfo_t) set_nvcores(n uint32) {
	atomic.StoreUint32(&pi.num_vcores, n)
}

// pack_args flattens argv and envp into the shared argument buffer the
// way a user runtime expects them: argv entries, a gap, envp entries,
// each argp slot holding the offset of its NUL-terminated string.
func (pi *Procinfo_t) pack_args(argv, envp []string) {
	for i := range pi.Argp {
		pi.Argp[i] = -1
	}
	off := 0
	slot := 0
	put := func(s string) bool {
		if slot >= PROCINFO_MAX_ARGP-1 || off+len(s)+1 > PROCINFO_ARGBUF {
			return false
		}
		pi.Argp[slot] = int32(off)
		copy(pi.Argbuf[off:], s)
		off += len(s)
		pi.Argbuf[off] = 0
		off++
		slot++
		return true
	}
	for _, a := range argv {
		if !put(a) {
			return
		}
	}
	// terminator slot between argv and envp
	slot++
	for _, e := range envp {
		if !put(e) {
			return
		}
	}
}

/// VCPD flag bits, manipulated with atomic or/and.
const (
	VC_PREEMPTED   uint32 = 1 << 0 /// vcore was preempted; state is in the preempt slots
	VC_K_LOCK      uint32 = 1 << 1 /// kernel owns the VCPD until the preempt finishes
	VC_CAN_RCV_MSG uint32 = 1 << 2 /// vcore can be the target of events
)

/// Vcpd_t is the per-vcore preempt data: the only mutable state shared
/// with user space.  Notif_pending and Notif_disabled are signals
/// between kernel and user; the write of one is always fenced before
/// the read of the other to avoid lost notifications.
type Vcpd_t struct {
	Notif_tf         trap.Trapframe_t
	Preempt_tf       trap.Trapframe_t
	Preempt_anc      trap.Ancillary_t
	notif_pending    uint32
	notif_disabled   uint32
	flags            uint32
	Transition_stack uintptr
}

func (v *Vcpd_t) Notif_pending() bool {
	return atomic.LoadUint32(&v.notif_pending) != 0
}

func (v *Vcpd_t) Set_notif_pending(b bool) {
	var n uint32
	if b {
		n = 1
	}
	atomic.StoreUint32(&v.notif_pending, n)
}

func (v *Vcpd_t) Notif_disabled() bool {
	return atomic.LoadUint32(&v.notif_disabled) != 0
}

func (v *Vcpd_t) Set_notif_disabled(b bool) {
	var n uint32
	if b {
		n = 1
	}
	atomic.StoreUint32(&v.notif_disabled, n)
}

func (v *Vcpd_t) Flags() uint32 {
	return atomic.LoadUint32(&v.flags)
}

func (v *Vcpd_t) Or_flags(f uint32) {
	atomic.OrUint32(&v.flags, f)
}

func (v *Vcpd_t) And_flags(f uint32) {
	atomic.AndUint32(&v.flags, f)
}

/// Procdata_t is the user-writable shared page: per-vcore preempt data
/// and the system event ring.
type Procdata_t struct {
	Vcore_preempt_data [defs.MAX_CPUS]Vcpd_t
	Sysevents          event.Ring_t
}
