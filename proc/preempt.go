package proc

// Preemption: warnings post an event and a deadline; the revocation
// itself rides the grant/revoke protocol with state saving turned on.

import "time"

import "manycore/defs"
import "manycore/event"
import "manycore/klog"

// read_tsc returns the current time in tsc ticks, for preempt warning
// deadlines.  The deadline is advisory; an external alarm notices
// expiry and calls Proc_preempt_core.
func (m *Machine_t) read_tsc() uint64 {
	return uint64(time.Now().UnixNano()) * (m.Tsc_freq / 1e9)
}

func (m *Machine_t) usec2tsc(usec uint64) uint64 {
	return usec * (m.Tsc_freq / 1e6)
}

/// Preempt_warn warns p's vcore of an impending preemption, to go off
/// at absolute time when.  Hold the lock if you care about the mapping.
/// Takes a vcoreid.
func (p *Proc_t) Preempt_warn(vcoreid int, when uint64) {
	// unlocked danger in the original: preempt_pending was never 0'd
	// once the vcore was unmapped.  we clear it on unmap instead.
	p.vc(int32(vcoreid)).set_pending(when)
	p.send_kernel_event(event.Event_t{
		Type: defs.EV_PREEMPT_PENDING, Arg1: vcoreid}, vcoreid)
}

/// Preempt_warnall warns every online vcore.  Hold the lock.
func (p *Proc_t) Preempt_warnall(when uint64) {
	for v := p.online_vcs.head; v != -1; v = p.vc(v).nexti {
		p.Preempt_warn(int(v), when)
	}
}

// preempt_core is the raw single-core preempt.  Hold the lock.
func (p *Proc_t) preempt_core(pcoreid int) {
	vcoreid := p.get_vcoreid(pcoreid)
	p.vc(vcoreid).set_served(true)
	p.Take_corelist([]int{pcoreid}, true)
	p.send_kernel_event(event.Event_t{
		Type: defs.EV_VCORE_PREEMPT, Arg2: int(vcoreid)}, 0)
}

// preempt_all is the raw everything preempt.  Hold the lock.
func (p *Proc_t) preempt_all() {
	// only the active vcores get preempt_served; stale serveds on
	// inactive vcores would confuse later yields
	for v := p.online_vcs.head; v != -1; v = p.vc(v).nexti {
		p.vc(v).set_served(true)
	}
	p.take_allcores_dumb(true)
}

/// Proc_preempt_core warns and immediately preempts a single pcore,
/// with a warning deadline usec from now.  The pcore is handed back to
/// the idle pool.
func (p *Proc_t) Proc_preempt_core(pcoreid int, usec uint64) {
	warn_time := p.mach.read_tsc() + p.mach.usec2tsc(usec)
	// DYING could be okay
	if p.State() != defs.PROC_RUNNING_M {
		klog.Warn("tried to preempt from a non RUNNING_M proc",
			klog.Ctx{"pid": p.Pid})
		return
	}
	p.Lock()
	if p.is_mapped_vcore(pcoreid) {
		p.Preempt_warn(int(p.get_vcoreid(pcoreid)), warn_time)
		p.preempt_core(pcoreid)
		p.mach.Sched.Put_idle_core(pcoreid)
	} else {
		klog.Warn("pcore doesn't belong to the process",
			klog.Ctx{"pid": p.Pid, "pcore": pcoreid})
	}
	if p.Procinfo.nvcores() == 0 {
		p.set_state(defs.PROC_RUNNABLE_M)
	}
	p.Unlock()
}

/// Proc_preempt_all warns and preempts every vcore, leaving the process
/// RUNNABLE_M with its vcores on the bulk-preempted list.
func (p *Proc_t) Proc_preempt_all(usec uint64) {
	warn_time := p.mach.read_tsc() + p.mach.usec2tsc(usec)
	p.Lock()
	// DYING could be okay
	if p.state != defs.PROC_RUNNING_M {
		klog.Warn("tried to preempt from a non RUNNING_M proc",
			klog.Ctx{"pid": p.Pid})
		p.Unlock()
		return
	}
	p.Preempt_warnall(warn_time)
	p.preempt_all()
	if p.Procinfo.nvcores() != 0 {
		panic("preempt_all left vcores online")
	}
	p.set_state(defs.PROC_RUNNABLE_M)
	p.Unlock()
}

/// Proc_give grants a single pcore.  Lots of assumptions; the process
/// needs to be _M and ready for it.
func (p *Proc_t) Proc_give(pcoreid int) {
	p.Lock()
	p.Give_cores([]int{pcoreid})
	p.Unlock()
}
