package proc

// Kernel message handlers.  All of these run on the target pcore with
// interrupts disabled, in the IMMEDIATE class.

import "manycore/klog"
import "manycore/stats"
import "manycore/trap"

// set_curtf_to_vcoreid points cur_tf at the context the given vcore
// should run.  Used by __startcore and change_to_vcore; the caller sets
// up owning_proc and friends.  We might not have p loaded as current.
func (c *Percpu_t) set_curtf_to_vcoreid(p *Proc_t, vcoreid int32) {
	vcpd := p.vcpd(vcoreid)
	// the vcore can take events as soon as we know it will be online
	vcpd.Or_flags(VC_CAN_RCV_MSG)
	// no longer preempted.  no clobbering danger: a __preempt can't be
	// concurrent with this function on this core, and a concurrent
	// VC_K_LOCK toggle is a different bit.
	vcpd.And_flags(^VC_PREEMPTED)
	klog.Printd("startcore", klog.Ctx{
		"pcore": c.Id, "pid": p.Pid, "vcore": vcoreid})
	if vcpd.Notif_disabled() {
		// the vcore was in vcore context; restart the preempt slot
		c.fpstate = vcpd.Preempt_anc
		c.Actual_tf = vcpd.Preempt_tf
		trap.Secure_tf(&c.Actual_tf)
	} else {
		// fresh vcore, or restarting one that can start from scratch
		if vcpd.Transition_stack == 0 {
			panic("no transition stack")
		}
		trap.Init_user_tf(&c.Actual_tf, p.Env_entry,
			vcpd.Transition_stack, int(vcoreid))
		// fresh vcores run with active notifications masked
		vcpd.Set_notif_disabled(true)
	}
	c.Cur_tf = &c.Actual_tf
	// this cur_tf runs when the kernel returns / idles
}

// __startcore makes this core run a vcore of p the next time it
// considers running a process.  Tightly coupled with Proc_run_m.  The
// sender increfed twice: one ref lands in owning_proc, one in cur_proc
// unless someone else is there.
func (c *Percpu_t) __startcore(p *Proc_t) {
	stats.Kstats.Nstartcore.Inc()
	if c.Owning_proc != nil {
		panic("__startcore on an owned core")
	}
	c.Owning_proc = p
	if c.Cur_proc == nil {
		// install the ref and load the page tables to match
		c.Cur_proc = p
		c.lcr3(p.Aspace.P_cr3)
	} else {
		// can't install, drop the extra ref
		p.Decref()
	}
	// note we are not necessarily in the cr3 of p
	vcoreid := p.get_vcoreid(c.Id)
	c.set_curtf_to_vcoreid(p, vcoreid)
}

// __notify interrupts a vcore into its notification handler, unless
// notifications are masked.  Bails if the wrong process owns the core:
// spurious __notify messages are expected.
func (c *Percpu_t) __notify(p *Proc_t) {
	if p != c.Owning_proc {
		return
	}
	if c.Cur_tf != &c.Actual_tf {
		panic("cur_tf not the core's frame")
	}
	if trap.In_kernel(c.Cur_tf) {
		panic("notify of a kernel frame")
	}
	// no lock: unmapping happens on this pcore, and mapping only
	// happens after the vcore is free, which it isn't until we unmap
	vcoreid := p.get_vcoreid(c.Id)
	vcpd := p.vcpd(vcoreid)
	stats.Kstats.Nnotify.Inc()
	// notifs are masked, like an interrupt gate
	if vcpd.Notif_disabled() {
		return
	}
	vcpd.Set_notif_disabled(true)
	// no longer pending - it made it here
	vcpd.Set_notif_pending(false)
	// save the old tf in the notify slot, build and pop a new one.
	// silly state isn't our business for a notification.
	vcpd.Notif_tf = *c.Cur_tf
	*c.Cur_tf = trap.Trapframe_t{}
	trap.Init_user_tf(c.Cur_tf, p.Env_entry, vcpd.Transition_stack,
		int(vcoreid))
}

// __preempt saves a vcore's context into its preempt slots and gives
// the core back.  The sender set VC_K_LOCK and preempt_served; we clear
// preempt_served on arrival and VC_K_LOCK once everything is saved.
func (c *Percpu_t) __preempt(p *Proc_t) {
	if p == nil {
		panic("no proc in __preempt")
	}
	if p != c.Owning_proc {
		panic("__preempt arrived for a process that was not owning")
	}
	if c.Cur_tf != &c.Actual_tf {
		panic("cur_tf not the core's frame")
	}
	if trap.In_kernel(c.Cur_tf) {
		panic("preempt of a kernel frame")
	}
	vcoreid := p.get_vcoreid(c.Id)
	vc := p.vc(vcoreid)
	// either __preempt or proc_yield ends the preempt phase
	vc.set_served(false)
	vc.set_pending(0)
	vcpd := p.vcpd(vcoreid)
	stats.Kstats.Npreempt.Inc()
	klog.Printd("preempt", klog.Ctx{
		"pcore": c.Id, "pid": p.Pid, "vcore": vcoreid})
	// if notifs are disabled the vcore is in vcore context and we save
	// to the preempt slot.  o/w the notif slot: when the vcore comes
	// back up it looks like it just took a notification.
	if vcpd.Notif_disabled() {
		vcpd.Preempt_tf = *c.Cur_tf
	} else {
		vcpd.Notif_tf = *c.Cur_tf
	}
	// either way, we save the silly state
	vcpd.Preempt_anc = c.fpstate
	// mark the vcore preempted and unlock (locked by the sender); both
	// must hit before the unmap below is visible
	vcpd.Or_flags(VC_PREEMPTED)
	vcpd.And_flags(^VC_K_LOCK)
	p.__unmap_vcore(vcoreid)
	// we won't restart the process here; current gets cleared when the
	// core notices it has no owner and nothing to do
	c.Clear_owning_proc()
}

// __death cleans up the core for a dying process.  No context is
// saved; this is a hard kill for this pcore's slice.  Death arriving at
// an idle core is fine: the process may have decref'd to zero before a
// startcore could incref.
func (c *Percpu_t) __death() {
	stats.Kstats.Ndeath.Inc()
	if p := c.Owning_proc; p != nil {
		vcoreid := p.get_vcoreid(c.Id)
		klog.Printd("death", klog.Ctx{
			"pcore": c.Id, "pid": p.Pid, "vcore": vcoreid})
		p.__unmap_vcore(vcoreid)
		c.Clear_owning_proc()
	}
}

// __tlbshootdown flushes the given virtual range on the local TLB.
func (c *Percpu_t) __tlbshootdown(start, end uintptr) {
	// no ranged invalidation yet; flush everything
	_ = start
	_ = end
	c.tlbflush()
}
