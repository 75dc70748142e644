package proc

import "fmt"

import "manycore/defs"
import "manycore/event"
import "manycore/klog"
import "manycore/kmsg"
import "manycore/stats"
import "manycore/trap"

/// Proc_run_s dispatches a _S process to run on this core.  Always
/// returns; the context actually enters user mode when the core next
/// idles or restarts.  Does not eat the caller's reference: the
/// reference stored in Owning_proc is taken internally.
func (c *Percpu_t) Proc_run_s(p *Proc_t) {
	p.Lock()
	switch p.state {
	case defs.PROC_DYING:
		p.Unlock()
		klog.Printk("process not starting due to async death",
			klog.Ctx{"pid": p.Pid})
		return
	case defs.PROC_RUNNABLE_S:
		if c.Owning_proc != nil {
			panic("core already owned")
		}
		p.set_state(defs.PROC_RUNNING_S)
		// we want to know where this process is running even though it
		// is only a _S: the vcoremap makes death easy, and it is the
		// signal used to save the tf in env_tf on trap return
		pi := p.Procinfo
		pi.Coremap_seqctr.Write_start()
		pi.set_nvcores(1)
		p.vc_remove(&p.inactive_vcs, 0)
		p.vc_insert_tail(&p.online_vcs, 0)
		p.__map_vcore(0, int32(c.Id))
		pi.Coremap_seqctr.Write_end()
		// incref, since we're saving a reference in owning proc
		p.Incref(1)
		c.set_proc_current(p)
		p.Unlock()
		prev := c.irq_disable()
		// one of the few times cur_tf != &actual_tf
		c.Cur_tf = &p.Env_tf
		c.Owning_proc = p
		c.irq_restore(prev)
		return
	default:
		p.Unlock()
		panic(fmt.Sprintf("invalid process state %v in proc_run_s", p.state))
	}
}

// send_bulkp_events tells the process about any vcore still on the bulk
// preempt list: it won't be restarted, userspace must recover it.  The
// flags were all set at the real preempt.  Hold the lock.
func (p *Proc_t) send_bulkp_events() {
	for {
		v := p.vc_pop_head(&p.bulk_preempted_vcs)
		if v == -1 {
			break
		}
		p.send_kernel_event(event.Event_t{
			Type: defs.EV_VCORE_PREEMPT, Arg2: int(v)}, 0)
		p.vc_insert_head(&p.inactive_vcs, v)
	}
}

/// Proc_run_m runs an _M: sends __startcore to every online vcore.
/// Safe to call on one that is already running.  Hold the lock.  The
/// vcoremap is the instruction set for which cores to run on; set it
/// first with Give_cores.
func (p *Proc_t) Proc_run_m() {
	switch p.state {
	case defs.PROC_DYING:
		klog.Printk("process not starting due to async death",
			klog.Ctx{"pid": p.Pid})
		return
	case defs.PROC_RUNNABLE_M:
		if p.Procinfo.nvcores() > 0 {
			p.send_bulkp_events()
			p.set_state(defs.PROC_RUNNING_M)
			// up the refcnt here instead of the n upping on the
			// destination cores; keep in sync with __startcore
			p.Incref(int(p.Procinfo.nvcores()) * 2)
			for v := p.online_vcs.head; v != -1; v = p.vc(v).nexti {
				p.send_startcore(p.vc(v).Pcoreid)
			}
		} else {
			klog.Warn("tried to run an _M with no vcores",
				klog.Ctx{"pid": p.Pid})
		}
		// the unlock after our sends cannot be reordered before them:
		// holding the lock until every message is out prevents a death
		// message from slotting in between our startcores
		return
	case defs.PROC_RUNNING_M, defs.PROC_WAITING:
		return
	default:
		panic(fmt.Sprintf("invalid process state %v in proc_run_m", p.state))
	}
}

func (p *Proc_t) send_startcore(pcoreid int32) {
	// the message carries a counted reference to p
	p.mach.send_kernel_message(-1, int(pcoreid), "__startcore",
		kmsg.IMMEDIATE, func(c *Percpu_t) { c.__startcore(p) })
}

// proc_startcore actually runs the given context of process p on this
// core.  Interrupts must be off.  Does not return to the caller's
// world: the proc reference accounting must already look like "one ref
// stored in current".
func (c *Percpu_t) proc_startcore(p *Proc_t, tf *trap.Trapframe_t) {
	if c.irqon {
		panic("startcore with irqs enabled")
	}
	c.set_proc_current(p)
	// restore the silly state for _S procs; _M state was handled in
	// __startcore
	if p.State() == defs.PROC_RUNNING_S {
		c.fpstate = p.env_anc
	}
	c.pop_tf(tf)
}

/// Proc_restartcore restarts the current context on this core, first
/// processing any pending kernel messages.  If a __preempt or __death
/// took the core in the meantime, it idles instead.
func (c *Percpu_t) Proc_restartcore() {
	// take any interrupts now rather than in userspace
	c.irq_enable()
	c.irqon = false
	c.Kmsgs.Drain(kmsg.ROUTINE)
	if c.Owning_proc == nil {
		c.Abandon_core()
		c.irqon = true
		return
	}
	if c.Cur_tf == nil {
		panic("owning proc with no cur_tf")
	}
	tf := c.Cur_tf
	c.proc_startcore(c.Owning_proc, tf)
}

// proc_yield_s wraps up the current context and hands the _S back to
// the scheduler.  Hold the lock.
func (c *Percpu_t) proc_yield_s(p *Proc_t) {
	if p.state != defs.PROC_RUNNING_S {
		panic("yield_s on non-running proc")
	}
	p.Env_tf = *c.Cur_tf
	p.env_anc = c.fpstate
	pi := p.Procinfo
	pi.Coremap_seqctr.Write_start()
	p.__unmap_vcore(0)
	p.vc_remove(&p.online_vcs, 0)
	p.vc_insert_head(&p.inactive_vcs, 0)
	pi.set_nvcores(0)
	pi.Coremap_seqctr.Write_end()
	p.set_state(defs.PROC_RUNNABLE_S)
	p.mach.Sched.Schedule_scp(p)
}

/// Proc_yield gives up the calling core.  Must be called on the core
/// running the process.  For a _S it is a time-slice return; for a _M
/// it gives up the vcore, adjusting wanted/granted.  being_nice means
/// the yield answers a preemption warning and aborts if there is none.
/// On success it eats the passed-in reference and leaves the core idle;
/// on abort the reference survives.
func (c *Percpu_t) Proc_yield(p *Proc_t, being_nice bool) {
	// need irqs off before even reading the vcoreid: a __preempt or
	// __death could unmap us under our feet
	prev := c.irq_disable()
	p.Lock()
	switch p.state {
	case defs.PROC_RUNNING_S:
		c.proc_yield_s(p)
		goto out_yield_core
	case defs.PROC_RUNNING_M:
		// handled below
	case defs.PROC_DYING, defs.PROC_RUNNABLE_M:
		// incoming __death or (bulk) preempt
		goto out_failed
	default:
		panic(fmt.Sprintf("weird state %v in proc_yield", p.state))
	}
	{
		// if we're already unmapped, a __preempt or __death beat us here
		if !p.is_mapped_vcore(c.Id) {
			goto out_failed
		}
		vcoreid := p.get_vcoreid(c.Id)
		vc := p.vc(vcoreid)
		vcpd := p.vcpd(vcoreid)
		// no reason to be nice if there's no preempt pending
		if being_nice && vc.pending() == 0 {
			goto out_failed
		}
		// fate is sealed: a __preempt is on the way; take it when irqs
		// come back on and don't touch the lists
		if vc.served() {
			goto out_failed
		}
		// we are yielding, so the warning is satisfied either way
		vc.set_pending(0)
		// userspace must not leave vcore context with notif_pending
		// set; this early check is the cheap one
		if vcpd.Notif_pending() {
			goto out_failed
		}
		p.vc_remove(&p.online_vcs, vcoreid)
		// now that we're off the online list, re-check for an alert
		// that raced in; event posting looks at the online list
		if vcpd.Notif_pending() {
			// lost; put it back and abort the yield
			p.vc_insert_tail(&p.online_vcs, vcoreid)
			goto out_failed
		}
		// we won the race with event sending
		p.vc_insert_head(&p.inactive_vcs, vcoreid)
		pi := p.Procinfo
		pi.Coremap_seqctr.Write_start()
		// next time this vcore starts, it starts fresh
		vcpd.Set_notif_disabled(false)
		p.__unmap_vcore(vcoreid)
		n := pi.nvcores() - 1
		pi.set_nvcores(n)
		p.Resources[defs.RES_CORES].Amt_granted = n
		if !being_nice {
			p.Resources[defs.RES_CORES].Amt_wanted = n
		}
		pi.Coremap_seqctr.Write_end()
		stats.Kstats.Nyield.Inc()
		// hand the now-idle core to the ksched
		p.mach.Sched.Put_idle_core(c.Id)
		// last vcore? then we really want 1, and wait for it
		if n == 0 {
			p.Resources[defs.RES_CORES].Amt_wanted = 1
			p.set_state(defs.PROC_WAITING)
			p.mach.Sched.Proc_waiting(p)
		}
		goto out_yield_core
	}
out_failed:
	// just return, either to take a KMSG that cleans us up or because
	// we shouldn't yield (ex: notif_pending)
	stats.Kstats.Nyield_abort.Inc()
	p.Unlock()
	c.irq_restore(prev)
	return
out_yield_core:
	p.Unlock()
	// eat the reference passed in
	p.Decref()
	c.Clear_owning_proc()
	c.Abandon_core()
	c.Smp_idle()
}

/// Proc_make_runnable moves a freshly created process into the
/// scheduler's hands.  The syscall layer calls this once after Create.
func (p *Proc_t) Proc_make_runnable() {
	p.Lock()
	p.set_state(defs.PROC_RUNNABLE_S)
	p.mach.Sched.Schedule_scp(p)
	p.Unlock()
}

/// Proc_notify sends an active notification to p's vcore, if the vcore
/// has them enabled.  Unlocked on purpose: usable from interrupt
/// context; spurious __notify messages are dropped by the handler.
func (p *Proc_t) Proc_notify(vcoreid int) {
	vcpd := p.vcpd(int32(vcoreid))
	vcpd.Set_notif_pending(true)
	// pending must be visible before we read notif_disabled
	if !vcpd.Notif_disabled() {
		p.Lock()
		running := p.state == defs.PROC_RUNNING_M
		p.Unlock()
		if running && p.Vcore_is_mapped(vcoreid) {
			klog.Printd("sending notif", klog.Ctx{
				"pid": p.Pid, "vcore": vcoreid})
			// racy use of the map; the handler re-checks the owner
			dst := int(p.try_get_pcoreid(int32(vcoreid)))
			p.mach.send_kernel_message(-1, dst, "__notify",
				kmsg.IMMEDIATE, func(c *Percpu_t) { c.__notify(p) })
		}
	}
}

/// Proc_wakeup wakes a WAITING process.  Hold the lock.  An MCP goes
/// back to RUNNABLE_M; an SCP is handed to the scheduler.
func (p *Proc_t) Proc_wakeup() {
	if p.state != defs.PROC_WAITING {
		return
	}
	if p.Procinfo.Is_mcp {
		p.set_state(defs.PROC_RUNNABLE_M)
	} else {
		p.set_state(defs.PROC_RUNNABLE_S)
		p.mach.Sched.Schedule_scp(p)
	}
}

/// Proc_switch_to_m turns a RUNNING_S process into an MCP.  Must be
/// called from a local syscall of the process, on its own core.  Hold
/// the lock.
func (c *Percpu_t) Proc_switch_to_m(p *Proc_t) {
	switch p.state {
	case defs.PROC_RUNNING_S:
		if c.Cur_proc != p || int(p.get_pcoreid(0)) != c.Id {
			panic("async RUNNING_S core requests not handled")
		}
		// save the tf so userspace can restart it; the notif slot gets
		// the context, the preempt slot gets the silly state
		vcpd := p.vcpd(0)
		prev := c.irq_disable()
		if c.Cur_tf == nil {
			panic("no cur_tf")
		}
		vcpd.Notif_tf = *c.Cur_tf
		c.Clear_owning_proc()
		vcpd.Preempt_anc = c.fpstate
		c.irq_restore(prev)
		// userspace needs to not fiddle with notif_disabled before
		// transitioning
		if vcpd.Notif_disabled() {
			klog.Warn_once("user bug: notifs disabled for vcore 0",
				klog.Ctx{"pid": p.Pid})
			vcpd.Set_notif_disabled(false)
		}
		pi := p.Procinfo
		pi.Coremap_seqctr.Write_start()
		p.__unmap_vcore(0)
		p.vc_remove(&p.online_vcs, 0)
		p.vc_insert_head(&p.inactive_vcs, 0)
		pi.set_nvcores(0)
		pi.Coremap_seqctr.Write_end()
		p.set_state(defs.PROC_RUNNABLE_M)
		pi.Is_mcp = true
	case defs.PROC_RUNNABLE_S:
		panic("not supporting RUNNABLE_S -> RUNNABLE_M yet")
	case defs.PROC_DYING:
		klog.Warn("dying process asked for cores", klog.Ctx{"pid": p.Pid})
	default:
	}
}

/// Proc_switch_to_s turns a RUNNING_M back into a RUNNABLE_S, the
/// calling context becoming the new thread0.  Deprecated.
func (c *Percpu_t) Proc_switch_to_s(p *Proc_t) {
	klog.Printk("trying to transition _M -> _S (deprecated)", klog.Ctx{
		"pid": p.Pid})
	if p.state != defs.PROC_RUNNING_M {
		panic("switch_to_s on non-running _M")
	}
	prev := c.irq_disable()
	if c.Cur_tf == nil {
		panic("no cur_tf")
	}
	p.Env_tf = *c.Cur_tf
	c.Clear_owning_proc()
	c.irq_restore(prev)
	p.env_anc = c.fpstate
	// sending death; not our job to save contexts in this case
	p.take_allcores_dumb(false)
	// the __death aimed at this core will find no owner, so retire our
	// own mapping here
	if p.is_mapped_vcore(c.Id) {
		p.__unmap_vcore(p.get_vcoreid(c.Id))
	}
	p.set_state(defs.PROC_RUNNABLE_S)
}

/// Proc_get_vcoreid returns which vcore of p the given pcore runs.
func (p *Proc_t) Proc_get_vcoreid(pcoreid int) int {
	p.Lock()
	defer p.Unlock()
	switch p.state {
	case defs.PROC_RUNNING_S:
		return 0
	case defs.PROC_RUNNING_M:
		return int(p.get_vcoreid(pcoreid))
	case defs.PROC_DYING:
		// death message is on the way
		return 0
	default:
		panic(fmt.Sprintf("weird state %v in proc_get_vcoreid", p.state))
	}
}

/// Proc_tlbshootdown flushes the given user virtual range on every core
/// running this process.
func (p *Proc_t) Proc_tlbshootdown(start, end uintptr) {
	p.Lock()
	defer p.Unlock()
	switch p.state {
	case defs.PROC_RUNNING_S:
		p.mach.Cpu(int(p.get_pcoreid(0))).tlbflush()
	case defs.PROC_RUNNING_M:
		for v := p.online_vcs.head; v != -1; v = p.vc(v).nexti {
			dst := int(p.vc(v).Pcoreid)
			p.mach.send_kernel_message(-1, dst, "__tlbshootdown",
				kmsg.IMMEDIATE, func(c *Percpu_t) {
					c.__tlbshootdown(start, end)
				})
		}
	case defs.PROC_DYING:
		// death messages already clear the TLBs
	default:
		klog.Warn("unexpected state in tlbshootdown", klog.Ctx{
			"pid": p.Pid, "state": p.state.String()})
	}
}

/// Proc_change_to_vcore switches the calling vcore to new_vcoreid.
/// Callable only from vcore context of an online vcore of a RUNNING_M
/// process.  enable_my_notif says whether the caller's context can be
/// thrown away (it will look preempted otherwise).
func (c *Percpu_t) Proc_change_to_vcore(p *Proc_t, new_vcoreid int,
	enable_my_notif bool) {
	// irqs off before reading the vcoremap, same as yield
	prev := c.irq_disable()
	p.Lock()
	// new vcore already running, abort
	if p.Vcore_is_mapped(new_vcoreid) {
		goto out_failed
	}
	switch p.state {
	case defs.PROC_RUNNING_M:
		// the only case we can proceed
	case defs.PROC_RUNNING_S:
		klog.Warn_once("user bug: change_to_vcore from a _S",
			klog.Ctx{"pid": p.Pid})
		goto out_failed
	case defs.PROC_DYING, defs.PROC_RUNNABLE_M:
		goto out_failed
	default:
		panic(fmt.Sprintf("weird state %v in change_to_vcore", p.state))
	}
	{
		if !p.is_mapped_vcore(c.Id) {
			goto out_failed
		}
		caller_vcoreid := p.get_vcoreid(c.Id)
		caller_vcpd := p.vcpd(caller_vcoreid)
		caller_vc := p.vc(caller_vcoreid)
		// should only be called from vcore context
		if !caller_vcpd.Notif_disabled() {
			klog.Warn_once("user bug: change_to_vcore from uthread ctx",
				klog.Ctx{"pid": p.Pid})
			goto out_failed
		}
		// return and take the preempt message when irqs come back
		if caller_vc.served() {
			goto out_failed
		}
		if enable_my_notif {
			// the caller restarts from scratch; neither saved frame
			// matters
			caller_vcpd.Set_notif_disabled(false)
		} else {
			// make the caller look preempted so __startcore restarts it
			caller_vcpd.Preempt_tf = *c.Cur_tf
			caller_vcpd.Preempt_anc = c.fpstate
			caller_vcpd.Or_flags(VC_PREEMPTED)
		}
		// offline the caller, online the new vcore
		p.vc_remove(&p.online_vcs, caller_vcoreid)
		// notif_pending may still be set; this looks like a preempted
		// vcore and userspace recovery deals with missed messages
		p.vc_insert_head(&p.inactive_vcs, caller_vcoreid)
		p.vc_remove(&p.inactive_vcs, int32(new_vcoreid))
		p.vc_insert_tail(&p.online_vcs, int32(new_vcoreid))
		pi := p.Procinfo
		pi.Coremap_seqctr.Write_start()
		p.__unmap_vcore(caller_vcoreid)
		p.__map_vcore(int32(new_vcoreid), int32(c.Id))
		pi.Coremap_seqctr.Write_end()
		// either a full preemption recovery or just a message check
		ev := defs.EV_VCORE_PREEMPT
		if enable_my_notif {
			ev = defs.EV_CHECK_MSGS
		}
		p.send_kernel_event(event.Event_t{
			Type: ev, Arg2: int(caller_vcoreid)}, new_vcoreid)
		// become the new vcore locally
		c.set_curtf_to_vcoreid(p, int32(new_vcoreid))
	}
out_failed:
	p.Unlock()
	c.irq_restore(prev)
}
