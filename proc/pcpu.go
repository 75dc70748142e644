package proc

import "manycore/kmsg"
import "manycore/mem"
import "manycore/stats"
import "manycore/trap"

/// Percpu_t is one pcore's private state.  Nothing here is shared with
/// user space.  The simulation is cooperative: a core only executes
/// when one of its methods is called, and queued kernel messages run at
/// the next point the core would have interrupts enabled (Pump,
/// irq_restore, Smp_idle, Proc_restartcore).
type Percpu_t struct {
	Id int
	/// Owning_proc is the process this pcore is currently assigned to,
	/// holding one counted reference.  May be nil.
	Owning_proc *Proc_t
	/// Cur_proc is the process whose address space is loaded, holding
	/// one counted reference.  Briefly may differ from Owning_proc.
	Cur_proc *Proc_t
	/// Cur_tf points at the context that will run when the core next
	/// returns to user mode.
	Cur_tf *trap.Trapframe_t
	/// Actual_tf is the storage Cur_tf usually points into.
	Actual_tf trap.Trapframe_t
	Kmsgs     kmsg.Queue_t

	// live FP register file of this core
	fpstate trap.Ancillary_t
	// loaded page table root
	cr3 mem.Pa_t
	// interrupt flag; immediate kmsgs are delivered only while set
	irqon bool
	// observability for the harness and tests
	Nresume   int
	Last_pop  trap.Trapframe_t
	ntlbflush int

	mach *Machine_t
}

// irq_disable clears the interrupt flag, returning the previous state.
func (c *Percpu_t) irq_disable() bool {
	prev := c.irqon
	c.irqon = false
	return prev
}

// irq_restore restores the interrupt flag; enabling delivers pending
// immediate messages.
func (c *Percpu_t) irq_restore(prev bool) {
	if prev {
		c.irq_enable()
	}
}

func (c *Percpu_t) irq_enable() {
	c.irqon = true
	c.run_immediate()
}

// run_immediate delivers queued IMMEDIATE messages in order.  Each
// handler runs with interrupts disabled.  If the core was in user mode
// (it owns a process but has no saved frame), the interrupt entry saves
// the running user context first, the way the trap path would.
func (c *Percpu_t) run_immediate() {
	for {
		if !c.irqon {
			return
		}
		if c.Owning_proc != nil && c.Cur_tf == nil &&
			!c.Kmsgs.Empty(kmsg.IMMEDIATE) {
			c.Actual_tf = c.Last_pop
			c.Cur_tf = &c.Actual_tf
		}
		c.irqon = false
		n := c.Kmsgs.Drain(kmsg.IMMEDIATE)
		c.irqon = true
		if n == 0 {
			return
		}
	}
}

/// Pump delivers any queued kernel messages, as if the core took an
/// interrupt.  Harness and test entry point.
func (c *Percpu_t) Pump() {
	c.irq_enable()
}

/// Process_routine_kmsg runs queued ROUTINE messages, after any
/// IMMEDIATE ones.
func (c *Percpu_t) Process_routine_kmsg() {
	c.run_immediate()
	c.irqon = false
	c.Kmsgs.Drain(kmsg.ROUTINE)
	c.irqon = true
}

// send_kernel_message binds a handler invocation to the destination
// core and enqueues it.
func (m *Machine_t) send_kernel_message(src, dst int, what string,
	prio kmsg.Prio_t, f func(c *Percpu_t)) {
	c := m.Cpu(dst)
	c.Kmsgs.Send(kmsg.Msg_t{Srcid: src, What: what, F: func() { f(c) }}, prio)
	stats.Kstats.Nkmsg.Inc()
}

// lcr3 loads a page table root.
func (c *Percpu_t) lcr3(pa mem.Pa_t) {
	c.cr3 = pa
	c.ntlbflush++
}

/// Cr3 returns the loaded page table root.  Tests and debugging.
func (c *Percpu_t) Cr3() mem.Pa_t {
	return c.cr3
}

// tlbflush reloads the current root, flushing the local TLB.
func (c *Percpu_t) tlbflush() {
	c.lcr3(c.cr3)
	stats.Kstats.Ntlbshoot.Inc()
}

// set_proc_current makes p the core's current process, loading its
// address space and dropping the old current.  Increfs internally when
// needed.
func (c *Percpu_t) set_proc_current(p *Proc_t) {
	if p != c.Cur_proc {
		p.Incref(1)
		c.lcr3(p.Aspace.P_cr3)
		// this is "leaving the process context" of the previous proc;
		// rare, since we usually proactively leave process context
		if c.Cur_proc != nil {
			c.Cur_proc.Decref()
		}
		c.Cur_proc = p
	}
}

/// Abandon_core stops running whatever context is on this core and
/// loads the boot page table.  Leaves no trace of what was running.
/// Does not clear the owning proc; use Clear_owning_proc for that.
func (c *Percpu_t) Abandon_core() {
	if c.irqon {
		panic("abandon with irqs enabled")
	}
	if c.Cur_proc != nil {
		c.lcr3(mem.BOOT_CR3)
		c.Cur_proc.Decref()
		c.Cur_proc = nil
	}
}

/// Clear_owning_proc drops the core's owning process and its reference.
func (c *Percpu_t) Clear_owning_proc() {
	if c.irqon {
		panic("clearing owner with irqs enabled")
	}
	p := c.Owning_proc
	c.Owning_proc = nil
	c.Cur_tf = nil
	if p != nil {
		p.Decref()
	}
}

/// Switch_to temporarily enters new_p's address space, returning the
/// old current process.  No refcounts move: the old current's ref is
/// passed back to the caller, and new_p's caller-held ref covers
/// Cur_proc.  Pair with Switch_back; don't migrate cores in between.
func (c *Percpu_t) Switch_to(new_p *Proc_t) *Proc_t {
	prev := c.irq_disable()
	old := c.Cur_proc
	if old != new_p {
		c.Cur_proc = new_p
		c.lcr3(new_p.Aspace.P_cr3)
	}
	c.irq_restore(prev)
	return old
}

/// Switch_back restores the current process saved by Switch_to.
func (c *Percpu_t) Switch_back(new_p, old *Proc_t) {
	if old != new_p {
		prev := c.irq_disable()
		c.Cur_proc = old
		if old != nil {
			c.lcr3(old.Aspace.P_cr3)
		} else {
			c.lcr3(mem.BOOT_CR3)
		}
		c.irq_restore(prev)
	}
}

// pop_tf returns to user mode: the frame is delivered and the kernel
// stack is considered reusable.  In the simulation that means
// recording the frame and re-enabling interrupts.
func (c *Percpu_t) pop_tf(tf *trap.Trapframe_t) {
	c.Last_pop = *tf
	c.Nresume++
	c.Cur_tf = nil
	c.irq_enable()
}

/// Trap_entry simulates a trap from user mode: the core enters the
/// kernel with interrupts disabled and Cur_tf pointing at the saved
/// frame.  The harness and tests use it to stand in for the
/// architecture trap path.
func (c *Percpu_t) Trap_entry(tf trap.Trapframe_t) {
	c.irqon = false
	c.Actual_tf = tf
	trap.Secure_tf(&c.Actual_tf)
	c.Cur_tf = &c.Actual_tf
}

/// Smp_idle is the idle loop entry: deliver messages, and if something
/// gave us a process to run, run it.
func (c *Percpu_t) Smp_idle() {
	c.irq_enable()
	c.irqon = false
	c.Kmsgs.Drain(kmsg.ROUTINE)
	if c.Owning_proc != nil {
		c.Proc_restartcore()
		return
	}
	c.Abandon_core()
	c.check_my_owner()
	c.irqon = true
}
