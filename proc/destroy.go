package proc

import "fmt"

import "manycore/defs"
import "manycore/kmsg"

/// Proc_destroy kills the process.  Callable from anywhere: another
/// process, a kernel thread with no process context, cross-core, or
/// the process itself.  Always returns; the caller's reference is
/// untouched, but a death message may already be headed for the
/// caller's own core.
///
/// Death works like this: with the lock held, the state goes to DYING
/// so the rest of the kernel stops touching the process; any cores it
/// is running on get __death messages; the existence reference drops.
/// The last core to decref runs the destructor.
func (p *Proc_t) Proc_destroy() {
	p.Lock()
	switch p.state {
	case defs.PROC_DYING:
		// someone else killed this already
		p.Unlock()
		return
	case defs.PROC_RUNNABLE_M:
		// reclaim any cores it might have, even though it isn't
		// running yet
		p.take_allcores_dumb(false)
	case defs.PROC_RUNNABLE_S:
		// external refs notice DYING and decref when they are done;
		// the ksched reaps it at its next pass
	case defs.PROC_RUNNING_S:
		dst := int(p.get_pcoreid(0))
		p.mach.send_kernel_message(-1, dst, "__death",
			kmsg.IMMEDIATE, func(c *Percpu_t) { c.__death() })
		pi := p.Procinfo
		pi.Coremap_seqctr.Write_start()
		// the vcore is unmapped on the receive side
		p.vc_remove(&p.online_vcs, 0)
		p.vc_insert_head(&p.inactive_vcs, 0)
		pi.set_nvcores(0)
		pi.Coremap_seqctr.Write_end()
	case defs.PROC_RUNNING_M:
		// send DEATH to every core running this process and
		// deallocate them.  the vcoremap was set before proc_run and
		// is reset here.
		p.take_allcores_dumb(false)
	case defs.PROC_CREATED:
	default:
		panic(fmt.Sprintf("weird state %v in proc_destroy", p.state))
	}
	p.set_state(defs.PROC_DYING)
	// keep the dying process out of its files; they may hold refs on p
	p.Fds.Close_all()
	// this decref is for the process's existence
	p.Decref()
	// a death IPI may be on its way; interrupts should generally be on
	// when destroy is called locally
	p.Unlock()
}
