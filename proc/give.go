package proc

import "fmt"

import "manycore/defs"
import "manycore/klog"

// give_a_pcore maps pcore to the first vcore of vc_list, moving it to
// the online list.  Returns false if the list was empty.  Hold the
// lock.
func (p *Proc_t) give_a_pcore(pcore int32, vc_list *vclist_t) bool {
	new_vc := p.vc_pop_head(vc_list)
	if new_vc == -1 {
		return false
	}
	klog.Printd("mapping vcore", klog.Ctx{
		"pid": p.Pid, "vcore": new_vc, "pcore": pcore})
	p.vc_insert_tail(&p.online_vcs, new_vc)
	p.__map_vcore(new_vc, pcore)
	return true
}

// give_cores_runnable attaches pcores to a RUNNABLE_M process: bulk
// preempted vcores restart first, then fresh ones.
func (p *Proc_t) give_cores_runnable(pc_arr []int) {
	if p.state != defs.PROC_RUNNABLE_M {
		panic("wrong state")
	}
	if len(pc_arr) == 0 {
		panic("no cores given")
	}
	pi := p.Procinfo
	pi.Coremap_seqctr.Write_start()
	pi.set_nvcores(pi.nvcores() + uint32(len(pc_arr)))
	for _, pc := range pc_arr {
		// try from the bulk list first
		if p.give_a_pcore(int32(pc), &p.bulk_preempted_vcs) {
			continue
		}
		if !p.give_a_pcore(int32(pc), &p.inactive_vcs) {
			panic("ran out of vcores")
		}
	}
	pi.Coremap_seqctr.Write_end()
}

// give_cores_running additionally starts the new vcores up with
// __startcore messages.  A running process never has a bulk preempt
// list.
func (p *Proc_t) give_cores_running(pc_arr []int) {
	// up the refcnt: each destination core installs p in owning_proc
	// and current without further atomics; keep in sync with
	// __startcore
	p.Incref(len(pc_arr) * 2)
	pi := p.Procinfo
	pi.Coremap_seqctr.Write_start()
	pi.set_nvcores(pi.nvcores() + uint32(len(pc_arr)))
	if !p.bulk_preempted_vcs.empty() {
		panic("bulk preempted vcores on a running _M")
	}
	for _, pc := range pc_arr {
		if !p.give_a_pcore(int32(pc), &p.inactive_vcs) {
			panic("ran out of vcores")
		}
		p.send_startcore(int32(pc))
	}
	pi.Coremap_seqctr.Write_end()
}

/// Give_cores grants the listed pcores to p.  Hold the lock.  The
/// process must be an *_M; a DYING or WAITING process sends the cores
/// straight back to the idle pool.  RUNNING_M processes get their new
/// vcores started.
func (p *Proc_t) Give_cores(pc_arr []int) {
	if int(p.Procinfo.nvcores())+len(pc_arr) > p.mach.Ncpu {
		panic("more vcores than cores")
	}
	switch p.state {
	case defs.PROC_RUNNABLE_S, defs.PROC_RUNNING_S:
		panic("don't give cores to a process in a *_S state")
	case defs.PROC_DYING, defs.PROC_WAITING:
		// can't accept; return them to the ksched
		for _, pc := range pc_arr {
			p.mach.Sched.Put_idle_core(pc)
		}
		return
	case defs.PROC_RUNNABLE_M:
		p.give_cores_runnable(pc_arr)
	case defs.PROC_RUNNING_M:
		p.give_cores_running(pc_arr)
	default:
		panic(fmt.Sprintf("weird state %v in give_cores", p.state))
	}
	p.Resources[defs.RES_CORES].Amt_granted += uint32(len(pc_arr))
}
