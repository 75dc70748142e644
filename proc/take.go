package proc

import "manycore/defs"
import "manycore/kmsg"

// revoke_core revokes a single vcore from a running process via kernel
// message.  For a preempt, the VCPD is locked for userspace recovery
// before the message is sent, and the preempt-served barrier is raised
// so concurrent yielders back off.  Hold the lock.
func (p *Proc_t) revoke_core(vcoreid int32, preempt bool) {
	pcoreid := p.get_pcoreid(vcoreid)
	if preempt {
		vcpd := p.vcpd(vcoreid)
		vcpd.Or_flags(VC_K_LOCK)
		p.vc(vcoreid).set_served(true)
		p.mach.send_kernel_message(-1, int(pcoreid), "__preempt",
			kmsg.IMMEDIATE, func(c *Percpu_t) { c.__preempt(p) })
	} else {
		// no reference rides with a death
		p.mach.send_kernel_message(-1, int(pcoreid), "__death",
			kmsg.IMMEDIATE, func(c *Percpu_t) { c.__death() })
	}
}

// revoke_allcores revokes every online vcore.  Hold the lock.
func (p *Proc_t) revoke_allcores(preempt bool) {
	for v := p.online_vcs.head; v != -1; v = p.vc(v).nexti {
		p.revoke_core(v, preempt)
	}
}

// unmap_allcores unmaps every online vcore, for processes that aren't
// running.  Hold the lock.
func (p *Proc_t) unmap_allcores() {
	for v := p.online_vcs.head; v != -1; v = p.vc(v).nexti {
		p.__unmap_vcore(v)
	}
}

/// Take_corelist takes (revoke via kmsg, or unmap) the listed pcores
/// from p.  preempt selects state-saving revocation; otherwise the
/// slices just die.  Not for taking everything; use Take_allcores.
/// Hold the lock.
func (p *Proc_t) Take_corelist(pc_arr []int, preempt bool) {
	pi := p.Procinfo
	pi.Coremap_seqctr.Write_start()
	for _, pc := range pc_arr {
		vcoreid := p.get_vcoreid(pc)
		if int(p.get_pcoreid(vcoreid)) != pc {
			panic("coremap is inconsistent")
		}
		if p.state == defs.PROC_RUNNING_M {
			p.revoke_core(vcoreid, preempt)
		} else {
			if p.state != defs.PROC_RUNNABLE_M {
				panic("taking cores from a non *_M proc")
			}
			p.__unmap_vcore(vcoreid)
		}
		// the messages are already in flight, or the vcore is already
		// unmapped.  even for single preempts we use the inactive
		// list; the bulk list is only for taking everything.
		p.vc_remove(&p.online_vcs, vcoreid)
		p.vc_insert_head(&p.inactive_vcs, vcoreid)
	}
	pi.set_nvcores(pi.nvcores() - uint32(len(pc_arr)))
	pi.Coremap_seqctr.Write_end()
	p.Resources[defs.RES_CORES].Amt_granted -= uint32(len(pc_arr))
}

/// Take_allcores takes every online core, moving the vcores to the
/// bulk-preempted list (preempt) or the inactive list (hard death).
/// Returns the pcores revoked, in online-list order.  Hold the lock.
func (p *Proc_t) Take_allcores(preempt bool) []int {
	pi := p.Procinfo
	pi.Coremap_seqctr.Write_start()
	// write out which pcores we're taking
	var pc_arr []int
	for v := p.online_vcs.head; v != -1; v = p.vc(v).nexti {
		pc_arr = append(pc_arr, int(p.vc(v).Pcoreid))
	}
	// revoke if they are running, o/w unmap.  both need the online
	// list unchanged yet.
	if p.state == defs.PROC_RUNNING_M {
		p.revoke_allcores(preempt)
	} else {
		if p.state != defs.PROC_RUNNABLE_M {
			panic("taking cores from a non *_M proc")
		}
		p.unmap_allcores()
	}
	// move the vcores from online to the right list: the tail of the
	// bulk list, or the head of the inactive list
	for {
		v := p.vc_pop_head(&p.online_vcs)
		if v == -1 {
			break
		}
		if preempt {
			// keep preemption order so restarts draw the oldest first
			p.vc_insert_tail(&p.bulk_preempted_vcs, v)
		} else {
			p.vc_insert_head(&p.inactive_vcs, v)
		}
	}
	if uint32(len(pc_arr)) != pi.nvcores() {
		panic("lost track of vcores")
	}
	pi.set_nvcores(0)
	pi.Coremap_seqctr.Write_end()
	p.Resources[defs.RES_CORES].Amt_granted = 0
	return pc_arr
}

// take_allcores_dumb takes all cores and puts them right back on the
// idle core map.
func (p *Proc_t) take_allcores_dumb(preempt bool) {
	for _, pc := range p.Take_allcores(preempt) {
		p.mach.Sched.Put_idle_core(pc)
	}
}
