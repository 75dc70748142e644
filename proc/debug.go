package proc

import "fmt"

import "manycore/defs"
import "manycore/klog"
import "manycore/kmsg"
import "manycore/stats"

/// Print_allpids logs every live process and its state.
func (m *Machine_t) Print_allpids() {
	for _, pid := range m.Registry.Allpids() {
		if p := m.Registry.Pid2proc(pid); p != nil {
			klog.Printk("proc", klog.Ctx{
				"pid": pid, "state": p.State().String()})
			p.Decref()
		}
	}
}

/// Print_proc_info logs everything interesting about a pid.  No
/// locking; the lists may be in flux.
func (m *Machine_t) Print_proc_info(pid defs.Pid_t) {
	p := m.Registry.Pid2proc(pid)
	if p == nil {
		klog.Printk("bad pid", klog.Ctx{"pid": pid})
		return
	}
	klog.Printk("proc info", klog.Ctx{
		"pid":     p.Pid,
		"ppid":    p.Ppid,
		"state":   p.State().String(),
		"refcnt":  p.Refcnt() - 1,
		"vcores":  p.Num_vcores(),
		"online":  fmt.Sprint(p.Online_vcs()),
		"bulkp":   fmt.Sprint(p.Bulk_preempted_vcs()),
		"inact":   fmt.Sprint(p.Inactive_vcs()),
		"wanted":  p.Resources[defs.RES_CORES].Amt_wanted,
		"granted": p.Resources[defs.RES_CORES].Amt_granted,
		"nfds":    p.Fds.Nfds(),
	})
	p.Decref()
}

/// Kstats_str formats the kernel counters.
func Kstats_str() string {
	return stats.Stats2String(stats.Kstats)
}

// check_my_owner audits that no process believes one of its online
// vcores runs on this pcore while the pcore has no owner.  Called from
// the idle path.
func (c *Percpu_t) check_my_owner() {
	if c.Owning_proc != nil {
		return
	}
	m := c.mach
	for _, pid := range m.Registry.Allpids() {
		p := m.Registry.Pid2proc(pid)
		if p == nil {
			continue
		}
		p.Lock()
		for v := p.online_vcs.head; v != -1; v = p.vc(v).nexti {
			// a __startcore could be on the way while we're already
			// "online"; an undelivered immediate message excuses it
			if int(p.vc(v).Pcoreid) == c.Id && c.Kmsgs.Empty(kmsg.IMMEDIATE) {
				klog.Warn("owned pcore has no owner", klog.Ctx{
					"pcore": c.Id, "pid": p.Pid, "vcore": v})
			}
		}
		p.Unlock()
		p.Decref()
	}
}
