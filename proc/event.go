package proc

import "manycore/event"
import "manycore/klog"
import "manycore/limits"
import "manycore/stats"

// send_kernel_event posts an event to the process's event ring.  The
// vcoreid is a delivery hint; with a single shared ring it only shows
// up in logs.  Events are dropped, with a count, when the ring is full
// or the system-wide event budget is exhausted.
func (p *Proc_t) send_kernel_event(ev event.Event_t, vcoreid int) {
	if !limits.Syslimit.Events.Take() {
		stats.Kstats.Nevent_drop.Inc()
		return
	}
	if !p.Procdata.Sysevents.Trypush(ev) {
		limits.Syslimit.Events.Give()
		stats.Kstats.Nevent_drop.Inc()
		klog.Warn_once("event ring overflow", klog.Ctx{"pid": p.Pid})
		return
	}
	stats.Kstats.Nevent.Inc()
	klog.Printd("event", klog.Ctx{
		"pid": p.Pid, "type": ev.Type.String(), "vcore": vcoreid})
}

/// Pop_event consumes the oldest event from the process's ring.  This
/// is the user-space side of the ring.
func (p *Proc_t) Pop_event() (event.Event_t, bool) {
	ev, ok := p.Procdata.Sysevents.Pop()
	if ok {
		limits.Syslimit.Events.Give()
	}
	return ev, ok
}
