package proc

import "sync"

import "manycore/defs"
import "manycore/klog"

// pid bitmask; set means busy.  pid 0 is reserved at init.
type pidmap_t struct {
	sync.Mutex
	bmask [(int(defs.PID_MAX) + 1 + 63) / 64]uint64
	// cursor: always points at the next pid to test
	next defs.Pid_t
}

func mkpidmap() *pidmap_t {
	pm := &pidmap_t{}
	pm.setbit(0)
	pm.next = 1
	return pm
}

func (pm *pidmap_t) isset(pid defs.Pid_t) bool {
	return pm.bmask[pid/64]&(1<<(uint(pid)%64)) != 0
}

func (pm *pidmap_t) setbit(pid defs.Pid_t) {
	pm.bmask[pid/64] |= 1 << (uint(pid) % 64)
}

func (pm *pidmap_t) clrbit(pid defs.Pid_t) {
	pm.bmask[pid/64] &^= 1 << (uint(pid) % 64)
}

/// Alloc finds the next free pid, searching circularly from a
/// persistent cursor, and marks it busy.  Returns 0 when every pid is
/// taken.
func (pm *pidmap_t) Alloc() defs.Pid_t {
	pm.Lock()
	defer pm.Unlock()
	n := defs.Pid_t(defs.PID_MAX + 1)
	for k := defs.Pid_t(0); k < n; k++ {
		i := (pm.next + k) % n
		if !pm.isset(i) {
			pm.setbit(i)
			pm.next = (i + 1) % n
			return i
		}
	}
	klog.Warn("unable to find a free pid", nil)
	return 0
}

/// Free returns a pid to the bitmask.
func (pm *pidmap_t) Free(pid defs.Pid_t) {
	pm.Lock()
	defer pm.Unlock()
	if !pm.isset(pid) {
		panic("freeing free pid")
	}
	pm.clrbit(pid)
}
