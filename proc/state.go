package proc

import "fmt"

import "manycore/defs"

// While this could be done with just an assignment, checking the
// transition catches corrupted callers.  Hold the lock.
func (p *Proc_t) set_state(next defs.Procstate_t) {
	cur := p.state
	ok := false
	switch cur {
	case defs.PROC_CREATED:
		ok = next == defs.PROC_RUNNABLE_S || next == defs.PROC_DYING
	case defs.PROC_RUNNABLE_S:
		ok = next == defs.PROC_RUNNING_S || next == defs.PROC_DYING
	case defs.PROC_RUNNING_S:
		ok = next == defs.PROC_RUNNABLE_S || next == defs.PROC_RUNNABLE_M ||
			next == defs.PROC_WAITING || next == defs.PROC_DYING
	case defs.PROC_WAITING:
		ok = next == defs.PROC_RUNNABLE_S || next == defs.PROC_RUNNABLE_M
	case defs.PROC_RUNNABLE_M:
		ok = next == defs.PROC_RUNNING_M || next == defs.PROC_DYING
	case defs.PROC_RUNNING_M:
		ok = next == defs.PROC_RUNNABLE_S || next == defs.PROC_RUNNABLE_M ||
			next == defs.PROC_WAITING || next == defs.PROC_DYING
	case defs.PROC_DYING:
		// terminal
	}
	if !ok {
		panic(fmt.Sprintf("invalid state transition! %v to %v", cur, next))
	}
	p.state = next
}
