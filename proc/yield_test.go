package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manycore/defs"
	"manycore/event"
	"manycore/trap"
)

func TestYieldS(t *testing.T) {
	m, ts := mktest(4)
	p := mkuserproc(t, m)
	p.Proc_make_runnable()
	c := m.Cpu(1)
	c.Proc_run_s(p)
	c.Proc_restartcore()
	require.Equal(t, 1, ts.nrunnable())

	// yield arrives as a syscall
	var tf trap.Trapframe_t
	trap.Init_user_tf(&tf, p.Env_entry, teststack, 0)
	c.Trap_entry(tf)
	p.Incref(1)
	c.Proc_yield(p, false)

	assert.Equal(t, defs.PROC_RUNNABLE_S, p.State())
	assert.Equal(t, 0, p.Num_vcores())
	assert.False(t, p.Vcore_is_mapped(0))
	assert.Nil(t, c.Owning_proc)
	assert.Nil(t, c.Cur_proc)
	assert.Equal(t, 2, ts.nrunnable(), "handed back to the scheduler")
	assert.Equal(t, p.Env_entry, p.Env_tf[trap.TF_RIP], "context saved")
	assert.Equal(t, 2, p.Refcnt())
	check_vclists(t, p)

	p.Proc_destroy()
	reap(m, p)
}

// A preempt and a user yield race for the same vcore; the yield must
// observe the preempt-served barrier and abort.
func TestPreemptYieldRace(t *testing.T) {
	m, ts := mktest(8)
	p := mkmcp(t, m, 3)
	start_mcp(t, m, p, []int{3, 5, 7})
	require.Equal(t, []int{0, 1, 2}, p.Online_vcs())
	drain_events(p)

	p.Proc_preempt_core(5, 100)
	// the barrier is up and the kmsg is in flight, but not delivered
	assert.True(t, p.Procinfo.Vcoremap[1].served())
	assert.True(t, p.Vcore_is_mapped(1), "unmap happens on the receive side")
	assert.Equal(t, 2, p.Num_vcores())
	assert.Equal(t, 1, ts.nidle())

	// vcore 1 tries to yield before the __preempt lands: it must lose.
	// when yield re-enables interrupts, the preempt message runs.
	c5 := m.Cpu(5)
	aborts := kstat_yield_aborts()
	p.Incref(1)
	c5.Proc_yield(p, false)
	assert.Equal(t, kstat_yield_aborts(), aborts+1, "yield aborted")
	p.Decref()

	// the preempt has landed now
	assert.Nil(t, c5.Owning_proc)
	assert.False(t, p.Vcore_is_mapped(1))
	assert.False(t, p.Procinfo.Vcoremap[1].served())
	vcpd1 := &p.Procdata.Vcore_preempt_data[1]
	assert.NotZero(t, vcpd1.Flags()&VC_PREEMPTED)
	assert.Zero(t, vcpd1.Flags()&VC_K_LOCK)
	assert.Equal(t, 2, p.Num_vcores())
	assert.Contains(t, p.Inactive_vcs(), 1)
	check_vclists(t, p)

	// warning first, then the preempt notice
	evs := drain_events(p)
	require.Len(t, evs, 2)
	assert.Equal(t, defs.EV_PREEMPT_PENDING, evs[0].Type)
	assert.Equal(t, 1, evs[0].Arg1)
	assert.Equal(t, defs.EV_VCORE_PREEMPT, evs[1].Type)
	assert.Equal(t, 1, evs[1].Arg2)

	c5.Smp_idle()
	p.Proc_destroy()
	reap(m, p)
}

func TestYieldNotifPendingAborts(t *testing.T) {
	m, _ := mktest(8)
	p := mkmcp(t, m, 1)
	start_mcp(t, m, p, []int{1, 2})

	vcpd0 := &p.Procdata.Vcore_preempt_data[0]
	vcpd0.Set_notif_pending(true)
	c1 := m.Cpu(1)
	p.Incref(1)
	c1.Proc_yield(p, false)
	assert.Equal(t, p, c1.Owning_proc, "yield with a pending notif aborts")
	assert.Equal(t, 2, p.Num_vcores())
	p.Decref()

	// with the notif handled, the yield goes through
	vcpd0.Set_notif_pending(false)
	p.Incref(1)
	c1.Proc_yield(p, false)
	assert.Nil(t, c1.Owning_proc)
	assert.Equal(t, 1, p.Num_vcores())
	assert.False(t, p.Vcore_is_mapped(0))
	assert.False(t, vcpd0.Notif_disabled(), "next start is fresh")
	assert.Equal(t, defs.PROC_RUNNING_M, p.State())
	assert.Equal(t, uint32(1), p.Resources[defs.RES_CORES].Amt_wanted)
	check_vclists(t, p)

	p.Proc_destroy()
	reap(m, p)
}

func TestYieldLastVcoreWaits(t *testing.T) {
	m, ts := mktest(4)
	p := mkmcp(t, m, 1)
	start_mcp(t, m, p, []int{2})

	c2 := m.Cpu(2)
	p.Incref(1)
	c2.Proc_yield(p, false)
	assert.Equal(t, defs.PROC_WAITING, p.State())
	assert.Equal(t, 0, p.Num_vcores())
	assert.Equal(t, uint32(1), p.Resources[defs.RES_CORES].Amt_wanted)
	ts.Lock()
	nwait := len(ts.waiting)
	ts.Unlock()
	assert.Equal(t, 1, nwait)

	// waking it up makes it RUNNABLE_M again
	p.Lock()
	p.Proc_wakeup()
	p.Unlock()
	assert.Equal(t, defs.PROC_RUNNABLE_M, p.State())

	p.Proc_destroy()
	reap(m, p)
}

func TestYieldBeingNiceWithoutWarning(t *testing.T) {
	m, _ := mktest(4)
	p := mkmcp(t, m, 1)
	start_mcp(t, m, p, []int{2})

	c2 := m.Cpu(2)
	p.Incref(1)
	c2.Proc_yield(p, true)
	assert.Equal(t, p, c2.Owning_proc, "nice yield without a warning aborts")
	assert.Equal(t, 1, p.Num_vcores())
	p.Decref()

	p.Proc_destroy()
	reap(m, p)
}

func drain_events(p *Proc_t) []event.Event_t {
	var evs []event.Event_t
	for {
		ev, ok := p.Pop_event()
		if !ok {
			return evs
		}
		evs = append(evs, ev)
	}
}
