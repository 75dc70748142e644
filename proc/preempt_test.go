package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manycore/defs"
	"manycore/trap"
)

func TestBulkPreemptThenRestart(t *testing.T) {
	m, _ := mktest(12)
	p := mkmcp(t, m, 1)
	start_mcp(t, m, p, []int{1, 2, 3, 4})
	require.Equal(t, []int{0, 1, 2, 3}, p.Online_vcs())
	drain_events(p)

	p.Proc_preempt_all(1000)
	for _, pc := range []int{1, 2, 3, 4} {
		m.Cpu(pc).Pump()
		m.Cpu(pc).Smp_idle()
	}
	assert.Equal(t, defs.PROC_RUNNABLE_M, p.State())
	assert.Equal(t, 0, p.Num_vcores())
	assert.Equal(t, []int{0, 1, 2, 3}, p.Bulk_preempted_vcs(),
		"preemption order is preserved")
	check_vclists(t, p)
	evs := drain_events(p)
	require.Len(t, evs, 4)
	for _, ev := range evs {
		assert.Equal(t, defs.EV_PREEMPT_PENDING, ev.Type)
	}

	// new cores restart the bulk preempted vcores, oldest first
	p.Lock()
	p.Give_cores([]int{9, 11})
	p.Unlock()
	assert.Equal(t, defs.PROC_RUNNABLE_M, p.State())
	assert.Equal(t, 2, p.Num_vcores())
	assert.Equal(t, []int{0, 1}, p.Online_vcs())
	assert.Equal(t, []int{2, 3}, p.Bulk_preempted_vcs())
	check_vclists(t, p)

	// running drains the rest of the bulk list into events
	p.Lock()
	p.Proc_run_m()
	p.Unlock()
	assert.Equal(t, defs.PROC_RUNNING_M, p.State())
	assert.Empty(t, p.Bulk_preempted_vcs())
	evs = drain_events(p)
	require.Len(t, evs, 2)
	for _, ev := range evs {
		require.Equal(t, defs.EV_VCORE_PREEMPT, ev.Type)
	}
	assert.ElementsMatch(t, []int{evs[0].Arg2, evs[1].Arg2}, []int{2, 3})

	// restarted vcores resume their preempted contexts
	for _, pc := range []int{9, 11} {
		m.Cpu(pc).Pump()
		m.Cpu(pc).Proc_restartcore()
	}
	c9 := m.Cpu(9)
	assert.Equal(t, p, c9.Owning_proc)
	assert.Equal(t, p.Env_entry, c9.Last_pop[trap.TF_RIP])
	assert.Equal(t, uintptr(0), c9.Last_pop[trap.TF_RDI])
	vcpd0 := &p.Procdata.Vcore_preempt_data[0]
	assert.Zero(t, vcpd0.Flags()&VC_PREEMPTED, "restart clears the flag")
	check_vclists(t, p)

	p.Proc_destroy()
	reap(m, p)
}

func TestPreemptCoreLastVcore(t *testing.T) {
	m, _ := mktest(4)
	p := mkmcp(t, m, 1)
	start_mcp(t, m, p, []int{2})

	p.Proc_preempt_core(2, 100)
	assert.Equal(t, defs.PROC_RUNNABLE_M, p.State(),
		"preempting the last vcore leaves it runnable")
	m.Cpu(2).Pump()
	m.Cpu(2).Smp_idle()
	assert.Equal(t, 0, p.Num_vcores())
	check_vclists(t, p)

	p.Proc_destroy()
	reap(m, p)
}

func TestPreemptNotRunningWarns(t *testing.T) {
	m, _ := mktest(4)
	p := mkmcp(t, m, 1)
	// RUNNABLE_M: nothing to preempt, no panic
	p.Proc_preempt_all(100)
	assert.Equal(t, defs.PROC_RUNNABLE_M, p.State())
	p.Proc_preempt_core(2, 100)
	p.Proc_destroy()
	reap(m, p)
}

func TestPreemptWarnSetsDeadline(t *testing.T) {
	m, _ := mktest(4)
	p := mkmcp(t, m, 1)
	start_mcp(t, m, p, []int{2})
	drain_events(p)

	p.Lock()
	p.Preempt_warn(0, 12345)
	p.Unlock()
	assert.Equal(t, uint64(12345), p.Procinfo.Vcoremap[0].pending())
	evs := drain_events(p)
	require.Len(t, evs, 1)
	assert.Equal(t, defs.EV_PREEMPT_PENDING, evs[0].Type)
	assert.Equal(t, 0, evs[0].Arg1)

	// a nice yield answers the warning
	c2 := m.Cpu(2)
	p.Incref(1)
	c2.Proc_yield(p, true)
	assert.Nil(t, c2.Owning_proc)
	assert.Zero(t, p.Procinfo.Vcoremap[0].pending(), "warning consumed")
	assert.Equal(t, defs.PROC_WAITING, p.State())
	// being nice didn't lower amt_wanted to zero
	assert.Equal(t, uint32(1), p.Resources[defs.RES_CORES].Amt_wanted)

	p.Lock()
	p.Proc_wakeup()
	p.Unlock()
	p.Proc_destroy()
	reap(m, p)
}
