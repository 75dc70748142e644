package proc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"manycore/defs"
	"manycore/limits"
	"manycore/stats"
	"manycore/trap"
)

func kstat_yield_aborts() int64 {
	return stats.Kstats.Nyield_abort.Read()
}

func limits_sysprocs() *limits.Sysatomic_t {
	return &limits.Syslimit.Sysprocs
}

// testsched_t records what the core tells the scheduler.
type testsched_t struct {
	sync.Mutex
	idle     []int
	runnable []*Proc_t
	waiting  []*Proc_t
}

func (ts *testsched_t) Schedule_scp(p *Proc_t) {
	ts.Lock()
	ts.runnable = append(ts.runnable, p)
	ts.Unlock()
}

func (ts *testsched_t) Put_idle_core(pcoreid int) {
	ts.Lock()
	ts.idle = append(ts.idle, pcoreid)
	ts.Unlock()
}

func (ts *testsched_t) Proc_waiting(p *Proc_t) {
	ts.Lock()
	ts.waiting = append(ts.waiting, p)
	ts.Unlock()
}

func (ts *testsched_t) nidle() int {
	ts.Lock()
	defer ts.Unlock()
	return len(ts.idle)
}

func (ts *testsched_t) nrunnable() int {
	ts.Lock()
	defer ts.Unlock()
	return len(ts.runnable)
}

func mktest(ncpu int) (*Machine_t, *testsched_t) {
	ts := &testsched_t{}
	return MkMachine(ncpu, ts), ts
}

const teststack uintptr = 0x7f0000000000

// mkuserproc creates a process with an entry point and transition
// stacks set up, ready to be run.
func mkuserproc(t *testing.T, m *Machine_t) *Proc_t {
	p, err := m.Create(nil, []string{"bin/mcp", "-x"}, []string{"TERM=vt100"})
	require.Equal(t, defs.Err_t(0), err)
	p.Env_entry = 0x400078
	for i := 0; i < m.Ncpu; i++ {
		p.Procdata.Vcore_preempt_data[i].Transition_stack =
			teststack + uintptr(i+1)<<16
	}
	return p
}

// mkmcp walks a fresh process through _S birth on bootcore and the
// switch to _M, leaving it RUNNABLE_M with no cores.
func mkmcp(t *testing.T, m *Machine_t, bootcore int) *Proc_t {
	p := mkuserproc(t, m)
	p.Proc_make_runnable()
	c := m.Cpu(bootcore)
	c.Proc_run_s(p)
	c.Proc_restartcore()
	var tf trap.Trapframe_t
	trap.Init_user_tf(&tf, p.Env_entry, teststack, 0)
	c.Trap_entry(tf)
	p.Lock()
	c.Proc_switch_to_m(p)
	p.Unlock()
	c.Abandon_core()
	c.Smp_idle()
	require.Equal(t, defs.PROC_RUNNABLE_M, p.State())
	return p
}

// start_mcp grants the given pcores and runs the _M on them.
func start_mcp(t *testing.T, m *Machine_t, p *Proc_t, pcores []int) {
	p.Lock()
	p.Give_cores(pcores)
	p.Proc_run_m()
	p.Unlock()
	for _, pc := range pcores {
		m.Cpu(pc).Pump()
		m.Cpu(pc).Proc_restartcore()
	}
	require.Equal(t, defs.PROC_RUNNING_M, p.State())
}

// reap pumps every core and drops the caller's reference, after a
// destroy.
func reap(m *Machine_t, p *Proc_t) {
	for i := 0; i < m.Ncpu; i++ {
		m.Cpu(i).Pump()
		m.Cpu(i).Smp_idle()
	}
	p.Decref()
}

// check_vclists asserts the coremap invariants: the three lists
// partition the vcore set, num_vcores matches the online list, and the
// vcoremap and pcoremap agree.
func check_vclists(t *testing.T, p *Proc_t) {
	ncpu := p.mach.Ncpu
	on := p.Online_vcs()
	bp := p.Bulk_preempted_vcs()
	in := p.Inactive_vcs()
	require.Equal(t, ncpu, len(on)+len(bp)+len(in), "lists don't partition")
	seen := make(map[int]bool)
	all := append(append(append([]int{}, on...), bp...), in...)
	for _, v := range all {
		require.False(t, seen[v], "vcore %d on two lists", v)
		seen[v] = true
	}
	require.Equal(t, len(on), p.Num_vcores())
	onset := make(map[int]bool)
	for _, v := range on {
		onset[v] = true
	}
	pi := p.Procinfo
	for v := 0; v < ncpu; v++ {
		require.Equal(t, onset[v], p.Vcore_is_mapped(v),
			"vcore %d mapped iff online", v)
	}
	for pc := 0; pc < ncpu; pc++ {
		pm := &pi.Pcoremap[pc]
		if pm.Mapped() {
			vc := &pi.Vcoremap[pm.Vcoreid]
			require.True(t, vc.Mapped())
			require.Equal(t, int32(pc), vc.Pcoreid)
		}
	}
	for v := 0; v < ncpu; v++ {
		vc := &pi.Vcoremap[v]
		if vc.Mapped() {
			pm := &pi.Pcoremap[vc.Pcoreid]
			require.True(t, pm.Mapped())
			require.Equal(t, int32(v), pm.Vcoreid)
		}
	}
}
