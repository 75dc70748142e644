package proc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manycore/defs"
	"manycore/kmsg"
	"manycore/trap"
)

func mknotify(c *Percpu_t, p *Proc_t) kmsg.Msg_t {
	return kmsg.Msg_t{What: "__notify", F: func() { c.__notify(p) }}
}

func TestChangeToVcore(t *testing.T) {
	m, _ := mktest(8)
	p := mkmcp(t, m, 1)
	start_mcp(t, m, p, []int{2})
	drain_events(p)
	c2 := m.Cpu(2)
	// the running vcore is in vcore context (fresh start)
	vcpd0 := &p.Procdata.Vcore_preempt_data[0]
	require.True(t, vcpd0.Notif_disabled())

	// enter the kernel from vcore 0's context and switch to vcore 3
	c2.Trap_entry(c2.Last_pop)
	c2.Proc_change_to_vcore(p, 3, false)

	assert.Equal(t, 1, p.Num_vcores())
	assert.False(t, p.Vcore_is_mapped(0))
	assert.True(t, p.Vcore_is_mapped(3))
	assert.Equal(t, []int{3}, p.Online_vcs())
	assert.Equal(t, int32(2), p.Procinfo.Vcoremap[3].Pcoreid)
	check_vclists(t, p)

	// the caller looks preempted and can be recovered
	assert.NotZero(t, vcpd0.Flags()&VC_PREEMPTED)
	assert.Equal(t, p.Env_entry, vcpd0.Preempt_tf[trap.TF_RIP])
	evs := drain_events(p)
	require.Len(t, evs, 1)
	assert.Equal(t, defs.EV_VCORE_PREEMPT, evs[0].Type)
	assert.Equal(t, 0, evs[0].Arg2)

	// this core now runs vcore 3
	c2.Proc_restartcore()
	assert.Equal(t, uintptr(3), c2.Last_pop[trap.TF_RDI])

	p.Proc_destroy()
	reap(m, p)
}

func TestChangeToVcoreEnableNotif(t *testing.T) {
	m, _ := mktest(8)
	p := mkmcp(t, m, 1)
	start_mcp(t, m, p, []int{2})
	drain_events(p)
	c2 := m.Cpu(2)
	vcpd0 := &p.Procdata.Vcore_preempt_data[0]

	c2.Trap_entry(c2.Last_pop)
	c2.Proc_change_to_vcore(p, 1, true)

	// caller's context was discarded; it restarts fresh next time
	assert.False(t, vcpd0.Notif_disabled())
	assert.Zero(t, vcpd0.Flags()&VC_PREEMPTED)
	evs := drain_events(p)
	require.Len(t, evs, 1)
	assert.Equal(t, defs.EV_CHECK_MSGS, evs[0].Type)

	p.Proc_destroy()
	reap(m, p)
}

func TestChangeToVcoreAborts(t *testing.T) {
	m, _ := mktest(8)
	p := mkmcp(t, m, 1)
	start_mcp(t, m, p, []int{2, 3})
	c2 := m.Cpu(2)
	c2.Trap_entry(c2.Last_pop)

	// target already online
	before := p.Online_vcs()
	c2.Proc_change_to_vcore(p, 1, false)
	assert.Equal(t, before, p.Online_vcs())

	// caller not in vcore context
	vcpd0 := &p.Procdata.Vcore_preempt_data[0]
	vcpd0.Set_notif_disabled(false)
	c2.Trap_entry(c2.Last_pop)
	c2.Proc_change_to_vcore(p, 5, false)
	assert.Equal(t, before, p.Online_vcs())
	vcpd0.Set_notif_disabled(true)

	// an in-flight preempt wins
	p.Procinfo.Vcoremap[0].set_served(true)
	c2.Trap_entry(c2.Last_pop)
	c2.Proc_change_to_vcore(p, 5, false)
	assert.Equal(t, before, p.Online_vcs())
	p.Procinfo.Vcoremap[0].set_served(false)

	p.Proc_destroy()
	reap(m, p)
}

func TestNotify(t *testing.T) {
	m, _ := mktest(4)
	p := mkmcp(t, m, 1)
	start_mcp(t, m, p, []int{2})
	c2 := m.Cpu(2)
	vcpd0 := &p.Procdata.Vcore_preempt_data[0]

	// fresh vcores have notifs masked; the signal is latched only
	p.Proc_notify(0)
	assert.True(t, vcpd0.Notif_pending())
	c2.Pump()
	assert.True(t, vcpd0.Notif_pending(), "masked notif stays pending")

	// userspace leaves vcore context and enables notifs
	vcpd0.Set_notif_pending(false)
	vcpd0.Set_notif_disabled(false)
	p.Proc_notify(0)
	c2.Pump()
	assert.True(t, vcpd0.Notif_disabled(), "notif gate closed")
	assert.False(t, vcpd0.Notif_pending())
	// the interrupted context sits in the notif slot and a fresh
	// vcore context is about to run
	assert.Equal(t, p.Env_entry, vcpd0.Notif_tf[trap.TF_RIP])
	c2.Proc_restartcore()
	assert.Equal(t, uintptr(0), c2.Last_pop[trap.TF_RDI])
	assert.Equal(t, p.Env_entry, c2.Last_pop[trap.TF_RIP])

	// a notify for a proc that doesn't own the core is dropped
	q := mkmcp(t, m, 3)
	q.Lock()
	q.Give_cores([]int{3})
	q.Proc_run_m()
	q.Unlock()
	m.Cpu(3).Pump()
	vcpdq := &q.Procdata.Vcore_preempt_data[0]
	vcpdq.Set_notif_disabled(false)
	// cross-deliver: handler on pcore 2 sees the wrong owner
	m.Cpu(2).Kmsgs.Send(mknotify(m.Cpu(2), q), kmsg.IMMEDIATE)
	m.Cpu(2).Pump()
	assert.False(t, vcpdq.Notif_disabled(), "wrong-owner notify dropped")

	p.Proc_destroy()
	q.Proc_destroy()
	reap(m, p)
	q.Decref()
}
