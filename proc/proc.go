// Package proc implements the process and vcore lifecycle core: process
// identity and reference counting, the six-state lifecycle machine, the
// vcore/pcore maps and their grant/revocation protocols, and the
// cross-core kernel message handlers that drive dispatch, preemption,
// notification, and death on remote cores.
package proc

import "sync"

import "manycore/defs"
import "manycore/fd"
import "manycore/klog"
import "manycore/kref"
import "manycore/limits"
import "manycore/mem"
import "manycore/stats"
import "manycore/trap"

/// Sched_i is the scheduler this core reports to: it learns about
/// runnable single-core processes, freed pcores, and processes that
/// went to sleep waiting for cores.
type Sched_i interface {
	Schedule_scp(p *Proc_t)
	Put_idle_core(pcoreid int)
	Proc_waiting(p *Proc_t)
}

/// Machine_t owns everything global to one simulated machine: the
/// per-core state, the process registry, and the scheduler hook.
/// Multiple machines can coexist, which the tests rely on.
type Machine_t struct {
	Ncpu     int
	cpus     []Percpu_t
	Registry *Registry_t
	Sched    Sched_i
	Tsc_freq uint64
}

/// MkMachine builds a machine with ncpu pcores numbered [0, ncpu).
func MkMachine(ncpu int, sc Sched_i) *Machine_t {
	if ncpu <= 0 || ncpu > defs.MAX_CPUS {
		panic("bad cpu count")
	}
	m := &Machine_t{Ncpu: ncpu, Sched: sc, Tsc_freq: 2e9}
	m.Registry = MkRegistry()
	m.cpus = make([]Percpu_t, ncpu)
	for i := range m.cpus {
		m.cpus[i].Id = i
		m.cpus[i].mach = m
		m.cpus[i].irqon = true
		m.cpus[i].cr3 = mem.BOOT_CR3
	}
	return m
}

/// Cpu returns the per-core state for the given pcore.
func (m *Machine_t) Cpu(id int) *Percpu_t {
	return &m.cpus[id]
}

/// Resource_t tracks one resource kind: how much the process wants and
/// how much it has been granted.
type Resource_t struct {
	Amt_wanted  uint32
	Amt_granted uint32
}

/// Proc_t is a process.  The embedded mutex is the per-process lock
/// serializing state transitions, the coremap, and the vcore lists.
type Proc_t struct {
	sync.Mutex
	Pid       defs.Pid_t
	Ppid      defs.Pid_t
	state     defs.Procstate_t
	Procinfo  *Procinfo_t
	Procdata  *Procdata_t
	Resources [defs.MAX_RESOURCES]Resource_t
	Env_tf    trap.Trapframe_t /// saved context of a _S process
	env_anc   trap.Ancillary_t
	Env_entry uintptr /// user entry point for fresh vcore contexts
	Exitcode  int
	Aspace    *mem.Aspace_t
	Fds       fd.Fdtable_t
	p_kref    kref.Kref_t

	online_vcs         vclist_t
	bulk_preempted_vcs vclist_t
	inactive_vcs       vclist_t

	mach   *Machine_t
	hashed bool
}

// the exit code set at alloc, so processes killed by the kernel are
// recognizable.
const killed_exitcode = 1337

/// Alloc allocates and initializes a process with the given parent (nil
/// for none).  The returned process holds two references: one for its
/// existence, one for the caller.  Fails with -ENOMEM when the process
/// limit is hit and -ENOFREEPID when the pid space is full.
func (m *Machine_t) Alloc(parent *Proc_t) (*Proc_t, defs.Err_t) {
	if !limits.Syslimit.Sysprocs.Take() {
		return nil, -defs.ENOMEM
	}
	as, err := mem.Setup_vm()
	if err != 0 {
		limits.Syslimit.Sysprocs.Give()
		return nil, err
	}
	pid := m.Registry.pids.Alloc()
	if pid == 0 {
		as.Uvmfree()
		as.Pagetable_free()
		limits.Syslimit.Sysprocs.Give()
		return nil, -defs.ENOFREEPID
	}

	p := &Proc_t{mach: m}
	// one reference for the proc existing, and one for the ref we pass back
	p.p_kref.Init(2)
	p.Pid = pid
	if parent != nil {
		p.Ppid = parent.Pid
	}
	p.state = defs.PROC_CREATED
	p.Exitcode = killed_exitcode
	p.Aspace = as
	p.Procinfo = &Procinfo_t{}
	p.Procdata = &Procdata_t{}
	p.init_procinfo()
	stats.Kstats.Nproc_alloc.Inc()
	m.Registry.env_inc()
	klog.Printd("new process", klog.Ctx{"pid": p.Pid, "ppid": p.Ppid})
	return p, 0
}

// init_procinfo fills the shared page and builds the inactive list so
// that it holds every vcore.
func (p *Proc_t) init_procinfo() {
	pi := p.Procinfo
	pi.Pid = p.Pid
	pi.Ppid = p.Ppid
	pi.Max_vcores = int32(p.mach.Ncpu)
	pi.Tsc_freq = p.mach.Tsc_freq
	pi.Heap_bottom = utext
	pi.set_nvcores(0)
	pi.Is_mcp = false
	p.online_vcs.init()
	p.bulk_preempted_vcs.init()
	p.inactive_vcs.init()
	for i := range pi.Vcoremap {
		pi.Vcoremap[i].nexti, pi.Vcoremap[i].previ = -1, -1
	}
	for i := 0; i < p.mach.Ncpu; i++ {
		p.vc_insert_tail(&p.inactive_vcs, int32(i))
	}
}

// bottom of the user text segment; doubles as the initial heap bottom.
const utext uintptr = 0x400000

/// Create allocates a process, packs its arguments into procinfo, wires
/// the standard descriptors, and publishes it in the registry.
func (m *Machine_t) Create(parent *Proc_t, argv, envp []string) (*Proc_t, defs.Err_t) {
	p, err := m.Alloc(parent)
	if err != 0 {
		return nil, err
	}
	p.Procinfo.pack_args(argv, envp)
	p.Fds.Insert(fd.Mkconsfd(fd.FD_READ))
	p.Fds.Insert(fd.Mkconsfd(fd.FD_WRITE))
	p.Fds.Insert(fd.Mkconsfd(fd.FD_WRITE))
	m.Ready(p)
	return p, 0
}

/// Ready publishes the process in the pid registry, making it reachable
/// by Pid2proc.
func (m *Machine_t) Ready(p *Proc_t) {
	m.Registry.insert(p)
	p.hashed = true
}

/// Incref takes n additional references on the process.
func (p *Proc_t) Incref(n int) {
	p.p_kref.Get(n)
}

/// Decref drops one reference; the last one frees the process.
func (p *Proc_t) Decref() {
	p.p_kref.Put(p.proc_free)
}

/// Refcnt returns the current reference count, for debugging.
func (p *Proc_t) Refcnt() int {
	return p.p_kref.Refcnt()
}

// proc_free runs when the last reference is gone.  It tears down
// everything the process still holds and makes the pid reusable.
func (p *Proc_t) proc_free() {
	if p.p_kref.Refcnt() != 0 {
		panic("proc free with live refs")
	}
	klog.Printd("freeing proc", klog.Ctx{"pid": p.Pid})
	p.Fds.Close_all()
	p.Aspace.Uvmfree()
	// remove us from the registry and give our pid back, in that order
	if p.hashed {
		p.mach.Registry.remove(p)
	}
	p.mach.Registry.pids.Free(p.Pid)
	p.Procinfo = nil
	p.Procdata = nil
	p.Aspace.Pagetable_free()
	p.mach.Registry.env_dec()
	limits.Syslimit.Sysprocs.Give()
	stats.Kstats.Nproc_free.Inc()
}

/// Controls reports whether actor may operate on target: itself or a
/// direct child.
func Controls(actor, target *Proc_t) bool {
	return actor == target || target.Ppid == actor.Pid
}

/// State reads the process state.  Only stable if the caller holds the
/// lock or otherwise knows the process cannot transition.
func (p *Proc_t) State() defs.Procstate_t {
	p.Lock()
	defer p.Unlock()
	return p.state
}

/// Is_mcp reports whether the process ever became an MCP.  Monotonic.
func (p *Proc_t) Is_mcp() bool {
	p.Lock()
	defer p.Unlock()
	return p.Procinfo.Is_mcp
}

/// Num_vcores reads the online vcore count the way user space does:
/// through the coremap seqlock.
func (p *Proc_t) Num_vcores() int {
	pi := p.Procinfo
	for {
		v := pi.Coremap_seqctr.Read()
		n := pi.nvcores()
		if !pi.Coremap_seqctr.Retry(v) {
			return int(n)
		}
	}
}
