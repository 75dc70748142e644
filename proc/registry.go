package proc

import "sync"
import "sync/atomic"

import "manycore/defs"
import "manycore/hashtable"

/// Registry_t maps live pids to processes and owns the pid allocator.
/// The embedded mutex protects the lookup-then-incref sequence; it is
/// always acquired before any per-process lock, never after.
type Registry_t struct {
	sync.Mutex
	pids     *pidmap_t
	ht       *hashtable.Hashtable_t
	num_envs int64
}

/// MkRegistry builds an empty registry with pid 0 reserved.
func MkRegistry() *Registry_t {
	r := &Registry_t{}
	r.pids = mkpidmap()
	r.ht = hashtable.MkHash(100)
	return r
}

/// Pid2proc returns the process with the given pid with its refcount
/// bumped, or nil.  A process already in destruction (refcount zero)
/// is never returned; the lock keeps the entry from being freed
/// between the lookup and the refcount upgrade.
func (r *Registry_t) Pid2proc(pid defs.Pid_t) *Proc_t {
	r.Lock()
	defer r.Unlock()
	v, ok := r.ht.Get(pid)
	if !ok {
		return nil
	}
	p := v.(*Proc_t)
	if !p.p_kref.Get_not_zero(1) {
		return nil
	}
	return p
}

func (r *Registry_t) insert(p *Proc_t) {
	r.Lock()
	if _, did := r.ht.Set(p.Pid, p); !did {
		r.Unlock()
		panic("pid exists")
	}
	r.Unlock()
}

func (r *Registry_t) remove(p *Proc_t) {
	r.Lock()
	r.ht.Del(p.Pid)
	r.Unlock()
}

/// Num_envs returns the number of live processes on this machine.
func (r *Registry_t) Num_envs() int {
	return int(atomic.LoadInt64(&r.num_envs))
}

func (r *Registry_t) env_inc() {
	atomic.AddInt64(&r.num_envs, 1)
}

func (r *Registry_t) env_dec() {
	if atomic.AddInt64(&r.num_envs, -1) < 0 {
		panic("negative env count")
	}
}

/// Allpids snapshots the live pids, for debugging.
func (r *Registry_t) Allpids() []defs.Pid_t {
	r.Lock()
	defer r.Unlock()
	var ret []defs.Pid_t
	r.ht.Iter(func(pid defs.Pid_t, _ interface{}) bool {
		ret = append(ret, pid)
		return false
	})
	return ret
}
