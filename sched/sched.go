// Package sched is the simple scheduler collaborator: an idle core map
// and a runnable queue for single-core processes.  The process core
// only talks to it through proc.Sched_i.
package sched

import "sync"

import "manycore/klog"
import "manycore/proc"

/// Simplesched_t hands out idle pcores in LIFO order and queues
/// runnable SCPs FIFO.
type Simplesched_t struct {
	sync.Mutex
	idlecores []int
	runnable  []*proc.Proc_t
	nwaiting  int
}

/// MkSched builds a scheduler whose idle pool holds the given pcores.
func MkSched(cores []int) *Simplesched_t {
	s := &Simplesched_t{}
	s.idlecores = append(s.idlecores, cores...)
	return s
}

/// Schedule_scp queues a RUNNABLE_S process.
func (s *Simplesched_t) Schedule_scp(p *proc.Proc_t) {
	s.Lock()
	s.runnable = append(s.runnable, p)
	s.Unlock()
	klog.Printd("scp runnable", klog.Ctx{"pid": p.Pid})
}

/// Next_scp dequeues the oldest runnable SCP, if any.
func (s *Simplesched_t) Next_scp() (*proc.Proc_t, bool) {
	s.Lock()
	defer s.Unlock()
	if len(s.runnable) == 0 {
		return nil, false
	}
	p := s.runnable[0]
	s.runnable = s.runnable[1:]
	return p, true
}

/// Put_idle_core returns a freed pcore to the pool.
func (s *Simplesched_t) Put_idle_core(pcoreid int) {
	s.Lock()
	s.idlecores = append(s.idlecores, pcoreid)
	s.Unlock()
}

/// Get_idle_core takes a pcore from the pool.
func (s *Simplesched_t) Get_idle_core() (int, bool) {
	s.Lock()
	defer s.Unlock()
	if len(s.idlecores) == 0 {
		return 0, false
	}
	pc := s.idlecores[len(s.idlecores)-1]
	s.idlecores = s.idlecores[:len(s.idlecores)-1]
	return pc, true
}

/// Get_idle_cores takes up to want pcores from the pool.
func (s *Simplesched_t) Get_idle_cores(want int) []int {
	var ret []int
	for len(ret) < want {
		pc, ok := s.Get_idle_core()
		if !ok {
			break
		}
		ret = append(ret, pc)
	}
	return ret
}

/// Nidle returns the idle pool size.
func (s *Simplesched_t) Nidle() int {
	s.Lock()
	defer s.Unlock()
	return len(s.idlecores)
}

/// Proc_waiting records that a process went to sleep wanting cores.
func (s *Simplesched_t) Proc_waiting(p *proc.Proc_t) {
	s.Lock()
	s.nwaiting++
	s.Unlock()
	klog.Printd("proc waiting for cores", klog.Ctx{"pid": p.Pid})
}
