// Command kernel boots a simulated many-core machine and walks one
// process through its whole life: single-core birth, the transition to
// a many-core process, core grants, preemption, and death.
package main

import "flag"
import "fmt"
import "runtime"

import "manycore/cpuset"
import "manycore/defs"
import "manycore/klog"
import "manycore/proc"
import "manycore/sched"
import "manycore/trap"

var coresflag = flag.String("cores", "0-3", "cpu list of pcores to boot")
var debugflag = flag.Bool("debug", false, "log debug output")

func main() {
	flag.Parse()
	klog.SetDebug(*debugflag)

	set, err := cpuset.Parse(*coresflag)
	if err != nil {
		panic(fmt.Sprintf("bad cpu list: %v", err))
	}
	cores := cpuset.List(&set)
	if len(cores) < 2 {
		panic("need at least two pcores")
	}
	ncpu := cores[len(cores)-1] + 1
	if ncpu > defs.MAX_CPUS {
		panic("too many cpus")
	}

	fmt.Printf("          many-core process core\n")
	fmt.Printf("          go version: %v\n", runtime.Version())
	fmt.Printf("  booting %v pcores: %v\n", len(cores), cores)

	bootcore := cores[0]
	// the boot core doesn't sit in the idle pool
	sc := sched.MkSched(cores[1:])
	m := proc.MkMachine(ncpu, sc)

	p, perr := m.Create(nil, []string{"bin/init"}, []string{"TERM=vt100"})
	if perr != 0 {
		panic(fmt.Sprintf("proc create: %v", perr))
	}
	p.Env_entry = 0x400078
	for i := 0; i < ncpu; i++ {
		p.Procdata.Vcore_preempt_data[i].Transition_stack =
			0x7f0000000000 + uintptr(i+1)<<16
	}
	klog.Printk("created", klog.Ctx{"pid": p.Pid})
	m.Print_proc_info(p.Pid)

	// birth as a single-core process
	p.Proc_make_runnable()
	scp, ok := sc.Next_scp()
	if !ok || scp != p {
		panic("scheduler lost the process")
	}
	cpu0 := m.Cpu(bootcore)
	cpu0.Proc_run_s(p)
	cpu0.Proc_restartcore()
	klog.Printk("running _S", klog.Ctx{
		"pid": p.Pid, "pcore": bootcore, "vcores": p.Num_vcores()})

	// the process asks for real cores: trap in, switch to _M
	var tf trap.Trapframe_t
	trap.Init_user_tf(&tf, p.Env_entry, 0x7f0000000000, 0)
	cpu0.Trap_entry(tf)
	p.Lock()
	cpu0.Proc_switch_to_m(p)
	p.Unlock()
	cpu0.Abandon_core()
	cpu0.Smp_idle()

	grant := sc.Get_idle_cores(2)
	p.Lock()
	p.Give_cores(grant)
	p.Proc_run_m()
	p.Unlock()
	for _, pc := range grant {
		m.Cpu(pc).Pump()
		m.Cpu(pc).Proc_restartcore()
	}
	klog.Printk("running _M", klog.Ctx{
		"pid": p.Pid, "pcores": fmt.Sprint(grant),
		"vcores": p.Num_vcores()})

	// preempt one core with a 100us warning
	p.Proc_preempt_core(grant[0], 100)
	m.Cpu(grant[0]).Pump()
	m.Cpu(grant[0]).Smp_idle()
	klog.Printk("preempted one", klog.Ctx{
		"pid": p.Pid, "pcore": grant[0], "vcores": p.Num_vcores()})

	// then everything
	p.Proc_preempt_all(1000)
	for _, pc := range grant {
		m.Cpu(pc).Pump()
		m.Cpu(pc).Smp_idle()
	}
	klog.Printk("bulk preempted", klog.Ctx{
		"pid": p.Pid, "state": p.State().String()})

	// restart on fresh cores; bulk preempted vcores come back first
	grant2 := sc.Get_idle_cores(2)
	p.Lock()
	p.Give_cores(grant2)
	p.Proc_run_m()
	p.Unlock()
	for _, pc := range grant2 {
		m.Cpu(pc).Pump()
		m.Cpu(pc).Proc_restartcore()
	}
	for {
		ev, ok := p.Pop_event()
		if !ok {
			break
		}
		vcore := ev.Arg2
		if ev.Type == defs.EV_PREEMPT_PENDING {
			vcore = ev.Arg1
		}
		klog.Printk("user event", klog.Ctx{
			"pid": p.Pid, "type": ev.Type.String(), "vcore": vcore})
	}

	// and die
	p.Proc_destroy()
	for i := 0; i < ncpu; i++ {
		m.Cpu(i).Pump()
		m.Cpu(i).Smp_idle()
	}
	p.Decref()
	klog.Printk("destroyed", klog.Ctx{
		"live": m.Registry.Num_envs(), "idle": sc.Nidle()})
	m.Print_allpids()

	fmt.Printf("kernel stats:%s", proc.Kstats_str())
}
