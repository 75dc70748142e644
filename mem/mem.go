// Package mem provides the address-space collaborator of the process
// core: an opaque page-table handle with setup and teardown, plus page
// size constants used to account for the shared procinfo/procdata pages.
package mem

import "sync"
import "sync/atomic"

import "manycore/defs"
import "manycore/util"

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// Pa_t represents a physical address.
type Pa_t uintptr

// page table roots are handed out from a fake physical arena; distinct
// address spaces get distinct roots so cr3 tracking is observable.
var nextroot uint64

/// BOOT_CR3 is the kernel-only page table loaded when a core abandons a
/// process context.
const BOOT_CR3 Pa_t = 0x1000

/// Aspace_t is a process address space: the page table root plus the
/// user region accounting this core needs to tear it down.  The real
/// region machinery lives with the vm manager; the process core only
/// drives the lifecycle.
type Aspace_t struct {
	sync.Mutex
	P_cr3   Pa_t
	regions int
	freed   bool
}

/// Setup_vm allocates a fresh address space with an empty user region
/// list.  Mirrors env_setup_vm.
func Setup_vm() (*Aspace_t, defs.Err_t) {
	n := atomic.AddUint64(&nextroot, 1)
	as := &Aspace_t{}
	as.P_cr3 = BOOT_CR3 + Pa_t(n)<<PGSHIFT
	return as, 0
}

/// Vmadd records a user region of the given byte length.
func (as *Aspace_t) Vmadd(length int) {
	as.Lock()
	if as.freed {
		panic("vmadd on freed address space")
	}
	as.regions += util.Roundup(length, PGSIZE) / PGSIZE
	as.Unlock()
}

/// Uvmfree releases all user mappings.  Mirrors destroy_vmrs +
/// env_user_mem_free.
func (as *Aspace_t) Uvmfree() {
	as.Lock()
	as.regions = 0
	as.Unlock()
}

/// Pagetable_free releases the page table pages themselves.  The user
/// regions must already be gone.  Mirrors env_pagetable_free.
func (as *Aspace_t) Pagetable_free() {
	as.Lock()
	defer as.Unlock()
	if as.freed {
		panic("double pagetable free")
	}
	if as.regions != 0 {
		panic("pagetable free with live user regions")
	}
	as.freed = true
	as.P_cr3 = 0
}

/// Regions returns the number of live user region pages.
func (as *Aspace_t) Regions() int {
	as.Lock()
	defer as.Unlock()
	return as.regions
}
