package fd

import "sync"

import "manycore/defs"

/// File descriptor permission bits.
const (
	FD_READ    = 0x1 /// read permission
	FD_WRITE   = 0x2 /// write permission
	FD_CLOEXEC = 0x4 /// close-on-exec flag
)

/// Fdops_i is the subset of descriptor operations the process core
/// needs: duplicating a descriptor into a child and tearing the table
/// down at death.
type Fdops_i interface {
	Reopen() defs.Err_t
	Close() defs.Err_t
}

/// Fd_t represents an open file descriptor.
type Fd_t struct {
	// Fops is an interface implemented via a "pointer receiver", thus
	// Fops is a reference, not a value
	Fops  Fdops_i
	Perms int
}

/// Copyfd duplicates an open file descriptor by reopening it.
func Copyfd(f *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *f
	if err := nfd.Fops.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

/// Close_panic closes the descriptor and panics on failure.
func Close_panic(f *Fd_t) {
	if f.Fops.Close() != 0 {
		panic("must succeed")
	}
}

/// Fdtable_t is a process's open file table.
type Fdtable_t struct {
	sync.Mutex
	fds    []*Fd_t
	closed bool
}

/// Insert places f at the lowest free slot and returns its number.
func (ft *Fdtable_t) Insert(f *Fd_t) int {
	ft.Lock()
	defer ft.Unlock()
	if ft.closed {
		panic("insert on closed fd table")
	}
	for i := range ft.fds {
		if ft.fds[i] == nil {
			ft.fds[i] = f
			return i
		}
	}
	ft.fds = append(ft.fds, f)
	return len(ft.fds) - 1
}

/// Nfds returns the number of open descriptors.
func (ft *Fdtable_t) Nfds() int {
	ft.Lock()
	defer ft.Unlock()
	n := 0
	for _, f := range ft.fds {
		if f != nil {
			n++
		}
	}
	return n
}

/// Close_all closes every open descriptor and marks the table dead.
/// Called once, when the process is destroyed.
func (ft *Fdtable_t) Close_all() {
	ft.Lock()
	defer ft.Unlock()
	if ft.closed {
		return
	}
	ft.closed = true
	for i, f := range ft.fds {
		if f != nil {
			f.Fops.Close()
			ft.fds[i] = nil
		}
	}
}

// console device fops; reads and writes are handled elsewhere, the
// process core only opens and closes them.
type devfops_t struct {
	dev uint
}

func (df *devfops_t) Reopen() defs.Err_t {
	return 0
}

func (df *devfops_t) Close() defs.Err_t {
	return 0
}

/// Mkconsfd returns a descriptor on the console device with the given
/// permissions.
func Mkconsfd(perms int) *Fd_t {
	return &Fd_t{Fops: &devfops_t{dev: defs.Mkdev(defs.D_CONSOLE, 0)}, Perms: perms}
}
