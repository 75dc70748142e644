// Package defs holds the identifiers, limits, and error codes shared by
// the process core.
package defs

/// Pid_t identifies a process.  Pid 0 is permanently reserved.
type Pid_t int32

/// PID_MAX is the largest allocatable pid; live pids are in [1, PID_MAX].
const PID_MAX Pid_t = 32767

/// MAX_CPUS bounds both the physical cores of the machine and the
/// vcores of a single process.  The vcoremap and pcoremap are sized by
/// it, so it is part of the shared procinfo layout.
const MAX_CPUS int = 64

/// Tid_t identifies a thread within a process.
type Tid_t int

/// Restype_t names a resource kind tracked per process.
type Restype_t int

const (
	RES_CORES Restype_t = iota /// physical cores backing vcores
	RES_MEMORY                 /// physical pages (accounting only)
	MAX_RESOURCES
)
