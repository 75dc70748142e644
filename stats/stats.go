package stats

import "reflect"
import "sync/atomic"
import "strconv"
import "strings"
import "unsafe"

const Stats = true

/// Counter_t is a statistical counter.
type Counter_t int64

/// Inc increments the counter.
func (c *Counter_t) Inc() {
	if Stats {
		n := (*int64)(unsafe.Pointer(c))
		atomic.AddInt64(n, 1)
	}
}

/// Read returns the counter value.
func (c *Counter_t) Read() int64 {
	n := (*int64)(unsafe.Pointer(c))
	return atomic.LoadInt64(n)
}

/// Kernstats_t counts the process core's interesting events.
type Kernstats_t struct {
	Nproc_alloc  Counter_t
	Nproc_free   Counter_t
	Nkmsg        Counter_t
	Nstartcore   Counter_t
	Nnotify      Counter_t
	Npreempt     Counter_t
	Ndeath       Counter_t
	Ntlbshoot    Counter_t
	Nyield       Counter_t
	Nyield_abort Counter_t
	Nevent       Counter_t
	Nevent_drop  Counter_t
}

/// Kstats is the global set of kernel counters.
var Kstats Kernstats_t

/// Stats2String converts a struct of counters to a printable string.
func Stats2String(st interface{}) string {
	if !Stats {
		return ""
	}
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
	}
	return s + "\n"
}
