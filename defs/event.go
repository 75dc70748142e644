package defs

/// Evtype_t names a system event posted to a process's event ring.
type Evtype_t int

const (
	EV_NONE            Evtype_t = iota
	EV_PREEMPT_PENDING          /// arg1 = vcoreid; the deadline is in the vcoremap entry
	EV_VCORE_PREEMPT            /// arg2 = vcoreid
	EV_CHECK_MSGS               /// arg2 = vcoreid
)

var evstr = map[Evtype_t]string{
	EV_NONE:            "EV_NONE",
	EV_PREEMPT_PENDING: "EV_PREEMPT_PENDING",
	EV_VCORE_PREEMPT:   "EV_VCORE_PREEMPT",
	EV_CHECK_MSGS:      "EV_CHECK_MSGS",
}

func (e Evtype_t) String() string {
	if s, ok := evstr[e]; ok {
		return s
	}
	return "EV_BOGUS"
}
