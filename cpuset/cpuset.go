// Package cpuset parses Linux cpu-list strings into unix.CPUSet values.
// The boot harness uses it to choose which pcores the machine gets.
package cpuset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// maxcpus is the capacity of a unix.CPUSet.
const maxcpus = 1024

// Parse constructs a CPU set from a Linux CPU list formatted string
// such as "0-5,34,46-48".
//
// See: http://man7.org/linux/man-pages/man7/cpuset.7.html#FORMATS
func Parse(s string) (unix.CPUSet, error) {
	var set unix.CPUSet

	if s == "" {
		return set, errors.New("cannot parse empty string")
	}

	for _, r := range strings.Split(s, ",") {
		boundaries := strings.SplitN(r, "-", 2)
		if len(boundaries) == 1 {
			elem, err := strconv.Atoi(boundaries[0])
			if err != nil {
				return set, err
			}
			if elem < 0 || elem >= maxcpus {
				return set, fmt.Errorf("cpu %d out of range", elem)
			}
			set.Set(elem)
			continue
		}
		start, err := strconv.Atoi(boundaries[0])
		if err != nil {
			return set, err
		}
		end, err := strconv.Atoi(boundaries[1])
		if err != nil {
			return set, err
		}
		if start > end {
			return set, fmt.Errorf("invalid range %q (%d > %d)", r, start, end)
		}
		if start < 0 || end >= maxcpus {
			return set, fmt.Errorf("range %q out of range", r)
		}
		for i := start; i <= end; i++ {
			set.Set(i)
		}
	}
	return set, nil
}

// List returns the members of the set in ascending order.
func List(set *unix.CPUSet) []int {
	var ret []int
	for i := 0; i < maxcpus; i++ {
		if set.IsSet(i) {
			ret = append(ret, i)
		}
	}
	return ret
}
