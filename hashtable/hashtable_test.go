package hashtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manycore/defs"
)

func TestHashSetGetDel(t *testing.T) {
	ht := MkHash(100)
	_, ok := ht.Get(1)
	assert.False(t, ok)

	_, did := ht.Set(1, "one")
	require.True(t, did)
	_, did = ht.Set(1, "uno")
	assert.False(t, did, "second set of the same pid fails")

	v, ok := ht.Get(1)
	require.True(t, ok)
	assert.Equal(t, "one", v)
	assert.Equal(t, 1, ht.Size())

	ht.Del(1)
	_, ok = ht.Get(1)
	assert.False(t, ok)
	require.Panics(t, func() { ht.Del(1) })
}

func TestHashManyPids(t *testing.T) {
	ht := MkHash(10)
	n := defs.Pid_t(1000)
	for pid := defs.Pid_t(1); pid <= n; pid++ {
		_, did := ht.Set(pid, int(pid)*3)
		require.True(t, did)
	}
	assert.Equal(t, int(n), ht.Size())
	for pid := defs.Pid_t(1); pid <= n; pid++ {
		v, ok := ht.Get(pid)
		require.True(t, ok)
		require.Equal(t, int(pid)*3, v)
	}
	seen := 0
	ht.Iter(func(pid defs.Pid_t, v interface{}) bool {
		seen++
		return false
	})
	assert.Equal(t, int(n), seen)
}
