package fd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFdtable(t *testing.T) {
	var ft Fdtable_t
	assert.Equal(t, 0, ft.Insert(Mkconsfd(FD_READ)))
	assert.Equal(t, 1, ft.Insert(Mkconsfd(FD_WRITE)))
	assert.Equal(t, 2, ft.Insert(Mkconsfd(FD_WRITE)))
	assert.Equal(t, 3, ft.Nfds())

	ft.Close_all()
	assert.Equal(t, 0, ft.Nfds())
	// idempotent
	ft.Close_all()
	require.Panics(t, func() { ft.Insert(Mkconsfd(FD_READ)) })
}

func TestCopyfd(t *testing.T) {
	f := Mkconsfd(FD_READ | FD_WRITE)
	nf, err := Copyfd(f)
	require.Zero(t, err)
	assert.Equal(t, f.Perms, nf.Perms)
	assert.Equal(t, f.Fops, nf.Fops)
}
