package generation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndRelease(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(1, func() {}))
	assert.True(t, r.Active(1))
	assert.False(t, r.Active(2))

	r.Release(1)
	assert.False(t, r.Active(1))
	r.Release(1)
}

func TestRegistryRejectsConcurrentRegister(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(1, func() {}))
	err := r.Register(1, func() {})
	assert.ErrorIs(t, err, ErrActiveGeneration)

	// Another chat is unaffected.
	assert.NoError(t, r.Register(2, func() {}))
}

func TestRegistryCancelFiresAndRemoves(t *testing.T) {
	r := NewRegistry()

	fired := false
	require.NoError(t, r.Register(7, func() { fired = true }))

	assert.True(t, r.Cancel(7))
	assert.True(t, fired)
	assert.False(t, r.Active(7))
}

func TestRegistryCancelWithoutSession(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.Cancel(99))
}

func TestRegistryReregisterAfterRelease(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(3, func() {}))
	r.Release(3)
	assert.NoError(t, r.Register(3, func() {}))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			if err := r.Register(id, func() {}); err == nil {
				r.Cancel(id)
			}
		}(uint(i % 5))
	}
	wg.Wait()

	for id := uint(0); id < 5; id++ {
		assert.False(t, r.Active(id))
	}
}
