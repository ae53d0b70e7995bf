package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterObject(t *testing.T) {
	r := New()
	require.NoError(t, r.AddClient(1))
	require.NoError(t, r.AddClient(2))

	tests := []struct {
		name    string
		client  ClientID
		id      uint32
		iface   string
		wantErr error
	}{
		{name: "display", client: 1, id: 1, iface: "wl_display"},
		{name: "same id other client", client: 2, id: 1, iface: "wl_display"},
		{name: "duplicate id", client: 1, id: 1, iface: "wl_surface", wantErr: ErrObjectExists},
		{name: "null id", client: 1, id: 0, iface: "wl_surface", wantErr: ErrNullObject},
		{name: "unknown client", client: 9, id: 3, iface: "wl_surface", wantErr: ErrUnknownClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := r.RegisterObject(tt.client, tt.id, tt.iface, 1)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ObjectEntry{ID: tt.id, Interface: tt.iface, Version: 1}, entry)
		})
	}

	entry, ok := r.GetObject(1, 1)
	require.True(t, ok)
	assert.Equal(t, "wl_display", entry.Interface)
}

func TestAddClientTwice(t *testing.T) {
	r := New()
	require.NoError(t, r.AddClient(1))
	assert.ErrorIs(t, r.AddClient(1), ErrClientExists)
}

func TestRemoveObject(t *testing.T) {
	r := New()
	require.NoError(t, r.AddClient(1))
	_, err := r.RegisterObject(1, 5, "wl_surface", 6)
	require.NoError(t, err)

	removed, ok := r.RemoveObject(1, 5)
	require.True(t, ok)
	assert.Equal(t, uint32(6), removed.Version)

	_, ok = r.GetObject(1, 5)
	assert.False(t, ok)

	_, ok = r.RemoveObject(1, 5)
	assert.False(t, ok)

	// Id is free again once the referent is gone
	_, err = r.RegisterObject(1, 5, "wl_region", 1)
	assert.NoError(t, err)
}

func TestRemoveClient(t *testing.T) {
	r := New()
	require.NoError(t, r.AddClient(1))
	require.NoError(t, r.AddClient(2))
	for _, id := range []uint32{3, 1, 2} {
		_, err := r.RegisterObject(1, id, "wl_surface", 1)
		require.NoError(t, err)
	}
	_, err := r.RegisterObject(2, 1, "wl_display", 1)
	require.NoError(t, err)

	removed := r.RemoveClient(1)
	require.Len(t, removed, 3)
	assert.Equal(t, []uint32{1, 2, 3}, []uint32{removed[0].ID, removed[1].ID, removed[2].ID})

	assert.False(t, r.HasClient(1))
	assert.Nil(t, r.Objects(1))
	assert.Zero(t, r.Count(1))

	// Idempotent
	assert.Nil(t, r.RemoveClient(1))
	assert.Nil(t, r.RemoveClient(42))

	// Other clients are untouched
	assert.Equal(t, []ClientID{2}, r.Clients())
	assert.Equal(t, 1, r.Count(2))
}

func TestConcurrentReaders(t *testing.T) {
	r := New()
	require.NoError(t, r.AddClient(1))
	for id := uint32(1); id <= 100; id++ {
		_, err := r.RegisterObject(1, id, "wl_surface", 1)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := uint32(1); id <= 100; id++ {
				_, ok := r.GetObject(1, id)
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, r.Objects(1), 100)
}
