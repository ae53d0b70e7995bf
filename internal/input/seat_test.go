package input

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/bnema/waycore/internal/surface"
	evdev "github.com/gvalkov/golang-evdev"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestReleasePointer(t *testing.T) {
	seat := NewSeat("seat0")
	a := ResourceID{Client: 1, Object: 5}
	b := ResourceID{Client: 1, Object: 6}
	other := ResourceID{Client: 2, Object: 5}
	seat.AddPointer(a, 9)
	seat.AddPointer(b, 9)
	seat.AddPointer(other, 7)

	assert.True(t, seat.ReleasePointer(a))
	_, ok := seat.Pointer(a)
	assert.False(t, ok, "released pointer leaves the map")
	assert.Len(t, seat.Pointers(1), 1)

	assert.NotPanics(t, func() {
		assert.False(t, seat.ReleasePointer(a), "second release only warns")
		assert.False(t, seat.ReleasePointer(ResourceID{Client: 9, Object: 1}))
	})

	pointers, _, _ := seat.Counts()
	assert.Equal(t, 2, pointers)
}

func TestSeatRemoveClient(t *testing.T) {
	seat := NewSeat("seat0")
	seat.AddPointer(ResourceID{Client: 1, Object: 5}, 9)
	seat.AddKeyboard(ResourceID{Client: 1, Object: 6}, 9)
	seat.AddTouch(ResourceID{Client: 1, Object: 7}, 9)
	seat.AddKeyboard(ResourceID{Client: 2, Object: 6}, 9)

	seat.RemoveClient(1)
	pointers, keyboards, touches := seat.Counts()
	assert.Zero(t, pointers)
	assert.Equal(t, 1, keyboards)
	assert.Zero(t, touches)
	assert.Len(t, seat.Keyboards(2), 1)

	assert.False(t, seat.ReleaseKeyboard(ResourceID{Client: 1, Object: 6}))
	assert.False(t, seat.ReleaseTouch(ResourceID{Client: 1, Object: 7}))
}

func TestSetCursorSerialCheck(t *testing.T) {
	newSurface := func(t *testing.T, m *surface.Manager, object uint32) *surface.Surface {
		s, err := m.Create(surface.ID{Client: 1, Object: object})
		require.NoError(t, err)
		return s
	}

	tests := []struct {
		name       string
		serial     uint32
		withSurf   bool
		role       surface.Role
		wantOK     bool
		wantHidden bool
		noEnter    bool
	}{
		{name: "surface with enter serial", serial: 42, withSurf: true, wantOK: true},
		{name: "surface with stale serial", serial: 41, withSurf: true, wantOK: false},
		{name: "hide with enter serial", serial: 42, wantOK: true, wantHidden: true},
		{name: "hide with stale serial", serial: 7, wantOK: true, wantHidden: true},
		{name: "surface with another role", serial: 42, withSurf: true, role: surface.RoleToplevel, wantOK: false},
		{name: "surface before any enter", serial: 0, withSurf: true, noEnter: true, wantOK: false},
		{name: "hide before any enter", serial: 0, noEnter: true, wantOK: true, wantHidden: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seat := NewSeat("seat0")
			id := ResourceID{Client: 1, Object: 5}
			seat.AddPointer(id, 9)
			if !tt.noEnter {
				seat.NoteEnter(1, 42)
			}

			var surf *surface.Surface
			if tt.withSurf {
				surf = newSurface(t, surface.NewManager(nil), 10)
				if tt.role != surface.RoleNone {
					require.NoError(t, surf.SetRole(tt.role))
				}
			}

			ok := seat.SetCursor(id, tt.serial, surf, 3, 4)
			assert.Equal(t, tt.wantOK, ok)

			p, found := seat.Pointer(id)
			require.True(t, found)
			if !tt.wantOK {
				assert.Nil(t, p.Cursor, "rejected requests are ignored")
				if surf != nil && tt.role == surface.RoleNone {
					assert.Equal(t, surface.RoleNone, surf.Role())
				}
				return
			}
			require.NotNil(t, p.Cursor)
			assert.Equal(t, tt.wantHidden, p.Cursor.Hidden)
			if !tt.wantHidden {
				assert.Equal(t, surface.RoleCursor, surf.Role())
				assert.Equal(t, int32(3), p.Cursor.HotspotX)
				assert.Equal(t, int32(4), p.Cursor.HotspotY)
			}
		})
	}

	t.Run("untracked pointer", func(t *testing.T) {
		seat := NewSeat("seat0")
		assert.False(t, seat.SetCursor(ResourceID{Client: 1, Object: 5}, 0, nil, 0, 0))
	})
}

func TestKeymapKeysyms(t *testing.T) {
	us, err := NewKeymap("us")
	require.NoError(t, err)
	fr, err := NewKeymap("fr")
	require.NoError(t, err)

	shift := Modifiers{Depressed: ModShift}
	caps := Modifiers{Locked: ModLock}
	tests := []struct {
		name   string
		keymap *Keymap
		code   uint32
		mods   Modifiers
		want   uint32
	}{
		{name: "plain letter", keymap: us, code: evdev.KEY_A, want: 'a'},
		{name: "shifted letter", keymap: us, code: evdev.KEY_A, mods: shift, want: 'A'},
		{name: "caps letter", keymap: us, code: evdev.KEY_A, mods: caps, want: 'A'},
		{name: "caps and shift", keymap: us, code: evdev.KEY_A, mods: Modifiers{Depressed: ModShift, Locked: ModLock}, want: 'a'},
		{name: "caps leaves digits", keymap: us, code: evdev.KEY_1, mods: caps, want: '1'},
		{name: "shifted digit", keymap: us, code: evdev.KEY_1, mods: shift, want: '!'},
		{name: "escape", keymap: us, code: evdev.KEY_ESC, want: xkEscape},
		{name: "function key", keymap: us, code: evdev.KEY_F5, want: xkF1 + 4},
		{name: "unknown code", keymap: us, code: 0x2ff, want: 0},
		{name: "azerty q position", keymap: fr, code: evdev.KEY_Q, want: 'a'},
		{name: "azerty semicolon position", keymap: fr, code: evdev.KEY_SEMICOLON, mods: shift, want: 'M'},
		{name: "azerty digit row", keymap: fr, code: evdev.KEY_2, want: 0xe9},
		{name: "azerty shifted digit row", keymap: fr, code: evdev.KEY_2, mods: shift, want: '2'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.keymap.Keysym(tt.code, tt.mods))
		})
	}

	_, err = NewKeymap("dvorak")
	assert.ErrorIs(t, err, ErrUnknownLayout)
}

func TestKeymapModifiers(t *testing.T) {
	k, err := NewKeymap("us")
	require.NoError(t, err)

	assert.False(t, k.Repeats(evdev.KEY_LEFTSHIFT))
	assert.False(t, k.Repeats(evdev.KEY_CAPSLOCK))
	assert.False(t, k.Repeats(evdev.KEY_RIGHTMETA))
	assert.True(t, k.Repeats(evdev.KEY_A))
	assert.Equal(t, ModMod4, k.ModifierMask(evdev.KEY_LEFTMETA))
	assert.Equal(t, ModMod1, k.ModifierMask(evdev.KEY_RIGHTALT))

	state := newModifierState()
	assert.True(t, state.update(k, evdev.KEY_LEFTCTRL, true))
	assert.False(t, state.update(k, evdev.KEY_RIGHTCTRL, true), "second control key keeps the mask")
	assert.False(t, state.update(k, evdev.KEY_LEFTCTRL, false))
	assert.True(t, state.update(k, evdev.KEY_RIGHTCTRL, false))

	assert.True(t, state.update(k, evdev.KEY_NUMLOCK, true))
	assert.False(t, state.update(k, evdev.KEY_NUMLOCK, false))
	assert.Equal(t, Modifiers{Locked: ModMod2}, state.snapshot())
	assert.True(t, state.update(k, evdev.KEY_NUMLOCK, true))
	assert.Equal(t, Modifiers{}, state.snapshot())
}

func TestLoadKeymap(t *testing.T) {
	k, err := LoadKeymap("us", "")
	require.NoError(t, err)
	assert.Equal(t, KeymapNone, k.Format())
	assert.Zero(t, k.Size())

	path := filepath.Join(t.TempDir(), "keymap.xkb")
	text := "xkb_keymap { };"
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))

	k, err = LoadKeymap("us", path)
	require.NoError(t, err)
	assert.Equal(t, KeymapXKBV1, k.Format())
	assert.Equal(t, uint32(len(text)+1), k.Size(), "payload is NUL terminated")

	fd, err := k.NewFD()
	require.NoError(t, err)
	defer unix.Close(fd)

	buf := make([]byte, k.Size())
	n, err := unix.Pread(fd, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, int(k.Size()), n)
	assert.Equal(t, text+"\x00", string(buf))

	_, err = LoadKeymap("us", filepath.Join(t.TempDir(), "missing.xkb"))
	assert.Error(t, err)
}

func TestAccelerator(t *testing.T) {
	tests := []struct {
		name        string
		profile     AccelProfile
		sensitivity float64
		dx, dy      float64
		wantX       float64
		wantY       float64
	}{
		{name: "flat neutral", profile: AccelFlat, dx: 10, dy: -5, wantX: 10, wantY: -5},
		{name: "flat faster", profile: AccelFlat, sensitivity: 0.5, dx: 10, dy: 0, wantX: 15},
		{name: "flat slowest", profile: AccelFlat, sensitivity: -1, dx: 10, dy: 0, wantX: 1},
		{name: "sensitivity is clamped", profile: AccelFlat, sensitivity: 4, dx: 10, dy: 0, wantX: 20},
		{name: "adaptive slow motion", profile: AccelAdaptive, dx: 3, dy: 0, wantX: 3},
		{name: "adaptive fast motion", profile: AccelAdaptive, dx: 14, dy: 0, wantX: 14 * 2.2},
		{name: "adaptive cap", profile: AccelAdaptive, dx: 100, dy: 0, wantX: 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAccelerator(tt.profile, tt.sensitivity)
			x, y := a.Apply(tt.dx, tt.dy)
			assert.InDelta(t, tt.wantX, x, 1e-9)
			assert.InDelta(t, tt.wantY, y, 1e-9)
		})
	}
}

func TestParseAccelProfile(t *testing.T) {
	p, err := ParseAccelProfile("Flat")
	require.NoError(t, err)
	assert.Equal(t, AccelFlat, p)

	p, err = ParseAccelProfile("")
	require.NoError(t, err)
	assert.Equal(t, AccelAdaptive, p)

	_, err = ParseAccelProfile("linear")
	assert.Error(t, err)
}
