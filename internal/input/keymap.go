package input

import (
	"errors"
	"fmt"
	"os"

	"github.com/bnema/waycore/internal/logger"
	evdev "github.com/gvalkov/golang-evdev"
	"golang.org/x/sys/unix"
)

// XKB modifier masks as they appear in wl_keyboard.modifiers.
const (
	ModShift   uint32 = 1 << 0
	ModLock    uint32 = 1 << 1
	ModControl uint32 = 1 << 2
	ModMod1    uint32 = 1 << 3
	ModMod2    uint32 = 1 << 4
	ModMod4    uint32 = 1 << 6
)

// KeymapFormat is the wl_keyboard.keymap_format value.
type KeymapFormat uint32

const (
	KeymapNone  KeymapFormat = 0
	KeymapXKBV1 KeymapFormat = 1
)

// ErrUnknownLayout is returned for layouts without a built-in table.
var ErrUnknownLayout = errors.New("unknown keyboard layout")

// Modifiers is the serialized modifier state sent to clients.
type Modifiers struct {
	Depressed uint32
	Latched   uint32
	Locked    uint32
	Group     uint32
}

// Effective returns the union of every active modifier.
func (m Modifiers) Effective() uint32 {
	return m.Depressed | m.Latched | m.Locked
}

type keysyms struct {
	plain, shifted uint32
	alpha          bool
}

// Keysyms used by the built-in tables.
const (
	xkBackSpace = 0xff08
	xkTab       = 0xff09
	xkReturn    = 0xff0d
	xkEscape    = 0xff1b
	xkHome      = 0xff50
	xkLeft      = 0xff51
	xkUp        = 0xff52
	xkRight     = 0xff53
	xkDown      = 0xff54
	xkPageUp    = 0xff55
	xkPageDown  = 0xff56
	xkEnd       = 0xff57
	xkInsert    = 0xff63
	xkNumLock   = 0xff7f
	xkF1        = 0xffbe
	xkShiftL    = 0xffe1
	xkShiftR    = 0xffe2
	xkControlL  = 0xffe3
	xkControlR  = 0xffe4
	xkCapsLock  = 0xffe5
	xkAltL      = 0xffe9
	xkAltR      = 0xffea
	xkSuperL    = 0xffeb
	xkSuperR    = 0xffec
	xkDelete    = 0xffff
)

var modifierKeys = map[uint32]uint32{
	evdev.KEY_LEFTSHIFT:  ModShift,
	evdev.KEY_RIGHTSHIFT: ModShift,
	evdev.KEY_LEFTCTRL:   ModControl,
	evdev.KEY_RIGHTCTRL:  ModControl,
	evdev.KEY_LEFTALT:    ModMod1,
	evdev.KEY_RIGHTALT:   ModMod1,
	evdev.KEY_LEFTMETA:   ModMod4,
	evdev.KEY_RIGHTMETA:  ModMod4,
}

var lockKeys = map[uint32]uint32{
	evdev.KEY_CAPSLOCK: ModLock,
	evdev.KEY_NUMLOCK:  ModMod2,
}

func usTable() map[uint32]keysyms {
	t := map[uint32]keysyms{
		evdev.KEY_ESC:        {plain: xkEscape, shifted: xkEscape},
		evdev.KEY_BACKSPACE:  {plain: xkBackSpace, shifted: xkBackSpace},
		evdev.KEY_TAB:        {plain: xkTab, shifted: xkTab},
		evdev.KEY_ENTER:      {plain: xkReturn, shifted: xkReturn},
		evdev.KEY_SPACE:      {plain: ' ', shifted: ' '},
		evdev.KEY_MINUS:      {plain: '-', shifted: '_'},
		evdev.KEY_EQUAL:      {plain: '=', shifted: '+'},
		evdev.KEY_LEFTBRACE:  {plain: '[', shifted: '{'},
		evdev.KEY_RIGHTBRACE: {plain: ']', shifted: '}'},
		evdev.KEY_SEMICOLON:  {plain: ';', shifted: ':'},
		evdev.KEY_APOSTROPHE: {plain: '\'', shifted: '"'},
		evdev.KEY_GRAVE:      {plain: '`', shifted: '~'},
		evdev.KEY_BACKSLASH:  {plain: '\\', shifted: '|'},
		evdev.KEY_COMMA:      {plain: ',', shifted: '<'},
		evdev.KEY_DOT:        {plain: '.', shifted: '>'},
		evdev.KEY_SLASH:      {plain: '/', shifted: '?'},
		evdev.KEY_HOME:       {plain: xkHome, shifted: xkHome},
		evdev.KEY_END:        {plain: xkEnd, shifted: xkEnd},
		evdev.KEY_PAGEUP:     {plain: xkPageUp, shifted: xkPageUp},
		evdev.KEY_PAGEDOWN:   {plain: xkPageDown, shifted: xkPageDown},
		evdev.KEY_LEFT:       {plain: xkLeft, shifted: xkLeft},
		evdev.KEY_RIGHT:      {plain: xkRight, shifted: xkRight},
		evdev.KEY_UP:         {plain: xkUp, shifted: xkUp},
		evdev.KEY_DOWN:       {plain: xkDown, shifted: xkDown},
		evdev.KEY_INSERT:     {plain: xkInsert, shifted: xkInsert},
		evdev.KEY_DELETE:     {plain: xkDelete, shifted: xkDelete},
		evdev.KEY_LEFTSHIFT:  {plain: xkShiftL, shifted: xkShiftL},
		evdev.KEY_RIGHTSHIFT: {plain: xkShiftR, shifted: xkShiftR},
		evdev.KEY_LEFTCTRL:   {plain: xkControlL, shifted: xkControlL},
		evdev.KEY_RIGHTCTRL:  {plain: xkControlR, shifted: xkControlR},
		evdev.KEY_LEFTALT:    {plain: xkAltL, shifted: xkAltL},
		evdev.KEY_RIGHTALT:   {plain: xkAltR, shifted: xkAltR},
		evdev.KEY_LEFTMETA:   {plain: xkSuperL, shifted: xkSuperL},
		evdev.KEY_RIGHTMETA:  {plain: xkSuperR, shifted: xkSuperR},
		evdev.KEY_CAPSLOCK:   {plain: xkCapsLock, shifted: xkCapsLock},
		evdev.KEY_NUMLOCK:    {plain: xkNumLock, shifted: xkNumLock},
	}

	letters := map[uint32]rune{
		evdev.KEY_A: 'a', evdev.KEY_B: 'b', evdev.KEY_C: 'c', evdev.KEY_D: 'd',
		evdev.KEY_E: 'e', evdev.KEY_F: 'f', evdev.KEY_G: 'g', evdev.KEY_H: 'h',
		evdev.KEY_I: 'i', evdev.KEY_J: 'j', evdev.KEY_K: 'k', evdev.KEY_L: 'l',
		evdev.KEY_M: 'm', evdev.KEY_N: 'n', evdev.KEY_O: 'o', evdev.KEY_P: 'p',
		evdev.KEY_Q: 'q', evdev.KEY_R: 'r', evdev.KEY_S: 's', evdev.KEY_T: 't',
		evdev.KEY_U: 'u', evdev.KEY_V: 'v', evdev.KEY_W: 'w', evdev.KEY_X: 'x',
		evdev.KEY_Y: 'y', evdev.KEY_Z: 'z',
	}
	for code, r := range letters {
		t[code] = letterSyms(r)
	}

	digits := []uint32{
		evdev.KEY_1, evdev.KEY_2, evdev.KEY_3, evdev.KEY_4, evdev.KEY_5,
		evdev.KEY_6, evdev.KEY_7, evdev.KEY_8, evdev.KEY_9, evdev.KEY_0,
	}
	shiftedDigits := "!@#$%^&*()"
	for i, code := range digits {
		t[code] = keysyms{plain: uint32("1234567890"[i]), shifted: uint32(shiftedDigits[i])}
	}

	fkeys := []uint32{
		evdev.KEY_F1, evdev.KEY_F2, evdev.KEY_F3, evdev.KEY_F4, evdev.KEY_F5, evdev.KEY_F6,
		evdev.KEY_F7, evdev.KEY_F8, evdev.KEY_F9, evdev.KEY_F10, evdev.KEY_F11, evdev.KEY_F12,
	}
	for i, code := range fkeys {
		sym := uint32(xkF1 + i)
		t[code] = keysyms{plain: sym, shifted: sym}
	}
	return t
}

func letterSyms(r rune) keysyms {
	return keysyms{plain: uint32(r), shifted: uint32(r) - 0x20, alpha: true}
}

// frTable swaps the AZERTY positions into the US table.
func frTable() map[uint32]keysyms {
	t := usTable()
	t[evdev.KEY_Q] = letterSyms('a')
	t[evdev.KEY_A] = letterSyms('q')
	t[evdev.KEY_W] = letterSyms('z')
	t[evdev.KEY_Z] = letterSyms('w')
	t[evdev.KEY_SEMICOLON] = letterSyms('m')
	t[evdev.KEY_M] = keysyms{plain: ',', shifted: '?'}

	digits := []uint32{
		evdev.KEY_1, evdev.KEY_2, evdev.KEY_3, evdev.KEY_4, evdev.KEY_5,
		evdev.KEY_6, evdev.KEY_7, evdev.KEY_8, evdev.KEY_9, evdev.KEY_0,
	}
	// & é " ' ( - è _ ç à
	plain := []uint32{0x26, 0xe9, 0x22, 0x27, 0x28, 0x2d, 0xe8, 0x5f, 0xe7, 0xe0}
	for i, code := range digits {
		t[code] = keysyms{plain: plain[i], shifted: uint32("1234567890"[i])}
	}
	return t
}

var layouts = map[string]func() map[uint32]keysyms{
	"us": usTable,
	"fr": frTable,
}

// Keymap resolves evdev key codes to keysyms and modifier masks, and holds
// the keymap payload advertised to clients.
type Keymap struct {
	layout string
	table  map[uint32]keysyms
	format KeymapFormat
	data   []byte
}

// NewKeymap returns the built-in table for layout with no keymap payload;
// clients then interpret raw key codes.
func NewKeymap(layout string) (*Keymap, error) {
	build, ok := layouts[layout]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLayout, layout)
	}
	return &Keymap{
		layout: layout,
		table:  build(),
		format: KeymapNone,
	}, nil
}

// LoadKeymap returns the built-in table for layout. When path is set the
// XKB text keymap it names is advertised to clients as xkb_v1.
func LoadKeymap(layout, path string) (*Keymap, error) {
	k, err := NewKeymap(layout)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return k, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keymap %s: %w", path, err)
	}
	if len(data) == 0 || data[len(data)-1] != 0 {
		data = append(data, 0)
	}
	k.format = KeymapXKBV1
	k.data = data
	logger.Debugf("Loaded XKB keymap %s (%d bytes)", path, len(data))
	return k, nil
}

// Layout returns the layout name.
func (k *Keymap) Layout() string {
	return k.layout
}

// Format returns the format advertised in wl_keyboard.keymap.
func (k *Keymap) Format() KeymapFormat {
	return k.format
}

// Size returns the payload size, including the terminating NUL.
func (k *Keymap) Size() uint32 {
	return uint32(len(k.data))
}

// Keysym resolves a key code under the given modifiers. Unknown codes
// resolve to 0 (NoSymbol).
func (k *Keymap) Keysym(code uint32, mods Modifiers) uint32 {
	syms, ok := k.table[code]
	if !ok {
		return 0
	}
	eff := mods.Effective()
	shift := eff&ModShift != 0
	if syms.alpha && eff&ModLock != 0 {
		shift = !shift
	}
	if shift {
		return syms.shifted
	}
	return syms.plain
}

// ModifierMask returns the mask a held key contributes, or 0.
func (k *Keymap) ModifierMask(code uint32) uint32 {
	return modifierKeys[code]
}

// LockMask returns the mask a lock key toggles, or 0.
func (k *Keymap) LockMask(code uint32) uint32 {
	return lockKeys[code]
}

// Repeats reports whether holding the key produces repeat events.
// Modifier and lock keys never repeat.
func (k *Keymap) Repeats(code uint32) bool {
	return k.ModifierMask(code) == 0 && k.LockMask(code) == 0
}

// NewFD writes the keymap payload into a sealed memfd for
// wl_keyboard.keymap. The caller owns the returned descriptor.
func (k *Keymap) NewFD() (int, error) {
	fd, err := unix.MemfdCreate("waycore-keymap", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return -1, fmt.Errorf("memfd_create: %w", err)
	}
	for off := 0; off < len(k.data); {
		n, err := unix.Write(fd, k.data[off:])
		if err != nil {
			unix.Close(fd)
			return -1, fmt.Errorf("failed to write keymap: %w", err)
		}
		off += n
	}
	seals := unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_WRITE | unix.F_SEAL_SEAL
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, seals); err != nil {
		logger.Warnf("Failed to seal keymap memfd: %v", err)
	}
	return fd, nil
}

// modifierState tracks held modifier keys and toggled locks.
type modifierState struct {
	held   map[uint32]uint32
	locked uint32
}

func newModifierState() *modifierState {
	return &modifierState{held: make(map[uint32]uint32)}
}

// update applies a key transition and reports whether the serialized
// modifiers changed.
func (m *modifierState) update(k *Keymap, code uint32, pressed bool) bool {
	before := m.snapshot()
	if mask := k.ModifierMask(code); mask != 0 {
		if pressed {
			m.held[code] = mask
		} else {
			delete(m.held, code)
		}
	}
	if mask := k.LockMask(code); mask != 0 && pressed {
		m.locked ^= mask
	}
	return m.snapshot() != before
}

func (m *modifierState) snapshot() Modifiers {
	var depressed uint32
	for _, mask := range m.held {
		depressed |= mask
	}
	return Modifiers{Depressed: depressed, Locked: m.locked}
}

func (m *modifierState) reset() {
	m.held = make(map[uint32]uint32)
}
