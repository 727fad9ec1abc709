// Package keyboard implements component H: the PS/2 scan-code state
// machine and its single-producer/single-consumer event ring buffer. The
// producer/consumer split and the ready/enable-style handshake are
// grounded in smoynes-elsie's internal/vm/kbd.go Keyboard device, adapted
// from its blocking sync.Cond-based model (the ISR there calls
// Update, which waits on k.empty until the consumer has drained KBDR) to
// the spec's required non-blocking, drop-on-full discipline: an
// atomic.Uint32 size counter stands in for the condition variable, and a
// full buffer silently drops the event instead of blocking the ISR.
package keyboard

import "sync/atomic"

// Break distinguishes a key-down from a key-up scan code (§3.7).
type Break uint8

const (
	Down Break = iota
	Up
)

// Modifier mask bits (§3.7).
type Modifier uint8

const (
	Shift Modifier = 1 << iota
	Ctrl
	Alt
	Escaped
	CapsLock
	NumLock
	ScrollLock
)

// escapeSentinel is the keycode value a scan-code table entry holds for
// the multi-byte scan-code prefix (§4.H step 2).
const escapeSentinel = 0xFE

// Keycode identifies a non-ASCII key (arrows, function keys, modifiers,
// etc.) when a scan code does not map directly to an ASCII character. The
// zero value means "no non-ASCII keycode", i.e. the event is a plain
// ASCII character.
type Keycode uint8

const (
	KeyNone Keycode = 0

	KeyLeftShift Keycode = 0x80 + iota - 1
	KeyRightShift
	KeyLeftCtrl
	KeyLeftAlt
	KeyCapsLock
	KeyNumLock
	KeyScrollLock
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

// Event is the (break, modifier-snapshot, keycode, ASCII) tuple pushed to
// the ring buffer on every scan code that isn't an escape prefix (§3.7).
type Event struct {
	Break    Break
	Modifier Modifier
	Keycode  byte
	ASCII    byte
}

// ringCapacity is the fixed ring-buffer capacity (§3.8).
const ringCapacity = 32

// Table is a 128-entry scan-code translation table. An entry's meaning
// depends on its value: 0 means unmapped, 1-127 carry an ASCII value
// directly, a value in the Keycode range (0x80 and up) identifies a
// non-ASCII key, and escapeSentinel marks the multi-byte scan-code prefix.
type Table [128]byte

// State is the full keyboard state machine (§3.8): the installed
// shifted/unshifted scan-code tables, the live modifier mask, and the
// event ring buffer shared between the IRQ-1 producer and mainline
// consumers.
type State struct {
	unshifted Table
	shifted   Table

	modifier Modifier

	buf  [ringCapacity]Event
	head uint32 // consumer-owned
	tail uint32 // producer-owned
	size atomic.Uint32
}

// New returns a keyboard state machine installed with the given shifted
// and unshifted scan-code tables (§4.H: "the dispatcher is given the
// US-English PS/2 scan-code layout as two parallel 128-byte tables").
func New(unshifted, shifted Table) *State {
	return &State{unshifted: unshifted, shifted: shifted}
}

// isLockKeycode reports whether k is one of the three lock-toggling keys.
func isLockKeycode(k byte) (Modifier, bool) {
	switch Keycode(k) {
	case KeyCapsLock:
		return CapsLock, true
	case KeyNumLock:
		return NumLock, true
	case KeyScrollLock:
		return ScrollLock, true
	}
	return 0, false
}

// modifierKeycode reports the Shift/Ctrl/Alt modifier bit a keycode
// corresponds to, if any.
func modifierKeycode(k byte) (Modifier, bool) {
	switch Keycode(k) {
	case KeyLeftShift, KeyRightShift:
		return Shift, true
	case KeyLeftCtrl:
		return Ctrl, true
	case KeyLeftAlt:
		return Alt, true
	}
	return 0, false
}

// HandleScanCode is the IRQ-1 handler's core (§4.H). raw is the byte read
// from the keyboard data port: bit 7 distinguishes up (1) from down (0).
func (s *State) HandleScanCode(raw byte) {
	brk := Down
	code := raw &^ 0x80
	if raw&0x80 != 0 {
		brk = Up
	}

	unshiftedKey := s.unshifted[code]
	if unshiftedKey == escapeSentinel {
		s.modifier |= Escaped
		return
	}

	useShifted := s.modifier&Shift != 0
	if s.modifier&CapsLock != 0 && unshiftedKey >= 'a' && unshiftedKey <= 'z' {
		useShifted = !useShifted
	}
	key := unshiftedKey
	if useShifted {
		key = s.shifted[code]
	}

	if m, ok := modifierKeycode(unshiftedKey); ok {
		if brk == Down {
			s.modifier |= m
		} else {
			s.modifier &^= m
		}
	}
	if m, ok := isLockKeycode(unshiftedKey); ok && brk == Up {
		s.modifier ^= m
	}

	var ascii byte
	isAlpha := key >= 'a' && key <= 'z' || key >= 'A' && key <= 'Z'
	switch {
	case s.modifier&Ctrl != 0 && isAlpha:
		lower := key
		if lower >= 'A' && lower <= 'Z' {
			lower += 'a' - 'A'
		}
		ascii = lower - 'a' + 1
	case Keycode(key) == KeyNone || key >= 0x80:
		ascii = 0
	default:
		if _, isMod := modifierKeycode(unshiftedKey); !isMod {
			if _, isLock := isLockKeycode(unshiftedKey); !isLock {
				ascii = key
			}
		}
	}
	if brk == Up {
		ascii = 0
	}

	// The snapshot carries Escaped already cleared: this event consumes it.
	s.addEvent(Event{Break: brk, Modifier: s.modifier &^ Escaped, Keycode: unshiftedKey, ASCII: ascii})
}

// addEvent pushes an event onto the ring buffer, clearing the Escaped
// modifier bit as a side effect regardless of the event emitted (the
// decided resolution of the design's Escaped-clearing open question:
// only the escape-sentinel branch above ever leaves Escaped set, and it
// returns before reaching here). Drops the event silently if the buffer
// is full (§7: hardware-transient, drop silently).
func (s *State) addEvent(e Event) {
	defer func() { s.modifier &^= Escaped }()

	if s.size.Load() == ringCapacity {
		return
	}
	s.buf[s.tail] = e
	s.tail = (s.tail + 1) % ringCapacity
	s.size.Add(1)
}

// TryNextKey pops at most one event from the ring buffer. Safe to call
// outside interrupt context; coordinates with the producer via the atomic
// size counter (§4.H).
func (s *State) TryNextKey() (Event, bool) {
	if s.size.Load() == 0 {
		return Event{}, false
	}
	e := s.buf[s.head]
	s.head = (s.head + 1) % ringCapacity
	s.size.Add(^uint32(0)) // decrement
	return e, true
}

// TryNextChar pops events until one with a non-zero ASCII value is found
// (or the buffer empties), returning that character.
func (s *State) TryNextChar() (byte, bool) {
	for {
		e, ok := s.TryNextKey()
		if !ok {
			return 0, false
		}
		if e.ASCII != 0 {
			return e.ASCII, true
		}
	}
}

// Modifier returns the current modifier mask, for diagnostics.
func (s *State) Modifier() Modifier { return s.modifier }
