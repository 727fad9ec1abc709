package keyboard

// US-English PS/2 scan-code set 1 tables (§4.H). Index is the scan code
// with the break bit (0x80) masked off. A zero entry means unmapped.
var USUnshifted = Table{
	0x01: 0, // Escape key itself; left unmapped, no ASCII equivalent
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0',
	0x0C: '-', 0x0D: '=', 0x0E: 8, // backspace
	0x0F: '\t',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1A: '[', 0x1B: ']', 0x1C: '\r',
	0x1D: byte(KeyLeftCtrl),
	0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l',
	0x27: ';', 0x28: '\'', 0x29: '`',
	0x2A: byte(KeyLeftShift),
	0x2B: '\\',
	0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm', 0x33: ',', 0x34: '.', 0x35: '/',
	0x36: byte(KeyRightShift),
	0x37: '*',
	0x38: byte(KeyLeftAlt),
	0x39: ' ',
	0x3A: byte(KeyCapsLock),
	0x3B: byte(KeyF1), 0x3C: byte(KeyF2), 0x3D: byte(KeyF3), 0x3E: byte(KeyF4),
	0x3F: byte(KeyF5), 0x40: byte(KeyF6), 0x41: byte(KeyF7), 0x42: byte(KeyF8),
	0x43: byte(KeyF9), 0x44: byte(KeyF10),
	0x45: byte(KeyNumLock),
	0x46: byte(KeyScrollLock),
	0x48: byte(KeyUp), 0x4B: byte(KeyLeft), 0x4D: byte(KeyRight), 0x50: byte(KeyDown),
	0x57: byte(KeyF11), 0x58: byte(KeyF12),
	0x60: escapeSentinel, // the 0xE0 prefix byte, with its 0x80 bit masked off
}

var USShifted = Table{
	0x02: '!', 0x03: '@', 0x04: '#', 0x05: '$', 0x06: '%',
	0x07: '^', 0x08: '&', 0x09: '*', 0x0A: '(', 0x0B: ')',
	0x0C: '_', 0x0D: '+', 0x0E: 8,
	0x0F: '\t',
	0x10: 'Q', 0x11: 'W', 0x12: 'E', 0x13: 'R', 0x14: 'T',
	0x15: 'Y', 0x16: 'U', 0x17: 'I', 0x18: 'O', 0x19: 'P',
	0x1A: '{', 0x1B: '}', 0x1C: '\r',
	0x1E: 'A', 0x1F: 'S', 0x20: 'D', 0x21: 'F', 0x22: 'G',
	0x23: 'H', 0x24: 'J', 0x25: 'K', 0x26: 'L',
	0x27: ':', 0x28: '"', 0x29: '~',
	0x2B: '|',
	0x2C: 'Z', 0x2D: 'X', 0x2E: 'C', 0x2F: 'V', 0x30: 'B',
	0x31: 'N', 0x32: 'M', 0x33: '<', 0x34: '>', 0x35: '?',
	0x37: '*',
	0x39: ' ',
}
