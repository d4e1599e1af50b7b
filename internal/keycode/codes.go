// Package keycode holds the static, build-time-fixed tables that translate
// between Linux evdev key codes, their canonical KEY_* names, and the
// printable ASCII characters a user actually types. Nothing in this package
// depends on configuration or runtime state; callers decide what to do with
// a not-found result.
package keycode

import "strings"

// KC is a Linux evdev key code (linux/input-event-codes.h numbering).
type KC uint16

// Modifier key codes, plus Esc and CapsLock. The modifiers appear in pairs
// (left/right) in evdev; Esc and CapsLock have no pair.
const (
	KeyEsc KC = 1

	KeyLeftCtrl  KC = 29
	KeyLeftShift KC = 42
	KeyRightShift KC = 54
	KeyLeftAlt   KC = 56
	KeyCapsLock  KC = 58
	KeyRightCtrl KC = 97
	KeyRightAlt  KC = 100
	KeyLeftMeta  KC = 125
	KeyRightMeta KC = 126
)

// IsModifier reports whether kc is one of the Shift/Ctrl/Alt/Meta keys
// (either side), the set the compose state machine treats specially.
func IsModifier(kc KC) bool {
	switch kc {
	case KeyLeftShift, KeyRightShift, KeyLeftCtrl, KeyRightCtrl,
		KeyLeftAlt, KeyRightAlt, KeyLeftMeta, KeyRightMeta:
		return true
	}
	return false
}

// IsShift reports whether kc is either Shift key.
func IsShift(kc KC) bool {
	return kc == KeyLeftShift || kc == KeyRightShift
}

// IsCtrl reports whether kc is either Ctrl key.
func IsCtrl(kc KC) bool {
	return kc == KeyLeftCtrl || kc == KeyRightCtrl
}

// IsMeta reports whether kc is either Meta (Super/Windows) key.
func IsMeta(kc KC) bool {
	return kc == KeyLeftMeta || kc == KeyRightMeta
}

// IsAlt reports whether kc is either Alt key.
func IsAlt(kc KC) bool {
	return kc == KeyLeftAlt || kc == KeyRightAlt
}

// nameToKC is the full canonical-name table, keyed by the upper-case
// KEY_* spelling without the SHIFT+ prefix (that prefix is a sequence-file
// notation, not a key name, and is stripped by the config loader before
// it ever reaches this table).
var nameToKC = map[string]KC{
	"KEY_ESC": KeyEsc,

	"KEY_1": 2, "KEY_2": 3, "KEY_3": 4, "KEY_4": 5, "KEY_5": 6,
	"KEY_6": 7, "KEY_7": 8, "KEY_8": 9, "KEY_9": 10, "KEY_0": 11,

	"KEY_MINUS": 12, "KEY_EQUAL": 13,
	"KEY_BACKSPACE": 14,
	"KEY_TAB":       15,

	"KEY_Q": 16, "KEY_W": 17, "KEY_E": 18, "KEY_R": 19, "KEY_T": 20,
	"KEY_Y": 21, "KEY_U": 22, "KEY_I": 23, "KEY_O": 24, "KEY_P": 25,

	"KEY_LEFTBRACE": 26, "KEY_RIGHTBRACE": 27,
	"KEY_ENTER":     28,
	"KEY_LEFTCTRL":  KeyLeftCtrl,

	"KEY_A": 30, "KEY_S": 31, "KEY_D": 32, "KEY_F": 33, "KEY_G": 34,
	"KEY_H": 35, "KEY_J": 36, "KEY_K": 37, "KEY_L": 38,

	"KEY_SEMICOLON":  39,
	"KEY_APOSTROPHE": 40,
	"KEY_GRAVE":      41,
	"KEY_LEFTSHIFT":  KeyLeftShift,
	"KEY_BACKSLASH":  43,

	"KEY_Z": 44, "KEY_X": 45, "KEY_C": 46, "KEY_V": 47, "KEY_B": 48,
	"KEY_N": 49, "KEY_M": 50,

	"KEY_COMMA": 51, "KEY_DOT": 52, "KEY_SLASH": 53,
	"KEY_RIGHTSHIFT": KeyRightShift,
	"KEY_KPASTERISK":  55,
	"KEY_LEFTALT":     KeyLeftAlt,
	"KEY_SPACE":       57,
	"KEY_CAPSLOCK":    KeyCapsLock,

	"KEY_F1": 59, "KEY_F2": 60, "KEY_F3": 61, "KEY_F4": 62, "KEY_F5": 63,
	"KEY_F6": 64, "KEY_F7": 65, "KEY_F8": 66, "KEY_F9": 67, "KEY_F10": 68,

	"KEY_NUMLOCK":    69,
	"KEY_SCROLLLOCK": 70,

	"KEY_F11": 87, "KEY_F12": 88,

	"KEY_RIGHTCTRL": KeyRightCtrl,
	"KEY_RIGHTALT":  KeyRightAlt,

	"KEY_HOME":     102,
	"KEY_UP":       103,
	"KEY_PAGEUP":   104,
	"KEY_LEFT":     105,
	"KEY_RIGHT":    106,
	"KEY_END":      107,
	"KEY_DOWN":     108,
	"KEY_PAGEDOWN": 109,
	"KEY_INSERT":   110,
	"KEY_DELETE":   111,

	"KEY_LEFTMETA":  KeyLeftMeta,
	"KEY_RIGHTMETA": KeyRightMeta,
}

var kcToName map[KC]string

func init() {
	kcToName = make(map[KC]string, len(nameToKC))
	for name, kc := range nameToKC {
		// Prefer the first-seen spelling for codes with synonyms; none of
		// the table above has duplicate codes, so this is deterministic.
		if _, ok := kcToName[kc]; !ok {
			kcToName[kc] = name
		}
	}
}

// NameToKC resolves a canonical KEY_* name (case-insensitive, KEY_ prefix
// optional) to its key code. Returns false if the name is unknown.
func NameToKC(name string) (KC, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "KEY_") {
		n = "KEY_" + n
	}
	kc, ok := nameToKC[n]
	return kc, ok
}

// KCToName returns the canonical name for kc, or "" if it isn't known.
func KCToName(kc KC) string {
	return kcToName[kc]
}

// charToKC is the unshifted printable-ASCII table: the key that, pressed
// alone, produces this character on a US QWERTY layout.
var charToKC = map[rune]KC{
	'1': 2, '2': 3, '3': 4, '4': 5, '5': 6, '6': 7, '7': 8, '8': 9, '9': 10, '0': 11,
	'-': 12, '=': 13,
	'q': 16, 'w': 17, 'e': 18, 'r': 19, 't': 20, 'y': 21, 'u': 22, 'i': 23, 'o': 24, 'p': 25,
	'[': 26, ']': 27,
	'a': 30, 's': 31, 'd': 32, 'f': 33, 'g': 34, 'h': 35, 'j': 36, 'k': 37, 'l': 38,
	';': 39, '\'': 40, '`': 41,
	'\\': 43,
	'z':  44, 'x': 45, 'c': 46, 'v': 47, 'b': 48, 'n': 49, 'm': 50,
	',': 51, '.': 52, '/': 53,
	' ': 57,
}

// shiftedChar is the shifted-character table: shifted_char -> base rune.
// Every entry needs Shift; ShiftedChar reports that as its needs-shift
// result.
var shiftedChar = map[rune]rune{
	'!': '1', '@': '2', '#': '3', '$': '4', '%': '5',
	'^': '6', '&': '7', '*': '8', '(': '9', ')': '0',
	'_': '-', '+': '=',
	'{': '[', '}': ']',
	':': ';', '"': '\'', '~': '`',
	'|': '\\',
	'<': ',', '>': '.', '?': '/',
}

// CharToKC resolves an unshifted printable ASCII character to the key that
// produces it. Returns false for characters requiring Shift or outside the
// fixed table (including all non-ASCII runes).
func CharToKC(ch rune) (KC, bool) {
	kc, ok := charToKC[ch]
	return kc, ok
}

// ShiftedChar resolves a shifted-character to (base key code, true, true) if
// ch requires Shift to type on a US QWERTY layout. The needs-shift result is
// always true on a hit; the last result reports whether ch was found.
func ShiftedChar(ch rune) (KC, bool, bool) {
	if ch >= 'A' && ch <= 'Z' {
		base, ok := charToKC[ch-'A'+'a']
		return base, true, ok
	}
	if base, ok := shiftedChar[ch]; ok {
		kc, ok2 := charToKC[base]
		return kc, true, ok2
	}
	return 0, false, false
}

// CharToKCMust is CharToKC for callers building static tables from
// characters known at compile time to be in the unshifted table; it panics
// otherwise.
func CharToKCMust(ch rune) KC {
	kc, ok := CharToKC(ch)
	if !ok {
		panic("keycode: no unshifted mapping for " + string(ch))
	}
	return kc
}

// ShiftedBaseRune returns the unshifted character that, with Shift held,
// produces ch (e.g. '!' -> '1', 'A' -> 'a'). Returns false if ch does not
// require Shift on a US QWERTY layout.
func ShiftedBaseRune(ch rune) (rune, bool) {
	if ch >= 'A' && ch <= 'Z' {
		return ch - 'A' + 'a', true
	}
	if base, ok := shiftedChar[ch]; ok {
		return base, true
	}
	return 0, false
}
