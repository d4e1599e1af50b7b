package device

import (
	"strings"

	"github.com/holoplot/go-evdev"
	"github.com/umlautd/umlautd/internal/keycode"
)

// VirtualDeviceName is the daemon's own output device name (spec §6): the
// discovery filter must recognize and skip it to avoid grabbing its own
// synthesized events.
const VirtualDeviceName = "umlaut-virtual-keyboard"

// referenceKeys is the fixed probe set from spec §4.4: a qualifying
// keyboard must expose at least 8 of these 10 codes. It filters out media
// remotes and BT headsets that expose a token EV_KEY capability but aren't
// keyboards.
var referenceKeys = []evdev.EvCode{
	evdev.EvCode(keycode.CharToKCMust('a')),
	evdev.EvCode(keycode.CharToKCMust('b')),
	evdev.EvCode(keycode.CharToKCMust('c')),
	evdev.EvCode(keycode.CharToKCMust('d')),
	evdev.EvCode(keycode.CharToKCMust('e')),
	evdev.EvCode(keycode.CharToKCMust(' ')),
	evdev.EvCode(28), // KEY_ENTER
	evdev.EvCode(14), // KEY_BACKSPACE
	evdev.EvCode(keycode.KeyLeftShift),
	evdev.EvCode(keycode.KeyLeftCtrl),
}

const minReferenceKeyMatches = 8

// Abs axis codes that mark a device as a touchscreen, tablet, or similar
// pointing surface rather than a keyboard.
const (
	absX      evdev.EvCode = 0x00
	absY      evdev.EvCode = 0x01
	absMTSlot evdev.EvCode = 0x2f
)

// btnMiscMin/Max bracket BTN_MISC..BTN_TASK (0x100..0x117), which covers the
// numbered buttons and the mouse-button range BTN_LEFT..BTN_TASK;
// btnGamepadMin/Max bracket the gamepad-button range (BTN_GAMEPAD..BTN_THUMBR).
const (
	btnMiscMin    evdev.EvCode = 0x100
	btnMiscMax    evdev.EvCode = 0x117
	btnGamepadMin evdev.EvCode = 0x130
	btnGamepadMax evdev.EvCode = 0x13e
)

// capabilities is the subset of a device's advertised event capabilities
// the discovery filter (spec §4.4) cares about.
type capabilities struct {
	name     string
	hasKey   bool
	hasRel   bool
	hasAbs   bool
	absCodes map[evdev.EvCode]struct{}
	keyCodes map[evdev.EvCode]struct{}
}

// qualifiesAsKeyboard implements spec §4.4's discovery predicate: include a
// device only if every one of the seven conditions holds.
func qualifiesAsKeyboard(c capabilities) bool {
	if c.name == VirtualDeviceName {
		return false
	}
	if !c.hasKey {
		return false
	}
	if c.hasRel {
		return false
	}
	if c.hasAbs && hasAny(c.absCodes, absX, absY, absMTSlot) {
		return false
	}
	if hasRange(c.keyCodes, btnGamepadMin, btnGamepadMax) {
		return false
	}
	if hasRange(c.keyCodes, btnMiscMin, btnMiscMax) {
		return false
	}
	return countReferenceMatches(c.keyCodes) >= minReferenceKeyMatches
}

func countReferenceMatches(keyCodes map[evdev.EvCode]struct{}) int {
	n := 0
	for _, ref := range referenceKeys {
		if _, ok := keyCodes[ref]; ok {
			n++
		}
	}
	return n
}

func hasAny(set map[evdev.EvCode]struct{}, codes ...evdev.EvCode) bool {
	for _, c := range codes {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

func hasRange(set map[evdev.EvCode]struct{}, lo, hi evdev.EvCode) bool {
	for c := range set {
		if c >= lo && c <= hi {
			return true
		}
	}
	return false
}

func capabilitiesOf(dev *evdev.InputDevice) (capabilities, error) {
	name, err := dev.Name()
	if err != nil {
		return capabilities{}, err
	}
	c := capabilities{
		name:     strings.TrimSpace(name),
		keyCodes: make(map[evdev.EvCode]struct{}),
		absCodes: make(map[evdev.EvCode]struct{}),
	}
	for _, t := range dev.CapableTypes() {
		switch t {
		case evdev.EV_KEY:
			c.hasKey = true
			for _, code := range dev.CapableEvents(t) {
				c.keyCodes[code] = struct{}{}
			}
		case evdev.EV_REL:
			c.hasRel = true
		case evdev.EV_ABS:
			c.hasAbs = true
			for _, code := range dev.CapableEvents(t) {
				c.absCodes[code] = struct{}{}
			}
		}
	}
	return c, nil
}
