package config

import (
	"fmt"
	"strings"

	"github.com/umlautd/umlautd/internal/keycode"
)

// modifierWord maps the notation words recognized inside a "+"-joined key
// combo (spec §4.3) to the key code they stand for. ALTGR maps to the right
// Alt key; SUPER is treated as a synonym for the (left) Meta key.
var modifierWord = map[string]keycode.KC{
	"CTRL":  keycode.KeyLeftCtrl,
	"ALT":   keycode.KeyLeftAlt,
	"SHIFT": keycode.KeyLeftShift,
	"META":  keycode.KeyLeftMeta,
	"ALTGR": keycode.KeyRightAlt,
	"SUPER": keycode.KeyLeftMeta,
}

// parseSingleToken resolves one "+"-split piece of a target notation: a
// single printable ASCII character (possibly expanding to [Shift, base] if
// it requires Shift) or a multi-character KEY_* name.
func parseSingleToken(tok string) ([]keycode.KC, error) {
	if kc, ok := modifierWord[strings.ToUpper(tok)]; ok {
		return []keycode.KC{kc}, nil
	}

	runes := []rune(tok)
	if len(runes) == 1 && runes[0] < 128 {
		if base, needShift, ok := keycode.ShiftedChar(runes[0]); ok && needShift {
			return []keycode.KC{keycode.KeyLeftShift, base}, nil
		}
		if kc, ok := keycode.CharToKC(runes[0]); ok {
			return []keycode.KC{kc}, nil
		}
		return nil, fmt.Errorf("unknown character %q", tok)
	}

	if kc, ok := keycode.NameToKC(tok); ok {
		return []keycode.KC{kc}, nil
	}
	return nil, fmt.Errorf("unknown key name %q", tok)
}

// ParseTargetNotation implements spec §4.3's "Target key notation parsing".
// It returns the raw, as-written key code sequence; callers that need the
// canonical (Shift, Ctrl, Alt, key) tuple ordering from §3 should pass the
// result through CanonicalizeTargets.
func ParseTargetNotation(raw string) ([]keycode.KC, error) {
	if strings.Contains(raw, "+") {
		parts := strings.Split(raw, "+")
		hasModifierWord := false
		for _, p := range parts {
			if _, ok := modifierWord[strings.ToUpper(p)]; ok {
				hasModifierWord = true
				break
			}
		}
		if hasModifierWord {
			var out []keycode.KC
			for _, p := range parts {
				ks, err := parseSingleToken(p)
				if err != nil {
					return nil, err
				}
				out = append(out, ks...)
			}
			return out, nil
		}
	}
	return parseSingleToken(raw)
}

// CanonicalizeTargets reorders raw so any Shift/Ctrl/Alt codes come first in
// the fixed order (Shift, Ctrl, Alt) and everything else follows in its
// original relative order, matching the tuple shape spec §3 mandates and
// the one the compose state machine builds at runtime in WAITING_TARGET.
func CanonicalizeTargets(raw []keycode.KC) []keycode.KC {
	var shift, ctrl, alt []keycode.KC
	var rest []keycode.KC
	for _, kc := range raw {
		switch {
		case keycode.IsShift(kc):
			shift = append(shift, kc)
		case keycode.IsCtrl(kc):
			ctrl = append(ctrl, kc)
		case keycode.IsAlt(kc):
			alt = append(alt, kc)
		default:
			rest = append(rest, kc)
		}
	}
	out := make([]keycode.KC, 0, len(raw))
	out = append(out, shift...)
	out = append(out, ctrl...)
	out = append(out, alt...)
	out = append(out, rest...)
	return out
}

// ParseComposeName resolves a sequences-map key (e.g. ";" or "SHIFT+;") into
// its compose key code and whether Shift must be held with it, per spec §3
// ("The optional prefix SHIFT+ on a compose-key name").
func ParseComposeName(name string) (kc keycode.KC, shifted bool, err error) {
	rest := name
	upper := strings.ToUpper(name)
	if strings.HasPrefix(upper, "SHIFT+") {
		shifted = true
		rest = name[len("SHIFT+"):]
	}

	runes := []rune(rest)
	if len(runes) == 1 && runes[0] < 128 {
		r := runes[0]
		if base, ok := keycode.ShiftedBaseRune(r); ok {
			r = base
		}
		if base, ok := keycode.CharToKC(r); ok {
			return base, shifted, nil
		}
		return 0, false, fmt.Errorf("unknown compose character %q", rest)
	}

	if base, ok := keycode.NameToKC(rest); ok {
		return base, shifted, nil
	}
	return 0, false, fmt.Errorf("unknown compose key name %q", rest)
}
