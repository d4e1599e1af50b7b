// Package config holds the in-memory configuration model (trigger keys,
// passthrough keys, timeout, compiled sequence table) and the loader that
// builds it from the on-disk settings and sequence files. The model is
// read-only to every consumer but the loader: Config is rebuilt wholesale on
// reload and swapped in atomically by the caller, never mutated in place.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/umlautd/umlautd/internal/keycode"
)

// DefaultTimeoutMS is used when settings.timeout_ms is absent or invalid.
const DefaultTimeoutMS = 1000

// MinTimeoutMS and MaxTimeoutMS bound settings.timeout_ms (spec §4.2).
const (
	MinTimeoutMS = 100
	MaxTimeoutMS = 10000
)

// MaxOutputStringLen (in runes, not bytes) and MaxSequenceElements are the
// per-entry validation limits from spec §4.3.
const (
	MaxOutputStringLen  = 10000
	MaxSequenceElements = 10
)

// OutputAction is the tagged variant emitted when a sequence completes. The
// three concrete types below are the only implementations; Go has no sealed
// interfaces, so the marker method keeps outside packages honest rather than
// enforcing it structurally.
type OutputAction interface {
	isOutputAction()
}

// StringAction types a literal string, upper-cased before emission if the
// target key was shifted.
type StringAction struct {
	Text string
}

func (StringAction) isOutputAction() {}

// KeyComboAction presses Modifiers then Key, in that order, and on the way
// back down releases Key first and then Modifiers in the order they were
// pressed.
type KeyComboAction struct {
	Key       keycode.KC
	Modifiers []keycode.KC
}

func (KeyComboAction) isOutputAction() {}

// SequenceAction runs each action in order. Shift-propagation (spec §4.5)
// applies only to the first element.
type SequenceAction struct {
	Actions []OutputAction
}

func (SequenceAction) isOutputAction() {}

// LookupKey is the compiled sequence table key: spec §3's
// (trigger_kc, compose_shifted, compose_kc, target_kc1, target_kc2, …).
type LookupKey struct {
	Trigger       keycode.KC
	ComposeShifted bool
	Compose       keycode.KC
	Targets       []keycode.KC
}

// Encode produces a deterministic, comparable string for use as a Go map
// key (slices can't be map keys directly) and for the reload-invariance
// serialization test in spec §8.
func (k LookupKey) Encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%v|%d", k.Trigger, k.ComposeShifted, k.Compose)
	for _, t := range k.Targets {
		fmt.Fprintf(&b, "|%d", t)
	}
	return b.String()
}

// SequenceTable maps a compiled lookup tuple to the action it produces.
type SequenceTable struct {
	entries map[string]tableEntry
}

type tableEntry struct {
	key    LookupKey
	action OutputAction
}

// NewSequenceTable returns an empty table ready for Insert.
func NewSequenceTable() *SequenceTable {
	return &SequenceTable{entries: make(map[string]tableEntry)}
}

// Insert adds or overwrites the entry for key. Later entries win, matching
// "last sequence file loaded wins" semantics used by the rest of the loader.
func (t *SequenceTable) Insert(key LookupKey, action OutputAction) {
	t.entries[key.Encode()] = tableEntry{key: key, action: action}
}

// Lookup returns the action for key, if any.
func (t *SequenceTable) Lookup(key LookupKey) (OutputAction, bool) {
	e, ok := t.entries[key.Encode()]
	return e.action, ok
}

// Len reports the number of compiled entries.
func (t *SequenceTable) Len() int {
	return len(t.entries)
}

// ValidComposeKeys returns the set of compose key codes that appear in at
// least one compiled entry (spec §3 "Valid compose key set").
func (t *SequenceTable) ValidComposeKeys() map[keycode.KC]struct{} {
	set := make(map[keycode.KC]struct{})
	for _, e := range t.entries {
		set[e.key.Compose] = struct{}{}
	}
	return set
}

// Serialize produces a deterministic byte representation of every compiled
// entry, sorted by encoded key, for the reload-invariance property in
// spec §8 ("The compiled sequence table is invariant under reloading the
// same input: byte-identical serialization of the table entries").
func (t *SequenceTable) Serialize() []byte {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		e := t.entries[k]
		b.WriteString(k)
		b.WriteString("=>")
		b.WriteString(serializeAction(e.action))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func serializeAction(a OutputAction) string {
	switch v := a.(type) {
	case StringAction:
		return "S:" + v.Text
	case KeyComboAction:
		var b strings.Builder
		b.WriteString("K:")
		fmt.Fprintf(&b, "%d", v.Key)
		for _, m := range v.Modifiers {
			fmt.Fprintf(&b, ",%d", m)
		}
		return b.String()
	case SequenceAction:
		var b strings.Builder
		b.WriteString("Q:")
		for i, sub := range v.Actions {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(serializeAction(sub))
		}
		return b.String()
	default:
		return "?"
	}
}

// Config is the fully compiled, read-only configuration the rest of the
// daemon consumes. It is built once at startup and rebuilt atomically on
// reload; nothing outside the loader mutates it.
type Config struct {
	TriggerKeys      []keycode.KC
	PassthroughKeys  map[keycode.KC]struct{}
	TimeoutMS        int
	SequenceTable    *SequenceTable
	ValidComposeKeys map[keycode.KC]struct{}
	LogLevel         string
}

// IsTrigger reports whether kc is one of the configured trigger keys.
func (c *Config) IsTrigger(kc keycode.KC) bool {
	for _, t := range c.TriggerKeys {
		if t == kc {
			return true
		}
	}
	return false
}

// IsPassthrough reports whether kc is a configured passthrough key.
func (c *Config) IsPassthrough(kc keycode.KC) bool {
	_, ok := c.PassthroughKeys[kc]
	return ok
}

// IsValidCompose reports whether kc appears as a compose key in at least
// one compiled sequence.
func (c *Config) IsValidCompose(kc keycode.KC) bool {
	_, ok := c.ValidComposeKeys[kc]
	return ok
}
