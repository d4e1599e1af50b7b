// Package synth implements the output synthesizer (C5, spec §4.5): the
// component that turns a compose.Value key event or a compiled OutputAction
// into writes on the virtual device, plus the external-helper path for
// Unicode characters the virtual device's direct key events can't produce.
package synth

import (
	"strings"

	"github.com/umlautd/umlautd/internal/compose"
	"github.com/umlautd/umlautd/internal/config"
	"github.com/umlautd/umlautd/internal/device"
	"github.com/umlautd/umlautd/internal/keycode"
	"github.com/umlautd/umlautd/internal/logging"
)

// virtualDevice is the subset of *device.Virtual the synthesizer needs;
// kept as an interface so tests can substitute a recording fake.
type virtualDevice interface {
	EmitKey(kc keycode.KC, value int32) error
	Sync() error
}

// typer is the external Unicode typing helper; see typer.go.
type typer interface {
	Available() bool
	Type(s string) error
}

// Synthesizer implements compose.Emitter against a real virtual device.
type Synthesizer struct {
	dev   virtualDevice
	typer typer
}

// New builds a Synthesizer writing to dev, using t for non-ASCII output.
func New(dev *device.Virtual, t typer) *Synthesizer {
	return &Synthesizer{dev: dev, typer: t}
}

var _ compose.Emitter = (*Synthesizer)(nil)

func (s *Synthesizer) emit(kc keycode.KC, value int32) {
	if err := s.dev.EmitKey(kc, value); err != nil {
		logging.Default().Warn("emit key failed", "kc", kc, "value", value, "error", err)
	}
	if err := s.dev.Sync(); err != nil {
		logging.Default().Warn("sync failed", "error", err)
	}
}

// EmitKey implements spec §4.5's emit_key: press each modifier, emit
// (kc, value), and on release, release the modifiers in the same order.
func (s *Synthesizer) EmitKey(kc keycode.KC, value compose.Value, modifiers ...keycode.KC) {
	if value == compose.Press {
		for _, m := range modifiers {
			s.emit(m, int32(compose.Press))
		}
	}
	s.emit(kc, int32(value))
	if value == compose.Release {
		for _, m := range modifiers {
			s.emit(m, int32(compose.Release))
		}
	}
}

// EmitString types s per spec §4.5's emit_string: ASCII characters in the
// char table go directly through emit_key (Shift added only when needed);
// non-ASCII characters go through the external typing helper if available,
// otherwise they're logged and skipped (SynthesisDegraded, spec §7).
func (s *Synthesizer) EmitString(str string) {
	for _, r := range str {
		if kc, ok := keycode.CharToKC(r); ok {
			s.emit(kc, int32(compose.Press))
			s.emit(kc, int32(compose.Release))
			continue
		}
		if base, needShift, ok := keycode.ShiftedChar(r); ok && needShift {
			s.EmitKey(base, compose.Press, keycode.KeyLeftShift)
			s.EmitKey(base, compose.Release, keycode.KeyLeftShift)
			continue
		}
		if s.typer != nil && s.typer.Available() {
			if err := s.typer.Type(string(r)); err != nil {
				logging.Default().Warn("typing helper failed", "char", string(r), "error", err)
			}
			continue
		}
		logging.Default().Warn("non-ASCII output skipped, no typing helper available", "char", string(r))
	}
}

// EmitAction implements spec §4.5's emit_action dispatch and shift
// propagation rule.
func (s *Synthesizer) EmitAction(action config.OutputAction, targetShifted bool) {
	switch a := action.(type) {
	case config.StringAction:
		text := a.Text
		if targetShifted {
			text = strings.ToUpper(text)
		}
		s.EmitString(text)

	case config.KeyComboAction:
		mods := a.Modifiers
		if targetShifted && !containsShift(mods) {
			mods = append(append([]keycode.KC{}, mods...), keycode.KeyLeftShift)
		}
		s.EmitKey(a.Key, compose.Press, mods...)
		s.EmitKey(a.Key, compose.Release, mods...)

	case config.SequenceAction:
		for i, sub := range a.Actions {
			shifted := false
			if i == 0 {
				shifted = targetShifted
			}
			s.EmitAction(sub, shifted)
		}
	}
}

func containsShift(mods []keycode.KC) bool {
	for _, m := range mods {
		if keycode.IsShift(m) {
			return true
		}
	}
	return false
}
