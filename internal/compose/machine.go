// Package compose implements the compose key state machine (spec §4.6):
// the component that decides, for every raw key event, whether to forward
// it unchanged, swallow it as part of a compose sequence, or synthesize an
// output action. It owns no file descriptors and performs no I/O itself;
// it calls the Emitter it's given and leaves device and timing concerns to
// the caller (internal/loop).
package compose

import (
	"time"

	"github.com/umlautd/umlautd/internal/config"
	"github.com/umlautd/umlautd/internal/keycode"
)

// Value mirrors the evdev key event value field: 0 release, 1 press,
// 2 autorepeat.
type Value int32

const (
	Release Value = 0
	Press   Value = 1
	Repeat  Value = 2
)

// State is one of the four states in spec §4.6.
type State int

const (
	Idle State = iota
	TriggerPressed
	ComposePressed
	WaitingTarget
)

// Emitter is everything the state machine needs from the output
// synthesizer (C5) and the virtual device, kept as an interface so tests
// can substitute a recording fake instead of a real uinput device.
type Emitter interface {
	// EmitKey presses/releases kc (value Press or Release), wrapping it
	// with the given modifiers held down for the duration (spec §4.5
	// emit_key).
	EmitKey(kc keycode.KC, value Value, modifiers ...keycode.KC)
	// EmitAction dispatches action, applying shift-propagation per
	// targetShifted (spec §4.5 emit_action).
	EmitAction(action config.OutputAction, targetShifted bool)
}

// Machine is the transient per-sequence state from spec §4.6. A Machine is
// not safe for concurrent use; the event loop (C7) is its only caller and
// drives it from a single goroutine.
type Machine struct {
	cfg *config.Config
	out Emitter
	now func() time.Time

	// TestModeActive, when set, makes every event pass through unchanged
	// regardless of state (spec §4.6 "Test-mode bypass").
	TestModeActive func() bool

	state State

	currentTrigger keycode.KC
	hasTrigger     bool
	currentCompose keycode.KC
	hasCompose     bool
	composeShifted bool

	triggerStart time.Time
	composeStart time.Time

	pressed            map[keycode.KC]struct{}
	suppressEscRelease bool
}

// New builds a Machine in the Idle state for cfg, emitting through out.
func New(cfg *config.Config, out Emitter) *Machine {
	return &Machine{
		cfg:     cfg,
		out:     out,
		now:     time.Now,
		pressed: make(map[keycode.KC]struct{}),
	}
}

// SetConfig atomically swaps the compiled configuration in use, as spec
// §4.7's reload path requires. It does not reset transient state; the
// caller is expected to call ForceRelease first.
func (m *Machine) SetConfig(cfg *config.Config) {
	m.cfg = cfg
}

// State returns the machine's current state, chiefly for the event loop's
// deadline computation (spec §4.7 step 2).
func (m *Machine) State() State {
	return m.state
}

// TriggerDeadline returns the time at which the active TriggerPressed
// timeout fires. Only meaningful when State() == TriggerPressed.
func (m *Machine) TriggerDeadline() time.Time {
	return m.triggerStart.Add(m.timeout())
}

// ComposeDeadline returns the time at which the active WaitingTarget
// timeout fires. Only meaningful when State() == WaitingTarget.
func (m *Machine) ComposeDeadline() time.Time {
	return m.composeStart.Add(m.timeout())
}

func (m *Machine) timeout() time.Duration {
	return time.Duration(m.cfg.TimeoutMS) * time.Millisecond
}

// HandleEvent processes one (kc, value) physical key event. This is the
// single entry point the event loop calls for every event it reads.
func (m *Machine) HandleEvent(kc keycode.KC, value Value) {
	if value == Press {
		m.pressed[kc] = struct{}{}
	} else if value == Release {
		delete(m.pressed, kc)
	}

	if m.TestModeActive != nil && m.TestModeActive() {
		m.out.EmitKey(kc, value)
		return
	}

	if value == Repeat && m.state != Idle {
		return
	}

	if value == Press && kc == keycode.KeyEsc && m.state != Idle {
		m.forceReleaseLocked()
		m.suppressEscRelease = true
		return
	}

	// The matching release of an ESC that just triggered a force release
	// arrives after state has already reset to Idle; it must still never
	// reach the virtual device (spec §4.6 "ESC is not forwarded").
	if value == Release && kc == keycode.KeyEsc && m.suppressEscRelease {
		m.suppressEscRelease = false
		return
	}

	switch m.state {
	case Idle:
		m.handleIdle(kc, value)
	case TriggerPressed:
		m.handleTriggerPressed(kc, value)
	case ComposePressed:
		m.handleComposePressed(kc, value)
	case WaitingTarget:
		m.handleWaitingTarget(kc, value)
	}
}

// CheckTimeout is called by the event loop on every iteration (spec §4.7
// step 1). It fires the TriggerPressed / WaitingTarget timeout replay when
// the deadline has passed.
func (m *Machine) CheckTimeout() {
	now := m.now()
	switch m.state {
	case TriggerPressed:
		if !now.Before(m.TriggerDeadline()) {
			m.out.EmitKey(m.currentTrigger, Press)
			m.out.EmitKey(m.currentTrigger, Release)
			m.reset()
		}
	case WaitingTarget:
		if !now.Before(m.ComposeDeadline()) {
			m.replayTriggerAndCompose()
			m.reset()
		}
	}
}

func (m *Machine) hasModifierHeld(kcs ...keycode.KC) bool {
	for _, kc := range kcs {
		if _, ok := m.pressed[kc]; ok {
			return true
		}
	}
	return false
}

func (m *Machine) handleIdle(kc keycode.KC, value Value) {
	if value == Press && m.cfg.IsTrigger(kc) {
		if m.hasModifierHeld(keycode.KeyLeftCtrl, keycode.KeyRightCtrl, keycode.KeyLeftMeta, keycode.KeyRightMeta) {
			m.out.EmitKey(kc, value)
			return
		}
		m.currentTrigger = kc
		m.hasTrigger = true
		m.triggerStart = m.now()
		m.state = TriggerPressed
		return
	}
	m.out.EmitKey(kc, value)
}

func (m *Machine) handleTriggerPressed(kc keycode.KC, value Value) {
	if value == Release && kc == m.currentTrigger {
		m.out.EmitKey(kc, Press)
		m.out.EmitKey(kc, Release)
		m.reset()
		return
	}

	if value != Press {
		return
	}

	if keycode.IsShift(kc) {
		return
	}

	if keycode.IsCtrl(kc) || keycode.IsMeta(kc) {
		m.out.EmitKey(m.currentTrigger, Press)
		m.out.EmitKey(kc, Press)
		m.reset()
		return
	}

	if m.cfg.IsPassthrough(kc) {
		m.out.EmitKey(m.currentTrigger, Press)
		m.out.EmitKey(kc, Press)
		m.reset()
		return
	}

	if !m.cfg.IsValidCompose(kc) {
		m.out.EmitKey(m.currentTrigger, Press)
		m.out.EmitKey(kc, Press)
		m.reset()
		return
	}

	m.currentCompose = kc
	m.hasCompose = true
	m.composeShifted = m.hasModifierHeld(keycode.KeyLeftShift, keycode.KeyRightShift)
	m.state = ComposePressed
}

func (m *Machine) handleComposePressed(kc keycode.KC, value Value) {
	// The trigger/compose release check must run before the generic modifier
	// branch below: the trigger key is very often itself a modifier (Alt),
	// and that branch would otherwise swallow its release before the
	// ComposePressed -> WaitingTarget transition ever sees it.
	if value == Release && (kc == m.currentTrigger || kc == m.currentCompose) {
		if !m.hasModifierHeld(m.currentTrigger) && !m.hasModifierHeld(m.currentCompose) {
			m.state = WaitingTarget
			m.composeStart = m.now()
		}
		return
	}

	if keycode.IsModifier(kc) {
		if keycode.IsShift(kc) && value == Release {
			m.out.EmitKey(kc, Release)
		}
		return
	}

	// A key that's neither the trigger, the compose key, nor a modifier is
	// unrelated to the sequence in progress; the Python daemon's handler
	// falls through to an unconditional forward in this case rather than
	// dropping it, and we keep staying in ComposePressed.
	m.out.EmitKey(kc, value)
}

func (m *Machine) handleWaitingTarget(kc keycode.KC, value Value) {
	if keycode.IsModifier(kc) {
		if keycode.IsShift(kc) && value == Release {
			m.out.EmitKey(kc, Release)
		}
		return
	}

	if value != Press {
		// Release of some unrelated key held since before the sequence
		// began; forward it rather than drop it (same fall-through rule as
		// handleComposePressed above).
		m.out.EmitKey(kc, value)
		return
	}

	// Canonical order: Shift, Ctrl, Alt, then kc (same as CanonicalizeTargets).
	var targetKCs []keycode.KC
	targetWasShifted := false
	if m.hasModifierHeld(keycode.KeyLeftShift, keycode.KeyRightShift) {
		targetKCs = append(targetKCs, keycode.KeyLeftShift)
		targetWasShifted = true
	}
	if m.hasModifierHeld(keycode.KeyLeftCtrl, keycode.KeyRightCtrl) {
		targetKCs = append(targetKCs, keycode.KeyLeftCtrl)
	}
	if m.hasModifierHeld(keycode.KeyLeftAlt, keycode.KeyRightAlt) && !m.cfg.IsTrigger(kc) {
		targetKCs = append(targetKCs, keycode.KeyLeftAlt)
	}
	targetKCs = append(targetKCs, kc)

	lookup := config.LookupKey{
		Trigger:        m.currentTrigger,
		ComposeShifted: m.composeShifted,
		Compose:        m.currentCompose,
		Targets:        targetKCs,
	}

	if action, ok := m.cfg.SequenceTable.Lookup(lookup); ok {
		m.out.EmitAction(action, targetWasShifted)
		m.reset()
		return
	}

	if targetWasShifted {
		unshifted := targetKCs[1:]
		lookup.Targets = unshifted
		if action, ok := m.cfg.SequenceTable.Lookup(lookup); ok {
			m.out.EmitAction(action, targetWasShifted)
			m.reset()
			return
		}
	}

	m.replayTriggerAndCompose()
	m.out.EmitKey(kc, Press)
	m.reset()
}

// replayTriggerAndCompose emits the trigger tap, then the compose tap
// (Shift-wrapped if the compose required it), matching spec §4.6's replay
// sequence shared by the no-match and timeout paths.
func (m *Machine) replayTriggerAndCompose() {
	m.out.EmitKey(m.currentTrigger, Press)
	m.out.EmitKey(m.currentTrigger, Release)
	if m.composeShifted {
		m.out.EmitKey(keycode.KeyLeftShift, Press)
	}
	m.out.EmitKey(m.currentCompose, Press)
	m.out.EmitKey(m.currentCompose, Release)
	if m.composeShifted {
		m.out.EmitKey(keycode.KeyLeftShift, Release)
	}
}

// forceReleaseLocked implements spec §4.6's ESC "force release": release
// the trigger, compose, and both Shift keys, then reset to Idle. ESC itself
// is never forwarded.
func (m *Machine) forceReleaseLocked() {
	if m.hasTrigger {
		m.out.EmitKey(m.currentTrigger, Release)
	}
	if m.hasCompose {
		m.out.EmitKey(m.currentCompose, Release)
	}
	m.out.EmitKey(keycode.KeyLeftShift, Release)
	m.out.EmitKey(keycode.KeyRightShift, Release)
	m.reset()
}

// ForceRelease is the external entry point for signal handlers and reload
// (spec §4.7 cancellation/reload): release anything the machine might be
// concealing and return to Idle.
func (m *Machine) ForceRelease() {
	m.forceReleaseLocked()
}

func (m *Machine) reset() {
	m.state = Idle
	m.hasTrigger = false
	m.hasCompose = false
	m.composeShifted = false
}
