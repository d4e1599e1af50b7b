package compose_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umlautd/umlautd/internal/compose"
	"github.com/umlautd/umlautd/internal/config"
	"github.com/umlautd/umlautd/internal/keycode"
)

// recordingEmitter captures every EmitKey/EmitAction call so tests can
// assert on the exact output sequence, the same role a fake transport plays
// in place of a real device in this kind of test.
type recordingEmitter struct {
	keys    []keyCall
	actions []actionCall
}

type keyCall struct {
	kc    keycode.KC
	value compose.Value
	mods  []keycode.KC
}

type actionCall struct {
	action  config.OutputAction
	shifted bool
}

func (r *recordingEmitter) EmitKey(kc keycode.KC, value compose.Value, modifiers ...keycode.KC) {
	r.keys = append(r.keys, keyCall{kc: kc, value: value, mods: modifiers})
}

func (r *recordingEmitter) EmitAction(action config.OutputAction, targetShifted bool) {
	r.actions = append(r.actions, actionCall{action: action, shifted: targetShifted})
}

func semicolonConfig(t *testing.T) *config.Config {
	t.Helper()
	table := config.NewSequenceTable()
	table.Insert(config.LookupKey{
		Trigger: keycode.KeyLeftAlt,
		Compose: keycode.KC(39), // KEY_SEMICOLON
		Targets: []keycode.KC{keycode.KC(18)}, // KEY_E
	}, config.StringAction{Text: "é"}) // é

	return &config.Config{
		TriggerKeys:      []keycode.KC{keycode.KeyLeftAlt},
		PassthroughKeys:  map[keycode.KC]struct{}{},
		TimeoutMS:        1000,
		SequenceTable:    table,
		ValidComposeKeys: table.ValidComposeKeys(),
	}
}

func TestHandleEvent_PlainKeyPassesThroughInIdle(t *testing.T) {
	emitter := &recordingEmitter{}
	m := compose.New(semicolonConfig(t), emitter)

	m.HandleEvent(keycode.KC(30), compose.Press) // KEY_A
	m.HandleEvent(keycode.KC(30), compose.Release)

	require.Len(t, emitter.keys, 2)
	assert.Equal(t, keycode.KC(30), emitter.keys[0].kc)
	assert.Equal(t, compose.Press, emitter.keys[0].value)
	assert.Equal(t, compose.Idle, m.State())
}

func TestHandleEvent_CompleteSequenceEmitsAction(t *testing.T) {
	emitter := &recordingEmitter{}
	m := compose.New(semicolonConfig(t), emitter)

	m.HandleEvent(keycode.KeyLeftAlt, compose.Press)
	assert.Equal(t, compose.TriggerPressed, m.State())

	m.HandleEvent(keycode.KC(39), compose.Press) // ;
	assert.Equal(t, compose.ComposePressed, m.State())

	m.HandleEvent(keycode.KeyLeftAlt, compose.Release)
	m.HandleEvent(keycode.KC(39), compose.Release)
	assert.Equal(t, compose.WaitingTarget, m.State())

	m.HandleEvent(keycode.KC(18), compose.Press) // e

	require.Len(t, emitter.actions, 1)
	assert.False(t, emitter.actions[0].shifted)
	assert.Equal(t, compose.Idle, m.State())
}

func TestHandleEvent_NoMatchReplaysTriggerAndCompose(t *testing.T) {
	emitter := &recordingEmitter{}
	m := compose.New(semicolonConfig(t), emitter)

	m.HandleEvent(keycode.KeyLeftAlt, compose.Press)
	m.HandleEvent(keycode.KC(39), compose.Press)
	m.HandleEvent(keycode.KeyLeftAlt, compose.Release)
	m.HandleEvent(keycode.KC(39), compose.Release)

	m.HandleEvent(keycode.KC(31), compose.Press) // KEY_S, not a configured target

	assert.Empty(t, emitter.actions)
	// Replay: trigger tap, compose tap, then the target forwarded.
	require.Len(t, emitter.keys, 5)
	assert.Equal(t, keycode.KeyLeftAlt, emitter.keys[0].kc)
	assert.Equal(t, compose.Press, emitter.keys[0].value)
	assert.Equal(t, keycode.KeyLeftAlt, emitter.keys[1].kc)
	assert.Equal(t, compose.Release, emitter.keys[1].value)
	assert.Equal(t, keycode.KC(39), emitter.keys[2].kc)
	assert.Equal(t, keycode.KC(39), emitter.keys[3].kc)
	assert.Equal(t, keycode.KC(31), emitter.keys[4].kc)
	assert.Equal(t, compose.Idle, m.State())
}

func TestHandleEvent_EscForceReleasesFromComposePressed(t *testing.T) {
	emitter := &recordingEmitter{}
	m := compose.New(semicolonConfig(t), emitter)

	m.HandleEvent(keycode.KeyLeftAlt, compose.Press)
	m.HandleEvent(keycode.KC(39), compose.Press)

	m.HandleEvent(keycode.KeyEsc, compose.Press)

	assert.Equal(t, compose.Idle, m.State())
	// ESC itself is never forwarded.
	for _, k := range emitter.keys {
		assert.NotEqual(t, keycode.KeyEsc, k.kc)
	}
}

func TestHandleEvent_TriggerWithCtrlHeldPassesThrough(t *testing.T) {
	emitter := &recordingEmitter{}
	m := compose.New(semicolonConfig(t), emitter)

	m.HandleEvent(keycode.KeyLeftCtrl, compose.Press)
	m.HandleEvent(keycode.KeyLeftAlt, compose.Press)

	assert.Equal(t, compose.Idle, m.State())
	require.Len(t, emitter.keys, 2)
	assert.Equal(t, keycode.KeyLeftAlt, emitter.keys[1].kc)
}

func TestCheckTimeout_TriggerPressedNoOpBeforeDeadline(t *testing.T) {
	emitter := &recordingEmitter{}
	m := compose.New(semicolonConfig(t), emitter)

	m.HandleEvent(keycode.KeyLeftAlt, compose.Press)
	require.Equal(t, compose.TriggerPressed, m.State())

	deadline := m.TriggerDeadline()
	assert.True(t, deadline.After(time.Now()))

	// CheckTimeout before the deadline is a no-op.
	m.CheckTimeout()
	assert.Equal(t, compose.TriggerPressed, m.State())
}

func TestHandleEvent_TestModeBypassesStateMachine(t *testing.T) {
	emitter := &recordingEmitter{}
	m := compose.New(semicolonConfig(t), emitter)
	m.TestModeActive = func() bool { return true }

	m.HandleEvent(keycode.KeyLeftAlt, compose.Press)
	m.HandleEvent(keycode.KC(39), compose.Press)

	assert.Equal(t, compose.Idle, m.State())
	require.Len(t, emitter.keys, 2)
}
