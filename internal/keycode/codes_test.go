package keycode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/umlautd/umlautd/internal/keycode"
)

func TestNameToKC(t *testing.T) {
	for name, want := range map[string]keycode.KC{
		"KEY_A":         30,
		"key_a":         30,
		"A":             30,
		"KEY_LEFTSHIFT": keycode.KeyLeftShift,
		"KEY_SEMICOLON": 39,
	} {
		t.Run(name, func(t *testing.T) {
			got, ok := keycode.NameToKC(name)
			assert.True(t, ok)
			assert.Equal(t, want, got)
		})
	}

	_, ok := keycode.NameToKC("KEY_NOT_A_REAL_KEY")
	assert.False(t, ok)
}

func TestCharToKC(t *testing.T) {
	kc, ok := keycode.CharToKC('a')
	assert.True(t, ok)
	assert.Equal(t, keycode.KC(30), kc)

	_, ok = keycode.CharToKC('A')
	assert.False(t, ok, "uppercase is a shifted char, not a direct char mapping")
}

func TestShiftedChar(t *testing.T) {
	base, needsShift, ok := keycode.ShiftedChar('A')
	assert.True(t, ok)
	assert.True(t, needsShift)
	assert.Equal(t, keycode.KC(30), base) // KEY_A

	base, needsShift, ok = keycode.ShiftedChar('!')
	assert.True(t, ok)
	assert.True(t, needsShift)
	assert.Equal(t, keycode.KC(2), base) // KEY_1

	_, _, ok = keycode.ShiftedChar('a')
	assert.False(t, ok)
}

func TestIsModifier(t *testing.T) {
	for _, kc := range []keycode.KC{
		keycode.KeyLeftShift, keycode.KeyRightShift,
		keycode.KeyLeftCtrl, keycode.KeyRightCtrl,
		keycode.KeyLeftAlt, keycode.KeyRightAlt,
		keycode.KeyLeftMeta, keycode.KeyRightMeta,
	} {
		assert.True(t, keycode.IsModifier(kc))
	}
	assert.False(t, keycode.IsModifier(keycode.KC(30))) // KEY_A
}
