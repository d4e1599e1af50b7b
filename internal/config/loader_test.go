package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umlautd/umlautd/internal/config"
	"github.com/umlautd/umlautd/internal/keycode"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad_MinimalValidConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "settings.config.json", `{
		"version": 1,
		"trigger_key": "KEY_LEFTALT",
		"enabled_sequences": ["accents"],
		"settings": {"timeout_ms": 1500, "log_level": "DEBUG"}
	}`)
	writeFile(t, dir, "accents.config.json", `{
		"name": "accents",
		"sequences": {
			";": {"e": "é", "a": "à"}
		}
	}`)

	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 1500, cfg.TimeoutMS)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	require.Len(t, cfg.TriggerKeys, 1)
	assert.Equal(t, keycode.KeyLeftAlt, cfg.TriggerKeys[0])
	assert.Equal(t, 2, cfg.SequenceTable.Len())
}

func TestLoad_MissingSequenceFileWarnsAndContinues(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "settings.config.json", `{
		"trigger_key": "KEY_LEFTALT",
		"enabled_sequences": ["does-not-exist", "accents"]
	}`)
	writeFile(t, dir, "accents.config.json", `{
		"sequences": {";": {"e": "é"}}
	}`)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.SequenceTable.Len())
}

func TestLoad_EmptySequenceTableIsFatal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "settings.config.json", `{
		"trigger_key": "KEY_LEFTALT",
		"enabled_sequences": ["missing"]
	}`)

	_, err := config.Load(dir)
	assert.Error(t, err)
}

func TestLoad_TimeoutOutOfRangeFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "settings.config.json", `{
		"trigger_key": "KEY_LEFTALT",
		"enabled_sequences": ["accents"],
		"settings": {"timeout_ms": 50}
	}`)
	writeFile(t, dir, "accents.config.json", `{
		"sequences": {";": {"e": "é"}}
	}`)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultTimeoutMS, cfg.TimeoutMS)
}

func TestLoad_AliasResolvesToAnotherComposeEntry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "settings.config.json", `{
		"trigger_key": "KEY_LEFTALT",
		"enabled_sequences": ["accents"]
	}`)
	writeFile(t, dir, "accents.config.json", `{
		"sequences": {
			";": {"e": "é"},
			"SHIFT+;": ";"
		}
	}`)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.SequenceTable.Len())

	_, shifted, err := config.ParseComposeName("SHIFT+;")
	require.NoError(t, err)
	assert.True(t, shifted)
}

func TestLoad_BrokenAliasIsDropped(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "settings.config.json", `{
		"trigger_key": "KEY_LEFTALT",
		"enabled_sequences": ["accents"]
	}`)
	writeFile(t, dir, "accents.config.json", `{
		"sequences": {
			";": {"e": "é"},
			"SHIFT+;": "does-not-exist"
		}
	}`)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.SequenceTable.Len())
}

func TestLoad_KeyComboOutputWithModifiers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "settings.config.json", `{
		"trigger_key": "KEY_LEFTALT",
		"enabled_sequences": ["combo"]
	}`)
	writeFile(t, dir, "combo.config.json", `{
		"sequences": {
			";": {"t": {"key": "KEY_TAB", "modifiers": ["KEY_LEFTCTRL"]}}
		}
	}`)

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.SequenceTable.Len())

	action, ok := cfg.SequenceTable.Lookup(config.LookupKey{
		Trigger: keycode.KeyLeftAlt,
		Compose: keycode.KC(39),
		Targets: []keycode.KC{keycode.KC(20)}, // KEY_T
	})
	require.True(t, ok)
	combo, ok := action.(config.KeyComboAction)
	require.True(t, ok)
	assert.Equal(t, keycode.KC(15), combo.Key) // KEY_TAB
	assert.Contains(t, combo.Modifiers, keycode.KeyLeftCtrl)
}

func TestLoad_SerializeIsDeterministicAcrossReload(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "settings.config.json", `{
		"trigger_key": "KEY_LEFTALT",
		"enabled_sequences": ["accents"]
	}`)
	writeFile(t, dir, "accents.config.json", `{
		"sequences": {";": {"e": "é", "a": "à"}}
	}`)

	first, err := config.Load(dir)
	require.NoError(t, err)
	second, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, first.SequenceTable.Serialize(), second.SequenceTable.Serialize())
}
