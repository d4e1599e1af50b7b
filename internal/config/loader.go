package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"github.com/umlautd/umlautd/internal/keycode"
	"github.com/umlautd/umlautd/internal/logging"
)

// defaultTriggerKeyNames is used when settings.config.json has no trigger_key
// field at all (spec §6).
var defaultTriggerKeyNames = []string{"KEY_LEFTALT", "KEY_RIGHTALT"}

// Load reads settings.config.json and every enabled sequence file from
// dir and compiles them into a Config. It never returns a Config with an
// empty TriggerKeys or SequenceTable: per spec §3, that's ConfigFatal and
// load returns an error instead.
func Load(dir string) (*Config, error) {
	log := logging.Default()

	settingsPath := filepath.Join(dir, "settings.config.json")
	v := viper.New()
	v.SetConfigFile(settingsPath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", settingsPath, err)
	}

	if v.IsSet("version") {
		if v.GetInt("version") != 1 {
			log.Warn("settings version mismatch", "got", v.GetInt("version"), "want", 1)
		}
	}

	triggerNames := defaultTriggerKeyNames
	if v.IsSet("trigger_key") {
		switch val := v.Get("trigger_key").(type) {
		case string:
			triggerNames = []string{val}
		case []interface{}:
			names := make([]string, 0, len(val))
			for _, item := range val {
				if s, ok := item.(string); ok {
					names = append(names, s)
				}
			}
			triggerNames = names
		}
	}

	var triggerKeys []keycode.KC
	for _, name := range triggerNames {
		kc, ok := keycode.NameToKC(name)
		if !ok {
			log.Warn("unknown trigger key name, skipping", "name", name)
			continue
		}
		triggerKeys = append(triggerKeys, kc)
	}

	passthrough := make(map[keycode.KC]struct{})
	for _, name := range v.GetStringSlice("passthrough_keys") {
		kc, ok := keycode.NameToKC(name)
		if !ok {
			log.Warn("unknown passthrough key name, skipping", "name", name)
			continue
		}
		passthrough[kc] = struct{}{}
	}

	timeoutMS := DefaultTimeoutMS
	if v.IsSet("settings.timeout_ms") {
		t := v.GetInt("settings.timeout_ms")
		if t < MinTimeoutMS || t > MaxTimeoutMS {
			log.Warn("timeout_ms out of range, using default", "got", t, "default", DefaultTimeoutMS)
		} else {
			timeoutMS = t
		}
	}

	logLevel := v.GetString("settings.log_level")
	if logLevel == "" {
		logLevel = "INFO"
	}

	triggerSet := make(map[keycode.KC]struct{}, len(triggerKeys))
	for _, kc := range triggerKeys {
		triggerSet[kc] = struct{}{}
	}

	table := NewSequenceTable()
	for _, stem := range v.GetStringSlice("enabled_sequences") {
		path := filepath.Join(dir, stem+".config.json")
		if err := loadSequenceFile(path, triggerKeys, triggerSet, table, log); err != nil {
			log.Warn("dropping sequence file", "path", path, "error", err)
			continue
		}
	}

	if len(triggerKeys) == 0 {
		return nil, fmt.Errorf("config fatal: no trigger keys after load")
	}
	if table.Len() == 0 {
		return nil, fmt.Errorf("config fatal: empty sequence table after load")
	}

	return &Config{
		TriggerKeys:      triggerKeys,
		PassthroughKeys:  passthrough,
		TimeoutMS:        timeoutMS,
		SequenceTable:    table,
		ValidComposeKeys: table.ValidComposeKeys(),
		LogLevel:         logLevel,
	}, nil
}

// sequenceFile mirrors the on-disk shape from spec §6: a name/description/
// version header plus a sequences map whose values are either a targets
// object or an alias string naming another entry in the same file.
type sequenceFile struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Version     int                        `json:"version"`
	Sequences   map[string]json.RawMessage `json:"sequences"`
}

func loadSequenceFile(path string, triggers []keycode.KC, triggerSet map[keycode.KC]struct{}, table *SequenceTable, log logging.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading: %w", err)
	}

	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("root is not an object: %w", err)
	}

	rawSeqs, ok := root["sequences"]
	if !ok {
		return fmt.Errorf("missing sequences field")
	}

	var sequences map[string]json.RawMessage
	if err := json.Unmarshal(rawSeqs, &sequences); err != nil {
		return fmt.Errorf("sequences is not an object: %w", err)
	}

	if len(sequences) > 10000 {
		return fmt.Errorf("too many compose entries: %d", len(sequences))
	}

	// Two passes: first collect every entry's raw payload so aliases can
	// resolve regardless of map iteration order; then compile.
	type rawEntry struct {
		raw      json.RawMessage
		isAlias  bool
		aliasOf  string
	}
	entries := make(map[string]rawEntry, len(sequences))
	for name, raw := range sequences {
		trimmed := strings.TrimSpace(string(raw))
		if len(trimmed) > 0 && trimmed[0] == '"' {
			var alias string
			if err := json.Unmarshal(raw, &alias); err == nil {
				entries[name] = rawEntry{raw: raw, isAlias: true, aliasOf: alias}
				continue
			}
		}
		entries[name] = rawEntry{raw: raw}
	}

	for composeName, entry := range entries {
		targetsRaw := entry.raw
		if entry.isAlias {
			resolved, ok := entries[entry.aliasOf]
			if !ok || resolved.isAlias {
				log.Warn("dropping broken alias", "compose", composeName, "alias_of", entry.aliasOf)
				continue
			}
			targetsRaw = resolved.raw
		}

		composeKC, composeShifted, err := ParseComposeName(composeName)
		if err != nil {
			log.Warn("dropping unknown compose key", "compose", composeName, "error", err)
			continue
		}
		if _, isTrigger := triggerSet[composeKC]; isTrigger {
			log.Warn("dropping compose group, compose key is also a trigger key", "compose", composeName)
			continue
		}

		var targets map[string]json.RawMessage
		if err := json.Unmarshal(targetsRaw, &targets); err != nil {
			log.Warn("dropping malformed compose group", "compose", composeName, "error", err)
			continue
		}

		for targetNotation, outputRaw := range targets {
			rawKCs, err := ParseTargetNotation(targetNotation)
			if err != nil {
				log.Warn("dropping unknown target", "compose", composeName, "target", targetNotation, "error", err)
				continue
			}
			targetKCs := CanonicalizeTargets(rawKCs)
			if len(targetKCs) == 0 {
				log.Warn("dropping empty target", "compose", composeName, "target", targetNotation)
				continue
			}

			action, err := parseOutput(outputRaw, 0)
			if err != nil {
				log.Warn("dropping malformed output", "compose", composeName, "target", targetNotation, "error", err)
				continue
			}

			for _, trigger := range triggers {
				table.Insert(LookupKey{
					Trigger:        trigger,
					ComposeShifted: composeShifted,
					Compose:        composeKC,
					Targets:        targetKCs,
				}, action)
			}
		}
	}

	return nil
}

// parseOutput implements spec §4.3's "Output definition parsing", recursing
// through at most one level of Sequence nesting (sequence elements are
// strings, KEY_ names or output objects, never further sequences).
func parseOutput(raw json.RawMessage, depth int) (OutputAction, error) {
	trimmed := strings.TrimSpace(string(raw))

	// String -> String action.
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid string output: %w", err)
		}
		if n := len([]rune(s)); n > MaxOutputStringLen {
			return nil, fmt.Errorf("output string too long: %d > %d", n, MaxOutputStringLen)
		}
		return StringAction{Text: s}, nil
	}

	// List -> Sequence action.
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if depth > 0 {
			return nil, fmt.Errorf("nested sequence not allowed")
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, fmt.Errorf("invalid sequence output: %w", err)
		}
		if len(elems) > MaxSequenceElements {
			return nil, fmt.Errorf("sequence too long: %d > %d", len(elems), MaxSequenceElements)
		}
		actions := make([]OutputAction, 0, len(elems))
		for _, elemRaw := range elems {
			elemTrimmed := strings.TrimSpace(string(elemRaw))
			if len(elemTrimmed) > 0 && elemTrimmed[0] == '"' {
				var s string
				if err := json.Unmarshal(elemRaw, &s); err != nil {
					return nil, fmt.Errorf("invalid sequence element: %w", err)
				}
				if strings.HasPrefix(strings.ToUpper(s), "KEY_") {
					kc, ok := keycode.NameToKC(s)
					if !ok {
						return nil, fmt.Errorf("unknown key name in sequence: %q", s)
					}
					actions = append(actions, KeyComboAction{Key: kc})
					continue
				}
				if len([]rune(s)) > MaxOutputStringLen {
					return nil, fmt.Errorf("sequence string element too long")
				}
				actions = append(actions, StringAction{Text: s})
				continue
			}
			sub, err := parseOutput(elemRaw, depth+1)
			if err != nil {
				return nil, err
			}
			actions = append(actions, sub)
		}
		return SequenceAction{Actions: actions}, nil
	}

	// Object -> KeyCombo (has "key") or String (has "string").
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("invalid output object: %w", err)
	}
	if keyRaw, ok := obj["key"]; ok {
		var keyName string
		if err := json.Unmarshal(keyRaw, &keyName); err != nil {
			return nil, fmt.Errorf("invalid key field: %w", err)
		}
		kc, ok := keycode.NameToKC(keyName)
		if !ok {
			return nil, fmt.Errorf("unknown key name %q", keyName)
		}
		var modNames []string
		if modsRaw, ok := obj["modifiers"]; ok {
			_ = json.Unmarshal(modsRaw, &modNames)
		}
		var mods []keycode.KC
		for _, m := range modNames {
			if mkc, ok := keycode.NameToKC(m); ok {
				mods = append(mods, mkc)
			}
		}
		return KeyComboAction{Key: kc, Modifiers: mods}, nil
	}
	if strRaw, ok := obj["string"]; ok {
		var s string
		if err := json.Unmarshal(strRaw, &s); err != nil {
			return nil, fmt.Errorf("invalid string field: %w", err)
		}
		if len([]rune(s)) > MaxOutputStringLen {
			return nil, fmt.Errorf("output string too long")
		}
		return StringAction{Text: s}, nil
	}
	return nil, fmt.Errorf("output object has neither key nor string field")
}
