package synth

import (
	"context"
	"os"
	"os/exec"
	"time"
	"unicode"

	"github.com/umlautd/umlautd/internal/logging"
)

// XdotoolTyper shells out to xdotool for characters the virtual device's
// direct key events can't produce (spec §4.5 "External typing helper").
// Grounded in original_source/service/umlaut_daemon.py's _check_xdotool and
// _type_unicode_char: probe `xdotool version` once at startup, gated on the
// session not being Wayland-typed, then `xdotool type --` per character
// with an explicit Shift wrap for upper-case output.
type XdotoolTyper struct {
	available bool
}

// NewXdotoolTyper probes xdotool's availability once. The probe is skipped
// entirely (available=false) on a Wayland session or with no DISPLAY set,
// per spec §4.5 and §6 ("Environment").
func NewXdotoolTyper() *XdotoolTyper {
	log := logging.Default()
	t := &XdotoolTyper{}

	if os.Getenv("XDG_SESSION_TYPE") == "wayland" || os.Getenv("WAYLAND_DISPLAY") != "" {
		log.Warn("Wayland session detected, Unicode output via xdotool disabled")
		return t
	}
	if os.Getenv("DISPLAY") == "" {
		log.Warn("DISPLAY not set, Unicode output via xdotool disabled")
		return t
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "xdotool", "version").Run(); err != nil {
		log.Warn("xdotool unavailable, Unicode output disabled", "error", err)
		return t
	}

	log.Info("xdotool ready, Unicode output enabled")
	t.available = true
	return t
}

// Available reports whether the helper responded to the startup probe.
func (t *XdotoolTyper) Available() bool {
	return t != nil && t.available
}

// Type invokes xdotool to type s, wrapping it with an explicit Shift
// press/release if s is upper-case.
func (t *XdotoolTyper) Type(s string) error {
	if isUpper(s) {
		_ = exec.Command("xdotool", "keydown", "shift").Run()
		err := exec.Command("xdotool", "type", "--", s).Run()
		_ = exec.Command("xdotool", "keyup", "shift").Run()
		return err
	}
	return exec.Command("xdotool", "type", "--", s).Run()
}

func isUpper(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) && unicode.IsUpper(r) {
			return true
		}
	}
	return false
}
