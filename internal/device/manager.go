// Package device implements the device manager (C4, spec §4.4): discovery
// and exclusive capture of physical keyboards, the union virtual output
// device, and hotplug maintenance of the grabbed set. Grounded in
// VinewZ-go-evdev-keyboard's use of github.com/holoplot/go-evdev for
// listing, opening, and reading devices.
package device

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/holoplot/go-evdev"
	"github.com/umlautd/umlautd/internal/keycode"
	"github.com/umlautd/umlautd/internal/logging"
)

// errGrabFailed distinguishes "this device qualifies as a keyboard but the
// exclusive grab itself failed" from every other tryGrab rejection reason.
// Discover treats it as fatal (spec §4.4 "failure is fatal at startup");
// TryAddHotplugged treats it the same as any other rejection (§4.4 "logged
// on hotplug").
var errGrabFailed = errors.New("grabbing device")

// Physical is one grabbed physical keyboard.
type Physical struct {
	Path string
	dev  *evdev.InputDevice
	fd   int
}

// Fd returns the file descriptor the event loop selects on.
func (p *Physical) Fd() int {
	return p.fd
}

// ReadEvent blocks for the next event from the device. ok is false and err
// is nil for event types the state machine doesn't care about (anything
// but EV_KEY); callers should loop until ok or err.
func (p *Physical) ReadEvent() (kc keycode.KC, value int32, ok bool, err error) {
	ev, err := p.dev.ReadOne()
	if err != nil {
		return 0, 0, false, err
	}
	if ev.Type != evdev.EV_KEY {
		return 0, 0, false, nil
	}
	return keycode.KC(ev.Code), ev.Value, true, nil
}

// Close ungrabs and closes the device.
func (p *Physical) Close() error {
	_ = p.dev.Ungrab()
	return p.dev.Close()
}

// Manager owns the set of grabbed physical devices and the virtual output
// device (spec §4.4).
type Manager struct {
	Virtual  *Virtual
	devices  map[string]*Physical
	keyUnion map[keycode.KC]struct{}
}

// Discover enumerates /dev/input, grabs every device that qualifies as a
// keyboard (qualifiesAsKeyboard), and creates the virtual output device
// advertising their combined key capabilities. Failing to find or grab any
// keyboard, or failing to create the virtual device, is DeviceFatal (spec
// §5).
func Discover() (*Manager, error) {
	m := &Manager{
		devices:  make(map[string]*Physical),
		keyUnion: make(map[keycode.KC]struct{}),
	}

	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("listing input devices: %w", err)
	}

	for _, p := range paths {
		if err := m.tryGrab(p.Path); err != nil {
			if errors.Is(err, errGrabFailed) {
				m.closeAll()
				return nil, fmt.Errorf("device fatal: %s: %w", p.Path, err)
			}
			logging.Default().Warn("skipping device", "path", p.Path, "error", err)
		}
	}

	if len(m.devices) == 0 {
		return nil, fmt.Errorf("device fatal: no keyboards found under /dev/input")
	}

	v, err := CreateVirtual(m.keyUnion)
	if err != nil {
		m.closeAll()
		return nil, fmt.Errorf("device fatal: creating virtual device: %w", err)
	}
	m.Virtual = v

	return m, nil
}

// tryGrab opens path, checks it against the discovery filter, and if it
// qualifies, grabs it exclusively and adds it to the device set. It is also
// the hotplug re-evaluation entry point (spec §4.4).
func (m *Manager) tryGrab(path string) error {
	if !strings.HasPrefix(filepath.Base(path), "event") {
		return fmt.Errorf("not an event node")
	}
	if _, already := m.devices[path]; already {
		return nil
	}

	dev, err := evdev.Open(path)
	if err != nil {
		return fmt.Errorf("opening: %w", err)
	}

	caps, err := capabilitiesOf(dev)
	if err != nil {
		dev.Close()
		return fmt.Errorf("reading capabilities: %w", err)
	}
	if !qualifiesAsKeyboard(caps) {
		dev.Close()
		return nil
	}

	if err := dev.Grab(); err != nil {
		dev.Close()
		return fmt.Errorf("%w: %v", errGrabFailed, err)
	}

	phys := &Physical{Path: path, dev: dev, fd: int(dev.File().Fd())}
	m.devices[path] = phys
	for code := range caps.keyCodes {
		m.keyUnion[keycode.KC(code)] = struct{}{}
	}
	logging.Default().Info("grabbed keyboard", "path", path, "name", caps.name)
	return nil
}

// Devices returns the current grabbed device set.
func (m *Manager) Devices() []*Physical {
	out := make([]*Physical, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out
}

// Remove drops path from the grabbed set, e.g. after an I/O error observed
// by the event loop (spec §4.4 "Removal").
func (m *Manager) Remove(path string) {
	if d, ok := m.devices[path]; ok {
		d.Close()
		delete(m.devices, path)
	}
}

// TryAddHotplugged re-evaluates path (a newly appeared /dev/input node)
// against the discovery filter and grabs it if it qualifies (spec §4.4
// "Hotplug"), returning the newly grabbed device so the caller can start
// reading it.
func (m *Manager) TryAddHotplugged(path string) (*Physical, bool) {
	if err := m.tryGrab(path); err != nil {
		logging.Default().Warn("hotplug device rejected", "path", path, "error", err)
		return nil, false
	}
	return m.devices[path], m.devices[path] != nil
}

func (m *Manager) closeAll() {
	for path := range m.devices {
		m.Remove(path)
	}
}

// Close ungrabs every device and destroys the virtual device (spec §4.7
// "Cancellation").
func (m *Manager) Close() {
	m.closeAll()
	if m.Virtual != nil {
		m.Virtual.Close()
	}
}
