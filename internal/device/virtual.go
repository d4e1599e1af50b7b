package device

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/umlautd/umlautd/internal/keycode"
)

// uinput ioctl and event-type constants (linux/uinput.h, linux/input.h).
// Grounded in miken90-fkey/platforms/linux/core/uinput.go's raw ioctl
// virtual keyboard, rebuilt on golang.org/x/sys/unix instead of the
// low-level syscall package for consistency with the rest of this module's
// raw Linux syscall use.
const (
	evSyn = 0x00
	evKey = 0x01
	evLed = 0x11

	synReport = 0

	ledNumLock    = 0x00
	ledCapsLock   = 0x01
	ledScrollLock = 0x02

	uiSetEvBit  = 0x40045564
	uiSetKeyBit = 0x40045565
	uiSetLedBit = 0x40045567
	uiDevSetup  = 0x405c5503
	uiDevCreate = 0x5501
	uiDevDestroy = 0x5502

	busUSB             = 0x03
	uinputMaxNameSize = 80
)

type uinputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputSetup struct {
	ID        uinputID
	Name      [uinputMaxNameSize]byte
	FFEffects uint32
}

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// Virtual is the single synthetic keyboard the daemon writes to (spec §4.4
// "Virtual output"). Every downstream application sees only its events.
type Virtual struct {
	fd int
}

// CreateVirtual opens /dev/uinput and creates a device named
// VirtualDeviceName advertising keyCodes (the union of every grabbed
// physical device's key capabilities) plus Caps/Num/Scroll-Lock LEDs so
// host LED tracking works (spec §4.4).
func CreateVirtual(keyCodes map[keycode.KC]struct{}) (*Virtual, error) {
	fd, err := unix.Open("/dev/uinput", unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("opening /dev/uinput: %w (ensure the daemon's user is in the 'input' group)", err)
	}

	v := &Virtual{fd: fd}

	if err := v.ioctl(uiSetEvBit, evKey); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("UI_SET_EVBIT(EV_KEY): %w", err)
	}
	if err := v.ioctl(uiSetEvBit, evLed); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("UI_SET_EVBIT(EV_LED): %w", err)
	}
	for kc := range keyCodes {
		if err := v.ioctl(uiSetKeyBit, uintptr(kc)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("UI_SET_KEYBIT(%d): %w", kc, err)
		}
	}
	for _, led := range []uintptr{ledNumLock, ledCapsLock, ledScrollLock} {
		if err := v.ioctl(uiSetLedBit, led); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("UI_SET_LEDBIT(%d): %w", led, err)
		}
	}

	var setup uinputSetup
	setup.ID.Bustype = busUSB
	setup.ID.Vendor = 0x0a0a
	setup.ID.Product = 0x0001
	setup.ID.Version = 1
	copy(setup.Name[:], VirtualDeviceName)

	if err := v.ioctlPtr(uiDevSetup, unsafe.Pointer(&setup)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("UI_DEV_SETUP: %w", err)
	}
	if err := v.ioctl(uiDevCreate, 0); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("UI_DEV_CREATE: %w", err)
	}

	// Give udev time to create the /dev/input/eventN node before anything
	// (including our own hotplug watch) might try to open it.
	time.Sleep(100 * time.Millisecond)

	return v, nil
}

func (v *Virtual) ioctl(req, val uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(v.fd), req, val)
	if errno != 0 {
		return errno
	}
	return nil
}

func (v *Virtual) ioctlPtr(req uintptr, ptr unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(v.fd), req, uintptr(ptr))
	if errno != 0 {
		return errno
	}
	return nil
}

func (v *Virtual) writeEvent(evType, code uint16, value int32) error {
	var tv unix.Timeval
	unix.Gettimeofday(&tv)
	ev := inputEvent{Time: tv, Type: evType, Code: code, Value: value}
	buf := (*[unsafe.Sizeof(ev)]byte)(unsafe.Pointer(&ev))[:]
	_, err := unix.Write(v.fd, buf)
	return err
}

// EmitKey writes a single EV_KEY event for kc with the given value
// (0 release, 1 press, 2 repeat).
func (v *Virtual) EmitKey(kc keycode.KC, value int32) error {
	return v.writeEvent(evKey, uint16(kc), value)
}

// Sync writes an EV_SYN/SYN_REPORT, flushing the events written since the
// previous sync so consumers see a coherent report (spec §5 "Ordering
// guarantees").
func (v *Virtual) Sync() error {
	return v.writeEvent(evSyn, synReport, 0)
}

// Close destroys the virtual device and releases /dev/uinput.
func (v *Virtual) Close() error {
	v.ioctl(uiDevDestroy, 0)
	return unix.Close(v.fd)
}
