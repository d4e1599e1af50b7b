// Package loop implements the central event loop (C7, spec §4.7): the
// single goroutine that owns the compose.Machine and drives it from raw key
// events, timeouts, hotplug, and signals. Every other device- or
// config-reading goroutine only ever writes to a channel this loop reads;
// grounded in tea.go's Program.eventLoop, which fans handleSignals,
// handleResize, and handleCommands goroutines into one central select.
package loop

import (
	"context"
	"time"

	"github.com/umlautd/umlautd/internal/compose"
	"github.com/umlautd/umlautd/internal/config"
	"github.com/umlautd/umlautd/internal/device"
	"github.com/umlautd/umlautd/internal/keycode"
	"github.com/umlautd/umlautd/internal/logging"
)

// keyEvent is one physical key event tagged with the device path it came
// from, so the loop can drop that device from the grabbed set on a read
// error without guessing which reader goroutine failed.
type keyEvent struct {
	path  string
	kc    keycode.KC
	value int32
}

type deviceErr struct {
	path string
	err  error
}

// Loop owns the manager, the compose machine, and the hotplug watcher for
// the lifetime of one run (spec §4.7). ConfigDir is re-read in full on every
// reload (SIGHUP), matching "Config rebuilt wholesale" in spec §4.7.
type Loop struct {
	ConfigDir string

	manager *device.Manager
	machine *compose.Machine
	hotplug *device.HotplugWatcher

	events  chan keyEvent
	errs    chan deviceErr
	signals chan signalKind
	done    chan struct{}

	// TestModeActive is forwarded onto the compose machine; see spec §4.6
	// "Test-mode bypass" and the --test-marker flag.
	TestModeActive func() bool
}

// New builds a Loop around an already-discovered device manager, a compiled
// configuration, and the output emitter (internal/synth.Synthesizer in
// production, a recording fake in tests).
func New(mgr *device.Manager, cfg *config.Config, emitter compose.Emitter, configDir string) *Loop {
	l := &Loop{
		ConfigDir: configDir,
		manager:   mgr,
		events:    make(chan keyEvent, 64),
		errs:      make(chan deviceErr, 8),
		signals:   make(chan signalKind, 4),
		done:      make(chan struct{}),
	}

	l.machine = compose.New(cfg, emitter)
	l.machine.TestModeActive = func() bool {
		return l.TestModeActive != nil && l.TestModeActive()
	}

	return l
}

// Run starts one reader goroutine per currently grabbed device plus the
// hotplug watcher and signal watcher, then drives the central select loop
// until a shutdown signal or fatal error. It returns nil on a clean shutdown.
func (l *Loop) Run(ctx context.Context) error {
	log := logging.Default()

	for _, p := range l.manager.Devices() {
		l.watchDevice(p)
	}

	l.hotplug = device.NewHotplugWatcher()
	hotplugEvents := l.hotplug.Events
	go watchSignals(l.signals, l.done)

	defer close(l.done)

	for {
		timer, stop := l.deadlineTimer()

		select {
		case <-ctx.Done():
			stop()
			l.machine.ForceRelease()
			return nil

		case sig := <-l.signals:
			stop()
			switch sig {
			case signalShutdown:
				l.machine.ForceRelease()
				return nil
			case signalReload:
				l.reload(log)
			}

		case ev := <-l.events:
			stop()
			l.machine.HandleEvent(ev.kc, compose.Value(ev.value))

		case de := <-l.errs:
			stop()
			log.Warn("dropping device after read failure", "path", de.path)
			l.manager.Remove(de.path)
			if len(l.manager.Devices()) == 0 {
				log.Error("no keyboards remain grabbed, shutting down")
				l.machine.ForceRelease()
				return nil
			}

		case path, ok := <-hotplugEvents:
			stop()
			if !ok {
				// Watch setup failed or was closed; stop selecting on it
				// instead of busy-looping on a closed channel (spec §5
				// "directory watch unavailable: hotplug disabled").
				hotplugEvents = nil
				continue
			}
			if p, ok := l.manager.TryAddHotplugged(path); ok {
				l.watchDevice(p)
			}

		case <-timer:
			l.machine.CheckTimeout()
		}
	}
}

// deadlineTimer returns a channel that fires at the compose machine's next
// timeout deadline (spec §4.7 step 2), or a nil/never-firing channel when
// the machine is Idle or ComposePressed (no active deadline).
func (l *Loop) deadlineTimer() (<-chan time.Time, func()) {
	var deadline time.Time
	switch l.machine.State() {
	case compose.TriggerPressed:
		deadline = l.machine.TriggerDeadline()
	case compose.WaitingTarget:
		deadline = l.machine.ComposeDeadline()
	default:
		return nil, func() {}
	}

	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	t := time.NewTimer(d)
	return t.C, func() { t.Stop() }
}

// watchDevice starts a reader goroutine for p, feeding l.events until p is
// closed or a read fails (spec §4.7's "Event-source fan-in"). Each goroutine
// carries its own path-scoped logger on a context, the same
// attach-to-context idiom bnema-uinputd-go's handlers use for per-request
// logging (internal/logging.WithContext/FromContext).
func (l *Loop) watchDevice(p *device.Physical) {
	ctx := logging.WithContext(context.Background(), logging.With("path", p.Path))
	go func() {
		log := logging.FromContext(ctx)
		for {
			kc, value, ok, err := p.ReadEvent()
			if err != nil {
				log.Warn("device read failed", "error", err)
				select {
				case l.errs <- deviceErr{path: p.Path, err: err}:
				case <-l.done:
				}
				return
			}
			if !ok {
				continue
			}
			select {
			case l.events <- keyEvent{path: p.Path, kc: kc, value: value}:
			case <-l.done:
				return
			}
		}
	}()
}

// reload rebuilds the configuration wholesale from ConfigDir and swaps it
// into the running machine, force-releasing any in-flight sequence first
// (spec §4.7 "Reload"). A failed reload keeps the previous configuration and
// is logged, never fatal.
func (l *Loop) reload(log logging.Logger) {
	cfg, err := config.Load(l.ConfigDir)
	if err != nil {
		log.Error("reload failed, keeping previous configuration", "error", err)
		return
	}
	l.machine.ForceRelease()
	l.machine.SetConfig(cfg)
	logging.Configure(cfg.LogLevel)
	log.Info("configuration reloaded", "sequences", cfg.SequenceTable.Len())
}

// Close tears down the manager and hotplug watcher. Called by the caller
// after Run returns.
func (l *Loop) Close() {
	if l.hotplug != nil {
		l.hotplug.Close()
	}
	l.manager.Close()
}
