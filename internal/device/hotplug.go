package device

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/umlautd/umlautd/internal/logging"
)

// inputDir is the directory hotplug watches for newly appeared event nodes.
const inputDir = "/dev/input"

// settleDelay is how long HotplugWatcher waits after a create event before
// re-evaluating the new node: udev populates permissions and the sysfs
// capability attributes shortly after the inotify event fires, so opening
// the device immediately can race a permission-denied (spec §4.4 "Hotplug").
const settleDelay = 300 * time.Millisecond

// HotplugWatcher watches /dev/input for new event nodes and reports their
// paths on Events after settleDelay. Grounded in fsnotify's directory-watch
// idiom (the library already named in the pack's bnema-uinputd-go go.mod)
// wired into this repo's goroutine-per-source fan-in architecture.
type HotplugWatcher struct {
	watcher *fsnotify.Watcher
	Events  chan string
	done    chan struct{}
}

// NewHotplugWatcher starts watching inputDir. A failure to watch is logged
// but not fatal: the daemon still runs with the device set found at startup,
// it simply never learns about devices plugged in later (spec §7 treats
// hotplug loss as degraded, not fatal).
func NewHotplugWatcher() *HotplugWatcher {
	h := &HotplugWatcher{
		Events: make(chan string, 8),
		done:   make(chan struct{}),
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logging.Default().Warn("hotplug watch unavailable", "error", err)
		close(h.Events)
		return h
	}
	if err := w.Add(inputDir); err != nil {
		logging.Default().Warn("hotplug watch unavailable", "dir", inputDir, "error", err)
		close(h.Events)
		w.Close()
		return h
	}

	h.watcher = w
	go h.run()
	return h
}

func (h *HotplugWatcher) run() {
	defer close(h.Events)
	for {
		select {
		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), "event") {
				continue
			}
			path := ev.Name
			go func() {
				timer := time.NewTimer(settleDelay)
				defer timer.Stop()
				select {
				case <-timer.C:
				case <-h.done:
					return
				}
				select {
				case h.Events <- path:
				case <-h.done:
				}
			}()
		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			logging.Default().Warn("hotplug watch error", "error", err)
		case <-h.done:
			return
		}
	}
}

// Close stops the watcher.
func (h *HotplugWatcher) Close() {
	close(h.done)
	if h.watcher != nil {
		h.watcher.Close()
	}
}
