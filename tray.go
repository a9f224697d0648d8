package main

import (
	_ "embed"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"fyne.io/systray"
	"github.com/pkg/browser"
	"go.uber.org/zap"

	"xboxbt-driver/internal/device"
	"xboxbt-driver/internal/status"
)

//go:embed tray.png
var trayIcon []byte

const appTitle = "xboxbt"

// Tray shows the connected controllers and their batteries in the system
// tray. Exit calls the shutdown function once.
type Tray struct {
	src        status.Source
	statusAddr string
	shutdown   func()
	log        *zap.Logger

	once         sync.Once
	shuttingDown atomic.Bool
	ready        atomic.Bool
	menuOpen     *systray.MenuItem
	menuExit     *systray.MenuItem
	menuInfo     *systray.MenuItem
}

// NewTray creates the tray. shutdown is called when the user picks Exit.
func NewTray(src status.Source, statusAddr string, shutdown func(), log *zap.Logger) *Tray {
	return &Tray{src: src, statusAddr: statusAddr, shutdown: shutdown, log: log}
}

// Run blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray icon and makes Run return.
func (t *Tray) Quit() {
	t.shuttingDown.Store(true)
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetIcon(trayIcon)
	systray.SetTitle(appTitle)

	t.menuInfo = systray.AddMenuItem("No controller", "Connected controllers")
	t.menuInfo.Disable()
	systray.AddSeparator()
	t.menuOpen = systray.AddMenuItem("Open status", "Open the status endpoint")
	if t.statusAddr == "" {
		t.menuOpen.Disable()
	}
	t.menuExit = systray.AddMenuItem("Exit", "Stop the driver")

	t.ready.Store(true)
	t.refresh()
	go t.handleMenuClicks()
	t.log.Debug("system tray initialized")
}

func (t *Tray) onExit() {
	t.shuttingDown.Store(true)
	t.log.Debug("system tray exiting")
}

func (t *Tray) handleMenuClicks() {
	for {
		select {
		case <-t.menuOpen.ClickedCh:
			if t.shuttingDown.Load() {
				continue
			}
			url := statusURL(t.statusAddr)
			if err := browser.OpenURL(url); err != nil {
				t.log.Warn("failed to open browser", zap.String("url", url), zap.Error(err))
			}
		case <-t.menuExit.ClickedCh:
			if t.shuttingDown.CompareAndSwap(false, true) {
				t.once.Do(t.shutdown)
				systray.Quit()
				return
			}
		}
	}
}

// Observe updates the tray on session events.
func (t *Tray) Observe(ev device.Event) {
	switch ev.Kind {
	case device.EventConnected, device.EventDisconnected, device.EventBattery:
		t.refresh()
	}
}

func (t *Tray) refresh() {
	if !t.ready.Load() || t.shuttingDown.Load() {
		return
	}
	statuses := t.src.Statuses()
	systray.SetTooltip(trayTooltip(statuses))
	if len(statuses) == 0 {
		t.menuInfo.SetTitle("No controller")
	} else {
		t.menuInfo.SetTitle(fmt.Sprintf("%d controller(s) connected", len(statuses)))
	}
}

// trayTooltip lists the controllers with their battery state.
func trayTooltip(statuses []device.Status) string {
	if len(statuses) == 0 {
		return appTitle + ": no controller"
	}
	lines := make([]string, 0, len(statuses))
	for _, s := range statuses {
		batt := "battery unknown"
		if s.Battery != nil {
			batt = fmt.Sprintf("battery %s, %s", s.Battery.Level, s.Battery.Status)
		}
		lines = append(lines, fmt.Sprintf("#%d %s: %s", s.ID, s.Name, batt))
	}
	return strings.Join(lines, "\n")
}

// statusURL turns a listen address into something a browser can open.
func statusURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/status"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/status"
}
