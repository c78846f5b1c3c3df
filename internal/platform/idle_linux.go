//go:build linux

package platform

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	mutterIdleService = "org.gnome.Mutter.IdleMonitor"
	mutterIdlePath    = "/org/gnome/Mutter/IdleMonitor/Core"
	mutterIdleMethod  = "org.gnome.Mutter.IdleMonitor.GetIdletime"
)

// mutterIdleSource asks the compositor's idle monitor over the session bus.
// It works on both X11 and Wayland GNOME sessions.
type mutterIdleSource struct {
	conn *dbus.Conn
}

type xprintidleSource struct {
	path string
}

type unsupportedIdleSource struct{}

func newIdleTimeSource() IdleTimeSource {
	if conn, err := dbus.ConnectSessionBus(); err == nil {
		source := &mutterIdleSource{conn: conn}
		if _, err := source.IdleDuration(); err == nil {
			return source
		}
		_ = conn.Close()
	}

	path, err := exec.LookPath("xprintidle")
	if err != nil {
		return unsupportedIdleSource{}
	}
	return &xprintidleSource{path: path}
}

func (s *mutterIdleSource) IdleDuration() (time.Duration, error) {
	var idleMillis uint64
	obj := s.conn.Object(mutterIdleService, dbus.ObjectPath(mutterIdlePath))
	if err := obj.Call(mutterIdleMethod, 0).Store(&idleMillis); err != nil {
		return 0, fmt.Errorf("mutter idle monitor: %w", err)
	}
	return time.Duration(idleMillis) * time.Millisecond, nil
}

// Close releases the session bus connection.
func (s *mutterIdleSource) Close() error {
	return s.conn.Close()
}

func (s *xprintidleSource) IdleDuration() (time.Duration, error) {
	output, err := exec.Command(s.path).Output()
	if err != nil {
		return 0, fmt.Errorf("xprintidle: %w", err)
	}
	idleMillis, err := strconv.ParseInt(strings.TrimSpace(string(output)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse idle milliseconds: %w", err)
	}
	if idleMillis < 0 {
		idleMillis = 0
	}
	return time.Duration(idleMillis) * time.Millisecond, nil
}

func (unsupportedIdleSource) IdleDuration() (time.Duration, error) {
	return 0, ErrIdleUnsupported
}
