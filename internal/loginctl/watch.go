// Package loginctl follows the logind lock state of a session.
package loginctl

import (
	"context"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog"
)

const (
	login1Service   = "org.freedesktop.login1"
	login1Path      = "/org/freedesktop/login1"
	managerIface    = "org.freedesktop.login1.Manager"
	sessionIface    = "org.freedesktop.login1.Session"
	propertiesIface = "org.freedesktop.DBus.Properties"
)

// LockHandler receives lock state changes.
type LockHandler interface {
	Locked(ctx context.Context) error
	Unlocked(ctx context.Context) error
}

// CurrentSession resolves the logind session this process runs in, using
// XDG_SESSION_ID when set.
func CurrentSession(conn *dbus.Conn) (dbus.ObjectPath, error) {
	id := os.Getenv("XDG_SESSION_ID")
	if id == "" {
		id = "auto"
	}

	var path dbus.ObjectPath
	obj := conn.Object(login1Service, login1Path)
	if err := obj.Call(managerIface+".GetSession", 0, id).Store(&path); err != nil {
		return "", fmt.Errorf("failed to resolve session %q: %w", id, err)
	}
	return path, nil
}

// WatchLocks reports LockedHint changes for sessionPath to handler until ctx
// is cancelled. An empty sessionPath selects the current session. The
// initial state is reported when the session starts locked.
func WatchLocks(ctx context.Context, sessionPath dbus.ObjectPath, handler LockHandler, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "loginctl").Logger()

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer conn.Close()

	if sessionPath == "" {
		if sessionPath, err = CurrentSession(conn); err != nil {
			return err
		}
	}

	// watch for property changes (session locked)
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(sessionPath),
		dbus.WithMatchInterface(propertiesIface),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("add match for PropertiesChanged failed: %w", err)
	}

	c := make(chan *dbus.Signal, 10)
	conn.Signal(c)
	defer conn.RemoveSignal(c)

	sessionObj := conn.Object(login1Service, sessionPath)
	if variant, err := sessionObj.GetProperty(sessionIface + ".LockedHint"); err != nil {
		logger.Warn().Err(err).Str("session", string(sessionPath)).Msg("Failed to read LockedHint")
	} else if locked, _ := variant.Value().(bool); locked {
		if err := handler.Locked(ctx); err != nil {
			logger.Error().Err(err).Msg("Lock handler failed")
		}
	}

	logger.Info().Str("session", string(sessionPath)).Msg("Watching session lock state")

	for {
		select {
		case sig, ok := <-c:
			if !ok {
				return fmt.Errorf("system bus connection closed")
			}
			if err := dispatch(ctx, sig, sessionPath, handler); err != nil {
				logger.Error().Err(err).Msg("Lock handler failed")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// dispatch forwards a LockedHint change on sessionPath to handler and
// ignores every other signal.
func dispatch(ctx context.Context, sig *dbus.Signal, sessionPath dbus.ObjectPath, handler LockHandler) error {
	if sig == nil || sig.Name != propertiesIface+".PropertiesChanged" || sig.Path != sessionPath {
		return nil
	}
	if len(sig.Body) < 2 {
		return nil
	}

	iface, ok := sig.Body[0].(string)
	if !ok || iface != sessionIface {
		return nil
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil
	}

	val, exists := changed["LockedHint"]
	if !exists {
		return nil
	}

	if locked, _ := val.Value().(bool); locked {
		return handler.Locked(ctx)
	}
	return handler.Unlocked(ctx)
}
