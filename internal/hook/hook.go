// Package hook defines the boundary for process-wide input hooks.
package hook

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownHandle is returned when uninstalling a handle that is not installed.
	ErrUnknownHandle = errors.New("hook: unknown handle")

	// ErrNilCallback is returned when installing a hook without a callback.
	ErrNilCallback = errors.New("hook: nil callback")
)

// Kind is a class of input events.
type Kind int

const (
	Keyboard Kind = iota + 1
	Mouse
)

func (k Kind) String() string {
	switch k {
	case Keyboard:
		return "keyboard"
	case Mouse:
		return "mouse"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Handle identifies an installed hook. The zero Handle means "not installed".
type Handle uintptr

// Callback receives one input event. It runs on a goroutine owned by the
// installer, must return quickly, and must return the result of CallNext.
type Callback func(code int, wParam, lParam uintptr) uintptr

// Installer installs and removes low-level input hooks.
// Installing the same hook twice without uninstalling is a caller error.
type Installer interface {
	Install(kind Kind, cb Callback) (Handle, error)
	Uninstall(h Handle) error
	CallNext(h Handle, code int, wParam, lParam uintptr) uintptr
}
