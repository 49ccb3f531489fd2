package common

import "errors"

// ErrModulePaused is returned when an operator has switched off an action.
var ErrModulePaused = errors.New("action paused")

// PauseView reports whether a named action is switched off.
type PauseView interface {
	IsPaused(action string) bool
}

// Guard rejects the action when p reports it paused.
func Guard(p PauseView, action string) error {
	if p == nil || action == "" {
		return nil
	}
	if p.IsPaused(action) {
		return ErrModulePaused
	}
	return nil
}
