package gov

import "errors"

var ErrPaused = errors.New("gov: market paused")

// PauseView exposes the pause flag to engines without granting them mutation
// rights over governance state.
type PauseView interface {
	IsPaused() bool
}

// Guard returns ErrPaused when the supplied view reports a paused market. A
// nil view never blocks.
func Guard(p PauseView) error {
	if p == nil {
		return nil
	}
	if p.IsPaused() {
		return ErrPaused
	}
	return nil
}
