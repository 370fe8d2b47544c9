package tui

import (
	"context"

	"github.com/charmbracelet/huh/spinner"
)

// ShowSpinner displays a spinner titled title while action runs and returns
// the action's error. Without a TTY the action simply runs.
func ShowSpinner(ctx context.Context, title string, action func() error) error {
	if !HasTTY {
		return action()
	}
	var actionErr error
	if err := spinner.New().
		Context(ctx).
		Title(title).
		Action(func() { actionErr = action() }).
		Run(); err != nil {
		return err
	}
	return actionErr
}
