package library

import "context"

// Optimistic applies a speculative local change, then commits it remotely.
// apply returns the function that undoes its change, or nil when there was
// nothing to undo. The commit error is returned as is.
func Optimistic(ctx context.Context, apply func() (undo func()), commit func(context.Context) error) error {
	undo := apply()
	if err := commit(ctx); err != nil {
		if undo != nil {
			undo()
		}
		return err
	}
	return nil
}
