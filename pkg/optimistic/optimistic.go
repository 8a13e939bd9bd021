// Package optimistic applies a local state change speculatively and
// reverts it if the remote call backing it fails.
package optimistic

import "context"

// Transaction is one speculative change.
type Transaction[R any] struct {
	// Apply patches local state before the remote call starts.
	Apply func()
	// Revert restores the exact pre-Apply state.
	Revert func()
	// Commit performs the remote call.
	Commit func(ctx context.Context) (R, error)
}

// Run applies the patch, commits, and reverts on error or panic. The
// commit's result is returned unchanged.
func (tx Transaction[R]) Run(ctx context.Context) (result R, err error) {
	if tx.Apply != nil {
		tx.Apply()
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if tx.Revert != nil {
			tx.Revert()
		}
	}()

	result, err = tx.Commit(ctx)
	if err != nil {
		return result, err
	}
	committed = true
	return result, nil
}
