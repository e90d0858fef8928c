package attempts

import "context"

// Repo holds attempt latches keyed by attempt key.
type Repo interface {
	// Begin moves the latch for key from Idle to Running and returns it with a
	// fresh Owner. When the latch is not Idle it returns the current latch and
	// false without changing it.
	Begin(ctx context.Context, key string) (Latch, bool, error)

	// Complete moves a Running latch held by owner to Done, recording result.
	// The latch keeps the expiry set by Begin.
	Complete(ctx context.Context, key, owner string, result Result) error

	// Reset moves a Running latch held by owner back to Idle so the attempt can
	// be retried. Resetting an absent latch is a no-op.
	Reset(ctx context.Context, key, owner string) error
}
