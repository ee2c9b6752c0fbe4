package scheduler

import "context"

// Scheduler drives the jobs of one run date through their lifecycle.
type Scheduler interface {
	// Start runs the loop. Blocks until ctx is cancelled, Stop is called
	// or the store fails.
	Start(ctx context.Context) error

	// Stop shuts down the loop and waits for the current tick to finish.
	Stop() error

	// Tick runs a single reap, evaluate and launch iteration. Used for testing.
	Tick(ctx context.Context) error
}
