package application

import "context"

// Worker is a background loop, such as the scheduled rate refresh.
// Start blocks until ctx is canceled.
type Worker interface {
	Start(ctx context.Context)
}
