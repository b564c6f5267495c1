package services

import (
	"context"
	"sync"
	"time"
)

// sideEffectTimeout bounds work done after a transaction has committed.
const sideEffectTimeout = 10 * time.Second

// afterCommit returns a context for post-commit side effects. It keeps the
// request's values but not its cancellation: once the rows are committed the
// side effects must still run if the caller has gone away.
func afterCommit(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
}

// background runs fire-and-forget work off the caller's path and lets
// shutdown wait for it.
type background struct {
	wg sync.WaitGroup
}

func (b *background) Go(ctx context.Context, fn func(ctx context.Context)) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, cancel := afterCommit(ctx)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until all started work has returned.
func (b *background) Wait() {
	b.wg.Wait()
}
