package dbpool

import (
	"context"
	"time"
)

// Observer receives events for executor operations.
// It is called after each operation completes, success or failure.
type Observer interface {
	OnDBOp(ctx context.Context, op string, success bool, err error, dur time.Duration)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op string, success bool, err error, dur time.Duration)

// OnDBOp implements Observer.
func (f ObserverFunc) OnDBOp(ctx context.Context, op string, success bool, err error, dur time.Duration) {
	if f == nil {
		return
	}
	f(ctx, op, success, err, dur)
}
