// Package fanout runs one independent unit of work per input item and
// collects every outcome in input order.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoItems is returned before any work starts when the input list is empty.
var ErrNoItems = errors.New("fanout: no items provided")

// ErrItemTimeout marks an item that exceeded its per-item deadline.
var ErrItemTimeout = errors.New("fanout: item timed out")

// Result is the outcome for one input item: a Success carrying Value or a
// Failure carrying Err.
type Result[T any] struct {
	Item  string
	Value T
	Err   error
}

// OK reports whether the item succeeded.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Func does the work for one item.
type Func[T any] func(ctx context.Context, item string) (T, error)

// Options tune a fan-out run.
type Options struct {
	// ItemTimeout bounds each item independently. Zero means no per-item bound.
	ItemTimeout time.Duration
}

// Option mutates Options.
type Option func(*Options)

// WithItemTimeout bounds every item's work by d.
func WithItemTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ItemTimeout = d
	}
}

// Run calls fn once per item concurrently and waits for all of them.
// results[i] always corresponds to items[i]; one item's failure never
// cancels another.
func Run[T any](ctx context.Context, items []string, fn Func[T], opts ...Option) ([]Result[T], error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if fn == nil {
		return nil, errors.New("fanout: func is nil")
	}

	var options Options
	for _, opt := range opts {
		opt(&options)
	}

	results := make([]Result[T], len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = runItem(ctx, item, fn, options)
		}()
	}
	wg.Wait()

	return results, nil
}

func runItem[T any](ctx context.Context, item string, fn Func[T], options Options) (result Result[T]) {
	result.Item = item
	defer func() {
		if recovered := recover(); recovered != nil {
			var zero T
			result.Value = zero
			result.Err = fmt.Errorf("fanout: item %q panicked: %v", item, recovered)
		}
	}()

	itemCtx := ctx
	if options.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, options.ItemTimeout)
		defer cancel()
	}

	value, err := fn(itemCtx, item)
	if err != nil {
		if options.ItemTimeout > 0 && errors.Is(itemCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %w", ErrItemTimeout, options.ItemTimeout, err)
		}
		var zero T
		return Result[T]{Item: item, Value: zero, Err: err}
	}
	return Result[T]{Item: item, Value: value}
}

// Succeeded counts successful results.
func Succeeded[T any](results []Result[T]) int {
	n := 0
	for _, r := range results {
		if r.OK() {
			n++
		}
	}
	return n
}
