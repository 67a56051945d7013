package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunPreservesInputOrder(t *testing.T) {
	items := []string{"slow", "fast", "medium"}
	delays := map[string]time.Duration{
		"slow":   30 * time.Millisecond,
		"fast":   0,
		"medium": 10 * time.Millisecond,
	}

	results, err := Run(context.Background(), items, func(ctx context.Context, item string) (string, error) {
		time.Sleep(delays[item])
		return "done:" + item, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != len(items) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(items))
	}
	for i, item := range items {
		if results[i].Item != item {
			t.Fatalf("results[%d].Item = %q, want %q", i, results[i].Item, item)
		}
		if results[i].Value != "done:"+item {
			t.Fatalf("results[%d].Value = %q", i, results[i].Value)
		}
	}
}

func TestRunEmptyItems(t *testing.T) {
	called := false
	results, err := Run(context.Background(), nil, func(ctx context.Context, item string) (int, error) {
		called = true
		return 0, nil
	})
	if !errors.Is(err, ErrNoItems) {
		t.Fatalf("Run() error = %v, want ErrNoItems", err)
	}
	if results != nil {
		t.Fatalf("results = %v, want nil", results)
	}
	if called {
		t.Fatal("fn must not run for an empty batch")
	}
}

func TestRunPartialFailureDoesNotAbortBatch(t *testing.T) {
	items := []string{"a", "b", "c", "d"}
	results, err := Run(context.Background(), items, func(ctx context.Context, item string) (int, error) {
		if item == "b" {
			return 0, fmt.Errorf("boom %s", item)
		}
		return len(item), nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := Succeeded(results); got != 3 {
		t.Fatalf("Succeeded() = %d, want 3", got)
	}
	if results[1].OK() || results[1].Err.Error() != "boom b" {
		t.Fatalf("results[1] = %#v, want failure", results[1])
	}
	if !results[3].OK() {
		t.Fatalf("results[3] = %#v, want success", results[3])
	}
}

func TestRunRunsItemsConcurrently(t *testing.T) {
	const n = 8
	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("pkg-%d", i)
	}

	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	go func() {
		deadline := time.After(2 * time.Second)
		for peak.Load() < n {
			select {
			case <-deadline:
				close(release)
				return
			default:
				time.Sleep(time.Millisecond)
			}
		}
		close(release)
	}()

	_, err := Run(context.Background(), items, func(ctx context.Context, item string) (struct{}, error) {
		cur := inFlight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := peak.Load(); got != n {
		t.Fatalf("peak concurrency = %d, want %d", got, n)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	results, err := Run(context.Background(), []string{"ok", "bad"}, func(ctx context.Context, item string) (string, error) {
		if item == "bad" {
			panic("unexpected payload")
		}
		return item, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !results[0].OK() {
		t.Fatalf("results[0] = %#v, want success", results[0])
	}
	if results[1].OK() {
		t.Fatal("results[1] should be a failure")
	}
}

func TestRunItemTimeout(t *testing.T) {
	results, err := Run(context.Background(), []string{"hang", "quick"}, func(ctx context.Context, item string) (string, error) {
		if item == "hang" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return item, nil
	}, WithItemTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !errors.Is(results[0].Err, ErrItemTimeout) {
		t.Fatalf("results[0].Err = %v, want ErrItemTimeout", results[0].Err)
	}
	if got := Reason(results[0].Err); got != "request timed out" {
		t.Fatalf("Reason() = %q", got)
	}
	if !results[1].OK() {
		t.Fatalf("results[1] = %#v, want success", results[1])
	}
}

type reasonErr struct{}

func (reasonErr) Error() string  { return "npm: GET /x: status 404" }
func (reasonErr) Reason() string { return "package not found" }

func TestReason(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: errors.New("connection refused\nretry later"), want: "connection refused retry later"},
		{name: "reasoner", err: fmt.Errorf("wrapped: %w", reasonErr{}), want: "package not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Reason(tt.err); got != tt.want {
				t.Fatalf("Reason() = %q, want %q", got, tt.want)
			}
		})
	}
}
