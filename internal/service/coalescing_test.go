package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRequestCoalescer_SharesResult(t *testing.T) {
	rc := newRequestCoalescer[int](time.Second)
	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	var sharedCount atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, shared, err := rc.GetOrDo(context.Background(), "k", fn)
			if err != nil || v != 42 {
				t.Errorf("GetOrDo() = %d, %v", v, err)
			}
			if shared {
				sharedCount.Add(1)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("fn calls = %d, want 1", calls.Load())
	}
	if sharedCount.Load() != 3 {
		t.Errorf("shared callers = %d, want 3", sharedCount.Load())
	}
}

func TestRequestCoalescer_PropagatesError(t *testing.T) {
	rc := newRequestCoalescer[int](time.Second)
	want := errors.New("boom")
	_, _, err := rc.GetOrDo(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Errorf("GetOrDo() error = %v, want %v", err, want)
	}
	// A finished key starts a fresh computation.
	v, shared, err := rc.GetOrDo(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || v != 7 || shared {
		t.Errorf("second GetOrDo() = %d, shared=%v, err=%v", v, shared, err)
	}
}

func TestRequestCoalescer_TimeoutBoundsComputation(t *testing.T) {
	rc := newRequestCoalescer[int](20 * time.Millisecond)
	_, _, err := rc.GetOrDo(context.Background(), "k", func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("GetOrDo() error = %v, want DeadlineExceeded", err)
	}
}
