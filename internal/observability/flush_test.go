package observability

import (
	"context"
	"errors"
	"testing"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestFlushTelemetry_ClosesAll(t *testing.T) {
	var closed []string
	first := closerFunc(func() error {
		closed = append(closed, "first")
		return errors.New("boom")
	})
	second := closerFunc(func() error {
		closed = append(closed, "second")
		return nil
	})

	err := FlushTelemetry(context.Background(), nil, first, nil, second)
	if err == nil {
		t.Fatal("FlushTelemetry() error = nil, want close error")
	}
	if len(closed) != 2 {
		t.Errorf("closed = %v, want both closers called", closed)
	}
}

func TestFlushTelemetry_NoCloser(t *testing.T) {
	if err := FlushTelemetry(context.Background(), nil); err != nil {
		t.Errorf("FlushTelemetry() error = %v, want nil", err)
	}
}
