package ble

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConnectCtxReturnsResult(t *testing.T) {
	released := make(chan int, 1)
	got, err := connectCtx(context.Background(),
		func() (int, error) { return 7, nil },
		func(v int) { released <- v },
	)
	if err != nil || got != 7 {
		t.Fatalf("connectCtx() = %d, %v, want 7, nil", got, err)
	}
	select {
	case v := <-released:
		t.Errorf("delivered connection %d was released", v)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestConnectCtxReturnsConnectError(t *testing.T) {
	want := errors.New("out of range")
	_, err := connectCtx(context.Background(),
		func() (int, error) { return 0, want },
		func(int) { t.Error("failed connect should not be released") },
	)
	if !errors.Is(err, want) {
		t.Errorf("connectCtx() error = %v, want %v", err, want)
	}
}

func TestConnectCtxReleasesLateConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	unblock := make(chan struct{})
	released := make(chan int, 1)

	done := make(chan error, 1)
	go func() {
		_, err := connectCtx(ctx,
			func() (int, error) {
				<-unblock
				return 42, nil
			},
			func(v int) { released <- v },
		)
		done <- err
	}()

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("connectCtx() error = %v, want context.Canceled", err)
	}

	// The connect completes after the caller gave up.
	close(unblock)
	select {
	case v := <-released:
		if v != 42 {
			t.Errorf("released %d, want 42", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("late connection was never released")
	}
}
