package syncengine

import (
	"context"
	"runtime"
	"testing"
	"time"
)

func TestCleanupUnsubscribesWithoutContextCancel(t *testing.T) {
	dispatcher := NewStatusDispatcher()

	baseline := runtime.NumGoroutine()

	cleanups := make([]func(), 0, 50)
	streams := make([]<-chan StatusEvent, 0, 50)
	for i := 0; i < 50; i++ {
		stream, cleanup := dispatcher.Subscribe(context.Background())
		streams = append(streams, stream)
		cleanups = append(cleanups, cleanup)
	}
	for _, cleanup := range cleanups {
		cleanup()
	}

	dispatcher.Publish(StatusEvent{State: StateCompleted})
	for _, stream := range streams {
		select {
		case event := <-stream:
			t.Fatalf("cleaned-up subscriber received %#v", event)
		default:
		}
	}

	// The watcher goroutines must wind down even though the background
	// context never cancels.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= baseline+2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("watcher goroutines did not exit: baseline %d, now %d", baseline, runtime.NumGoroutine())
}

func TestContextCancelUnsubscribes(t *testing.T) {
	dispatcher := NewStatusDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	stream, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		dispatcher.Publish(StatusEvent{State: StateSyncing})
		select {
		case <-stream:
			time.Sleep(10 * time.Millisecond)
			continue
		default:
		}
		return
	}
	t.Fatalf("subscriber still receiving after context cancel")
}

func TestCleanupIsIdempotent(t *testing.T) {
	dispatcher := NewStatusDispatcher()

	_, cleanup := dispatcher.Subscribe(context.Background())
	cleanup()
	cleanup()

	stream, second := dispatcher.Subscribe(context.Background())
	defer second()
	dispatcher.Publish(StatusEvent{State: StateSyncing, Pending: 1})
	select {
	case event := <-stream:
		if event.Pending != 1 {
			t.Fatalf("unexpected event %#v", event)
		}
	default:
		t.Fatalf("surviving subscriber must still receive events")
	}
}
