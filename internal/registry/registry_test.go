package registry

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestOutboundQueueFIFO(t *testing.T) {
	q := NewOutboundQueue()
	q.Push([]byte("a"))
	q.Push([]byte("b"))

	msg, ok := q.Pop()
	if !ok || string(msg) != "a" {
		t.Fatalf("Pop() = %q, %v, want \"a\", true", msg, ok)
	}
	msg, ok = q.Pop()
	if !ok || string(msg) != "b" {
		t.Fatalf("Pop() = %q, %v, want \"b\", true", msg, ok)
	}
}

func TestOutboundQueueCloseUnblocksPop(t *testing.T) {
	q := NewOutboundQueue()
	done := make(chan struct{})
	var ok bool
	go func() {
		_, ok = q.Pop()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pop() did not unblock after Close()")
	}
	if ok {
		t.Fatal("Pop() ok = true after Close(), want false")
	}
}

func TestOutboundQueuePushAfterCloseDropped(t *testing.T) {
	q := NewOutboundQueue()
	q.Close()
	q.Push([]byte("dropped"))

	_, ok := q.Pop()
	if ok {
		t.Fatal("Pop() returned a message pushed after Close()")
	}
}

func TestRegisterLastWriterWinsAbortsPrior(t *testing.T) {
	r := New()
	var aborted int32

	r.Register(1, NewOutboundQueue(), func() { atomic.StoreInt32(&aborted, 1) })
	r.Register(1, NewOutboundQueue(), func() {})

	if atomic.LoadInt32(&aborted) != 1 {
		t.Fatal("prior connection's abort was not called on re-registration")
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := New()
	calls := 0
	r.Register(1, NewOutboundQueue(), func() { calls++ })

	r.Unregister(1)
	r.Unregister(1)

	if calls != 1 {
		t.Fatalf("abort called %d times, want 1", calls)
	}
	if r.Connected(1) {
		t.Fatal("Connected() = true after Unregister")
	}
}

func TestDisconnectTimerFiresAndClearsPending(t *testing.T) {
	r := New()
	fired := make(chan int64, 1)

	r.StartDisconnectTimer(1, 42, 10*time.Millisecond, func(playerID, matchID int64) {
		fired <- matchID
	})

	if matchID, ok := r.PendingResume(1); !ok || matchID != 42 {
		t.Fatalf("PendingResume() = %d, %v, want 42, true", matchID, ok)
	}

	select {
	case matchID := <-fired:
		if matchID != 42 {
			t.Fatalf("onExpiry matchID = %d, want 42", matchID)
		}
	case <-time.After(time.Second):
		t.Fatal("disconnect timer did not fire")
	}

	if _, ok := r.PendingResume(1); ok {
		t.Fatal("PendingResume() still true after timer expiry")
	}
}

func TestCancelDisconnectTimerPreventsExpiry(t *testing.T) {
	r := New()
	fired := make(chan struct{}, 1)

	r.StartDisconnectTimer(1, 42, 10*time.Millisecond, func(playerID, matchID int64) {
		fired <- struct{}{}
	})
	r.CancelDisconnectTimer(1)

	select {
	case <-fired:
		t.Fatal("onExpiry fired after cancellation")
	case <-time.After(30 * time.Millisecond):
	}

	if _, ok := r.PendingResume(1); ok {
		t.Fatal("PendingResume() true after cancellation")
	}
}

func TestCancelDisconnectTimerIdempotent(t *testing.T) {
	r := New()
	r.CancelDisconnectTimer(99) // no timer exists; must not panic
}
