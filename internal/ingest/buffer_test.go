package ingest

import (
	"sync"
	"testing"
	"time"
)

func TestBoundedBuffer_BasicSendReceive(t *testing.T) {
	buf := NewBoundedBuffer[int](10)

	// Send some items
	for i := 0; i < 5; i++ {
		evicted, ok := buf.Send(i)
		if !ok {
			t.Fatalf("Send(%d) returned ok=false", i)
		}
		if evicted {
			t.Fatalf("Send(%d) evicted with room to spare", i)
		}
	}

	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	// Receive items
	for i := 0; i < 5; i++ {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}

	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}
}

func TestBoundedBuffer_DropsOldestWhenFull(t *testing.T) {
	buf := NewBoundedBuffer[int](5)

	// Fill to capacity
	for i := 0; i < 5; i++ {
		if evicted, _ := buf.Send(i); evicted {
			t.Fatalf("Send(%d) evicted before full", i)
		}
	}

	// Overflow: each send sheds the oldest entry
	for i := 5; i < 8; i++ {
		evicted, ok := buf.Send(i)
		if !ok {
			t.Fatalf("Send(%d) returned ok=false", i)
		}
		if !evicted {
			t.Errorf("Send(%d) did not evict on a full buffer", i)
		}
	}

	if buf.Len() != 5 {
		t.Errorf("Len() = %d, want 5", buf.Len())
	}

	stats := buf.Stats()
	if stats.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", stats.Dropped)
	}

	// The oldest three are gone; the newest five remain in order.
	expected := []int{3, 4, 5, 6, 7}
	for _, want := range expected {
		got, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive failed, expected %d", want)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestBoundedBuffer_BlockingReceive(t *testing.T) {
	buf := NewBoundedBuffer[int](10)

	received := make(chan int, 1)

	// Start goroutine that waits for data
	go func() {
		val, ok := buf.Receive()
		if ok {
			received <- val
		}
	}()

	// Give receiver time to start waiting
	time.Sleep(10 * time.Millisecond)

	// Send data
	buf.Send(42)

	// Should receive the value
	select {
	case val := <-received:
		if val != 42 {
			t.Errorf("received %d, want 42", val)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked receive")
	}
}

func TestBoundedBuffer_Close(t *testing.T) {
	buf := NewBoundedBuffer[int](10)

	// Send some items
	buf.Send(1)
	buf.Send(2)

	// Close
	buf.Close()

	// Send should be rejected after close
	if _, ok := buf.Send(3); ok {
		t.Error("Send should return ok=false after Close")
	}

	// Can still receive existing items
	val, ok := buf.TryReceive()
	if !ok || val != 1 {
		t.Errorf("TryReceive() = %d, %v; want 1, true", val, ok)
	}

	val, ok = buf.TryReceive()
	if !ok || val != 2 {
		t.Errorf("TryReceive() = %d, %v; want 2, true", val, ok)
	}

	// No more items
	_, ok = buf.TryReceive()
	if ok {
		t.Error("TryReceive should return false when empty and closed")
	}
}

func TestBoundedBuffer_CloseUnblocksReceive(t *testing.T) {
	buf := NewBoundedBuffer[int](10)

	done := make(chan bool, 1)

	go func() {
		_, ok := buf.Receive()
		done <- ok
	}()

	// Give receiver time to start waiting
	time.Sleep(10 * time.Millisecond)

	// Close should unblock the receiver
	buf.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Receive")
	}
}

func TestBoundedBuffer_ConcurrentSendReceive(t *testing.T) {
	buf := NewBoundedBuffer[int](64)
	const numItems = 1000

	var wg sync.WaitGroup

	// Sender closes when finished so the receiver can drain and exit.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			buf.Send(i)
		}
		buf.Close()
	}()

	received := make([]int, 0, numItems)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			val, ok := buf.Receive()
			if !ok {
				return
			}
			received = append(received, val)
		}
	}()

	wg.Wait()

	// Every item was either delivered or shed, never both or neither.
	stats := buf.Stats()
	if int64(len(received))+stats.Dropped != numItems {
		t.Errorf("received %d + dropped %d != sent %d", len(received), stats.Dropped, numItems)
	}

	// FIFO order survives eviction: delivered values strictly increase.
	for i := 1; i < len(received); i++ {
		if received[i] <= received[i-1] {
			t.Fatalf("order violated: received[%d]=%d after %d", i, received[i], received[i-1])
		}
	}
}

func TestBoundedBuffer_WrapAround(t *testing.T) {
	buf := NewBoundedBuffer[int](5)

	// Fill partially
	buf.Send(1)
	buf.Send(2)
	buf.Send(3)

	// Consume some
	buf.TryReceive() // removes 1
	buf.TryReceive() // removes 2

	// Add more - this wraps around
	buf.Send(4)
	buf.Send(5)
	buf.Send(6)
	buf.Send(7)

	// One more send exceeds capacity and sheds 3
	evicted, _ := buf.Send(8)
	if !evicted {
		t.Error("Send(8) should have evicted the oldest entry")
	}

	// Verify remaining items in order
	expected := []int{4, 5, 6, 7, 8}
	for _, want := range expected {
		got, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive failed, expected %d", want)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestBoundedBuffer_Stats(t *testing.T) {
	buf := NewBoundedBuffer[int](10)

	// Initial stats
	stats := buf.Stats()
	if stats.Count != 0 || stats.Capacity != 10 || stats.TotalReceived != 0 || stats.TotalSent != 0 {
		t.Errorf("initial stats incorrect: %+v", stats)
	}

	// After sends
	buf.Send(1)
	buf.Send(2)
	buf.Send(3)

	stats = buf.Stats()
	if stats.Count != 3 || stats.TotalReceived != 3 {
		t.Errorf("stats after sends: %+v", stats)
	}

	// After receives
	buf.TryReceive()
	buf.TryReceive()

	stats = buf.Stats()
	if stats.Count != 1 || stats.TotalSent != 2 {
		t.Errorf("stats after receives: %+v", stats)
	}
}

func TestNewBoundedBuffer_MinCapacity(t *testing.T) {
	// Capacity of 0 should be set to 1
	buf := NewBoundedBuffer[int](0)
	if buf.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1 for capacity 0", buf.Cap())
	}

	// Negative capacity should be set to 1
	buf = NewBoundedBuffer[int](-5)
	if buf.Cap() != 1 {
		t.Errorf("Cap() = %d, want 1 for negative capacity", buf.Cap())
	}
}
