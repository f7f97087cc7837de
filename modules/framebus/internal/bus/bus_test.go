package bus

import (
	"sync"
	"testing"
	"time"
)

type item struct {
	Seq uint64
}

// TestBasicPublishSubscribe verifies basic functionality.
func TestBasicPublishSubscribe(t *testing.T) {
	bus := New[item]()
	defer bus.Close()

	ch := make(chan item, 10)
	if err := bus.Subscribe("test", ch); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Publish(item{Seq: 1})

	select {
	case received := <-ch:
		if received.Seq != 1 {
			t.Errorf("Expected seq 1, got %d", received.Seq)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Timeout waiting for item")
	}
}

// TestNonBlockingPublish verifies Publish never blocks on a full channel.
func TestNonBlockingPublish(t *testing.T) {
	bus := New[item]()
	defer bus.Close()

	ch := make(chan item, 1)
	bus.Subscribe("slow", ch)

	done := make(chan bool)
	go func() {
		bus.Publish(item{Seq: 1}) // fills the buffer
		bus.Publish(item{Seq: 2}) // dropped
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Publish blocked (should be non-blocking)")
	}

	received := <-ch
	if received.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", received.Seq)
	}

	sub := bus.Stats().Subscribers["slow"]
	if sub.Sent != 1 || sub.Dropped != 1 {
		t.Errorf("Expected 1 sent / 1 dropped, got %d / %d", sub.Sent, sub.Dropped)
	}
}

// TestStatsAccuracy verifies the conservation law sent + dropped == published × subscribers.
func TestStatsAccuracy(t *testing.T) {
	bus := New[item]()
	defer bus.Close()

	bus.Subscribe("worker-1", make(chan item, 10))
	bus.Subscribe("worker-2", make(chan item, 1))
	bus.Subscribe("worker-3", make(chan item, 10))

	for i := uint64(1); i <= 5; i++ {
		bus.Publish(item{Seq: i})
	}

	stats := bus.Stats()
	if stats.TotalPublished != 5 {
		t.Errorf("Expected 5 published, got %d", stats.TotalPublished)
	}

	expected := stats.TotalPublished * uint64(len(stats.Subscribers))
	if got := stats.TotalSent + stats.TotalDropped; got != expected {
		t.Errorf("Conservation law violated: %d sent + %d dropped != %d",
			stats.TotalSent, stats.TotalDropped, expected)
	}

	if stats.Subscribers["worker-2"].Dropped != 4 {
		t.Errorf("worker-2 expected 4 drops, got %d", stats.Subscribers["worker-2"].Dropped)
	}
	if stats.Subscribers["worker-1"].Policy != DropNew {
		t.Errorf("worker-1 policy = %v, want drop_new", stats.Subscribers["worker-1"].Policy)
	}
}

func TestSubscribeErrors(t *testing.T) {
	bus := New[item]()
	defer bus.Close()

	if err := bus.Subscribe("test", make(chan item, 1)); err != nil {
		t.Fatalf("First subscribe failed: %v", err)
	}
	if err := bus.Subscribe("test", make(chan item, 1)); err != ErrSubscriberExists {
		t.Errorf("Expected ErrSubscriberExists, got %v", err)
	}
	if _, err := bus.SubscribeDropOld("test"); err != ErrSubscriberExists {
		t.Errorf("Expected ErrSubscriberExists for DropOld, got %v", err)
	}
	if err := bus.Subscribe("nil", nil); err != ErrNilChannel {
		t.Errorf("Expected ErrNilChannel, got %v", err)
	}
	if _, err := bus.SubscriberStats("missing"); err != ErrSubscriberNotFound {
		t.Errorf("Expected ErrSubscriberNotFound, got %v", err)
	}
}

// TestUnsubscribe verifies a removed subscriber receives nothing.
func TestUnsubscribe(t *testing.T) {
	bus := New[item]()
	defer bus.Close()

	ch := make(chan item, 1)
	bus.Subscribe("test", ch)

	if err := bus.Unsubscribe("test"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if err := bus.Unsubscribe("test"); err != ErrSubscriberNotFound {
		t.Errorf("Expected ErrSubscriberNotFound, got %v", err)
	}

	bus.Publish(item{Seq: 1})

	select {
	case <-ch:
		t.Error("Received item after unsubscribe")
	default:
	}

	if n := len(bus.Stats().Subscribers); n != 0 {
		t.Errorf("Expected 0 subscribers, got %d", n)
	}
}

// TestDropOldKeepsLatest verifies the holder overwrites unread items.
func TestDropOldKeepsLatest(t *testing.T) {
	bus := New[item]()
	defer bus.Close()

	h, err := bus.SubscribeDropOld("latest")
	if err != nil {
		t.Fatalf("SubscribeDropOld failed: %v", err)
	}

	if _, ok := h.TryReceive(); ok {
		t.Fatal("TryReceive on empty holder should return false")
	}

	for i := uint64(1); i <= 3; i++ {
		bus.Publish(item{Seq: i})
	}

	got, ok := h.TryReceive()
	if !ok || got.Seq != 3 {
		t.Fatalf("TryReceive = %v/%v, want seq 3", got, ok)
	}
	if _, ok := h.TryReceive(); ok {
		t.Error("Second TryReceive without new item should return false")
	}

	sub, _ := bus.SubscriberStats("latest")
	if sub.Sent != 3 || sub.Dropped != 2 {
		t.Errorf("Expected 3 sent / 2 dropped, got %d / %d", sub.Sent, sub.Dropped)
	}
	t.Logf("DropOld stats: sent=%d dropped=%d", sub.Sent, sub.Dropped)
}

// TestDropOldReceiveBlocks verifies Receive waits for a new item and wakes on close.
func TestDropOldReceiveBlocks(t *testing.T) {
	bus := New[item]()
	defer bus.Close()

	h, _ := bus.SubscribeDropOld("reader")

	got := make(chan item, 1)
	go func() {
		v, ok := h.Receive()
		if ok {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	bus.Publish(item{Seq: 7})

	select {
	case v := <-got:
		if v.Seq != 7 {
			t.Errorf("Receive returned seq %d, want 7", v.Seq)
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Receive did not wake on publish")
	}

	closed := make(chan bool, 1)
	go func() {
		_, ok := h.Receive()
		closed <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	bus.Unsubscribe("reader")

	select {
	case ok := <-closed:
		if ok {
			t.Error("Receive after close should return false")
		}
	case <-time.After(1 * time.Second):
		t.Fatal("Receive did not wake on unsubscribe")
	}
}

// TestConcurrentPublish verifies thread safety with multiple publishers.
func TestConcurrentPublish(t *testing.T) {
	bus := New[item]()
	defer bus.Close()

	bus.Subscribe("test", make(chan item, 1000))
	h, _ := bus.SubscribeDropOld("latest")
	defer h.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(item{Seq: uint64(id*100 + j)})
			}
		}(i)
	}
	wg.Wait()

	stats := bus.Stats()
	if stats.TotalPublished != 1000 {
		t.Errorf("Expected 1000 published, got %d", stats.TotalPublished)
	}
	sub := stats.Subscribers["test"]
	if sub.Sent+sub.Dropped != 1000 {
		t.Errorf("Expected 1000 total (sent+dropped), got %d", sub.Sent+sub.Dropped)
	}
}

// TestConcurrentSubscribe verifies publishing while subscribers come and go.
func TestConcurrentSubscribe(t *testing.T) {
	bus := New[item]()
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			bus.Publish(item{Seq: uint64(i)})
			time.Sleep(100 * time.Microsecond)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			id := string(rune('A' + i))
			bus.Subscribe(id, make(chan item, 10))
			time.Sleep(time.Millisecond)
			bus.Unsubscribe(id)
		}
	}()
	wg.Wait()

	if got := bus.Stats().TotalPublished; got != 100 {
		t.Errorf("Expected 100 published, got %d", got)
	}
}

// TestClosedBus verifies behavior after Close().
func TestClosedBus(t *testing.T) {
	bus := New[item]()
	bus.Subscribe("test", make(chan item, 1))
	h, _ := bus.SubscribeDropOld("latest")

	bus.Close()
	bus.Close() // idempotent

	if err := bus.Subscribe("new", make(chan item, 1)); err != ErrBusClosed {
		t.Errorf("Expected ErrBusClosed, got %v", err)
	}
	if err := bus.Unsubscribe("test"); err != ErrBusClosed {
		t.Errorf("Expected ErrBusClosed, got %v", err)
	}

	// Publish after close is a no-op
	bus.Publish(item{Seq: 1})
	if got := bus.Stats().TotalPublished; got != 0 {
		t.Errorf("Expected 0 published, got %d", got)
	}

	if _, ok := h.Receive(); ok {
		t.Error("Receive on a closed holder should return false")
	}
}
