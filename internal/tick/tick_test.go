package tick

import (
	"slices"
	"sync"
	"testing"
	"time"
)

func TestWindow_BatchesWithinTick(t *testing.T) {
	w := NewWindow(5 * time.Millisecond)

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := range 3 {
		w.Schedule(func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	slices.Sort(got)
	if !slices.Equal(got, []int{0, 1, 2}) {
		t.Fatalf("got %v; want every callback of the tick", got)
	}
}

func TestWindow_BlockedCallbackDoesNotDelayOthers(t *testing.T) {
	w := NewWindow(time.Millisecond)
	block := make(chan struct{})
	defer close(block)
	done := make(chan struct{})

	w.Schedule(func() { <-block })
	w.Schedule(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second callback waited on the first")
	}
}

func TestWindow_NeverRunsInline(t *testing.T) {
	w := NewWindow(0)
	returned := make(chan struct{})
	ran := make(chan struct{})
	w.Schedule(func() {
		select {
		case <-returned:
		case <-time.After(time.Second):
			t.Error("callback ran inside Schedule")
		}
		close(ran)
	})
	close(returned)
	<-ran
}

func TestManual_Tick(t *testing.T) {
	m := NewManual()
	var order []string
	m.Schedule(func() {
		order = append(order, "a")
		m.Schedule(func() { order = append(order, "c") })
	})
	m.Schedule(func() { order = append(order, "b") })

	if m.Pending() != 2 {
		t.Fatalf("Pending = %d; want 2", m.Pending())
	}
	if n := m.Tick(); n != 3 {
		t.Fatalf("Tick ran %d; want 3", n)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("order = %v", order)
	}
}
