package undo

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/revittco/mutacache/internal/eventbus"
)

type recorder struct {
	mu        sync.Mutex
	decisions map[string][]Decision
}

func newRecorder() *recorder {
	return &recorder{decisions: make(map[string][]Decision)}
}

func (r *recorder) handler(id string) Handler {
	return func(d Decision) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.decisions[id] = append(r.decisions[id], d)
	}
}

func (r *recorder) get(id string) []Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decisions[id]
}

func TestManager_ResolvePerMutation(t *testing.T) {
	m := NewManager(nil)
	rec := newRecorder()
	a, b := uuid.NewString(), uuid.NewString()

	if err := m.Register(Pending{ID: a, Resource: "posts", Operation: "update"}, rec.handler(a)); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(Pending{ID: b, Resource: "posts", Operation: "delete"}, rec.handler(b)); err != nil {
		t.Fatal(err)
	}

	if err := m.Resolve(b, Undo); err != nil {
		t.Fatalf("Resolve(b): %v", err)
	}
	if got := rec.get(b); len(got) != 1 || !got[0].IsUndo {
		t.Fatalf("b decisions = %v; want one undo", got)
	}
	if got := rec.get(a); len(got) != 0 {
		t.Fatalf("a must still be pending, got %v", got)
	}

	// Handlers are one-shot.
	if err := m.Resolve(b, Confirm); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Resolve err = %v; want ErrNotFound", err)
	}

	pending := m.ListPending()
	if len(pending) != 1 || pending[0].ID != a {
		t.Fatalf("ListPending = %+v; want only %s", pending, a)
	}
}

func TestManager_RegisterDuplicate(t *testing.T) {
	m := NewManager(nil)
	id := uuid.NewString()
	if err := m.Register(Pending{ID: id}, func(Decision) {}); err != nil {
		t.Fatal(err)
	}
	if err := m.Register(Pending{ID: id}, func(Decision) {}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v; want ErrDuplicate", err)
	}
}

func TestManager_EmitResolvesAllInOrder(t *testing.T) {
	m := NewManager(nil)
	var order []string
	for _, id := range []string{"first", "second", "third"} {
		_ = m.Register(Pending{ID: id}, func(d Decision) {
			if d.IsUndo {
				t.Errorf("%s got undo", id)
			}
			order = append(order, id)
		})
	}
	m.Once(func(Decision) { order = append(order, "once") })

	if n := m.Emit(Confirm); n != 4 {
		t.Fatalf("Emit invoked %d handlers; want 4", n)
	}
	want := []string{"first", "second", "third", "once"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v; want %v", order, want)
		}
	}
	if n := m.Emit(Confirm); n != 0 {
		t.Fatalf("second Emit invoked %d handlers; want 0", n)
	}
}

func TestManager_EmitUndoRunsNewestFirst(t *testing.T) {
	m := NewManager(nil)
	var order []string
	for _, id := range []string{"first", "second", "third"} {
		_ = m.Register(Pending{ID: id}, func(Decision) { order = append(order, id) })
	}
	m.Emit(Undo)
	want := []string{"third", "second", "first"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v; want %v", order, want)
		}
	}
}

func TestManager_AutoConfirm(t *testing.T) {
	m := NewManager(nil, WithAutoConfirm(10*time.Millisecond))
	done := make(chan Decision, 1)
	_ = m.Register(Pending{ID: "slow"}, func(d Decision) { done <- d })

	select {
	case d := <-done:
		if d.IsUndo {
			t.Fatal("auto decision must confirm")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for auto-confirm")
	}
	if _, ok := m.Get("slow"); ok {
		t.Fatal("expected auto-confirmed mutation to leave the pending set")
	}
}

func TestManager_ShutdownUndoes(t *testing.T) {
	bus := eventbus.New[Event]()
	events := bus.Subscribe()
	m := NewManager(bus)
	rec := newRecorder()

	_ = m.Register(Pending{ID: "a"}, rec.handler("a"))
	m.Shutdown()

	if got := rec.get("a"); len(got) != 1 || !got[0].IsUndo {
		t.Fatalf("decisions = %v; want one undo", got)
	}

	first := <-events
	second := <-events
	if first.Type != "pending" || second.Type != "resolved" {
		t.Fatalf("events = %s, %s; want pending, resolved", first.Type, second.Type)
	}
	if second.Pending.Status != StatusUndone || second.Pending.ResolvedBy != "shutdown" {
		t.Fatalf("resolved event = %+v", second.Pending)
	}
}
