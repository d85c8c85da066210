package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSerialQueue_RunsInOrder(t *testing.T) {
	q := NewSerialQueue("test", nil)
	defer q.Close()
	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		q.Async(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	q.Sync(func() {})
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 100 {
		t.Fatalf("expected 100 tasks, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestSerialQueue_RecoversPanics(t *testing.T) {
	q := NewSerialQueue("panicky", nil)
	defer q.Close()
	q.Async(func() { panic("boom") })
	ran := false
	if !q.Sync(func() { ran = true }) || !ran {
		t.Fatalf("queue stopped after panic")
	}
}

func TestSerialQueue_CloseDrainsAndRejects(t *testing.T) {
	q := NewSerialQueue("closing", nil)
	var count int
	for i := 0; i < 10; i++ {
		q.Async(func() {
			time.Sleep(time.Millisecond)
			count++
		})
	}
	q.Close()
	if count != 10 {
		t.Fatalf("expected queued tasks to drain, ran %d", count)
	}
	if q.Async(func() {}) || q.Sync(func() {}) {
		t.Fatalf("closed queue accepted work")
	}
	q.Close()
}

func TestSerialQueue_FatalPanicsEscape(t *testing.T) {
	q := NewSerialQueue("fatal", nil)
	defer q.Close()
	cause := errors.New("bad frame")
	defer func() {
		f, ok := recover().(Fatal)
		if !ok || !errors.Is(f, cause) {
			t.Fatalf("expected Fatal wrapping cause, got %v", f)
		}
	}()
	q.run(func() { panic(Fatal{Err: cause}) })
	t.Fatal("fatal panic was absorbed")
}
