package registry

import (
	"sync"
	"testing"
)

type fakeHandle struct {
	mu           sync.Mutex
	disconnected int
	events       []uint32
}

func (f *fakeHandle) Notify(event uint32, payload []byte) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeHandle) Disconnect() error {
	f.mu.Lock()
	f.disconnected++
	f.mu.Unlock()
	return nil
}

func (f *fakeHandle) disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

func TestAttachEvictsPrevious(t *testing.T) {
	r := New()
	first := &fakeHandle{}
	second := &fakeHandle{}

	r.Attach(42, first)
	r.Attach(42, second)

	if got := first.disconnects(); got != 1 {
		t.Errorf("previous handle disconnects = %d, want 1", got)
	}
	if r.Get(42) != second {
		t.Error("second handle should own the pid")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestDetachOnlyRemovesOwnHandle(t *testing.T) {
	r := New()
	first := &fakeHandle{}
	second := &fakeHandle{}

	r.Attach(7, first)
	r.Attach(7, second)

	// The evicted handle's cleanup path runs late; it must not remove
	// its successor.
	r.Detach(7, first)
	if !r.Connected(7) {
		t.Fatal("successor handle was removed by stale detach")
	}

	r.Detach(7, second)
	if r.Connected(7) {
		t.Error("pid still connected after detach")
	}

	// Double detach is a no-op.
	r.Detach(7, second)
}

func TestKick(t *testing.T) {
	r := New()
	h := &fakeHandle{}
	r.Attach(99, h)

	if !r.Kick(99) {
		t.Error("Kick on connected pid = false, want true")
	}
	if h.disconnects() != 1 {
		t.Errorf("handle disconnects = %d, want 1", h.disconnects())
	}
	if r.Kick(99) {
		t.Error("Kick on unknown pid = true, want false")
	}
}

func TestKickAll(t *testing.T) {
	r := New()
	handles := []*fakeHandle{{}, {}, {}}
	for i, h := range handles {
		r.Attach(uint32(i+1), h)
	}

	if got := r.KickAll(); got != 3 {
		t.Errorf("KickAll() = %d, want 3", got)
	}
	for i, h := range handles {
		if h.disconnects() != 1 {
			t.Errorf("handle %d disconnects = %d, want 1", i, h.disconnects())
		}
	}
	if r.Count() != 0 {
		t.Errorf("Count() after KickAll = %d, want 0", r.Count())
	}
}

func TestSnapshot(t *testing.T) {
	r := New()
	for _, pid := range []uint32{10, 20, 30} {
		r.Attach(pid, &fakeHandle{})
	}

	pids := r.Snapshot()
	if len(pids) != 3 {
		t.Fatalf("Snapshot() len = %d, want 3", len(pids))
	}
	seen := make(map[uint32]bool)
	for _, pid := range pids {
		seen[pid] = true
	}
	for _, pid := range []uint32{10, 20, 30} {
		if !seen[pid] {
			t.Errorf("pid %d missing from snapshot", pid)
		}
	}
}

func TestConcurrentAttachKick(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		pid := uint32(i % 10)
		go func() {
			defer wg.Done()
			r.Attach(pid, &fakeHandle{})
		}()
		go func() {
			defer wg.Done()
			r.Kick(pid)
		}()
	}
	wg.Wait()
	r.KickAll()
	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
}
