package gate

import (
	"sync"
	"testing"

	"moonlace-media/aurora/aurora-media-gate-server/pkg/infra"
)

func testDownloadGate(maxDownloads int) *DownloadGate {
	return ProvideDownloadGate(testConfig(3, maxDownloads), infra.ProvideLoggerFactory())
}

func TestAdmitUntilCapacity(t *testing.T) {
	g := testDownloadGate(5)

	for i := 0; i < 5; i++ {
		result := g.Admit("a.mp4", "10.0.0.1")
		if result.Status != StatusActive {
			t.Fatalf("admit %d: expected active, got %v", i, result.Status)
		}
	}

	result := g.Admit("b.mp4", "10.0.0.1")
	if result.Status != StatusQueued {
		t.Fatalf("expected queued over capacity, got %v", result.Status)
	}
	if result.Position != 1 {
		t.Fatalf("expected position 1, got %d", result.Position)
	}
}

func TestReleasePromotesImmediately(t *testing.T) {
	g := testDownloadGate(1)

	first := g.Admit("a.mp4", "10.0.0.1")
	if first.Status != StatusActive {
		t.Fatalf("expected first active, got %v", first.Status)
	}

	second := g.Admit("b.mp4", "10.0.0.2")
	if second.Status != StatusQueued || second.Position != 1 {
		t.Fatalf("expected second queued at 1, got %v position %d", second.Status, second.Position)
	}

	g.Release(first.SessionId)

	// No timer involved. The waiting head owns the slot right away.
	snapshot := g.Status()
	if snapshot.ActiveCount != 1 || snapshot.WaitingCount != 0 {
		t.Fatalf("expected immediate promotion, got %+v", snapshot)
	}
	if snapshot.Active[0].Filename != "b.mp4" {
		t.Fatalf("expected b.mp4 active, got %v", snapshot.Active[0].Filename)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	g := testDownloadGate(1)

	first := g.Admit("a.mp4", "10.0.0.1")
	g.Admit("b.mp4", "10.0.0.2")
	g.Admit("c.mp4", "10.0.0.3")

	// Completion and close can double-fire on the same session.
	g.Release(first.SessionId)
	g.Release(first.SessionId)

	snapshot := g.Status()
	if snapshot.ActiveCount != 1 {
		t.Fatalf("double release must not double promote, active %d", snapshot.ActiveCount)
	}
	if snapshot.WaitingCount != 1 {
		t.Fatalf("expected one session still waiting, got %d", snapshot.WaitingCount)
	}
	if snapshot.Active[0].Filename != "b.mp4" {
		t.Fatalf("expected b.mp4 active, got %v", snapshot.Active[0].Filename)
	}
}

func TestReleaseUnknownSessionIsNoop(t *testing.T) {
	g := testDownloadGate(1)

	result := g.Admit("a.mp4", "10.0.0.1")
	g.Release("dl-never-issued")

	snapshot := g.Status()
	if snapshot.ActiveCount != 1 {
		t.Fatalf("release of unknown id must not touch active set, got %d", snapshot.ActiveCount)
	}
	g.Release(result.SessionId)
}

func TestReleaseWaitingSessionDropsIt(t *testing.T) {
	g := testDownloadGate(1)

	first := g.Admit("a.mp4", "10.0.0.1")
	second := g.Admit("b.mp4", "10.0.0.2")
	third := g.Admit("c.mp4", "10.0.0.3")

	// Second caller went away before admission.
	g.Release(second.SessionId)
	g.Release(first.SessionId)

	snapshot := g.Status()
	if snapshot.ActiveCount != 1 || snapshot.WaitingCount != 0 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if snapshot.Active[0].Filename != "c.mp4" {
		t.Fatalf("expected c.mp4 promoted past the abandoned session, got %v", snapshot.Active[0].Filename)
	}
	g.Release(third.SessionId)
}

func TestDownloadFifoOrder(t *testing.T) {
	g := testDownloadGate(1)

	first := g.Admit("a.mp4", "10.0.0.1")
	files := []string{"b.mp4", "c.mp4", "d.mp4"}
	for _, name := range files {
		g.Admit(name, "10.0.0.2")
	}

	previous := first.SessionId
	for _, name := range files {
		g.Release(previous)
		snapshot := g.Status()
		if snapshot.Active[0].Filename != name {
			t.Fatalf("expected %v next, got %v", name, snapshot.Active[0].Filename)
		}
		g.mu.Lock()
		it := g.active.Iterator()
		it.Begin()
		it.Next()
		previous = it.Key().(SessionId)
		g.mu.Unlock()
	}
}

func TestSessionIdScopedPerRequest(t *testing.T) {
	g := testDownloadGate(5)

	first := g.Admit("a.mp4", "10.0.0.1")
	second := g.Admit("a.mp4", "10.0.0.1")
	if first.SessionId == second.SessionId {
		t.Fatalf("concurrent sessions for the same client and file must not collide")
	}
}

func TestCapacityInvariantUnderConcurrentAdmitRelease(t *testing.T) {
	g := testDownloadGate(5)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := g.Admit("a.mp4", "10.0.0.1")
			if snapshot := g.Status(); snapshot.ActiveCount > snapshot.MaxConcurrent {
				t.Errorf("capacity exceeded: %d > %d", snapshot.ActiveCount, snapshot.MaxConcurrent)
			}
			g.Release(result.SessionId)
		}()
	}
	wg.Wait()

	snapshot := g.Status()
	if snapshot.ActiveCount != 0 || snapshot.WaitingCount != 0 {
		t.Fatalf("sessions leaked: %+v", snapshot)
	}
}
