package gate

import (
	"sync"
	"testing"
	"time"

	"moonlace-media/aurora/aurora-media-gate-server/pkg/config"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/infra"
)

func intPtr(v int) *int {
	return &v
}

func testConfig(maxViewers, maxDownloads int) *config.Config {
	return &config.Config{
		MaxViewers:                 intPtr(maxViewers),
		SessionTtlSeconds:          intPtr(1800),
		BaseWaitSeconds:            intPtr(2),
		PerUserDelaySeconds:        intPtr(1),
		MinWaitSeconds:             intPtr(1),
		MaxDownloads:               intPtr(maxDownloads),
		ReconcileIntervalSeconds:   intPtr(5),
		AvgWaitWindowSize:          intPtr(50),
		NotifyStatsIntervalSeconds: intPtr(5),
		LibraryCacheSeconds:        intPtr(30),
		PingIntervalSeconds:        intPtr(30),
	}
}

func testViewingGate(maxViewers int) *ViewingGate {
	return ProvideViewingGate(testConfig(maxViewers, 5), infra.ProvideLoggerFactory())
}

// forceExpire backdates an active ticket so the next reconcile removes it.
func forceExpire(t *testing.T, g *ViewingGate, ticketId TicketId) {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	value, ok := g.active.Get(ticketId)
	if !ok {
		t.Fatalf("ticketId[%v] not active", ticketId)
	}
	value.(*ViewingTicket).ExpiresAt = time.Now().Add(-time.Second)
}

func TestJoinGrantedUntilCapacity(t *testing.T) {
	g := testViewingGate(3)

	for i := 0; i < 3; i++ {
		result := g.Join("10.0.0.1")
		if result.Status != StatusGranted {
			t.Fatalf("join %d: expected granted, got %v", i, result.Status)
		}
		if result.Position != 0 || result.WaitSeconds != 0 {
			t.Fatalf("join %d: expected position 0 wait 0, got %d/%d", i, result.Position, result.WaitSeconds)
		}
	}

	result := g.Join("10.0.0.2")
	if result.Status != StatusQueued {
		t.Fatalf("expected queued over capacity, got %v", result.Status)
	}
	if snapshot := g.Status(); snapshot.ActiveCount != 3 || snapshot.WaitingCount != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
}

func TestJoinQueuedPositionAndWait(t *testing.T) {
	g := testViewingGate(1)

	if result := g.Join("10.0.0.1"); result.Status != StatusGranted {
		t.Fatalf("expected granted, got %v", result.Status)
	}

	result := g.Join("10.0.0.2")
	if result.Status != StatusQueued {
		t.Fatalf("expected queued, got %v", result.Status)
	}
	if result.Position != 1 {
		t.Fatalf("expected position 1, got %d", result.Position)
	}
	if result.WaitSeconds != 2 {
		t.Fatalf("expected wait 2, got %d", result.WaitSeconds)
	}
}

func TestReconcilePromotesAfterExpiry(t *testing.T) {
	g := testViewingGate(1)

	first := g.Join("10.0.0.1")
	second := g.Join("10.0.0.2")
	if second.Status != StatusQueued {
		t.Fatalf("expected queued, got %v", second.Status)
	}

	// A fresh ticket must survive the sweep untouched.
	g.Reconcile()
	if check := g.Check(first.TicketId); check.Status != StatusActive {
		t.Fatalf("expected first still active before TTL, got %v", check.Status)
	}
	if check := g.Check(second.TicketId); check.Status != StatusQueued {
		t.Fatalf("expected second still queued before TTL, got %v", check.Status)
	}

	forceExpire(t, g, first.TicketId)
	g.Reconcile()

	if check := g.Check(first.TicketId); check.Status != StatusExpired {
		t.Fatalf("expected first expired, got %v", check.Status)
	}
	check := g.Check(second.TicketId)
	if check.Status != StatusActive {
		t.Fatalf("expected second promoted to active, got %v", check.Status)
	}
	if check.RemainingSeconds <= 0 {
		t.Fatalf("promoted ticket should carry a fresh TTL, got remaining %d", check.RemainingSeconds)
	}
}

func TestCheckUnknownTicketIsExpired(t *testing.T) {
	g := testViewingGate(3)

	check := g.Check("vt-never-issued")
	if check.Status != StatusExpired {
		t.Fatalf("expected expired for unknown id, got %v", check.Status)
	}
}

func TestCheckRecomputesLiveEstimate(t *testing.T) {
	g := testViewingGate(1)

	holder := g.Join("10.0.0.1")
	first := g.Join("10.0.0.2")
	second := g.Join("10.0.0.3")
	third := g.Join("10.0.0.4")
	_ = first
	_ = third

	check := g.Check(second.TicketId)
	if check.Position != 2 {
		t.Fatalf("expected position 2, got %d", check.Position)
	}
	if check.WaitSeconds != 3 {
		t.Fatalf("expected wait max(1, 2+1*1)=3, got %d", check.WaitSeconds)
	}

	// Promoting the head shrinks the estimate at next check.
	forceExpire(t, g, holder.TicketId)
	g.Reconcile()

	check = g.Check(second.TicketId)
	if check.Status != StatusQueued {
		t.Fatalf("expected second still queued, got %v", check.Status)
	}
	if check.Position != 1 {
		t.Fatalf("expected position 1 after head promotion, got %d", check.Position)
	}
	if check.WaitSeconds != 2 {
		t.Fatalf("expected wait 2 after head promotion, got %d", check.WaitSeconds)
	}
}

func TestFifoPromotionOrder(t *testing.T) {
	g := testViewingGate(2)

	holders := []*JoinResult{g.Join("10.0.0.1"), g.Join("10.0.0.2")}
	queued := []*JoinResult{g.Join("10.0.1.1"), g.Join("10.0.1.2"), g.Join("10.0.1.3")}

	forceExpire(t, g, holders[0].TicketId)
	g.Reconcile()

	if check := g.Check(queued[0].TicketId); check.Status != StatusActive {
		t.Fatalf("expected earliest waiter promoted first, got %v", check.Status)
	}
	if check := g.Check(queued[1].TicketId); check.Status != StatusQueued || check.Position != 1 {
		t.Fatalf("expected second waiter at head, got %v position %d", check.Status, check.Position)
	}

	forceExpire(t, g, holders[1].TicketId)
	forceExpire(t, g, queued[0].TicketId)
	g.Reconcile()

	if check := g.Check(queued[1].TicketId); check.Status != StatusActive {
		t.Fatalf("expected second waiter promoted, got %v", check.Status)
	}
	if check := g.Check(queued[2].TicketId); check.Status != StatusActive {
		t.Fatalf("expected third waiter promoted into second free slot, got %v", check.Status)
	}
}

func TestExpiredTicketStaysExpired(t *testing.T) {
	g := testViewingGate(1)

	result := g.Join("10.0.0.1")
	forceExpire(t, g, result.TicketId)
	g.Reconcile()

	for i := 0; i < 3; i++ {
		if check := g.Check(result.TicketId); check.Status != StatusExpired {
			t.Fatalf("check %d: expected expired to stay expired, got %v", i, check.Status)
		}
	}

	// A new join must issue a fresh id, never reinstate the old one.
	next := g.Join("10.0.0.1")
	if next.TicketId == result.TicketId {
		t.Fatalf("ticket id reused after expiry")
	}
}

func TestStatusSnapshotEstimates(t *testing.T) {
	g := testViewingGate(1)

	g.Join("10.0.0.1")
	for i := 0; i < 3; i++ {
		g.Join("10.0.0.2")
	}

	snapshot := g.Status()
	if snapshot.ActiveCount != 1 || snapshot.WaitingCount != 3 || snapshot.MaxConcurrent != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	wantWaits := []int{2, 3, 4}
	for i, estimate := range snapshot.Waiting {
		if estimate.Position != i+1 {
			t.Fatalf("estimate %d: expected position %d, got %d", i, i+1, estimate.Position)
		}
		if estimate.WaitSeconds != wantWaits[i] {
			t.Fatalf("estimate %d: expected wait %d, got %d", i, wantWaits[i], estimate.WaitSeconds)
		}
	}
}

func TestCapacityInvariantUnderConcurrentJoins(t *testing.T) {
	g := testViewingGate(3)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Join("10.0.0.9")
			g.Reconcile()
			if snapshot := g.Status(); snapshot.ActiveCount > snapshot.MaxConcurrent {
				t.Errorf("capacity exceeded: %d > %d", snapshot.ActiveCount, snapshot.MaxConcurrent)
			}
		}()
	}
	wg.Wait()

	snapshot := g.Status()
	if snapshot.ActiveCount != 3 {
		t.Fatalf("expected full active set, got %d", snapshot.ActiveCount)
	}
	if snapshot.ActiveCount+snapshot.WaitingCount != 50 {
		t.Fatalf("tickets lost: active %d + waiting %d != 50", snapshot.ActiveCount, snapshot.WaitingCount)
	}
}

func TestMinWaitFloor(t *testing.T) {
	cfg := testConfig(1, 5)
	cfg.BaseWaitSeconds = intPtr(0)
	cfg.MinWaitSeconds = intPtr(1)
	g := ProvideViewingGate(cfg, infra.ProvideLoggerFactory())

	g.Join("10.0.0.1")
	result := g.Join("10.0.0.2")
	if result.WaitSeconds != 1 {
		t.Fatalf("expected floor wait 1, got %d", result.WaitSeconds)
	}
}

func TestRunStopIsIdempotent(t *testing.T) {
	g := testViewingGate(1)
	g.Run()
	g.Stop()
	g.Stop()
}
