package gate

import (
	"sync"
	"time"

	"moonlace-media/aurora/aurora-media-gate-server/pkg/config"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/infra"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"go.uber.org/zap"
)

// JoinResult is the outcome of a join request. Position and
// WaitSeconds are zero when the slot was granted right away.
type JoinResult struct {
	Status      Status
	TicketId    TicketId
	Position    int
	WaitSeconds int
}

// CheckResult is a point-in-time view of one ticket. Position and
// WaitSeconds are recomputed live from the current waiting index, so
// the estimate shrinks as viewers ahead get promoted or expire.
type CheckResult struct {
	Status           Status
	TicketId         TicketId
	Position         int
	WaitSeconds      int
	RemainingSeconds int
}

type WaitingEstimate struct {
	Position    int
	WaitSeconds int
}

type ViewingSnapshot struct {
	ActiveCount    int
	WaitingCount   int
	MaxConcurrent  int
	AvgWaitSeconds int
	Waiting        []*WaitingEstimate
}

// ViewingGate bounds the number of concurrent viewing sessions.
// Viewers over capacity are queued and promoted FIFO by the reconcile
// sweep as active sessions hit their TTL. There is no leave operation.
// A viewer that stops polling simply lets its ticket age out.
//
// Both maps are linkedhashmaps so a ticket is found by id in O(1)
// while insertion order keeps the promotion sequence strict. One lock
// serializes join/check/status/reconcile. The gates never block a
// caller, every operation is a synchronous state transition.
type ViewingGate struct {
	mu sync.Mutex

	// Tickets currently holding a slot. Key value: ticketId -> ticket.
	active *linkedhashmap.Map

	// Tickets waiting for a slot, in arrival order. Key value:
	// ticketId -> ticket.
	waiting *linkedhashmap.Map

	stats *admissionStats

	config *config.Config

	logger *zap.SugaredLogger

	done     chan struct{}
	stopOnce sync.Once
}

func ProvideViewingGate(config *config.Config, loggerFactory *infra.LoggerFactory) *ViewingGate {
	return &ViewingGate{
		active:  linkedhashmap.New(),
		waiting: linkedhashmap.New(),
		stats:   newAdmissionStats(*config.AvgWaitWindowSize),
		config:  config,
		logger:  loggerFactory.Create("ViewingGate").Sugar(),
		done:    make(chan struct{}),
	}
}

// Run starts the reconcile ticker. The ticker is owned by the gate,
// started here and stopped by Stop, never an ambient global.
func (g *ViewingGate) Run() {
	go g.reconcileWorker()
}

func (g *ViewingGate) Stop() {
	g.stopOnce.Do(func() {
		close(g.done)
	})
}

func (g *ViewingGate) reconcileWorker() {
	ticker := time.NewTicker(g.config.ReconcileInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.Reconcile()
		case <-g.done:
			g.logger.Infof("reconcile worker stopped")
			return
		}
	}
}

// Join admits the caller if a slot is free, otherwise appends it to
// the waiting sequence and returns its position and estimated wait.
func (g *ViewingGate) Join(clientAddress string) *JoinResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	ticket := &ViewingTicket{
		TicketId:      newTicketId(),
		ClientAddress: clientAddress,
	}

	if g.active.Size() < *g.config.MaxViewers {
		ticket.JoinedAt = now
		ticket.ExpiresAt = now.Add(g.config.SessionTtl())
		g.active.Put(ticket.TicketId, ticket)
		g.stats.record(0)

		g.logger.Infof("granted ticket[%+v]", ticket)
		return &JoinResult{
			Status:   StatusGranted,
			TicketId: ticket.TicketId,
		}
	}

	ahead := g.waiting.Size()
	ticket.QueuedAt = now
	g.waiting.Put(ticket.TicketId, ticket)

	g.logger.Infof("queued ticket[%+v] position[%v]", ticket, ahead+1)
	return &JoinResult{
		Status:      StatusQueued,
		TicketId:    ticket.TicketId,
		Position:    ahead + 1,
		WaitSeconds: g.estimateWait(ahead),
	}
}

// Check reports the current state of a ticket. An unknown id is not an
// error, it is the normal expired terminal state. Clients use it to
// detect session loss and rejoin. No side effects.
func (g *ViewingGate) Check(ticketId TicketId) *CheckResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	if value, ok := g.active.Get(ticketId); ok {
		ticket := value.(*ViewingTicket)
		remaining := time.Until(ticket.ExpiresAt)
		if remaining < 0 {
			remaining = 0
		}
		return &CheckResult{
			Status:           StatusActive,
			TicketId:         ticketId,
			RemainingSeconds: int(remaining.Seconds()),
		}
	}

	index := 0
	it := g.waiting.Iterator()
	for it.Begin(); it.Next(); {
		if it.Key().(TicketId) == ticketId {
			return &CheckResult{
				Status:      StatusQueued,
				TicketId:    ticketId,
				Position:    index + 1,
				WaitSeconds: g.estimateWait(index),
			}
		}
		index++
	}

	return &CheckResult{
		Status:   StatusExpired,
		TicketId: ticketId,
	}
}

// Status is a read-only snapshot for display, with a live wait
// estimate per waiting ticket.
func (g *ViewingGate) Status() *ViewingSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	waiting := make([]*WaitingEstimate, 0, g.waiting.Size())
	for i := 0; i < g.waiting.Size(); i++ {
		waiting = append(waiting, &WaitingEstimate{
			Position:    i + 1,
			WaitSeconds: g.estimateWait(i),
		})
	}

	return &ViewingSnapshot{
		ActiveCount:    g.active.Size(),
		WaitingCount:   g.waiting.Size(),
		MaxConcurrent:  *g.config.MaxViewers,
		AvgWaitSeconds: int(g.stats.avgWait().Seconds()),
		Waiting:        waiting,
	}
}

// Reconcile expires stale active sessions, then promotes waiting
// tickets into the freed slots in arrival order. It is the only path
// that removes expired entries or promotes viewers, so a promotion can
// lag the published estimate by up to one sweep interval. The gate
// lock keeps overlapping sweeps from interleaving.
func (g *ViewingGate) Reconcile() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()

	var expired []TicketId
	it := g.active.Iterator()
	for it.Begin(); it.Next(); {
		ticket := it.Value().(*ViewingTicket)
		if ticket.ExpiresAt.Before(now) {
			expired = append(expired, ticket.TicketId)
		}
	}
	for _, ticketId := range expired {
		g.active.Remove(ticketId)
		g.logger.Infof("expired ticketId[%v]", ticketId)
	}

	promoted := 0
	for g.active.Size() < *g.config.MaxViewers && g.waiting.Size() > 0 {
		it := g.waiting.Iterator()
		it.Begin()
		it.Next()
		ticket := it.Value().(*ViewingTicket)

		g.waiting.Remove(ticket.TicketId)
		ticket.JoinedAt = now
		ticket.ExpiresAt = now.Add(g.config.SessionTtl())
		g.active.Put(ticket.TicketId, ticket)
		g.stats.record(now.Sub(ticket.QueuedAt))

		g.logger.Infof("promoted ticket[%+v] waited[%v]", ticket, now.Sub(ticket.QueuedAt))
		promoted++
	}

	if len(expired) > 0 || promoted > 0 {
		g.logger.Infof("reconcile done, expired[%v] promoted[%v] active[%v] waiting[%v]",
			len(expired), promoted, g.active.Size(), g.waiting.Size())
	}
}

// estimateWait computes the published wait for the ticket at the given
// waiting index. Recomputed from the live index on every check, so the
// number can move non-monotonically when promotions happen unevenly.
// It is an approximation for the countdown UI, not a promise.
func (g *ViewingGate) estimateWait(index int) int {
	wait := *g.config.BaseWaitSeconds + index**g.config.PerUserDelaySeconds
	if wait < *g.config.MinWaitSeconds {
		wait = *g.config.MinWaitSeconds
	}
	return wait
}
