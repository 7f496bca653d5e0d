package gate

import (
	"sync"
	"time"

	"moonlace-media/aurora/aurora-media-gate-server/pkg/config"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/infra"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"go.uber.org/zap"
)

type AdmitResult struct {
	Status    Status
	SessionId SessionId
	Position  int
}

type ActiveDownload struct {
	Filename        string
	ClientAddress   string
	DurationSeconds int
}

type WaitingDownload struct {
	Position    int
	Filename    string
	WaitSeconds int
}

type DownloadSnapshot struct {
	Active         []*ActiveDownload
	Waiting        []*WaitingDownload
	ActiveCount    int
	WaitingCount   int
	MaxConcurrent  int
	AvgWaitSeconds int
}

// DownloadGate bounds the number of in-flight byte-stream transfers.
// Unlike the viewing gate there is no TTL and no timer. Promotion is
// driven entirely by Release, so a freed slot is handed to the waiting
// head immediately.
//
// A session whose Release is never called occupies its slot forever.
// The HTTP layer upholds that contract by releasing on every terminal
// transfer event: completion, error and peer disconnect alike.
type DownloadGate struct {
	mu sync.Mutex

	// Sessions currently transferring. Key value: sessionId -> session.
	active *linkedhashmap.Map

	// Sessions waiting for a slot, in arrival order. Key value:
	// sessionId -> session.
	waiting *linkedhashmap.Map

	stats *admissionStats

	config *config.Config

	logger *zap.SugaredLogger
}

func ProvideDownloadGate(config *config.Config, loggerFactory *infra.LoggerFactory) *DownloadGate {
	return &DownloadGate{
		active:  linkedhashmap.New(),
		waiting: linkedhashmap.New(),
		stats:   newAdmissionStats(*config.AvgWaitWindowSize),
		config:  config,
		logger:  loggerFactory.Create("DownloadGate").Sugar(),
	}
}

// Admit starts a session for the transfer if a slot is free, otherwise
// appends it to the waiting sequence. A queued outcome is not an
// error. The HTTP layer reports it as 503 with retry guidance.
func (g *DownloadGate) Admit(filename, clientAddress string) *AdmitResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	session := &DownloadSession{
		SessionId:     newSessionId(clientAddress, filename),
		Filename:      filename,
		ClientAddress: clientAddress,
	}

	if g.active.Size() < *g.config.MaxDownloads {
		session.StartTime = now
		g.active.Put(session.SessionId, session)
		g.stats.record(0)

		g.logger.Infof("admitted session[%+v]", session)
		return &AdmitResult{
			Status:    StatusActive,
			SessionId: session.SessionId,
		}
	}

	ahead := g.waiting.Size()
	session.QueuedAt = now
	g.waiting.Put(session.SessionId, session)

	g.logger.Infof("queued session[%+v] position[%v]", session, ahead+1)
	return &AdmitResult{
		Status:    StatusQueued,
		SessionId: session.SessionId,
		Position:  ahead + 1,
	}
}

// Release removes the session no matter how the transfer ended and
// immediately promotes from the waiting head while capacity remains.
// Idempotent. Completion, error and close can race or double-fire, so
// releasing an unknown or already-released id is a no-op. Releasing an
// id that is still waiting drops it from the queue, which is the
// implicit cancellation for a caller that went away before admission.
func (g *DownloadGate) Release(sessionId SessionId) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if value, ok := g.active.Get(sessionId); ok {
		session := value.(*DownloadSession)
		g.active.Remove(sessionId)
		g.logger.Infof("released session[%+v] duration[%v]", session, time.Since(session.StartTime))
	} else if value, ok := g.waiting.Get(sessionId); ok {
		session := value.(*DownloadSession)
		g.waiting.Remove(sessionId)
		g.logger.Infof("abandoned queued session[%+v]", session)
	} else {
		g.logger.Debugf("release on unknown sessionId[%v]", sessionId)
	}

	g.promote()
}

func (g *DownloadGate) promote() {
	now := time.Now()
	for g.active.Size() < *g.config.MaxDownloads && g.waiting.Size() > 0 {
		it := g.waiting.Iterator()
		it.Begin()
		it.Next()
		session := it.Value().(*DownloadSession)

		g.waiting.Remove(session.SessionId)
		session.StartTime = now
		g.active.Put(session.SessionId, session)
		g.stats.record(now.Sub(session.QueuedAt))

		g.logger.Infof("promoted session[%+v] waited[%v]", session, now.Sub(session.QueuedAt))
	}
}

// Status is a read-only snapshot. Active entries report elapsed
// transfer time, waiting entries report elapsed wait.
func (g *DownloadGate) Status() *DownloadSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()

	active := make([]*ActiveDownload, 0, g.active.Size())
	it := g.active.Iterator()
	for it.Begin(); it.Next(); {
		session := it.Value().(*DownloadSession)
		active = append(active, &ActiveDownload{
			Filename:        session.Filename,
			ClientAddress:   session.ClientAddress,
			DurationSeconds: int(now.Sub(session.StartTime).Seconds()),
		})
	}

	waiting := make([]*WaitingDownload, 0, g.waiting.Size())
	position := 0
	it = g.waiting.Iterator()
	for it.Begin(); it.Next(); {
		session := it.Value().(*DownloadSession)
		position++
		waiting = append(waiting, &WaitingDownload{
			Position:    position,
			Filename:    session.Filename,
			WaitSeconds: int(now.Sub(session.QueuedAt).Seconds()),
		})
	}

	return &DownloadSnapshot{
		Active:         active,
		Waiting:        waiting,
		ActiveCount:    g.active.Size(),
		WaitingCount:   g.waiting.Size(),
		MaxConcurrent:  *g.config.MaxDownloads,
		AvgWaitSeconds: int(g.stats.avgWait().Seconds()),
	}
}
