package gate

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/random"
)

type TicketId string

type SessionId string

type Status string

const (
	// First response to a viewer that got a free slot right away.
	StatusGranted Status = "granted"

	// Holding a slot right now.
	StatusActive Status = "active"

	// In the waiting sequence.
	StatusQueued Status = "queued"

	// Terminal. Unknown ids report expired too, so a client that lost
	// its ticket and one whose ticket aged out recover the same way:
	// rejoin.
	StatusExpired Status = "expired"
)

// ViewingTicket tracks one viewer from join to expiry. State is never
// stored on the ticket itself. A ticket is active, queued or expired
// depending on which gate structure currently holds it.
type ViewingTicket struct {
	TicketId TicketId

	// Origin IP of the requester. Informational only, never used to
	// enforce identity.
	ClientAddress string

	// Set when the ticket enters the waiting sequence.
	QueuedAt time.Time

	// Set when the ticket enters the active set.
	JoinedAt time.Time

	// JoinedAt + session TTL. Zero while the ticket is still queued.
	ExpiresAt time.Time
}

// DownloadSession tracks one byte-stream transfer. No expiry. The
// transfer ends deterministically when the copy completes, errors or
// the peer goes away, and the HTTP layer releases it then.
type DownloadSession struct {
	SessionId     SessionId
	Filename      string
	ClientAddress string

	// Set when the session enters the waiting sequence.
	QueuedAt time.Time

	// Set when the session enters the active set. Refreshed on
	// promotion so reported durations measure the transfer, not the
	// wait.
	StartTime time.Time
}

var ticketCounter uint64

// newTicketId embeds a counter and a timestamp so ids stay unique even
// when issued back to back within the same clock tick.
func newTicketId() TicketId {
	n := atomic.AddUint64(&ticketCounter, 1)
	return TicketId(fmt.Sprintf("vt-%d-%d-%s", time.Now().UnixNano(), n, random.String(8)))
}

// newSessionId scopes the id to client and filename so concurrent
// requests for the same file by the same client never collide.
func newSessionId(clientAddress, filename string) SessionId {
	return SessionId(fmt.Sprintf("dl-%s-%s-%s", clientAddress, filename, uuid.NewString()))
}
