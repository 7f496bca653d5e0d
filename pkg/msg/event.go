package msg

import "time"

type EventCode uint

const (
	QueueStatsCode    EventCode = 1000
	DownloadStatsCode EventCode = 1001
)

// JoinResponse answers POST /api/queue/join. Position and WaitTime are
// zero when status is "granted".
type JoinResponse struct {
	Status   string `json:"status"`
	TicketId string `json:"ticketId"`
	Position int    `json:"position"`
	WaitTime int    `json:"waitTime"`
}

// CheckResponse answers GET /api/queue/check/:ticketId. WaitTime is
// recomputed from the live queue index on every check, so the
// countdown a client sees can move in either direction. It is an
// estimate, not a promise.
type CheckResponse struct {
	Status        string `json:"status"`
	TicketId      string `json:"ticketId"`
	Position      int    `json:"position,omitempty"`
	WaitTime      int    `json:"waitTime,omitempty"`
	RemainingTime int    `json:"remainingTime,omitempty"`
}

type WaitingTicket struct {
	Position      int `json:"position"`
	EstimatedWait int `json:"estimatedWait"`
}

type QueueStatusResponse struct {
	Active         int              `json:"active"`
	Waiting        int              `json:"waiting"`
	MaxConcurrent  int              `json:"maxConcurrent"`
	AvgWaitSeconds int              `json:"avgWaitSeconds"`
	WaitingTickets []*WaitingTicket `json:"waitingTickets"`
}

type ActiveDownloadEntry struct {
	Filename string `json:"filename"`
	Ip       string `json:"ip"`
	Duration int    `json:"duration"`
}

type WaitingDownloadEntry struct {
	Position int    `json:"position"`
	Filename string `json:"filename"`
	WaitTime int    `json:"waitTime"`
}

type DownloadStats struct {
	ActiveCount    int `json:"activeCount"`
	WaitingCount   int `json:"waitingCount"`
	MaxConcurrent  int `json:"maxConcurrent"`
	AvgWaitSeconds int `json:"avgWaitSeconds"`
}

type DownloadStatusResponse struct {
	Active  []*ActiveDownloadEntry  `json:"active"`
	Waiting []*WaitingDownloadEntry `json:"waiting"`
	Stats   *DownloadStats          `json:"stats"`
}

// DownloadQueuedResponse is the 503 body for a transfer that hit the
// concurrency cap. RetryAfter mirrors the Retry-After header.
type DownloadQueuedResponse struct {
	Error       string         `json:"error"`
	Position    int            `json:"position"`
	QueueStatus *DownloadStats `json:"queueStatus"`
	RetryAfter  int            `json:"retryAfter"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type VideoListResponse struct {
	Videos []string `json:"videos"`
	Count  int      `json:"count"`
}

type ImageListResponse struct {
	Images []string `json:"images"`
	Count  int      `json:"count"`
}

type PublicFileEntry struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	IsDirectory bool      `json:"isDirectory"`
	Modified    time.Time `json:"modified"`
}

type PublicListResponse struct {
	Files []*PublicFileEntry `json:"files"`
	Count int                `json:"count"`
}

type StreamEntry struct {
	Id             string  `json:"id"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	Playlist       string  `json:"playlist"`
	UptimeSeconds  int     `json:"uptimeSeconds"`
	Restarts       int     `json:"restarts"`
	Segments       uint    `json:"segments"`
	TargetDuration float64 `json:"targetDuration"`
}

type StreamListResponse struct {
	Streams []*StreamEntry `json:"streams"`
	Count   int            `json:"count"`
}

type RtmpStreamEntry struct {
	Key            string  `json:"key"`
	Status         string  `json:"status"`
	Playlist       string  `json:"playlist"`
	UptimeSeconds  int     `json:"uptimeSeconds"`
	Restarts       int     `json:"restarts"`
	Segments       uint    `json:"segments"`
	TargetDuration float64 `json:"targetDuration"`
}

type RtmpStreamListResponse struct {
	Streams []*RtmpStreamEntry `json:"streams"`
	Count   int                `json:"count"`
}

type WorkerStatusResponse struct {
	Running       bool `json:"running"`
	ActiveStreams int  `json:"activeStreams"`
	IngestPort    int  `json:"ingestPort"`
}

// Ws feed events reuse the polling payloads so the dashboard renders
// one shape regardless of transport.
type QueueStatsServerEvent struct {
	Queue *QueueStatusResponse `json:"queue"`
}

type DownloadStatsServerEvent struct {
	Downloads *DownloadStatusResponse `json:"downloads"`
}
