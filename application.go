package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"moonlace-media/aurora/aurora-media-gate-server/pkg/client"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/config"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/gate"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/infra"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/library"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/msg"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/stream"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Application adapts HTTP requests to gate operations and decorates
// file transfers with admission and release. The gates know nothing
// about HTTP.
type Application struct {
	config       *config.Config
	viewingGate  *gate.ViewingGate
	downloadGate *gate.DownloadGate
	library      *library.Library
	rtspManager  *stream.Manager
	rtmpRelay    *stream.Relay
	hub          *client.Hub
	wsUpgrader   *websocket.Upgrader
	logger       *zap.SugaredLogger
}

func ProvideApplication(
	config *config.Config,
	viewingGate *gate.ViewingGate,
	downloadGate *gate.DownloadGate,
	library *library.Library,
	rtspManager *stream.Manager,
	rtmpRelay *stream.Relay,
	hub *client.Hub,
	loggerFactory *infra.LoggerFactory,
) *Application {
	return &Application{
		config:       config,
		viewingGate:  viewingGate,
		downloadGate: downloadGate,
		library:      library,
		rtspManager:  rtspManager,
		rtmpRelay:    rtmpRelay,
		hub:          hub,
		wsUpgrader:   &websocket.Upgrader{},
		logger:       loggerFactory.Create("Application").Sugar(),
	}
}

func (a *Application) Run() {
	a.viewingGate.Run()
	a.hub.Run()
	a.rtspManager.Run()
	a.rtmpRelay.Run()
}

func (a *Application) Shutdown() {
	a.viewingGate.Stop()
	a.hub.Stop()
	a.rtspManager.Stop()
	a.rtmpRelay.Stop()
}

func (a *Application) HandleJoinQueue(c echo.Context) error {
	result := a.viewingGate.Join(c.RealIP())
	return c.JSON(http.StatusOK, &msg.JoinResponse{
		Status:   string(result.Status),
		TicketId: string(result.TicketId),
		Position: result.Position,
		WaitTime: result.WaitSeconds,
	})
}

// HandleCheckTicket reports ticket state. An unknown or aged-out id
// answers 200 with status "expired". The client reacts by rejoining,
// it is not a server fault.
func (a *Application) HandleCheckTicket(c echo.Context) error {
	check := a.viewingGate.Check(gate.TicketId(c.Param("ticketId")))
	return c.JSON(http.StatusOK, &msg.CheckResponse{
		Status:        string(check.Status),
		TicketId:      string(check.TicketId),
		Position:      check.Position,
		WaitTime:      check.WaitSeconds,
		RemainingTime: check.RemainingSeconds,
	})
}

func (a *Application) HandleQueueStatus(c echo.Context) error {
	snapshot := a.viewingGate.Status()

	waitingTickets := make([]*msg.WaitingTicket, 0, len(snapshot.Waiting))
	for _, estimate := range snapshot.Waiting {
		waitingTickets = append(waitingTickets, &msg.WaitingTicket{
			Position:      estimate.Position,
			EstimatedWait: estimate.WaitSeconds,
		})
	}

	return c.JSON(http.StatusOK, &msg.QueueStatusResponse{
		Active:         snapshot.ActiveCount,
		Waiting:        snapshot.WaitingCount,
		MaxConcurrent:  snapshot.MaxConcurrent,
		AvgWaitSeconds: snapshot.AvgWaitSeconds,
		WaitingTickets: waitingTickets,
	})
}

// HandleWatchVideo streams a file to a viewer holding an active
// ticket. Byte ranges for seeking come free with echo's file serving.
func (a *Application) HandleWatchVideo(c echo.Context) error {
	if check := a.viewingGate.Check(gate.TicketId(c.QueryParam("ticketId"))); check.Status != gate.StatusActive {
		return c.JSON(http.StatusForbidden, &msg.ErrorResponse{Error: "viewing ticket missing or not active"})
	}

	path, err := a.library.Resolve(c.Param("filename"))
	if err != nil {
		return a.resolveError(c, err)
	}
	return c.File(path)
}

// HandleDownload decorates a transfer with download admission. The
// deferred release fires on every terminal outcome of the request:
// copy completed, copy failed, peer disconnected, or the queued 503
// below finished writing. That guarantee is what lets the gate get by
// without a session TTL.
func (a *Application) HandleDownload(c echo.Context) error {
	filename := c.Param("filename")
	path, err := a.library.Resolve(filename)
	if err != nil {
		return a.resolveError(c, err)
	}

	result := a.downloadGate.Admit(filename, c.RealIP())
	defer a.downloadGate.Release(result.SessionId)

	if result.Status == gate.StatusQueued {
		retryAfter := result.Position * 2
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))

		snapshot := a.downloadGate.Status()
		return c.JSON(http.StatusServiceUnavailable, &msg.DownloadQueuedResponse{
			Error:    "download queue full, retry later",
			Position: result.Position,
			QueueStatus: &msg.DownloadStats{
				ActiveCount:    snapshot.ActiveCount,
				WaitingCount:   snapshot.WaitingCount,
				MaxConcurrent:  snapshot.MaxConcurrent,
				AvgWaitSeconds: snapshot.AvgWaitSeconds,
			},
			RetryAfter: retryAfter,
		})
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.File(path)
}

func (a *Application) HandleDownloadStatus(c echo.Context) error {
	snapshot := a.downloadGate.Status()

	active := make([]*msg.ActiveDownloadEntry, 0, len(snapshot.Active))
	for _, entry := range snapshot.Active {
		active = append(active, &msg.ActiveDownloadEntry{
			Filename: entry.Filename,
			Ip:       entry.ClientAddress,
			Duration: entry.DurationSeconds,
		})
	}
	waiting := make([]*msg.WaitingDownloadEntry, 0, len(snapshot.Waiting))
	for _, entry := range snapshot.Waiting {
		waiting = append(waiting, &msg.WaitingDownloadEntry{
			Position: entry.Position,
			Filename: entry.Filename,
			WaitTime: entry.WaitSeconds,
		})
	}

	return c.JSON(http.StatusOK, &msg.DownloadStatusResponse{
		Active:  active,
		Waiting: waiting,
		Stats: &msg.DownloadStats{
			ActiveCount:    snapshot.ActiveCount,
			WaitingCount:   snapshot.WaitingCount,
			MaxConcurrent:  snapshot.MaxConcurrent,
			AvgWaitSeconds: snapshot.AvgWaitSeconds,
		},
	})
}

func (a *Application) HandleVideos(c echo.Context) error {
	videos, err := a.library.Videos()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &msg.VideoListResponse{Videos: videos, Count: len(videos)})
}

func (a *Application) HandleImages(c echo.Context) error {
	images, err := a.library.Images()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, &msg.ImageListResponse{Images: images, Count: len(images)})
}

func (a *Application) HandlePublicFiles(c echo.Context) error {
	files, err := a.library.PublicFiles()
	if err != nil {
		return err
	}

	entries := make([]*msg.PublicFileEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, &msg.PublicFileEntry{
			Name:        f.Name,
			Size:        f.Size,
			IsDirectory: f.IsDirectory,
			Modified:    f.Modified,
		})
	}
	return c.JSON(http.StatusOK, &msg.PublicListResponse{Files: entries, Count: len(entries)})
}

func (a *Application) HandleStreams(c echo.Context) error {
	statuses := a.rtspManager.Status()

	streams := make([]*msg.StreamEntry, 0, len(statuses))
	for _, status := range statuses {
		streams = append(streams, &msg.StreamEntry{
			Id:             status.Id,
			Name:           status.Name,
			Status:         status.Status,
			Playlist:       status.Playlist,
			UptimeSeconds:  status.UptimeSeconds,
			Restarts:       status.Restarts,
			Segments:       status.Segments,
			TargetDuration: status.TargetDuration,
		})
	}
	return c.JSON(http.StatusOK, &msg.StreamListResponse{Streams: streams, Count: len(streams)})
}

func (a *Application) HandleRtmpStreams(c echo.Context) error {
	statuses := a.rtmpRelay.Status()

	streams := make([]*msg.RtmpStreamEntry, 0, len(statuses))
	for _, status := range statuses {
		streams = append(streams, &msg.RtmpStreamEntry{
			Key:            status.Key,
			Status:         status.Status,
			Playlist:       status.Playlist,
			UptimeSeconds:  status.UptimeSeconds,
			Restarts:       status.Restarts,
			Segments:       status.Segments,
			TargetDuration: status.TargetDuration,
		})
	}
	return c.JSON(http.StatusOK, &msg.RtmpStreamListResponse{Streams: streams, Count: len(streams)})
}

func (a *Application) HandleWorkerStatus(c echo.Context) error {
	worker := a.rtmpRelay.Worker()
	return c.JSON(http.StatusOK, &msg.WorkerStatusResponse{
		Running:       worker.Running,
		ActiveStreams: worker.ActiveStreams,
		IngestPort:    worker.IngestPort,
	})
}

func (a *Application) HandleWsStats(c echo.Context) error {
	conn, err := a.wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	feedClient := client.NewClient(uuid.NewString(), c.RealIP(), conn, a.hub)
	a.logger.Infof("stats feed client connected ip[%v]", c.RealIP())
	a.hub.Register(feedClient)
	feedClient.Run()
	return nil
}

func (a *Application) resolveError(c echo.Context, err error) error {
	if errors.Is(err, library.ErrInvalidFilename) {
		return c.JSON(http.StatusBadRequest, &msg.ErrorResponse{Error: "invalid filename"})
	}
	if errors.Is(err, library.ErrNotFound) {
		return c.JSON(http.StatusNotFound, &msg.ErrorResponse{Error: "file not found"})
	}
	return err
}
