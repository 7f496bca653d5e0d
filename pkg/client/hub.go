package client

import (
	"encoding/json"
	"sync"
	"time"

	"moonlace-media/aurora/aurora-media-gate-server/pkg/config"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/gate"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/infra"
	"moonlace-media/aurora/aurora-media-gate-server/pkg/msg"

	"github.com/emirpasic/gods/maps/hashmap"
	"go.uber.org/zap"
)

// Hub fans gate snapshots out to connected dashboard clients. The
// polling REST endpoints stay authoritative. The feed just saves the
// dashboard a request cycle. One goroutine owns the client map, so no
// lock is needed around it.
type Hub struct {
	// Registered clients. Key value: client.id -> client.
	clients *hashmap.Map

	// Register requests from new connections.
	register chan *Client

	// Unregister requests from clients whose pumps died.
	unregister chan *Client

	viewingGate  *gate.ViewingGate
	downloadGate *gate.DownloadGate

	config *config.Config

	logger *zap.SugaredLogger

	done     chan struct{}
	stopOnce sync.Once
}

func ProvideHub(viewingGate *gate.ViewingGate, downloadGate *gate.DownloadGate, config *config.Config, loggerFactory *infra.LoggerFactory) *Hub {
	return &Hub{
		clients:      hashmap.New(),
		register:     make(chan *Client, 64),
		unregister:   make(chan *Client, 64),
		viewingGate:  viewingGate,
		downloadGate: downloadGate,
		config:       config,
		logger:       loggerFactory.Create("Hub").Sugar(),
		done:         make(chan struct{}),
	}
}

func (h *Hub) Run() {
	go h.run()
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) run() {
	ticker := time.NewTicker(h.config.NotifyStatsInterval())
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.logger.Debugf("register client id[%v] ip[%v]", client.id, client.ip)
			h.clients.Put(client.id, client)

		case client := <-h.unregister:
			h.logger.Debugf("unregister client id[%v]", client.id)
			if _, ok := h.clients.Get(client.id); !ok {
				continue
			}
			h.removeClient(client)

		case <-ticker.C:
			h.broadcastStats()

		case <-h.done:
			for _, value := range h.clients.Values() {
				h.removeClient(value.(*Client))
			}
			h.logger.Infof("hub stopped")
			return
		}
	}
}

func (h *Hub) broadcastStats() {
	if h.clients.Size() == 0 {
		return
	}

	queueMessage, err := h.queueStatsMessage()
	if err != nil {
		h.logger.Errorf("cannot marshal QueueStatsServerEvent %v", err)
		return
	}
	downloadMessage, err := h.downloadStatsMessage()
	if err != nil {
		h.logger.Errorf("cannot marshal DownloadStatsServerEvent %v", err)
		return
	}

	for _, value := range h.clients.Values() {
		client := value.(*Client)
		select {
		case client.sendWsMessage <- queueMessage:
		default:
			// Send buffer full means the client is dead or stuck.
			h.logger.Warnf("id[%v] send channel is full, closing it", client.id)
			h.removeClient(client)
			continue
		}
		select {
		case client.sendWsMessage <- downloadMessage:
		default:
			h.logger.Warnf("id[%v] send channel is full, closing it", client.id)
			h.removeClient(client)
		}
	}
}

func (h *Hub) queueStatsMessage() (*msg.WsMessage, error) {
	snapshot := h.viewingGate.Status()

	waitingTickets := make([]*msg.WaitingTicket, 0, len(snapshot.Waiting))
	for _, estimate := range snapshot.Waiting {
		waitingTickets = append(waitingTickets, &msg.WaitingTicket{
			Position:      estimate.Position,
			EstimatedWait: estimate.WaitSeconds,
		})
	}

	rawEvent, err := json.Marshal(&msg.QueueStatsServerEvent{
		Queue: &msg.QueueStatusResponse{
			Active:         snapshot.ActiveCount,
			Waiting:        snapshot.WaitingCount,
			MaxConcurrent:  snapshot.MaxConcurrent,
			AvgWaitSeconds: snapshot.AvgWaitSeconds,
			WaitingTickets: waitingTickets,
		},
	})
	if err != nil {
		return nil, err
	}

	return &msg.WsMessage{
		EventCode: msg.QueueStatsCode,
		EventData: rawEvent,
	}, nil
}

func (h *Hub) downloadStatsMessage() (*msg.WsMessage, error) {
	snapshot := h.downloadGate.Status()

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

	rawEvent, err := json.Marshal(&msg.DownloadStatsServerEvent{
		Downloads: &msg.DownloadStatusResponse{
			Active:  active,
			Waiting: waiting,
			Stats: &msg.DownloadStats{
				ActiveCount:    snapshot.ActiveCount,
				WaitingCount:   snapshot.WaitingCount,
				MaxConcurrent:  snapshot.MaxConcurrent,
				AvgWaitSeconds: snapshot.AvgWaitSeconds,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return &msg.WsMessage{
		EventCode: msg.DownloadStatsCode,
		EventData: rawEvent,
	}, nil
}

func (h *Hub) removeClient(client *Client) {
	h.clients.Remove(client.id)
	close(client.sendWsMessage)
}
