package client

import (
	"time"

	"moonlace-media/aurora/aurora-media-gate-server/pkg/msg"

	"github.com/gorilla/websocket"
)

// Time allowed to write a message to the peer.
const writeWait = 10 * time.Second

// Client is a middleman between one websocket connection and the hub.
// The feed is one way. Inbound frames are read only to service the
// heartbeat.
type Client struct {
	id string

	ip string

	conn *websocket.Conn

	// Buffered channel of outbound messages.
	sendWsMessage chan *msg.WsMessage

	hub *Hub
}

func NewClient(id, ip string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		id:            id,
		ip:            ip,
		conn:          conn,
		sendWsMessage: make(chan *msg.WsMessage, 64),
		hub:           hub,
	}
}

func (c *Client) Run() {
	go c.readPump()
	go c.writePump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	// Heartbeat. Close connection if client does not respond to ping
	// for too long.
	pongWait := c.hub.config.PingInterval() * 5 / 2
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Errorf("id[%v] read err %v", c.id, err)
			}
			return
		}
		// Feed clients have nothing to say. Drop inbound frames.
	}
}

func (c *Client) writePump() {
	pingTicker := time.NewTicker(c.hub.config.PingInterval())

	defer func() {
		pingTicker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case wsMessage, ok := <-c.sendWsMessage:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteJSON(wsMessage); err != nil {
				c.hub.logger.Errorf("id[%v] write err %v", c.id, err)
				return
			}

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
