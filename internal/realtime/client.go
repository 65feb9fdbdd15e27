package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/live-polling/backend/internal/rooms"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

var errMalformedPayload = errors.New("malformed payload")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single WebSocket connection. Its identity binding
// (room, role, name) lives server-side in the room service; the client
// is addressed purely by its ID.
type Client struct {
	ID      string
	hub     *Hub
	service *rooms.Service
	conn    *websocket.Conn
	logger  *zap.Logger

	send   chan WSMessage
	mu     sync.Mutex
	closed bool
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, service *rooms.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:      uuid.New().String(),
			hub:     hub,
			service: service,
			conn:    conn,
			logger:  logger,
			send:    make(chan WSMessage, 256),
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// enqueue queues a message for delivery, dropping it when the client's
// buffer is full or the client is already shutting down.
func (c *Client) enqueue(msg WSMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		// buffer full, skip
	}
}

// shutdown closes the send channel; writePump flushes what is queued,
// writes the close frame and tears the connection down.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) readPump() {
	defer func() {
		c.service.HandleDisconnect(c.ID)
		c.hub.Unregister(c)
		c.shutdown()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg WSMessage) {
	switch msg.Event {
	case "join_as_teacher":
		var p struct {
			RoomID      string `json:"room_id"`
			TeacherName string `json:"teacher_name"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.sendError(rooms.EventJoinError, errMalformedPayload)
			return
		}
		if err := c.service.JoinTeacher(c.ID, p.RoomID, p.TeacherName); err != nil {
			c.sendError(rooms.EventJoinError, err)
		}

	case "join_as_student":
		var p struct {
			RoomID string `json:"room_id"`
			Name   string `json:"name"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.sendError(rooms.EventJoinError, errMalformedPayload)
			return
		}
		if err := c.service.JoinStudent(c.ID, p.RoomID, p.Name); err != nil {
			c.sendError(rooms.EventJoinError, err)
		}

	case "create_poll":
		var req rooms.CreatePollRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			c.sendError(rooms.EventPollError, errMalformedPayload)
			return
		}
		if err := c.service.CreatePoll(c.ID, req); err != nil {
			c.sendError(rooms.EventPollError, err)
		}

	case "submit_answer":
		var p struct {
			OptionIndex int `json:"option_index"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.sendError(rooms.EventAnswerError, errMalformedPayload)
			return
		}
		if err := c.service.SubmitAnswer(c.ID, p.OptionIndex); err != nil {
			c.sendError(rooms.EventAnswerError, err)
		}

	case "remove_student":
		var p struct {
			ClientID string `json:"client_id"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.sendError(rooms.EventPollError, errMalformedPayload)
			return
		}
		if err := c.service.RemoveStudent(c.ID, p.ClientID); err != nil {
			c.sendError(rooms.EventPollError, err)
		}

	case "send_message":
		var p struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.logger.Debug("chat payload rejected", zap.String("client_id", c.ID), zap.Error(err))
			return
		}
		if err := c.service.SendChat(c.ID, p.Text); err != nil {
			c.logger.Debug("chat rejected", zap.String("client_id", c.ID), zap.Error(err))
		}

	case "get_participants":
		list, err := c.service.Participants(c.ID)
		if err != nil {
			c.logger.Debug("participants rejected", zap.String("client_id", c.ID), zap.Error(err))
			return
		}
		c.hub.ToClient(c.ID, rooms.EventParticipants, list)

	case "get_poll_history":
		history, err := c.service.PollHistory(c.ID)
		if err != nil {
			c.logger.Debug("history rejected", zap.String("client_id", c.ID), zap.Error(err))
			return
		}
		c.hub.ToClient(c.ID, rooms.EventPollHistory, history)

	default:
		// ignore
	}
}

func (c *Client) sendError(event string, err error) {
	c.hub.ToClient(c.ID, event, rooms.Notice{Message: err.Error()})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
