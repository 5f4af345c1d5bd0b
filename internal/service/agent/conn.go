package agent

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zhouzirui/os1/backend/internal/model/agent"
)

// conn 是一条已建立的远端会话。
type conn struct {
	id   string
	ws   *websocket.Conn
	opts Options

	writeMu sync.Mutex

	events    chan agent.Event
	closed    chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	dec *decoder
}

func newConn(id string, ws *websocket.Conn, opts Options) *conn {
	return &conn{
		id:     id,
		ws:     ws,
		opts:   opts,
		events: make(chan agent.Event, opts.EventBuffer),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
		dec:    newDecoder(),
	}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Events() <-chan agent.Event { return c.events }

// Close 发送关闭帧并断开连接，等待读循环退出或 ctx 到期，不等待事件被消费。
func (c *conn) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		c.writeMu.Lock()
		deadline := time.Now().Add(c.opts.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			log.Printf("[agent] connection %s close frame failed: %v", c.id, werr)
		}
		c.writeMu.Unlock()

		err = c.ws.Close()
	})

	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (c *conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *conn) readLoop() {
	defer close(c.done)
	defer close(c.events)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				var closeErr *websocket.CloseError
				reason := ""
				if errors.As(err, &closeErr) {
					reason = closeErr.Text
				}
				log.Printf("[agent] connection %s closed by remote: %q", c.id, reason)
				c.emit(agent.Disconnected{Reason: reason})
				return
			}
			log.Printf("[agent] connection %s read failed: %v", c.id, err)
			c.emit(agent.Failure{Err: err})
			return
		}

		events, reply, err := c.dec.decode(data, time.Now())
		if err != nil {
			log.Printf("[agent] connection %s dropped malformed message: %v", c.id, err)
			continue
		}
		if reply != nil {
			if err := c.writeJSON(reply); err != nil {
				log.Printf("[agent] connection %s pong failed: %v", c.id, err)
			}
		}
		for _, ev := range events {
			if !c.emit(ev) {
				return
			}
		}
	}
}

func (c *conn) emit(ev agent.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.closed:
		return false
	}
}

// pingLoop 定期发送协议层 ping，写失败时退出，由读循环报告错误。
func (c *conn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteJSON(v)
}
