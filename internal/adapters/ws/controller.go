// Package ws is the command gateway: it upgrades connections, parses
// inbound command envelopes into orchestrator calls, and fans the
// orchestrator's events back out to room participants.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/khanhnq1406/lo-to-sub001/internal/game"
)

// Config bounds one connection's transport behavior.
type Config struct {
	ReadLimit  int64
	SendBuffer int
	RateLimit  int
	RateWindow time.Duration
}

func (c *Config) fill() {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 32768
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 20
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Second
	}
}

type Controller struct {
	cfg     Config
	orch    *game.Orchestrator
	limiter *RateLimiter

	mu    sync.RWMutex
	conns map[string]*conn
}

func NewController(cfg Config) *Controller {
	cfg.fill()
	return &Controller{
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateWindow),
		conns:   make(map[string]*conn),
	}
}

// Attach wires the orchestrator after construction; the orchestrator in
// turn holds this controller as its Notifier.
func (ctl *Controller) Attach(orch *game.Orchestrator) {
	ctl.orch = orch
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades one gin request into a command connection.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	token := c.GetString("client_token")
	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}
	conn := newConn(uuid.NewString(), token, sock, ctl.cfg.SendBuffer)
	sock.SetReadLimit(ctl.cfg.ReadLimit)

	ctl.mu.Lock()
	ctl.conns[conn.id] = conn
	ctl.mu.Unlock()
	log.Info().Str("module", "ws").Str("conn", conn.id).Msg("connection opened")

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ctl.writePump(ctx, conn)
		cancel()
	}()
	go func() {
		ctl.readPump(ctx, conn)
		cancel()
	}()
}

func (ctl *Controller) writePump(ctx context.Context, c *conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("module", "ws").Str("conn", c.id).Msg("write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, c *conn) {
	defer func() {
		ctl.drop(c)
		log.Info().Str("module", "ws").Str("conn", c.id).Msg("connection closed")
	}()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				return
			}
			ctl.dispatch(c, data)
		}
	}
}

// drop unregisters a connection and tells the orchestrator its seat went
// quiet, starting the reconnection grace period.
func (ctl *Controller) drop(c *conn) {
	ctl.mu.Lock()
	delete(ctl.conns, c.id)
	ctl.mu.Unlock()
	ctl.limiter.Forget(c.id)
	c.Close()
	ctl.orch.Disconnect(c.id)
}

// Unicast implements game.Notifier for a single connection.
func (ctl *Controller) Unicast(connID, event string, data map[string]any) {
	ctl.mu.RLock()
	c, ok := ctl.conns[connID]
	ctl.mu.RUnlock()
	if !ok {
		return
	}
	ctl.deliver(c, event, data)
}

// Broadcast implements game.Notifier for a whole room. Connections that
// cannot keep up just drop the message; the next event carries a full
// snapshot anyway.
func (ctl *Controller) Broadcast(connIDs []string, event string, data map[string]any) {
	payload, err := encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("event", event).Msg("encode failed")
		return
	}
	ctl.mu.RLock()
	targets := make([]*conn, 0, len(connIDs))
	for _, id := range connIDs {
		if c, ok := ctl.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	ctl.mu.RUnlock()
	for _, c := range targets {
		if err := c.TrySend(payload); err != nil {
			log.Warn().Str("module", "ws").Str("conn", c.id).Str("event", event).Msg("dropped event")
		}
	}
}

// Hangup implements game.Notifier for server-side removals. A close
// frame carries the reason, then the socket goes down; the read pump
// observes the close and unregisters the connection as usual.
func (ctl *Controller) Hangup(connID string) {
	ctl.mu.RLock()
	c, ok := ctl.conns[connID]
	ctl.mu.RUnlock()
	if !ok {
		return
	}
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "removed from room"), deadline)
	c.Close()
}

func (ctl *Controller) deliver(c *conn, event string, data map[string]any) {
	payload, err := encode(event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("event", event).Msg("encode failed")
		return
	}
	if err := c.TrySend(payload); err != nil {
		log.Warn().Str("module", "ws").Str("conn", c.id).Str("event", event).Msg("dropped event")
	}
}

func encode(event string, data map[string]any) ([]byte, error) {
	m := make(map[string]any, len(data)+1)
	for k, v := range data {
		m[k] = v
	}
	m["type"] = event
	return json.Marshal(m)
}
