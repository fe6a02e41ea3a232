package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"chatrelay/pkg/config"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/tracker"
)

type Options struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	EventRPS       float64
	EventBurst     int
	// OpTimeout bounds the handling of one inbound frame.
	OpTimeout time.Duration
	// CheckOrigin vets the Origin of upgrade requests. Nil keeps the
	// same-origin default.
	CheckOrigin func(ctx *fasthttp.RequestCtx) bool
}

// OptionsFromConfig maps the gateway config section onto Options.
func OptionsFromConfig(cfg config.GatewayConfig) Options {
	return Options{
		SendBuffer:     cfg.SendBuffer,
		WriteTimeout:   cfg.WriteTimeout.Duration(),
		PongWait:       cfg.PongWait.Duration(),
		MaxMessageSize: cfg.MaxMessageSize.Int64(),
		EventRPS:       cfg.EventRate.RPS,
		EventBurst:     cfg.EventRate.Burst,
	}
}

func (o *Options) defaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	if o.EventRPS <= 0 {
		o.EventRPS = 50
	}
	if o.EventBurst <= 0 {
		o.EventBurst = 100
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 10 * time.Second
	}
}

// Server upgrades authenticated requests and runs the connection pumps.
type Server struct {
	hub      *Hub
	disp     *Dispatcher
	opts     Options
	upgrader websocket.FastHTTPUpgrader

	base   context.Context
	cancel context.CancelFunc
}

func NewServer(hub *Hub, disp *Dispatcher, opts Options) *Server {
	opts.defaults()
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		hub:  hub,
		disp: disp,
		opts: opts,
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		base:   base,
		cancel: cancel,
	}
}

// Serve upgrades ctx to a websocket owned by userID. The caller has already
// authenticated userID.
func (s *Server) Serve(ctx *fasthttp.RequestCtx, userID string) {
	lim := rate.NewLimiter(rate.Limit(s.opts.EventRPS), s.opts.EventBurst)
	c := newConn(userID, s.opts.SendBuffer, lim)
	err := s.upgrader.Upgrade(ctx, func(ws *websocket.Conn) {
		c.ws = ws
		s.run(c)
	})
	if err != nil {
		logger.Warn("ws_upgrade_failed", "user", userID, "remote", ctx.RemoteAddr().String(), "error", err)
	}
}

// Close cancels in-flight handlers and drops every connection.
func (s *Server) Close() {
	s.cancel()
	s.hub.CloseAll()
}

func (s *Server) run(c *Conn) {
	s.hub.Register(c)
	done := make(chan struct{})
	go func() {
		s.writePump(c)
		close(done)
	}()
	s.readPump(c)
	s.hub.Unregister(c)
	<-done
}

func (s *Server) readPump(c *Conn) {
	ws := c.ws
	ws.SetReadLimit(s.opts.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws_read_failed", "conn", c.id, "error", err)
			}
			return
		}
		if out := s.handleFrame(c, data); out != nil {
			if s.hub.push([]*Conn{c}, out) == 0 {
				return
			}
		}
	}
}

func (s *Server) handleFrame(c *Conn, data []byte) []byte {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		return encodeError(env.ID, &tracker.Error{Kind: tracker.ErrInvalidArgument, Message: "malformed frame"})
	}
	if !c.allow() {
		logger.Warn("ws_rate_limited", "conn", c.id, "user", c.user, "event", env.Event)
		return encodeError(env.ID, errRateLimited)
	}
	ctx, cancel := context.WithTimeout(s.base, s.opts.OpTimeout)
	defer cancel()
	return s.disp.Handle(ctx, c, env)
}

func (s *Server) writePump(c *Conn) {
	ws := c.ws
	ping := time.NewTicker(s.opts.PongWait * 9 / 10)
	defer func() {
		ping.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("ws_write_failed", "conn", c.id, "error", err)
				return
			}
		case <-ping.C:
			_ = ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
