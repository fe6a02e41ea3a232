package gateway

import (
	"errors"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var errRateLimited = errors.New("event rate limit exceeded")

// Conn is one live websocket connection of a user. Its send queue is owned
// by the hub; the writer goroutine drains it.
type Conn struct {
	id      string
	user    string
	send    chan []byte
	joined  map[string]struct{} // guarded by Hub.mu
	limiter *rate.Limiter
	ws      *websocket.Conn
}

func newConn(userID string, buffer int, lim *rate.Limiter) *Conn {
	if buffer <= 0 {
		buffer = 1
	}
	return &Conn{
		id:      uuid.NewString(),
		user:    userID,
		send:    make(chan []byte, buffer),
		joined:  make(map[string]struct{}),
		limiter: lim,
	}
}

// ID is the connection id peers address in call signaling.
func (c *Conn) ID() string { return c.id }

func (c *Conn) User() string { return c.user }

func (c *Conn) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}
