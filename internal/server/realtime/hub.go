package realtime

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskmanager/internal/logging"
)

const (
	opQueueSize     = 256
	clientQueueSize = 32
)

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserID   int64
	Email    string
	Username string
}

// Client is one live connection as seen by the hub. Frames queued on send
// are written to the socket by the connection's write pump.
type Client struct {
	Identity
	send chan []byte
}

func NewClient(id Identity) *Client {
	return &Client{Identity: id, send: make(chan []byte, clientQueueSize)}
}

// Send exposes queued frames; it is closed when the hub drops the client.
func (c *Client) Send() <-chan []byte {
	return c.send
}

type opKind int

const (
	opDeliver opKind = iota
	opRegister
	opUnregister
	opJoin
	opLeave
)

// op is one unit of hub work. Membership changes and deliveries share a
// single queue so they are applied in the order they were submitted.
type op struct {
	kind    opKind
	client  *Client
	room    string // for opDeliver, empty means every client
	payload []byte
	// registered is closed once an opRegister has been applied.
	registered chan struct{}
}

// Hub owns the room multimap. All membership changes and deliveries run on
// the goroutine executing Run, so no locking is needed.
type Hub struct {
	logger logging.Logger
	now    func() time.Time
	ops    chan op
	done   chan struct{}

	clients map[*Client]map[string]struct{}
	rooms   map[string]map[*Client]struct{}
}

func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		now:     time.Now,
		ops:     make(chan op, opQueueSize),
		done:    make(chan struct{}),
		clients: make(map[*Client]map[string]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Run processes hub traffic until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return
		case o := <-h.ops:
			h.apply(ctx, o)
		}
	}
}

func (h *Hub) apply(ctx context.Context, o op) {
	switch o.kind {
	case opDeliver:
		h.deliver(ctx, o.room, o.payload)

	case opRegister:
		c := o.client
		h.clients[c] = make(map[string]struct{})
		h.join(c, UserRoom(c.UserID))
		close(o.registered)
		h.logger.Info(ctx, "client connected", "user_id", c.UserID, "username", c.Username)
		h.deliverEvent(ctx, EventUserConnected, presence(c), c.Username+" connected")

	case opUnregister:
		c := o.client
		if _, ok := h.clients[c]; ok {
			h.drop(c)
			h.logger.Info(ctx, "client disconnected", "user_id", c.UserID, "username", c.Username)
			h.deliverEvent(ctx, EventUserDisconnected, presence(c), c.Username+" disconnected")
		}

	case opJoin, opLeave:
		if _, ok := h.clients[o.client]; !ok {
			return
		}
		if o.kind == opJoin {
			h.join(o.client, o.room)
		} else {
			h.leave(o.client, o.room)
		}
	}
}

// enqueue blocks until the hub accepts o or stops.
func (h *Hub) enqueue(o op) bool {
	select {
	case h.ops <- o:
		return true
	case <-h.done:
		return false
	}
}

// Register adds c to the hub and its user room and returns once that has
// happened. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	registered := make(chan struct{})
	if !h.enqueue(op{kind: opRegister, client: c, registered: registered}) {
		return false
	}
	select {
	case <-registered:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	h.enqueue(op{kind: opUnregister, client: c})
}

// Join adds c to a named room. Per-user rooms are reserved and cannot be joined.
func (h *Hub) Join(c *Client, room string) bool {
	if !joinable(room) {
		return false
	}
	return h.enqueue(op{kind: opJoin, client: c, room: room})
}

func (h *Hub) Leave(c *Client, room string) {
	if !joinable(room) {
		return
	}
	h.enqueue(op{kind: opLeave, client: c, room: room})
}

func joinable(room string) bool {
	return room != "" && len(room) <= 128 && !strings.HasPrefix(room, "user_")
}

// NotifyUser queues an event for every connection of userID.
func (h *Hub) NotifyUser(userID int64, event string, data any, message string) {
	h.submit(UserRoom(userID), event, data, message)
}

// EmitToRoom queues an event for every connection in room.
func (h *Hub) EmitToRoom(room, event string, data any, message string) {
	if room == "" {
		return
	}
	h.submit(room, event, data, message)
}

// BroadcastAll queues an event for every connection.
func (h *Hub) BroadcastAll(event string, data any, message string) {
	h.submit("", event, data, message)
}

// submit never blocks the caller; when the queue is full the event is lost.
func (h *Hub) submit(room, event string, data any, message string) {
	payload, err := encode(newEnvelope(event, data, message, h.now()))
	if err != nil {
		h.logger.Error(context.Background(), "event dropped", "event", event, "error", err)
		return
	}

	select {
	case <-h.done:
	case h.ops <- op{kind: opDeliver, room: room, payload: payload}:
	default:
		h.logger.Warn(context.Background(), "event queue full, event dropped", "event", event, "room", room)
	}
}

// deliverEvent broadcasts from inside Run, bypassing the queue.
func (h *Hub) deliverEvent(ctx context.Context, event string, data any, message string) {
	payload, err := encode(newEnvelope(event, data, message, h.now()))
	if err != nil {
		h.logger.Error(ctx, "event dropped", "event", event, "error", err)
		return
	}
	h.deliver(ctx, "", payload)
}

func (h *Hub) deliver(ctx context.Context, room string, payload []byte) {
	var targets map[*Client]struct{}
	if room == "" {
		targets = make(map[*Client]struct{}, len(h.clients))
		for c := range h.clients {
			targets[c] = struct{}{}
		}
	} else {
		targets = h.rooms[room]
	}

	for c := range targets {
		select {
		case c.send <- payload:
		default:
			// a client that cannot keep up is disconnected
			h.logger.Warn(ctx, "client too slow, dropping", "user_id", c.UserID)
			h.drop(c)
		}
	}
}

func (h *Hub) join(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	h.clients[c][room] = struct{}{}
}

func (h *Hub) leave(c *Client, room string) {
	delete(h.clients[c], room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) drop(c *Client) {
	for room := range h.clients[c] {
		h.leave(c, room)
	}
	delete(h.clients, c)
	close(c.send)
}

func presence(c *Client) map[string]any {
	return map[string]any{"userId": c.UserID, "username": c.Username}
}
