package event

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/outofforest/tilestream/types"
)

// Kind enumerates event types.
type Kind uint8

// Event kinds.
const (
	UpdateTriggered Kind = iota
	TileSetLoaded
	FrustumChanged
	TilesSelected
	ChangesScheduled
	TileSpawned
	TileWarmed
	TileHeated
	TileCooled
	TileFrozen
)

var kindNames = [...]string{
	UpdateTriggered:  "UpdateTriggered",
	TileSetLoaded:    "TileSetLoaded",
	FrustumChanged:   "FrustumChanged",
	TilesSelected:    "TilesSelected",
	ChangesScheduled: "ChangesScheduled",
	TileSpawned:      "TileSpawned",
	TileWarmed:       "TileWarmed",
	TileHeated:       "TileHeated",
	TileCooled:       "TileCooled",
	TileFrozen:       "TileFrozen",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// Event is the notification published on the channel.
type Event struct {
	Kind    Kind
	Source  string
	TileSet uuid.UUID
	Tiles   []types.TileIndex
}

// Handler reacts to events.
type Handler func(e Event)

// Subscription identifies registered handler.
type Subscription uint64

// Filter wraps handler so it receives only the events of one tile set.
func Filter(tileSet uuid.UUID, h Handler) Handler {
	return func(e Event) {
		if e.TileSet == tileSet {
			h(e)
		}
	}
}

type subscriber struct {
	ID      Subscription
	All     bool
	Kind    Kind
	Handler Handler
}

// New creates new event channel.
func New() *Channel {
	return &Channel{}
}

// Channel is the publish/subscribe bus. Handlers are invoked synchronously by Publish.
type Channel struct {
	mu          sync.RWMutex
	lastID      Subscription
	subscribers []subscriber
	forwards    []*Channel
}

// Subscribe registers handler for events of one kind.
func (c *Channel) Subscribe(kind Kind, h Handler) Subscription {
	return c.subscribe(subscriber{Kind: kind, Handler: h})
}

// SubscribeAll registers handler for events of all kinds.
func (c *Channel) SubscribeAll(h Handler) Subscription {
	return c.subscribe(subscriber{All: true, Handler: h})
}

// Unsubscribe removes handler. It returns false if subscription is unknown.
func (c *Channel) Unsubscribe(s Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.IndexFunc(c.subscribers, func(sub subscriber) bool {
		return sub.ID == s
	})
	if i < 0 {
		return false
	}
	c.subscribers = slices.Delete(c.subscribers, i, i+1)
	return true
}

// Forward makes every event published on c to be published on the target channel too.
func (c *Channel) Forward(to *Channel) error {
	if to == nil {
		return errors.New("target channel is nil")
	}
	if to == c {
		return errors.New("channel cannot be forwarded to itself")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.Contains(c.forwards, to) {
		return nil
	}
	c.forwards = append(c.forwards, to)
	return nil
}

// Unforward stops forwarding events to the target channel.
func (c *Channel) Unforward(to *Channel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.Index(c.forwards, to)
	if i < 0 {
		return false
	}
	c.forwards = slices.Delete(c.forwards, i, i+1)
	return true
}

// Publish delivers event to handlers of this channel and of all the channels it forwards to.
// Each channel delivers the event at most once, even if forwarding forms a cycle.
func (c *Channel) Publish(e Event) {
	visited := map[*Channel]struct{}{}
	queue := []*Channel{c}
	for len(queue) > 0 {
		ch := queue[0]
		queue = queue[1:]
		if _, exists := visited[ch]; exists {
			continue
		}
		visited[ch] = struct{}{}

		handlers, forwards := ch.snapshot(e.Kind)
		for _, h := range handlers {
			h(e)
		}
		queue = append(queue, forwards...)
	}
}

func (c *Channel) subscribe(sub subscriber) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastID++
	sub.ID = c.lastID
	c.subscribers = append(c.subscribers, sub)
	return sub.ID
}

func (c *Channel) snapshot(kind Kind) ([]Handler, []*Channel) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	handlers := make([]Handler, 0, len(c.subscribers))
	for _, sub := range c.subscribers {
		if sub.All || sub.Kind == kind {
			handlers = append(handlers, sub.Handler)
		}
	}
	return handlers, slices.Clone(c.forwards)
}
