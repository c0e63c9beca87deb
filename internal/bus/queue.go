package bus

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/logger"
)

var (
	ErrUnknownSession = errors.New("unknown session route")
	ErrSessionEnded   = errors.New("session route ended")
	ErrConnectionLost = errors.New("connection lost")
)

// Endpoint is one party's live connection.
type Endpoint interface {
	Send(Frame) error
	Close() error
}

type party struct {
	ep       Endpoint
	presence Presence
	pending  []Frame
}

// route is the pair of endpoints for one session.
type route struct {
	mu      sync.Mutex
	parties map[Role]*party
	ended   bool
	last    Frame
}

// Bus provides routing between sessions and their party endpoints.
// Presence changes and inbound chat are published on Events.
type Bus struct {
	Events chan Event

	mu         sync.RWMutex
	routes     map[string]*route
	queueLimit int
	done       chan struct{}
	closeOnce  sync.Once
	log        *logger.Logger
}

// Config configures a Bus.
type Config struct {
	QueueLimit  int // frames kept per disconnected party (default 256)
	EventBuffer int // Events channel capacity (default 256)
	Logger      *logger.Logger
}

// New creates a bus.
func New(cfg Config) *Bus {
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = 256
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewComponentLogger("bus")
	}
	return &Bus{
		Events:     make(chan Event, cfg.EventBuffer),
		routes:     make(map[string]*route),
		queueLimit: cfg.QueueLimit,
		done:       make(chan struct{}),
		log:        cfg.Logger,
	}
}

// Open registers a route for a new session.
func (b *Bus) Open(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.routes[sessionID]; ok {
		return
	}
	b.routes[sessionID] = &route{parties: map[Role]*party{
		RoleBuyer:  {presence: Absent},
		RoleSeller: {presence: Absent},
	}}
}

func (b *Bus) route(sessionID string) (*route, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.routes[sessionID]
	if !ok {
		return nil, errors.Wrap(ErrUnknownSession, sessionID)
	}
	return r, nil
}

// Attach connects ep as role. The endpoint first receives "connected", then
// frames queued while the party was away, in order. A previous endpoint for
// the same role is closed and replaced. Attaching to an ended route delivers
// the final frame and closes ep.
func (b *Bus) Attach(sessionID string, role Role, ep Endpoint) error {
	r, err := b.route(sessionID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.ended {
		last := r.last
		r.mu.Unlock()
		ep.Send(last)
		ep.Close()
		return ErrSessionEnded
	}

	p := r.parties[role]
	if p.ep != nil && p.ep != ep {
		p.ep.Close()
	}
	p.ep = ep
	p.presence = Connected

	payload := map[string]any{"sessionId": sessionID, "role": role}
	if role == RoleBuyer {
		payload["sellerPresence"] = r.parties[RoleSeller].presence
	}
	b.deliver(r, sessionID, role, Frame{Type: FrameConnected, Payload: payload})
	pending := p.pending
	p.pending = nil
	for _, f := range pending {
		b.deliver(r, sessionID, role, f)
	}
	if role == RoleSeller {
		b.deliverPresence(r, sessionID, FrameSellerOnline)
	} else if r.parties[RoleSeller].presence == Connected {
		b.deliver(r, sessionID, RoleBuyer, Frame{Type: FrameSellerOnline})
	}
	connected := p.presence == Connected
	r.mu.Unlock()

	if connected {
		b.publish(Event{SessionID: sessionID, Role: role, Kind: EventJoined})
	}
	return nil
}

// Detach marks role as disconnected if ep is still its current endpoint.
func (b *Bus) Detach(sessionID string, role Role, ep Endpoint) {
	r, err := b.route(sessionID)
	if err != nil {
		return
	}
	r.mu.Lock()
	p := r.parties[role]
	if p.ep != ep || p.ep == nil {
		r.mu.Unlock()
		return
	}
	p.ep = nil
	p.presence = Disconnected
	ended := r.ended
	if role == RoleSeller && !ended {
		b.deliverPresence(r, sessionID, FrameSellerOffline)
	}
	r.mu.Unlock()

	if !ended {
		b.publish(Event{SessionID: sessionID, Role: role, Kind: EventLeft})
	}
}

// Receive publishes an inbound chat message from role.
func (b *Bus) Receive(sessionID string, role Role, content string) error {
	r, err := b.route(sessionID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	ended := r.ended
	r.mu.Unlock()
	if ended {
		return ErrSessionEnded
	}
	b.publish(Event{SessionID: sessionID, Role: role, Kind: EventMessage, Content: content})
	return nil
}

// Send delivers f to role, queueing it while the party is not connected.
func (b *Bus) Send(sessionID string, role Role, f Frame) error {
	r, err := b.route(sessionID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return ErrSessionEnded
	}
	b.deliver(r, sessionID, role, f)
	return nil
}

// Broadcast sends f to both parties.
func (b *Bus) Broadcast(sessionID string, f Frame) error {
	r, err := b.route(sessionID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return ErrSessionEnded
	}
	b.deliver(r, sessionID, RoleBuyer, f)
	b.deliver(r, sessionID, RoleSeller, f)
	return nil
}

// End sends session_ended to every connected party and closes the route.
// Nothing is delivered on the route afterwards.
func (b *Bus) End(sessionID string, payload any) error {
	r, err := b.route(sessionID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return nil
	}
	final := Frame{Type: FrameSessionEnded, Payload: payload}
	for _, role := range []Role{RoleBuyer, RoleSeller} {
		p := r.parties[role]
		p.pending = nil
		if p.ep != nil {
			if err := p.ep.Send(final); err != nil {
				b.log.Debug("final frame not delivered", "session", sessionID, "role", role, "error", err)
			}
			p.ep.Close()
			p.ep = nil
			p.presence = Disconnected
		}
	}
	r.ended = true
	r.last = final
	return nil
}

// Remove forgets a route, closing any endpoints still attached.
func (b *Bus) Remove(sessionID string) {
	b.mu.Lock()
	r, ok := b.routes[sessionID]
	delete(b.routes, sessionID)
	b.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.parties {
		if p.ep != nil {
			p.ep.Close()
			p.ep = nil
		}
	}
	r.ended = true
}

// Presence reports both parties' connection status.
func (b *Bus) Presence(sessionID string) (map[Role]Presence, error) {
	r, err := b.route(sessionID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[Role]Presence{
		RoleBuyer:  r.parties[RoleBuyer].presence,
		RoleSeller: r.parties[RoleSeller].presence,
	}, nil
}

// Close stops event publication. Pending publishers return immediately.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// deliver writes f to role or queues it. Called with r.mu held.
// A failing endpoint is dropped and f is kept for redelivery.
func (b *Bus) deliver(r *route, sessionID string, role Role, f Frame) {
	p := r.parties[role]
	if p.ep != nil {
		err := p.ep.Send(f)
		if err == nil {
			return
		}
		b.log.Warn("endpoint send failed", "session", sessionID, "role", role, "error", errors.Wrap(ErrConnectionLost, err.Error()))
		p.ep.Close()
		p.ep = nil
		p.presence = Disconnected
		go b.publish(Event{SessionID: sessionID, Role: role, Kind: EventLeft})
	}
	if f.Type == FrameConnected || f.Type == FrameSellerOnline || f.Type == FrameSellerOffline {
		return
	}
	if len(p.pending) >= b.queueLimit {
		b.log.Warn("pending queue full, dropping oldest frame", "session", sessionID, "role", role)
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, f)
}

// deliverPresence tells the buyer about seller presence. Called with r.mu held.
func (b *Bus) deliverPresence(r *route, sessionID, frameType string) {
	if r.parties[RoleBuyer].ep != nil {
		b.deliver(r, sessionID, RoleBuyer, Frame{Type: frameType, Payload: map[string]any{"at": time.Now().UTC()}})
	}
}

func (b *Bus) publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case b.Events <- ev:
	case <-b.done:
	}
}
