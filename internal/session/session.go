// Package session owns negotiation sessions: their state machine, message
// history and the worker jobs that advance them.
package session

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/bus"
	"github.com/dayuer/haggle-go/internal/decision"
	"github.com/dayuer/haggle-go/internal/listing"
	"github.com/dayuer/haggle-go/internal/strategy"
)

// Sender identifies who wrote a message.
type Sender string

const (
	SenderBuyerAgent Sender = "buyer-agent"
	SenderSeller     Sender = "seller"
	SenderSystem     Sender = "system"
)

// DecisionMeta records which tier produced an agent message.
type DecisionMeta struct {
	Action     strategy.Action `json:"action"`
	Price      int64           `json:"price,omitempty"`
	Tier       string          `json:"tier"`
	Confidence float64         `json:"confidence"`
}

// Message is one entry of the append-only history.
type Message struct {
	ID        string        `json:"id"`
	Seq       int64         `json:"seq"`
	Sender    Sender        `json:"sender"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Manual    bool          `json:"manual,omitempty"`
	Decision  *DecisionMeta `json:"decision,omitempty"`
}

// inbound is a seller message waiting for its decision. Recorded entries
// were already appended to history before a pause preempted them.
type inbound struct {
	content  string
	recorded bool
}

// Session is the aggregate for one negotiation. Fields are written only by
// the session's lane worker; mu lets snapshot readers run concurrently.
type Session struct {
	mu sync.RWMutex

	id       string
	listing  *listing.Listing
	config   strategy.Config
	state    State
	outcome  Outcome
	presence map[bus.Role]bus.Presence

	messages     []Message
	seq          int64
	currentOffer int64
	sellerOffers []int64
	lastCounter  int64
	turn         int
	opened       bool
	pending      []inbound

	finalPrice   int64
	endReason    string
	createdAt    time.Time
	updatedAt    time.Time
	endedAt      time.Time
	lastActivity time.Time
}

func newSession(id string, l *listing.Listing, cfg strategy.Config, now time.Time) *Session {
	return &Session{
		id:      id,
		listing: l,
		config:  cfg,
		state:   StateCreated,
		outcome: OutcomePending,
		presence: map[bus.Role]bus.Presence{
			bus.RoleBuyer:  bus.Absent,
			bus.RoleSeller: bus.Absent,
		},
		currentOffer: l.Price,
		sellerOffers: []int64{l.Price},
		createdAt:    now,
		updatedAt:    now,
		lastActivity: now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// transition is the only path that changes state.
func (s *Session) transition(to State, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(s.state, to) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", s.state, to)
	}
	s.state = to
	s.updatedAt = now
	return nil
}

// append adds a message with the next sequence number.
func (s *Session) append(sender Sender, content string, now time.Time, meta *DecisionMeta, manual bool) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	msg := Message{
		ID:        ulid.Make().String(),
		Seq:       s.seq,
		Sender:    sender,
		Content:   content,
		Timestamp: now,
		Manual:    manual,
		Decision:  meta,
	}
	s.messages = append(s.messages, msg)
	s.updatedAt = now
	s.lastActivity = now
	return msg
}

func (s *Session) setPresence(role bus.Role, p bus.Presence, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[role] = p
	s.lastActivity = now
	s.updatedAt = now
}

func (s *Session) bothConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence[bus.RoleBuyer] == bus.Connected && s.presence[bus.RoleSeller] == bus.Connected
}

func (s *Session) anyConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presence[bus.RoleBuyer] == bus.Connected || s.presence[bus.RoleSeller] == bus.Connected
}

// recordOffer applies what a seller message says about price.
func (s *Session) recordOffer(sig strategy.Signals) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turn++
	if sig.HasOffer {
		s.sellerOffers = append(s.sellerOffers, sig.Offer)
		s.currentOffer = sig.Offer
	}
}

// numericState is the strategy view of the negotiation. newOffer and agreed
// describe the seller message being answered.
func (s *Session) numericState(sig strategy.Signals) strategy.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := strategy.State{
		ListingPrice: s.listing.Price,
		Turn:         s.turn,
		SellerOffers: append([]int64(nil), s.sellerOffers...),
		NewOffer:     sig.HasOffer,
		LastCounter:  s.lastCounter,
	}
	if sig.Agreed {
		switch {
		case sig.HasOffer:
			st.Agreed = sig.Offer
		case s.lastCounter > 0:
			st.Agreed = s.lastCounter
		}
	}
	return st
}

// history converts messages into the tier view. System notes are left out.
func (s *Session) history() []decision.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]decision.Turn, 0, len(s.messages))
	for _, m := range s.messages {
		switch m.Sender {
		case SenderSeller:
			out = append(out, decision.Turn{Role: decision.RoleSeller, Content: m.Content})
		case SenderBuyerAgent:
			out = append(out, decision.Turn{Role: decision.RoleBuyer, Content: m.Content})
		}
	}
	return out
}

func (s *Session) applyDecision(res decision.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res.Action == strategy.ActionCounter && res.Price > 0 {
		s.lastCounter = res.Price
		s.currentOffer = res.Price
	}
}

func (s *Session) applyManual(price int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCounter = price
	s.currentOffer = price
}

func (s *Session) markOpened() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
}

func (s *Session) isOpened() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opened
}

func (s *Session) pushPending(in inbound, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 && len(s.pending) >= limit {
		return false
	}
	s.pending = append(s.pending, in)
	return true
}

// requeue puts a preempted message back at the head of the queue.
func (s *Session) requeue(in inbound) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append([]inbound{in}, s.pending...)
}

func (s *Session) popPending() (inbound, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return inbound{}, false
	}
	in := s.pending[0]
	s.pending = s.pending[1:]
	return in, true
}

func (s *Session) currentPrice() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentOffer
}

// idle reports the fields the janitor looks at.
func (s *Session) idle() (state State, endedAt, lastActivity time.Time, connected bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connected = s.presence[bus.RoleBuyer] == bus.Connected || s.presence[bus.RoleSeller] == bus.Connected
	return s.state, s.endedAt, s.lastActivity, connected
}

// finish moves to Ended and records the outcome in one step.
func (s *Session) finish(outcome Outcome, price int64, reason string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(s.state, StateEnded) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", s.state, StateEnded)
	}
	s.state = StateEnded
	s.updatedAt = now
	s.outcome = outcome
	s.finalPrice = price
	s.endReason = reason
	s.endedAt = now
	s.pending = nil
	return nil
}

func (s *Session) messageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	ID           string                    `json:"sessionId"`
	State        State                     `json:"state"`
	Outcome      Outcome                   `json:"outcome"`
	Listing      *listing.Listing          `json:"productListing"`
	Config       strategy.Config           `json:"config"`
	CurrentOffer int64                     `json:"currentOffer"`
	FinalPrice   int64                     `json:"finalPrice,omitempty"`
	EndReason    string                    `json:"endReason,omitempty"`
	Turn         int                       `json:"turn"`
	SellerOffers []int64                   `json:"sellerOffers"`
	Presence     map[bus.Role]bus.Presence `json:"presence"`
	Pending      int                       `json:"pendingMessages"`
	Messages     []Message                 `json:"messages"`
	CreatedAt    time.Time                 `json:"createdAt"`
	UpdatedAt    time.Time                 `json:"updatedAt"`
	EndedAt      *time.Time                `json:"endedAt,omitempty"`
}

// Snapshot copies the session under a read lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:           s.id,
		State:        s.state,
		Outcome:      s.outcome,
		Listing:      s.listing,
		Config:       s.config,
		CurrentOffer: s.currentOffer,
		FinalPrice:   s.finalPrice,
		EndReason:    s.endReason,
		Turn:         s.turn,
		SellerOffers: append([]int64(nil), s.sellerOffers...),
		Presence:     make(map[bus.Role]bus.Presence, len(s.presence)),
		Pending:      len(s.pending),
		Messages:     append([]Message(nil), s.messages...),
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
	for k, v := range s.presence {
		snap.Presence[k] = v
	}
	if !s.endedAt.IsZero() {
		ended := s.endedAt
		snap.EndedAt = &ended
	}
	return snap
}
