package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/bus"
	"github.com/dayuer/haggle-go/internal/decision"
	"github.com/dayuer/haggle-go/internal/lane"
	"github.com/dayuer/haggle-go/internal/listing"
	"github.com/dayuer/haggle-go/internal/logger"
	"github.com/dayuer/haggle-go/internal/pricing"
	"github.com/dayuer/haggle-go/internal/strategy"
)

// ErrSessionNotFound is returned for ids that are neither live nor archived.
var ErrSessionNotFound = errors.New("session not found")

// Defaults for Options.
const (
	DefaultMaxMessages   = 40
	DefaultIdleTimeout   = 900 * time.Second
	DefaultRetention     = 600 * time.Second
	DefaultSweepInterval = 30 * time.Second
	DefaultPendingLimit  = 256
)

// Resolver turns a product reference into a listing.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (*listing.Listing, error)
}

// Decider produces exactly one buyer move.
type Decider interface {
	Decide(ctx context.Context, dc decision.Context) decision.Result
}

// Options configures a Manager. Zero values take the defaults above.
type Options struct {
	MaxMessages   int
	IdleTimeout   time.Duration
	Retention     time.Duration
	SweepInterval time.Duration
	PendingLimit  int
	// DataDir enables the transcript archive when set.
	DataDir string
	Mirror  Mirror
	Lanes   *lane.Manager
	Logger  *logger.Logger
}

// CreateRequest is the body of a session creation call.
type CreateRequest struct {
	ProductReference string `json:"productReference"`
	strategy.Config
}

// Manager owns every live session and drives them from bus events.
type Manager struct {
	resolver Resolver
	decider  Decider
	bus      *bus.Bus
	lanes    *lane.Manager
	archive  *Archive
	mirror   Mirror
	opts     Options
	log      *logger.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager wires a manager. Lanes are created when opts.Lanes is nil.
func NewManager(resolver Resolver, decider Decider, b *bus.Bus, opts Options) (*Manager, error) {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.PendingLimit <= 0 {
		opts.PendingLimit = DefaultPendingLimit
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewComponentLogger("session")
	}
	if opts.Mirror == nil {
		opts.Mirror = noMirror{}
	}
	if opts.Lanes == nil {
		opts.Lanes = lane.NewManager(lane.ManagerConfig{Logger: opts.Logger})
	}

	m := &Manager{
		resolver: resolver,
		decider:  decider,
		bus:      b,
		lanes:    opts.Lanes,
		mirror:   opts.Mirror,
		opts:     opts,
		log:      opts.Logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	if opts.DataDir != "" {
		a, err := NewArchive(opts.DataDir)
		if err != nil {
			return nil, err
		}
		m.archive = a
	}
	return m, nil
}

// Archive returns the transcript archive, nil when disabled.
func (m *Manager) Archive() *Archive { return m.archive }

// Create validates the config, resolves the listing and registers a session.
// Nothing is registered when either step fails.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (Snapshot, error) {
	cfg, err := req.Config.Normalize()
	if err != nil {
		return Snapshot{}, err
	}
	ref := strings.TrimSpace(req.ProductReference)
	if ref == "" {
		return Snapshot{}, errors.Wrap(listing.ErrInvalidReference, "empty product reference")
	}
	l, err := m.resolver.Resolve(ctx, ref)
	if err != nil {
		return Snapshot{}, err
	}

	now := m.now()
	s := newSession(uuid.NewString(), l, cfg, now)
	s.append(SenderSystem, fmt.Sprintf("Negotiation created for %s listed at %s", l.Title, pricing.Format(l.Price)), now, nil, false)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()
	m.bus.Open(s.id)
	m.mirrorPut(s)

	m.log.WithSession(s.id).Info("session created",
		"platform", l.Platform, "price", l.Price, "synthetic", l.Synthetic,
		"target", cfg.TargetPrice, "max", cfg.MaxBudget, "approach", cfg.Approach, "timeline", cfg.Timeline)
	return s.Snapshot(), nil
}

// Get returns a live session or, after eviction, its archived transcript.
func (m *Manager) Get(id string) (Snapshot, error) {
	if s, ok := m.lookup(id); ok {
		return s.Snapshot(), nil
	}
	if m.archive != nil {
		if snap, err := m.archive.Load(id); err == nil {
			return snap, nil
		}
	}
	return Snapshot{}, errors.Wrap(ErrSessionNotFound, id)
}

// Exists reports whether id is a live session.
func (m *Manager) Exists(id string) bool {
	_, ok := m.lookup(id)
	return ok
}

// List returns snapshots of all live sessions, oldest first.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	out := make([]Snapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Counts returns the number of live sessions per state.
func (m *Manager) Counts() map[State]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[State]int)
	for _, s := range m.sessions {
		counts[s.State()]++
	}
	return counts
}

// Pause stops processing seller messages. An in-flight decision is canceled
// and its message is kept for Resume.
func (m *Manager) Pause(ctx context.Context, id string) error {
	return m.control(ctx, id, true, m.pause)
}

// Resume continues a paused session and processes queued messages.
func (m *Manager) Resume(ctx context.Context, id string) error {
	return m.control(ctx, id, false, m.resume)
}

// Reset ends the session with failure. An in-flight decision is canceled.
func (m *Manager) Reset(ctx context.Context, id string) error {
	return m.control(ctx, id, true, func(_ context.Context, s *Session) error {
		if s.State() == StateEnded {
			return errors.Wrapf(ErrInvalidTransition, "%s -> %s", StateEnded, StateEnded)
		}
		m.end(s, OutcomeFailure, 0, "reset")
		return nil
	})
}

func (m *Manager) control(ctx context.Context, id string, urgent bool, fn func(context.Context, *Session) error) error {
	s, ok := m.lookup(id)
	if !ok {
		return errors.Wrap(ErrSessionNotFound, id)
	}
	var jobErr error
	job := func(jctx context.Context) { jobErr = fn(jctx, s) }
	var err error
	if urgent {
		err = m.lanes.DoUrgent(ctx, id, job)
	} else {
		err = m.lanes.Do(ctx, id, job)
	}
	if err != nil {
		return err
	}
	return jobErr
}

// Run consumes bus events and runs the janitor until ctx ends or the bus
// closes its event channel.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-m.bus.Events:
			if !ok {
				return nil
			}
			m.dispatch(ev)
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) dispatch(ev bus.Event) {
	s, ok := m.lookup(ev.SessionID)
	if !ok {
		m.log.Debug("event for unknown session", "session", ev.SessionID, "kind", ev.Kind)
		return
	}

	var job lane.Job
	switch ev.Kind {
	case bus.EventJoined:
		job = func(ctx context.Context) { m.onJoined(ctx, s, ev.Role) }
	case bus.EventLeft:
		job = func(context.Context) { m.onLeft(s, ev.Role) }
	case bus.EventMessage:
		job = func(ctx context.Context) { m.onMessage(ctx, s, ev.Role, ev.Content) }
	default:
		return
	}

	if err := m.lanes.Submit(s.id, job); err != nil {
		m.log.WithSession(s.id).Warn("event dropped", "kind", ev.Kind, "role", ev.Role, "error", err)
		if ev.Kind == bus.EventMessage {
			m.bus.Send(s.id, ev.Role, errorFrame("session busy, message dropped"))
		}
	}
}

func (m *Manager) onJoined(ctx context.Context, s *Session, role bus.Role) {
	if s.State() == StateEnded {
		return
	}
	now := m.now()
	s.setPresence(role, bus.Connected, now)
	log := m.log.WithSession(s.id)
	log.Info("party joined", "role", role)

	if s.State() == StateCreated {
		m.must(s, StateAwaitingCounterparty)
	}
	if s.State() == StateAwaitingCounterparty && s.bothConnected() {
		m.must(s, StateActive)
		log.Info("session active")
		m.activate(ctx, s)
	}
	m.mirrorPut(s)
}

func (m *Manager) onLeft(s *Session, role bus.Role) {
	if s.State() == StateEnded {
		return
	}
	s.setPresence(role, bus.Disconnected, m.now())
	m.log.WithSession(s.id).Info("party left", "role", role)
	m.mirrorPut(s)
}

func (m *Manager) onMessage(ctx context.Context, s *Session, role bus.Role, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	if s.State() == StateEnded {
		m.bus.Send(s.id, role, errorFrame("session has ended"))
		return
	}

	if role == bus.RoleBuyer {
		m.override(s, content)
		m.mirrorPut(s)
		return
	}

	if s.State() != StateActive {
		if !s.pushPending(inbound{content: content}, m.opts.PendingLimit) {
			m.bus.Send(s.id, role, errorFrame("too many queued messages"))
		}
		m.mirrorPut(s)
		return
	}
	m.handleSeller(ctx, s, inbound{content: content})
	m.mirrorPut(s)
}

// override records a message typed by the buyer in place of the agent.
func (m *Manager) override(s *Session, content string) {
	now := m.now()
	msg := s.append(SenderBuyerAgent, content, now, nil, true)
	if price, err := pricing.ParseAmount(content); err == nil {
		s.applyManual(price)
	}
	m.bus.Broadcast(s.id, bus.Frame{Type: bus.FrameMessage, Payload: msg})
	m.log.WithSession(s.id).Info("buyer override", "seq", msg.Seq)
	m.checkCap(s)
}

// handleSeller records one seller message and answers it. A preempted
// decision puts the message back at the head of the pending queue.
func (m *Manager) handleSeller(ctx context.Context, s *Session, in inbound) {
	sig := strategy.ReadSeller(in.content)
	if !in.recorded {
		msg := s.append(SenderSeller, in.content, m.now(), nil, false)
		m.bus.Broadcast(s.id, bus.Frame{Type: bus.FrameMessage, Payload: msg})
		s.recordOffer(sig)
		in.recorded = true
		if m.checkCap(s) {
			return
		}
	}

	res := m.decider.Decide(ctx, m.decisionContext(s, in.content, sig))
	if ctx.Err() != nil {
		s.requeue(in)
		m.log.WithSession(s.id).Debug("decision preempted")
		return
	}
	m.emit(s, res)
}

// activate sends the opening move once and drains queued seller messages.
func (m *Manager) activate(ctx context.Context, s *Session) {
	if !s.isOpened() {
		res := m.decider.Decide(ctx, m.decisionContext(s, "", strategy.Signals{}))
		if ctx.Err() != nil {
			return
		}
		s.markOpened()
		m.emit(s, res)
	}
	for s.State() == StateActive && ctx.Err() == nil {
		in, ok := s.popPending()
		if !ok {
			return
		}
		m.handleSeller(ctx, s, in)
	}
}

func (m *Manager) decisionContext(s *Session, incoming string, sig strategy.Signals) decision.Context {
	history := s.history()
	if n := len(history); incoming != "" && n > 0 && history[n-1].Role == decision.RoleSeller && history[n-1].Content == incoming {
		history = history[:n-1]
	}
	return decision.Context{
		SessionID:    s.id,
		Listing:      s.listing,
		Config:       s.config,
		History:      history,
		CurrentOffer: s.currentPrice(),
		Incoming:     incoming,
		Signals:      sig,
		State:        s.numericState(sig),
	}
}

// emit records an agent move and ends the session on terminal actions.
func (m *Manager) emit(s *Session, res decision.Result) {
	meta := &DecisionMeta{Action: res.Action, Price: res.Price, Tier: res.Tier, Confidence: res.Confidence}
	s.applyDecision(res)
	msg := s.append(SenderBuyerAgent, res.Text, m.now(), meta, false)
	m.bus.Broadcast(s.id, bus.Frame{Type: bus.FrameAIResponse, Payload: msg})
	m.log.WithSession(s.id).Info("agent move", "action", res.Action, "price", res.Price, "tier", res.Tier, "seq", msg.Seq)

	switch res.Action {
	case strategy.ActionAccept:
		m.end(s, OutcomeSuccess, res.Price, "deal agreed")
	case strategy.ActionWalkAway:
		m.end(s, OutcomeFailure, 0, "buyer walked away")
	default:
		m.checkCap(s)
	}
}

// checkCap ends the session once the history reaches the message cap.
func (m *Manager) checkCap(s *Session) bool {
	if s.State() == StateEnded || s.messageCount() < m.opts.MaxMessages {
		return false
	}
	m.end(s, OutcomeFailure, 0, "message limit reached")
	return true
}

func (m *Manager) pause(_ context.Context, s *Session) error {
	now := m.now()
	if err := s.transition(StatePaused, now); err != nil {
		return err
	}
	msg := s.append(SenderSystem, "Negotiation paused", now, nil, false)
	m.bus.Broadcast(s.id, bus.Frame{Type: bus.FrameMessage, Payload: msg})
	m.log.WithSession(s.id).Info("session paused")
	m.mirrorPut(s)
	return nil
}

func (m *Manager) resume(ctx context.Context, s *Session) error {
	if s.State() != StatePaused {
		return errors.Wrapf(ErrInvalidTransition, "%s -> resume", s.State())
	}
	var target State
	switch {
	case s.isOpened() || s.bothConnected():
		target = StateActive
	case s.anyConnected():
		target = StateAwaitingCounterparty
	default:
		target = StateCreated
	}
	now := m.now()
	if err := s.transition(target, now); err != nil {
		return err
	}
	msg := s.append(SenderSystem, "Negotiation resumed", now, nil, false)
	m.bus.Broadcast(s.id, bus.Frame{Type: bus.FrameMessage, Payload: msg})
	m.log.WithSession(s.id).Info("session resumed", "state", target)
	if target == StateActive {
		m.activate(ctx, s)
	}
	m.mirrorPut(s)
	return nil
}

// EndPayload is the payload of the final session_ended frame.
type EndPayload struct {
	SessionID  string  `json:"sessionId"`
	Outcome    Outcome `json:"outcome"`
	FinalPrice int64   `json:"finalPrice,omitempty"`
	Reason     string  `json:"reason"`
}

// end moves s to Ended, notifies both parties and archives the transcript.
func (m *Manager) end(s *Session, outcome Outcome, price int64, reason string) {
	now := m.now()
	if err := s.finish(outcome, price, reason, now); err != nil {
		return
	}

	text := "Negotiation ended: " + reason
	if outcome == OutcomeSuccess && price > 0 {
		text = fmt.Sprintf("Deal closed at %s", pricing.Format(price))
	}
	msg := s.append(SenderSystem, text, now, nil, false)
	m.bus.Broadcast(s.id, bus.Frame{Type: bus.FrameMessage, Payload: msg})
	m.bus.End(s.id, EndPayload{SessionID: s.id, Outcome: outcome, FinalPrice: price, Reason: reason})

	log := m.log.WithSession(s.id)
	log.Info("session ended", "outcome", outcome, "price", price, "reason", reason)

	snap := s.Snapshot()
	if m.archive != nil {
		if err := m.archive.Save(snap); err != nil {
			log.Error("archive failed", "error", err)
		}
	}
	m.mirror.Put(context.Background(), snap)
}

// sweep ends idle sessions and evicts ended ones past retention.
func (m *Manager) sweep() {
	now := m.now()
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	for _, s := range all {
		state, endedAt, last, connected := s.idle()
		switch {
		case state == StateEnded:
			if now.Sub(endedAt) >= m.opts.Retention {
				m.evict(s.id)
			}
		case !connected && now.Sub(last) >= m.opts.IdleTimeout:
			sess := s
			err := m.lanes.Submit(s.id, func(context.Context) {
				_, _, last, connected := sess.idle()
				if !connected && m.now().Sub(last) >= m.opts.IdleTimeout {
					m.end(sess, OutcomeFailure, 0, "idle timeout")
				}
			})
			if err != nil {
				m.log.WithSession(s.id).Warn("idle check not queued", "error", err)
			}
		}
	}
}

func (m *Manager) evict(id string) {
	m.lanes.Close(id)
	m.bus.Remove(id)
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	m.mirror.Forget(context.Background(), id)
	m.log.WithSession(id).Info("session evicted")
}

func (m *Manager) lookup(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// must applies a transition the caller already checked.
func (m *Manager) must(s *Session, to State) {
	if err := s.transition(to, m.now()); err != nil {
		m.log.WithSession(s.id).Error("unexpected transition failure", "error", err)
	}
}

func (m *Manager) mirrorPut(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m.mirror.Put(ctx, s.Snapshot())
}

func errorFrame(msg string) bus.Frame {
	return bus.Frame{Type: bus.FrameError, Payload: map[string]string{"message": msg}}
}
