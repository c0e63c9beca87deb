package decision

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/logger"
)

// DefaultTierTimeout bounds a single tier call.
const DefaultTierTimeout = 8 * time.Second

// TierStats counts outcomes for one tier.
type TierStats struct {
	Accepted int64 `json:"accepted"`
	Failed   int64 `json:"failed"`
}

// Pipeline arbitrates between tiers. The rules tier is always consulted last.
type Pipeline struct {
	tiers     []Tier
	rules     *RulesTier
	timeout   time.Duration
	threshold float64
	log       *logger.Logger

	mu    sync.Mutex
	stats map[string]*TierStats
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithTierTimeout sets the per-tier timeout.
func WithTierTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithThreshold sets the confidence gate.
func WithThreshold(t float64) PipelineOption {
	return func(p *Pipeline) {
		if t > 0 && t <= 1 {
			p.threshold = t
		}
	}
}

// WithPipelineLogger sets the logger.
func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = l }
}

// NewPipeline creates a pipeline over the given tiers, in order. Nil tiers
// are skipped so callers can pass optional providers directly.
func NewPipeline(tiers []Tier, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		rules:     &RulesTier{},
		timeout:   DefaultTierTimeout,
		threshold: DefaultThreshold,
		log:       logger.NewComponentLogger("decision"),
		stats:     make(map[string]*TierStats),
	}
	for _, t := range tiers {
		if t != nil {
			p.tiers = append(p.tiers, t)
		}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tiers returns the tier names in consultation order, rules included.
func (p *Pipeline) Tiers() []string {
	names := make([]string, 0, len(p.tiers)+1)
	for _, t := range p.tiers {
		names = append(names, t.Name())
	}
	return append(names, p.rules.Name())
}

// Decide returns exactly one result. Tier failures are logged and absorbed.
func (p *Pipeline) Decide(ctx context.Context, dc Context) Result {
	log := p.log.WithSession(dc.SessionID)

	if agreed := dc.State.Agreed; agreed > 0 && agreed <= dc.Config.MaxBudget {
		log.Debug("seller agreed within budget, using rules", "price", agreed)
		return p.final(dc)
	}

	for _, t := range p.tiers {
		if ctx.Err() != nil {
			break
		}
		res, err := p.attempt(ctx, t, dc)
		if err == nil {
			p.record(t.Name(), true)
			log.Debug("tier accepted", "tier", t.Name(), "action", res.Action, "confidence", res.Confidence)
			return res
		}
		p.record(t.Name(), false)
		log.Warn("tier failed", "tier", t.Name(), "error", err)
	}
	return p.final(dc)
}

func (p *Pipeline) final(dc Context) Result {
	res, _ := p.rules.Decide(context.Background(), dc)
	p.record(p.rules.Name(), true)
	return res
}

type outcome struct {
	res Result
	err error
}

// attempt runs one tier under its own timeout. The call runs on its own
// goroutine so a tier that ignores its context still cannot stall the worker.
func (p *Pipeline) attempt(ctx context.Context, t Tier, dc Context) (Result, error) {
	tctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.Wrapf(ErrTierPanic, "%v", r)}
			}
		}()
		res, err := t.Decide(tctx, dc)
		done <- outcome{res: res, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-tctx.Done():
		return Result{}, &TierFailure{Tier: t.Name(), Err: tctx.Err()}
	}
	if o.err != nil {
		return Result{}, &TierFailure{Tier: t.Name(), Err: o.err}
	}

	res := o.res
	res.Tier = t.Name()
	if err := res.Validate(dc.Config); err != nil {
		return Result{}, &TierFailure{Tier: t.Name(), Err: err}
	}
	if err := res.CheckAccept(dc.State); err != nil {
		return Result{}, &TierFailure{Tier: t.Name(), Err: err}
	}
	if res.Confidence < p.threshold {
		return Result{}, &TierFailure{
			Tier: t.Name(),
			Err:  errors.Wrapf(ErrLowConfidence, "%.2f < %.2f", res.Confidence, p.threshold),
		}
	}
	return res, nil
}

func (p *Pipeline) record(tier string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats[tier]
	if s == nil {
		s = &TierStats{}
		p.stats[tier] = s
	}
	if ok {
		s.Accepted++
	} else {
		s.Failed++
	}
}

// Stats returns a copy of per-tier counters.
func (p *Pipeline) Stats() map[string]TierStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]TierStats, len(p.stats))
	for k, v := range p.stats {
		out[k] = *v
	}
	return out
}
