package listing

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/dayuer/haggle-go/internal/logger"
)

// DefaultFetchTimeout bounds one resolution when no timeout is configured.
const DefaultFetchTimeout = 10 * time.Second

// Resolver turns references into listings.
type Resolver struct {
	fetcher    Fetcher
	categories *CategoryStore
	cache      Cache
	timeout    time.Duration
	log        *logger.Logger
	now        func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache enables listing caching.
func WithCache(c Cache) Option { return func(r *Resolver) { r.cache = c } }

// WithTimeout sets the fetch-and-extract deadline.
func WithTimeout(d time.Duration) Option { return func(r *Resolver) { r.timeout = d } }

// WithCategories sets the category store used for synthetic listings.
func WithCategories(s *CategoryStore) Option { return func(r *Resolver) { r.categories = s } }

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option { return func(r *Resolver) { r.log = l } }

// NewResolver creates a resolver backed by f.
func NewResolver(f Fetcher, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher:    f,
		categories: NewCategoryStore(nil),
		timeout:    DefaultFetchTimeout,
		log:        logger.NewComponentLogger("resolver"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve validates raw and returns a real or synthetic listing. The only
// error it returns is ErrInvalidReference.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*Listing, error) {
	ref, err := ParseReference(raw)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if l, ok := r.cache.Get(ctx, ref.Key()); ok {
			r.log.Debug("listing cache hit", "key", ref.Key())
			return l, nil
		}
	}

	l, err := r.fetchAndExtract(ctx, ref)
	if err != nil {
		r.log.Info("using synthetic listing", "reference", ref.Raw, "reason", err)
		return r.Synthesize(ref), nil
	}

	if r.cache != nil {
		r.cache.Put(ctx, ref.Key(), l)
	}
	return l, nil
}

func (r *Resolver) fetchAndExtract(ctx context.Context, ref Reference) (*Listing, error) {
	if r.fetcher == nil {
		return nil, errors.Wrap(ErrExtractionFailure, "no fetcher configured")
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := r.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, errors.Wrapf(ErrExtractionFailure, "fetch: %v", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(ErrExtractionFailure, "parse html: %v", err)
	}
	if err := classify(doc); err != nil {
		return nil, err
	}
	ex, err := extract(doc)
	if err != nil {
		return nil, err
	}
	r.log.Debug("listing extracted", "reference", ref.Raw, "strategy", ex.Strategy, "price", ex.Price)

	title := ex.Title
	if title == "" {
		title = titleFromSlug(ref.Slug)
	}
	seller := ex.SellerName
	if seller == "" {
		seller = "Marketplace Seller"
	}
	return &Listing{
		ID:            ref.Key(),
		SourceRef:     ref.Raw,
		Platform:      ref.Platform,
		Title:         title,
		Price:         ex.Price,
		Category:      r.categorize(ref.Slug, title).Name,
		Condition:     inferCondition(ex.Description),
		Description:   ex.Description,
		Location:      ex.Location,
		SellerName:    seller,
		SellerContact: ex.SellerContact,
		ResolvedAt:    r.now(),
	}, nil
}

// Category returns the current table row named name.
func (r *Resolver) Category(name string) Category {
	return r.categories.Table().Named(name)
}

func (r *Resolver) categorize(slug, title string) Category {
	table := r.categories.Table()
	c := table.Match(slug)
	if c.Name == table.Default.Name && title != "" {
		c = table.Match(strings.Join(strings.Fields(strings.ToLower(title)), "-"))
	}
	return c
}

// Synthesize builds a self-consistent listing from the reference alone.
func (r *Resolver) Synthesize(ref Reference) *Listing {
	c := r.categories.Table().Match(ref.Slug)
	return &Listing{
		ID:         ref.Key(),
		SourceRef:  ref.Raw,
		Platform:   ref.Platform,
		Title:      titleFromSlug(ref.Slug),
		Price:      c.price(),
		Category:   c.Name,
		Condition:  ConditionUsed,
		SellerName: "Marketplace Seller",
		Synthetic:  true,
		ResolvedAt: r.now(),
	}
}
