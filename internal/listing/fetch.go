package listing

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Fetcher returns the raw document behind a reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref Reference) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, ref Reference) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, ref Reference) ([]byte, error) {
	return f(ctx, ref)
}

// HTTPFetcher fetches pages over HTTP, rate limited per host.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
	// PerHost is the sustained request rate allowed per host.
	PerHost rate.Limit
	Burst   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates a fetcher with sane defaults.
func NewHTTPFetcher(userAgent string, perSecond float64) *HTTPFetcher {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	return &HTTPFetcher{
		Client: &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				return nil
			},
		},
		UserAgent: userAgent,
		MaxBytes:  2 << 20,
		PerHost:   rate.Limit(perSecond),
		Burst:     2,
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (f *HTTPFetcher) limiter(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limiters == nil {
		f.limiters = make(map[string]*rate.Limiter)
	}
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(f.PerHost, f.Burst)
		f.limiters[host] = l
	}
	return l
}

// Fetch downloads the reference and decodes it to UTF-8.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref Reference) ([]byte, error) {
	if err := f.limiter(ref.Host).Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.Raw, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-IN,en;q=0.9")

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "GET %s", ref.Raw)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("GET %s: HTTP %d", ref.Raw, resp.StatusCode)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, f.MaxBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, errors.Wrap(err, "detect charset")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return data, nil
}
