// Package refdata answers whether assets, books and parties exist and are
// active, for the engine to check the references of a transaction.
//
// HTTP queries the reference data service, Cached memoizes any checker and
// Static serves a fixed set of ids.
package refdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/patrickmn/go-cache"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/etnz/tradebook"
)

// Active is the status value of an active entity.
const Active = "Active"

// ErrUnavailable is returned when the circuit breaker rejects a request.
var ErrUnavailable = errors.New("reference data service unavailable")

// resource returns the collection name and the JSONPath of the status field of
// a kind of reference data.
func resource(kind tradebook.Kind) (collection, statusPath string, err error) {
	switch kind {
	case tradebook.KindAsset:
		return "assets", "$.asset_status", nil
	case tradebook.KindBook:
		return "books", "$.book_status", nil
	case tradebook.KindParty:
		return "parties", "$.party_status", nil
	default:
		return "", "", fmt.Errorf("unsupported reference data kind %s", kind)
	}
}

// HTTP checks reference data against the REST service at a base URL, reading
// {base}/{assets|books|parties}/{asset_manager_id}/{id}.
type HTTP struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// HTTPOption configures an HTTP checker.
type HTTPOption func(*HTTP)

// WithClient sets the http client, typically an authenticated one.
func WithClient(c *http.Client) HTTPOption { return func(h *HTTP) { h.client = c } }

// WithRateLimit limits the request rate to r with bursts of b.
func WithRateLimit(r rate.Limit, b int) HTTPOption {
	return func(h *HTTP) { h.limiter = rate.NewLimiter(r, b) }
}

// WithBreaker replaces the default circuit breaker settings.
func WithBreaker(st gobreaker.Settings) HTTPOption {
	return func(h *HTTP) { h.breaker = gobreaker.NewCircuitBreaker(st) }
}

// NewHTTP returns a checker for the service at base. By default requests are
// limited to 20 per second and the breaker opens after 5 consecutive failures
// for 30 seconds.
func NewHTTP(base string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		base:    base,
		client:  http.DefaultClient,
		limiter: rate.NewLimiter(rate.Every(50*time.Millisecond), 20),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.breaker == nil {
		h.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "refdata",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}
	return h
}

// ExistsActive implements tradebook.RefData. An unknown id is not an error,
// it is reported as not active.
func (h *HTTP) ExistsActive(ctx context.Context, tenant int64, kind tradebook.Kind, id string) (bool, error) {
	collection, statusPath, err := resource(kind)
	if err != nil {
		return false, err
	}
	addr, err := url.JoinPath(h.base, collection, strconv.FormatInt(tenant, 10), id)
	if err != nil {
		return false, fmt.Errorf("invalid reference data url: %w", err)
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return false, err
	}
	res, err := h.breaker.Execute(func() (any, error) {
		return h.status(ctx, addr, statusPath)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return false, fmt.Errorf("%s %s: %w", kind, id, ErrUnavailable)
	case err != nil:
		return false, fmt.Errorf("cannot check %s %s: %w", kind, id, err)
	}
	return res.(string) == Active, nil
}

// status fetches addr and extracts the status at path. A missing entity has an
// empty status.
func (h *HTTP) status(ctx context.Context, addr, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cannot http GET %v: %v", resp.Request.URL.Path, resp.Status)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return "", err
	}
	var jobj any
	if err := json.Unmarshal(buf.Bytes(), &jobj); err != nil {
		return "", fmt.Errorf("invalid reference data response: %w", err)
	}
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		// no status field
		return "", nil
	}
	// jsonpath may answer a list of one value
	if jlist, ok := jval.([]any); ok && len(jlist) > 0 {
		jval = jlist[0]
	}
	s, _ := jval.(string)
	return s, nil
}

// Cached memoizes the answers of another checker for a while. Errors are not
// cached.
type Cached struct {
	next  tradebook.RefData
	cache *cache.Cache
}

// NewCached caches answers of next for ttl.
func NewCached(next tradebook.RefData, ttl time.Duration) *Cached {
	return &Cached{next: next, cache: cache.New(ttl, 2*ttl)}
}

// ExistsActive implements tradebook.RefData.
func (c *Cached) ExistsActive(ctx context.Context, tenant int64, kind tradebook.Kind, id string) (bool, error) {
	key := fmt.Sprintf("%d/%s/%s", tenant, kind, id)
	if v, ok := c.cache.Get(key); ok {
		return v.(bool), nil
	}
	active, err := c.next.ExistsActive(ctx, tenant, kind, id)
	if err != nil {
		return false, err
	}
	c.cache.SetDefault(key, active)
	return active, nil
}

// Forget drops the cached answer for an id, for instance after its status
// changed.
func (c *Cached) Forget(tenant int64, kind tradebook.Kind, id string) {
	c.cache.Delete(fmt.Sprintf("%d/%s/%s", tenant, kind, id))
}

// Static is an in-memory checker. Its zero value knows nothing.
type Static struct {
	mu     sync.RWMutex
	active map[staticKey]bool
}

type staticKey struct {
	tenant int64
	kind   tradebook.Kind
	id     string
}

// Add declares ids of kind active for tenant.
func (s *Static) Add(tenant int64, kind tradebook.Kind, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		s.active = make(map[staticKey]bool)
	}
	for _, id := range ids {
		s.active[staticKey{tenant, kind, id}] = true
	}
}

// Deactivate marks ids of kind inactive for tenant.
func (s *Static) Deactivate(tenant int64, kind tradebook.Kind, ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.active, staticKey{tenant, kind, id})
	}
}

// ExistsActive implements tradebook.RefData.
func (s *Static) ExistsActive(_ context.Context, tenant int64, kind tradebook.Kind, id string) (bool, error) {
	if _, _, err := resource(kind); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active[staticKey{tenant, kind, id}], nil
}
