// internal/lti/jwks.go
package lti

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mind-engage/mindengage-lti-tool/internal/deployment"
	"github.com/mind-engage/mindengage-lti-tool/internal/metrics"
)

// KeyResolver finds the platform public key that verifies a token signed with kid.
type KeyResolver interface {
	ResolveKey(ctx context.Context, td *deployment.ToolDeployment, kid string) (any, error)
}

const maxJWKSBytes = 1 << 20

// JWKSResolver fetches platform key sets over HTTP and caches them per JWKS URL.
// A kid that is not in a cached set triggers exactly one forced refresh before
// failing, so platform key rotation is picked up without waiting for the TTL.
type JWKSResolver struct {
	HTTP    *http.Client
	TTL     time.Duration
	Log     *zap.Logger
	Metrics metrics.Recorder

	mu    sync.RWMutex
	cache map[string]cachedSet
	group singleflight.Group
	now   func() time.Time
}

type cachedSet struct {
	set     jwk.Set
	fetched time.Time
}

// NewJWKSResolver returns a resolver using hc for fetches and caching sets for ttl.
// A ttl <= 0 disables caching.
func NewJWKSResolver(hc *http.Client, ttl time.Duration, log *zap.Logger, rec metrics.Recorder) *JWKSResolver {
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &JWKSResolver{
		HTTP:    hc,
		TTL:     ttl,
		Log:     log,
		Metrics: rec,
		cache:   make(map[string]cachedSet),
		now:     time.Now,
	}
}

func (r *JWKSResolver) ResolveKey(ctx context.Context, td *deployment.ToolDeployment, kid string) (any, error) {
	if kid == "" {
		return nil, &KeyResolutionError{Msg: "token header has no kid"}
	}
	set, fromCache, err := r.keySet(ctx, td.JWKSEndpoint, false)
	if err != nil {
		return nil, err
	}
	if key, ok := set.LookupKeyID(kid); ok {
		return exportKey(key)
	}
	if fromCache {
		r.Log.Debug("kid not in cached key set, refreshing",
			zap.String("issuer", td.Issuer), zap.String("kid", kid))
		set, _, err = r.keySet(ctx, td.JWKSEndpoint, true)
		if err != nil {
			return nil, err
		}
		if key, ok := set.LookupKeyID(kid); ok {
			return exportKey(key)
		}
	}
	return nil, &KeyResolutionError{Msg: fmt.Sprintf("no key with kid %q in platform key set", kid)}
}

func (r *JWKSResolver) keySet(ctx context.Context, url string, force bool) (jwk.Set, bool, error) {
	if !force && r.TTL > 0 {
		r.mu.RLock()
		c, ok := r.cache[url]
		r.mu.RUnlock()
		if ok && r.now().Sub(c.fetched) < r.TTL {
			return c.set, true, nil
		}
	}
	// The fetch is shared by every caller waiting on url, so it must not stop when
	// the caller that started it goes away. r.HTTP's timeout still bounds it.
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(url, func() (any, error) {
		set, err := r.fetch(shared, url)
		r.Metrics.IncJWKSFetch(metrics.StatusOf(err))
		if err != nil {
			return nil, err
		}
		if r.TTL > 0 {
			r.mu.Lock()
			r.cache[url] = cachedSet{set: set, fetched: r.now()}
			r.mu.Unlock()
		}
		return set, nil
	})
	select {
	case <-ctx.Done():
		return nil, false, &KeyResolutionError{Msg: "fetch platform key set", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(jwk.Set), false, nil
	}
}

func (r *JWKSResolver) fetch(ctx context.Context, url string) (jwk.Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &KeyResolutionError{Msg: "bad JWKS endpoint", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return nil, &KeyResolutionError{Msg: "fetch platform key set", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &KeyResolutionError{Msg: "fetch platform key set: platform returned " + resp.Status}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBytes))
	if err != nil {
		return nil, &KeyResolutionError{Msg: "read platform key set", Err: err}
	}
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, &KeyResolutionError{Msg: "parse platform key set", Err: err}
	}
	return set, nil
}

func exportKey(key jwk.Key) (any, error) {
	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, &KeyResolutionError{Msg: "export platform key", Err: err}
	}
	return raw, nil
}
