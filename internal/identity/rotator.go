// Package identity rotates the outbound browser signature used for page
// loads and direct image fetches.
package identity

import (
	"math/rand/v2"
	"sync"
	"time"
)

// DefaultCooldown is how long a blocked identity sits out
const DefaultCooldown = 5 * time.Minute

// Identity is one outbound client signature
type Identity struct {
	UserAgent      string
	AcceptLanguage string
}

// Headers returns the request headers that accompany the signature
func (id Identity) Headers() map[string]string {
	lang := id.AcceptLanguage
	if lang == "" {
		lang = DefaultAcceptLanguage
	}
	return map[string]string{
		"User-Agent":                id.UserAgent,
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
		"Accept-Language":           lang,
		"Upgrade-Insecure-Requests": "1",
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
	}
}

// Rotator draws identities uniformly at random from a fixed pool
type Rotator struct {
	identities []Identity
	mu         sync.Mutex
	rng        *rand.Rand
	blocked    map[string]time.Time
	cooldown   time.Duration
	now        func() time.Time
}

// NewRotator creates a Rotator over identities. An empty pool falls back to
// Defaults so Next always has something to return. A nil src seeds from the clock.
func NewRotator(identities []Identity, src rand.Source) *Rotator {
	if len(identities) == 0 {
		identities = Defaults()
	}
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>17|1)
	}
	pool := make([]Identity, len(identities))
	copy(pool, identities)
	return &Rotator{
		identities: pool,
		rng:        rand.New(src),
		blocked:    make(map[string]time.Time),
		cooldown:   DefaultCooldown,
		now:        time.Now,
	}
}

// FromUserAgents builds identities from bare user agent strings
func FromUserAgents(userAgents []string) []Identity {
	out := make([]Identity, 0, len(userAgents))
	for _, ua := range userAgents {
		if ua == "" {
			continue
		}
		out = append(out, Identity{UserAgent: ua, AcceptLanguage: DefaultAcceptLanguage})
	}
	return out
}

// Next returns a uniformly drawn identity, skipping blocked ones while any
// healthy identity remains.
func (r *Rotator) Next() Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	healthy := make([]Identity, 0, len(r.identities))
	now := r.now()
	for _, id := range r.identities {
		if at, ok := r.blocked[id.UserAgent]; ok {
			if now.Sub(at) < r.cooldown {
				continue
			}
			delete(r.blocked, id.UserAgent)
		}
		healthy = append(healthy, id)
	}
	if len(healthy) == 0 {
		healthy = r.identities
	}
	return healthy[r.rng.IntN(len(healthy))]
}

// MarkBlocked parks an identity after the target refused it
func (r *Rotator) MarkBlocked(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked[id.UserAgent] = r.now()
}

// MarkHealthy clears a previous block
func (r *Rotator) MarkHealthy(id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.blocked, id.UserAgent)
}

// Size returns the pool size
func (r *Rotator) Size() int {
	return len(r.identities)
}
