// Package reference generates human-readable identifiers of the form
// <PREFIX>-<unix-ms>-<9 base36 uppercase chars>, e.g. ORD-1718000000000-K3J9ZQ0AB.
package reference

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// Well-known prefixes.
const (
	PrefixOrder       = "ORD"
	PrefixTransaction = "TXN"
)

const (
	alphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	suffixLen = 9

	// The filter only guards against handing out the same reference twice
	// from one process; the database unique constraint stays authoritative.
	filterCapacity = 1_000_000
	filterFPR      = 0.0001
	maxRegenerate  = 8
)

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRand overrides the random source used for suffixes.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.intN = r.IntN }
}

// Generator produces prefixed references. It is safe for concurrent use.
type Generator struct {
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	intN func(n int) int
	seen *bloom.BloomFilter
}

// NewGenerator returns a Generator for the given prefix.
func NewGenerator(prefix string, opts ...Option) *Generator {
	g := &Generator{
		prefix: prefix,
		now:    time.Now,
		intN:   rand.IntN,
		seen:   bloom.NewWithEstimates(filterCapacity, filterFPR),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Next returns a fresh reference. A candidate the filter reports as already
// issued is regenerated; a false positive only costs one extra draw.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ref string
	for range maxRegenerate {
		ref = g.format()
		if !g.seen.TestOrAddString(ref) {
			return ref
		}
	}
	return ref
}

func (g *Generator) format() string {
	var suffix [suffixLen]byte
	for i := range suffix {
		suffix[i] = alphabet[g.intN(len(alphabet))]
	}
	return fmt.Sprintf("%s-%d-%s", g.prefix, g.now().UnixMilli(), suffix[:])
}
