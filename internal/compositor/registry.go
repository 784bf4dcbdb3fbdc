package compositor

import (
	"fmt"
	"sync"
	"time"

	"github.com/radmix/compositor/internal/composition"
	"github.com/radmix/compositor/internal/logging"
	"github.com/radmix/compositor/internal/metrics"
	"github.com/radmix/compositor/internal/notify"
	"github.com/radmix/compositor/internal/stream"
	"github.com/radmix/compositor/internal/xerrors"
)

// key identifies one producer slot: a single (composition, sample
// rate) pair may have at most one live producer at a time.
type key struct {
	compositionID string
	sampleRate    uint32
}

// Options carries the tunables a Registry hands to every Producer it
// spawns; normally sourced from config.CompositorConfig.
type Options struct {
	BufSize         int
	LookaheadSec    float64
	PollInterval    time.Duration
	ActiveThreshold int
}

func (o Options) orDefaults() Options {
	if o.BufSize == 0 {
		o.BufSize = DefaultBufSize
	}
	if o.LookaheadSec == 0 {
		o.LookaheadSec = DefaultLookaheadSec
	}
	if o.PollInterval == 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ActiveThreshold == 0 {
		o.ActiveThreshold = DefaultActiveThreshold
	}
	return o
}

// Registry is the compositor's directory of known compositions and the
// producers currently servicing them (§4.6 Compositor Registry).
type Registry struct {
	mu           sync.Mutex
	compositions map[string]*composition.Composition
	producers    map[key]*Producer
	opts         Options
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		compositions: make(map[string]*composition.Composition),
		producers:    make(map[key]*Producer),
		opts:         opts.orDefaults(),
	}
}

// PushComposition registers a new composition. Pushing a composition
// whose id is already registered is a caller-contract violation.
func (r *Registry) PushComposition(comp *composition.Composition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.compositions[comp.ID()]; exists {
		xerrors.Newf("composition %q already registered", comp.ID()).
			Category(xerrors.CategoryRegistry).
			Component("registry").
			MustBuild()
	}
	r.compositions[comp.ID()] = comp
}

// FindComposition looks up a registered composition by id.
func (r *Registry) FindComposition(id string) (*composition.Composition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.compositions[id]
	return c, ok
}

// RemoveComposition drops a composition and any producer servicing it,
// across every sample rate.
func (r *Registry) RemoveComposition(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.compositions, id)
	for k := range r.producers {
		if k.compositionID == id {
			delete(r.producers, k)
		}
	}
}

// GetActiveBuffer returns the current tail of the stream for
// (compositionID, sampleRate), spawning a producer on demand if none
// is currently active. The returned release func must be called
// exactly once, when the caller detaches (e.g. the adapter
// disconnects), or the producer will never be reaped.
func (r *Registry) GetActiveBuffer(compositionID string, sampleRate uint32) (*stream.Node, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	comp, ok := r.compositions[compositionID]
	if !ok {
		return nil, nil, xerrors.Newf("composition %q not found", compositionID).
			Category(xerrors.CategoryNotFound).
			Component("registry").
			Build()
	}

	k := key{compositionID: compositionID, sampleRate: sampleRate}
	p, ok := r.producers[k]
	if !ok || !p.IsActive() {
		p = NewProducer(comp, sampleRate, r.opts.BufSize, r.opts.LookaheadSec, r.opts.PollInterval, r.opts.ActiveThreshold)
		r.producers[k] = p
		// Attach before Start: the producer's refCount starts at the
		// two-reference baseline, already below most active thresholds,
		// so starting the reap loop before a consumer attaches risks an
		// immediate self-reap race.
		p.Attach()
		p.Start()
		metrics.CompositorProducersActive.Inc()
		logging.Info("spawned compositor producer", "name", p.Name())
	} else {
		p.Attach()
	}

	node := stream.Live(p.Head(), sampleRate, comp.Channels(), r.opts.BufSize, r.opts.LookaheadSec)

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		p.Detach()
	}
	return node, release, nil
}

// Prune removes producer records that have been reaped, keeping the
// registry's map from growing unboundedly across composition/rate
// churn. Intended to be called periodically by health_monitor.go.
func (r *Registry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for k, p := range r.producers {
		if !p.IsActive() {
			delete(r.producers, k)
			removed++
			metrics.CompositorReapedTotal.Inc()
			notify.Dispatch(notify.Event{Type: notify.EventProducerReaped, CompositionID: k.compositionID, Timestamp: time.Now(), Detail: k.String()})
		}
	}
	return removed
}

// ActiveProducerCount reports the number of live producers, used by
// the health monitor and tests.
func (r *Registry) ActiveProducerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.producers {
		if p.IsActive() {
			n++
		}
	}
	return n
}

func (k key) String() string {
	return fmt.Sprintf("%s@%d", k.compositionID, k.sampleRate)
}
