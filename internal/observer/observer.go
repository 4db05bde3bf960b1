// Package observer turns agent episodes into emissions. Each episode is
// processed at most once per Observer, so callers can poll repeatedly.
package observer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/airblackbox/runtime-aibom-emitter/internal/emission"
	"github.com/airblackbox/runtime-aibom-emitter/internal/episode"
)

var tracer = otel.Tracer("github.com/airblackbox/runtime-aibom-emitter/internal/observer")

// Config tunes an Observer.
type Config struct {
	// MaxTrackedEpisodes caps the observed-episode set; the oldest entries
	// are forgotten first. Zero keeps every episode id.
	MaxTrackedEpisodes int
}

// Observer polls an episode source and records the emissions it derives.
// pollMu serializes polls; mu guards state and is never held across a fetch.
type Observer struct {
	source episode.Source
	config Config

	pollMu sync.Mutex

	mu        sync.Mutex
	observed  map[string]struct{}
	order     []string // insertion order of observed, for eviction
	emissions []emission.Emission
}

// New creates an Observer reading from source.
func New(source episode.Source, cfg Config) *Observer {
	return &Observer{
		source:   source,
		config:   cfg,
		observed: make(map[string]struct{}),
	}
}

// ObserveEpisodes polls up to limit episodes for agentID and returns the
// emissions derived from episodes this Observer has not processed before.
// A source failure aborts the poll and leaves the Observer unchanged, so the
// caller can retry the whole call.
func (o *Observer) ObserveEpisodes(ctx context.Context, agentID string, limit int) ([]emission.Emission, error) {
	ctx, span := tracer.Start(ctx, "observer.ObserveEpisodes")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", agentID), attribute.Int("limit", limit))

	o.pollMu.Lock()
	defer o.pollMu.Unlock()

	var fresh []emission.Emission
	var marked []string
	pending := map[string]struct{}{}
	skipped := 0
	for i := 0; i < limit; i++ {
		ep, err := o.source.Fetch(ctx, agentID, i)
		if errors.Is(err, episode.ErrEndOfStream) {
			break
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch episode")
			return nil, fmt.Errorf("observe %s: fetch episode %d: %w", agentID, i, err)
		}
		_, dup := pending[ep.ID]
		if dup || o.isObserved(ep.ID) {
			skipped++
			continue
		}
		pending[ep.ID] = struct{}{}
		marked = append(marked, ep.ID)
		fresh = append(fresh, extract(agentID, ep)...)
	}

	o.mu.Lock()
	for _, id := range marked {
		o.markObserved(id)
	}
	o.emissions = append(o.emissions, fresh...)
	o.mu.Unlock()

	span.SetAttributes(attribute.Int("emissions.new", len(fresh)), attribute.Int("episodes.skipped", skipped))
	slog.Debug("Observer: poll complete", "agent", agentID, "limit", limit, "new", len(fresh), "skipped", skipped)
	return fresh, nil
}

func (o *Observer) isObserved(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.observed[id]
	return ok
}

// markObserved must be called with mu held.
func (o *Observer) markObserved(id string) {
	o.observed[id] = struct{}{}
	o.order = append(o.order, id)
	capacity := o.config.MaxTrackedEpisodes
	if capacity <= 0 || len(o.order) <= capacity {
		return
	}
	drop := len(o.order) - capacity
	for _, old := range o.order[:drop] {
		delete(o.observed, old)
	}
	o.order = append([]string(nil), o.order[drop:]...)
}

// extract maps an episode's activity lists to emissions: models, then tools,
// then data accesses, each in source order.
func extract(agentID string, ep *episode.Episode) []emission.Emission {
	out := make([]emission.Emission, 0, len(ep.ModelsUsed)+len(ep.ToolsInvoked)+len(ep.DataAccessed))
	add := func(typ emission.Type, acts []episode.Activity) {
		for _, a := range acts {
			e := emission.New(typ, agentID, a.Name, a.Version, a.Provider)
			e.ID = emission.NewID()
			e.Metadata["episode_id"] = ep.ID
			out = append(out, e)
		}
	}
	add(emission.ModelUsed, ep.ModelsUsed)
	add(emission.ToolInvoked, ep.ToolsInvoked)
	add(emission.DataAccessed, ep.DataAccessed)
	return out
}

// Summary aggregates the emissions this Observer derived for agentID.
func (o *Observer) Summary(agentID string) emission.Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return emission.Summarize(agentID, o.emissions)
}

// Emissions returns a copy of every emission this Observer has derived.
func (o *Observer) Emissions() []emission.Emission {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]emission.Emission(nil), o.emissions...)
}

// TrackedEpisodes returns the size of the observed-episode set.
func (o *Observer) TrackedEpisodes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.observed)
}
