// Package publisher accumulates emissions and forwards each emission id to a
// downstream AIBOM sink at most once.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/airblackbox/runtime-aibom-emitter/internal/emission"
)

var tracer = otel.Tracer("github.com/airblackbox/runtime-aibom-emitter/internal/publisher")

// ErrDownstreamUnavailable wraps sink delivery failures.
var ErrDownstreamUnavailable = errors.New("downstream unavailable")

// Delivery outcomes recorded for each send attempt.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// Payload is the component record sent downstream for one emission.
type Payload struct {
	EmissionID    string `json:"emission_id"`
	TargetID      string `json:"aibom_id"`
	Name          string `json:"name"`
	ComponentType string `json:"component_type"`
	Provider      string `json:"provider"`
	Version       string `json:"version"`
	Description   string `json:"description"`
}

// Delivery describes one send attempt, handed to the DeliveryRecorder.
type Delivery struct {
	EmissionID string
	AgentID    string
	Payload    Payload
	Status     string
	Err        error
}

// DeliveryRecorder keeps an audit trail of send attempts.
type DeliveryRecorder interface {
	RecordDelivery(d Delivery) error
}

// Notifier is told about every publish call that attempted deliveries.
type Notifier interface {
	NotifyPublished(ctx context.Context, r Result)
}

// DeliveryFailure reports an emission whose payload could not be delivered.
// The id is still marked published and is never sent again.
type DeliveryFailure struct {
	EmissionID string `json:"emission_id"`
	Error      string `json:"error"`
}

// Result summarizes a Publish call. Published is always true: it signals that
// the call completed, not that every delivery succeeded.
type Result struct {
	Published bool              `json:"published"`
	Count     int               `json:"count"`
	TargetID  string            `json:"aibom_id"`
	Failures  []DeliveryFailure `json:"failures,omitempty"`
}

// Options configures a Publisher.
type Options struct {
	// Timeout bounds each sink delivery. Zero means no bound.
	Timeout  time.Duration
	Recorder DeliveryRecorder
	Notifier Notifier
}

// Publisher holds collected emissions and the set of ids already published.
// publishMu serializes Publish calls; mu guards state and is never held
// across a sink delivery.
type Publisher struct {
	sink Sink
	opts Options

	publishMu sync.Mutex

	mu        sync.Mutex
	emissions []emission.Emission
	published map[string]struct{}
}

// New creates a Publisher that delivers to sink.
func New(sink Sink, opts Options) *Publisher {
	if sink == nil {
		sink = LogSink{}
	}
	return &Publisher{
		sink:      sink,
		opts:      opts,
		published: make(map[string]struct{}),
	}
}

// Collect appends one emission. Duplicate ids are accepted. A zero
// timestamp is set to the current UTC time.
func (p *Publisher) Collect(e emission.Emission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emissions = append(p.emissions, stamp(e))
}

// CollectBatch appends emissions in order.
func (p *Publisher) CollectBatch(es []emission.Emission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range es {
		p.emissions = append(p.emissions, stamp(e))
	}
}

func stamp(e emission.Emission) emission.Emission {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}

// Publish delivers every collected emission (only agentID's when non-empty)
// whose id has not been published yet. Ids are marked published when they
// are selected, so a failed or timed-out delivery is reported in Failures
// and never sent again. Count is the number of successful deliveries.
func (p *Publisher) Publish(ctx context.Context, targetID, agentID string) Result {
	ctx, span := tracer.Start(ctx, "publisher.Publish")
	defer span.End()
	span.SetAttributes(attribute.String("aibom.id", targetID), attribute.String("agent.id", agentID))

	p.publishMu.Lock()
	defer p.publishMu.Unlock()

	selected := p.selectPending(agentID)
	res := Result{Published: true, TargetID: targetID}
	for _, e := range selected {
		payload := buildPayload(targetID, e)
		err := p.deliver(ctx, payload)
		p.record(e, payload, err)
		if err != nil {
			slog.Warn("Publisher: delivery failed", "emission", e.ID, "aibom", targetID, "error", err)
			res.Failures = append(res.Failures, DeliveryFailure{EmissionID: e.ID, Error: err.Error()})
			continue
		}
		res.Count++
	}

	span.SetAttributes(attribute.Int("published.count", res.Count), attribute.Int("published.failures", len(res.Failures)))
	slog.Info("Publisher: publish complete", "aibom", targetID, "agent", agentID, "count", res.Count, "failures", len(res.Failures))
	if len(selected) > 0 && p.opts.Notifier != nil {
		p.opts.Notifier.NotifyPublished(ctx, res)
	}
	return res
}

// selectPending copies the unpublished emissions in scope and marks their ids
// published. An id appearing twice is selected once.
func (p *Publisher) selectPending(agentID string) []emission.Emission {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []emission.Emission
	for _, e := range p.emissions {
		if agentID != "" && e.AgentID != agentID {
			continue
		}
		if _, done := p.published[e.ID]; done {
			continue
		}
		p.published[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}

func (p *Publisher) deliver(ctx context.Context, payload Payload) error {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}
	if err := p.sink.Send(ctx, payload); err != nil {
		if errors.Is(err, ErrDownstreamUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDownstreamUnavailable, err)
	}
	return nil
}

func (p *Publisher) record(e emission.Emission, payload Payload, err error) {
	if p.opts.Recorder == nil {
		return
	}
	d := Delivery{EmissionID: e.ID, AgentID: e.AgentID, Payload: payload, Status: DeliverySent, Err: err}
	if err != nil {
		d.Status = DeliveryFailed
	}
	if rerr := p.opts.Recorder.RecordDelivery(d); rerr != nil {
		slog.Warn("Publisher: record delivery", "emission", e.ID, "error", rerr)
	}
}

func buildPayload(targetID string, e emission.Emission) Payload {
	return Payload{
		EmissionID:    e.ID,
		TargetID:      targetID,
		Name:          e.ComponentName,
		ComponentType: emission.ComponentType(e.Type),
		Provider:      e.Provider,
		Version:       e.ComponentVersion,
		Description:   fmt.Sprintf("Emitted from %s", e.AgentID),
	}
}

// Emissions returns the collected emissions matching f, in insertion order.
// The result is never nil.
func (p *Publisher) Emissions(f emission.Filter) []emission.Emission {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]emission.Emission, 0, len(p.emissions))
	for _, e := range p.emissions {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of collected emissions.
func (p *Publisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.emissions)
}

// PublishedCount returns the number of distinct ids published so far.
func (p *Publisher) PublishedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

// IsPublished reports whether id has been selected for delivery.
func (p *Publisher) IsPublished(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.published[id]
	return ok
}
