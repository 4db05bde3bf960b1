// Package bom builds a runtime AI bill of materials: the models, tools, data
// sources and policies an agent was actually observed using.
package bom

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/airblackbox/runtime-aibom-emitter/internal/emission"
)

const (
	Format      = "CycloneDX-AI"
	SpecVersion = "1.6"
	ToolName    = "runtime-aibom-emitter"
)

// AIBOM is the bill-of-materials document.
type AIBOM struct {
	BOMFormat   string      `json:"bomFormat"`
	SpecVersion string      `json:"specVersion"`
	Version     int         `json:"version"`
	Metadata    Metadata    `json:"metadata"`
	Components  []Component `json:"components"`
	Services    []Service   `json:"services,omitempty"`
	Evidence    Evidence    `json:"evidence"`
}

// Metadata describes the document itself.
type Metadata struct {
	Timestamp string `json:"timestamp"`
	ToolName  string `json:"tool_name"`
	ToolVer   string `json:"tool_version"`
	Component string `json:"component,omitempty"` // agent or app being described
}

// Component is one model, tool, data source, policy or framework.
type Component struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Version  string `json:"version,omitempty"`
	Provider string `json:"provider,omitempty"`
	BOMRef   string `json:"bom-ref"`
}

// Service is an external endpoint the agent called.
type Service struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// Evidence source values.
const (
	SourceEmissions = "runtime_emissions"
	SourceTraces    = "runtime_traces"
)

// Evidence records how the document was built.
type Evidence struct {
	Source        string           `json:"source"`
	EmissionCount int              `json:"emissionCount,omitempty"`
	EpisodeIDs    []string         `json:"episodeIds,omitempty"`
	TraceIDs      []string         `json:"traceIds,omitempty"`
	SpanCount     int              `json:"spanCount,omitempty"`
	Window        *TimeWindow      `json:"window,omitempty"`
	Findings      []RuntimeFinding `json:"findings,omitempty"`
}

// TimeWindow is the observation period covered by the evidence.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// RuntimeFinding counts how often a component was observed.
type RuntimeFinding struct {
	Type      string `json:"type"`
	Component string `json:"component"`
	Count     int    `json:"count"`
	FirstSeen string `json:"firstSeen"`
	LastSeen  string `json:"lastSeen"`
}

// New creates an empty document for the named agent or app.
func New(component, toolVersion, source string) *AIBOM {
	return &AIBOM{
		BOMFormat:   Format,
		SpecVersion: SpecVersion,
		Version:     1,
		Metadata: Metadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			ToolName:  ToolName,
			ToolVer:   toolVersion,
			Component: component,
		},
		Components: []Component{},
		Evidence:   Evidence{Source: source},
	}
}

type componentKey struct {
	typ     string
	name    string
	version string
}

type tally struct {
	count       int
	first, last time.Time
}

// Builder accumulates observations into one AIBOM. Components are listed in
// order of first observation; repeated observations only update counts.
type Builder struct {
	doc      *AIBOM
	index    map[componentKey]int
	tallies  map[componentKey]*tally
	services map[string]bool
	episodes map[string]bool
	traces   map[string]bool

	earliest, latest time.Time
}

// NewBuilder starts a document for component with the given evidence source.
func NewBuilder(component, toolVersion, source string) *Builder {
	return &Builder{
		doc:      New(component, toolVersion, source),
		index:    map[componentKey]int{},
		tallies:  map[componentKey]*tally{},
		services: map[string]bool{},
		episodes: map[string]bool{},
		traces:   map[string]bool{},
	}
}

func (b *Builder) component(typ, name, version, provider string) componentKey {
	key := componentKey{typ: typ, name: name, version: version}
	if _, ok := b.index[key]; !ok {
		b.index[key] = len(b.doc.Components)
		b.doc.Components = append(b.doc.Components, Component{
			Type:     typ,
			Name:     name,
			Version:  version,
			Provider: provider,
			BOMRef:   fmt.Sprintf("%s-%s", typ, bomRef(name, version)),
		})
	}
	return key
}

// Declare lists a component without counting it as a runtime finding.
func (b *Builder) Declare(typ, name, version string) {
	b.component(typ, name, version, "")
}

// Observe records one use of a component at ts.
func (b *Builder) Observe(typ, name, version, provider string, ts time.Time) {
	key := b.component(typ, name, version, provider)
	t, ok := b.tallies[key]
	if !ok {
		t = &tally{first: ts, last: ts}
		b.tallies[key] = t
	}
	t.count++
	if !ts.IsZero() && (t.first.IsZero() || ts.Before(t.first)) {
		t.first = ts
	}
	if ts.After(t.last) {
		t.last = ts
	}
	b.widen(ts)
}

// AddService records an external endpoint once per name.
func (b *Builder) AddService(name, endpoint, provider string) {
	if b.services[name] {
		return
	}
	b.services[name] = true
	b.doc.Services = append(b.doc.Services, Service{Name: name, Endpoint: endpoint, Provider: provider})
}

// AddSpan counts one trace span.
func (b *Builder) AddSpan(traceID string, ts time.Time) {
	b.doc.Evidence.SpanCount++
	if traceID != "" && !b.traces[traceID] {
		b.traces[traceID] = true
		b.doc.Evidence.TraceIDs = append(b.doc.Evidence.TraceIDs, traceID)
	}
	b.widen(ts)
}

// AddEmission counts one emission and its episode.
func (b *Builder) AddEmission(episodeID string, ts time.Time) {
	b.doc.Evidence.EmissionCount++
	if episodeID != "" && !b.episodes[episodeID] {
		b.episodes[episodeID] = true
		b.doc.Evidence.EpisodeIDs = append(b.doc.Evidence.EpisodeIDs, episodeID)
	}
	b.widen(ts)
}

func (b *Builder) widen(ts time.Time) {
	if ts.IsZero() {
		return
	}
	if b.earliest.IsZero() || ts.Before(b.earliest) {
		b.earliest = ts
	}
	if b.latest.IsZero() || ts.After(b.latest) {
		b.latest = ts
	}
}

// Build finalizes findings and the observation window.
func (b *Builder) Build() *AIBOM {
	doc := b.doc
	doc.Evidence.Findings = nil
	for _, c := range doc.Components {
		key := componentKey{typ: c.Type, name: c.Name, version: c.Version}
		t, ok := b.tallies[key]
		if !ok {
			continue
		}
		doc.Evidence.Findings = append(doc.Evidence.Findings, RuntimeFinding{
			Type:      findingType(c.Type),
			Component: c.Name,
			Count:     t.count,
			FirstSeen: formatTime(t.first),
			LastSeen:  formatTime(t.last),
		})
	}
	doc.Evidence.Window = nil
	if !b.earliest.IsZero() {
		doc.Evidence.Window = &TimeWindow{Start: formatTime(b.earliest), End: formatTime(b.latest)}
	}
	return doc
}

// FromEmissions builds the AIBOM for agentID. Each distinct (type, name,
// version) becomes one component, listed in order of first observation.
func FromEmissions(agentID, toolVersion string, emissions []emission.Emission) *AIBOM {
	b := NewBuilder(agentID, toolVersion, SourceEmissions)
	for _, e := range emissions {
		if e.AgentID != agentID {
			continue
		}
		ep, _ := e.Metadata["episode_id"].(string)
		b.AddEmission(ep, e.Timestamp)
		b.Observe(emission.ComponentType(e.Type), e.ComponentName, e.ComponentVersion, e.Provider, e.Timestamp)
	}
	return b.Build()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func findingType(componentType string) string {
	switch componentType {
	case "model":
		return "model_usage"
	case "tool":
		return "tool_call"
	case "data_source":
		return "data_access"
	case "policy":
		return "policy_applied"
	case "endpoint":
		return "endpoint_call"
	}
	return componentType
}

// ToJSON serializes the document.
func (b *AIBOM) ToJSON() ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// SaveFile writes the document to path.
func (b *AIBOM) SaveFile(path string) error {
	data, err := b.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal aibom: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write aibom: %w", err)
	}
	return nil
}

// LoadFile reads a document written by SaveFile.
func LoadFile(path string) (*AIBOM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read aibom: %w", err)
	}
	var b AIBOM
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse aibom: %w", err)
	}
	return &b, nil
}

func bomRef(name, version string) string {
	h := sha256.Sum256([]byte(name + "@" + version))
	return fmt.Sprintf("%x", h[:6])
}
