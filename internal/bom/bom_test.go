package bom

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/airblackbox/runtime-aibom-emitter/internal/emission"
)

func at(e emission.Emission, ts time.Time, episode string) emission.Emission {
	e.Timestamp = ts
	e.Metadata = map[string]any{"episode_id": episode}
	return e
}

func TestFromEmissions(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	list := []emission.Emission{
		at(emission.New(emission.ModelUsed, "agent-1", "GPT-4", "1.0", "OpenAI"), t0, "ep-0"),
		at(emission.New(emission.ToolInvoked, "agent-1", "SearchTool", "1.0", "Internal"), t0, "ep-0"),
		at(emission.New(emission.ModelUsed, "agent-1", "GPT-4", "1.0", "OpenAI"), t0.Add(time.Hour), "ep-1"),
		at(emission.New(emission.DataAccessed, "agent-1", "UserDB", "", "Internal"), t0.Add(2*time.Hour), "ep-1"),
		at(emission.New(emission.ModelUsed, "agent-2", "Claude", "3", "Anthropic"), t0, "ep-x"),
	}
	b := FromEmissions("agent-1", "0.1.0", list)

	if b.BOMFormat != Format || b.SpecVersion != SpecVersion || b.Metadata.Component != "agent-1" {
		t.Fatalf("header = %+v", b)
	}
	if len(b.Components) != 3 {
		t.Fatalf("components = %+v", b.Components)
	}
	if b.Components[0].Type != "model" || b.Components[0].Name != "GPT-4" {
		t.Errorf("first component = %+v", b.Components[0])
	}
	if b.Components[2].Type != "data_source" {
		t.Errorf("third component = %+v", b.Components[2])
	}
	if !strings.HasPrefix(b.Components[0].BOMRef, "model-") {
		t.Errorf("bom-ref = %q", b.Components[0].BOMRef)
	}
	if b.Evidence.EmissionCount != 4 {
		t.Errorf("emission count = %d", b.Evidence.EmissionCount)
	}
	if len(b.Evidence.EpisodeIDs) != 2 {
		t.Errorf("episodes = %v", b.Evidence.EpisodeIDs)
	}
	f := b.Evidence.Findings[0]
	if f.Type != "model_usage" || f.Count != 2 || f.FirstSeen != "2024-01-15T10:00:00Z" || f.LastSeen != "2024-01-15T11:00:00Z" {
		t.Errorf("model finding = %+v", f)
	}
	if b.Evidence.Window == nil || b.Evidence.Window.End != "2024-01-15T12:00:00Z" {
		t.Errorf("window = %+v", b.Evidence.Window)
	}
}

func TestFromEmissionsEmpty(t *testing.T) {
	b := FromEmissions("nobody", "0.1.0", nil)
	data, err := b.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if comps, ok := doc["components"].([]any); !ok || len(comps) != 0 {
		t.Fatalf("components = %v", doc["components"])
	}
	if b.Evidence.Window != nil {
		t.Fatal("expected no window")
	}
}

func TestBOMRefStable(t *testing.T) {
	if bomRef("GPT-4", "1.0") != bomRef("GPT-4", "1.0") {
		t.Fatal("bom ref not deterministic")
	}
	if bomRef("GPT-4", "1.0") == bomRef("GPT-4", "2.0") {
		t.Fatal("bom ref ignores version")
	}
}

func TestBuilderServicesAndSpans(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	b := NewBuilder("app", "0.1.0", SourceTraces)
	b.Declare("framework", "langchain", "0.1.0")
	b.AddSpan("t1", t0)
	b.AddSpan("t1", t0.Add(time.Minute))
	b.AddSpan("t2", time.Time{})
	b.Observe("model", "gpt-4", "", "openai", t0)
	b.AddService("api.openai.com", "https://api.openai.com/v1", "openai")
	b.AddService("api.openai.com", "api.openai.com", "openai")
	doc := b.Build()

	if len(doc.Components) != 2 || doc.Components[0].Type != "framework" {
		t.Fatalf("components = %+v", doc.Components)
	}
	if len(doc.Evidence.Findings) != 1 || doc.Evidence.Findings[0].Component != "gpt-4" {
		t.Fatalf("findings = %+v", doc.Evidence.Findings)
	}
	if len(doc.Services) != 1 || doc.Services[0].Endpoint != "https://api.openai.com/v1" {
		t.Fatalf("services = %+v", doc.Services)
	}
	if doc.Evidence.SpanCount != 3 || len(doc.Evidence.TraceIDs) != 2 {
		t.Fatalf("evidence = %+v", doc.Evidence)
	}
	if doc.Evidence.Window == nil || doc.Evidence.Window.End != "2024-01-15T10:01:00Z" {
		t.Fatalf("window = %+v", doc.Evidence.Window)
	}
	if doc.Evidence.EmissionCount != 0 || doc.Evidence.Source != SourceTraces {
		t.Fatalf("evidence = %+v", doc.Evidence)
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	doc := FromEmissions("agent-1", "0.1.0", []emission.Emission{
		at(emission.New(emission.ModelUsed, "agent-1", "GPT-4", "1.0", "OpenAI"), t0, "ep-0"),
	})
	path := filepath.Join(t.TempDir(), "aibom.json")
	if err := doc.SaveFile(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Metadata.Component != "agent-1" || len(loaded.Components) != 1 || loaded.Components[0].BOMRef != doc.Components[0].BOMRef {
		t.Fatalf("loaded = %+v", loaded)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
