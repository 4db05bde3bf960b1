package emission

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestParseType(t *testing.T) {
	cases := map[string]Type{
		"model_used":     ModelUsed,
		"MODEL_USED":     ModelUsed,
		"Tool_Invoked":   ToolInvoked,
		" data_accessed": DataAccessed,
		"policy_applied": PolicyApplied,
	}
	for in, want := range cases {
		got, err := ParseType(in)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTypesRoundTrip(t *testing.T) {
	for _, typ := range Types {
		got, err := ParseType(strings.ToUpper(string(typ)))
		if err != nil || got != typ {
			t.Errorf("ParseType(%q) = %q, %v", typ, got, err)
		}
	}
	if got := TypeNames(); got != "model_used, tool_invoked, data_accessed, policy_applied" {
		t.Fatalf("TypeNames() = %q", got)
	}
}

func TestParseTypeRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "model", "INVALID_TYPE"} {
		_, err := ParseType(in)
		if !errors.Is(err, ErrInvalidType) {
			t.Errorf("ParseType(%q) err = %v, want ErrInvalidType", in, err)
		}
	}
}

func TestComponentType(t *testing.T) {
	cases := map[Type]string{
		ModelUsed:     "model",
		ToolInvoked:   "tool",
		DataAccessed:  "data_source",
		PolicyApplied: "policy",
		Type("other"): "tool",
	}
	for typ, want := range cases {
		if got := ComponentType(typ); got != want {
			t.Errorf("ComponentType(%q) = %q, want %q", typ, got, want)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	e := New(ModelUsed, "agent-1", "GPT-4", "1.0", "OpenAI")
	if e.ID != "" {
		t.Errorf("expected empty id, got %q", e.ID)
	}
	if e.Timestamp.IsZero() || e.Timestamp.Location().String() != "UTC" {
		t.Errorf("expected UTC timestamp, got %v", e.Timestamp)
	}
	if e.Metadata == nil {
		t.Error("expected non-nil metadata")
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		if !strings.HasPrefix(id, "em-") {
			t.Fatalf("unexpected id format %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestEmissionJSONFieldNames(t *testing.T) {
	e := New(ToolInvoked, "agent-1", "SearchTool", "1.0", "Internal")
	e.ID = "em-1"
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["emission_type"] != "tool_invoked" {
		t.Errorf("emission_type = %v", raw["emission_type"])
	}
	for _, k := range []string{"id", "agent_id", "timestamp", "component_name", "component_version", "provider", "metadata"} {
		if _, ok := raw[k]; !ok {
			t.Errorf("missing field %q", k)
		}
	}
}

func TestTypeUnmarshalAnyCase(t *testing.T) {
	var e Emission
	if err := json.Unmarshal([]byte(`{"emission_type":"DATA_ACCESSED"}`), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Type != DataAccessed {
		t.Errorf("type = %q", e.Type)
	}
	if err := json.Unmarshal([]byte(`{"emission_type":"bogus"}`), &e); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestFilterMatch(t *testing.T) {
	e := New(ModelUsed, "agent-1", "GPT-4", "", "")
	if !(Filter{}).Match(e) {
		t.Error("empty filter should match")
	}
	if !(Filter{AgentID: "agent-1", Type: ModelUsed}).Match(e) {
		t.Error("exact filter should match")
	}
	if (Filter{AgentID: "agent-2"}).Match(e) {
		t.Error("agent mismatch should not match")
	}
	if (Filter{AgentID: "agent-1", Type: ToolInvoked}).Match(e) {
		t.Error("type mismatch should not match")
	}
}

func TestSummarize(t *testing.T) {
	list := []Emission{
		New(ModelUsed, "a", "GPT-4", "", ""),
		New(ModelUsed, "a", "Claude", "", ""),
		New(ModelUsed, "a", "GPT-4", "", ""),
		New(ToolInvoked, "a", "Search", "", ""),
		New(DataAccessed, "a", "UserDB", "", ""),
		New(PolicyApplied, "a", "pii", "", ""),
		New(ModelUsed, "b", "Llama", "", ""),
	}
	s := Summarize("a", list)
	if s.TotalEmissions != 6 {
		t.Errorf("total = %d, want 6", s.TotalEmissions)
	}
	if !reflect.DeepEqual(s.UniqueModels, []string{"Claude", "GPT-4"}) {
		t.Errorf("models = %v", s.UniqueModels)
	}
	if !reflect.DeepEqual(s.UniqueTools, []string{"Search"}) {
		t.Errorf("tools = %v", s.UniqueTools)
	}
	if !reflect.DeepEqual(s.UniqueDataSources, []string{"UserDB"}) {
		t.Errorf("data = %v", s.UniqueDataSources)
	}
	if s.ObservationWindowHours != DefaultObservationWindowHours {
		t.Errorf("window = %v", s.ObservationWindowHours)
	}
}

func TestSummarizeUnknownAgent(t *testing.T) {
	s := Summarize("nobody", nil)
	if s.TotalEmissions != 0 || len(s.UniqueModels) != 0 || s.UniqueModels == nil {
		t.Errorf("expected zero summary with empty sets, got %+v", s)
	}
}

func TestSummarizeCaseSensitiveOrdering(t *testing.T) {
	s := Summarize("a", []Emission{
		New(ModelUsed, "a", "gpt-4", "", ""),
		New(ModelUsed, "a", "GPT-4", "", ""),
	})
	if !reflect.DeepEqual(s.UniqueModels, []string{"GPT-4", "gpt-4"}) {
		t.Errorf("models = %v", s.UniqueModels)
	}
}
