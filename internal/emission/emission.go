// Package emission defines the emission record produced while observing agent
// runs, and the per-agent summary derived from a collection of emissions.
package emission

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidType is returned when an emission type string is not recognized.
var ErrInvalidType = errors.New("invalid emission type")

// Type classifies what an emission observed.
type Type string

const (
	ModelUsed     Type = "model_used"
	ToolInvoked   Type = "tool_invoked"
	DataAccessed  Type = "data_accessed"
	PolicyApplied Type = "policy_applied"
)

// Types lists every known emission type in declaration order.
var Types = []Type{ModelUsed, ToolInvoked, DataAccessed, PolicyApplied}

// TypeNames returns the wire values of Types, comma-separated.
func TypeNames() string {
	names := make([]string, len(Types))
	for i, t := range Types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// ParseType resolves a type name, case-insensitively. Both the wire value
// ("model_used") and the enum name ("MODEL_USED") are accepted.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MODEL_USED":
		return ModelUsed, nil
	case "TOOL_INVOKED":
		return ToolInvoked, nil
	case "DATA_ACCESSED":
		return DataAccessed, nil
	case "POLICY_APPLIED":
		return PolicyApplied, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidType, s)
}

// UnmarshalJSON accepts any casing and rejects unknown types.
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ComponentType maps an emission type to the AIBOM component classification.
// Unknown types fall back to "tool".
func ComponentType(t Type) string {
	switch t {
	case ModelUsed:
		return "model"
	case ToolInvoked:
		return "tool"
	case DataAccessed:
		return "data_source"
	case PolicyApplied:
		return "policy"
	default:
		return "tool"
	}
}

// Emission is one observed fact about agent behaviour.
type Emission struct {
	ID               string         `json:"id"`
	Type             Type           `json:"emission_type"`
	AgentID          string         `json:"agent_id"`
	Timestamp        time.Time      `json:"timestamp"`
	ComponentName    string         `json:"component_name"`
	ComponentVersion string         `json:"component_version"`
	Provider         string         `json:"provider"`
	Metadata         map[string]any `json:"metadata"`
}

// New creates an emission stamped with the current UTC time. The ID is left
// empty; callers that need one assign NewID().
func New(typ Type, agentID, name, version, provider string) Emission {
	return Emission{
		Type:             typ,
		AgentID:          agentID,
		Timestamp:        time.Now().UTC(),
		ComponentName:    name,
		ComponentVersion: version,
		Provider:         provider,
		Metadata:         map[string]any{},
	}
}

// NewID returns a fresh emission identifier.
func NewID() string {
	return "em-" + uuid.NewString()
}

// Filter selects emissions. Zero-valued fields match everything.
type Filter struct {
	AgentID string
	Type    Type
}

// Match reports whether e satisfies every set field of f.
func (f Filter) Match(e Emission) bool {
	if f.AgentID != "" && e.AgentID != f.AgentID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	return true
}
