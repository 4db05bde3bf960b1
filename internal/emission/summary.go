package emission

import "sort"

// DefaultObservationWindowHours is reported on every summary. It is
// descriptive only; summaries are not time-filtered.
const DefaultObservationWindowHours = 24.0

// Summary aggregates an agent's emissions.
type Summary struct {
	AgentID                string   `json:"agent_id"`
	TotalEmissions         int      `json:"total_emissions"`
	UniqueModels           []string `json:"unique_models"`
	UniqueTools            []string `json:"unique_tools"`
	UniqueDataSources      []string `json:"unique_data_sources"`
	ObservationWindowHours float64  `json:"observation_window_hours"`
}

// Summarize recomputes the summary for agentID from the given emissions.
// Emissions for other agents are ignored.
func Summarize(agentID string, emissions []Emission) Summary {
	models := map[string]struct{}{}
	tools := map[string]struct{}{}
	data := map[string]struct{}{}
	total := 0
	for _, e := range emissions {
		if e.AgentID != agentID {
			continue
		}
		total++
		switch e.Type {
		case ModelUsed:
			models[e.ComponentName] = struct{}{}
		case ToolInvoked:
			tools[e.ComponentName] = struct{}{}
		case DataAccessed:
			data[e.ComponentName] = struct{}{}
		}
	}
	return Summary{
		AgentID:                agentID,
		TotalEmissions:         total,
		UniqueModels:           sortedKeys(models),
		UniqueTools:            sortedKeys(tools),
		UniqueDataSources:      sortedKeys(data),
		ObservationWindowHours: DefaultObservationWindowHours,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
