// Package episode provides the sources the observer polls for agent episodes.
package episode

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEndOfStream signals that no episode exists at the requested index.
	ErrEndOfStream = errors.New("episode: end of stream")
	// ErrSourceUnavailable wraps transport and upstream failures.
	ErrSourceUnavailable = errors.New("episode source unavailable")
)

// Activity is one model, tool or data source recorded during an episode.
type Activity struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Provider string `json:"provider"`
}

// Episode is one unit of agent execution history.
type Episode struct {
	ID           string     `json:"episode_id"`
	AgentID      string     `json:"agent_id"`
	ModelsUsed   []Activity `json:"models_used"`
	ToolsInvoked []Activity `json:"tools_invoked"`
	DataAccessed []Activity `json:"data_accessed"`
	Timestamp    time.Time  `json:"timestamp"`
}

// Source returns episodes for an agent by position. Implementations must
// return episodes in the same order on every call and ErrEndOfStream past
// the last one.
type Source interface {
	Fetch(ctx context.Context, agentID string, index int) (*Episode, error)
}

// SimulatedSource serves a fixed set of identical episodes per agent.
type SimulatedSource struct {
	PerAgent int
}

// DefaultSimulatedEpisodes is the number of episodes SimulatedSource serves
// when PerAgent is unset.
const DefaultSimulatedEpisodes = 5

var simulatedTimestamp = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// NewSimulatedSource creates a simulated source with perAgent episodes per agent.
func NewSimulatedSource(perAgent int) *SimulatedSource {
	if perAgent <= 0 {
		perAgent = DefaultSimulatedEpisodes
	}
	return &SimulatedSource{PerAgent: perAgent}
}

// Fetch implements Source.
func (s *SimulatedSource) Fetch(ctx context.Context, agentID string, index int) (*Episode, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	n := s.PerAgent
	if n <= 0 {
		n = DefaultSimulatedEpisodes
	}
	if index < 0 || index >= n {
		return nil, ErrEndOfStream
	}
	return &Episode{
		ID:           fmt.Sprintf("ep-%s-%d", agentID, index),
		AgentID:      agentID,
		ModelsUsed:   []Activity{{Name: "GPT-4", Version: "1.0", Provider: "OpenAI"}},
		ToolsInvoked: []Activity{{Name: "SearchTool", Version: "1.0", Provider: "Internal"}},
		DataAccessed: []Activity{{Name: "UserDB", Version: "1.0", Provider: "Internal"}},
		Timestamp:    simulatedTimestamp,
	}, nil
}
