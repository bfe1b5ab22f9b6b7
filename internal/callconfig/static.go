package callconfig

import (
	"context"
	"sync"
)

// StaticSource is an in-memory [ConfigPort] over a fixed set of agents,
// typically the agents: list of the YAML config. [StaticSource.Replace]
// swaps the set atomically on hot reload.
//
// When the source holds no agents at all, every lookup resolves to the
// defaults so a fresh deployment can take calls without any agent defined.
type StaticSource struct {
	mu     sync.RWMutex
	agents map[int]Agent
}

// NewStaticSource returns a source over agents.
func NewStaticSource(agents []Agent) *StaticSource {
	s := &StaticSource{}
	s.Replace(agents)
	return s
}

// Replace swaps the agent set. Later duplicates of an ID win.
func (s *StaticSource) Replace(agents []Agent) {
	m := make(map[int]Agent, len(agents))
	for _, a := range agents {
		m[a.ID] = a
	}
	s.mu.Lock()
	s.agents = m
	s.mu.Unlock()
}

// Len returns the number of agents held.
func (s *StaticSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents)
}

// ConfigForCall implements [ConfigPort].
func (s *StaticSource) ConfigForCall(_ context.Context, clientType string, agentID int) (CallConfig, error) {
	if agentID <= 0 {
		agentID = DefaultAgentID
	}
	s.mu.RLock()
	a, ok := s.agents[agentID]
	empty := len(s.agents) == 0
	s.mu.RUnlock()

	if !ok {
		if empty {
			return Resolve(Agent{ID: agentID}, clientType), nil
		}
		return CallConfig{}, &ConfigError{ClientType: clientType, AgentID: agentID, Err: ErrAgentNotFound}
	}
	return Resolve(a, clientType), nil
}

var _ ConfigPort = (*StaticSource)(nil)
