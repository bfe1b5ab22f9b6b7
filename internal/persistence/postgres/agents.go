package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MrWong99/voxcall/internal/callconfig"
)

// AgentStore resolves call configurations from the agent_configs table.
type AgentStore struct {
	db DB
}

var _ callconfig.ConfigPort = (*AgentStore)(nil)

// NewAgentStore returns an agent store using db.
func NewAgentStore(db DB) *AgentStore {
	return &AgentStore{db: db}
}

// Get loads one agent. It returns [callconfig.ErrAgentNotFound] when no row
// exists.
func (s *AgentStore) Get(ctx context.Context, id int) (callconfig.Agent, error) {
	var profileJSON, overlaysJSON []byte
	err := s.db.QueryRow(ctx, `SELECT profile, overlays FROM agent_configs WHERE id = $1`, id).
		Scan(&profileJSON, &overlaysJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return callconfig.Agent{}, callconfig.ErrAgentNotFound
		}
		return callconfig.Agent{}, fmt.Errorf("postgres: get agent %d: %w", id, err)
	}

	a := callconfig.Agent{ID: id}
	if len(profileJSON) > 0 {
		if err := json.Unmarshal(profileJSON, &a.Profile); err != nil {
			return callconfig.Agent{}, fmt.Errorf("postgres: unmarshal profile of agent %d: %w", id, err)
		}
	}
	if len(overlaysJSON) > 0 {
		if err := json.Unmarshal(overlaysJSON, &a.Overlays); err != nil {
			return callconfig.Agent{}, fmt.Errorf("postgres: unmarshal overlays of agent %d: %w", id, err)
		}
	}
	return a, nil
}

// ConfigForCall implements [callconfig.ConfigPort].
func (s *AgentStore) ConfigForCall(ctx context.Context, clientType string, agentID int) (callconfig.CallConfig, error) {
	if agentID <= 0 {
		agentID = callconfig.DefaultAgentID
	}
	a, err := s.Get(ctx, agentID)
	if err != nil {
		return callconfig.CallConfig{}, &callconfig.ConfigError{ClientType: clientType, AgentID: agentID, Err: err}
	}
	return callconfig.Resolve(a, clientType), nil
}

// Upsert inserts or replaces an agent.
func (s *AgentStore) Upsert(ctx context.Context, a callconfig.Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}
	profileJSON, err := json.Marshal(a.Profile)
	if err != nil {
		return fmt.Errorf("postgres: marshal profile: %w", err)
	}
	overlaysJSON, err := json.Marshal(emptyMap(a.Overlays))
	if err != nil {
		return fmt.Errorf("postgres: marshal overlays: %w", err)
	}

	const query = `
		INSERT INTO agent_configs (id, profile, overlays, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET profile = EXCLUDED.profile, overlays = EXCLUDED.overlays, updated_at = now()`

	if _, err := s.db.Exec(ctx, query, a.ID, profileJSON, overlaysJSON); err != nil {
		return fmt.Errorf("postgres: upsert agent %d: %w", a.ID, err)
	}
	return nil
}
