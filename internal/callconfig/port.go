package callconfig

import (
	"context"
	"errors"
	"fmt"
)

// ErrAgentNotFound is wrapped by a [ConfigError] when the requested agent
// does not exist.
var ErrAgentNotFound = errors.New("callconfig: agent not found")

// ConfigPort resolves the configuration of a call at session start.
type ConfigPort interface {
	// ConfigForCall returns the resolved configuration for agentID on a
	// connection of clientType. Failures are returned as *ConfigError.
	ConfigForCall(ctx context.Context, clientType string, agentID int) (CallConfig, error)
}

// ConfigError reports a failure to load or resolve a call configuration.
type ConfigError struct {
	ClientType string
	AgentID    int
	Err        error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("callconfig: load config for agent %d (%s): %v", e.AgentID, e.ClientType, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// LoaderFunc adapts a plain function to [ConfigPort]. Errors that are not
// already a *ConfigError are wrapped in one.
type LoaderFunc func(ctx context.Context, clientType string, agentID int) (CallConfig, error)

// ConfigForCall implements [ConfigPort].
func (f LoaderFunc) ConfigForCall(ctx context.Context, clientType string, agentID int) (CallConfig, error) {
	cfg, err := f(ctx, clientType, agentID)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			return CallConfig{}, err
		}
		return CallConfig{}, &ConfigError{ClientType: clientType, AgentID: agentID, Err: err}
	}
	return cfg, nil
}

var _ ConfigPort = LoaderFunc(nil)
