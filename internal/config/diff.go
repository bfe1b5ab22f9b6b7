package config

import (
	"reflect"
	"slices"

	"github.com/MrWong99/voxcall/internal/callconfig"
)

// ConfigDiff describes what changed between two configs. Only fields that
// can be applied without a restart are tracked.
type ConfigDiff struct {
	AgentsChanged   bool
	AgentChanges    []AgentDiff // ordered by agent id
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the top-level sections that changed but are
	// only read at startup, e.g. "providers" or "database".
	RestartRequired []string
}

// HotReloadable reports whether d holds any change the running server
// applies without a restart.
func (d ConfigDiff) HotReloadable() bool {
	return d.AgentsChanged || d.LogLevelChanged
}

// AgentDiff describes what changed for a single agent.
type AgentDiff struct {
	ID              int
	ProfileChanged  bool
	OverlaysChanged bool
	Added           bool
	Removed         bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldAgents := agentsByID(old.Agents)
	newAgents := agentsByID(new.Agents)

	for id, oa := range oldAgents {
		na, ok := newAgents[id]
		if !ok {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{ID: id, Removed: true})
			continue
		}
		ad := AgentDiff{
			ID:              id,
			ProfileChanged:  oa.Profile != na.Profile,
			OverlaysChanged: !reflect.DeepEqual(normOverlays(oa.Overlays), normOverlays(na.Overlays)),
		}
		if ad.ProfileChanged || ad.OverlaysChanged {
			d.AgentChanges = append(d.AgentChanges, ad)
		}
	}
	for id := range newAgents {
		if _, ok := oldAgents[id]; !ok {
			d.AgentChanges = append(d.AgentChanges, AgentDiff{ID: id, Added: true})
		}
	}

	slices.SortFunc(d.AgentChanges, func(a, b AgentDiff) int { return a.ID - b.ID })
	d.AgentsChanged = len(d.AgentChanges) > 0
	d.RestartRequired = restartSections(old, new)
	return d
}

func restartSections(old, new *Config) []string {
	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""

	var out []string
	for _, s := range []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"providers", old.Providers, new.Providers},
		{"database", old.Database, new.Database},
		{"policy", old.Policy, new.Policy},
		{"call", old.Call, new.Call},
		{"events", old.Events, new.Events},
	} {
		if !reflect.DeepEqual(s.old, s.new) {
			out = append(out, s.name)
		}
	}
	return out
}

func agentsByID(agents []callconfig.Agent) map[int]callconfig.Agent {
	m := make(map[int]callconfig.Agent, len(agents))
	for _, a := range agents {
		m[a.ID] = a
	}
	return m
}

func normOverlays(m map[string]callconfig.AgentProfile) map[string]callconfig.AgentProfile {
	if len(m) == 0 {
		return nil
	}
	return m
}
