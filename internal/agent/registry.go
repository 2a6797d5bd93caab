// Package agent hosts pipeline agents in-process and over HTTP
package agent

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// RemoteConfig configures the remote agent dispatch table
type RemoteConfig struct {
	URLs        map[string]string // agent name -> base URL
	CallTimeout time.Duration
}

// Registry resolves agent names to implementations. The same registry serves
// both modes: a dispatch table of local agents and a table of HTTP clients.
type Registry struct {
	local  map[string]pipeline.Agent
	remote map[string]pipeline.Agent
	log    zerolog.Logger
}

// NewRegistry builds a registry from local agents and the remote URL table
func NewRegistry(locals []pipeline.Agent, remoteCfg RemoteConfig, log zerolog.Logger) *Registry {
	r := &Registry{
		local:  make(map[string]pipeline.Agent, len(locals)),
		remote: make(map[string]pipeline.Agent, len(remoteCfg.URLs)),
		log:    log.With().Str("component", "agent_registry").Logger(),
	}

	for _, a := range locals {
		r.local[a.Name()] = a
	}

	timeout := remoteCfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	for name, url := range remoteCfg.URLs {
		r.remote[name] = NewRemoteAgent(name, url, timeout)
	}

	return r
}

// Resolve returns the agent for a name under the given mode
func (r *Registry) Resolve(name string, mode pipeline.Mode) (pipeline.Agent, error) {
	switch mode {
	case pipeline.ModeInProcess:
		if a, ok := r.local[name]; ok {
			return a, nil
		}
		return nil, fmt.Errorf("no in-process agent registered for %q", name)
	case pipeline.ModeRemote:
		if a, ok := r.remote[name]; ok {
			return a, nil
		}
		return nil, fmt.Errorf("no remote endpoint configured for %q", name)
	default:
		return nil, fmt.Errorf("unknown agent mode %q", mode)
	}
}
