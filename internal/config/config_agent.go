package config

import (
	"fmt"
	"time"
)

// AgentAdapter holds network settings used by the agent's transport layer.
type AgentAdapter struct {
	// ServerURL is the sync server base URL.
	ServerURL string
	// Token is the bearer token presented on every request.
	Token string
	// RequestTimeout is the default timeout for outbound requests.
	RequestTimeout time.Duration
}

// AgentStorage holds the agent's local state settings.
type AgentStorage struct {
	// Path is the SQLite state file path.
	Path string
}

// AgentWorkers holds background job settings for the agent.
type AgentWorkers struct {
	// ReconcileInterval defines how often tracked groups are refetched.
	ReconcileInterval time.Duration
}

// AgentConfig is the agent-specific view assembled from [StructuredConfig].
type AgentConfig struct {
	// UserID is the identity the agent acts as.
	UserID string
	// Adapter contains transport addresses and timeouts.
	Adapter AgentAdapter
	// Storage contains local state settings.
	Storage AgentStorage
	// Workers contains background job settings.
	Workers AgentWorkers
}

// GetAgentConfig builds and validates an agent-specific config view from
// the merged structured configuration.
func GetAgentConfig() (*AgentConfig, error) {
	cfg, err := GetStructuredConfig()
	if err != nil {
		return nil, fmt.Errorf("error get structured config: %w", err)
	}

	agentCfg := &AgentConfig{
		UserID: cfg.Agent.UserID,
		Adapter: AgentAdapter{
			ServerURL:      cfg.Agent.ServerURL,
			Token:          cfg.Agent.Token,
			RequestTimeout: cfg.Agent.RequestTimeout,
		},
		Storage: AgentStorage{
			Path: cfg.Storage.Local.Path,
		},
		Workers: AgentWorkers{ReconcileInterval: cfg.Workers.ReconcileInterval},
	}

	return agentCfg, agentCfg.validate()
}
