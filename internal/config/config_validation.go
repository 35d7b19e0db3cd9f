package config

// validate checks that the final merged [StructuredConfig] satisfies the
// invariants required before startup. Only fields every deployment needs
// are checked here; role-specific requirements live on the role views.
func (cfg *StructuredConfig) validate() error {
	return nil
}

// ValidateServer checks the fields the sync server cannot start without.
func (cfg *StructuredConfig) ValidateServer() error {
	if cfg.Server.HTTPAddress == "" {
		return ErrInvalidServerConfigs
	}

	if cfg.Storage.DB.DSN == "" {
		return ErrInvalidStorageConfigs
	}

	if cfg.Auth.TokenSignKey == "" || cfg.Auth.TokenIssuer == "" {
		return ErrInvalidAuthConfigs
	}

	return nil
}

func (cfg *AgentConfig) validate() error {
	if cfg.Adapter.ServerURL == "" || cfg.Adapter.RequestTimeout == 0 {
		return ErrInvalidAdapterConfigs
	}

	if cfg.Adapter.Token == "" || cfg.UserID == "" {
		return ErrInvalidAuthConfigs
	}

	if cfg.Workers.ReconcileInterval == 0 {
		return ErrInvalidWorkerConfigs
	}

	return nil
}
