// Package config loads the engine's scoped config.yaml, writing
// defaults on first run and filling zero values on load so callers
// never see an unusable configuration.
package config

import (
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/zoi-pm/zoi/src/internal/model"
	"github.com/zoi-pm/zoi/src/internal/paths"
)

type SignaturePolicy struct {
	Enable      bool     `yaml:"enable"`
	TrustedKeys []string `yaml:"trusted_keys"` // 40-hex fingerprints or local keystore names
}

type Config struct {
	ParallelJobs      int               `yaml:"parallel_jobs"`
	RollbackEnabled   bool              `yaml:"rollback_enabled"`
	SignatureEnforcement SignaturePolicy `yaml:"signature_enforcement"`
	Registries        map[string]string `yaml:"registries"` // handle -> url, added registries
	DefaultRegistry   string            `yaml:"default_registry"`
}

func Default() Config {
	return Config{
		ParallelJobs:    3,
		RollbackEnabled: true,
		SignatureEnforcement: SignaturePolicy{
			Enable:      false,
			TrustedKeys: nil,
		},
		Registries:      map[string]string{},
		DefaultRegistry: "official",
	}
}

// LoadOrCreate reads the scoped config.yaml, writing defaults on
// first run if no config file exists yet.
func LoadOrCreate(scope model.Scope, projectDir string) (Config, string, error) {
	if err := paths.EnsureDataRoot(scope, projectDir); err != nil {
		return Config{}, "", err
	}
	path := paths.ConfigFile(scope, projectDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return Config{}, "", err
		}
		return cfg, path, nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.ParallelJobs <= 0 {
		cfg.ParallelJobs = 3
	}
	if cfg.Registries == nil {
		cfg.Registries = map[string]string{}
	}
	return cfg, nil
}

func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
