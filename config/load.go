package config

import (
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads the yaml config at path (if it exists) and applies AGD_* env
// overrides on top. A missing file is not an error; env-only setups are
// common in container deployments.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
