package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// applyEnv overlays MEDBOT_* variables onto cfg. Unset variables keep the
// file value.
func applyEnv(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	return nil
}

// EnvHelp lists the supported environment variables.
func EnvHelp() string {
	s, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return ""
	}
	return s
}
