// Package infra implements infrastructure concerns: configuration,
// the shield sink projection, interval monitoring, notifications, and
// process liveness.
package infra

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds process configuration, populated from SHIELDD_* env vars.
type Config struct {
	// DataDir is the shared directory holding the state store, the
	// change signal, and the shield projection. All processes must
	// point at the same directory.
	DataDir string `envconfig:"DATA_DIR" default:"/var/tmp/shieldd"`

	// StoreBackend selects the state store: "file" or "encrypted".
	StoreBackend string `envconfig:"STORE_BACKEND" default:"file"`

	// LogFile receives daemon logs; empty means stderr.
	LogFile string `envconfig:"LOG_FILE" default:""`
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("shieldd", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
