// Package config loads the tunable thresholds from YAML, falling back to
// compiled-in defaults when no file is present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ckoons/katra-sub002/internal/converge"
)

// Config is the full runtime configuration.
type Config struct {
	// DataDir holds the append log; the index database lives beside it.
	DataDir string `yaml:"data_dir"`

	Convergence Convergence `yaml:"convergence"`
}

// Convergence mirrors converge.Config with YAML-friendly hour units.
type Convergence struct {
	Threshold       float64 `yaml:"threshold"`
	Boost           float64 `yaml:"boost"`
	ImportanceFloor float64 `yaml:"importance_floor"`
	WindowHours     int     `yaml:"window_hours"`
	CentralityFloor float64 `yaml:"centrality_floor"`
	SemanticFloor   float64 `yaml:"semantic_floor"`
}

// Default returns the stock configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	cc := converge.DefaultConfig()
	return Config{
		DataDir: filepath.Join(home, ".katra"),
		Convergence: Convergence{
			Threshold:       cc.Threshold,
			Boost:           cc.Boost,
			ImportanceFloor: cc.ImportanceFloor,
			WindowHours:     int(cc.Window / time.Hour),
			CentralityFloor: cc.CentralityFloor,
			SemanticFloor:   cc.SemanticFloor,
		},
	}
}

// Load reads YAML config from path. A missing file returns defaults; a
// malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ConvergeConfig converts the YAML form to the detector's config.
func (c Config) ConvergeConfig() converge.Config {
	return converge.Config{
		Threshold:       c.Convergence.Threshold,
		Boost:           c.Convergence.Boost,
		ImportanceFloor: c.Convergence.ImportanceFloor,
		Window:          time.Duration(c.Convergence.WindowHours) * time.Hour,
		CentralityFloor: c.Convergence.CentralityFloor,
		SemanticFloor:   c.Convergence.SemanticFloor,
	}
}
