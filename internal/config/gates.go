package config

import (
	"fmt"
	"os"

	"github.com/lei/vehicle-ci/internal/models"
	"gopkg.in/yaml.v3"
)

// GatesConfig represents the quality gates configuration file structure
type GatesConfig struct {
	Gates []GateDefinition `yaml:"gates"`
}

// GateDefinition represents one metric definition in the config file
type GateDefinition struct {
	Name      string  `yaml:"name"`
	Threshold float64 `yaml:"threshold"`
	Direction string  `yaml:"direction"`
	Critical  bool    `yaml:"critical"`
}

// LoadGates reads and parses the quality gates configuration file
func LoadGates(path string) ([]models.GateMetric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gates file: %w", err)
	}

	var cfg GatesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse gates: %w", err)
	}

	metrics := make([]models.GateMetric, 0, len(cfg.Gates))
	for i, gd := range cfg.Gates {
		if gd.Name == "" {
			return nil, fmt.Errorf("gate at index %d missing name", i)
		}

		direction := models.GateDirection(gd.Direction)
		switch direction {
		case models.DirectionAtMost, models.DirectionAtLeast, models.DirectionEquals:
		case "":
			direction = models.DirectionAtMost
		default:
			return nil, fmt.Errorf("gate %s has unknown direction %q", gd.Name, gd.Direction)
		}

		metrics = append(metrics, models.GateMetric{
			Name:      gd.Name,
			Threshold: gd.Threshold,
			Direction: direction,
			Critical:  gd.Critical,
		})
	}

	return metrics, nil
}
