package config

import (
	"fmt"
	"os"
	"time"

	"github.com/lei/vehicle-ci/internal/models"
	"gopkg.in/yaml.v3"
)

// ScenariosConfig represents the scenarios configuration file structure
type ScenariosConfig struct {
	Scenarios []ScenarioDefinition `yaml:"scenarios"`
}

// ScenarioDefinition represents a scenario definition in the config file
type ScenarioDefinition struct {
	Name       string                `yaml:"name"`
	Injections []InjectionDefinition `yaml:"injections"`
	Assertions []string              `yaml:"assertions"`
}

// InjectionDefinition represents one scripted signal write
type InjectionDefinition struct {
	Signal string        `yaml:"signal"`
	Value  string        `yaml:"value"`
	Settle time.Duration `yaml:"settle"`
}

// LoadScenarios reads and parses the scenarios configuration file
func LoadScenarios(path string) ([]*models.TestScenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios file: %w", err)
	}

	var cfg ScenariosConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse scenarios: %w", err)
	}

	scenarios := make([]*models.TestScenario, 0, len(cfg.Scenarios))
	for i, sd := range cfg.Scenarios {
		if sd.Name == "" {
			return nil, fmt.Errorf("scenario at index %d missing name", i)
		}
		if len(sd.Assertions) == 0 {
			return nil, fmt.Errorf("scenario %s has no assertions", sd.Name)
		}

		injections := make([]models.Injection, 0, len(sd.Injections))
		for j, in := range sd.Injections {
			if in.Signal == "" {
				return nil, fmt.Errorf("scenario %s injection %d missing signal", sd.Name, j)
			}
			injections = append(injections, models.Injection{
				Signal: in.Signal,
				Value:  in.Value,
				Settle: in.Settle,
			})
		}

		scenarios = append(scenarios, &models.TestScenario{
			Name:       sd.Name,
			Injections: injections,
			Assertions: sd.Assertions,
		})
	}

	return scenarios, nil
}
