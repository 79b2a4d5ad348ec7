package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lei/vehicle-ci/internal/models"
)

func writeScenarios(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadScenarios_Valid(t *testing.T) {
	path := writeScenarios(t, `
scenarios:
  - name: speed-alert
    injections:
      - signal: Vehicle.Speed
        value: "130"
        settle: 3s
    assertions:
      - "speed limit exceeded"
  - name: startup-only
    assertions:
      - "(?i)connect"
`)

	scenarios, err := LoadScenarios(path)
	if err != nil {
		t.Fatalf("LoadScenarios() error = %v", err)
	}
	if len(scenarios) != 2 {
		t.Fatalf("len = %d, want 2", len(scenarios))
	}
	if scenarios[0].Injections[0].Settle != 3*time.Second {
		t.Errorf("settle = %s, want 3s", scenarios[0].Injections[0].Settle)
	}
	if len(scenarios[1].Injections) != 0 {
		t.Error("startup-only must have no injections")
	}
}

func TestLoadScenarios_MissingName(t *testing.T) {
	path := writeScenarios(t, "scenarios:\n  - assertions:\n      - x\n")
	if _, err := LoadScenarios(path); err == nil {
		t.Error("LoadScenarios() must reject a scenario without a name")
	}
}

func TestLoadScenarios_NoAssertions(t *testing.T) {
	path := writeScenarios(t, "scenarios:\n  - name: empty\n")
	if _, err := LoadScenarios(path); err == nil {
		t.Error("LoadScenarios() must reject a scenario without assertions")
	}
}

func TestLoadScenarios_InjectionMissingSignal(t *testing.T) {
	path := writeScenarios(t, `
scenarios:
  - name: bad
    injections:
      - value: "1"
    assertions:
      - x
`)
	if _, err := LoadScenarios(path); err == nil {
		t.Error("LoadScenarios() must reject an injection without a signal")
	}
}

func TestLoadGates_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gates.yaml")
	content := `
gates:
  - name: build_time_seconds
    threshold: 300
    direction: at-most
    critical: true
  - name: defaulted
    threshold: 1
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	metrics, err := LoadGates(path)
	if err != nil {
		t.Fatalf("LoadGates() error = %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("len = %d, want 2", len(metrics))
	}
	if !metrics[0].Critical {
		t.Error("critical flag lost")
	}
	if metrics[1].Direction != models.DirectionAtMost {
		t.Errorf("empty direction = %s, want at-most default", metrics[1].Direction)
	}
}

func TestLoadGates_UnknownDirection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gates.yaml")
	content := "gates:\n  - name: x\n    direction: sideways\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadGates(path); err == nil {
		t.Error("LoadGates() must reject an unknown direction")
	}
}
