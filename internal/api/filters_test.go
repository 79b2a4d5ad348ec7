package api

import (
	"testing"

	"github.com/lei/vehicle-ci/internal/models"
)

func scenarioList() []*models.TestScenario {
	return []*models.TestScenario{
		{Name: "speed-alert"},
		{Name: "speed-recovery"},
		{Name: "fuel-warning"},
	}
}

func TestFilterScenarios_NoSearch(t *testing.T) {
	got := FilterScenarios(scenarioList(), "")
	if len(got) != 3 {
		t.Errorf("FilterScenarios() len = %d, want 3", len(got))
	}
}

func TestFilterScenarios_Search(t *testing.T) {
	got := FilterScenarios(scenarioList(), "speed")
	if len(got) != 2 {
		t.Fatalf("FilterScenarios() len = %d, want 2", len(got))
	}
	for _, s := range got {
		if s.Name != "speed-alert" && s.Name != "speed-recovery" {
			t.Errorf("unexpected scenario %q", s.Name)
		}
	}
}

func TestFilterScenarios_SearchCaseInsensitive(t *testing.T) {
	got := FilterScenarios(scenarioList(), "FUEL")
	if len(got) != 1 || got[0].Name != "fuel-warning" {
		t.Errorf("FilterScenarios() = %+v, want fuel-warning only", got)
	}
}

func TestFilterScenarios_NoMatch(t *testing.T) {
	got := FilterScenarios(scenarioList(), "battery")
	if len(got) != 0 {
		t.Errorf("FilterScenarios() len = %d, want 0", len(got))
	}
}
