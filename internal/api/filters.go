package api

import (
	"strings"

	"github.com/lei/vehicle-ci/internal/models"
)

// FilterScenarios filters scenarios by a case-insensitive name search
func FilterScenarios(scenarios []*models.TestScenario, search string) []*models.TestScenario {
	if search == "" {
		return scenarios
	}

	filtered := make([]*models.TestScenario, 0, len(scenarios))
	searchLower := strings.ToLower(search)

	for _, s := range scenarios {
		if !strings.Contains(strings.ToLower(s.Name), searchLower) {
			continue
		}
		filtered = append(filtered, s)
	}

	return filtered
}
