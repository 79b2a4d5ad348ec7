package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lei/vehicle-ci/internal/models"
)

// Report is the machine-readable record of one pipeline invocation.
// All report structs serialize at this single boundary; nothing in the
// pipeline builds JSON by hand.
type Report struct {
	RunID      string                   `json:"run_id"`
	Command    string                   `json:"command"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Input      *models.SourceInput      `json:"input,omitempty"`
	Build      *models.BuildResult      `json:"build,omitempty"`
	Run        *models.RunOutcome       `json:"run,omitempty"`
	Output     *models.OutputSummary    `json:"output,omitempty"`
	Validation *models.ValidationReport `json:"validation,omitempty"`
	Scenario   *models.ScenarioReport   `json:"scenario,omitempty"`
	Gate       *models.GateReport       `json:"gate,omitempty"`
	Error      string                   `json:"error,omitempty"`
	ErrorKind  Kind                     `json:"error_kind,omitempty"`
}

// NewReport starts a report for the given subcommand
func NewReport(command string) *Report {
	return &Report{
		RunID:     uuid.NewString(),
		Command:   command,
		StartedAt: time.Now(),
	}
}

// Finish stamps the end time and records a classified error, if any
func (r *Report) Finish(err error) {
	r.FinishedAt = time.Now()
	if err != nil {
		r.Error = err.Error()
		r.ErrorKind = KindOf(err)
	}
}

// ParseReport reconstructs a report from its serialized form
func ParseReport(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &r, nil
}

// Write serializes the report to path, creating parent directories
func (r *Report) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
