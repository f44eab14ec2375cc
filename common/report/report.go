// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
)

// StepReport is one stage's entry in the run report.
type StepReport struct {
	Step             string  `json:"step"`
	Success          bool    `json:"success"`
	Message          string  `json:"message"`
	RecordsProcessed int64   `json:"records_processed"`
	RecordsMigrated  int64   `json:"records_migrated"`
	RecordsFailed    int64   `json:"records_failed"`
	DurationSeconds  float64 `json:"duration_seconds"`
	ErrorCount       int     `json:"error_count"`
	WarningCount     int     `json:"warning_count"`
}

// MigrationSummary aggregates step outcomes for the run report.
type MigrationSummary struct {
	TotalSteps            int     `json:"total_steps"`
	SuccessfulSteps       int     `json:"successful_steps"`
	FailedSteps           int     `json:"failed_steps"`
	TotalRecordsProcessed int64   `json:"total_records_processed"`
	TotalRecordsMigrated  int64   `json:"total_records_migrated"`
	TotalRecordsFailed    int64   `json:"total_records_failed"`
	SuccessRate           float64 `json:"success_rate"`
}

// MigrationReport is the JSON file written at the end of every run,
// successful or not.
type MigrationReport struct {
	MigrationID     string                 `json:"migration_id"`
	Timestamp       time.Time              `json:"timestamp"`
	Configuration   map[string]interface{} `json:"configuration"`
	Status          string                 `json:"status"`
	DurationSeconds float64                `json:"duration_seconds"`
	Summary         MigrationSummary       `json:"summary"`
	Steps           []StepReport           `json:"steps"`
}

// EmergencyReport is written when a run dies on an unexpected failure. It
// names the last stage that finished so an operator knows where to look.
type EmergencyReport struct {
	MigrationID        string    `json:"migration_id"`
	Timestamp          time.Time `json:"timestamp"`
	LastCompletedStage string    `json:"last_completed_stage"`
	Error              string    `json:"error"`
	RollbackAttempted  bool      `json:"rollback_attempted"`
	RollbackSucceeded  bool      `json:"rollback_succeeded"`
}

// NewStepReport flattens a stage result into its report entry.
func NewStepReport(step string, result *MigrationResult) StepReport {
	return StepReport{
		Step:             step,
		Success:          result.Success,
		Message:          result.Message,
		RecordsProcessed: result.RecordsProcessed,
		RecordsMigrated:  result.RecordsMigrated,
		RecordsFailed:    result.RecordsFailed,
		DurationSeconds:  result.Duration.Seconds(),
		ErrorCount:       len(result.Errors),
		WarningCount:     len(result.Warnings),
	}
}

// NewMigrationReport assembles the run report from the recorded steps.
func NewMigrationReport(migrationID, status string, configuration map[string]interface{}, duration time.Duration, steps []StepReport) *MigrationReport {
	successful := lo.CountBy(steps, func(s StepReport) bool { return s.Success })

	summary := MigrationSummary{
		TotalSteps:            len(steps),
		SuccessfulSteps:       successful,
		FailedSteps:           len(steps) - successful,
		TotalRecordsProcessed: lo.SumBy(steps, func(s StepReport) int64 { return s.RecordsProcessed }),
		TotalRecordsMigrated:  lo.SumBy(steps, func(s StepReport) int64 { return s.RecordsMigrated }),
		TotalRecordsFailed:    lo.SumBy(steps, func(s StepReport) int64 { return s.RecordsFailed }),
	}
	if summary.TotalRecordsProcessed > 0 {
		summary.SuccessRate = float64(summary.TotalRecordsMigrated) / float64(summary.TotalRecordsProcessed)
	}

	return &MigrationReport{
		MigrationID:     migrationID,
		Timestamp:       time.Now(),
		Configuration:   configuration,
		Status:          status,
		DurationSeconds: duration.Seconds(),
		Summary:         summary,
		Steps:           steps,
	}
}

// WriteMigrationReport writes the run report under dir and returns the path.
func WriteMigrationReport(dir string, r *MigrationReport) (string, error) {
	return writeJSON(dir, fmt.Sprintf("migration_report_%s.json", r.MigrationID), r)
}

// WriteValidationReport writes the validation report under dir and returns
// the path.
func WriteValidationReport(dir string, r *ValidationReport) (string, error) {
	name := fmt.Sprintf("validation_report_%s.json", r.ValidationTimestamp.Format("20060102T150405"))
	return writeJSON(dir, name, r)
}

// WriteEmergencyReport writes the emergency report under dir and returns the
// path.
func WriteEmergencyReport(dir string, r *EmergencyReport) (string, error) {
	return writeJSON(dir, fmt.Sprintf("emergency_report_%s.json", r.MigrationID), r)
}

func writeJSON(dir, name string, v interface{}) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("error creating report directory %v: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error encoding report: %v", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return "", fmt.Errorf("error writing report %v: %v", path, err)
	}
	return path, nil
}
