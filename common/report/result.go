// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package report defines the result types every pipeline stage produces and
// writes the JSON run reports consumed by operators and the notification
// layer.
package report

import (
	"fmt"
	"time"
)

// MigrationResult encapsulates the outcome of one pipeline stage: a backup,
// a single collection's migration, or a rollback.
type MigrationResult struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	RecordsProcessed int64    `json:"records_processed"`
	RecordsMigrated  int64    `json:"records_migrated"`
	RecordsFailed    int64    `json:"records_failed"`
	Errors           []string `json:"errors,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`

	Duration time.Duration `json:"-"`
}

// NewResult returns an in-progress result that is successful until an error
// is recorded.
func NewResult() *MigrationResult {
	return &MigrationResult{Success: true}
}

// AddError records a stage-level error and marks the result failed.
func (r *MigrationResult) AddError(format string, a ...interface{}) {
	r.Success = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, a...))
}

// AddWarning records a non-fatal finding.
func (r *MigrationResult) AddWarning(format string, a ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, a...))
}

// Finish stamps the duration and the final message.
func (r *MigrationResult) Finish(start time.Time, format string, a ...interface{}) *MigrationResult {
	r.Duration = time.Since(start)
	r.Message = fmt.Sprintf(format, a...)
	return r
}

// CombineWith sums the counts from the other result and ANDs the success
// flags.
func (r *MigrationResult) CombineWith(other *MigrationResult) {
	r.RecordsProcessed += other.RecordsProcessed
	r.RecordsMigrated += other.RecordsMigrated
	r.RecordsFailed += other.RecordsFailed
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if !other.Success {
		r.Success = false
	}
}

// FailureRate returns failed/processed, guarding the empty-collection case.
func (r *MigrationResult) FailureRate() float64 {
	if r.RecordsProcessed <= 0 {
		return 0
	}
	return float64(r.RecordsFailed) / float64(r.RecordsProcessed)
}
