// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package report

import "time"

// Severity of a validation issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ValidationIssue describes one failed check against one document.
type ValidationIssue struct {
	Collection string   `json:"collection"`
	DocumentID string   `json:"document_id"`
	Field      string   `json:"field"`
	IssueType  string   `json:"issue_type"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`

	// SuggestedFix, when non-nil, describes a repair the fix pass can apply.
	SuggestedFix *SuggestedFix `json:"suggested_fix,omitempty"`

	// RawID is the document's _id as stored, kept out of the JSON report
	// so the fix pass can address the document directly.
	RawID interface{} `json:"-"`
}

// SuggestedFix is a concrete field rewrite for an issue.
type SuggestedFix struct {
	Description string      `json:"description"`
	Field       string      `json:"field"`
	Value       interface{} `json:"value"`
}

// PerformanceMetrics captures how a collection's validation behaved.
type PerformanceMetrics struct {
	ElapsedSeconds     float64 `json:"elapsed_seconds"`
	DocumentsPerSecond float64 `json:"documents_per_second"`
	AvgDocumentBytes   int64   `json:"avg_document_bytes"`
	IndexCount         int     `json:"index_count"`
}

// ValidationResult is the outcome of validating one collection.
type ValidationResult struct {
	Collection       string             `json:"collection"`
	TotalDocuments   int64              `json:"total_documents"`
	ValidDocuments   int64              `json:"valid_documents"`
	InvalidDocuments int64              `json:"invalid_documents"`
	Issues           []ValidationIssue  `json:"issues"`
	Metrics          PerformanceMetrics `json:"metrics"`
}

// CountBySeverity returns how many of the result's issues carry the given
// severity.
func (vr *ValidationResult) CountBySeverity(severity Severity) int {
	count := 0
	for _, issue := range vr.Issues {
		if issue.Severity == severity {
			count++
		}
	}
	return count
}

// ValidationSummary aggregates validation results across collections.
type ValidationSummary struct {
	TotalDocuments   int64 `json:"total_documents"`
	ValidDocuments   int64 `json:"valid_documents"`
	InvalidDocuments int64 `json:"invalid_documents"`
	TotalIssues      int   `json:"total_issues"`
	CriticalIssues   int   `json:"critical_issues"`
	WarningIssues    int   `json:"warning_issues"`
}

// ValidationReport is the JSON file written after post-migration validation.
type ValidationReport struct {
	ValidationTimestamp  time.Time                    `json:"validation_timestamp"`
	DatabaseName         string                       `json:"database_name"`
	CollectionsValidated []string                     `json:"collections_validated"`
	Summary              ValidationSummary            `json:"summary"`
	Results              map[string]*ValidationResult `json:"results"`
}

// NewValidationReport assembles a report from per-collection results.
func NewValidationReport(database string, results map[string]*ValidationResult) *ValidationReport {
	vr := &ValidationReport{
		ValidationTimestamp: time.Now(),
		DatabaseName:        database,
		Results:             results,
	}
	for name, result := range results {
		vr.CollectionsValidated = append(vr.CollectionsValidated, name)
		vr.Summary.TotalDocuments += result.TotalDocuments
		vr.Summary.ValidDocuments += result.ValidDocuments
		vr.Summary.InvalidDocuments += result.InvalidDocuments
		vr.Summary.TotalIssues += len(result.Issues)
		vr.Summary.CriticalIssues += result.CountBySeverity(SeverityCritical)
		vr.Summary.WarningIssues += result.CountBySeverity(SeverityWarning)
	}
	return vr
}
