// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package datamigrate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/advisorhub/advisor-tools/common/db"
	"github.com/advisorhub/advisor-tools/common/log"
	"github.com/advisorhub/advisor-tools/common/report"
	mapset "github.com/deckarep/golang-set/v2"
	"go.mongodb.org/mongo-driver/bson"
)

// RuleFunc is a business-consistency check applied to one document.
// Schema failures are always critical; rule findings default to warning
// severity and may carry a suggested fix.
type RuleFunc func(doc bson.D) []report.ValidationIssue

// Validator runs the two-phase check over migrated collections: schema
// shape first, then the collection's business rules.
type Validator struct {
	Gateway  db.Gateway
	Database string
	Schemas  map[string]*CollectionSchema
	Rules    map[string][]RuleFunc

	// SampleSize > 0 validates only the first SampleSize documents in
	// source order; 0 validates everything.
	SampleSize int
	BatchSize  int32
}

// NewValidator returns a validator with the production schemas and rules.
func NewValidator(gateway db.Gateway, database string) *Validator {
	return &Validator{
		Gateway:  gateway,
		Database: database,
		Schemas:  TargetSchemas(),
		Rules:    DefaultRules(),
	}
}

// ValidateAllCollections validates each named collection and returns the
// per-collection results keyed by collection name.
func (v *Validator) ValidateAllCollections(ctx context.Context, collections []string) (map[string]*report.ValidationResult, error) {
	sorted := append([]string(nil), collections...)
	sort.Strings(sorted)

	results := make(map[string]*report.ValidationResult, len(sorted))
	for _, collection := range sorted {
		result, err := v.ValidateCollection(ctx, collection)
		if err != nil {
			return results, err
		}
		results[collection] = result
	}
	return results, nil
}

// ValidateCollection checks every sampled document of one collection. An
// empty collection validates trivially: zero documents, no issues.
func (v *Validator) ValidateCollection(ctx context.Context, collection string) (*report.ValidationResult, error) {
	start := time.Now()
	result := &report.ValidationResult{
		Collection: collection,
		Issues:     []report.ValidationIssue{},
	}

	total, err := v.Gateway.Count(ctx, v.Database, collection, nil)
	if err != nil {
		return nil, fmt.Errorf("error counting %v.%v: %v", v.Database, collection, err)
	}
	result.TotalDocuments = total

	schema := v.Schemas[collection]
	rules := append([]RuleFunc(nil), v.Rules[collection]...)
	rules = append(rules, newDuplicateIDRule(collection))

	cursor, err := v.Gateway.Find(ctx, v.Database, collection, nil, v.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("error reading %v.%v: %v", v.Database, collection, err)
	}
	defer cursor.Close(ctx)

	var checked, byteTotal int64
	for cursor.Next(ctx) {
		if v.SampleSize > 0 && checked >= int64(v.SampleSize) {
			break
		}
		var doc bson.D
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		checked++
		if raw, err := bson.Marshal(doc); err == nil {
			byteTotal += int64(len(raw))
		}

		issues := schema.Validate(doc)
		for _, rule := range rules {
			issues = append(issues, rule(doc)...)
		}

		critical := false
		for _, issue := range issues {
			if issue.Severity == report.SeverityCritical {
				critical = true
			}
		}
		if critical {
			result.InvalidDocuments++
		} else {
			result.ValidDocuments++
		}
		result.Issues = append(result.Issues, issues...)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	indexes, err := v.Gateway.ListIndexes(ctx, v.Database, collection)
	if err != nil {
		return nil, fmt.Errorf("error listing indexes on %v.%v: %v", v.Database, collection, err)
	}

	elapsed := time.Since(start)
	result.Metrics = report.PerformanceMetrics{
		ElapsedSeconds: elapsed.Seconds(),
		IndexCount:     len(indexes),
	}
	if elapsed > 0 {
		result.Metrics.DocumentsPerSecond = float64(checked) / elapsed.Seconds()
	}
	if checked > 0 {
		result.Metrics.AvgDocumentBytes = byteTotal / checked
	}

	log.Logvf(log.Info, "validated %v of %v documents in %v.%v: %v issues",
		checked, total, v.Database, collection, len(result.Issues))
	return result, nil
}

// FixIssues applies the suggested fixes collected during validation. In
// dry-run mode it reports exactly the counts a live run would produce
// without touching the store.
func (v *Validator) FixIssues(ctx context.Context, results map[string]*report.ValidationResult, dryRun bool) (*report.MigrationResult, error) {
	result := report.NewResult()
	start := time.Now()

	var fixable, fixed int64
	for _, vr := range results {
		for _, issue := range vr.Issues {
			if issue.SuggestedFix == nil {
				continue
			}
			fixable++
			if dryRun {
				fixed++
				log.Logvf(log.DebugLow, "would fix %v in %v document %v",
					issue.SuggestedFix.Field, issue.Collection, issue.DocumentID)
				continue
			}
			if err := v.applyFix(ctx, issue); err != nil {
				result.AddError("document %v in %v: %v", issue.DocumentID, issue.Collection, err)
				continue
			}
			fixed++
		}
	}

	result.RecordsProcessed = fixable
	result.RecordsMigrated = fixed
	result.RecordsFailed = fixable - fixed
	mode := ""
	if dryRun {
		mode = " (dry run)"
	}
	return result.Finish(start, "applied %v of %v suggested fixes%v", fixed, fixable, mode), nil
}

func (v *Validator) applyFix(ctx context.Context, issue report.ValidationIssue) error {
	if issue.RawID == nil {
		return fmt.Errorf("no document id recorded for fix")
	}
	cursor, err := v.Gateway.Find(ctx, v.Database, issue.Collection, bson.D{{"_id", issue.RawID}}, 1)
	if err != nil {
		return err
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return err
		}
		return fmt.Errorf("document no longer exists")
	}
	var doc bson.D
	if err := cursor.Decode(&doc); err != nil {
		return err
	}

	doc = setField(doc, issue.SuggestedFix.Field, issue.SuggestedFix.Value)
	return v.Gateway.ReplaceOne(ctx, v.Database, issue.Collection, issue.RawID, doc)
}

// DefaultRules returns the business-consistency rules for the advisory
// platform's production collections.
func DefaultRules() map[string][]RuleFunc {
	return map[string][]RuleFunc{
		"recommendations": {ruleCompletedRecommendationIsFull},
		"advisors":        {ruleAdvisorRatingInRange},
		"portfolios":      {rulePortfolioValueNonNegative, rulePortfolioRiskScoreInRange},
	}
}

// A completed recommendation must report 100% completion; the fix pass
// can repair this one mechanically.
func ruleCompletedRecommendationIsFull(doc bson.D) []report.ValidationIssue {
	status, _ := getField(doc, "status")
	if status != "completed" {
		return nil
	}
	raw, ok := getField(doc, "completion")
	if ok {
		if n, err := asFloat(raw); err == nil && n == 100 {
			return nil
		}
	}
	docID, rawID := documentID(doc)
	return []report.ValidationIssue{{
		Collection: "recommendations",
		DocumentID: docID,
		Field:      "completion",
		IssueType:  "inconsistent_value",
		Severity:   report.SeverityWarning,
		Message:    fmt.Sprintf("completed recommendation has completion %v, expected 100", raw),
		SuggestedFix: &report.SuggestedFix{
			Description: "set completion to 100",
			Field:       "completion",
			Value:       int32(100),
		},
		RawID: rawID,
	}}
}

func ruleAdvisorRatingInRange(doc bson.D) []report.ValidationIssue {
	raw, ok := getField(doc, "rating")
	if !ok {
		return nil
	}
	rating, err := asFloat(raw)
	if err != nil || (rating >= 0 && rating <= 5) {
		return nil
	}
	clamped := rating
	if clamped < 0 {
		clamped = 0
	} else if clamped > 5 {
		clamped = 5
	}
	docID, rawID := documentID(doc)
	return []report.ValidationIssue{{
		Collection: "advisors",
		DocumentID: docID,
		Field:      "rating",
		IssueType:  "out_of_range",
		Severity:   report.SeverityWarning,
		Message:    fmt.Sprintf("advisor rating %v is outside [0, 5]", rating),
		SuggestedFix: &report.SuggestedFix{
			Description: "clamp rating into [0, 5]",
			Field:       "rating",
			Value:       clamped,
		},
		RawID: rawID,
	}}
}

func rulePortfolioValueNonNegative(doc bson.D) []report.ValidationIssue {
	raw, ok := getField(doc, "total_value")
	if !ok {
		return nil
	}
	value, err := asFloat(raw)
	if err != nil || value >= 0 {
		return nil
	}
	docID, rawID := documentID(doc)
	return []report.ValidationIssue{{
		Collection: "portfolios",
		DocumentID: docID,
		Field:      "total_value",
		IssueType:  "out_of_range",
		Severity:   report.SeverityWarning,
		Message:    fmt.Sprintf("portfolio total_value %v is negative", value),
		RawID:      rawID,
	}}
}

// rulePortfolioRiskScoreInRange checks the optional 1-10 risk score.
func rulePortfolioRiskScoreInRange(doc bson.D) []report.ValidationIssue {
	raw, ok := getField(doc, "risk_score")
	if !ok {
		return nil
	}
	score, err := asFloat(raw)
	if err != nil || (score >= 1 && score <= 10) {
		return nil
	}
	docID, rawID := documentID(doc)
	return []report.ValidationIssue{{
		Collection: "portfolios",
		DocumentID: docID,
		Field:      "risk_score",
		IssueType:  "out_of_range",
		Severity:   report.SeverityWarning,
		Message:    fmt.Sprintf("portfolio risk_score %v is outside [1, 10]", score),
		RawID:      rawID,
	}}
}

// newDuplicateIDRule reports repeated _id values within one validation
// pass. Duplicates cannot be auto-fixed, so the finding is informational.
func newDuplicateIDRule(collection string) RuleFunc {
	seen := mapset.NewSet[string]()
	return func(doc bson.D) []report.ValidationIssue {
		raw, ok := getField(doc, "_id")
		if !ok {
			return nil
		}
		key := idKey(raw)
		if seen.Add(key) {
			return nil
		}
		docID, rawID := documentID(doc)
		return []report.ValidationIssue{{
			Collection: collection,
			DocumentID: docID,
			Field:      "_id",
			IssueType:  "duplicate_id",
			Severity:   report.SeverityInfo,
			Message:    fmt.Sprintf("document id %v appears more than once", docID),
			RawID:      rawID,
		}}
	}
}
