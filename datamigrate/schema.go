// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package datamigrate

import (
	"fmt"
	"regexp"
	"time"

	"github.com/advisorhub/advisor-tools/common/report"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Field kinds understood by the shape validator.
const (
	KindString = "string"
	KindInt    = "int"
	KindFloat  = "float"
	KindBool   = "bool"
	KindID     = "objectid"
	KindDate   = "date"
	KindDoc    = "document"
	KindArray  = "array"
)

// FieldSpec describes the expected shape of one field. Pattern, Enum and
// the range bounds only apply when the value is present and of the right
// kind.
type FieldSpec struct {
	Kind     string
	Required bool
	Pattern  *regexp.Regexp
	Enum     []string
	Min      *float64
	Max      *float64
}

// CollectionSchema is the explicit target shape of one collection. Shape
// failures are always critical: a document that violates its schema must
// never be written to the target.
type CollectionSchema struct {
	Name   string
	Fields map[string]FieldSpec
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// TargetSchemas returns the target shapes for the advisory platform's
// production collections.
func TargetSchemas() map[string]*CollectionSchema {
	zero := 0.0
	five := 5.0
	hundred := 100.0
	return map[string]*CollectionSchema{
		"users": {
			Name: "users",
			Fields: map[string]FieldSpec{
				"email":  {Kind: KindString, Required: true, Pattern: emailPattern},
				"name":   {Kind: KindString},
				"status": {Kind: KindString, Enum: []string{"active", "inactive", "suspended"}},
				"joined": {Kind: KindDate},
			},
		},
		"advisors": {
			Name: "advisors",
			Fields: map[string]FieldSpec{
				"name":             {Kind: KindString, Required: true},
				"rating":           {Kind: KindFloat, Min: &zero, Max: &five},
				"years_experience": {Kind: KindInt, Min: &zero},
			},
		},
		"portfolios": {
			Name: "portfolios",
			Fields: map[string]FieldSpec{
				"user_id":     {Kind: KindID, Required: true},
				"currency":    {Kind: KindString, Required: true},
				"total_value": {Kind: KindFloat, Min: &zero},
				"risk_score":  {Kind: KindFloat},
				"holdings":    {Kind: KindArray},
				"status":      {Kind: KindString, Enum: []string{"active", "closed"}},
			},
		},
		"recommendations": {
			Name: "recommendations",
			Fields: map[string]FieldSpec{
				"advisor_id": {Kind: KindID, Required: true},
				"status": {Kind: KindString, Required: true,
					Enum: []string{"pending", "in_progress", "completed", "cancelled"}},
				"completion": {Kind: KindInt, Min: &zero, Max: &hundred},
				"created_at": {Kind: KindDate},
			},
		},
	}
}

// Validate checks a document against the schema and returns one critical
// issue per violation. A nil schema accepts everything.
func (cs *CollectionSchema) Validate(doc bson.D) []report.ValidationIssue {
	if cs == nil {
		return nil
	}
	var issues []report.ValidationIssue
	docID, rawID := documentID(doc)

	present := make(map[string]interface{}, len(doc))
	for _, elem := range doc {
		present[elem.Key] = elem.Value
	}

	for field, spec := range cs.Fields {
		value, ok := present[field]
		if !ok {
			if spec.Required {
				issues = append(issues, cs.issue(docID, rawID, field, "missing_field",
					fmt.Sprintf("required field %q is missing", field)))
			}
			continue
		}
		issues = append(issues, cs.checkValue(docID, rawID, field, spec, value)...)
	}
	return issues
}

func (cs *CollectionSchema) checkValue(docID string, rawID interface{}, field string, spec FieldSpec, value interface{}) []report.ValidationIssue {
	if !kindMatches(spec.Kind, value) {
		return []report.ValidationIssue{cs.issue(docID, rawID, field, "wrong_type",
			fmt.Sprintf("field %q has value %v, expected %v", field, value, spec.Kind))}
	}

	var issues []report.ValidationIssue
	if s, ok := value.(string); ok {
		if spec.Pattern != nil && !spec.Pattern.MatchString(s) {
			issues = append(issues, cs.issue(docID, rawID, field, "bad_format",
				fmt.Sprintf("field %q value %q does not match the expected format", field, s)))
		}
		if len(spec.Enum) > 0 && !contains(spec.Enum, s) {
			issues = append(issues, cs.issue(docID, rawID, field, "bad_value",
				fmt.Sprintf("field %q value %q is not one of %v", field, s, spec.Enum)))
		}
	}
	if spec.Min != nil || spec.Max != nil {
		if n, err := asFloat(value); err == nil {
			if spec.Min != nil && n < *spec.Min {
				issues = append(issues, cs.issue(docID, rawID, field, "out_of_range",
					fmt.Sprintf("field %q value %v is below the minimum %v", field, n, *spec.Min)))
			}
			if spec.Max != nil && n > *spec.Max {
				issues = append(issues, cs.issue(docID, rawID, field, "out_of_range",
					fmt.Sprintf("field %q value %v is above the maximum %v", field, n, *spec.Max)))
			}
		}
	}
	return issues
}

func (cs *CollectionSchema) issue(docID string, rawID interface{}, field, issueType, message string) report.ValidationIssue {
	return report.ValidationIssue{
		Collection: cs.Name,
		DocumentID: docID,
		Field:      field,
		IssueType:  issueType,
		Severity:   report.SeverityCritical,
		Message:    message,
		RawID:      rawID,
	}
}

func kindMatches(kind string, value interface{}) bool {
	switch kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindBool:
		_, ok := value.(bool)
		return ok
	case KindInt:
		switch value.(type) {
		case int32, int64, int:
			return true
		}
		return false
	case KindFloat:
		switch value.(type) {
		case float64, float32, int32, int64, int:
			return true
		}
		return false
	case KindID:
		_, ok := value.(primitive.ObjectID)
		return ok
	case KindDate:
		switch value.(type) {
		case primitive.DateTime, time.Time:
			return true
		}
		return false
	case KindDoc:
		switch value.(type) {
		case bson.D, bson.M:
			return true
		}
		return false
	case KindArray:
		switch value.(type) {
		case bson.A, []interface{}:
			return true
		}
		return false
	default:
		return true
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// documentID renders a document's _id for reporting along with its raw
// value.
func documentID(doc bson.D) (string, interface{}) {
	raw, ok := getField(doc, "_id")
	if !ok {
		return "<no id>", nil
	}
	if oid, isOID := raw.(primitive.ObjectID); isOID {
		return oid.Hex(), raw
	}
	return fmt.Sprintf("%v", raw), raw
}
