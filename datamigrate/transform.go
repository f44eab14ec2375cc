// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package datamigrate

import (
	"strings"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// Transformer reshapes one source document into its target form. A
// transformer must be pure: same input document, same output, no side
// effects. Returning an error marks the document as failed without
// stopping the batch.
type Transformer func(doc bson.D) (bson.D, error)

// Identity passes a document through unchanged.
func Identity(doc bson.D) (bson.D, error) {
	return doc, nil
}

// Registry maps collection names to their transformers.
type Registry struct {
	transformers map[string]Transformer
}

func NewRegistry() *Registry {
	return &Registry{transformers: make(map[string]Transformer)}
}

func (r *Registry) Register(collection string, t Transformer) {
	r.transformers[collection] = t
}

// Lookup returns the transformer for a collection, or Identity when none
// is registered.
func (r *Registry) Lookup(collection string) Transformer {
	if t, ok := r.transformers[collection]; ok {
		return t
	}
	return Identity
}

// DefaultRegistry returns the transformers for the advisory platform's
// production collections.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("users", TransformUser)
	r.Register("advisors", TransformAdvisor)
	r.Register("portfolios", TransformPortfolio)
	r.Register("recommendations", TransformRecommendation)
	return r
}

// TransformUser normalizes the legacy user shape: the old e_mail and
// fullName spellings are renamed, email is lowercased and trimmed, and a
// missing status defaults to active.
func TransformUser(doc bson.D) (bson.D, error) {
	doc = renameField(doc, "e_mail", "email")
	doc = renameField(doc, "fullName", "name")

	if raw, ok := getField(doc, "email"); ok {
		email, isString := raw.(string)
		if !isString {
			return nil, errors.Errorf("email has non-string value %v", raw)
		}
		doc = setField(doc, "email", strings.ToLower(strings.TrimSpace(email)))
	}
	doc = defaultField(doc, "status", "active")
	return dropNullFields(doc), nil
}

// TransformAdvisor renames yrs_exp to years_experience and clamps the
// rating into the [0, 5] scale used by the new platform.
func TransformAdvisor(doc bson.D) (bson.D, error) {
	doc = renameField(doc, "yrs_exp", "years_experience")
	doc = defaultField(doc, "rating", 0.0)

	if raw, ok := getField(doc, "rating"); ok {
		rating, err := asFloat(raw)
		if err != nil {
			return nil, errors.Wrap(err, "rating")
		}
		if rating < 0 {
			rating = 0
		} else if rating > 5 {
			rating = 5
		}
		doc = setField(doc, "rating", rating)
	}
	return dropNullFields(doc), nil
}

// TransformPortfolio defaults the currency to USD and the status to
// active for portfolios predating those fields.
func TransformPortfolio(doc bson.D) (bson.D, error) {
	doc = defaultField(doc, "currency", "USD")
	doc = defaultField(doc, "status", "active")
	return dropNullFields(doc), nil
}

// legacy recommendation statuses mapped onto the new vocabulary
var recommendationStatuses = map[string]string{
	"done":        "completed",
	"in_flight":   "in_progress",
	"open":        "pending",
	"pending":     "pending",
	"in_progress": "in_progress",
	"completed":   "completed",
	"cancelled":   "cancelled",
}

// TransformRecommendation maps legacy status values onto the new
// vocabulary, defaults completion to 0, and forces completion to 100 for
// completed recommendations.
func TransformRecommendation(doc bson.D) (bson.D, error) {
	if raw, ok := getField(doc, "status"); ok {
		status, isString := raw.(string)
		if !isString {
			return nil, errors.Errorf("status has non-string value %v", raw)
		}
		mapped, known := recommendationStatuses[strings.ToLower(status)]
		if !known {
			return nil, errors.Errorf("unknown recommendation status %q", status)
		}
		doc = setField(doc, "status", mapped)
	}

	doc = defaultField(doc, "completion", int32(0))
	if status, _ := getField(doc, "status"); status == "completed" {
		doc = setField(doc, "completion", int32(100))
	}
	return dropNullFields(doc), nil
}

func getField(doc bson.D, key string) (interface{}, bool) {
	for _, elem := range doc {
		if elem.Key == key {
			return elem.Value, true
		}
	}
	return nil, false
}

// setField replaces the value of key in place, or appends the element
// when the key is absent. Field order is otherwise preserved.
func setField(doc bson.D, key string, value interface{}) bson.D {
	for i, elem := range doc {
		if elem.Key == key {
			doc[i].Value = value
			return doc
		}
	}
	return append(doc, bson.E{Key: key, Value: value})
}

// defaultField appends key with a default value when the key is absent.
func defaultField(doc bson.D, key string, value interface{}) bson.D {
	if _, ok := getField(doc, key); ok {
		return doc
	}
	return append(doc, bson.E{Key: key, Value: value})
}

// renameField changes the key of an element, keeping its position. When
// both spellings exist, the new one wins and the old is dropped.
func renameField(doc bson.D, oldKey, newKey string) bson.D {
	if _, ok := getField(doc, newKey); ok {
		return removeField(doc, oldKey)
	}
	for i, elem := range doc {
		if elem.Key == oldKey {
			doc[i].Key = newKey
			return doc
		}
	}
	return doc
}

func removeField(doc bson.D, key string) bson.D {
	out := doc[:0]
	for _, elem := range doc {
		if elem.Key != key {
			out = append(out, elem)
		}
	}
	return out
}

// dropNullFields removes optional fields whose value is null. The _id
// field is never dropped.
func dropNullFields(doc bson.D) bson.D {
	out := make(bson.D, 0, len(doc))
	for _, elem := range doc {
		if elem.Value == nil && elem.Key != "_id" {
			continue
		}
		out = append(out, elem)
	}
	return out
}

func asFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, errors.Errorf("value %v is not numeric", value)
	}
}
