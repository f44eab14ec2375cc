// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package transport converts between the store's native document
// representation and a transport-safe tagged JSON form. Opaque identifiers
// become {"$oid": <hex>} wrappers and instants become {"$date": <ISO-8601>}
// wrappers, at any nesting depth, so that a document survives a round trip
// through a backup file without losing type information.
package transport

import (
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const dateFormat = "2006-01-02T15:04:05.000Z07:00"

// SerializeDocument converts a native document into its transport form.
// The result contains only JSON-safe values.
func SerializeDocument(doc bson.D) (bson.D, error) {
	converted, err := SerializeValue(doc)
	if err != nil {
		return nil, err
	}
	return converted.(bson.D), nil
}

// SerializeValue walks through a document or an array and replaces any
// store-native value with its corresponding tagged JSON form.
//
// The snapshot format covers the value kinds the advisory collections
// contain: null, booleans, strings, doubles, 32- and 64-bit integers,
// documents, arrays, object ids, and instants. Anything outside that set
// (binary blobs, decimals, regular expressions) is rejected with an error
// rather than written in a form that could not round-trip.
func SerializeValue(x interface{}) (interface{}, error) {
	switch v := x.(type) {
	case nil:
		return nil, nil
	case bool, string, float64, int32:
		return v, nil

	case bson.D: // document
		out := make(bson.D, len(v))
		for i, elem := range v {
			value, err := SerializeValue(elem.Value)
			if err != nil {
				return nil, err
			}
			out[i] = bson.E{elem.Key, value}
		}
		return out, nil

	case bson.M: // unordered document
		out := make(bson.D, 0, len(v))
		for key, value := range v {
			converted, err := SerializeValue(value)
			if err != nil {
				return nil, err
			}
			out = append(out, bson.E{key, converted})
		}
		return out, nil

	case bson.A: // array
		return serializeArray(v)
	case []interface{}:
		return serializeArray(v)

	case primitive.ObjectID:
		return bson.D{{"$oid", v.Hex()}}, nil

	case primitive.DateTime:
		return bson.D{{"$date", v.Time().UTC().Format(dateFormat)}}, nil

	case time.Time:
		return bson.D{{"$date", v.UTC().Format(dateFormat)}}, nil

	case int64:
		return bson.D{{"$numberLong", strconv.FormatInt(v, 10)}}, nil

	case int:
		return bson.D{{"$numberLong", strconv.FormatInt(int64(v), 10)}}, nil

	default:
		return nil, fmt.Errorf("serialization of value '%v' of type '%T' not supported", v, v)
	}
}

func serializeArray(a []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(a))
	for i, value := range a {
		converted, err := SerializeValue(value)
		if err != nil {
			return nil, err
		}
		out[i] = converted
	}
	return out, nil
}

// DeserializeDocument converts a transport document back into its native
// form. It is the exact inverse of SerializeDocument.
func DeserializeDocument(doc bson.D) (bson.D, error) {
	converted, err := DeserializeValue(doc)
	if err != nil {
		return nil, err
	}
	native, ok := converted.(bson.D)
	if !ok {
		return nil, fmt.Errorf("transport document deserialized to a %T, not a document", converted)
	}
	return native, nil
}

// DeserializeValue walks through a document or an array and replaces any
// tagged JSON wrapper with its corresponding store-native value.
func DeserializeValue(x interface{}) (interface{}, error) {
	switch v := x.(type) {
	case nil:
		return nil, nil
	case bool, string, float64, int32, int64, primitive.ObjectID, primitive.DateTime:
		return v, nil

	case bson.D:
		if tagged, ok, err := deserializeTag(v); ok {
			return tagged, err
		}
		out := make(bson.D, len(v))
		for i, elem := range v {
			value, err := DeserializeValue(elem.Value)
			if err != nil {
				return nil, err
			}
			out[i] = bson.E{elem.Key, value}
		}
		return out, nil

	case map[string]interface{}:
		if len(v) == 1 {
			for key, value := range v {
				if tagged, ok, err := deserializeTag(bson.D{{key, value}}); ok {
					return tagged, err
				}
			}
		}
		out := make(bson.D, 0, len(v))
		for key, value := range v {
			converted, err := DeserializeValue(value)
			if err != nil {
				return nil, err
			}
			out = append(out, bson.E{key, converted})
		}
		return out, nil

	case bson.A:
		return deserializeArray(v)
	case []interface{}:
		return deserializeArray(v)

	default:
		return nil, fmt.Errorf("deserialization of value '%v' of type '%T' not supported", v, v)
	}
}

func deserializeArray(a []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(a))
	for i, value := range a {
		converted, err := DeserializeValue(value)
		if err != nil {
			return nil, err
		}
		out[i] = converted
	}
	return out, nil
}

// deserializeTag recognizes the single-element tagged wrappers produced by
// SerializeValue. The second return is false when the document is not a tag.
func deserializeTag(doc bson.D) (interface{}, bool, error) {
	if len(doc) != 1 {
		return nil, false, nil
	}
	value := doc[0].Value

	switch doc[0].Key {
	case "$oid":
		hex, ok := value.(string)
		if !ok {
			return nil, true, fmt.Errorf("$oid value '%v' is not a string", value)
		}
		id, err := primitive.ObjectIDFromHex(hex)
		if err != nil {
			return nil, true, fmt.Errorf("invalid $oid value %q: %v", hex, err)
		}
		return id, true, nil

	case "$date":
		iso, ok := value.(string)
		if !ok {
			return nil, true, fmt.Errorf("$date value '%v' is not a string", value)
		}
		when, err := time.Parse(time.RFC3339, iso)
		if err != nil {
			return nil, true, fmt.Errorf("invalid $date value %q: %v", iso, err)
		}
		return primitive.NewDateTimeFromTime(when), true, nil

	case "$numberLong":
		str, ok := value.(string)
		if !ok {
			return nil, true, fmt.Errorf("$numberLong value '%v' is not a string", value)
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, true, fmt.Errorf("invalid $numberLong value %q: %v", str, err)
		}
		return n, true, nil
	}

	return nil, false, nil
}
