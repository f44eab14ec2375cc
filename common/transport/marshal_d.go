// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
)

// MarshalD is a wrapper for bson.D that allows marshalling to JSON with
// preserved field order. Necessary for writing transport documents whose
// round trip must be order-faithful.
type MarshalD bson.D

// MarshalJSON makes the MarshalD type usable by the encoding/json package.
func (md MarshalD) MarshalJSON() ([]byte, error) {
	var buff bytes.Buffer
	buff.WriteString("{")
	for i, item := range md {
		key, err := json.Marshal(item.Key)
		if err != nil {
			return nil, fmt.Errorf("cannot marshal key %v: %v", item.Key, err)
		}
		val, err := json.Marshal(wrapOrdered(item.Value))
		if err != nil {
			return nil, fmt.Errorf("cannot marshal value %v: %v", item.Value, err)
		}
		buff.Write(key)
		buff.WriteString(":")
		buff.Write(val)
		if i != len(md)-1 {
			buff.WriteString(",")
		}
	}
	buff.WriteString("}")
	return buff.Bytes(), nil
}

// wrapOrdered makes nested documents marshal in order too.
func wrapOrdered(v interface{}) interface{} {
	switch x := v.(type) {
	case bson.D:
		return MarshalD(x)
	case MarshalD:
		return x
	case bson.A:
		return wrapOrderedArray(x)
	case []interface{}:
		return wrapOrderedArray(x)
	case float64:
		// A whole float must keep a fractional part in the JSON text, or it
		// would be read back as an integer.
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return json.Number(strconv.FormatFloat(x, 'f', 1, 64))
		}
		return v
	default:
		return v
	}
}

func wrapOrderedArray(a []interface{}) []interface{} {
	out := make([]interface{}, len(a))
	for i, value := range a {
		out[i] = wrapOrdered(value)
	}
	return out
}
