// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package transport

import (
	"encoding/json"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
)

// FileWriter incrementally writes native documents to a backup file as a
// JSON array of transport documents.
type FileWriter struct {
	w     io.Writer
	count int64
}

func NewFileWriter(w io.Writer) *FileWriter {
	return &FileWriter{w: w}
}

// WriteDocument serializes one native document and appends it to the array.
func (fw *FileWriter) WriteDocument(doc bson.D) error {
	transportDoc, err := SerializeDocument(doc)
	if err != nil {
		return err
	}
	data, err := json.Marshal(MarshalD(transportDoc))
	if err != nil {
		return err
	}

	prefix := ",\n  "
	if fw.count == 0 {
		prefix = "[\n  "
	}
	if _, err := io.WriteString(fw.w, prefix); err != nil {
		return err
	}
	if _, err := fw.w.Write(data); err != nil {
		return err
	}
	fw.count++
	return nil
}

// Count reports how many documents have been written.
func (fw *FileWriter) Count() int64 {
	return fw.count
}

// Close terminates the JSON array. It does not close the underlying writer.
func (fw *FileWriter) Close() error {
	if fw.count == 0 {
		_, err := io.WriteString(fw.w, "[]\n")
		return err
	}
	_, err := io.WriteString(fw.w, "\n]\n")
	return err
}

// ReadDocuments parses a backup file written by FileWriter back into native
// documents, preserving field order.
func ReadDocuments(r io.Reader) ([]bson.D, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("error reading backup file: %v", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("backup file does not contain a JSON array")
	}

	var docs []bson.D
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("error reading document %v: %v", len(docs), err)
		}
		var doc bson.D
		if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
			return nil, fmt.Errorf("error decoding document %v: %v", len(docs), err)
		}
		docs = append(docs, doc)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("error reading end of backup file: %v", err)
	}
	return docs, nil
}
