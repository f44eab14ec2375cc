// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryGateway is an in-memory Gateway implementation. It backs the test
// suites of the migration pipeline and keeps a count of every mutation so
// dry-run behavior can be asserted.
type MemoryGateway struct {
	mu sync.Mutex

	// database -> collection -> documents, in insertion order
	data    map[string]map[string][]bson.D
	indexes map[string]map[string][]IndexSpec

	writeOps   int64
	pingErr    error
	insertErrs map[string]error
}

var _ Gateway = (*MemoryGateway)(nil)

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		data:       make(map[string]map[string][]bson.D),
		indexes:    make(map[string]map[string][]IndexSpec),
		insertErrs: make(map[string]error),
	}
}

// Seed loads documents into a collection without counting as a write.
func (mg *MemoryGateway) Seed(database, collection string, docs ...bson.D) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.ensure(database)
	mg.data[database][collection] = append(mg.data[database][collection], copyDocs(docs)...)
}

// Docs returns a copy of a collection's documents in insertion order.
func (mg *MemoryGateway) Docs(database, collection string) []bson.D {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return copyDocs(mg.data[database][collection])
}

// WriteOps reports how many mutating calls the gateway has served.
func (mg *MemoryGateway) WriteOps() int64 {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return mg.writeOps
}

// SetPingError makes Ping fail, simulating an unreachable server.
func (mg *MemoryGateway) SetPingError(err error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.pingErr = err
}

// SetInsertError makes InsertMany against the named collection fail.
func (mg *MemoryGateway) SetInsertError(collection string, err error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.insertErrs[collection] = err
}

func (mg *MemoryGateway) ensure(database string) {
	if mg.data[database] == nil {
		mg.data[database] = make(map[string][]bson.D)
	}
	if mg.indexes[database] == nil {
		mg.indexes[database] = make(map[string][]IndexSpec)
	}
}

func (mg *MemoryGateway) ListCollections(ctx context.Context, database string) ([]string, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	var names []string
	for name := range mg.data[database] {
		names = append(names, name)
	}
	return names, nil
}

func (mg *MemoryGateway) Count(ctx context.Context, database, collection string, filter bson.D) (int64, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	var count int64
	for _, doc := range mg.data[database][collection] {
		if matchFilter(doc, filter) {
			count++
		}
	}
	return count, nil
}

func (mg *MemoryGateway) Find(ctx context.Context, database, collection string, filter bson.D, batchSize int32) (DocumentCursor, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	var matched []bson.D
	for _, doc := range mg.data[database][collection] {
		if matchFilter(doc, filter) {
			matched = append(matched, doc)
		}
	}
	return &memoryCursor{docs: copyDocs(matched), pos: -1}, nil
}

func (mg *MemoryGateway) InsertMany(ctx context.Context, database, collection string, docs []bson.D) (int64, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	if err := mg.insertErrs[collection]; err != nil {
		return 0, err
	}
	mg.ensure(database)
	mg.writeOps++
	mg.data[database][collection] = append(mg.data[database][collection], copyDocs(docs)...)
	return int64(len(docs)), nil
}

func (mg *MemoryGateway) ReplaceOne(ctx context.Context, database, collection string, id interface{}, doc bson.D) error {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.ensure(database)
	mg.writeOps++
	docs := mg.data[database][collection]
	for i, existing := range docs {
		if existingID, ok := lookupField(existing, "_id"); ok && existingID == id {
			docs[i] = copyDoc(doc)
			return nil
		}
	}
	mg.data[database][collection] = append(docs, copyDoc(doc))
	return nil
}

func (mg *MemoryGateway) DeleteMany(ctx context.Context, database, collection string, filter bson.D) (int64, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.ensure(database)
	mg.writeOps++
	var kept []bson.D
	var deleted int64
	for _, doc := range mg.data[database][collection] {
		if matchFilter(doc, filter) {
			deleted++
			continue
		}
		kept = append(kept, doc)
	}
	mg.data[database][collection] = kept
	return deleted, nil
}

func (mg *MemoryGateway) CreateIndex(ctx context.Context, database, collection string, index IndexSpec) error {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.ensure(database)
	mg.writeOps++
	mg.indexes[database][collection] = append(mg.indexes[database][collection], index)
	return nil
}

func (mg *MemoryGateway) ListIndexes(ctx context.Context, database, collection string) ([]IndexSpec, error) {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return append([]IndexSpec(nil), mg.indexes[database][collection]...), nil
}

func (mg *MemoryGateway) Ping(ctx context.Context) error {
	mg.mu.Lock()
	defer mg.mu.Unlock()
	return mg.pingErr
}

// memoryCursor iterates a snapshot of matched documents.
type memoryCursor struct {
	docs []bson.D
	pos  int
}

func (mc *memoryCursor) Next(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	mc.pos++
	return mc.pos < len(mc.docs)
}

func (mc *memoryCursor) Decode(out *bson.D) error {
	if mc.pos < 0 || mc.pos >= len(mc.docs) {
		return fmt.Errorf("cursor exhausted")
	}
	*out = copyDoc(mc.docs[mc.pos])
	return nil
}

func (mc *memoryCursor) Err() error { return nil }

func (mc *memoryCursor) Close(ctx context.Context) error { return nil }

// matchFilter supports the equality filters the pipeline actually issues:
// an empty filter matches everything, otherwise every top-level filter field
// must equal the document's value.
func matchFilter(doc, filter bson.D) bool {
	for _, cond := range filter {
		value, ok := lookupField(doc, cond.Key)
		if !ok || value != cond.Value {
			return false
		}
	}
	return true
}

func lookupField(doc bson.D, key string) (interface{}, bool) {
	for _, elem := range doc {
		if elem.Key == key {
			return elem.Value, true
		}
	}
	return nil, false
}

func copyDoc(doc bson.D) bson.D {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return doc
	}
	var out bson.D
	if err := bson.Unmarshal(raw, &out); err != nil {
		return doc
	}
	return out
}

func copyDocs(docs []bson.D) []bson.D {
	out := make([]bson.D, len(docs))
	for i, doc := range docs {
		out[i] = copyDoc(doc)
	}
	return out
}
