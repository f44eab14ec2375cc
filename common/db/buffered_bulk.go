// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// The default value of maxMessageSizeBytes
// See: https://docs.mongodb.com/manual/reference/command/hello/#mongodb-data-hello.maxMessageSizeBytes
const MAX_MESSAGE_SIZE_BYTES = 48000000

// BufferedBulkInserter implements a bufio.Writer-like design for queuing up
// documents and inserting them in bulk when the given doc limit (or max
// message size) is reached. Must be flushed at the end to ensure that all
// documents are written.
type BufferedBulkInserter struct {
	gateway    Gateway
	database   string
	collection string
	docs       []bson.D
	docLimit   int
	byteCount  int
	byteLimit  int
	inserted   int64
}

// NewBufferedBulkInserter returns an initialized BufferedBulkInserter for
// writing to the named collection through the given gateway.
func NewBufferedBulkInserter(gateway Gateway, database, collection string, docLimit int) *BufferedBulkInserter {
	return &BufferedBulkInserter{
		gateway:    gateway,
		database:   database,
		collection: collection,
		docLimit:   docLimit,
		// We set the byte limit to be slightly lower than maxMessageSizeBytes
		// so a flush fits in one OP_MSG. We don't count per-document framing
		// overhead, but it is close enough to keep memory in check.
		byteLimit: MAX_MESSAGE_SIZE_BYTES - 100,
		docs:      make([]bson.D, 0, docLimit),
	}
}

// throw away the old buffer and start fresh.
func (bb *BufferedBulkInserter) resetBulk() {
	bb.docs = bb.docs[:0]
	bb.byteCount = 0
}

// Insert adds a document to the buffer for bulk insertion. If the buffer
// becomes full, the bulk write is performed, returning any error that occurs.
func (bb *BufferedBulkInserter) Insert(ctx context.Context, doc bson.D) error {
	rawBytes, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("bson encoding error: %v", err)
	}
	bb.byteCount += len(rawBytes)
	bb.docs = append(bb.docs, doc)

	if len(bb.docs) >= bb.docLimit || bb.byteCount >= bb.byteLimit {
		return bb.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered documents in one bulk write and then resets the
// buffer.
func (bb *BufferedBulkInserter) Flush(ctx context.Context) error {
	defer bb.resetBulk()
	if len(bb.docs) == 0 {
		return nil
	}

	inserted, err := bb.gateway.InsertMany(ctx, bb.database, bb.collection, bb.docs)
	bb.inserted += inserted
	return err
}

// Inserted reports how many documents have been written so far.
func (bb *BufferedBulkInserter) Inserted() int64 {
	return bb.inserted
}
