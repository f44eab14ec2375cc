// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestCanIgnoreError(t *testing.T) {
	assert.True(t, CanIgnoreError(nil))
	assert.True(t, CanIgnoreError(mongo.WriteError{Code: ErrDuplicateKeyCode}))
	assert.True(t, CanIgnoreError(mongo.WriteError{Code: ErrFailedDocumentValidation}))
	assert.False(t, CanIgnoreError(mongo.WriteError{Code: 1}))
	assert.False(t, CanIgnoreError(errors.New("server on fire")))

	assert.True(t, CanIgnoreError(mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{
			{WriteError: mongo.WriteError{Code: ErrDuplicateKeyCode}},
		},
	}))
	assert.False(t, CanIgnoreError(mongo.BulkWriteException{
		WriteErrors: []mongo.BulkWriteError{
			{WriteError: mongo.WriteError{Code: ErrDuplicateKeyCode}},
			{WriteError: mongo.WriteError{Code: 1}},
		},
	}))
}

func TestFilterError(t *testing.T) {
	assert.NoError(t, FilterError(false, nil))
	assert.NoError(t, FilterError(true, nil))

	dup := mongo.WriteError{Code: ErrDuplicateKeyCode}
	assert.NoError(t, FilterError(false, dup), "ignorable errors are continued through")
	assert.Error(t, FilterError(true, dup), "stopOnError propagates even ignorable errors")

	fatal := errors.New("server on fire")
	assert.Error(t, FilterError(false, fatal))
}
