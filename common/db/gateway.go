// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mopt "go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// IndexSpec describes a single-purpose index in a form that survives a trip
// through a JSON manifest.
type IndexSpec struct {
	Name   string   `json:"name" bson:"name"`
	Fields []string `json:"fields" bson:"fields"`
	Unique bool     `json:"unique,omitempty" bson:"unique,omitempty"`
}

// DocumentCursor iterates a stream of documents from one collection in
// source order.
type DocumentCursor interface {
	Next(ctx context.Context) bool
	Decode(out *bson.D) error
	Err() error
	Close(ctx context.Context) error
}

// Gateway is the surface of the document store the migration pipeline uses.
// Production code talks to a SessionGateway; tests use MemoryGateway.
type Gateway interface {
	ListCollections(ctx context.Context, database string) ([]string, error)
	Count(ctx context.Context, database, collection string, filter bson.D) (int64, error)
	Find(ctx context.Context, database, collection string, filter bson.D, batchSize int32) (DocumentCursor, error)
	InsertMany(ctx context.Context, database, collection string, docs []bson.D) (int64, error)
	ReplaceOne(ctx context.Context, database, collection string, id interface{}, doc bson.D) error
	DeleteMany(ctx context.Context, database, collection string, filter bson.D) (int64, error)
	CreateIndex(ctx context.Context, database, collection string, index IndexSpec) error
	ListIndexes(ctx context.Context, database, collection string) ([]IndexSpec, error)
	Ping(ctx context.Context) error
}

// SessionGateway implements Gateway on top of a SessionProvider.
type SessionGateway struct {
	provider *SessionProvider
}

var _ Gateway = (*SessionGateway)(nil)

func NewSessionGateway(provider *SessionProvider) *SessionGateway {
	return &SessionGateway{provider: provider}
}

func (sg *SessionGateway) collection(database, collection string) (*mongo.Collection, error) {
	session, err := sg.provider.GetSession()
	if err != nil {
		return nil, err
	}
	return session.Database(database).Collection(collection), nil
}

func (sg *SessionGateway) ListCollections(ctx context.Context, database string) ([]string, error) {
	session, err := sg.provider.GetSession()
	if err != nil {
		return nil, err
	}
	return session.Database(database).ListCollectionNames(ctx, bson.D{})
}

// Count issues an EstimatedDocumentCount command when there is no filter and
// a CountDocuments command otherwise.
func (sg *SessionGateway) Count(ctx context.Context, database, collection string, filter bson.D) (int64, error) {
	coll, err := sg.collection(database, collection)
	if err != nil {
		return 0, err
	}
	if len(filter) == 0 {
		return coll.EstimatedDocumentCount(ctx)
	}
	return coll.CountDocuments(ctx, filter)
}

func (sg *SessionGateway) Find(ctx context.Context, database, collection string, filter bson.D, batchSize int32) (DocumentCursor, error) {
	coll, err := sg.collection(database, collection)
	if err != nil {
		return nil, err
	}
	opts := mopt.Find().SetNoCursorTimeout(true)
	if batchSize > 0 {
		opts.SetBatchSize(batchSize)
	}
	if filter == nil {
		filter = bson.D{}
	}
	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return &mongoCursor{cursor}, nil
}

func (sg *SessionGateway) InsertMany(ctx context.Context, database, collection string, docs []bson.D) (int64, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	coll, err := sg.collection(database, collection)
	if err != nil {
		return 0, err
	}
	asInterface := make([]interface{}, len(docs))
	for i, doc := range docs {
		asInterface[i] = doc
	}
	result, err := coll.InsertMany(ctx, asInterface, mopt.InsertMany().SetOrdered(false))
	if result == nil {
		return 0, err
	}
	return int64(len(result.InsertedIDs)), err
}

func (sg *SessionGateway) ReplaceOne(ctx context.Context, database, collection string, id interface{}, doc bson.D) error {
	coll, err := sg.collection(database, collection)
	if err != nil {
		return err
	}
	_, err = coll.ReplaceOne(ctx, bson.D{{"_id", id}}, doc, mopt.Replace().SetUpsert(true))
	return err
}

func (sg *SessionGateway) DeleteMany(ctx context.Context, database, collection string, filter bson.D) (int64, error) {
	coll, err := sg.collection(database, collection)
	if err != nil {
		return 0, err
	}
	if filter == nil {
		filter = bson.D{}
	}
	result, err := coll.DeleteMany(ctx, filter)
	if result == nil {
		return 0, err
	}
	return result.DeletedCount, err
}

func (sg *SessionGateway) CreateIndex(ctx context.Context, database, collection string, index IndexSpec) error {
	coll, err := sg.collection(database, collection)
	if err != nil {
		return err
	}
	keys := bson.D{}
	for _, field := range index.Fields {
		keys = append(keys, bson.E{field, int32(1)})
	}
	model := mongo.IndexModel{
		Keys:    keys,
		Options: mopt.Index().SetUnique(index.Unique).SetName(index.Name),
	}
	_, err = coll.Indexes().CreateOne(ctx, model)
	return err
}

func (sg *SessionGateway) ListIndexes(ctx context.Context, database, collection string) ([]IndexSpec, error) {
	coll, err := sg.collection(database, collection)
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Indexes().List(ctx)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var specs []IndexSpec
	for cursor.Next(ctx) {
		var index struct {
			Name   string `bson:"name"`
			Unique bool   `bson:"unique"`
			Key    bson.D `bson:"key"`
		}
		if err := cursor.Decode(&index); err != nil {
			return nil, err
		}
		spec := IndexSpec{Name: index.Name, Unique: index.Unique}
		for _, key := range index.Key {
			spec.Fields = append(spec.Fields, key.Key)
		}
		specs = append(specs, spec)
	}
	return specs, cursor.Err()
}

func (sg *SessionGateway) Ping(ctx context.Context) error {
	session, err := sg.provider.GetSession()
	if err != nil {
		return err
	}
	return session.Ping(ctx, readpref.Primary())
}

// mongoCursor adapts *mongo.Cursor to the DocumentCursor interface.
type mongoCursor struct {
	cursor *mongo.Cursor
}

func (mc *mongoCursor) Next(ctx context.Context) bool { return mc.cursor.Next(ctx) }

func (mc *mongoCursor) Decode(out *bson.D) error { return mc.cursor.Decode(out) }

func (mc *mongoCursor) Err() error { return mc.cursor.Err() }

func (mc *mongoCursor) Close(ctx context.Context) error { return mc.cursor.Close(ctx) }
