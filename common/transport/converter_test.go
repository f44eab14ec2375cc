// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package transport

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestObjectIdSerialization(t *testing.T) {
	Convey("Serializing an ObjectID should produce a $oid wrapper", t, func() {
		id := primitive.NewObjectID()
		out, err := SerializeValue(id)
		So(err, ShouldBeNil)
		So(out, ShouldResemble, bson.D{{"$oid", id.Hex()}})

		Convey("and deserializing it should restore the ObjectID", func() {
			back, err := DeserializeValue(out)
			So(err, ShouldBeNil)
			So(back, ShouldResemble, id)
		})
	})
}

func TestDateSerialization(t *testing.T) {
	Convey("Serializing a DateTime should produce a $date wrapper", t, func() {
		when := primitive.NewDateTimeFromTime(time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC))
		out, err := SerializeValue(when)
		So(err, ShouldBeNil)
		So(out, ShouldResemble, bson.D{{"$date", "2024-05-17T09:30:00.000Z"}})

		Convey("and deserializing it should restore the DateTime", func() {
			back, err := DeserializeValue(out)
			So(err, ShouldBeNil)
			So(back, ShouldResemble, when)
		})
	})

	Convey("Serializing a time.Time should normalize it to a DateTime on the way back", t, func() {
		when := time.Date(2023, 11, 2, 18, 45, 12, 250*1e6, time.UTC)
		out, err := SerializeValue(when)
		So(err, ShouldBeNil)

		back, err := DeserializeValue(out)
		So(err, ShouldBeNil)
		So(back, ShouldResemble, primitive.NewDateTimeFromTime(when))
	})
}

func TestRoundTripIdentity(t *testing.T) {
	Convey("With a document containing nested ids, dates, maps and arrays", t, func() {
		id := primitive.NewObjectID()
		nestedID := primitive.NewObjectID()
		created := primitive.NewDateTimeFromTime(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

		doc := bson.D{
			{"_id", id},
			{"email", "sam@example.com"},
			{"age", int32(41)},
			{"balance", 1042.55},
			{"visits", int64(7_000_000_000)},
			{"active", true},
			{"nickname", nil},
			{"created_at", created},
			{"profile", bson.D{
				{"advisor_id", nestedID},
				{"last_review", created},
				{"tags", []interface{}{"premium", int32(3)}},
			}},
			{"history", []interface{}{
				bson.D{{"at", created}, {"ref", nestedID}},
				"note",
			}},
		}

		Convey("deserialize(serialize(d)) equals d field-by-field", func() {
			serialized, err := SerializeDocument(doc)
			So(err, ShouldBeNil)

			back, err := DeserializeDocument(serialized)
			So(err, ShouldBeNil)
			So(back, ShouldResemble, doc)
		})

		Convey("the serialized form contains no store-native values", func() {
			serialized, err := SerializeDocument(doc)
			So(err, ShouldBeNil)
			So(containsNativeValue(serialized), ShouldBeFalse)
		})
	})
}

func TestSerializeRejectsUnsupportedValueKinds(t *testing.T) {
	Convey("Value kinds outside the snapshot format should be rejected", t, func() {
		_, err := SerializeValue(primitive.Binary{Subtype: 0x00, Data: []byte{1, 2, 3}})
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "primitive.Binary")

		Convey("even when nested inside an otherwise serializable document", func() {
			doc := bson.D{
				{"_id", primitive.NewObjectID()},
				{"raw", primitive.Binary{Data: []byte{4}}},
			}
			_, err := SerializeDocument(doc)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "not supported")
		})
	})
}

func TestDeserializeErrors(t *testing.T) {
	Convey("Bad tag payloads should fail deserialization", t, func() {
		_, err := DeserializeValue(bson.D{{"$oid", "not-hex"}})
		So(err, ShouldNotBeNil)

		_, err = DeserializeValue(bson.D{{"$date", "not-a-date"}})
		So(err, ShouldNotBeNil)

		_, err = DeserializeValue(bson.D{{"$numberLong", "NaN"}})
		So(err, ShouldNotBeNil)
	})
}

func containsNativeValue(x interface{}) bool {
	switch v := x.(type) {
	case primitive.ObjectID, primitive.DateTime, time.Time, int64, int:
		return true
	case bson.D:
		for _, elem := range v {
			if containsNativeValue(elem.Value) {
				return true
			}
		}
	case []interface{}:
		for _, value := range v {
			if containsNativeValue(value) {
				return true
			}
		}
	}
	return false
}
