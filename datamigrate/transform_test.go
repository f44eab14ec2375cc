// Copyright (C) Advisor Hub, Inc. 2024-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package datamigrate

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestTransformUser(t *testing.T) {
	Convey("With the users transformer", t, func() {
		Convey("legacy field names are renamed and email is normalized", func() {
			out, err := TransformUser(bson.D{
				{"_id", primitive.NewObjectID()},
				{"e_mail", "  Kim@Example.COM "},
				{"fullName", "Kim Doe"},
			})
			So(err, ShouldBeNil)

			email, ok := getField(out, "email")
			So(ok, ShouldBeTrue)
			So(email, ShouldEqual, "kim@example.com")

			name, ok := getField(out, "name")
			So(ok, ShouldBeTrue)
			So(name, ShouldEqual, "Kim Doe")

			_, hasOld := getField(out, "e_mail")
			So(hasOld, ShouldBeFalse)
		})

		Convey("a missing status defaults to active", func() {
			out, err := TransformUser(bson.D{{"email", "a@b.co"}})
			So(err, ShouldBeNil)
			status, _ := getField(out, "status")
			So(status, ShouldEqual, "active")
		})

		Convey("an existing status is preserved", func() {
			out, err := TransformUser(bson.D{{"email", "a@b.co"}, {"status", "suspended"}})
			So(err, ShouldBeNil)
			status, _ := getField(out, "status")
			So(status, ShouldEqual, "suspended")
		})

		Convey("null-valued optional fields are dropped", func() {
			out, err := TransformUser(bson.D{{"email", "a@b.co"}, {"phone", nil}})
			So(err, ShouldBeNil)
			_, hasPhone := getField(out, "phone")
			So(hasPhone, ShouldBeFalse)
		})

		Convey("a non-string email is an error", func() {
			_, err := TransformUser(bson.D{{"email", int32(42)}})
			So(err, ShouldNotBeNil)
		})

		Convey("transforming twice gives the same document", func() {
			once, err := TransformUser(bson.D{{"e_mail", " X@Y.io "}, {"extra", nil}})
			So(err, ShouldBeNil)
			twice, err := TransformUser(append(bson.D{}, once...))
			So(err, ShouldBeNil)
			So(twice, ShouldResemble, once)
		})
	})
}

func TestTransformAdvisor(t *testing.T) {
	Convey("With the advisors transformer", t, func() {
		Convey("yrs_exp is renamed and the rating is clamped", func() {
			out, err := TransformAdvisor(bson.D{{"yrs_exp", int32(7)}, {"rating", 6.3}})
			So(err, ShouldBeNil)

			years, ok := getField(out, "years_experience")
			So(ok, ShouldBeTrue)
			So(years, ShouldEqual, int32(7))

			rating, _ := getField(out, "rating")
			So(rating, ShouldEqual, 5.0)
		})

		Convey("a negative rating clamps to zero", func() {
			out, err := TransformAdvisor(bson.D{{"rating", -1.0}})
			So(err, ShouldBeNil)
			rating, _ := getField(out, "rating")
			So(rating, ShouldEqual, 0.0)
		})

		Convey("a missing rating defaults to zero", func() {
			out, err := TransformAdvisor(bson.D{{"name", "Morgan"}})
			So(err, ShouldBeNil)
			rating, _ := getField(out, "rating")
			So(rating, ShouldEqual, 0.0)
		})

		Convey("a non-numeric rating is an error", func() {
			_, err := TransformAdvisor(bson.D{{"rating", "five"}})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestTransformRecommendation(t *testing.T) {
	Convey("With the recommendations transformer", t, func() {
		Convey("legacy statuses map onto the new vocabulary", func() {
			out, err := TransformRecommendation(bson.D{{"status", "done"}})
			So(err, ShouldBeNil)
			status, _ := getField(out, "status")
			So(status, ShouldEqual, "completed")
		})

		Convey("a completed recommendation is forced to 100% completion", func() {
			out, err := TransformRecommendation(bson.D{{"status", "done"}, {"completion", int32(80)}})
			So(err, ShouldBeNil)
			completion, _ := getField(out, "completion")
			So(completion, ShouldEqual, int32(100))
		})

		Convey("completion defaults to zero for pending work", func() {
			out, err := TransformRecommendation(bson.D{{"status", "open"}})
			So(err, ShouldBeNil)
			completion, _ := getField(out, "completion")
			So(completion, ShouldEqual, int32(0))
		})

		Convey("an unknown status is an error", func() {
			_, err := TransformRecommendation(bson.D{{"status", "bogus"}})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestRegistry(t *testing.T) {
	Convey("With a transformer registry", t, func() {
		registry := DefaultRegistry()

		Convey("known collections resolve to their transformer", func() {
			out, err := registry.Lookup("users")(bson.D{{"e_mail", "a@b.co"}})
			So(err, ShouldBeNil)
			_, hasEmail := getField(out, "email")
			So(hasEmail, ShouldBeTrue)
		})

		Convey("unknown collections fall back to the identity transform", func() {
			doc := bson.D{{"anything", "goes"}}
			out, err := registry.Lookup("audit_log")(doc)
			So(err, ShouldBeNil)
			So(out, ShouldResemble, doc)
		})
	})
}
