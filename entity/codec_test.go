package entity

import (
	"bufio"
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/echoface/geo_store/geo"
)

func TestWireCodec_EncodeDecode(t *testing.T) {
	Convey("test element codec", t, func() {
		codec := NewWireCodec()

		node := NewNode(42, geo.NewCoordinate(52.52, 13.405), NewTag("amenity", "cafe"), NewTag("name", "Kaffee"))
		way := NewWay(7, []geo.GeoCoordinate{geo.NewCoordinate(1, 1), geo.NewCoordinate(2, 2)}, NewTag("highway", "primary"))
		rel := NewRelation(1<<63+5, []*Element{node, way}, NewTag("type", "multipolygon"))

		buf := bytes.Buffer{}
		for _, e := range []*Element{node, way, rel} {
			data, err := codec.Encode(e)
			So(err, ShouldBeNil)
			buf.Write(data)
		}

		r := bufio.NewReader(&buf)
		got, err := codec.Decode(r)
		So(err, ShouldBeNil)
		So(got, ShouldResemble, node)

		got, err = codec.Decode(r)
		So(err, ShouldBeNil)
		So(got, ShouldResemble, way)

		got, err = codec.Decode(r)
		So(err, ShouldBeNil)
		So(got.ID, ShouldEqual, rel.ID)
		So(got.Members, ShouldHaveLength, 2)
		So(got.Members[0], ShouldResemble, node)
		So(got.Tags, ShouldResemble, rel.Tags)

		_, err = codec.Decode(r)
		So(err, ShouldNotBeNil)

		_, err = codec.Encode(nil)
		So(err, ShouldNotBeNil)
	})

	Convey("test truncated payload", t, func() {
		codec := NewWireCodec()
		data, err := codec.Encode(NewNode(1, geo.NewCoordinate(0, 0), NewTag("a", "b")))
		So(err, ShouldBeNil)

		_, err = codec.Decode(bufio.NewReader(bytes.NewReader(data[:len(data)-2])))
		So(err, ShouldNotBeNil)
	})
}

func TestIntersects(t *testing.T) {
	Convey("test geometry intersection", t, func() {
		bbox := geo.NewBoundingBox(0, 0, 10, 10)

		So(Intersects(NewNode(1, geo.NewCoordinate(5, 5)), bbox), ShouldBeTrue)
		So(Intersects(NewNode(1, geo.NewCoordinate(15, 5)), bbox), ShouldBeFalse)

		crossing := NewWay(2, []geo.GeoCoordinate{geo.NewCoordinate(-5, 5), geo.NewCoordinate(15, 5)})
		So(Intersects(crossing, bbox), ShouldBeTrue)

		outside := NewWay(3, []geo.GeoCoordinate{geo.NewCoordinate(20, 20), geo.NewCoordinate(30, 30)})
		So(Intersects(outside, bbox), ShouldBeFalse)

		covering := NewArea(4, []geo.GeoCoordinate{
			geo.NewCoordinate(-20, -20), geo.NewCoordinate(-20, 30),
			geo.NewCoordinate(30, 30), geo.NewCoordinate(30, -20),
		})
		So(Intersects(covering, bbox), ShouldBeTrue)

		rel := NewRelation(5, []*Element{outside, NewNode(6, geo.NewCoordinate(1, 1))})
		So(Intersects(rel, bbox), ShouldBeTrue)
		So(Intersects(NewRelation(7, []*Element{outside}), bbox), ShouldBeFalse)

		So(Intersects(nil, bbox), ShouldBeFalse)
	})
}
