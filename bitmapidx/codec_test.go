package bitmapidx

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestZstdCodec(t *testing.T) {
	Convey("test bitmap blob round trip", t, func() {
		codec := NewZstdCodec()

		tb := buildABBitmap()
		for i := uint32(4); i < 5000; i++ {
			tb.Add(i, fmt.Sprintf("t%d", i%7))
		}

		buf := &bytes.Buffer{}
		So(codec.Write(buf, tb), ShouldBeNil)

		got, err := codec.Read(buf)
		So(err, ShouldBeNil)
		So(got.Equal(tb), ShouldBeTrue)
		So(got.Size(), ShouldEqual, 5000)
	})

	Convey("test empty stream and corrupt blob", t, func() {
		got, err := DefaultCodec.Read(bytes.NewReader(nil))
		So(err, ShouldBeNil)
		So(got.IsEmpty(), ShouldBeTrue)

		_, err = DefaultCodec.Read(strings.NewReader("not a zstd frame"))
		So(err, ShouldNotBeNil)

		_, err = unmarshalTermBitmap([]byte{1, 2, 3})
		So(err, ShouldNotBeNil)

		body, err := marshalTermBitmap(buildABBitmap())
		So(err, ShouldBeNil)
		_, err = unmarshalTermBitmap(body[:len(body)-3])
		So(err, ShouldNotBeNil)
	})
}
