package entity

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/echoface/geo_store/geo"
)

const (
	// MaxElementSize upper bound of one encoded element payload
	MaxElementSize = 64 << 20

	fieldID         protowire.Number = 1
	fieldKind       protowire.Number = 2
	fieldTag        protowire.Number = 3
	fieldCoordinate protowire.Number = 4
	fieldMember     protowire.Number = 5

	fieldTagKey   protowire.Number = 1
	fieldTagValue protowire.Number = 2

	fieldLatitude  protowire.Number = 1
	fieldLongitude protowire.Number = 2
)

var ErrElementTooLarge = errors.New("element payload too large")

type (
	// Reader what a codec needs to decode one payload from a stream position
	Reader interface {
		io.Reader
		io.ByteReader
	}

	// ElementCodec serialize element into a self-delimiting payload; Decode must
	// consume exactly one payload and nothing after it
	ElementCodec interface {
		Encode(e *Element) ([]byte, error)

		Decode(r Reader) (*Element, error)
	}

	// WireCodec default codec: uvarint length prefix + protobuf wire message
	WireCodec struct{}
)

func NewWireCodec() *WireCodec {
	return &WireCodec{}
}

func (c *WireCodec) Encode(e *Element) ([]byte, error) {
	if e == nil {
		return nil, errors.New("nil element")
	}
	msg := appendElement(nil, e)
	if len(msg) > MaxElementSize {
		return nil, errors.Wrapf(ErrElementTooLarge, "element:%d size:%d", e.ID, len(msg))
	}
	frame := make([]byte, 0, len(msg)+binary.MaxVarintLen64)
	frame = protowire.AppendVarint(frame, uint64(len(msg)))
	return append(frame, msg...), nil
}

func (c *WireCodec) Decode(r Reader) (*Element, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "read element length")
	}
	if size > MaxElementSize {
		return nil, errors.Wrapf(ErrElementTooLarge, "size:%d", size)
	}
	msg := make([]byte, size)
	if _, err = io.ReadFull(r, msg); err != nil {
		return nil, errors.Wrap(err, "read element payload")
	}
	return consumeElement(msg)
}

func appendElement(b []byte, e *Element) []byte {
	b = protowire.AppendTag(b, fieldID, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, e.ID)
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Kind))

	for _, tag := range e.Tags {
		var sub []byte
		sub = protowire.AppendTag(sub, fieldTagKey, protowire.BytesType)
		sub = protowire.AppendString(sub, tag.Key)
		sub = protowire.AppendTag(sub, fieldTagValue, protowire.BytesType)
		sub = protowire.AppendString(sub, tag.Value)

		b = protowire.AppendTag(b, fieldTag, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	for _, c := range e.Coordinates {
		var sub []byte
		sub = protowire.AppendTag(sub, fieldLatitude, protowire.Fixed64Type)
		sub = protowire.AppendFixed64(sub, math.Float64bits(c.Latitude))
		sub = protowire.AppendTag(sub, fieldLongitude, protowire.Fixed64Type)
		sub = protowire.AppendFixed64(sub, math.Float64bits(c.Longitude))

		b = protowire.AppendTag(b, fieldCoordinate, protowire.BytesType)
		b = protowire.AppendBytes(b, sub)
	}
	for _, m := range e.Members {
		b = protowire.AppendTag(b, fieldMember, protowire.BytesType)
		b = protowire.AppendBytes(b, appendElement(nil, m))
	}
	return b
}

func consumeElement(b []byte) (*Element, error) {
	e := &Element{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, errors.Wrap(protowire.ParseError(n), "element tag")
		}
		b = b[n:]

		switch {
		case num == fieldID && typ == protowire.Fixed64Type:
			e.ID, n = protowire.ConsumeFixed64(b)
		case num == fieldKind && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			e.Kind = ElementKind(v)
		case num == fieldTag && typ == protowire.BytesType:
			var sub []byte
			if sub, n = protowire.ConsumeBytes(b); n >= 0 {
				tag, err := consumeTag(sub)
				if err != nil {
					return nil, err
				}
				e.Tags = append(e.Tags, tag)
			}
		case num == fieldCoordinate && typ == protowire.BytesType:
			var sub []byte
			if sub, n = protowire.ConsumeBytes(b); n >= 0 {
				c, err := consumeCoordinate(sub)
				if err != nil {
					return nil, err
				}
				e.Coordinates = append(e.Coordinates, c)
			}
		case num == fieldMember && typ == protowire.BytesType:
			var sub []byte
			if sub, n = protowire.ConsumeBytes(b); n >= 0 {
				m, err := consumeElement(sub)
				if err != nil {
					return nil, err
				}
				e.Members = append(e.Members, m)
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, errors.Wrapf(protowire.ParseError(n), "element field:%d", num)
		}
		b = b[n:]
	}
	return e, nil
}

func consumeTag(b []byte) (tag Tag, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return tag, errors.Wrap(protowire.ParseError(n), "tag field")
		}
		b = b[n:]
		switch {
		case num == fieldTagKey && typ == protowire.BytesType:
			tag.Key, n = protowire.ConsumeString(b)
		case num == fieldTagValue && typ == protowire.BytesType:
			tag.Value, n = protowire.ConsumeString(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return tag, errors.Wrap(protowire.ParseError(n), "tag value")
		}
		b = b[n:]
	}
	return tag, nil
}

func consumeCoordinate(b []byte) (c geo.GeoCoordinate, err error) {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return c, errors.Wrap(protowire.ParseError(n), "coordinate field")
		}
		b = b[n:]
		var v uint64
		switch {
		case num == fieldLatitude && typ == protowire.Fixed64Type:
			v, n = protowire.ConsumeFixed64(b)
			c.Latitude = math.Float64frombits(v)
		case num == fieldLongitude && typ == protowire.Fixed64Type:
			v, n = protowire.ConsumeFixed64(b)
			c.Longitude = math.Float64frombits(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return c, errors.Wrap(protowire.ParseError(n), "coordinate value")
		}
		b = b[n:]
	}
	return c, nil
}
