package bitmapidx

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

const (
	bitmapMagic   uint32 = 0x514b424d // "QKBM"
	bitmapVersion uint16 = 1

	headerSize = 4 + 2 + 4 + 4
)

var (
	ErrCorruptBitmap = errors.New("corrupt bitmap blob")
)

type (
	// Codec serialize a whole TermBitmap; round-trips it exactly
	Codec interface {
		Write(w io.Writer, tb *TermBitmap) error

		Read(r io.Reader) (*TermBitmap, error)
	}

	// ZstdCodec roaring portable format per term, whole blob zstd compressed.
	//
	//	magic(4) | version(2) | size(4) | termCount(4) |
	//	{ termLen(uvarint) | term | bitmapLen(4) | roaring bytes } * termCount
	ZstdCodec struct {
		once    sync.Once
		encoder *zstd.Encoder
		decoder *zstd.Decoder
		initErr error
	}
)

var DefaultCodec Codec = NewZstdCodec()

func NewZstdCodec() *ZstdCodec {
	return &ZstdCodec{}
}

func (c *ZstdCodec) init() error {
	c.once.Do(func() {
		if c.encoder, c.initErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); c.initErr != nil {
			return
		}
		c.decoder, c.initErr = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
	return c.initErr
}

func (c *ZstdCodec) Write(w io.Writer, tb *TermBitmap) error {
	if err := c.init(); err != nil {
		return err
	}
	body, err := marshalTermBitmap(tb)
	if err != nil {
		return err
	}
	_, err = w.Write(c.encoder.EncodeAll(body, nil))
	return errors.Wrap(err, "write bitmap blob")
}

// Read an empty stream yield an empty TermBitmap, a shard never persisted looks like that
func (c *ZstdCodec) Read(r io.Reader) (*TermBitmap, error) {
	if err := c.init(); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read bitmap blob")
	}
	if len(data) == 0 {
		return NewTermBitmap(), nil
	}
	body, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptBitmap, "decompress: %v", err)
	}
	return unmarshalTermBitmap(body)
}

func marshalTermBitmap(tb *TermBitmap) ([]byte, error) {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(tb.terms)*32))
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:], bitmapMagic)
	binary.LittleEndian.PutUint16(header[4:], bitmapVersion)
	binary.LittleEndian.PutUint32(header[6:], tb.size)
	binary.LittleEndian.PutUint32(header[10:], uint32(len(tb.terms)))
	buf.Write(header)

	scratch := make([]byte, binary.MaxVarintLen64)
	for term, bm := range tb.terms {
		n := binary.PutUvarint(scratch, uint64(len(term)))
		buf.Write(scratch[:n])
		buf.WriteString(term)

		data, err := bm.ToBytes()
		if err != nil {
			return nil, errors.Wrapf(err, "serialize term:%s", term)
		}
		binary.LittleEndian.PutUint32(scratch, uint32(len(data)))
		buf.Write(scratch[:4])
		buf.Write(data)
	}
	return buf.Bytes(), nil
}

func unmarshalTermBitmap(body []byte) (*TermBitmap, error) {
	if len(body) < headerSize {
		return nil, errors.Wrapf(ErrCorruptBitmap, "short header:%d", len(body))
	}
	if binary.LittleEndian.Uint32(body[0:]) != bitmapMagic {
		return nil, errors.Wrap(ErrCorruptBitmap, "bad magic")
	}
	if v := binary.LittleEndian.Uint16(body[4:]); v != bitmapVersion {
		return nil, errors.Wrapf(ErrCorruptBitmap, "unsupported version:%d", v)
	}
	tb := NewTermBitmap()
	tb.size = binary.LittleEndian.Uint32(body[6:])
	count := binary.LittleEndian.Uint32(body[10:])

	r := bytes.NewReader(body[headerSize:])
	for i := uint32(0); i < count; i++ {
		termLen, err := binary.ReadUvarint(r)
		if err != nil || termLen > uint64(r.Len()) {
			return nil, errors.Wrapf(ErrCorruptBitmap, "term %d length", i)
		}
		termBytes := make([]byte, termLen)
		if _, err = io.ReadFull(r, termBytes); err != nil {
			return nil, errors.Wrapf(ErrCorruptBitmap, "term %d", i)
		}

		var bmLen uint32
		if err = binary.Read(r, binary.LittleEndian, &bmLen); err != nil || uint64(bmLen) > uint64(r.Len()) {
			return nil, errors.Wrapf(ErrCorruptBitmap, "bitmap %d length", i)
		}
		data := make([]byte, bmLen)
		if _, err = io.ReadFull(r, data); err != nil {
			return nil, errors.Wrapf(ErrCorruptBitmap, "bitmap %d", i)
		}
		bm := roaring.New()
		if err = bm.UnmarshalBinary(data); err != nil {
			return nil, errors.Wrapf(ErrCorruptBitmap, "bitmap %d: %v", i, err)
		}
		tb.terms[string(termBytes)] = bm
	}
	return tb, nil
}
