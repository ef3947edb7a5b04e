package shard

import (
	"encoding/binary"
)

// RecordSize a position index record: element id(8) | data log offset(4), little endian
const RecordSize = 8 + 4

// Entry one position index record, its index in the file is the order
type Entry struct {
	ElementID uint64
	Offset    uint32
}

func (e Entry) Encode(buf []byte) []byte {
	buf = buf[:0]
	buf = binary.LittleEndian.AppendUint64(buf, e.ElementID)
	return binary.LittleEndian.AppendUint32(buf, e.Offset)
}

func DecodeEntry(buf []byte) Entry {
	return Entry{
		ElementID: binary.LittleEndian.Uint64(buf[0:8]),
		Offset:    binary.LittleEndian.Uint32(buf[8:RecordSize]),
	}
}
