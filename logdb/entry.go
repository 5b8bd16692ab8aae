// Package logdb implements the append-only, bitcask-style log engine:
// segment rotation, an in-memory key index, and a background compaction
// worker, as a counterpart to the paged B+tree engine in the parent
// package.
package logdb

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"time"

	"duskdb"
)

// entryHeaderSize is timestamp(8) + crc(4) + ksize(4) + vsize(4).
const entryHeaderSize = 20

// Entry is one record in a segment file: a timestamped, checksummed
// key/value pair.
type Entry struct {
	Timestamp uint64
	CRC       uint32
	Key       []byte
	Value     []byte
}

func newEntry(key, value []byte) Entry {
	e := Entry{Timestamp: uint64(time.Now().UnixNano()), Key: key, Value: value}
	e.CRC = e.checksum()
	return e
}

func (e Entry) checksum() uint32 {
	h := crc32.NewIEEE()
	h.Write(e.Key)
	h.Write(e.Value)
	return h.Sum32()
}

func (e Entry) encode() []byte {
	buf := make([]byte, entryHeaderSize+len(e.Key)+len(e.Value))
	binary.LittleEndian.PutUint64(buf[0:8], e.Timestamp)
	binary.LittleEndian.PutUint32(buf[8:12], e.CRC)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(e.Key)))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(e.Value)))
	copy(buf[entryHeaderSize:], e.Key)
	copy(buf[entryHeaderSize+len(e.Key):], e.Value)
	return buf
}

// decodeEntry reads one entry from r and validates its checksum.
func decodeEntry(r io.ReaderAt, off int64) (Entry, error) {
	header := make([]byte, entryHeaderSize)
	if _, err := r.ReadAt(header, off); err != nil {
		return Entry{}, duskdb.NewError("decode_entry", duskdb.KindIoError, err)
	}
	ksize := binary.LittleEndian.Uint32(header[12:16])
	vsize := binary.LittleEndian.Uint32(header[16:20])
	body := make([]byte, int(ksize)+int(vsize))
	if _, err := r.ReadAt(body, off+entryHeaderSize); err != nil {
		return Entry{}, duskdb.NewError("decode_entry", duskdb.KindIoError, err)
	}
	e := Entry{
		Timestamp: binary.LittleEndian.Uint64(header[0:8]),
		CRC:       binary.LittleEndian.Uint32(header[8:12]),
		Key:       body[:ksize],
		Value:     body[ksize:],
	}
	if e.checksum() != e.CRC {
		return Entry{}, duskdb.NewError("decode_entry", duskdb.KindChecksum, nil)
	}
	return e, nil
}
