// Package wire frames cache entries as stored in a provider.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	version byte = 1
	// header: magic(4) | ver(1) | flags(1) | gen(u64) | fetchedAt(i64) | vlen(u32)
	headerLen = 4 + 1 + 1 + 8 + 8 + 4
)

// Flag bits carried in an entry header.
const (
	FlagOptimistic byte = 1 << iota
)

var (
	ErrCorrupt = errors.New("rescache: corrupt entry")
	magic4     = [...]byte{'R', 'S', 'C', 'E'}
)

// Entry is one decoded cache record. Payload aliases the buffer it was
// decoded from.
type Entry struct {
	Gen       uint64
	FetchedAt int64 // unix nanoseconds
	Flags     byte
	Payload   []byte
}

func (e Entry) Optimistic() bool { return e.Flags&FlagOptimistic != 0 }

// Encode: magic(4) | ver(1) | flags(1) | gen(u64 be) | fetchedAt(i64 be) | vlen(u32 be) | payload(vlen)
func Encode(e Entry) []byte {
	var buf bytes.Buffer
	buf.Grow(headerLen + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(e.Flags)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], e.Gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(e.FetchedAt))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])

	buf.Write(e.Payload)
	return buf.Bytes()
}

// Decode parses b. Trailing bytes after the payload are corruption.
func Decode(b []byte) (Entry, error) {
	if len(b) < headerLen || !bytes.Equal(b[:4], magic4[:]) || b[4] != version {
		return Entry{}, ErrCorrupt
	}
	off := 5

	e := Entry{Flags: b[off]}
	off++

	e.Gen = binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	e.FetchedAt = int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	e.Payload = b[off:]
	return e, nil
}
