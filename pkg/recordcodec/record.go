// Package recordcodec implements the wire format for value records stored in
// the engine's data file: an 8-byte little-endian length prefix that doubles
// as the record's capacity ceiling, the payload, and a single trailing NUL
// byte. See pkg/valuefile for the file-level append/read/update-in-place
// operations built on top of this framing.
package recordcodec

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the width of the leading length/capacity field.
const HeaderSize = 8

// ErrShortBuffer is returned when a buffer is too small to contain a valid
// framed record.
var ErrShortBuffer = fmt.Errorf("recordcodec: buffer too short")

// FrameSize returns the total on-disk size of a record framing payloadLen
// bytes: the header, the payload, and the trailing NUL.
func FrameSize(payloadLen int) int {
	return HeaderSize + payloadLen + 1
}

// Encode frames payload for a brand-new record: the leading 8 bytes record
// len(payload) and simultaneously establish the record's initial capacity.
func Encode(payload []byte) []byte {
	buf := make([]byte, FrameSize(len(payload)))
	binary.LittleEndian.PutUint64(buf[0:HeaderSize], uint64(len(payload)))
	copy(buf[HeaderSize:], payload)
	// buf[len(buf)-1] is already the zero byte.
	return buf
}

// DecodeHeader reads the leading 8-byte length/capacity field out of a
// record's framing. The caller is responsible for having read at least
// HeaderSize bytes at the record's offset.
func DecodeHeader(header []byte) (uint64, error) {
	if len(header) < HeaderSize {
		return 0, ErrShortBuffer
	}
	return binary.LittleEndian.Uint64(header[:HeaderSize]), nil
}

// DecodePayload extracts the payload out of a full frame whose header
// already reported len bytes of payload.
func DecodePayload(frame []byte, length uint64) ([]byte, error) {
	want := HeaderSize + int(length)
	if len(frame) < want {
		return nil, ErrShortBuffer
	}
	payload := make([]byte, length)
	copy(payload, frame[HeaderSize:want])
	return payload, nil
}
