package inotify

import (
	"bytes"
	"unsafe"
)

// eventHeaderSize is the size of the fixed kernel event header: watch
// descriptor (int32), mask (uint32), cookie (uint32), and name length
// (uint32).
const eventHeaderSize = 16

// eventHeader mirrors the kernel's fixed event header layout. Header fields
// are in native byte order, so decoding overlays this structure rather than
// assuming an endianness.
type eventHeader struct {
	watchDescriptor int32
	mask            uint32
	cookie          uint32
	nameLength      uint32
}

// decoder decodes a raw kernel event buffer into a sequence of RawEvent
// values. A decoder is created fresh per buffer and retains no state between
// buffers.
type decoder struct {
	// buffer is the raw event buffer being decoded.
	buffer []byte
	// offset is the current decoding position within the buffer.
	offset int
}

// newDecoder creates a decoder for the specified buffer.
func newDecoder(buffer []byte) *decoder {
	return &decoder{buffer: buffer}
}

// next decodes the next event record from the buffer. It returns the decoded
// event and true if a record was available, or false if the buffer has been
// fully consumed. If the remaining bytes don't constitute a complete record
// (a partial header or a declared name length that would read past the buffer
// end), it returns ErrMalformedEvent; records decoded before that point are
// unaffected.
func (d *decoder) next() (RawEvent, bool, error) {
	// Check whether the buffer has been fully consumed.
	remaining := len(d.buffer) - d.offset
	if remaining == 0 {
		return RawEvent{}, false, nil
	}

	// A non-empty remainder smaller than the fixed header is malformed: the
	// kernel never splits records across reads.
	if remaining < eventHeaderSize {
		return RawEvent{}, false, ErrMalformedEvent
	}

	// Decode the fixed header. Copy it into an aligned local buffer and
	// overlay the header structure to read fields in native byte order.
	var raw [eventHeaderSize]byte
	copy(raw[:], d.buffer[d.offset:])
	header := *(*eventHeader)(unsafe.Pointer(&raw[0]))

	// Verify that the declared name region lies within the buffer.
	nameLength := int(header.nameLength)
	if remaining-eventHeaderSize < nameLength {
		return RawEvent{}, false, ErrMalformedEvent
	}

	// Extract the name, which is NUL-terminated and NUL-padded within the
	// declared name region.
	var name string
	if nameLength > 0 {
		field := d.buffer[d.offset+eventHeaderSize : d.offset+eventHeaderSize+nameLength]
		if index := bytes.IndexByte(field, 0); index >= 0 {
			field = field[:index]
		}
		name = string(field)
	}

	// Advance past the record.
	d.offset += eventHeaderSize + nameLength

	// Success.
	return RawEvent{
		WatchDescriptor: header.watchDescriptor,
		Mask:            Mask(header.mask),
		Cookie:          header.cookie,
		Name:            name,
	}, true, nil
}
