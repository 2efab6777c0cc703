package dicom

import (
	"bytes"
	"encoding/binary"
	"io"

	pacscodec "gitlab.com/medical-research/pacs-codec"
)

const (
	// PreambleLength is the size of the ignored Part-10 preamble.
	PreambleLength = 128

	// DataStart is the offset of the first data element: preamble + magic.
	DataStart = 132

	// headerShort is the minimum element header: group(2) + element(2) +
	// VR(2) + short-form length(2).
	headerShort = 8

	// headerLong adds the 2 reserved bytes and the 4-byte length of the
	// long-form VRs.
	headerLong = 12

	// undefinedLength marks sequences and pixel streams this codec does
	// not descend into.
	undefinedLength = 0xFFFFFFFF
)

var dicmMagic = []byte("DICM")

// IsValidDICOM reports whether buf is eligible for walking: at least 132
// bytes with ASCII "DICM" at offset 128. Trailing content is not inspected.
func IsValidDICOM(buf []byte) bool {
	return len(buf) >= DataStart && bytes.Equal(buf[PreambleLength:DataStart], dicmMagic)
}

// DataElement is one decoded element of the walk. It is ephemeral: produced
// one per iteration and never persisted as-is.
type DataElement struct {
	Tag    Tag
	VR     *VR
	Length int
	Value  Value

	// Offset is where the element's header begins; NextOffset is where the
	// following element begins. Walks are restartable from NextOffset.
	Offset     int
	NextOffset int
}

// Walker iterates the flat element sequence of a DICOM buffer. It holds no
// state beyond the cursor, so a fresh Walker on the same buffer is cheap.
type Walker struct {
	buf    []byte
	offset int
}

// NewWalker starts a walk at the first data element. The DICM precondition
// is checked here, once, not per element; a buffer failing it refuses to
// walk with EMALFORMED.
func NewWalker(buf []byte) (*Walker, error) {
	return NewWalkerAt(buf, DataStart)
}

// NewWalkerAt resumes a walk at a previously returned NextOffset.
func NewWalkerAt(buf []byte, offset int) (*Walker, error) {
	if !IsValidDICOM(buf) {
		return nil, pacscodec.Errorf(pacscodec.EMALFORMED,
			"buffer is not a DICOM container (missing DICM magic or shorter than %d bytes)", DataStart)
	}
	if offset < DataStart {
		offset = DataStart
	}
	return &Walker{buf: buf, offset: offset}, nil
}

// Next returns the next data element. It returns io.EOF at a clean end of
// buffer and ETRUNCATED when a declared length overruns the remaining
// bytes; either way, elements already returned remain valid. Elements with
// an unfamiliar (but well-shaped) VR code are skipped, so every element
// Next yields carries exactly one known VR.
func (w *Walker) Next() (*DataElement, error) {
	for {
		// A short-form header needs 8 bytes. Fewer than that is the end of
		// the walk, not an error: trailing slack is common in real exports.
		if w.offset+headerShort > len(w.buf) {
			return nil, io.EOF
		}

		start := w.offset
		group := binary.LittleEndian.Uint16(w.buf[start:])
		element := binary.LittleEndian.Uint16(w.buf[start+2:])
		tag := Tag{Group: group, Element: element}

		vrCode := string(w.buf[start+4 : start+6])
		vr, known := LookupVR(vrCode)
		if !known && !isVRCodeShaped(vrCode) {
			return nil, pacscodec.Errorf(pacscodec.EMALFORMED,
				"byte %d: %q is not a value representation code", start+4, vrCode)
		}

		headerSize := headerShort
		var length uint32
		if known && vr.longForm {
			// A known long-form VR promises 12 header bytes; running out
			// inside them is truncation, same as a short-form overrun.
			if start+headerLong > len(w.buf) {
				return nil, pacscodec.Errorf(pacscodec.ETRUNCATED,
					"element %s at byte %d has a truncated long-form header", tag, start)
			}
			// 2 reserved bytes, then the 4-byte length.
			length = binary.LittleEndian.Uint32(w.buf[start+8:])
			headerSize = headerLong
		} else {
			length = uint32(binary.LittleEndian.Uint16(w.buf[start+6:]))
		}

		if length == undefinedLength {
			return nil, pacscodec.Errorf(pacscodec.ETRUNCATED,
				"element %s at byte %d uses undefined length, which this codec does not descend into", tag, start)
		}

		valueOffset := start + headerSize
		if valueOffset+int(length) > len(w.buf) {
			return nil, pacscodec.Errorf(pacscodec.ETRUNCATED,
				"element %s at byte %d declares %d value bytes but only %d remain",
				tag, start, length, len(w.buf)-valueOffset)
		}
		w.offset = valueOffset + int(length)

		if !known {
			// Unfamiliar VR, assumed short form: skip the span.
			continue
		}

		value, err := vr.Decode(w.buf, valueOffset, int(length))
		if err != nil {
			return nil, err
		}

		return &DataElement{
			Tag:        tag,
			VR:         vr,
			Length:     int(length),
			Value:      value,
			Offset:     start,
			NextOffset: w.offset,
		}, nil
	}
}

// isVRCodeShaped reports whether both bytes are uppercase ASCII letters.
func isVRCodeShaped(code string) bool {
	if len(code) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
