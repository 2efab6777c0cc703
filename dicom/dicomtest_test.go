package dicom_test

import (
	"encoding/binary"
)

// longFormVRs mirrors the header layout rules for building test buffers.
var longFormVRs = map[string]bool{
	"OB": true, "OW": true, "OF": true, "SQ": true, "UT": true, "UN": true,
}

// element encodes one explicit-VR little-endian data element.
func element(group, elem uint16, vr string, value []byte) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint16(buf, group)
	buf = binary.LittleEndian.AppendUint16(buf, elem)
	buf = append(buf, vr...)
	if longFormVRs[vr] {
		buf = append(buf, 0, 0)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
	} else {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(value)))
	}
	return append(buf, value...)
}

// container wraps encoded elements in a preamble + DICM magic.
func container(elements ...[]byte) []byte {
	buf := make([]byte, 128)
	buf = append(buf, "DICM"...)
	for _, e := range elements {
		buf = append(buf, e...)
	}
	return buf
}

func uint16LE(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}
