package dicom

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	pacscodec "gitlab.com/medical-research/pacs-codec"
)

// vrKind groups VRs that share a decode strategy.
type vrKind int

const (
	// textKind is for value fields interpreted as padded text. Internal
	// structure such as the '^' separators of PN is preserved verbatim.
	textKind vrKind = iota

	// dateKind is for VR DA: 8 ASCII digits YYYYMMDD.
	dateKind

	// timeKind is for VR TM: HHMMSS with an optional fraction.
	timeKind

	// numberKind is for fixed-width little-endian binary integers.
	numberKind

	// binaryKind is for bulk data such as pixel data. Values are returned
	// as references into the source buffer, never copied into text.
	binaryKind

	// sequenceKind is for VR SQ. Nested datasets are out of scope; the
	// walker skips the declared span and yields a null value.
	sequenceKind
)

// VR models a DICOM value representation: the 2-character code, its decode
// strategy, and whether the element header carries the 4-byte long-form
// length (2 reserved bytes + 4-byte length) instead of the 2-byte short form.
type VR struct {
	Name     string
	kind     vrKind
	longForm bool
	// width is the fixed byte width for numberKind VRs.
	width int
}

var vrLookupMap = map[string]*VR{}

func newVR(name string, kind vrKind, longForm bool, width int) *VR {
	vr := &VR{Name: name, kind: kind, longForm: longForm, width: width}
	vrLookupMap[name] = vr
	return vr
}

// VR list per PS3.5 §6.2, restricted to the representations this codec
// emits. Every element the walker yields carries exactly one of these.
var (
	// textual
	AE = newVR("AE", textKind, false, 0)
	AS = newVR("AS", textKind, false, 0)
	CS = newVR("CS", textKind, false, 0)
	DS = newVR("DS", textKind, false, 0)
	IS = newVR("IS", textKind, false, 0)
	LO = newVR("LO", textKind, false, 0)
	LT = newVR("LT", textKind, false, 0)
	PN = newVR("PN", textKind, false, 0)
	SH = newVR("SH", textKind, false, 0)
	ST = newVR("ST", textKind, false, 0)
	UI = newVR("UI", textKind, false, 0)
	UT = newVR("UT", textKind, true, 0)

	// dates & times
	DA = newVR("DA", dateKind, false, 0)
	TM = newVR("TM", timeKind, false, 0)
	DT = newVR("DT", textKind, false, 0)

	// binary numbers
	US = newVR("US", numberKind, false, 2)
	SS = newVR("SS", numberKind, false, 2)
	UL = newVR("UL", numberKind, false, 4)
	SL = newVR("SL", numberKind, false, 4)

	// bulk data
	OB = newVR("OB", binaryKind, true, 0)
	OW = newVR("OW", binaryKind, true, 0)
	OF = newVR("OF", binaryKind, true, 0)
	UN = newVR("UN", binaryKind, true, 0)

	// sequences
	SQ = newVR("SQ", sequenceKind, true, 0)
)

// LookupVR resolves a 2-character VR code.
func LookupVR(name string) (*VR, bool) {
	vr, ok := vrLookupMap[name]
	return vr, ok
}

// Value is the decoded form of an element's raw bytes. A nil Value means
// the span was empty (or the VR unknown); that is data, not an error.
type Value interface {
	isValue()
}

// TextValue is decoded text, trailing padding removed, internal structure
// (such as PN's '^' component separators) preserved.
type TextValue string

// DateValue is a DA value normalized to YYYY-MM-DD.
type DateValue string

// TimeValue is a TM value normalized to HH:MM:SS.
type TimeValue string

// IntValue is a decoded US/SS/UL/SL value.
type IntValue uint32

// BinaryRef is a reference to a bulk-data span inside the source buffer.
// Pixel data is always represented this way, never materialized as text.
type BinaryRef struct {
	Offset int
	Length int
}

func (TextValue) isValue() {}
func (DateValue) isValue() {}
func (TimeValue) isValue() {}
func (IntValue) isValue()  {}
func (BinaryRef) isValue() {}

// Decode turns the raw span at buf[offset:offset+length] into a typed value
// according to vr. Empty spans decode to nil for every kind except the
// fixed-width numeric ones, where a short span is an ENUMWIDTH error.
func (vr *VR) Decode(buf []byte, offset, length int) (Value, error) {
	span := buf[offset : offset+length]

	switch vr.kind {
	case textKind:
		if length == 0 {
			return nil, nil
		}
		return TextValue(trimPadding(string(span))), nil

	case dateKind:
		if length == 0 {
			return nil, nil
		}
		return decodeDate(trimPadding(string(span)))

	case timeKind:
		if length == 0 {
			return nil, nil
		}
		return decodeTime(trimPadding(string(span)))

	case numberKind:
		if length != vr.width {
			return nil, pacscodec.Errorf(pacscodec.ENUMWIDTH,
				"vr %s wants %d value bytes, got %d", vr.Name, vr.width, length)
		}
		if vr.width == 2 {
			return IntValue(binary.LittleEndian.Uint16(span)), nil
		}
		return IntValue(binary.LittleEndian.Uint32(span)), nil

	case binaryKind:
		if length == 0 {
			return nil, nil
		}
		return BinaryRef{Offset: offset, Length: length}, nil

	case sequenceKind:
		// nested datasets are not decoded
		return nil, nil

	default:
		return nil, pacscodec.Errorf(pacscodec.EINTERNAL, "unknown vr kind %d", vr.kind)
	}
}

// trimPadding strips the space and null padding DICOM uses to even out
// value lengths. Leading characters are significant and kept.
func trimPadding(s string) string {
	return strings.TrimRight(s, " \x00")
}

// decodeDate normalizes an 8-digit YYYYMMDD value to YYYY-MM-DD. Values
// that are not exactly 8 digits or do not round-trip through a real
// calendar (e.g. 20240230) are rejected.
func decodeDate(s string) (Value, error) {
	if len(s) != 8 || !allDigits(s) {
		return nil, pacscodec.Errorf(pacscodec.EINVALID, "date value %q is not YYYYMMDD", s)
	}
	t, err := time.Parse("20060102", s)
	if err != nil || t.Format("20060102") != s {
		return nil, pacscodec.Errorf(pacscodec.EINVALID, "date value %q is not a calendar date", s)
	}
	return DateValue(fmt.Sprintf("%s-%s-%s", s[0:4], s[4:6], s[6:8])), nil
}

// decodeTime normalizes HHMMSS, optionally followed by '.' and 1-6
// fractional digits, to HH:MM:SS. The fraction is accepted and dropped.
func decodeTime(s string) (Value, error) {
	base := s
	if i := strings.IndexByte(s, '.'); i >= 0 {
		base = s[:i]
		frac := s[i+1:]
		if len(frac) < 1 || len(frac) > 6 || !allDigits(frac) {
			return nil, pacscodec.Errorf(pacscodec.EINVALID, "time value %q has a bad fraction", s)
		}
	}
	if len(base) != 6 || !allDigits(base) {
		return nil, pacscodec.Errorf(pacscodec.EINVALID, "time value %q is not HHMMSS", s)
	}
	hh := (base[0]-'0')*10 + (base[1] - '0')
	mm := (base[2]-'0')*10 + (base[3] - '0')
	ss := (base[4]-'0')*10 + (base[5] - '0')
	if hh > 23 || mm > 59 || ss > 59 {
		return nil, pacscodec.Errorf(pacscodec.EINVALID, "time value %q is out of range", s)
	}
	return TimeValue(fmt.Sprintf("%s:%s:%s", base[0:2], base[2:4], base[4:6])), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
