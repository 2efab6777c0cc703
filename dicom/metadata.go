package dicom

import (
	"errors"
	"io"
	"strconv"
	"strings"

	pacscodec "gitlab.com/medical-research/pacs-codec"
)

// UnknownValue is the sentinel written into display fields the source
// buffer did not carry. Identifier and coded fields stay empty instead, so
// the validator can flag them rather than chase a fake value.
const UnknownValue = "Unknown"

// Ensure service implements interface.
var _ pacscodec.MetadataService = (*Codec)(nil)

// Codec implements pacscodec.MetadataService. It is stateless and safe for
// concurrent use.
type Codec struct{}

// NewCodec returns a new instance of Codec.
func NewCodec() *Codec {
	return &Codec{}
}

// IsValidDICOM reports whether buf is a walkable DICOM container.
func (c *Codec) IsValidDICOM(buf []byte) bool {
	return IsValidDICOM(buf)
}

// ParseMetadata walks buf and folds its elements into a metadata record.
// The fold is first-occurrence-wins: duplicate tags in the flat dataset are
// ignored. An element whose value fails to decode is skipped; only
// structural damage ends the fold, and never invalidates what was already
// assembled.
func (c *Codec) ParseMetadata(buf []byte) (*pacscodec.DICOMMetadata, error) {
	w, err := NewWalker(buf)
	if err != nil {
		return nil, err
	}

	a := newAssembler()
	for {
		elem, err := w.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if !walkable(err) {
				break
			}
			// Bad value, well-formed header: the cursor is already past
			// the element, so only this element's processing ends here.
			continue
		}
		a.fold(elem)
	}
	return a.finish(), nil
}

// walkable reports whether the walk can continue past err. Structural
// damage (truncation, malformed VR codes) ends the walk; a value that
// fails to decode is local to its element.
func walkable(err error) bool {
	switch pacscodec.ErrorCode(err) {
	case pacscodec.ETRUNCATED, pacscodec.EMALFORMED:
		return false
	}
	return true
}

// ExtractImageData parses buf and resolves its pixel data element into a
// reference bundle. PixelData aliases buf; the caller owns the buffer's
// lifetime.
func (c *Codec) ExtractImageData(buf []byte) (*pacscodec.ImageData, error) {
	w, err := NewWalker(buf)
	if err != nil {
		return nil, err
	}

	a := newAssembler()
	img := &pacscodec.ImageData{}
	for {
		elem, err := w.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if !walkable(err) {
				break
			}
			continue
		}
		a.fold(elem)

		switch elem.Tag {
		case TagRows:
			if v, ok := elem.Value.(IntValue); ok && img.Info.Rows == 0 {
				img.Info.Rows = int(v)
			}
		case TagColumns:
			if v, ok := elem.Value.(IntValue); ok && img.Info.Columns == 0 {
				img.Info.Columns = int(v)
			}
		case TagBitsAllocated:
			if v, ok := elem.Value.(IntValue); ok && img.Info.BitsAllocated == 0 {
				img.Info.BitsAllocated = int(v)
			}
		case TagPixelData:
			if ref, ok := elem.Value.(BinaryRef); ok && img.PixelData == nil {
				img.PixelData = buf[ref.Offset : ref.Offset+ref.Length]
				img.Info.PixelDataLength = ref.Length
			}
		}
	}

	img.Metadata = a.finish()
	return img, nil
}

// ValidateMetadata runs the composite field-level checks on meta.
func (c *Codec) ValidateMetadata(meta *pacscodec.DICOMMetadata) pacscodec.ValidationResult {
	return ValidateMetadata(meta)
}

// assembler folds a DataElement stream into a DICOMMetadata record. It is
// the boundary between raw decode output and the validated, cache-eligible
// record.
type assembler struct {
	meta pacscodec.DICOMMetadata
	seen map[Tag]bool
}

func newAssembler() *assembler {
	return &assembler{seen: make(map[Tag]bool)}
}

func (a *assembler) fold(elem *DataElement) {
	if _, ok := LookupTag(elem.Tag); !ok {
		return
	}
	if a.seen[elem.Tag] || elem.Value == nil {
		return
	}
	a.seen[elem.Tag] = true

	switch elem.Tag {
	case TagPatientName:
		a.meta.PatientName = text(elem.Value)
	case TagPatientID:
		a.meta.PatientID = text(elem.Value)
	case TagPatientBirthDate:
		a.meta.PatientBirthDate = text(elem.Value)
	case TagPatientSex:
		a.meta.PatientSex = text(elem.Value)
	case TagStudyInstanceUID:
		a.meta.StudyInstanceUID = text(elem.Value)
	case TagSeriesInstanceUID:
		a.meta.SeriesInstanceUID = text(elem.Value)
	case TagSOPInstanceUID:
		a.meta.SOPInstanceUID = text(elem.Value)
	case TagStudyDate:
		a.meta.StudyDate = text(elem.Value)
	case TagStudyTime:
		a.meta.StudyTime = text(elem.Value)
	case TagModality:
		a.meta.Modality = text(elem.Value)
	case TagStudyDescription:
		a.meta.StudyDescription = text(elem.Value)
	case TagSeriesDescription:
		a.meta.SeriesDescription = text(elem.Value)
	case TagSeriesNumber:
		a.meta.SeriesNumber = integer(elem.Value)
	case TagInstanceNumber:
		a.meta.InstanceNumber = integer(elem.Value)
	case TagStudyRelatedSeries:
		a.meta.SeriesCount = integer(elem.Value)
	case TagStudyRelatedInstances:
		a.meta.ImageCount = integer(elem.Value)
	}
}

// finish fills display-field sentinels and returns the assembled record.
func (a *assembler) finish() *pacscodec.DICOMMetadata {
	m := a.meta
	if m.PatientName == "" {
		m.PatientName = UnknownValue
	}
	if m.StudyDescription == "" {
		m.StudyDescription = UnknownValue
	}
	if m.SeriesDescription == "" {
		m.SeriesDescription = UnknownValue
	}
	return &m
}

// text renders textual, date and time values as strings; anything else is
// empty.
func text(v Value) string {
	switch t := v.(type) {
	case TextValue:
		return string(t)
	case DateValue:
		return string(t)
	case TimeValue:
		return string(t)
	}
	return ""
}

// integer extracts an int from binary numeric values and from IS-encoded
// textual numbers.
func integer(v Value) int {
	switch t := v.(type) {
	case IntValue:
		return int(t)
	case TextValue:
		if n, err := strconv.Atoi(strings.TrimSpace(string(t))); err == nil {
			return n
		}
	}
	return 0
}
