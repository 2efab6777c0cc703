// Package dicom implements the metadata/image codec for explicit-VR
// little-endian DICOM buffers: a static tag dictionary, per-VR value
// decoding, a sequential element walker, a metadata assembler and the
// field-level validators. The codec path is purely synchronous and
// stateless aside from the walk cursor, so independent buffers may be
// decoded concurrently.
package dicom

import "fmt"

// Tag identifies a data element by its (group, element) pair.
type Tag struct {
	Group   uint16
	Element uint16
}

// String renders the tag in the conventional (GGGG,EEEE) hex form.
func (t Tag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}

// Tags the metadata assembler folds. The pixel data tag is special-cased
// throughout: its value is always a reference into the source buffer.
var (
	TagPatientName      = Tag{0x0010, 0x0010}
	TagPatientID        = Tag{0x0010, 0x0020}
	TagPatientBirthDate = Tag{0x0010, 0x0030}
	TagPatientSex       = Tag{0x0010, 0x0040}

	TagStudyDate        = Tag{0x0008, 0x0020}
	TagStudyTime        = Tag{0x0008, 0x0030}
	TagAccessionNumber  = Tag{0x0008, 0x0050}
	TagModality         = Tag{0x0008, 0x0060}
	TagStudyDescription = Tag{0x0008, 0x1030}

	TagSeriesDescription = Tag{0x0008, 0x103E}
	TagStudyInstanceUID  = Tag{0x0020, 0x000D}
	TagSeriesInstanceUID = Tag{0x0020, 0x000E}
	TagSOPInstanceUID    = Tag{0x0008, 0x0018}
	TagSOPClassUID       = Tag{0x0008, 0x0016}

	TagSeriesNumber   = Tag{0x0020, 0x0011}
	TagInstanceNumber = Tag{0x0020, 0x0013}

	TagStudyRelatedSeries    = Tag{0x0020, 0x1206}
	TagStudyRelatedInstances = Tag{0x0020, 0x1208}

	TagRows          = Tag{0x0028, 0x0010}
	TagColumns       = Tag{0x0028, 0x0011}
	TagBitsAllocated = Tag{0x0028, 0x0100}

	TagPixelData = Tag{0x7FE0, 0x0010}
)

// TagInfo is the dictionary entry for a tag: its semantic field name and
// the VR its value is encoded with.
type TagInfo struct {
	Name string
	VR   *VR
}

// tagDict is the static tag dictionary. Keys are strongly typed tags, not
// hex strings, so there is no case normalization to get wrong at call sites.
var tagDict = map[Tag]TagInfo{
	TagPatientName:      {"PatientName", PN},
	TagPatientID:        {"PatientID", LO},
	TagPatientBirthDate: {"PatientBirthDate", DA},
	TagPatientSex:       {"PatientSex", CS},

	TagStudyDate:        {"StudyDate", DA},
	TagStudyTime:        {"StudyTime", TM},
	TagAccessionNumber:  {"AccessionNumber", SH},
	TagModality:         {"Modality", CS},
	TagStudyDescription: {"StudyDescription", LO},

	TagSeriesDescription: {"SeriesDescription", LO},
	TagStudyInstanceUID:  {"StudyInstanceUID", UI},
	TagSeriesInstanceUID: {"SeriesInstanceUID", UI},
	TagSOPInstanceUID:    {"SOPInstanceUID", UI},
	TagSOPClassUID:       {"SOPClassUID", UI},

	TagSeriesNumber:   {"SeriesNumber", IS},
	TagInstanceNumber: {"InstanceNumber", IS},

	TagStudyRelatedSeries:    {"NumberOfStudyRelatedSeries", IS},
	TagStudyRelatedInstances: {"NumberOfStudyRelatedInstances", IS},

	TagRows:          {"Rows", US},
	TagColumns:       {"Columns", US},
	TagBitsAllocated: {"BitsAllocated", US},

	TagPixelData: {"PixelData", OW},
}

// LookupTag resolves a tag against the dictionary.
func LookupTag(t Tag) (TagInfo, bool) {
	info, ok := tagDict[t]
	return info, ok
}
