package pacscodec

import "context"

// DICOMMetadata is the structured record assembled from a decoded DICOM
// element stream. It is immutable after assembly; any "update" produces a
// new record. Fields that the source buffer does not carry are filled with
// an explicit sentinel ("Unknown" or empty) so downstream formatting never
// branches on optional fields.
type DICOMMetadata struct {
	PatientName      string `json:"patientName"`
	PatientID        string `json:"patientID"`
	PatientBirthDate string `json:"patientBirthDate"`
	PatientSex       string `json:"patientSex"`

	StudyInstanceUID  string `json:"studyInstanceUID"`
	SeriesInstanceUID string `json:"seriesInstanceUID"`
	SOPInstanceUID    string `json:"sopInstanceUID"`

	StudyDate         string `json:"studyDate"`
	StudyTime         string `json:"studyTime"`
	Modality          string `json:"modality"`
	StudyDescription  string `json:"studyDescription"`
	SeriesDescription string `json:"seriesDescription"`

	SeriesNumber   int `json:"seriesNumber"`
	InstanceNumber int `json:"instanceNumber"`

	// Counts reported by the study itself, when present.
	SeriesCount int `json:"seriesCount"`
	ImageCount  int `json:"imageCount"`
}

// ImageInfo describes the geometry of the pixel data carried by an instance.
type ImageInfo struct {
	Rows            int `json:"rows"`
	Columns         int `json:"columns"`
	BitsAllocated   int `json:"bitsAllocated"`
	PixelDataLength int `json:"pixelDataLength"`
}

// ImageData bundles the extracted pixel bytes with their geometry and the
// metadata of the instance they came from. PixelData aliases the source
// buffer; it is a reference, never a copy.
type ImageData struct {
	PixelData []byte         `json:"pixelData"`
	Info      ImageInfo      `json:"imageInfo"`
	Metadata  *DICOMMetadata `json:"metadata"`
}

// ValidationResult reports the outcome of validating a value or a whole
// metadata record. Invalid content is an expected, common outcome for
// clinical data ingestion, so violations are structured data, never errors.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// FileResult is the per-file outcome of a batch processing run. A corrupt
// file never fails the batch; it is reported here and the run continues.
type FileResult struct {
	Path     string         `json:"path"`
	IsValid  bool           `json:"isValid"`
	Metadata *DICOMMetadata `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// MetadataService is the decode surface of the codec. Implementations are
// stateless; it is safe to run many decodes concurrently on independent
// buffers.
type MetadataService interface {
	// IsValidDICOM reports whether buf carries the 128-byte preamble plus
	// the "DICM" magic at offset 128.
	IsValidDICOM(buf []byte) bool

	// ParseMetadata walks buf and assembles its metadata record.
	// Returns an EMALFORMED error when buf is not a DICOM container.
	ParseMetadata(buf []byte) (*DICOMMetadata, error)

	// ExtractImageData parses buf and additionally resolves its pixel data
	// element into a reference bundle.
	ExtractImageData(buf []byte) (*ImageData, error)

	// ValidateMetadata runs the composite field-level checks on a record.
	ValidateMetadata(meta *DICOMMetadata) ValidationResult

	// BatchProcessFiles reads and parses each path, isolating per-file
	// failures. The returned slice always has one entry per input path.
	BatchProcessFiles(paths []string) []FileResult
}

// InstanceSource fetches raw DICOM buffers for instances that are not yet
// cached, typically backing the prefetch engine.
type InstanceSource interface {
	// ListStudyInstances returns the SOP instance UIDs known for a study.
	ListStudyInstances(ctx context.Context, studyInstanceUID string) ([]string, error)

	// FetchInstance returns the raw DICOM buffer for a single instance.
	FetchInstance(ctx context.Context, sopInstanceUID string) ([]byte, error)
}
