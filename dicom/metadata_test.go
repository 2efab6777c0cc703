package dicom_test

import (
	"testing"

	pacscodec "gitlab.com/medical-research/pacs-codec"
	"gitlab.com/medical-research/pacs-codec/dicom"
)

func TestCodec_ParseMetadata(t *testing.T) {
	buf := container(
		element(0x0010, 0x0010, "PN", []byte("DOE^JANE")),
		element(0x0010, 0x0020, "LO", []byte("PID-0042")),
		element(0x0008, 0x0020, "DA", []byte("20240115")),
		element(0x0008, 0x0030, "TM", []byte("143045")),
		element(0x0008, 0x0060, "CS", []byte("CT")),
		element(0x0008, 0x1030, "LO", []byte("CHEST ROUTINE ")),
		element(0x0020, 0x000D, "UI", []byte("1.2.840.10008.1.1\x00")),
		element(0x0020, 0x000E, "UI", []byte("1.2.840.10008.1.2\x00")),
		element(0x0008, 0x0018, "UI", []byte("1.2.840.10008.1.3\x00")),
		element(0x0020, 0x0013, "IS", []byte("1 ")),
	)

	codec := dicom.NewCodec()
	meta, err := codec.ParseMetadata(buf)
	if err != nil {
		t.Fatal(err)
	}

	want := &pacscodec.DICOMMetadata{
		PatientName:       "DOE^JANE",
		PatientID:         "PID-0042",
		StudyDate:         "2024-01-15",
		StudyTime:         "14:30:45",
		Modality:          "CT",
		StudyDescription:  "CHEST ROUTINE",
		SeriesDescription: dicom.UnknownValue,
		StudyInstanceUID:  "1.2.840.10008.1.1",
		SeriesInstanceUID: "1.2.840.10008.1.2",
		SOPInstanceUID:    "1.2.840.10008.1.3",
		InstanceNumber:    1,
	}
	if *meta != *want {
		t.Fatalf("metadata mismatch:\n got %+v\nwant %+v", meta, want)
	}
}

func TestCodec_ParseMetadata_FirstOccurrenceWins(t *testing.T) {
	buf := container(
		element(0x0010, 0x0010, "PN", []byte("DOE^JANE")),
		element(0x0010, 0x0010, "PN", []byte("SMITH^JOHN")),
	)

	meta, err := dicom.NewCodec().ParseMetadata(buf)
	if err != nil {
		t.Fatal(err)
	}
	if meta.PatientName != "DOE^JANE" {
		t.Fatalf("PatientName = %q, want the first occurrence", meta.PatientName)
	}
}

func TestCodec_ParseMetadata_SentinelsForMissingFields(t *testing.T) {
	meta, err := dicom.NewCodec().ParseMetadata(container())
	if err != nil {
		t.Fatal(err)
	}
	if meta.PatientName != dicom.UnknownValue {
		t.Fatalf("PatientName = %q, want sentinel", meta.PatientName)
	}
	if meta.StudyDescription != dicom.UnknownValue {
		t.Fatalf("StudyDescription = %q, want sentinel", meta.StudyDescription)
	}
	// Identifier fields stay empty for the validator to flag.
	if meta.StudyInstanceUID != "" {
		t.Fatalf("StudyInstanceUID = %q, want empty", meta.StudyInstanceUID)
	}
}

func TestCodec_ParseMetadata_MalformedContainer(t *testing.T) {
	_, err := dicom.NewCodec().ParseMetadata(make([]byte, 200))
	if pacscodec.ErrorCode(err) != pacscodec.EMALFORMED {
		t.Fatalf("error code = %q, want %q", pacscodec.ErrorCode(err), pacscodec.EMALFORMED)
	}
}

func TestCodec_ParseMetadata_BadValueIsLocal(t *testing.T) {
	tests := []struct {
		name string
		bad  []byte
	}{
		{name: "impossible calendar date", bad: element(0x0008, 0x0020, "DA", []byte("20240230"))},
		{name: "wrong numeric width", bad: element(0x0028, 0x0010, "US", []byte{0x01, 0x02, 0x03})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := container(
				element(0x0010, 0x0010, "PN", []byte("DOE^JANE")),
				tt.bad,
				element(0x0008, 0x0060, "CS", []byte("CT")),
			)

			meta, err := dicom.NewCodec().ParseMetadata(buf)
			if err != nil {
				t.Fatal(err)
			}
			if meta.PatientName != "DOE^JANE" {
				t.Fatalf("PatientName = %q, want the element before the bad value", meta.PatientName)
			}
			if meta.StudyDate != "" {
				t.Fatalf("StudyDate = %q, want the bad value dropped", meta.StudyDate)
			}
			if meta.Modality != "CT" {
				t.Fatalf("Modality = %q; a bad value must end only its own element", meta.Modality)
			}
		})
	}
}

func TestCodec_ParseMetadata_TruncatedTailKeepsParsedFields(t *testing.T) {
	good := element(0x0010, 0x0010, "PN", []byte("DOE^JANE"))
	bad := element(0x0008, 0x1030, "LO", make([]byte, 64))[:8]

	meta, err := dicom.NewCodec().ParseMetadata(container(good, bad))
	if err != nil {
		t.Fatal(err)
	}
	if meta.PatientName != "DOE^JANE" {
		t.Fatalf("PatientName = %q; a malformed tail must not drop parsed fields", meta.PatientName)
	}
}

func TestCodec_ExtractImageData(t *testing.T) {
	pixels := make([]byte, 100)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	buf := container(
		element(0x0010, 0x0010, "PN", []byte("DOE^JANE")),
		element(0x0028, 0x0010, "US", uint16LE(512)),
		element(0x0028, 0x0011, "US", uint16LE(256)),
		element(0x0028, 0x0100, "US", uint16LE(16)),
		element(0x7FE0, 0x0010, "OW", pixels),
	)

	img, err := dicom.NewCodec().ExtractImageData(buf)
	if err != nil {
		t.Fatal(err)
	}

	if len(img.PixelData) != 100 {
		t.Fatalf("pixel data length = %d, want 100", len(img.PixelData))
	}
	if img.Info.Rows != 512 || img.Info.Columns != 256 {
		t.Fatalf("geometry = %dx%d, want 512x256", img.Info.Rows, img.Info.Columns)
	}
	if img.Info.BitsAllocated != 16 {
		t.Fatalf("bits allocated = %d, want 16", img.Info.BitsAllocated)
	}
	if img.Info.PixelDataLength != 100 {
		t.Fatalf("pixel data length field = %d, want 100", img.Info.PixelDataLength)
	}
	if img.Metadata.PatientName != "DOE^JANE" {
		t.Fatalf("metadata not assembled alongside pixels: %+v", img.Metadata)
	}

	// The bundle references the source buffer rather than copying it.
	for i, b := range img.PixelData {
		if b != byte(i) {
			t.Fatalf("pixel byte %d = %d, want %d", i, b, byte(i))
		}
	}
}

func TestCodec_ExtractImageData_BadValueIsLocal(t *testing.T) {
	pixels := make([]byte, 16)
	buf := container(
		element(0x0008, 0x0020, "DA", []byte("20241315")),
		element(0x0028, 0x0010, "US", uint16LE(512)),
		element(0x7FE0, 0x0010, "OW", pixels),
	)

	img, err := dicom.NewCodec().ExtractImageData(buf)
	if err != nil {
		t.Fatal(err)
	}
	if img.Info.Rows != 512 {
		t.Fatalf("rows = %d; a bad value must not drop later elements", img.Info.Rows)
	}
	if len(img.PixelData) != 16 {
		t.Fatalf("pixel data length = %d, want 16", len(img.PixelData))
	}
}

func TestCodec_ExtractImageData_NoPixelElement(t *testing.T) {
	img, err := dicom.NewCodec().ExtractImageData(container(
		element(0x0010, 0x0010, "PN", []byte("DOE^JANE")),
	))
	if err != nil {
		t.Fatal(err)
	}
	if img.PixelData != nil {
		t.Fatalf("pixel data = %v, want nil", img.PixelData)
	}
}
