package dicom_test

import (
	"errors"
	"io"
	"testing"

	pacscodec "gitlab.com/medical-research/pacs-codec"
	"gitlab.com/medical-research/pacs-codec/dicom"
)

func TestIsValidDICOM(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want bool
	}{
		{name: "nil buffer", buf: nil, want: false},
		{name: "short buffer", buf: make([]byte, 131), want: false},
		{name: "zero filled 200 bytes", buf: make([]byte, 200), want: false},
		{name: "magic only", buf: container(), want: true},
		{name: "magic with arbitrary tail", buf: append(container(), 0xDE, 0xAD), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := dicom.IsValidDICOM(tt.buf); got != tt.want {
				t.Fatalf("IsValidDICOM = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewWalker_RefusesNonDICOM(t *testing.T) {
	_, err := dicom.NewWalker(make([]byte, 200))
	if pacscodec.ErrorCode(err) != pacscodec.EMALFORMED {
		t.Fatalf("error code = %q, want %q", pacscodec.ErrorCode(err), pacscodec.EMALFORMED)
	}
}

func TestWalker_Next(t *testing.T) {
	buf := container(
		element(0x0010, 0x0010, "PN", []byte("DOE^JANE")),
		element(0x0008, 0x0020, "DA", []byte("20240115")),
		element(0x0028, 0x0010, "US", uint16LE(512)),
	)

	w, err := dicom.NewWalker(buf)
	if err != nil {
		t.Fatal(err)
	}

	first, err := w.Next()
	if err != nil {
		t.Fatal(err)
	}
	if first.Tag != dicom.TagPatientName {
		t.Fatalf("first tag = %v, want %v", first.Tag, dicom.TagPatientName)
	}
	if got := string(first.Value.(dicom.TextValue)); got != "DOE^JANE" {
		t.Fatalf("first value = %q, want %q", got, "DOE^JANE")
	}
	if first.Offset != dicom.DataStart {
		t.Fatalf("first offset = %d, want %d", first.Offset, dicom.DataStart)
	}
	if want := dicom.DataStart + 8 + 8; first.NextOffset != want {
		t.Fatalf("first next offset = %d, want %d", first.NextOffset, want)
	}

	second, err := w.Next()
	if err != nil {
		t.Fatal(err)
	}
	if got := string(second.Value.(dicom.DateValue)); got != "2024-01-15" {
		t.Fatalf("second value = %q, want %q", got, "2024-01-15")
	}

	third, err := w.Next()
	if err != nil {
		t.Fatal(err)
	}
	if got := third.Value.(dicom.IntValue); got != 512 {
		t.Fatalf("third value = %d, want 512", got)
	}

	if _, err := w.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestWalker_RestartableFromOffset(t *testing.T) {
	buf := container(
		element(0x0010, 0x0010, "PN", []byte("DOE^JANE")),
		element(0x0008, 0x0060, "CS", []byte("CT")),
	)

	w, err := dicom.NewWalker(buf)
	if err != nil {
		t.Fatal(err)
	}
	first, err := w.Next()
	if err != nil {
		t.Fatal(err)
	}

	// A fresh walker at NextOffset picks up exactly where the first left off.
	resumed, err := dicom.NewWalkerAt(buf, first.NextOffset)
	if err != nil {
		t.Fatal(err)
	}
	second, err := resumed.Next()
	if err != nil {
		t.Fatal(err)
	}
	if second.Tag != dicom.TagModality {
		t.Fatalf("resumed tag = %v, want %v", second.Tag, dicom.TagModality)
	}
}

func TestWalker_TruncatedTailKeepsPriorElements(t *testing.T) {
	good := element(0x0010, 0x0010, "PN", []byte("DOE^JANE"))
	// Declares 32 value bytes but carries none.
	bad := element(0x0008, 0x1030, "LO", make([]byte, 32))[:8]
	buf := container(good, bad)

	w, err := dicom.NewWalker(buf)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := w.Next(); err != nil {
		t.Fatalf("first element should parse: %v", err)
	}
	_, err = w.Next()
	if pacscodec.ErrorCode(err) != pacscodec.ETRUNCATED {
		t.Fatalf("error code = %q, want %q", pacscodec.ErrorCode(err), pacscodec.ETRUNCATED)
	}
}

func TestWalker_TruncatedLongFormHeader(t *testing.T) {
	// Cut inside the 12-byte long-form header: 10 of its bytes remain.
	partial := element(0x7FE0, 0x0010, "OW", make([]byte, 100))[:10]
	buf := container(element(0x0008, 0x0060, "CS", []byte("CT")), partial)

	w, err := dicom.NewWalker(buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Next(); err != nil {
		t.Fatalf("first element should parse: %v", err)
	}
	_, err = w.Next()
	if pacscodec.ErrorCode(err) != pacscodec.ETRUNCATED {
		t.Fatalf("error code = %q, want %q", pacscodec.ErrorCode(err), pacscodec.ETRUNCATED)
	}
}

func TestWalker_TrailingSlackEndsWalk(t *testing.T) {
	// Fewer than 8 trailing bytes cannot be a header; the walk just ends.
	buf := append(container(element(0x0008, 0x0060, "CS", []byte("MR"))), 0x00, 0x01, 0x02)

	w, err := dicom.NewWalker(buf)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Next(); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestWalker_SkipsUnfamiliarVR(t *testing.T) {
	buf := container(
		element(0x0009, 0x0001, "ZQ", []byte("private vendor data")),
		element(0x0008, 0x0060, "CS", []byte("CT")),
	)

	w, err := dicom.NewWalker(buf)
	if err != nil {
		t.Fatal(err)
	}
	elem, err := w.Next()
	if err != nil {
		t.Fatal(err)
	}
	if elem.Tag != dicom.TagModality {
		t.Fatalf("tag = %v, want the element after the unfamiliar VR", elem.Tag)
	}
}

func TestWalker_LongFormHeader(t *testing.T) {
	pixels := make([]byte, 100)
	buf := container(element(0x7FE0, 0x0010, "OW", pixels))

	w, err := dicom.NewWalker(buf)
	if err != nil {
		t.Fatal(err)
	}
	elem, err := w.Next()
	if err != nil {
		t.Fatal(err)
	}
	if elem.Tag != dicom.TagPixelData {
		t.Fatalf("tag = %v, want %v", elem.Tag, dicom.TagPixelData)
	}
	ref, ok := elem.Value.(dicom.BinaryRef)
	if !ok {
		t.Fatalf("value = %T, want BinaryRef", elem.Value)
	}
	if ref.Length != 100 {
		t.Fatalf("ref length = %d, want 100", ref.Length)
	}
	// 12-byte long-form header precedes the value.
	if want := dicom.DataStart + 12; ref.Offset != want {
		t.Fatalf("ref offset = %d, want %d", ref.Offset, want)
	}
}
