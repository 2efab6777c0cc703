package dicom_test

import (
	"testing"

	pacscodec "gitlab.com/medical-research/pacs-codec"
	"gitlab.com/medical-research/pacs-codec/dicom"
)

func TestVR_Decode_Date(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{name: "normalizes to ISO form", value: "20240115", want: "2024-01-15"},
		{name: "leap day", value: "20240229", want: "2024-02-29"},
		{name: "rejects month 13", value: "20241315", wantErr: true},
		{name: "rejects february 30th", value: "20240230", wantErr: true},
		{name: "rejects non-leap february 29th", value: "20230229", wantErr: true},
		{name: "rejects short value", value: "2024011", wantErr: true},
		{name: "rejects letters", value: "2024011X", wantErr: true},
		{name: "accepts trailing space padding", value: "20240115 ", want: "2024-01-15"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dicom.DA.Decode([]byte(tt.value), 0, len(tt.value))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Decode(%q) = %v, want error", tt.value, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%q): %v", tt.value, err)
			}
			if string(got.(dicom.DateValue)) != tt.want {
				t.Fatalf("Decode(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestVR_Decode_Time(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    string
		wantErr bool
	}{
		{name: "normalizes to colon form", value: "143045", want: "14:30:45"},
		{name: "drops fraction", value: "143045.123456", want: "14:30:45"},
		{name: "single fraction digit", value: "090000.5", want: "09:00:00"},
		{name: "rejects hour 24", value: "240000", wantErr: true},
		{name: "rejects minute 60", value: "146000", wantErr: true},
		{name: "rejects second 60", value: "143060", wantErr: true},
		{name: "rejects seven fraction digits", value: "143045.1234567", wantErr: true},
		{name: "rejects empty fraction", value: "143045.", wantErr: true},
		{name: "rejects short value", value: "1430", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dicom.TM.Decode([]byte(tt.value), 0, len(tt.value))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Decode(%q) = %v, want error", tt.value, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%q): %v", tt.value, err)
			}
			if string(got.(dicom.TimeValue)) != tt.want {
				t.Fatalf("Decode(%q) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestVR_Decode_PersonName(t *testing.T) {
	// Component separators are structure, not padding, and survive decoding.
	got, err := dicom.PN.Decode([]byte("DOE^JOHN^M^^JR "), 0, 15)
	if err != nil {
		t.Fatal(err)
	}
	if want := "DOE^JOHN^M^^JR"; string(got.(dicom.TextValue)) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestVR_Decode_Numbers(t *testing.T) {
	if got, err := dicom.US.Decode([]byte{0x00, 0x02}, 0, 2); err != nil {
		t.Fatal(err)
	} else if got.(dicom.IntValue) != 0x0200 {
		t.Fatalf("US = %d, want %d", got, 0x0200)
	}

	if got, err := dicom.UL.Decode([]byte{0x01, 0x00, 0x00, 0x00}, 0, 4); err != nil {
		t.Fatal(err)
	} else if got.(dicom.IntValue) != 1 {
		t.Fatalf("UL = %d, want 1", got)
	}

	// A short span for a fixed-width number is an error, not a null.
	_, err := dicom.US.Decode([]byte{0x01}, 0, 1)
	if pacscodec.ErrorCode(err) != pacscodec.ENUMWIDTH {
		t.Fatalf("error code = %q, want %q", pacscodec.ErrorCode(err), pacscodec.ENUMWIDTH)
	}
	_, err = dicom.UL.Decode(nil, 0, 0)
	if pacscodec.ErrorCode(err) != pacscodec.ENUMWIDTH {
		t.Fatalf("error code = %q, want %q", pacscodec.ErrorCode(err), pacscodec.ENUMWIDTH)
	}
}

func TestVR_Decode_EmptySpanIsNull(t *testing.T) {
	for _, vr := range []*dicom.VR{dicom.PN, dicom.DA, dicom.TM, dicom.OW, dicom.UI} {
		got, err := vr.Decode(nil, 0, 0)
		if err != nil {
			t.Fatalf("%s: %v", vr.Name, err)
		}
		if got != nil {
			t.Fatalf("%s: empty span decoded to %v, want nil", vr.Name, got)
		}
	}
}

func TestVR_Decode_BinaryIsReference(t *testing.T) {
	buf := make([]byte, 300)
	got, err := dicom.OW.Decode(buf, 200, 100)
	if err != nil {
		t.Fatal(err)
	}
	ref, ok := got.(dicom.BinaryRef)
	if !ok {
		t.Fatalf("OW decoded to %T, want BinaryRef", got)
	}
	if ref.Offset != 200 || ref.Length != 100 {
		t.Fatalf("ref = %+v, want offset 200 length 100", ref)
	}
}

func TestLookupVR(t *testing.T) {
	if _, ok := dicom.LookupVR("PN"); !ok {
		t.Fatal("PN should be known")
	}
	if _, ok := dicom.LookupVR("ZQ"); ok {
		t.Fatal("ZQ should be unknown")
	}
}
