package dicom_test

import (
	"os"
	"path/filepath"
	"testing"

	pacscodec "gitlab.com/medical-research/pacs-codec"
	"gitlab.com/medical-research/pacs-codec/dicom"
)

func writeTempDICOM(t *testing.T, dir, name string, buf []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadFile_ErrorKinds(t *testing.T) {
	dir := t.TempDir()

	_, err := dicom.ReadFile(filepath.Join(dir, "missing.dcm"))
	if pacscodec.ErrorCode(err) != pacscodec.ENOTFOUND {
		t.Fatalf("missing file: code = %q, want %q", pacscodec.ErrorCode(err), pacscodec.ENOTFOUND)
	}

	path := writeTempDICOM(t, dir, "junk.dcm", make([]byte, 200))
	_, err = dicom.ReadFile(path)
	if pacscodec.ErrorCode(err) != pacscodec.EMALFORMED {
		t.Fatalf("junk file: code = %q, want %q", pacscodec.ErrorCode(err), pacscodec.EMALFORMED)
	}
}

func TestCodec_BatchProcessFiles(t *testing.T) {
	dir := t.TempDir()

	study := func(patient string) []byte {
		return container(element(0x0010, 0x0010, "PN", []byte(patient)))
	}

	paths := []string{
		writeTempDICOM(t, dir, "a.dcm", study("DOE^JANE")),
		writeTempDICOM(t, dir, "b.dcm", study("SMITH^JO")),
		writeTempDICOM(t, dir, "c.dcm", make([]byte, 200)),
	}

	results := dicom.NewCodec().BatchProcessFiles(paths)
	if len(results) != 3 {
		t.Fatalf("got %d results, want one per input", len(results))
	}

	wantValid := []bool{true, true, false}
	for i, r := range results {
		if r.IsValid != wantValid[i] {
			t.Fatalf("result %d valid = %v, want %v (%+v)", i, r.IsValid, wantValid[i], r)
		}
		if r.Path != paths[i] {
			t.Fatalf("result %d path = %q, want %q", i, r.Path, paths[i])
		}
	}
	if results[0].Metadata.PatientName != "DOE^JANE" {
		t.Fatalf("first result metadata = %+v", results[0].Metadata)
	}
	if results[2].Error == "" {
		t.Fatal("failed file should carry its error message")
	}
	if results[2].Metadata != nil {
		t.Fatal("failed file should not carry partial metadata")
	}
}

func TestCodec_BatchProcessFiles_MissingFileIsIsolated(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		filepath.Join(dir, "missing.dcm"),
		writeTempDICOM(t, dir, "ok.dcm", container(element(0x0010, 0x0010, "PN", []byte("DOE^JANE")))),
	}

	results := dicom.NewCodec().BatchProcessFiles(paths)
	if results[0].IsValid || results[0].Error == "" {
		t.Fatalf("missing file result = %+v", results[0])
	}
	if !results[1].IsValid {
		t.Fatalf("later file should still process: %+v", results[1])
	}
}
