package dicom

import (
	"os"

	pacscodec "gitlab.com/medical-research/pacs-codec"
)

// ReadFile reads a .dcm file into a buffer and checks the container
// precondition. The two failure modes stay distinct so batch callers can
// report them separately: a missing file is ENOTFOUND, a present file
// without the DICM magic is EMALFORMED.
func ReadFile(path string) ([]byte, error) {
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, pacscodec.Errorf(pacscodec.ENOTFOUND, "dicom file %q not found", path)
	} else if err != nil {
		return nil, err
	}

	if !IsValidDICOM(buf) {
		return nil, pacscodec.Errorf(pacscodec.EMALFORMED, "file %q is not a DICOM container", path)
	}
	return buf, nil
}

// BatchProcessFiles reads and parses each path in turn. Per-file failures
// are isolated: one corrupt file cannot fail the run, and the returned
// slice always carries one result per input path, in order.
func (c *Codec) BatchProcessFiles(paths []string) []pacscodec.FileResult {
	results := make([]pacscodec.FileResult, 0, len(paths))

	for _, path := range paths {
		buf, err := ReadFile(path)
		if err != nil {
			results = append(results, pacscodec.FileResult{
				Path:    path,
				IsValid: false,
				Error:   pacscodec.ErrorMessage(err),
			})
			continue
		}

		meta, err := c.ParseMetadata(buf)
		if err != nil {
			results = append(results, pacscodec.FileResult{
				Path:    path,
				IsValid: false,
				Error:   pacscodec.ErrorMessage(err),
			})
			continue
		}

		results = append(results, pacscodec.FileResult{
			Path:     path,
			IsValid:  true,
			Metadata: meta,
		})
	}
	return results
}
