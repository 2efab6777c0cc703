package gcstorage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	pacscodec "gitlab.com/medical-research/pacs-codec"
)

const (
	instancePrefix = "instances/"
	studyPrefix    = "studies/"
)

// Ensure service implements interface.
var _ pacscodec.InstanceSource = (*InstanceSource)(nil)

// InstanceSource serves raw DICOM buffers from the bucket. The ingest
// pipeline (outside this core) writes one object per instance plus a
// per-study manifest listing its SOP instance UIDs.
type InstanceSource struct {
	client *Client
}

// NewInstanceSource returns a new instance of InstanceSource.
func NewInstanceSource(client *Client) *InstanceSource {
	return &InstanceSource{client: client}
}

// ListStudyInstances reads the study manifest and returns its SOP instance
// UIDs. An absent manifest is ENOTFOUND.
func (s *InstanceSource) ListStudyInstances(ctx context.Context, studyInstanceUID string) ([]string, error) {
	name := studyPrefix + studyInstanceUID + ".json"
	r, err := s.client.Client.Bucket(s.client.Bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, pacscodec.Errorf(pacscodec.ENOTFOUND, "study %s has no manifest", studyInstanceUID)
	} else if err != nil {
		return nil, fmt.Errorf("opening manifest %q: %v", name, err)
	}
	defer r.Close()

	var instances []string
	if err := json.NewDecoder(r).Decode(&instances); err != nil {
		return nil, fmt.Errorf("decoding manifest %q: %v", name, err)
	}
	return instances, nil
}

// FetchInstance returns the raw DICOM buffer for a single instance.
func (s *InstanceSource) FetchInstance(ctx context.Context, sopInstanceUID string) ([]byte, error) {
	name := instancePrefix + sopInstanceUID + ".dcm"
	r, err := s.client.Client.Bucket(s.client.Bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, pacscodec.Errorf(pacscodec.ENOTFOUND, "instance %s not found", sopInstanceUID)
	} else if err != nil {
		return nil, fmt.Errorf("opening instance %q: %v", name, err)
	}
	defer r.Close()

	return io.ReadAll(r)
}

// ListStudies iterates the manifest objects and returns the known study
// UIDs. It feeds the prefetch engine's working set.
func (s *InstanceSource) ListStudies(ctx context.Context) ([]string, error) {
	it := s.client.Client.Bucket(s.client.Bucket).Objects(ctx, &storage.Query{Prefix: studyPrefix})

	var studies []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing studies: %v", err)
		}
		name := strings.TrimPrefix(attrs.Name, studyPrefix)
		studies = append(studies, strings.TrimSuffix(name, ".json"))
	}
	return studies, nil
}
