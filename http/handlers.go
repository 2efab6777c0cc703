package http

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	pacscodec "gitlab.com/medical-research/pacs-codec"
)

// readDICOMBody reads an uploaded DICOM buffer, bounded by maxUploadBytes.
func readDICOMBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	buf, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		return nil, pacscodec.Errorf(pacscodec.EINVALID, "request body could not be read: %v", err)
	}
	if len(buf) == 0 {
		return nil, pacscodec.Errorf(pacscodec.EINVALID, "request body is empty")
	}
	return buf, nil
}

// ParseResponse is the payload of the "POST /dicom/parse" route.
type ParseResponse struct {
	Metadata   *pacscodec.DICOMMetadata   `json:"metadata"`
	Validation pacscodec.ValidationResult `json:"validation"`
}

// handleParseMetadata handles the "POST /dicom/parse" route. The body is a
// raw DICOM buffer; the response carries the assembled record and its
// validation outcome. Records that validate cleanly are cached under their
// study UID as a side effect.
func (s *Server) handleParseMetadata(w http.ResponseWriter, r *http.Request) {
	buf, err := readDICOMBody(w, r)
	if err != nil {
		Error(w, r, err)
		return
	}

	meta, err := s.MetadataService.ParseMetadata(buf)
	if err != nil {
		Error(w, r, err)
		return
	}

	validation := s.MetadataService.ValidateMetadata(meta)
	if validation.Valid && s.CacheService != nil {
		if err := s.CacheService.CacheStudyMetadata(r.Context(), meta, 0); err != nil {
			// Caching is best effort on this route.
			LogError(r, err)
		}
	}

	WriteJSONResponse(w, &ParseResponse{Metadata: meta, Validation: validation}, http.StatusOK)
}

// handleExtractImage handles the "POST /dicom/image" route. The response
// bundles the pixel bytes with their geometry and metadata; pixel bytes are
// also cached under the instance's SOP UID.
func (s *Server) handleExtractImage(w http.ResponseWriter, r *http.Request) {
	buf, err := readDICOMBody(w, r)
	if err != nil {
		Error(w, r, err)
		return
	}

	img, err := s.MetadataService.ExtractImageData(buf)
	if err != nil {
		Error(w, r, err)
		return
	}
	if img.PixelData == nil {
		Error(w, r, pacscodec.Errorf(pacscodec.ENOTFOUND, "buffer carries no pixel data element"))
		return
	}

	if s.CacheService != nil && img.Metadata.SOPInstanceUID != "" {
		if err := s.CacheService.CacheImageData(r.Context(), img.Metadata.SOPInstanceUID, img.PixelData, 0); err != nil {
			LogError(r, err)
		}
	}

	WriteJSONResponse(w, img, http.StatusOK)
}

// handleValidate handles the "POST /dicom/validate" route. Invalid content
// is a 200 with the violation list; only a broken container is an error.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	buf, err := readDICOMBody(w, r)
	if err != nil {
		Error(w, r, err)
		return
	}

	meta, err := s.MetadataService.ParseMetadata(buf)
	if err != nil {
		Error(w, r, err)
		return
	}

	result := s.MetadataService.ValidateMetadata(meta)
	WriteJSONResponse(w, &result, http.StatusOK)
}

// handleStudyMetadata handles the "GET /studies/{studyInstanceUID}/metadata"
// route: cache first, decode-on-miss through the instance source when one
// is configured.
func (s *Server) handleStudyMetadata(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["studyInstanceUID"]

	if meta, ok := s.CacheService.CachedStudyMetadata(r.Context(), uid); ok {
		WriteJSONResponse(w, meta, http.StatusOK)
		return
	}

	if s.InstanceSource == nil {
		Error(w, r, pacscodec.Errorf(pacscodec.ENOTFOUND, "study %s is not cached", uid))
		return
	}

	instances, err := s.InstanceSource.ListStudyInstances(r.Context(), uid)
	if err != nil {
		Error(w, r, err)
		return
	}
	if len(instances) == 0 {
		Error(w, r, pacscodec.Errorf(pacscodec.ENOTFOUND, "study %s has no instances", uid))
		return
	}

	buf, err := s.InstanceSource.FetchInstance(r.Context(), instances[0])
	if err != nil {
		Error(w, r, err)
		return
	}
	meta, err := s.MetadataService.ParseMetadata(buf)
	if err != nil {
		Error(w, r, err)
		return
	}

	if err := s.CacheService.CacheStudyMetadata(r.Context(), meta, 0); err != nil {
		LogError(r, err)
	}
	WriteJSONResponse(w, meta, http.StatusOK)
}

// handleInvalidateStudy handles the "DELETE /studies/{studyInstanceUID}/cache"
// route. Image keys are left alone on purpose.
func (s *Server) handleInvalidateStudy(w http.ResponseWriter, r *http.Request) {
	uid := mux.Vars(r)["studyInstanceUID"]
	if err := s.CacheService.InvalidateStudy(r.Context(), uid); err != nil {
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCacheStats handles the "GET /cache/stats" route.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats := s.CacheService.Stats()
	WriteJSONResponse(w, &stats, http.StatusOK)
}

// handleClearCache handles the "DELETE /cache" route.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := s.CacheService.Clear(r.Context()); err != nil {
		Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PrefetchRequest names the studies forming the prefetch working set.
type PrefetchRequest struct {
	StudyInstanceUIDs []string `json:"studyInstanceUIDs"`
}

// PrefetchResponse acknowledges a triggered run.
type PrefetchResponse struct {
	Studies int `json:"studies"`
}

// handleTriggerPrefetch handles the "POST /prefetch" route. The run is
// fire-and-forget: the response acknowledges scheduling, not completion.
// Only studies whose metadata is already cached can be evaluated.
func (s *Server) handleTriggerPrefetch(w http.ResponseWriter, r *http.Request) {
	if s.Prefetch == nil {
		Error(w, r, pacscodec.Errorf(pacscodec.ENOTIMPLEMENTED, "prefetch is not configured"))
		return
	}

	var req PrefetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, r, pacscodec.Errorf(pacscodec.EINVALID, "invalid request"))
		return
	}

	var studies []*pacscodec.DICOMMetadata
	for _, uid := range req.StudyInstanceUIDs {
		if meta, ok := s.CacheService.CachedStudyMetadata(r.Context(), uid); ok {
			studies = append(studies, meta)
		}
	}

	s.Prefetch.Trigger(studies)
	WriteJSONResponse(w, &PrefetchResponse{Studies: len(studies)}, http.StatusAccepted)
}

// SignedURLResponse carries a time-limited instance URL.
type SignedURLResponse struct {
	URL string `json:"url"`
}

// handleSignedInstanceURL handles the "GET /instances/{sopInstanceUID}/url"
// route.
func (s *Server) handleSignedInstanceURL(w http.ResponseWriter, r *http.Request) {
	if s.SignedInstanceURL == nil {
		Error(w, r, pacscodec.Errorf(pacscodec.ENOTIMPLEMENTED, "signed URLs are not configured"))
		return
	}

	uid := mux.Vars(r)["sopInstanceUID"]
	// hardcoded the allowed method operation for security purposes
	// wanted the least amount of permissions to be allowed/alloweable
	url, err := s.SignedInstanceURL(uid, "GET")
	if err != nil {
		Error(w, r, pacscodec.Errorf(pacscodec.EINTERNAL, "signed URL could not be generated"))
		return
	}

	WriteJSONResponse(w, &SignedURLResponse{URL: url}, http.StatusOK)
}
