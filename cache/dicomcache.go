package cache

import (
	"context"
	"time"

	pacscodec "gitlab.com/medical-research/pacs-codec"
)

// DICOM key namespaces. The wrappers below are semantic key namespacing
// over the one store, not separate stores.
const (
	studyKeyPrefix  = "study:"
	imageKeyPrefix  = "image:"
	searchKeyPrefix = "search:"
)

// StudyKey returns the cache key for a study's metadata record.
func StudyKey(studyInstanceUID string) string { return studyKeyPrefix + studyInstanceUID }

// ImageKey returns the cache key for an instance's pixel bytes.
func ImageKey(sopInstanceUID string) string { return imageKeyPrefix + sopInstanceUID }

// SearchKey returns the cache key for a search-result list.
func SearchKey(searchKey string) string { return searchKeyPrefix + searchKey }

// Get is the typed accessor over a Service. It exists so callers do not
// thread bare destinations around; a miss returns the zero value.
func Get[T any](ctx context.Context, s *Service, key string) (T, bool) {
	var v T
	ok := s.Get(ctx, key, &v)
	return v, ok
}

// CacheStudyMetadata stores meta under study:{studyInstanceUID}.
func (s *Service) CacheStudyMetadata(ctx context.Context, meta *pacscodec.DICOMMetadata, ttl time.Duration) error {
	if meta == nil {
		panic("cache: CacheStudyMetadata called with nil metadata")
	}
	return s.Set(ctx, StudyKey(meta.StudyInstanceUID), meta, ttl)
}

// CachedStudyMetadata returns the cached metadata record for a study.
func (s *Service) CachedStudyMetadata(ctx context.Context, studyInstanceUID string) (*pacscodec.DICOMMetadata, bool) {
	var meta pacscodec.DICOMMetadata
	if !s.Get(ctx, StudyKey(studyInstanceUID), &meta) {
		return nil, false
	}
	return &meta, true
}

// CacheImageData stores an instance's raw pixel bytes under
// image:{sopInstanceUID}.
func (s *Service) CacheImageData(ctx context.Context, sopInstanceUID string, pixels []byte, ttl time.Duration) error {
	return s.Set(ctx, ImageKey(sopInstanceUID), pixels, ttl)
}

// CachedImageData returns the cached pixel bytes for an instance.
func (s *Service) CachedImageData(ctx context.Context, sopInstanceUID string) ([]byte, bool) {
	var pixels []byte
	if !s.Get(ctx, ImageKey(sopInstanceUID), &pixels) {
		return nil, false
	}
	return pixels, true
}

// CacheSearchResults stores a result list under search:{searchKey}.
func (s *Service) CacheSearchResults(ctx context.Context, searchKey string, results []pacscodec.SearchResult, ttl time.Duration) error {
	return s.Set(ctx, SearchKey(searchKey), results, ttl)
}

// CachedSearchResults returns the cached result list for a search key.
func (s *Service) CachedSearchResults(ctx context.Context, searchKey string) ([]pacscodec.SearchResult, bool) {
	var results []pacscodec.SearchResult
	if !s.Get(ctx, SearchKey(searchKey), &results) {
		return nil, false
	}
	return results, true
}

// InvalidateStudy deletes the study metadata key. It deliberately does not
// cascade to the study's image keys; a caller wanting full invalidation
// deletes those itself.
func (s *Service) InvalidateStudy(ctx context.Context, studyInstanceUID string) error {
	return s.Delete(ctx, StudyKey(studyInstanceUID))
}
