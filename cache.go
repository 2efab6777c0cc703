package pacscodec

import (
	"context"
	"time"
)

// CacheStats is a point-in-time snapshot of the cache's running counters.
// It is computed from counters maintained on every operation, never by
// scanning the store.
type CacheStats struct {
	HitRate       float64   `json:"hitRate"`
	MissRate      float64   `json:"missRate"`
	TotalRequests uint64    `json:"totalRequests"`
	ItemCount     int       `json:"itemCount"`
	CacheSize     int64     `json:"cacheSize"`
	OldestItem    time.Time `json:"oldestItem"`
	NewestItem    time.Time `json:"newestItem"`
}

// SearchResult is one row of a cached PACS search.
type SearchResult struct {
	StudyInstanceUID string `json:"studyInstanceUID"`
	PatientName      string `json:"patientName"`
	StudyDate        string `json:"studyDate"`
	Modality         string `json:"modality"`
	StudyDescription string `json:"studyDescription"`
}

// PrefetchRule declares a condition under which the images of matching
// studies are speculatively pulled into the cache. Rules are stateless; the
// engine owns their execution order (priority descending, declaration order
// breaking ties). A disabled rule is skipped entirely.
type PrefetchRule struct {
	Name      string
	Condition func(meta *DICOMMetadata) bool
	Priority  int
	MaxImages int
	Enabled   bool
}

// CacheService is the PACS object cache. Implementations must be
// linearizable per key: a Get never observes a half-written entry. Values
// handed out are copies or immutable views; entries are never shared
// outward by reference.
type CacheService interface {
	// Get loads the live entry under key into dest and reports whether one
	// was found. An expired entry is removed, counted as a miss and treated
	// as absent; so is a backend I/O failure.
	Get(ctx context.Context, key string, dest interface{}) bool

	// Set stores value under key. A zero ttl means "use the configured
	// default". Eviction needed to stay under the capacity bound is an
	// internal side effect and never surfaces as an error to the caller.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear empties the store.
	Clear(ctx context.Context) error

	// Stats returns the running counters snapshot.
	Stats() CacheStats

	// DICOM-specific wrappers. These are semantic key namespacing over the
	// same store, not separate stores.
	CacheStudyMetadata(ctx context.Context, meta *DICOMMetadata, ttl time.Duration) error
	CachedStudyMetadata(ctx context.Context, studyInstanceUID string) (*DICOMMetadata, bool)
	CacheImageData(ctx context.Context, sopInstanceUID string, pixels []byte, ttl time.Duration) error
	CachedImageData(ctx context.Context, sopInstanceUID string) ([]byte, bool)
	CacheSearchResults(ctx context.Context, searchKey string, results []SearchResult, ttl time.Duration) error
	CachedSearchResults(ctx context.Context, searchKey string) ([]SearchResult, bool)

	// InvalidateStudy deletes the study metadata key. It does not cascade
	// to the study's image keys; full invalidation is the caller's job.
	InvalidateStudy(ctx context.Context, studyInstanceUID string) error
}
