package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/rollbar/rollbar-go"

	pacscodec "gitlab.com/medical-research/pacs-codec"
	"gitlab.com/medical-research/pacs-codec/cache"
	"gitlab.com/medical-research/pacs-codec/dicom"
	"gitlab.com/medical-research/pacs-codec/gcstorage"
	"gitlab.com/medical-research/pacs-codec/http"
)

const (
	RollBarToken = "ROLLBAR_TOKEN"
	HTTPAddress  = "HTTP_ADDRESS"
	Domain       = "DOMAIN"

	CacheBackend    = "CACHE_BACKEND" // memory | filesystem | gcs
	CacheDir        = "CACHE_DIR"
	CacheCapacity   = "CACHE_CAPACITY"
	CacheTTLSeconds = "CACHE_DEFAULT_TTL_SECONDS"

	StorageBucketName = "STORAGE_BUCKET_NAME"
	PrefetchWorkers   = "PREFETCH_WORKERS"
)

// defaultPrefetchRules is the specialty-driven rule set this deployment
// ships with. Rules run priority descending; the declaration order below
// breaks ties.
var defaultPrefetchRules = []pacscodec.PrefetchRule{
	{
		Name:      "radiology-ct",
		Condition: func(m *pacscodec.DICOMMetadata) bool { return m.Modality == "CT" },
		Priority:  100,
		MaxImages: 50,
		Enabled:   true,
	},
	{
		Name:      "radiology-mr",
		Condition: func(m *pacscodec.DICOMMetadata) bool { return m.Modality == "MR" },
		Priority:  90,
		MaxImages: 50,
		Enabled:   true,
	},
	{
		Name:      "mammography-screening",
		Condition: func(m *pacscodec.DICOMMetadata) bool { return m.Modality == "MG" },
		Priority:  50,
		MaxImages: 20,
		Enabled:   true,
	},
}

func main() {
	// Setup signal handlers.
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() { <-c; cancel() }()

	// Instantiate a new type to represent our application.
	// This type lets us shared setup code with our end-to-end tests.
	m, err := NewMain(ctx)
	if err != nil {
		log.Panicf("new main could not be created: %v", err)
		os.Exit(1)
	}

	// Execute program.
	if err := m.Run(ctx); err != nil {
		m.Close()
		fmt.Fprintln(os.Stderr, err)
		pacscodec.ReportError(ctx, err)
		os.Exit(1)
	}

	// Wait for CTRL-C.
	<-ctx.Done()

	// Clean up program.
	if err := m.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Main represents the program.
type Main struct {
	// HTTP server for handling HTTP communication.
	// Codec and cache services are attached to it before running.
	HTTPServer *http.Server

	Codec    *dicom.Codec
	Cache    *cache.Service
	Prefetch *cache.PrefetchEngine

	// Optional cloud storage wiring; nil without STORAGE_BUCKET_NAME.
	Storage *gcstorage.Client
}

// NewMain returns a new instance of Main.
func NewMain(ctx context.Context) (*Main, error) {
	m := &Main{
		Codec:      dicom.NewCodec(),
		HTTPServer: http.NewServer(),
	}

	if bucket := os.Getenv(StorageBucketName); bucket != "" {
		storage, err := gcstorage.NewClient(ctx, bucket)
		if err != nil {
			return nil, err
		}
		m.Storage = storage
	}

	backend, err := newCacheBackend(m.Storage)
	if err != nil {
		return nil, err
	}
	m.Cache = cache.NewService(backend, cacheOptions()...)

	return m, nil
}

// Close gracefully stops the program.
func (m *Main) Close() error {
	if m.HTTPServer != nil {
		if err := m.HTTPServer.Close(); err != nil {
			return err
		}
	}
	if m.Storage != nil {
		if err := m.Storage.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Run executes the program. The configuration should already be set up before
// calling this function.
func (m *Main) Run(ctx context.Context) (err error) {
	// Initialize error tracking.
	if token, envErr := pacscodec.GetEnvVar(RollBarToken); envErr == nil {
		rollbar.SetToken(token)
		rollbar.SetEnvironment("development")
		rollbar.SetServerRoot("gitlab.com/medical-research/pacs-codec")
		pacscodec.ReportError = func(ctx context.Context, err error, args ...interface{}) {
			rollbar.Error(append([]interface{}{err}, args...)...)
		}
		pacscodec.ReportPanic = func(err interface{}) {
			rollbar.Critical(err)
		}
		log.Printf("rollbar error tracking enabled")
	} else {
		log.Printf("rollbar error tracking disabled: %v", envErr)
	}

	// The lazy-expiry discipline is correct on its own; the sweep just
	// bounds memory between accesses.
	m.Cache.StartSweeper(ctx, time.Minute)

	// Wire up prefetching and signed URLs when cloud storage is configured.
	if m.Storage != nil {
		source := gcstorage.NewInstanceSource(m.Storage)
		workers, _ := strconv.Atoi(os.Getenv(PrefetchWorkers))

		m.Prefetch = cache.NewPrefetchEngine(m.Cache, m.Codec, source, workers, 0)
		m.Prefetch.SetRules(defaultPrefetchRules)
		m.Prefetch.Notify = m.HTTPServer.PublishPrefetchEvent

		m.HTTPServer.InstanceSource = source
		m.HTTPServer.Prefetch = m.Prefetch
		m.HTTPServer.SignedInstanceURL = m.Storage.GeneratePresignedInstanceURL
	}

	// Copy configuration settings to the HTTP server.
	m.HTTPServer.Addr = os.Getenv(HTTPAddress)
	m.HTTPServer.Domain = os.Getenv(Domain)
	m.HTTPServer.MetadataService = m.Codec
	m.HTTPServer.CacheService = m.Cache

	// Start the HTTP server.
	if err := m.HTTPServer.Open(); err != nil {
		return err
	}

	// If TLS enabled, redirect non-TLS connections to TLS.
	if m.HTTPServer.UseTLS() {
		go func() {
			log.Fatal(http.ListenAndServeTLSRedirect(m.HTTPServer.Domain))
		}()
	}

	// Enable internal debug endpoints.
	go func() { log.Fatal(http.ListenAndServeDebug()) }()

	log.Printf("running: url=%q debug=http://localhost:6060", m.HTTPServer.URL())

	return nil
}

// newCacheBackend selects the pluggable store from the environment.
// Backends change persistence and latency, never get/set/TTL semantics.
func newCacheBackend(storage *gcstorage.Client) (cache.Backend, error) {
	switch backend := os.Getenv(CacheBackend); backend {
	case "", "memory":
		return cache.NewMemoryBackend(), nil
	case "filesystem":
		return cache.NewFilesystemBackend(pacscodec.MustGetEnvVar(CacheDir))
	case "gcs":
		if storage == nil {
			return nil, pacscodec.Errorf(pacscodec.EINVALID,
				"cache backend %q needs %s to be set", backend, StorageBucketName)
		}
		return gcstorage.NewCacheBackend(storage), nil
	default:
		return nil, pacscodec.Errorf(pacscodec.EINVALID, "unknown cache backend %q", backend)
	}
}

// cacheOptions reads the optional capacity/TTL tuning from the environment.
func cacheOptions() []cache.Option {
	var opts []cache.Option
	if n, err := strconv.Atoi(os.Getenv(CacheCapacity)); err == nil && n > 0 {
		opts = append(opts, cache.WithCapacity(n))
	}
	if secs, err := strconv.Atoi(os.Getenv(CacheTTLSeconds)); err == nil && secs > 0 {
		opts = append(opts, cache.WithDefaultTTL(time.Duration(secs)*time.Second))
	}
	return opts
}
