package cache

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	pacscodec "gitlab.com/medical-research/pacs-codec"
)

// DefaultPrefetchWorkers bounds the parallelism of one prefetch run so a
// large rule cannot starve the cache of capacity for hot keys.
const DefaultPrefetchWorkers = 4

// PrefetchEvent describes the outcome of one prefetch item. Err is empty on
// success.
type PrefetchEvent struct {
	Rule             string `json:"rule"`
	StudyInstanceUID string `json:"studyInstanceUID"`
	SOPInstanceUID   string `json:"sopInstanceUID"`
	Err              string `json:"error,omitempty"`
}

// PrefetchStats is a snapshot of the engine's counters across all runs.
type PrefetchStats struct {
	Scheduled uint64 `json:"scheduled"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
}

// PrefetchEngine speculatively pulls the images of matching studies into
// the cache. Rules execute priority descending, declaration order breaking
// ties; disabled rules are skipped entirely. Individual image failures are
// logged and never abort the rule or its siblings.
type PrefetchEngine struct {
	cache   *Service
	codec   pacscodec.MetadataService
	source  pacscodec.InstanceSource
	workers int
	ttl     time.Duration

	mu    sync.Mutex
	rules []pacscodec.PrefetchRule

	scheduled atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64

	// Notify, when set, receives one event per prefetch item. It is called
	// from worker goroutines and must not block.
	Notify func(PrefetchEvent)
}

// NewPrefetchEngine returns an engine caching through svc and fetching
// buffers from source via codec.
func NewPrefetchEngine(svc *Service, codec pacscodec.MetadataService, source pacscodec.InstanceSource, workers int, ttl time.Duration) *PrefetchEngine {
	if workers <= 0 {
		workers = DefaultPrefetchWorkers
	}
	return &PrefetchEngine{
		cache:   svc,
		codec:   codec,
		source:  source,
		workers: workers,
		ttl:     ttl,
	}
}

// SetRules replaces the rule list. Declaration order is preserved for
// priority ties.
func (e *PrefetchEngine) SetRules(rules []pacscodec.PrefetchRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append([]pacscodec.PrefetchRule(nil), rules...)
}

// Stats returns the engine's counters.
func (e *PrefetchEngine) Stats() PrefetchStats {
	return PrefetchStats{
		Scheduled: e.scheduled.Load(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
	}
}

// Trigger runs the engine fire-and-forget over the given working set. It
// never blocks the caller; the run is detached from the caller's request
// lifetime.
func (e *PrefetchEngine) Trigger(studies []*pacscodec.DICOMMetadata) {
	go e.Run(context.Background(), studies)
}

type prefetchJob struct {
	rule           string
	studyUID       string
	sopInstanceUID string
}

// Run evaluates every enabled rule against the working set and fetches up
// to MaxImages instances per rule on a bounded worker pool. It blocks until
// the run drains; use Trigger for the fire-and-forget form.
func (e *PrefetchEngine) Run(ctx context.Context, studies []*pacscodec.DICOMMetadata) {
	e.mu.Lock()
	rules := append([]pacscodec.PrefetchRule(nil), e.rules...)
	e.mu.Unlock()

	// Priority descending; SliceStable keeps declaration order for ties.
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	jobs := make(chan prefetchJob)
	var wg sync.WaitGroup
	wg.Add(e.workers)
	for i := 0; i < e.workers; i++ {
		go func() {
			defer wg.Done()
			for job := range jobs {
				e.fetchOne(ctx, job)
			}
		}()
	}

	for _, rule := range rules {
		if !rule.Enabled || rule.Condition == nil {
			continue
		}
		e.scheduleRule(ctx, rule, studies, jobs)
	}
	close(jobs)
	wg.Wait()
}

// scheduleRule enumerates the instances of matching studies and schedules
// fetches until the rule's MaxImages budget runs out.
func (e *PrefetchEngine) scheduleRule(ctx context.Context, rule pacscodec.PrefetchRule, studies []*pacscodec.DICOMMetadata, jobs chan<- prefetchJob) {
	remaining := rule.MaxImages
	for _, study := range studies {
		if remaining <= 0 {
			return
		}
		if study == nil || !rule.Condition(study) {
			continue
		}

		instances, err := e.source.ListStudyInstances(ctx, study.StudyInstanceUID)
		if err != nil {
			log.Printf("[prefetch] rule %q: listing instances of study %s: %v", rule.Name, study.StudyInstanceUID, err)
			continue
		}

		for _, sop := range instances {
			if remaining <= 0 {
				return
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- prefetchJob{rule: rule.Name, studyUID: study.StudyInstanceUID, sopInstanceUID: sop}:
				remaining--
				e.scheduled.Add(1)
			}
		}
	}
}

// fetchOne pulls one instance through the decode pipeline and caches its
// pixel bytes. Failure is local to the item.
func (e *PrefetchEngine) fetchOne(ctx context.Context, job prefetchJob) {
	err := e.fetchAndCache(ctx, job.sopInstanceUID)
	event := PrefetchEvent{
		Rule:             job.rule,
		StudyInstanceUID: job.studyUID,
		SOPInstanceUID:   job.sopInstanceUID,
	}
	if err != nil {
		e.failed.Add(1)
		event.Err = err.Error()
		log.Printf("[prefetch] rule %q: instance %s: %v", job.rule, job.sopInstanceUID, err)
	} else {
		e.completed.Add(1)
	}
	if e.Notify != nil {
		e.Notify(event)
	}
}

func (e *PrefetchEngine) fetchAndCache(ctx context.Context, sopInstanceUID string) error {
	buf, err := e.source.FetchInstance(ctx, sopInstanceUID)
	if err != nil {
		return err
	}
	img, err := e.codec.ExtractImageData(buf)
	if err != nil {
		return err
	}
	if img.PixelData == nil {
		return pacscodec.Errorf(pacscodec.ENOTFOUND, "instance %s carries no pixel data", sopInstanceUID)
	}
	return e.cache.CacheImageData(ctx, sopInstanceUID, img.PixelData, e.ttl)
}
