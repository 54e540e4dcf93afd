package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bilimath/crawler/internal/classify"
	"github.com/bilimath/crawler/internal/metrics"
	"github.com/bilimath/crawler/internal/normalize"
)

// Classifier assigns a subject label to a record, reporting which tier of
// the policy produced it.
type Classifier interface {
	Classify(title, tags, fallback string) (string, classify.Tier)
}

// SchedulerConfig controls pagination depth and pacing. Values are taken
// as given: a zero delay or pause means none, and defaults are owned by
// the config layer.
type SchedulerConfig struct {
	MaxPages      int
	DelayMin      time.Duration
	DelayMax      time.Duration
	FailurePause  time.Duration
	ArchivePrefix string
	Topic         string
}

// Progress is a point-in-time snapshot of a crawl run, served by the ops
// API while the run is in flight.
type Progress struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	CurrentKeyword   string    `json:"current_keyword,omitempty"`
	JobsTotal        int       `json:"jobs_total"`
	JobsDone         int       `json:"jobs_done"`
	PagesFetched     int       `json:"pages_fetched"`
	PagesFailed      int       `json:"pages_failed"`
	BatchesFailed    int       `json:"batches_failed"`
	RecordsCommitted int64     `json:"records_committed"`
	Done             bool      `json:"done"`
}

// Scheduler drives the ingestion loop: one job at a time, one page at a
// time, strictly sequential. No failure below the job level is fatal to the
// run; cancellation is honored at page and job boundaries only.
type Scheduler struct {
	fetcher    Fetcher
	store      VideoStore
	classifier Classifier
	archive    BlobStore
	publisher  Publisher
	clock      Clock
	cfg        SchedulerConfig
	logger     *zap.Logger

	sleep     func(time.Duration)
	randFloat func() float64

	mu       sync.Mutex
	progress Progress
}

// NewScheduler constructs a Scheduler. The archive and publisher are
// optional; pass nil to disable them.
func NewScheduler(
	fetcher Fetcher,
	store VideoStore,
	classifier Classifier,
	archive BlobStore,
	publisher Publisher,
	clock Clock,
	cfg SchedulerConfig,
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		fetcher:    fetcher,
		store:      store,
		classifier: classifier,
		archive:    archive,
		publisher:  publisher,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
		sleep:      time.Sleep,
		randFloat:  rand.Float64,
	}
}

// Run executes the crawl plan in order and returns the final progress. Jobs
// are independent: a failure inside one never aborts the ones after it.
func (s *Scheduler) Run(ctx context.Context, jobs []CrawlJob) Progress {
	runID := uuid.NewString()
	s.mu.Lock()
	s.progress = Progress{
		RunID:     runID,
		StartedAt: s.clock.Now(),
		JobsTotal: len(jobs),
	}
	s.mu.Unlock()

	s.logger.Info("crawl run started",
		zap.String("run_id", runID),
		zap.Int("jobs", len(jobs)),
	)

	for _, job := range jobs {
		if ctx.Err() != nil {
			s.logger.Warn("crawl run canceled", zap.String("run_id", runID))
			break
		}
		s.setCurrentKeyword(job.Keyword)
		s.runJob(ctx, runID, job)
		s.jobDone()
	}

	s.mu.Lock()
	s.progress.CurrentKeyword = ""
	s.progress.Done = true
	final := s.progress
	s.mu.Unlock()

	s.logger.Info("crawl run finished",
		zap.String("run_id", runID),
		zap.Int("pages_fetched", final.PagesFetched),
		zap.Int("pages_failed", final.PagesFailed),
		zap.Int64("records_committed", final.RecordsCommitted),
	)
	return final
}

// Snapshot returns a copy of the current run progress.
func (s *Scheduler) Snapshot() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *Scheduler) runJob(ctx context.Context, runID string, job CrawlJob) {
	log := s.logger.With(
		zap.String("keyword", job.Keyword),
		zap.String("phase", job.Phase),
		zap.String("subject", job.Subject),
	)
	log.Info("job started")

	for page := 1; page <= s.cfg.MaxPages; page++ {
		if ctx.Err() != nil {
			return
		}
		s.courtesySleep()

		result, err := s.fetcher.Fetch(ctx, job.Keyword, page)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				// Expected hard stop for this keyword, not a failure.
				metrics.ObservePage(job.Keyword, "api_error")
				log.Warn("search api stopped pagination",
					zap.Int("page", page),
					zap.Int("code", apiErr.Code),
					zap.String("message", apiErr.Message),
				)
				return
			}
			if ctx.Err() != nil {
				return
			}
			metrics.ObservePage(job.Keyword, "transport_error")
			s.pageFailed()
			log.Error("page fetch failed", zap.Int("page", page), zap.Error(err))
			if s.cfg.FailurePause > 0 {
				s.sleep(s.cfg.FailurePause)
			}
			continue
		}

		if len(result.Items) == 0 {
			metrics.ObservePage(job.Keyword, "empty")
			log.Info("no more results", zap.Int("page", page))
			return
		}

		metrics.ObservePage(job.Keyword, "ok")
		s.pageFetched()
		s.processPage(ctx, runID, job, page, result, log)
	}
}

func (s *Scheduler) processPage(
	ctx context.Context,
	runID string,
	job CrawlJob,
	page int,
	result SearchPage,
	log *zap.Logger,
) {
	records := make([]VideoRecord, 0, len(result.Items))
	for _, item := range result.Items {
		if item.Bvid == "" {
			log.Warn("skipping item without bvid", zap.String("title", item.Title))
			continue
		}
		records = append(records, s.buildRecord(item, job))
	}
	if len(records) == 0 {
		return
	}

	committed, err := s.store.UpsertBatch(ctx, records)
	if err != nil {
		metrics.ObserveUpsertFailure()
		s.batchFailed()
		log.Error("batch upsert failed", zap.Int("page", page), zap.Error(err))
		return
	}
	s.recordsCommitted(committed)
	for _, record := range records {
		metrics.ObserveIngested(record.Phase, record.Subject, 1)
	}
	log.Info("batch committed", zap.Int("page", page), zap.Int64("records", committed))

	s.archivePage(ctx, runID, job.Keyword, page, result.RawBody, log)
	s.publishCommit(ctx, runID, job, page, committed, log)
}

func (s *Scheduler) buildRecord(item RawItem, job CrawlJob) VideoRecord {
	subject, tier := s.classifier.Classify(item.Title, item.Tags, job.Subject)
	metrics.ObserveClassify(string(tier))

	return VideoRecord{
		Bvid:            item.Bvid,
		Title:           normalize.StripHighlight(item.Title),
		UpName:          item.Author,
		UpMid:           item.Mid,
		UpFace:          item.UpFaceURL,
		PicURL:          normalize.CoverURL(item.CoverURL),
		ViewCount:       item.Play,
		DanmakuCount:    item.DanmakuCount,
		ReplyCount:      item.ReplyCount,
		FavoriteCount:   item.Favorites,
		DurationSeconds: normalize.ParseDuration(item.Duration),
		PublishedAt:     normalize.ParseTimestamp(item.PubDate, s.clock.Now()),
		Tags:            job.Keyword,
		Category:        subject,
		Phase:           job.Phase,
		Subject:         subject,
		DryGoodsRatio:   normalize.DryGoodsRatio(item.Favorites, item.Play),
	}
}

func (s *Scheduler) archivePage(
	ctx context.Context,
	runID string,
	keyword string,
	page int,
	rawBody []byte,
	log *zap.Logger,
) {
	if s.archive == nil || len(rawBody) == 0 {
		return
	}
	path := s.buildArchivePath(runID, keyword, page)
	uri, err := s.archive.PutObject(ctx, path, "application/json", bytes.NewReader(rawBody))
	if err != nil {
		log.Warn("archive write failed", zap.Int("page", page), zap.Error(err))
		return
	}
	log.Debug("page archived", zap.String("uri", uri))
}

func (s *Scheduler) buildArchivePath(runID, keyword string, page int) string {
	safeKeyword := strings.ReplaceAll(keyword, " ", "_")
	prefix := strings.Trim(s.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s/page-%03d.json", runID, safeKeyword, page)
	}
	return fmt.Sprintf("%s/%s/%s/page-%03d.json", prefix, runID, safeKeyword, page)
}

func (s *Scheduler) publishCommit(
	ctx context.Context,
	runID string,
	job CrawlJob,
	page int,
	committed int64,
	log *zap.Logger,
) {
	if s.publisher == nil || s.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"run_id":    runID,
		"keyword":   job.Keyword,
		"phase":     job.Phase,
		"subject":   job.Subject,
		"page":      page,
		"records":   committed,
		"timestamp": s.clock.Now().Format(time.RFC3339),
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, payload); err != nil {
		log.Warn("publish commit event failed", zap.Int("page", page), zap.Error(err))
	}
}

// courtesySleep pauses a random interval inside the configured window. It is
// the sole rate-limiting mechanism toward the upstream API; a zero window
// means no pause at all.
func (s *Scheduler) courtesySleep() {
	window := s.cfg.DelayMax - s.cfg.DelayMin
	if window < 0 {
		window = 0
	}
	d := s.cfg.DelayMin + time.Duration(s.randFloat()*float64(window))
	if d <= 0 {
		return
	}
	metrics.ObserveRateLimitSleep(d)
	s.sleep(d)
}

func (s *Scheduler) setCurrentKeyword(keyword string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.CurrentKeyword = keyword
}

func (s *Scheduler) jobDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.JobsDone++
}

func (s *Scheduler) pageFetched() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.PagesFetched++
}

func (s *Scheduler) pageFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.PagesFailed++
}

func (s *Scheduler) batchFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.BatchesFailed++
}

func (s *Scheduler) recordsCommitted(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress.RecordsCommitted += n
}
