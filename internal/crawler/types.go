// Package crawler holds the domain types and the ingestion scheduler.
package crawler

import (
	"context"
	"fmt"
	"io"
	"time"
)

// CrawlJob is one (keyword, phase, subject) entry of the crawl plan.
// The plan is loaded once from configuration and never mutated.
type CrawlJob struct {
	Keyword string `mapstructure:"keyword" yaml:"keyword"`
	Phase   string `mapstructure:"phase" yaml:"phase"`
	Subject string `mapstructure:"subject" yaml:"subject"`
}

// RawItem is one upstream search result. It only lives for the duration of
// one page's processing.
type RawItem struct {
	Bvid         string
	Title        string
	Author       string
	Mid          int64
	UpFaceURL    string
	CoverURL     string
	Play         int64
	Favorites    int64
	DanmakuCount int64
	ReplyCount   int64
	Duration     string
	PubDate      int64
	Tags         string
}

// SearchPage is the result of fetching one search page. RawBody carries the
// undecoded response for the optional archive.
type SearchPage struct {
	Items   []RawItem
	RawBody []byte
}

// VideoRecord is the persisted entity, keyed by Bvid. Metric fields hold the
// latest observed snapshot; DryGoodsRatio is recomputed at every ingest.
type VideoRecord struct {
	Bvid            string
	Title           string
	UpName          string
	UpMid           int64
	UpFace          string
	PicURL          string
	ViewCount       int64
	DanmakuCount    int64
	ReplyCount      int64
	FavoriteCount   int64
	DurationSeconds int64
	PublishedAt     time.Time
	Tags            string
	Category        string
	Phase           string
	Subject         string
	DryGoodsRatio   float64
}

// APIError reports a non-zero application status code from the upstream
// search API. It is an expected end-of-pagination signal, not a transient
// failure, and is never retried.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("search api returned code %d: %s", e.Code, e.Message)
}

// Fetcher retrieves one search page for a keyword.
type Fetcher interface {
	Fetch(ctx context.Context, keyword string, page int) (SearchPage, error)
}

// VideoStore persists a batch of records atomically, keyed by bvid.
type VideoStore interface {
	UpsertBatch(ctx context.Context, records []VideoRecord) (int64, error)
}

// BlobStore archives raw artifacts and returns a URI for the stored object.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher emits batch-commit notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}
