package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bilimath/crawler/internal/crawler"
)

func sampleRecord() crawler.VideoRecord {
	return crawler.VideoRecord{
		Bvid:            "BV1xx411c7mD",
		Title:           "高数入门",
		UpName:          "宋浩",
		UpMid:           66607740,
		UpFace:          "https://i1.hdslb.com/face.jpg",
		PicURL:          "https://i0.hdslb.com/cover.jpg",
		ViewCount:       1000,
		DanmakuCount:    7,
		ReplyCount:      3,
		FavoriteCount:   50,
		DurationSeconds: 750,
		PublishedAt:     time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		Tags:            "高等数学 同济版",
		Category:        "高等数学",
		Phase:           "校内同步",
		Subject:         "高等数学",
		DryGoodsRatio:   50.0,
	}
}

func recordArgs(r crawler.VideoRecord) []any {
	return []any{
		r.Bvid, r.Title, r.UpName, r.UpMid, r.UpFace, r.PicURL,
		r.ViewCount, r.DanmakuCount, r.ReplyCount, r.FavoriteCount,
		r.DurationSeconds, r.PublishedAt, r.Tags,
		r.Category, r.Phase, r.Subject, r.DryGoodsRatio,
	}
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "videos")
	assert.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "videos; DROP TABLE videos")
	assert.Error(t, err)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	assert.Equal(t, "videos", store.table)
}

func TestUpsertBatchCommitsAllRecords(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "videos")
	require.NoError(t, err)

	first := sampleRecord()
	second := sampleRecord()
	second.Bvid = "BV1yy411c7mE"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO videos").
		WithArgs(recordArgs(first)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO videos").
		WithArgs(recordArgs(second)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	committed, err := store.UpsertBatch(context.Background(), []crawler.VideoRecord{first, second})
	require.NoError(t, err)
	assert.Equal(t, int64(2), committed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchIsIdempotent(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "videos")
	require.NoError(t, err)

	record := sampleRecord()

	// Submitting the same batch twice: the second round hits the conflict
	// path and overwrites the same values, one row affected each time.
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO videos").
			WithArgs(recordArgs(record)...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		committed, err := store.UpsertBatch(context.Background(), []crawler.VideoRecord{record})
		require.NoError(t, err)
		assert.Equal(t, int64(1), committed)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "videos")
	require.NoError(t, err)

	first := sampleRecord()
	second := sampleRecord()
	second.Bvid = "BV1yy411c7mE"

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO videos").
		WithArgs(recordArgs(first)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO videos").
		WithArgs(recordArgs(second)...).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	committed, err := store.UpsertBatch(context.Background(), []crawler.VideoRecord{first, second})
	require.Error(t, err)
	assert.Zero(t, committed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchEmptyBatch(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "videos")
	require.NoError(t, err)

	committed, err := store.UpsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, committed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchRejectsMissingBvid(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "videos")
	require.NoError(t, err)

	record := sampleRecord()
	record.Bvid = ""

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = store.UpsertBatch(context.Background(), []crawler.VideoRecord{record})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "videos")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS videos").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
