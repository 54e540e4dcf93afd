package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
		want  int64
	}{
		{"minutes and seconds", "05:30", 330},
		{"hours minutes seconds", "1:02:03", 3723},
		{"plain seconds", "90", 90},
		{"zero", "0", 0},
		{"empty", "", 0},
		{"garbage", "not-a-time", 0},
		{"too many parts", "1:2:3:4", 0},
		{"negative component", "-1:30", 0},
		{"non numeric component", "12:xx", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseDuration(tt.value))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Unix(1700000000, 0).UTC(), ParseTimestamp(1700000000, now))
	assert.Equal(t, now, ParseTimestamp(0, now))
	assert.Equal(t, now, ParseTimestamp(-5, now))
}

func TestStripHighlight(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "高数入门", StripHighlight(`<em class="keyword">高数</em>入门`))
	assert.Equal(t, "plain title", StripHighlight("plain title"))
	assert.Equal(t, "线代与矩阵", StripHighlight(`<em class="keyword">线代</em>与<em class="keyword">矩阵</em>`))
}

func TestDryGoodsRatio(t *testing.T) {
	t.Parallel()

	assert.Equal(t, float64(0), DryGoodsRatio(0, 0))
	assert.Equal(t, float64(0), DryGoodsRatio(10, 0))
	assert.InDelta(t, 10.0, DryGoodsRatio(10, 1000), 1e-9)
	assert.InDelta(t, 50.0, DryGoodsRatio(50, 1000), 1e-9)
	// 7/300*1000 = 23.333... -> 23.33
	assert.InDelta(t, 23.33, DryGoodsRatio(7, 300), 1e-9)
}

func TestCoverURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://i0.hdslb.com/cover.jpg", CoverURL("//i0.hdslb.com/cover.jpg"))
	assert.Equal(t, "https://i0.hdslb.com/cover.jpg", CoverURL("https://i0.hdslb.com/cover.jpg"))
	assert.Equal(t, "", CoverURL(""))
}
