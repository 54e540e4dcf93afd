// Package normalize converts raw upstream fields into canonical domain
// values. Every function is total: bad input yields a safe default, never an
// error, so one malformed field can never abort a batch.
package normalize

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	highlightOpen  = `<em class="keyword">`
	highlightClose = `</em>`
)

// ParseDuration interprets the upstream duration field. It accepts plain
// seconds ("90"), MM:SS ("05:30") and H:MM:SS ("1:02:03"); any other shape
// parses to 0.
func ParseDuration(value string) int64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return 0
		}
		return secs
	}
	parts := strings.Split(value, ":")
	switch len(parts) {
	case 2:
		m, errM := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		s, errS := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if errM != nil || errS != nil || m < 0 || s < 0 {
			return 0
		}
		return m*60 + s
	case 3:
		h, errH := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		m, errM := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		s, errS := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		if errH != nil || errM != nil || errS != nil || h < 0 || m < 0 || s < 0 {
			return 0
		}
		return h*3600 + m*60 + s
	default:
		return 0
	}
}

// ParseTimestamp converts an epoch in seconds to a time. A missing or
// non-positive epoch defaults to now.
func ParseTimestamp(epoch int64, now time.Time) time.Time {
	if epoch <= 0 {
		return now
	}
	return time.Unix(epoch, 0).UTC()
}

// StripHighlight removes the search-highlight wrapper the upstream injects
// around matched keywords, leaving plain text.
func StripHighlight(title string) string {
	title = strings.ReplaceAll(title, highlightOpen, "")
	return strings.ReplaceAll(title, highlightClose, "")
}

// DryGoodsRatio computes favorites/views*1000 rounded to two decimals. A
// zero view count short-circuits to 0 rather than dividing.
func DryGoodsRatio(favorites, views int64) float64 {
	if views <= 0 {
		return 0
	}
	ratio := float64(favorites) / float64(views) * 1000
	return math.Round(ratio*100) / 100
}

// CoverURL makes protocol-relative cover links absolute. Bilibili returns
// cover URLs starting with "//" for some results.
func CoverURL(raw string) string {
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return raw
}
