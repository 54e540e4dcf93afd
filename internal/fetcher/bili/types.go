package bili

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bilimath/crawler/internal/crawler"
)

// searchResponse is the upstream envelope. Code 0 means success; anything
// else is an application-level stop signal for the current keyword.
type searchResponse struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    searchData `json:"data"`
}

type searchData struct {
	Result []searchItem `json:"result"`
}

type searchItem struct {
	Bvid        string       `json:"bvid"`
	Title       string       `json:"title"`
	Author      string       `json:"author"`
	Mid         flexInt      `json:"mid"`
	Upic        string       `json:"upic"`
	Pic         string       `json:"pic"`
	Play        flexInt      `json:"play"`
	Favorites   flexInt      `json:"favorites"`
	VideoReview flexInt      `json:"video_review"`
	Review      flexInt      `json:"review"`
	Duration    flexDuration `json:"duration"`
	PubDate     int64        `json:"pubdate"`
	Tags        string       `json:"tags"`
}

// flexDuration keeps the upstream duration verbatim whether it arrives as a
// JSON string ("12:30") or a bare number of seconds.
type flexDuration string

func (d *flexDuration) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*d = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode duration: %w", err)
		}
		*d = flexDuration(s)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	*d = flexDuration(strconv.FormatInt(n, 10))
	return nil
}

// flexInt tolerates numeric fields that occasionally arrive quoted. Anything
// unparseable decodes to 0 rather than failing the whole page.
type flexInt int64

func (n *flexInt) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*n = 0
		return nil
	}
	trimmed = strings.Trim(trimmed, `"`)
	v, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = flexInt(v)
	return nil
}

func decodeSearchPage(body []byte) (crawler.SearchPage, error) {
	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return crawler.SearchPage{}, fmt.Errorf("decode search response: %w", err)
	}
	if decoded.Code != 0 {
		return crawler.SearchPage{}, &crawler.APIError{Code: decoded.Code, Message: decoded.Message}
	}

	items := make([]crawler.RawItem, 0, len(decoded.Data.Result))
	for _, item := range decoded.Data.Result {
		items = append(items, crawler.RawItem{
			Bvid:         item.Bvid,
			Title:        item.Title,
			Author:       item.Author,
			Mid:          int64(item.Mid),
			UpFaceURL:    item.Upic,
			CoverURL:     item.Pic,
			Play:         int64(item.Play),
			Favorites:    int64(item.Favorites),
			DanmakuCount: int64(item.VideoReview),
			ReplyCount:   int64(item.Review),
			Duration:     string(item.Duration),
			PubDate:      item.PubDate,
			Tags:         item.Tags,
		})
	}
	return crawler.SearchPage{Items: items, RawBody: body}, nil
}
