package feed

import (
	"crypto/sha1" //nolint:gosec // not used for security
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// NoTitle is the sentinel for items whose source payload had no title.
const NoTitle = "No title"

// Normalizer stamps ids and enforces the canonical item invariants.
// The clock is injectable for tests; zero value uses time.Now.
type Normalizer struct {
	Now func() time.Time
}

// Normalize returns canonical items for the given source. Required fields
// are filled with sentinels, PubDate is reduced to TimeFormat, and a
// cache-stable ID is stamped from the source URL and item title (index
// fallback). Idempotent: canonical input comes back unchanged.
func (n Normalizer) Normalize(items []Item, src Source) []Item {
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}

	res := make([]Item, 0, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.Title) == "" {
			item.Title = NoTitle
		}
		if strings.TrimSpace(item.Link) == "" {
			item.Link = src.URL
		}
		if ts, ok := ParseTime(item.PubDate); ok {
			item.PubDate = ts.UTC().Format(TimeFormat)
		} else {
			item.PubDate = now().UTC().Format(TimeFormat)
		}
		if item.Categories == nil {
			item.Categories = []string{}
		}
		if item.ID == "" {
			item.ID = makeID(src.URL, item.Title, i)
		}
		res = append(res, item)
	}
	return res
}

func makeID(url, title string, idx int) string {
	h := sha1.Sum([]byte(url + "::" + title)) //nolint:gosec
	if title == NoTitle {
		return fmt.Sprintf("%s-%d", hex.EncodeToString(h[:8]), idx)
	}
	return hex.EncodeToString(h[:8])
}
