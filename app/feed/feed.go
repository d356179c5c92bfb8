// Package feed defines the canonical item model all protocol handlers
// normalize into, and the normalizer enforcing its invariants.
package feed

import (
	"time"
)

// TimeFormat is the canonical PubDate representation, UTC with milliseconds.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// Source identifies a fetchable origin. URL doubles as the cache key and
// must not change once the source has been fetched.
type Source struct {
	ID           string `yaml:"id" json:"id"`
	URL          string `yaml:"url" json:"url"`
	Name         string `yaml:"name" json:"name"`
	ProtocolHint string `yaml:"protocol,omitempty" json:"protocol,omitempty"`
}

// Item is the canonical feed item. After normalization Title and Link are
// never empty and PubDate always parses with TimeFormat.
type Item struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	Description string   `json:"description"`
	PubDate     string   `json:"pubDate"`
	Content     string   `json:"content"`
	Author      string   `json:"author,omitempty"`
	Categories  []string `json:"categories"`
	Media       []string `json:"media,omitempty"`
}

// ParseTime attempts the date layouts seen across real sources, most
// specific first.
func ParseTime(val string) (time.Time, bool) {
	if val == "" {
		return time.Time{}, false
	}
	layouts := []string{
		TimeFormat,
		time.RFC3339Nano,
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, l := range layouts {
		if ts, err := time.Parse(l, val); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
