package scraper

import (
	"math"
	"time"
)

// Body values the source substitutes for removed or deleted content.
const (
	RemovedBody = "[removed]"
	DeletedBody = "[deleted]"
)

// IsRemovedBody reports whether body carries no author text.
func IsRemovedBody(body string) bool {
	return body == "" || body == RemovedBody || body == DeletedBody
}

// FullText joins title and body for downstream text analysis.
func FullText(title, body string) string {
	if IsRemovedBody(body) {
		return title
	}
	return title + "\n\n" + body
}

// Normalize maps a source item to the stored post for subreddit.
// CreatedAt is left zero; the store assigns it on first insert.
func Normalize(item Item, subreddit string) Post {
	body := item.Body
	if IsRemovedBody(body) {
		body = ""
	}
	return Post{
		ID:          item.ID,
		Title:       item.Title,
		Body:        body,
		URL:         item.URL,
		Author:      item.Author,
		Score:       item.Score,
		PublishedAt: unixUTC(item.CreatedUTC),
		NumComments: item.NumComments,
		Permalink:   item.Permalink,
		Flair:       item.Flair,
		Subreddit:   subreddit,
		FullText:    FullText(item.Title, item.Body),
	}
}

func unixUTC(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
}
