package scraper

import (
	"net/http"
	"time"
)

// Item is one post as returned by a listing source, before normalization.
type Item struct {
	ID          string
	Title       string
	Body        string
	URL         string
	Author      string
	Score       int
	CreatedUTC  float64
	NumComments int
	Permalink   string
	Flair       string
	Stickied    bool
}

// Listing is a single bounded page of items plus the undecoded payload.
type Listing struct {
	Items []Item
	Raw   []byte
	// ContentType describes Raw for archiving.
	ContentType string
}

// Post is the stored representation of a harvested record.
type Post struct {
	ID          string    `json:"post_id"`
	Title       string    `json:"title"`
	Body        string    `json:"selftext"`
	URL         string    `json:"url"`
	Author      string    `json:"author"`
	Score       int       `json:"score"`
	PublishedAt time.Time `json:"publish_date"`
	NumComments int       `json:"num_of_comments"`
	Permalink   string    `json:"permalink"`
	Flair       string    `json:"flair"`
	Subreddit   string    `json:"subreddit"`
	CreatedAt   time.Time `json:"created_at"`
	FullText    string    `json:"full_text"`
}

// AllSubreddits is the filter value meaning "no channel filter".
const AllSubreddits = "All"

// PostQuery is the single parameterized read: optional filter, newest first, bounded.
type PostQuery struct {
	Subreddit string
	Limit     int
}

// Filtered reports whether the query restricts results to one channel.
func (q PostQuery) Filtered() bool {
	return q.Subreddit != "" && q.Subreddit != AllSubreddits
}

// ChannelResult counts what happened to one channel's page.
type ChannelResult struct {
	Subreddit  string `json:"subreddit"`
	Seen       int    `json:"seen"`
	Skipped    int    `json:"skipped"`
	Saved      int    `json:"saved"`
	Failed     int    `json:"failed"`
	ArchiveURI string `json:"archive_uri,omitempty"`
}

// Attempted is the number of records the store was asked to upsert.
func (r ChannelResult) Attempted() int {
	return r.Seen - r.Skipped
}

// ChannelSummary is published once a channel task finishes.
type ChannelSummary struct {
	RunID       string        `json:"run_id"`
	Result      ChannelResult `json:"result"`
	CompletedAt time.Time     `json:"completed_at"`
}

// FetchRequest captures everything needed to GET a source URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse captures the outcome of a fetch. Non-2xx responses are not errors.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// TaskStatus is the terminal state of one scheduled task.
type TaskStatus string

// Task states, named after the scheduler states they replace.
const (
	TaskSuccess        TaskStatus = "success"
	TaskFailed         TaskStatus = "failed"
	TaskUpstreamFailed TaskStatus = "upstream_failed"
)

// BootstrapTask is the id of the table bootstrap task that gates every run.
const BootstrapTask = "bootstrap"

// TaskName returns the task id of a channel scrape.
func TaskName(subreddit string) string {
	return "scrape_" + subreddit
}

// QueueItem wraps a channel task ready to run.
type QueueItem struct {
	RunID     string
	Task      string
	Subreddit string
	Limit     int
	Submitted int64
	// Done receives exactly one TaskResult when the task finishes, if set.
	Done chan<- TaskResult
}

// TaskResult reports the outcome of a task after all of its attempts.
type TaskResult struct {
	RunID    string
	Task     string
	Status   TaskStatus
	Attempts int
	Result   ChannelResult
	Err      error
}
