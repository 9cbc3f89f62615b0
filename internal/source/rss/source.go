// Package rss reads hot listings from the public subreddit feeds. It needs no
// credentials but carries no score, comment count or sticky flag.
package rss

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/JakeFAU/reddit-newsbot/internal/metrics"
	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
)

// DefaultBaseURL serves the public feeds.
const DefaultBaseURL = "https://www.reddit.com"

// Source implements scraper.Source over Atom feeds.
type Source struct {
	baseURL string
	fetcher scraper.Fetcher
}

// New builds a feed source.
func New(baseURL string, fetcher scraper.Fetcher) (*Source, error) {
	if fetcher == nil {
		return nil, errors.New("rss: fetcher is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Source{baseURL: strings.TrimRight(baseURL, "/"), fetcher: fetcher}, nil
}

// Authenticate is a no-op; feeds are public.
func (s *Source) Authenticate(context.Context) error {
	return nil
}

// Hot returns up to limit entries of the subreddit's hot feed.
func (s *Source) Hot(ctx context.Context, subreddit string, limit int) (scraper.Listing, error) {
	if limit <= 0 {
		return scraper.Listing{}, fmt.Errorf("limit must be > 0, got %d", limit)
	}
	endpoint := fmt.Sprintf("%s/r/%s/hot/.rss?limit=%s", s.baseURL, url.PathEscape(subreddit), strconv.Itoa(limit))

	resp, err := s.fetcher.Fetch(ctx, scraper.FetchRequest{
		URL:     endpoint,
		Headers: http.Header{"Accept": {"application/atom+xml, application/rss+xml"}},
	})
	if err != nil {
		metrics.ObserveSourceRequest("rss", 0, resp.Duration)
		return scraper.Listing{}, fmt.Errorf("rss request: %w", err)
	}
	metrics.ObserveSourceRequest("rss", resp.StatusCode, resp.Duration)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return scraper.Listing{}, fmt.Errorf("rss request: unexpected status %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return scraper.Listing{}, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]scraper.Item, 0, len(feed.Items))
	for _, entry := range feed.Items {
		if len(items) == limit {
			break
		}
		item, ok := toItem(entry)
		if !ok {
			continue
		}
		items = append(items, item)
	}
	return scraper.Listing{Items: items, Raw: resp.Body, ContentType: "application/atom+xml"}, nil
}

func toItem(entry *gofeed.Item) (scraper.Item, bool) {
	id := strings.TrimPrefix(entry.GUID, "t3_")
	if id == "" {
		return scraper.Item{}, false
	}

	var published time.Time
	switch {
	case entry.PublishedParsed != nil:
		published = *entry.PublishedParsed
	case entry.UpdatedParsed != nil:
		published = *entry.UpdatedParsed
	}

	author := ""
	if entry.Author != nil {
		author = strings.TrimPrefix(entry.Author.Name, "/u/")
	}

	created := 0.0
	if !published.IsZero() {
		created = float64(published.Unix())
	}

	body, link := parseContent(entry.Content)
	if link == "" {
		link = entry.Link
	}

	return scraper.Item{
		ID:         id,
		Title:      entry.Title,
		Body:       body,
		URL:        link,
		Author:     author,
		CreatedUTC: created,
		Permalink:  permalinkOf(entry.Link),
	}, true
}

// parseContent extracts the self-text and the "[link]" target from the entry HTML.
func parseContent(html string) (body, link string) {
	if strings.TrimSpace(html) == "" {
		return "", ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", ""
	}
	var paragraphs []string
	doc.Find("div.md").Find("p, li, pre").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	doc.Find("a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.TrimSpace(sel.Text()) == "[link]" {
			link, _ = sel.Attr("href")
			return false
		}
		return true
	})
	return strings.Join(paragraphs, "\n\n"), link
}

func permalinkOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return ""
	}
	return u.Path
}
