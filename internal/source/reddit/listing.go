package reddit

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/reddit-newsbot/internal/scraper"
)

type listingEnvelope struct {
	Kind string `json:"kind"`
	Data struct {
		Children []struct {
			Kind string   `json:"kind"`
			Data postData `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type postData struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Selftext      string  `json:"selftext"`
	URL           string  `json:"url"`
	Author        string  `json:"author"`
	Score         int     `json:"score"`
	CreatedUTC    float64 `json:"created_utc"`
	NumComments   int     `json:"num_comments"`
	Permalink     string  `json:"permalink"`
	LinkFlairText *string `json:"link_flair_text"`
	Stickied      bool    `json:"stickied"`
}

// decodeListing keeps link ("t3") children only.
func decodeListing(body []byte) ([]scraper.Item, error) {
	var env listingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	if env.Kind != "Listing" {
		return nil, fmt.Errorf("decode listing: unexpected kind %q", env.Kind)
	}
	items := make([]scraper.Item, 0, len(env.Data.Children))
	for _, child := range env.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		d := child.Data
		flair := ""
		if d.LinkFlairText != nil {
			flair = *d.LinkFlairText
		}
		items = append(items, scraper.Item{
			ID:          d.ID,
			Title:       d.Title,
			Body:        d.Selftext,
			URL:         d.URL,
			Author:      d.Author,
			Score:       d.Score,
			CreatedUTC:  d.CreatedUTC,
			NumComments: d.NumComments,
			Permalink:   d.Permalink,
			Flair:       flair,
			Stickied:    d.Stickied,
		})
	}
	return items, nil
}
