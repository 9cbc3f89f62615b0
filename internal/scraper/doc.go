// Package scraper defines the post model shared across subsystems and the
// per-channel scrape task: fetch one bounded page of hot posts, normalize each
// record, and upsert it into the post store.
package scraper
