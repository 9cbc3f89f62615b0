package viewer

import (
	"fmt"
	"strings"
	"time"
)

// Display constants.
const (
	MaxBodyRunes = 750
	DateLayout   = "2006-01-02 15:04:05"
	discussBase  = "https://reddit.com"
)

// Truncate cuts text to n runes and appends "..." when anything was cut.
func Truncate(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

// DiscussURL links a stored permalink back to the forum thread.
func DiscussURL(permalink string) string {
	if permalink == "" {
		return ""
	}
	if strings.HasPrefix(permalink, "http://") || strings.HasPrefix(permalink, "https://") {
		return permalink
	}
	if !strings.HasPrefix(permalink, "/") {
		permalink = "/" + permalink
	}
	return discussBase + permalink
}

// FormatDate renders a publish time in UTC.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(DateLayout)
}

// FormatExplanation renders a keyword explanation block.
func FormatExplanation(keyword, explanation string) string {
	return fmt.Sprintf("%s:\n\n%s", keyword, explanation)
}
