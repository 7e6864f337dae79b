// Package prober downloads HLS media segments and records the result of
// each attempt as a categorized outcome.
package prober

import "time"

// Failure categories. Only transient categories are retried.
const (
	CategoryTimeout           = "timeout"
	CategoryConnectionRefused = "connection_refused"
	CategoryHTTP4xx           = "http_4xx"
	CategoryHTTP5xx           = "http_5xx"
	CategoryIncompleteBody    = "incomplete_body"
	CategoryResolution        = "resolution"
)

// Outcome is the result of probing a single segment. Failures are data,
// not errors: a failed download still produces an Outcome.
type Outcome struct {
	Segment  uint64
	URL      string
	OK       bool
	Bytes    int64
	Duration time.Duration // successful download time; zero on failure
	When     time.Time
	Category string // failure category, empty on success
	Err      error  // underlying error, nil on success
}

// ResolutionFailure builds the synthetic outcome recorded when a channel's
// playlist cannot be resolved at all.
func ResolutionFailure(url string, err error) Outcome {
	return Outcome{
		URL:      url,
		When:     time.Now(),
		Category: CategoryResolution,
		Err:      err,
	}
}

// transient reports whether a failure category is worth retrying.
func transient(category string) bool {
	return category == CategoryTimeout || category == CategoryConnectionRefused
}
