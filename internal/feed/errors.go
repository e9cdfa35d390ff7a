package feed

import (
	"fmt"
	"time"
)

// TimeoutError is returned when the origin does not answer within the fetch timeout.
type TimeoutError struct {
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fetch %s: timed out after %s", e.URL, e.Timeout)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

// EmptyBodyError is returned when the origin answers with no content.
type EmptyBodyError struct {
	URL string
}

func (e *EmptyBodyError) Error() string {
	return fmt.Sprintf("fetch %s: empty body", e.URL)
}

// NotXMLError is returned when the body is an HTML page or otherwise not a feed.
type NotXMLError struct {
	URL     string
	Snippet string
}

func (e *NotXMLError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("not a feed document: %q", e.Snippet)
	}
	return fmt.Sprintf("fetch %s: not a feed document: %q", e.URL, e.Snippet)
}
