package api

import "fmt"

// RateLimitExceededError is returned when a request stays rate limited
// after the configured number of backoffs.
type RateLimitExceededError struct {
	Entity   string
	Attempts int
	Cause    error
}

func (e *RateLimitExceededError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("rate limit exceeded after %d attempts: %v", e.Attempts, e.Cause)
	}
	return fmt.Sprintf("%s: rate limit exceeded after %d attempts: %v", e.Entity, e.Attempts, e.Cause)
}

func (e *RateLimitExceededError) Unwrap() error { return e.Cause }

// FetchFailedError is a page that could not be fetched after retries.
type FetchFailedError struct {
	Entity string
	Cursor string
	Cause  error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch %s at cursor %q: %v", e.Entity, e.Cursor, e.Cause)
}

func (e *FetchFailedError) Unwrap() error { return e.Cause }

// DecodeFailedError is a page whose body could not be decoded. Next and
// Done describe where pagination continues so the page can be skipped.
type DecodeFailedError struct {
	Entity string
	Cursor string
	Raw    []byte
	Cause  error
	Next   string
	Done   bool
}

func (e *DecodeFailedError) Error() string {
	return fmt.Sprintf("decode %s at cursor %q: %v", e.Entity, e.Cursor, e.Cause)
}

func (e *DecodeFailedError) Unwrap() error { return e.Cause }
