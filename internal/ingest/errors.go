package ingest

import (
	"errors"
	"fmt"
)

// ErrNoStartDate means a ticker's collection exists but holds no dated document, so the
// next fetch has no lower bound. The ticker is skipped rather than backfilled.
var ErrNoStartDate = errors.New("no resolvable start date")

// FetchError tags a provider failure with the ticker being synced.
type FetchError struct {
	Ticker string
	Err    error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.Ticker, e.Err) }

func (e *FetchError) Unwrap() error { return e.Err }
