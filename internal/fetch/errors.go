package fetch

import (
	"errors"
	"fmt"
)

// ErrFetchInProgress rejects a second concurrent fetch for the same user.
// It is a rejection, not a failure: callers surface it to the user without
// logging it as an error.
var ErrFetchInProgress = errors.New("a download for this user is already in progress")

// ExtractionError means the extraction engine could not produce a file for
// the requested URL and kind.
type ExtractionError struct {
	URL string // Source URL that failed to extract
	Err error  // Underlying engine or filesystem error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// DeliveryError means the chat transport rejected a typed attachment. It is
// recovered locally by retrying as a generic document and is never surfaced
// to the user.
type DeliveryError struct {
	Attachment string // Attachment type that was rejected (e.g. "video")
	Err        error  // Underlying transport error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("transport rejected %s attachment: %s", e.Attachment, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
