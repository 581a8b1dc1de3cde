package publish

import "errors"

// ErrReceiptTimeout is returned when no delivery receipt arrives before the
// configured timeout.
var ErrReceiptTimeout = errors.New("timeout waiting for delivery receipt")
