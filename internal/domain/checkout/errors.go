package checkout

import "errors"

var (
	ErrMissingSessionID    = errors.New("session id is required")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrIncompleteMetadata  = errors.New("incomplete session metadata")
)
