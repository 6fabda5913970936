package wallet

import "errors"

var (
	ErrWalletNotFound             = errors.New("wallet not found")
	ErrInsufficientTokens         = errors.New("insufficient tokens")
	ErrBookingTransactionNotFound = errors.New("booking transaction not found")
	ErrInvalidRefundAmount        = errors.New("invalid refund amount")
	ErrInvalidAmount              = errors.New("invalid token amount")
	ErrInvalidRole                = errors.New("invalid wallet role")

	// ErrDuplicateWallet is returned by stores when an insert collides
	// with the wallet_key uniqueness constraint.
	ErrDuplicateWallet = errors.New("duplicate wallet")

	// ErrDuplicateSession is returned by stores when a purchase entry
	// collides with the stripe_session_id uniqueness constraint,
	// meaning another process already recorded the same payment.
	ErrDuplicateSession = errors.New("duplicate payment session")
)
