package market

import "errors"

var (
	errNilState = errors.New("market: state not configured")

	ErrInvalidAmount         = errors.New("market: amount must be positive")
	ErrNotOwner              = errors.New("market: caller does not own the asset")
	ErrNotLender             = errors.New("market: caller is not the lender")
	ErrNotBeneficiary        = errors.New("market: caller is not the beneficiary")
	ErrInvalidExpiry         = errors.New("market: invalid expiry")
	ErrPriceOutOfRange       = errors.New("market: price out of range")
	ErrInvalidOrder          = errors.New("market: invalid order")
	ErrInvalidRenter         = errors.New("market: invalid renter")
	ErrStalePrice            = errors.New("market: price changed since quote")
	ErrInvalidDuration       = errors.New("market: duration must be a positive multiple of the billing cycle")
	ErrInsufficientRemaining = errors.New("market: insufficient remaining amount")
	ErrPaymentMismatch       = errors.New("market: payment mismatch")
	ErrTransferFailed        = errors.New("market: asset transfer failed")
	ErrNonexistentRenting    = errors.New("market: nonexistent renting")
	ErrFeeTooHigh            = errors.New("market: invalid fee")
)
