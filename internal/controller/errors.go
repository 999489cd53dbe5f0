package controller

import (
	"errors"
	"fmt"
)

// ErrQueueClosed is returned by Redeem after the controller has stopped.
var ErrQueueClosed = errors.New("redemption queue closed")

// RedemptionError is returned by a Redeemer when redemption fails.
//
// A transient failure may succeed if attempted again later; a permanent one
// is definitive for that voucher.
type RedemptionError struct {
	Voucher   string
	Permanent bool
	Err       error
}

// Error implements the error interface.
func (e *RedemptionError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s redemption failure for %s: %v", kind, e.Voucher, e.Err)
}

// Unwrap returns the underlying error.
func (e *RedemptionError) Unwrap() error {
	return e.Err
}

// IsPermanent returns true if err is a permanent RedemptionError.
// Errors of any other kind are treated as transient.
func IsPermanent(err error) bool {
	var re *RedemptionError
	if errors.As(err, &re) {
		return re.Permanent
	}
	return false
}
