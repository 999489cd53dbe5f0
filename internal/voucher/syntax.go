package voucher

import "encoding/base64"

// IsSyntactic reports whether candidate is a string that can be interpreted
// as a voucher: exactly Length characters that decode as URL-safe base64.
//
// It says nothing about whether the voucher exists, was paid for, or has
// already been redeemed. Non-string values, including []byte, are rejected.
func IsSyntactic(candidate any) bool {
	s, ok := candidate.(string)
	if !ok {
		return false
	}
	if len(s) != Length {
		return false
	}
	if _, err := base64.URLEncoding.DecodeString(s); err != nil {
		return false
	}
	return true
}
