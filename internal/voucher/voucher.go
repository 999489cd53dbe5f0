package voucher

// Length is the number of characters in the text form of a voucher: 32
// random bytes encoded as padded URL-safe base64.
const Length = 44

// Voucher is the ledger record for a single voucher.
//
// Number never changes once the record exists. Redeemed is set by the
// payment controller after the voucher has been exchanged for passes.
type Voucher struct {
	Number   string
	Redeemed bool
}

// New returns an unredeemed Voucher for number.
func New(number string) Voucher {
	return Voucher{Number: number}
}

// RandomToken is a secret value generated for a voucher and submitted during
// redemption. The same tokens are reused across redemption attempts so a
// retried redemption never yields more passes than the first one could.
type RandomToken struct {
	Text string
}

// Pass is a single anonymous access pass obtained by redeeming a voucher.
// Pass text is secret and may be spent once.
type Pass struct {
	Text string
}
