// Package voucher defines the client-side model of a voucher and the values
// that flow through its redemption.
//
// A voucher is a 32-byte random value rendered as 44 URL-safe base64
// characters. The ledger keeps one Voucher record per distinct number; the
// record may carry redemption state attached by the payment controller.
//
// # Serialization
//
// Voucher views are serialized as canonical JSON: object keys sorted, no HTML
// escaping, strings NFC normalized. Every view carries a "version" field so a
// reader can dispatch on the layout that produced it. Canonical output means a
// view that is parsed and re-serialized reproduces the original bytes exactly.
package voucher
