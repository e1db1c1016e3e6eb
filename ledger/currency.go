package ledger

import "encoding/hex"

// Currency identifies the unit of payment for an order: the zero value is the
// platform's native currency, any other value is the address of a fungible
// payment token.
type Currency [20]byte

// Native is the platform's native currency.
var Native = Currency{}

const nativeKey = "native"

// Key returns the canonical string used to index balance and pool maps.
func (c Currency) Key() string {
	if c == (Currency{}) {
		return nativeKey
	}
	return "0x" + hex.EncodeToString(c[:])
}

// IsNative reports whether the currency is the platform's native one.
func (c Currency) IsNative() bool { return c == (Currency{}) }
