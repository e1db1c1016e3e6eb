package market

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/emojidao/double-market-1155/ledger"
)

var zeroAddr [20]byte

// Lending is a standing offer to rent out a quantity of a semi-fungible
// balance. Its identity is derived deterministically from the asset and the
// lender, so re-listing the same balance updates the existing slot instead of
// growing the order book.
type Lending struct {
	ID         [32]byte
	Collection [20]byte
	TokenID    uint64
	Amount     uint64
	Lender     [20]byte
	Frozen     uint64
	// Renter designates the only address allowed to fulfill a private
	// lending; the zero address marks a public one.
	Renter        [20]byte
	Expiry        int64
	Currency      ledger.Currency
	PricePerCycle *big.Int
}

// Clone returns a deep copy of the lending so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Lending) Clone() *Lending {
	if l == nil {
		return nil
	}
	clone := *l
	if l.PricePerCycle != nil {
		clone.PricePerCycle = new(big.Int).Set(l.PricePerCycle)
	} else {
		clone.PricePerCycle = big.NewInt(0)
	}
	return &clone
}

// ValidAt reports whether the lending can still be fulfilled at the supplied
// time. A cancelled lending carries a zeroed expiry, so the sentinel fails
// this check permanently.
func (l *Lending) ValidAt(now int64) bool {
	return l != nil && l.Lender != zeroAddr && l.Expiry > now
}

// Remaining returns the quantity not currently out on rent.
func (l *Lending) Remaining() uint64 {
	if l == nil || l.Frozen > l.Amount {
		return 0
	}
	return l.Amount - l.Frozen
}

// LendingID derives the deterministic identity of a fractional lending from
// the asset reference and the lender address.
func LendingID(collection [20]byte, tokenID uint64, lender [20]byte) [32]byte {
	var idBytes [8]byte
	binary.BigEndian.PutUint64(idBytes[:], tokenID)
	return ethcrypto.Keccak256Hash(collection[:], idBytes[:], lender[:])
}

// Renting links a fulfillment back to its lending and the rights record it
// created.
type Renting struct {
	ID        uint64
	LendingID [32]byte
	RecordID  uint64
}

// Clone returns a copy of the renting.
func (r *Renting) Clone() *Renting {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// OrderType discriminates public orders from private ones.
type OrderType uint8

const (
	OrderTypePublic OrderType = iota
	OrderTypePrivate
)

// LendOrder is a whole-asset standing offer keyed by (collection, token id).
// The nonce increments on every re-list and cancellation so a stale reference
// can never be replayed.
type LendOrder struct {
	Collection    [20]byte
	TokenID       uint64
	Lender        [20]byte
	MaxEndTime    int64
	MinDuration   int64
	PricePerCycle *big.Int
	Currency      ledger.Currency
	OrderType     OrderType
	PrivateRenter [20]byte
	Nonce         uint64
	Fulfilled     bool
	Cancelled     bool
}

// Clone returns a deep copy of the order.
func (o *LendOrder) Clone() *LendOrder {
	if o == nil {
		return nil
	}
	clone := *o
	if o.PricePerCycle != nil {
		clone.PricePerCycle = new(big.Int).Set(o.PricePerCycle)
	} else {
		clone.PricePerCycle = big.NewInt(0)
	}
	return &clone
}

// ValidAt reports whether the order can be fulfilled at the supplied time.
func (o *LendOrder) ValidAt(now int64) bool {
	return o != nil && o.Lender != zeroAddr && !o.Cancelled && !o.Fulfilled && o.MaxEndTime > now
}

// Rental is the whole-asset counterpart of a rights record: evidence that one
// token's usage rights belong to a renter until expiry, with the underlying
// asset custodied by the market.
type Rental struct {
	ID         uint64
	Collection [20]byte
	TokenID    uint64
	Lender     [20]byte
	Renter     [20]byte
	Expiry     int64
}

// Clone returns a copy of the rental.
func (r *Rental) Clone() *Rental {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// AssetCustody is the transfer surface of the semi-fungible asset standard the
// market settles against. Implementations must be atomic and fail loudly; the
// engine surfaces any failure as ErrTransferFailed.
type AssetCustody interface {
	Transfer(collection [20]byte, from, to [20]byte, tokenID uint64, qty uint64) error
	BalanceOf(collection [20]byte, holder [20]byte, tokenID uint64) (uint64, error)
	IsApprovedOrOwner(collection [20]byte, caller [20]byte, tokenID uint64) (bool, error)
}
