package events

import (
	"math/big"

	"github.com/emojidao/double-market-1155/core/types"
)

const (
	TypeLendingCreated   = "market.lending_created"
	TypeLendingCancelled = "market.lending_cancelled"
	TypeRentingStarted   = "market.renting_started"
	TypeRentingCleared   = "market.renting_cleared"
	TypeOrderListed      = "market.order_listed"
	TypeOrderCancelled   = "market.order_cancelled"
	TypeOrderFulfilled   = "market.order_fulfilled"
	TypeRentalCleared    = "market.rental_cleared"
	TypeMarketFeeClaimed = "market.fee_claimed"
	TypeRoyaltyClaimed   = "market.royalty_claimed"
)

// LendingCreated is emitted when a fractional lending is listed or re-listed.
type LendingCreated struct {
	LendingID  [32]byte
	Collection [20]byte
	TokenID    uint64
	Lender     [20]byte
	Amount     uint64
	Expiry     int64
	Price      *big.Int
	Currency   string
}

func (LendingCreated) EventType() string { return TypeLendingCreated }

func (e LendingCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingCreated,
		Attributes: map[string]string{
			"lendingId":  idToString(e.LendingID),
			"collection": addrToString(e.Collection),
			"tokenId":    uintToString(e.TokenID),
			"lender":     addrToString(e.Lender),
			"amount":     uintToString(e.Amount),
			"expiry":     intToString(e.Expiry),
			"price":      formatAmount(e.Price),
			"currency":   e.Currency,
		},
	}
}

// LendingCancelled is emitted when a lender strikes a fractional lending.
type LendingCancelled struct {
	LendingID [32]byte
	Lender    [20]byte
}

func (LendingCancelled) EventType() string { return TypeLendingCancelled }

func (e LendingCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeLendingCancelled,
		Attributes: map[string]string{
			"lendingId": idToString(e.LendingID),
			"lender":    addrToString(e.Lender),
		},
	}
}

// RentingStarted is emitted when a fractional rental settles.
type RentingStarted struct {
	RentingID uint64
	LendingID [32]byte
	RecordID  uint64
	Renter    [20]byte
	Amount    uint64
	Expiry    int64
	Total     *big.Int
	Fee       *big.Int
	Royalty   *big.Int
	Currency  string
}

func (RentingStarted) EventType() string { return TypeRentingStarted }

func (e RentingStarted) Event() *types.Event {
	return &types.Event{
		Type: TypeRentingStarted,
		Attributes: map[string]string{
			"rentingId": uintToString(e.RentingID),
			"lendingId": idToString(e.LendingID),
			"recordId":  uintToString(e.RecordID),
			"renter":    addrToString(e.Renter),
			"amount":    uintToString(e.Amount),
			"expiry":    intToString(e.Expiry),
			"total":     formatAmount(e.Total),
			"fee":       formatAmount(e.Fee),
			"royalty":   formatAmount(e.Royalty),
			"currency":  e.Currency,
		},
	}
}

// RentingCleared is emitted when an expired fractional rental is swept.
type RentingCleared struct {
	RentingID uint64
	LendingID [32]byte
	RecordID  uint64
	Amount    uint64
}

func (RentingCleared) EventType() string { return TypeRentingCleared }

func (e RentingCleared) Event() *types.Event {
	return &types.Event{
		Type: TypeRentingCleared,
		Attributes: map[string]string{
			"rentingId": uintToString(e.RentingID),
			"lendingId": idToString(e.LendingID),
			"recordId":  uintToString(e.RecordID),
			"amount":    uintToString(e.Amount),
		},
	}
}

// OrderListed is emitted when a whole-asset lend order is created or re-listed
// under a fresh nonce.
type OrderListed struct {
	Collection [20]byte
	TokenID    uint64
	Lender     [20]byte
	Nonce      uint64
	MaxEndTime int64
	Price      *big.Int
	Currency   string
}

func (OrderListed) EventType() string { return TypeOrderListed }

func (e OrderListed) Event() *types.Event {
	return &types.Event{
		Type: TypeOrderListed,
		Attributes: map[string]string{
			"collection": addrToString(e.Collection),
			"tokenId":    uintToString(e.TokenID),
			"lender":     addrToString(e.Lender),
			"nonce":      uintToString(e.Nonce),
			"maxEndTime": intToString(e.MaxEndTime),
			"price":      formatAmount(e.Price),
			"currency":   e.Currency,
		},
	}
}

// OrderCancelled is emitted when a whole-asset lend order is struck.
type OrderCancelled struct {
	Collection [20]byte
	TokenID    uint64
	Lender     [20]byte
	Nonce      uint64
}

func (OrderCancelled) EventType() string { return TypeOrderCancelled }

func (e OrderCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeOrderCancelled,
		Attributes: map[string]string{
			"collection": addrToString(e.Collection),
			"tokenId":    uintToString(e.TokenID),
			"lender":     addrToString(e.Lender),
			"nonce":      uintToString(e.Nonce),
		},
	}
}

// OrderFulfilled is emitted when a whole-asset order settles.
type OrderFulfilled struct {
	Collection [20]byte
	TokenID    uint64
	RentalID   uint64
	Renter     [20]byte
	Expiry     int64
	Total      *big.Int
	Fee        *big.Int
	Royalty    *big.Int
	Currency   string
}

func (OrderFulfilled) EventType() string { return TypeOrderFulfilled }

func (e OrderFulfilled) Event() *types.Event {
	return &types.Event{
		Type: TypeOrderFulfilled,
		Attributes: map[string]string{
			"collection": addrToString(e.Collection),
			"tokenId":    uintToString(e.TokenID),
			"rentalId":   uintToString(e.RentalID),
			"renter":     addrToString(e.Renter),
			"expiry":     intToString(e.Expiry),
			"total":      formatAmount(e.Total),
			"fee":        formatAmount(e.Fee),
			"royalty":    formatAmount(e.Royalty),
			"currency":   e.Currency,
		},
	}
}

// RentalCleared is emitted when an expired whole-asset rental is swept.
type RentalCleared struct {
	RentalID   uint64
	Collection [20]byte
	TokenID    uint64
	Lender     [20]byte
}

func (RentalCleared) EventType() string { return TypeRentalCleared }

func (e RentalCleared) Event() *types.Event {
	return &types.Event{
		Type: TypeRentalCleared,
		Attributes: map[string]string{
			"rentalId":   uintToString(e.RentalID),
			"collection": addrToString(e.Collection),
			"tokenId":    uintToString(e.TokenID),
			"lender":     addrToString(e.Lender),
		},
	}
}

// MarketFeeClaimed is emitted when the market beneficiary sweeps an accrued
// fee pool.
type MarketFeeClaimed struct {
	Beneficiary [20]byte
	Currency    string
	Amount      *big.Int
}

func (MarketFeeClaimed) EventType() string { return TypeMarketFeeClaimed }

func (e MarketFeeClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeMarketFeeClaimed,
		Attributes: map[string]string{
			"beneficiary": addrToString(e.Beneficiary),
			"currency":    e.Currency,
			"amount":      formatAmount(e.Amount),
		},
	}
}

// RoyaltyClaimed is emitted when a collection beneficiary sweeps an accrued
// royalty pool.
type RoyaltyClaimed struct {
	Collection  [20]byte
	Beneficiary [20]byte
	Currency    string
	Amount      *big.Int
}

func (RoyaltyClaimed) EventType() string { return TypeRoyaltyClaimed }

func (e RoyaltyClaimed) Event() *types.Event {
	return &types.Event{
		Type: TypeRoyaltyClaimed,
		Attributes: map[string]string{
			"collection":  addrToString(e.Collection),
			"beneficiary": addrToString(e.Beneficiary),
			"currency":    e.Currency,
			"amount":      formatAmount(e.Amount),
		},
	}
}
