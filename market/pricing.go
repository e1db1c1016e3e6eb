package market

import (
	"fmt"
	"math/big"
)

// MaxPrice bounds the per-cycle price a lending or order may carry. The bound
// matches the 96-bit packing used on settlement wires, so any priced listing
// fits alongside its currency in a single word.
var MaxPrice = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(1))

// DefaultCycle is the billing cycle applied to collections without an
// operator-registered configuration.
const DefaultCycle int64 = 86_400

const feeDenominator = 10_000

// ValidPrice reports whether price sits inside (0, MaxPrice].
func ValidPrice(price *big.Int) bool {
	return price != nil && price.Sign() > 0 && price.Cmp(MaxPrice) <= 0
}

// TotalPrice computes the full settlement amount for renting qty units over
// duration seconds at pricePerCycle. The duration must be a positive exact
// multiple of the billing cycle; fractional cycles are rejected rather than
// rounded.
func TotalPrice(pricePerCycle *big.Int, qty uint64, duration, cycle int64) (*big.Int, error) {
	if !ValidPrice(pricePerCycle) {
		return nil, ErrPriceOutOfRange
	}
	if qty == 0 {
		return nil, ErrInvalidAmount
	}
	if cycle <= 0 {
		return nil, fmt.Errorf("%w: cycle %d", ErrInvalidDuration, cycle)
	}
	if duration <= 0 || duration%cycle != 0 {
		return nil, fmt.Errorf("%w: duration %d cycle %d", ErrInvalidDuration, duration, cycle)
	}
	cycles := duration / cycle
	total := new(big.Int).Set(pricePerCycle)
	total.Mul(total, new(big.Int).SetUint64(qty))
	total.Mul(total, big.NewInt(cycles))
	return total, nil
}

// SplitProceeds divides a settlement total into the market fee, the
// collection royalty, and the lender remainder. Both cuts round down, so any
// division dust stays with the lender and the three parts always sum exactly
// to the total.
func SplitProceeds(total *big.Int, marketFeeBps, royaltyBps uint32) (fee, royalty, lenderAmount *big.Int, err error) {
	if total == nil || total.Sign() < 0 {
		return nil, nil, nil, ErrInvalidAmount
	}
	if uint64(marketFeeBps)+uint64(royaltyBps) > feeDenominator {
		return nil, nil, nil, fmt.Errorf("%w: market %d bps + royalty %d bps exceeds %d", ErrFeeTooHigh, marketFeeBps, royaltyBps, feeDenominator)
	}
	denom := big.NewInt(feeDenominator)
	fee = new(big.Int).Mul(total, new(big.Int).SetUint64(uint64(marketFeeBps)))
	fee.Quo(fee, denom)
	royalty = new(big.Int).Mul(total, new(big.Int).SetUint64(uint64(royaltyBps)))
	royalty.Quo(royalty, denom)
	lenderAmount = new(big.Int).Set(total)
	lenderAmount.Sub(lenderAmount, fee)
	lenderAmount.Sub(lenderAmount, royalty)
	return fee, royalty, lenderAmount, nil
}
