package market

import (
	"fmt"
	"math/big"
	"time"

	"github.com/emojidao/double-market-1155/core/events"
	"github.com/emojidao/double-market-1155/gov"
	"github.com/emojidao/double-market-1155/ledger"
	"github.com/emojidao/double-market-1155/rentalconfig"
	"github.com/emojidao/double-market-1155/rights"
)

type orderBookState interface {
	OrderGet(collection [20]byte, tokenID uint64) (*LendOrder, bool, error)
	OrderPut(o *LendOrder) error
	RentalGet(id uint64) (*Rental, bool, error)
	RentalPut(r *Rental) error
	RentalDelete(id uint64) error
	NextRentalID() (uint64, error)
}

// OrderBook settles whole-asset rentals. One standing order exists per
// (collection, token id); each re-list or cancellation bumps the order nonce
// so a fulfillment quoting a stale nonce can never execute. Fulfilled assets
// are custodied under the book's address and carry a single user assignment
// until expiry.
type OrderBook struct {
	state   orderBookState
	ledger  *ledger.Ledger
	custody AssetCustody
	users   rights.UserRights
	configs *rentalconfig.Store
	gov     *gov.Governance
	emitter events.Emitter
	metrics SettlementMetrics
	nowFn   func() int64

	address           [20]byte
	marketFeeBps      uint32
	marketBeneficiary [20]byte
	maxIndate         int64
}

// NewOrderBook wires a whole-asset order book over the supplied
// collaborators.
func NewOrderBook(address [20]byte, led *ledger.Ledger, users rights.UserRights, custody AssetCustody, configs *rentalconfig.Store, governance *gov.Governance) *OrderBook {
	return &OrderBook{
		ledger:    led,
		custody:   custody,
		users:     users,
		configs:   configs,
		gov:       governance,
		address:   address,
		maxIndate: DefaultMaxIndate,
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetState attaches the persistence backend used for orders and rentals.
func (b *OrderBook) SetState(state orderBookState) { b.state = state }

// SetEmitter configures the sink that receives order book events.
func (b *OrderBook) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		b.emitter = events.NoopEmitter{}
		return
	}
	b.emitter = emitter
}

// SetMetrics attaches an optional settlement metrics sink.
func (b *OrderBook) SetMetrics(metrics SettlementMetrics) { b.metrics = metrics }

// SetNowFunc overrides the book clock in tests.
func (b *OrderBook) SetNowFunc(now func() int64) {
	if now != nil {
		b.nowFn = now
	}
}

func (b *OrderBook) now() int64 { return b.nowFn() }

func (b *OrderBook) emit(evt events.Event) {
	if b.emitter == nil {
		return
	}
	b.emitter.Emit(evt)
}

func (b *OrderBook) observe(op string, err error) {
	if b.metrics != nil {
		b.metrics.ObserveSettlement(op, err)
	}
}

func (b *OrderBook) mirrorPool(pool ledger.PoolKey, currency ledger.Currency) {
	if b.metrics == nil {
		return
	}
	balance, err := b.ledger.PoolBalanceOf(pool, currency)
	if err != nil {
		return
	}
	b.metrics.SetPoolBalance(string(pool), currency.Key(), balance)
}

// Address returns the book's custody address.
func (b *OrderBook) Address() [20]byte { return b.address }

// MarketFeeBps returns the platform cut applied to fulfillments.
func (b *OrderBook) MarketFeeBps() uint32 { return b.marketFeeBps }

// MarketBeneficiary returns the address allowed to sweep the fee pool.
func (b *OrderBook) MarketBeneficiary() [20]byte { return b.marketBeneficiary }

// MaxIndate returns how far past now an order's end time may reach before it
// is clamped.
func (b *OrderBook) MaxIndate() int64 { return b.maxIndate }

// SetMarketFee updates the platform cut. Admin only.
func (b *OrderBook) SetMarketFee(caller [20]byte, bps uint32) error {
	if !b.gov.IsAdmin(caller) {
		return gov.ErrNotAdmin
	}
	if bps > rentalconfig.MaxFeeBps {
		return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, bps)
	}
	b.marketFeeBps = bps
	return nil
}

// SetMarketBeneficiary updates the fee pool recipient. Owner only.
func (b *OrderBook) SetMarketBeneficiary(caller, beneficiary [20]byte) error {
	if !b.gov.IsOwner(caller) {
		return gov.ErrNotOwner
	}
	b.marketBeneficiary = beneficiary
	return nil
}

// SetMaxIndate updates the clamp horizon. Admin only. A non-positive value
// restores the default.
func (b *OrderBook) SetMaxIndate(caller [20]byte, maxIndate int64) error {
	if !b.gov.IsAdmin(caller) {
		return gov.ErrNotAdmin
	}
	if maxIndate <= 0 {
		maxIndate = DefaultMaxIndate
	}
	b.maxIndate = maxIndate
	return nil
}

// CreateLendOrder lists a whole asset for rent until maxEndTime, which is
// clamped to the book's horizon. Listing over an existing order replaces it
// under the next nonce, invalidating any quote taken against the old one.
func (b *OrderBook) CreateLendOrder(caller [20]byte, collection [20]byte, tokenID uint64, maxEndTime, minDuration int64, orderType OrderType, privateRenter [20]byte, price *big.Int, currency ledger.Currency) (order *LendOrder, err error) {
	defer func() { b.observe("create_lend_order", err) }()
	if b.state == nil {
		return nil, errNilState
	}
	if err := gov.Guard(b.gov); err != nil {
		return nil, err
	}
	now := b.now()
	if maxEndTime <= now {
		return nil, fmt.Errorf("%w: max end time %d, now %d", ErrInvalidExpiry, maxEndTime, now)
	}
	if b.maxIndate > 0 && maxEndTime > now+b.maxIndate {
		maxEndTime = now + b.maxIndate
	}
	if minDuration < 0 {
		return nil, fmt.Errorf("%w: min duration %d", ErrInvalidDuration, minDuration)
	}
	if !ValidPrice(price) {
		return nil, ErrPriceOutOfRange
	}
	if orderType == OrderTypePrivate && privateRenter == zeroAddr {
		return nil, ErrInvalidRenter
	}
	ok, err := b.custody.IsApprovedOrOwner(collection, caller, tokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if !ok {
		return nil, ErrNotOwner
	}
	var nonce uint64
	existing, found, err := b.state.OrderGet(collection, tokenID)
	if err != nil {
		return nil, err
	}
	if found {
		nonce = existing.Nonce + 1
	}
	order = &LendOrder{
		Collection:    collection,
		TokenID:       tokenID,
		Lender:        caller,
		MaxEndTime:    maxEndTime,
		MinDuration:   minDuration,
		PricePerCycle: new(big.Int).Set(price),
		Currency:      currency,
		OrderType:     orderType,
		PrivateRenter: privateRenter,
		Nonce:         nonce,
	}
	if err := b.state.OrderPut(order); err != nil {
		return nil, err
	}
	b.emit(events.OrderListed{
		Collection: collection,
		TokenID:    tokenID,
		Lender:     caller,
		Nonce:      nonce,
		MaxEndTime: maxEndTime,
		Price:      order.PricePerCycle,
		Currency:   currency.Key(),
	})
	return order.Clone(), nil
}

// CancelLendOrder strikes an order and bumps its nonce so pending quotes die
// with it.
func (b *OrderBook) CancelLendOrder(caller [20]byte, collection [20]byte, tokenID uint64) (err error) {
	defer func() { b.observe("cancel_lend_order", err) }()
	if b.state == nil {
		return errNilState
	}
	if err := gov.Guard(b.gov); err != nil {
		return err
	}
	order, ok, err := b.state.OrderGet(collection, tokenID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no order for token %d", ErrInvalidOrder, tokenID)
	}
	if order.Lender != caller {
		return ErrNotLender
	}
	order.Cancelled = true
	order.Nonce++
	if err := b.state.OrderPut(order); err != nil {
		return err
	}
	b.emit(events.OrderCancelled{Collection: collection, TokenID: tokenID, Lender: caller, Nonce: order.Nonce})
	return nil
}

// IsLendOrderValid reports whether the standing order for the asset could be
// fulfilled right now. A paused market validates nothing.
func (b *OrderBook) IsLendOrderValid(collection [20]byte, tokenID uint64) (bool, error) {
	if b.state == nil {
		return false, errNilState
	}
	if b.gov.Paused() {
		return false, nil
	}
	order, ok, err := b.state.OrderGet(collection, tokenID)
	if err != nil {
		return false, err
	}
	return ok && order.ValidAt(b.now()), nil
}

// GetLendOrder returns a copy of the standing order for the asset.
func (b *OrderBook) GetLendOrder(collection [20]byte, tokenID uint64) (*LendOrder, error) {
	if b.state == nil {
		return nil, errNilState
	}
	order, ok, err := b.state.OrderGet(collection, tokenID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no order for token %d", ErrInvalidOrder, tokenID)
	}
	return order.Clone(), nil
}

// FulfillOrderNow settles the standing order for duration seconds starting
// now. The caller pays and must quote both the nonce and the per-cycle price
// they saw; either going stale aborts the trade. On success the asset moves
// into book custody and the recipient becomes its sole user until expiry.
func (b *OrderBook) FulfillOrderNow(caller [20]byte, collection [20]byte, tokenID uint64, nonce uint64, duration int64, to [20]byte, currency ledger.Currency, expectedPrice *big.Int) (rental *Rental, err error) {
	defer func() { b.observe("fulfill_order", err) }()
	if b.state == nil {
		return nil, errNilState
	}
	if err := gov.Guard(b.gov); err != nil {
		return nil, err
	}
	order, ok, err := b.state.OrderGet(collection, tokenID)
	if err != nil {
		return nil, err
	}
	now := b.now()
	if !ok || !order.ValidAt(now) {
		return nil, fmt.Errorf("%w: no fulfillable order for token %d", ErrInvalidOrder, tokenID)
	}
	if nonce != order.Nonce {
		return nil, fmt.Errorf("%w: nonce %d, current %d", ErrInvalidOrder, nonce, order.Nonce)
	}
	if order.OrderType == OrderTypePrivate && to != order.PrivateRenter {
		return nil, ErrInvalidRenter
	}
	if to == zeroAddr {
		return nil, ErrInvalidRenter
	}
	if duration < order.MinDuration {
		return nil, fmt.Errorf("%w: duration %d below minimum %d", ErrInvalidOrder, duration, order.MinDuration)
	}
	endTime := now + duration
	if endTime <= now {
		return nil, fmt.Errorf("%w: duration %d wraps the clock", ErrInvalidExpiry, duration)
	}
	if endTime > order.MaxEndTime {
		return nil, fmt.Errorf("%w: rental ends %d after order end time %d", ErrInvalidOrder, endTime, order.MaxEndTime)
	}
	if currency != order.Currency {
		return nil, fmt.Errorf("%w: order priced in %s", ErrPaymentMismatch, order.Currency.Key())
	}
	if expectedPrice == nil || expectedPrice.Cmp(order.PricePerCycle) != 0 {
		return nil, fmt.Errorf("%w: quoted %s, current %s", ErrStalePrice, formatPrice(expectedPrice), order.PricePerCycle)
	}
	cycle, royaltyBps, maxDuration, err := b.collectionTerms(collection)
	if err != nil {
		return nil, err
	}
	total, err := TotalPrice(order.PricePerCycle, 1, duration, cycle)
	if err != nil {
		return nil, err
	}
	if maxDuration > 0 && duration > maxDuration {
		return nil, fmt.Errorf("%w: duration %d exceeds collection maximum %d", ErrInvalidDuration, duration, maxDuration)
	}
	fee, royalty, lenderAmount, err := SplitProceeds(total, b.marketFeeBps, royaltyBps)
	if err != nil {
		return nil, err
	}
	balance, err := b.ledger.BalanceOf(caller, currency)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(total) < 0 {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrPaymentMismatch, total, balance)
	}

	if err := b.custody.Transfer(collection, order.Lender, b.address, tokenID, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := b.users.SetUser(collection, tokenID, to, endTime); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := b.ledger.Accrue(ledger.MarketFeePool, caller, currency, fee); err != nil {
		return nil, err
	}
	if err := b.ledger.Accrue(ledger.RoyaltyPool(collection), caller, currency, royalty); err != nil {
		return nil, err
	}
	if err := b.ledger.Transfer(caller, order.Lender, currency, lenderAmount); err != nil {
		return nil, err
	}
	b.mirrorPool(ledger.MarketFeePool, currency)
	b.mirrorPool(ledger.RoyaltyPool(collection), currency)
	rentalID, err := b.state.NextRentalID()
	if err != nil {
		return nil, err
	}
	rental = &Rental{
		ID:         rentalID,
		Collection: collection,
		TokenID:    tokenID,
		Lender:     order.Lender,
		Renter:     to,
		Expiry:     endTime,
	}
	if err := b.state.RentalPut(rental); err != nil {
		return nil, err
	}
	order.Fulfilled = true
	if err := b.state.OrderPut(order); err != nil {
		return nil, err
	}
	b.emit(events.OrderFulfilled{
		Collection: collection,
		TokenID:    tokenID,
		RentalID:   rentalID,
		Renter:     to,
		Expiry:     endTime,
		Total:      total,
		Fee:        fee,
		Royalty:    royalty,
		Currency:   currency.Key(),
	})
	return rental.Clone(), nil
}

// ClearRental sweeps an expired whole-asset rental: the user assignment is
// cleared and the asset returns from book custody to the lender. Anyone may
// call it.
func (b *OrderBook) ClearRental(rentalID uint64) (err error) {
	defer func() { b.observe("clear_rental", err) }()
	if b.state == nil {
		return errNilState
	}
	if err := gov.Guard(b.gov); err != nil {
		return err
	}
	rental, ok, err := b.state.RentalGet(rentalID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: rental %d", ErrNonexistentRenting, rentalID)
	}
	now := b.now()
	if now < rental.Expiry {
		return fmt.Errorf("%w: expires %d, now %d", rights.ErrNotYetExpired, rental.Expiry, now)
	}
	if err := b.custody.Transfer(rental.Collection, b.address, rental.Lender, rental.TokenID, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := b.users.SetUser(rental.Collection, rental.TokenID, zeroAddr, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := b.state.RentalDelete(rentalID); err != nil {
		return err
	}
	b.emit(events.RentalCleared{
		RentalID:   rentalID,
		Collection: rental.Collection,
		TokenID:    rental.TokenID,
		Lender:     rental.Lender,
	})
	return nil
}

// RentalOf returns a copy of the stored rental.
func (b *OrderBook) RentalOf(rentalID uint64) (*Rental, error) {
	if b.state == nil {
		return nil, errNilState
	}
	rental, ok, err := b.state.RentalGet(rentalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: rental %d", ErrNonexistentRenting, rentalID)
	}
	return rental.Clone(), nil
}

// ClaimMarketFee sweeps the accrued platform fee pool for each currency into
// the beneficiary's account.
func (b *OrderBook) ClaimMarketFee(caller [20]byte, currencies ...ledger.Currency) (err error) {
	defer func() { b.observe("claim_market_fee", err) }()
	if err := gov.Guard(b.gov); err != nil {
		return err
	}
	if caller == zeroAddr || caller != b.marketBeneficiary {
		return ErrNotBeneficiary
	}
	for _, currency := range currencies {
		amount, err := b.ledger.Claim(ledger.MarketFeePool, caller, currency)
		if err != nil {
			return err
		}
		b.mirrorPool(ledger.MarketFeePool, currency)
		if amount.Sign() > 0 {
			b.emit(events.MarketFeeClaimed{Beneficiary: caller, Currency: currency.Key(), Amount: amount})
		}
	}
	return nil
}

// ClaimRoyalty sweeps a collection's accrued royalty pool for each currency
// into the collection beneficiary's account.
func (b *OrderBook) ClaimRoyalty(caller [20]byte, collection [20]byte, currencies ...ledger.Currency) (err error) {
	defer func() { b.observe("claim_royalty", err) }()
	if err := gov.Guard(b.gov); err != nil {
		return err
	}
	cfg, ok, err := b.configs.GetConfig(collection)
	if err != nil {
		return err
	}
	if !ok {
		return rentalconfig.ErrNotInitialized
	}
	if caller == zeroAddr || caller != cfg.Beneficiary {
		return ErrNotBeneficiary
	}
	for _, currency := range currencies {
		amount, err := b.ledger.Claim(ledger.RoyaltyPool(collection), caller, currency)
		if err != nil {
			return err
		}
		b.mirrorPool(ledger.RoyaltyPool(collection), currency)
		if amount.Sign() > 0 {
			b.emit(events.RoyaltyClaimed{Collection: collection, Beneficiary: caller, Currency: currency.Key(), Amount: amount})
		}
	}
	return nil
}

func (b *OrderBook) collectionTerms(collection [20]byte) (cycle int64, royaltyBps uint32, maxDuration int64, err error) {
	cfg, ok, err := b.configs.GetConfig(collection)
	if err != nil {
		return 0, 0, 0, err
	}
	if !ok {
		return DefaultCycle, 0, 0, nil
	}
	return cfg.Cycle, cfg.FeeBps, cfg.MaxLendingDuration, nil
}
