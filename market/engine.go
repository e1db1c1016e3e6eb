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

// DefaultMaxIndate bounds how far into the future a listing's expiry ceiling
// may reach when the operator has not chosen a tighter window.
const DefaultMaxIndate int64 = 365 * 86_400

type engineState interface {
	LendingGet(id [32]byte) (*Lending, bool, error)
	LendingPut(l *Lending) error
	RentingGet(id uint64) (*Renting, bool, error)
	RentingPut(r *Renting) error
	RentingDelete(id uint64) error
	NextRentingID() (uint64, error)
}

// SettlementMetrics receives the outcome of every mutating market operation
// and the pool balances those operations move.
type SettlementMetrics interface {
	ObserveSettlement(op string, err error)
	SetPoolBalance(pool, currency string, balance *big.Int)
}

// Engine settles fractional rentals: lenders list a quantity of a
// semi-fungible balance, renters buy time-boxed usage rights over part of it,
// and the listed balance is custodied under the engine's address while
// records against it are live.
type Engine struct {
	state    engineState
	ledger   *ledger.Ledger
	registry *rights.Registry
	custody  AssetCustody
	configs  *rentalconfig.Store
	gov      *gov.Governance
	emitter  events.Emitter
	metrics  SettlementMetrics
	nowFn    func() int64

	address           [20]byte
	marketFeeBps      uint32
	marketBeneficiary [20]byte
	maxIndate         int64
}

// NewEngine wires a settlement engine over the supplied collaborators.
// The address identifies the engine as asset custodian and must differ from
// any trading account.
func NewEngine(address [20]byte, led *ledger.Ledger, registry *rights.Registry, custody AssetCustody, configs *rentalconfig.Store, governance *gov.Governance) *Engine {
	return &Engine{
		ledger:    led,
		registry:  registry,
		custody:   custody,
		configs:   configs,
		gov:       governance,
		address:   address,
		maxIndate: DefaultMaxIndate,
		nowFn:     func() int64 { return time.Now().Unix() },
	}
}

// SetState attaches the persistence backend used for lendings and rentings.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the sink that receives settlement events. Passing nil
// silences the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetMetrics attaches an optional settlement metrics sink.
func (e *Engine) SetMetrics(metrics SettlementMetrics) { e.metrics = metrics }

// SetNowFunc overrides the engine clock in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now != nil {
		e.nowFn = now
	}
}

func (e *Engine) now() int64 { return e.nowFn() }

func (e *Engine) emit(evt events.Event) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) observe(op string, err error) {
	if e.metrics != nil {
		e.metrics.ObserveSettlement(op, err)
	}
}

func (e *Engine) mirrorPool(pool ledger.PoolKey, currency ledger.Currency) {
	if e.metrics == nil {
		return
	}
	balance, err := e.ledger.PoolBalanceOf(pool, currency)
	if err != nil {
		return
	}
	e.metrics.SetPoolBalance(string(pool), currency.Key(), balance)
}

// Address returns the engine's custody address.
func (e *Engine) Address() [20]byte { return e.address }

// MarketFeeBps returns the platform cut applied to settlements.
func (e *Engine) MarketFeeBps() uint32 { return e.marketFeeBps }

// MarketBeneficiary returns the address allowed to sweep the fee pool.
func (e *Engine) MarketBeneficiary() [20]byte { return e.marketBeneficiary }

// MaxIndate returns the furthest a listing expiry may sit past now.
func (e *Engine) MaxIndate() int64 { return e.maxIndate }

// SetMarketFee updates the platform cut. Admin only; the cut combined with
// any collection royalty may never exceed the fee denominator, which is
// enforced again at settlement time.
func (e *Engine) SetMarketFee(caller [20]byte, bps uint32) error {
	if !e.gov.IsAdmin(caller) {
		return gov.ErrNotAdmin
	}
	if bps > rentalconfig.MaxFeeBps {
		return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, bps)
	}
	e.marketFeeBps = bps
	return nil
}

// SetMarketBeneficiary updates the fee pool recipient. Owner only.
func (e *Engine) SetMarketBeneficiary(caller, beneficiary [20]byte) error {
	if !e.gov.IsOwner(caller) {
		return gov.ErrNotOwner
	}
	e.marketBeneficiary = beneficiary
	return nil
}

// SetMaxIndate updates the listing horizon. Admin only. A non-positive value
// restores the default.
func (e *Engine) SetMaxIndate(caller [20]byte, maxIndate int64) error {
	if !e.gov.IsAdmin(caller) {
		return gov.ErrNotAdmin
	}
	if maxIndate <= 0 {
		maxIndate = DefaultMaxIndate
	}
	e.maxIndate = maxIndate
	return nil
}

// collectionTerms resolves the billing cycle, royalty cut, and duration bound
// for a collection, falling back to defaults when the operator has not
// registered it.
func (e *Engine) collectionTerms(collection [20]byte) (cycle int64, royaltyBps uint32, maxDuration int64, err error) {
	cfg, ok, err := e.configs.GetConfig(collection)
	if err != nil {
		return 0, 0, 0, err
	}
	if !ok {
		return DefaultCycle, 0, 0, nil
	}
	return cfg.Cycle, cfg.FeeBps, cfg.MaxLendingDuration, nil
}

// CreateLending lists qty units of (collection, tokenID) for rent until
// expiry. Re-listing while part of a previous lending is still out on rent
// tops up the listed amount and leaves the frozen portion untouched; the
// deterministic lending id guarantees one live lending per (asset, lender).
func (e *Engine) CreateLending(caller [20]byte, collection [20]byte, tokenID uint64, qty uint64, expiry int64, price *big.Int, currency ledger.Currency, privateRenter [20]byte) (lending *Lending, err error) {
	defer func() { e.observe("create_lending", err) }()
	if e.state == nil {
		return nil, errNilState
	}
	if err := gov.Guard(e.gov); err != nil {
		return nil, err
	}
	if qty == 0 {
		return nil, ErrInvalidAmount
	}
	now := e.now()
	if expiry <= now {
		return nil, fmt.Errorf("%w: expiry %d, now %d", ErrInvalidExpiry, expiry, now)
	}
	if e.maxIndate > 0 && expiry > now+e.maxIndate {
		return nil, fmt.Errorf("%w: expiry %d beyond horizon %d", ErrInvalidExpiry, expiry, now+e.maxIndate)
	}
	if !ValidPrice(price) {
		return nil, ErrPriceOutOfRange
	}
	ok, err := e.custody.IsApprovedOrOwner(collection, caller, tokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if !ok {
		return nil, ErrNotOwner
	}
	balance, err := e.custody.BalanceOf(collection, caller, tokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if balance < qty {
		return nil, fmt.Errorf("%w: listing %d, balance %d", ErrNotOwner, qty, balance)
	}

	id := LendingID(collection, tokenID, caller)
	existing, found, err := e.state.LendingGet(id)
	if err != nil {
		return nil, err
	}
	lending = &Lending{
		ID:            id,
		Collection:    collection,
		TokenID:       tokenID,
		Amount:        qty,
		Lender:        caller,
		Renter:        privateRenter,
		Expiry:        expiry,
		Currency:      currency,
		PricePerCycle: new(big.Int).Set(price),
	}
	if found && existing.Frozen > 0 {
		// Live rentings keep their frozen quantity; the new listing adds
		// to the total on top of it.
		lending.Amount = existing.Amount + qty
		lending.Frozen = existing.Frozen
	}
	if err := e.state.LendingPut(lending); err != nil {
		return nil, err
	}
	e.emit(events.LendingCreated{
		LendingID:  id,
		Collection: collection,
		TokenID:    tokenID,
		Lender:     caller,
		Amount:     lending.Amount,
		Expiry:     expiry,
		Price:      lending.PricePerCycle,
		Currency:   currency.Key(),
	})
	return lending.Clone(), nil
}

// CancelLending strikes a lending by zeroing its expiry. In-flight rentings
// are untouched; the frozen quantity keeps flowing back through ClearRenting
// as they expire.
func (e *Engine) CancelLending(caller [20]byte, lendingID [32]byte) (err error) {
	defer func() { e.observe("cancel_lending", err) }()
	if e.state == nil {
		return errNilState
	}
	if err := gov.Guard(e.gov); err != nil {
		return err
	}
	lending, ok, err := e.state.LendingGet(lendingID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown lending", ErrInvalidOrder)
	}
	if lending.Lender != caller {
		return ErrNotLender
	}
	lending.Expiry = 0
	if err := e.state.LendingPut(lending); err != nil {
		return err
	}
	e.emit(events.LendingCancelled{LendingID: lendingID, Lender: caller})
	return nil
}

// Rent settles qty units of a lending for duration seconds, granting usage
// rights to the recipient. The caller pays; expectedPrice pins the per-cycle
// price the caller quoted so a concurrent re-list cannot silently reprice the
// trade. Every check runs before the first mutation.
func (e *Engine) Rent(caller [20]byte, lendingID [32]byte, qty uint64, duration int64, to [20]byte, currency ledger.Currency, expectedPrice *big.Int) (renting *Renting, err error) {
	defer func() { e.observe("rent", err) }()
	if e.state == nil {
		return nil, errNilState
	}
	if err := gov.Guard(e.gov); err != nil {
		return nil, err
	}
	lending, ok, err := e.state.LendingGet(lendingID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if !ok || !lending.ValidAt(now) {
		return nil, fmt.Errorf("%w: lending expired or cancelled", ErrInvalidOrder)
	}
	if lending.Renter != zeroAddr && to != lending.Renter {
		return nil, ErrInvalidRenter
	}
	if to == zeroAddr {
		return nil, ErrInvalidRenter
	}
	if qty == 0 {
		return nil, ErrInvalidAmount
	}
	if remaining := lending.Remaining(); qty > remaining {
		return nil, fmt.Errorf("%w: need %d, remaining %d", ErrInsufficientRemaining, qty, remaining)
	}
	if currency != lending.Currency {
		return nil, fmt.Errorf("%w: lending priced in %s", ErrPaymentMismatch, lending.Currency.Key())
	}
	if expectedPrice == nil || expectedPrice.Cmp(lending.PricePerCycle) != 0 {
		return nil, fmt.Errorf("%w: quoted %s, current %s", ErrStalePrice, formatPrice(expectedPrice), lending.PricePerCycle)
	}
	cycle, royaltyBps, maxDuration, err := e.collectionTerms(lending.Collection)
	if err != nil {
		return nil, err
	}
	total, err := TotalPrice(lending.PricePerCycle, qty, duration, cycle)
	if err != nil {
		return nil, err
	}
	if maxDuration > 0 && duration > maxDuration {
		return nil, fmt.Errorf("%w: duration %d exceeds collection maximum %d", ErrInvalidDuration, duration, maxDuration)
	}
	expiry := now + duration
	if expiry <= now {
		// A large enough duration wraps the clock and would slip past the
		// expiry comparisons below as a negative timestamp.
		return nil, fmt.Errorf("%w: duration %d wraps the clock", ErrInvalidExpiry, duration)
	}
	if expiry > lending.Expiry {
		return nil, fmt.Errorf("%w: rental ends %d after lending expiry %d", ErrInvalidExpiry, expiry, lending.Expiry)
	}
	fee, royalty, lenderAmount, err := SplitProceeds(total, e.marketFeeBps, royaltyBps)
	if err != nil {
		return nil, err
	}
	balance, err := e.ledger.BalanceOf(caller, currency)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(total) < 0 {
		return nil, fmt.Errorf("%w: need %s, have %s", ErrPaymentMismatch, total, balance)
	}
	if err := e.registry.CanGrant(lending.Collection, lending.TokenID, to); err != nil {
		return nil, err
	}

	// All checks passed; the external custody move goes first so its
	// failure aborts with nothing else touched.
	if err := e.custody.Transfer(lending.Collection, lending.Lender, e.address, lending.TokenID, qty); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.registry.Deposit(lending.Collection, lending.TokenID, lending.Lender, qty); err != nil {
		return nil, err
	}
	record, err := e.registry.Grant(lending.Collection, lending.TokenID, lending.Lender, to, qty, expiry, now)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Accrue(ledger.MarketFeePool, caller, currency, fee); err != nil {
		return nil, err
	}
	if err := e.ledger.Accrue(ledger.RoyaltyPool(lending.Collection), caller, currency, royalty); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(caller, lending.Lender, currency, lenderAmount); err != nil {
		return nil, err
	}
	e.mirrorPool(ledger.MarketFeePool, currency)
	e.mirrorPool(ledger.RoyaltyPool(lending.Collection), currency)
	rentingID, err := e.state.NextRentingID()
	if err != nil {
		return nil, err
	}
	renting = &Renting{ID: rentingID, LendingID: lendingID, RecordID: record.ID}
	if err := e.state.RentingPut(renting); err != nil {
		return nil, err
	}
	lending.Frozen += qty
	if err := e.state.LendingPut(lending); err != nil {
		return nil, err
	}
	e.emit(events.RentingStarted{
		RentingID: rentingID,
		LendingID: lendingID,
		RecordID:  record.ID,
		Renter:    to,
		Amount:    qty,
		Expiry:    expiry,
		Total:     total,
		Fee:       fee,
		Royalty:   royalty,
		Currency:  currency.Key(),
	})
	return renting.Clone(), nil
}

// ClearRenting sweeps an expired renting: the rights record is revoked, the
// custodied quantity returns to the lender, and the lending's frozen portion
// shrinks. Anyone may call it; clearing twice fails because the renting is
// deleted on the first pass.
func (e *Engine) ClearRenting(rentingID uint64) (err error) {
	defer func() { e.observe("clear_renting", err) }()
	if e.state == nil {
		return errNilState
	}
	if err := gov.Guard(e.gov); err != nil {
		return err
	}
	renting, ok, err := e.state.RentingGet(rentingID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: renting %d", ErrNonexistentRenting, rentingID)
	}
	record, err := e.registry.Revoke(renting.RecordID, e.now())
	if err != nil {
		return err
	}
	if err := e.registry.Withdraw(record.Collection, record.TokenID, record.Owner, record.Amount); err != nil {
		return err
	}
	if err := e.custody.Transfer(record.Collection, e.address, record.Owner, record.TokenID, record.Amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	lending, ok, err := e.state.LendingGet(renting.LendingID)
	if err != nil {
		return err
	}
	if ok {
		if lending.Frozen >= record.Amount {
			lending.Frozen -= record.Amount
		} else {
			lending.Frozen = 0
		}
		if err := e.state.LendingPut(lending); err != nil {
			return err
		}
	}
	if err := e.state.RentingDelete(rentingID); err != nil {
		return err
	}
	e.emit(events.RentingCleared{
		RentingID: rentingID,
		LendingID: renting.LendingID,
		RecordID:  renting.RecordID,
		Amount:    record.Amount,
	})
	return nil
}

// ClaimMarketFee sweeps the accrued platform fee pool for each currency into
// the beneficiary's account. Only the configured beneficiary may call it; an
// empty pool claims zero without error.
func (e *Engine) ClaimMarketFee(caller [20]byte, currencies ...ledger.Currency) (err error) {
	defer func() { e.observe("claim_market_fee", err) }()
	if err := gov.Guard(e.gov); err != nil {
		return err
	}
	if caller == zeroAddr || caller != e.marketBeneficiary {
		return ErrNotBeneficiary
	}
	for _, currency := range currencies {
		amount, err := e.ledger.Claim(ledger.MarketFeePool, caller, currency)
		if err != nil {
			return err
		}
		e.mirrorPool(ledger.MarketFeePool, currency)
		if amount.Sign() > 0 {
			e.emit(events.MarketFeeClaimed{Beneficiary: caller, Currency: currency.Key(), Amount: amount})
		}
	}
	return nil
}

// ClaimRoyalty sweeps a collection's accrued royalty pool for each currency
// into the collection beneficiary's account.
func (e *Engine) ClaimRoyalty(caller [20]byte, collection [20]byte, currencies ...ledger.Currency) (err error) {
	defer func() { e.observe("claim_royalty", err) }()
	if err := gov.Guard(e.gov); err != nil {
		return err
	}
	cfg, ok, err := e.configs.GetConfig(collection)
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
		amount, err := e.ledger.Claim(ledger.RoyaltyPool(collection), caller, currency)
		if err != nil {
			return err
		}
		e.mirrorPool(ledger.RoyaltyPool(collection), currency)
		if amount.Sign() > 0 {
			e.emit(events.RoyaltyClaimed{Collection: collection, Beneficiary: caller, Currency: currency.Key(), Amount: amount})
		}
	}
	return nil
}

// LendingOf returns a copy of the stored lending.
func (e *Engine) LendingOf(lendingID [32]byte) (*Lending, error) {
	if e.state == nil {
		return nil, errNilState
	}
	lending, ok, err := e.state.LendingGet(lendingID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: unknown lending", ErrInvalidOrder)
	}
	return lending.Clone(), nil
}

// RentingOf returns a copy of the stored renting.
func (e *Engine) RentingOf(rentingID uint64) (*Renting, error) {
	if e.state == nil {
		return nil, errNilState
	}
	renting, ok, err := e.state.RentingGet(rentingID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: renting %d", ErrNonexistentRenting, rentingID)
	}
	return renting.Clone(), nil
}

func formatPrice(price *big.Int) string {
	if price == nil {
		return "0"
	}
	return price.String()
}
