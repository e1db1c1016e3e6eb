package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/emojidao/double-market-1155/core/types"
)

var (
	errNilState          = errors.New("ledger: state not configured")
	ErrInvalidAmount     = errors.New("ledger: amount must be positive")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

// PoolKey identifies an accrued-but-unclaimed balance: the platform fee pool
// or one royalty pool per collection.
type PoolKey string

// MarketFeePool is the platform-wide fee pool.
const MarketFeePool PoolKey = "market_fee"

// RoyaltyPool returns the royalty pool key for a collection.
func RoyaltyPool(collection [20]byte) PoolKey {
	return PoolKey("royalty:0x" + hex.EncodeToString(collection[:]))
}

// State is the persistence surface consumed by the ledger.
type State interface {
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, acc *types.Account) error
	PoolBalance(pool PoolKey, currency string) (*big.Int, error)
	SetPoolBalance(pool PoolKey, currency string, amount *big.Int) error
}

// Ledger moves value between accounts and accrues fee/royalty pools. Pool
// value is custodied by the vault account, so at every point the vault balance
// covers the sum of pool accruals per currency and no transfer can create or
// destroy value.
type Ledger struct {
	state State
	vault [20]byte
}

// New constructs a ledger whose pools are custodied by the supplied vault
// address.
func New(vault [20]byte) *Ledger {
	return &Ledger{vault: vault}
}

// SetState wires the ledger to the external persistence layer.
func (l *Ledger) SetState(state State) { l.state = state }

// Vault returns the pool custody address.
func (l *Ledger) Vault() [20]byte { return l.vault }

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// BalanceOf returns the balance an account holds in the supplied currency.
func (l *Ledger) BalanceOf(addr [20]byte, currency Currency) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return types.EnsureAccount(acc).Balance(currency.Key()), nil
}

// Credit mints value into an account. Used by hosts to reflect deposits made
// outside the engine (attached native value, token transferFrom into custody).
func (l *Ledger) Credit(addr [20]byte, currency Currency, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return err
	}
	acc = types.EnsureAccount(acc)
	key := currency.Key()
	acc.SetBalance(key, new(big.Int).Add(acc.Balance(key), amt))
	return l.state.PutAccount(addr, acc)
}

// Transfer moves value between two accounts with exact conservation. A failed
// transfer mutates nothing.
func (l *Ledger) Transfer(from, to [20]byte, currency Currency, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return ErrInvalidAmount
	}
	fromAcc, err := l.state.GetAccount(from)
	if err != nil {
		return err
	}
	toAcc, err := l.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc = types.EnsureAccount(fromAcc)
	toAcc = types.EnsureAccount(toAcc)
	key := currency.Key()
	fromBal := fromAcc.Balance(key)
	if fromBal.Cmp(amt) < 0 {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, amt, fromBal)
	}
	fromAcc.SetBalance(key, new(big.Int).Sub(fromBal, amt))
	toAcc.SetBalance(key, new(big.Int).Add(toAcc.Balance(key), amt))
	if err := l.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return l.state.PutAccount(to, toAcc)
}

// Accrue moves value from the payer into the vault and records it as
// claimable by the pool's beneficiary. Zero amounts are a no-op so callers do
// not need to special-case zero fee rates.
func (l *Ledger) Accrue(pool PoolKey, from [20]byte, currency Currency, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return ErrInvalidAmount
	}
	if err := l.Transfer(from, l.vault, currency, amt); err != nil {
		return err
	}
	current, err := l.state.PoolBalance(pool, currency.Key())
	if err != nil {
		return err
	}
	updated := new(big.Int).Add(cloneBigInt(current), amt)
	return l.state.SetPoolBalance(pool, currency.Key(), updated)
}

// PoolBalanceOf returns the accrued-but-unclaimed amount in a pool.
func (l *Ledger) PoolBalanceOf(pool PoolKey, currency Currency) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	bal, err := l.state.PoolBalance(pool, currency.Key())
	if err != nil {
		return nil, err
	}
	return cloneBigInt(bal), nil
}

// Claim zeroes a pool's accrual for the supplied currency and pays it from
// the vault to the beneficiary. Claiming an empty pool succeeds and returns
// zero.
func (l *Ledger) Claim(pool PoolKey, beneficiary [20]byte, currency Currency) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	accrued, err := l.state.PoolBalance(pool, currency.Key())
	if err != nil {
		return nil, err
	}
	amt := cloneBigInt(accrued)
	if amt.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := l.state.SetPoolBalance(pool, currency.Key(), big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := l.Transfer(l.vault, beneficiary, currency, amt); err != nil {
		return nil, err
	}
	return amt, nil
}
