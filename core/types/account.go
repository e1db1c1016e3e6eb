package types

import "math/big"

// Account stores the per-currency balances tracked by the payment ledger. The
// balance map is keyed by the canonical currency key (see the ledger package);
// absent entries are treated as zero.
type Account struct {
	Nonce    uint64
	Balances map[string]*big.Int
}

// NewAccount returns an empty account with an initialised balance map.
func NewAccount() *Account {
	return &Account{Balances: make(map[string]*big.Int)}
}

// EnsureAccount normalises a possibly-nil account so callers can mutate it
// without nil checks.
func EnsureAccount(acc *Account) *Account {
	if acc == nil {
		return NewAccount()
	}
	if acc.Balances == nil {
		acc.Balances = make(map[string]*big.Int)
	}
	return acc
}

// Balance returns the balance held for the supplied currency key. The returned
// value is never nil and is safe to read; callers must use SetBalance to
// mutate.
func (a *Account) Balance(currency string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	if bal, ok := a.Balances[currency]; ok && bal != nil {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// SetBalance records the balance for the supplied currency key, cloning the
// amount so callers cannot alias internal state. Negative amounts are clamped
// by the ledger before they ever reach an account.
func (a *Account) SetBalance(currency string, amount *big.Int) {
	if a == nil {
		return
	}
	if a.Balances == nil {
		a.Balances = make(map[string]*big.Int)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	a.Balances[currency] = new(big.Int).Set(amount)
}

// Clone returns a deep copy of the account so callers can safely mutate the
// copy without affecting the stored instance.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := &Account{Nonce: a.Nonce, Balances: make(map[string]*big.Int, len(a.Balances))}
	for currency, bal := range a.Balances {
		if bal == nil {
			clone.Balances[currency] = big.NewInt(0)
			continue
		}
		clone.Balances[currency] = new(big.Int).Set(bal)
	}
	return clone
}
