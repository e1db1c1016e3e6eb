package assets

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/emojidao/double-market-1155/storage"
)

var (
	ErrInvalidAmount       = errors.New("assets: amount must be positive")
	ErrInsufficientBalance = errors.New("assets: insufficient balance")
	ErrNotMinter           = errors.New("assets: caller is not the minter")
)

var (
	prefixBalance  = []byte("asset:bal:")
	prefixApproval = []byte("asset:appr:")
)

// Book is a semi-fungible balance table: per (collection, token id, holder)
// quantities with operator approvals, the custody surface the market settles
// against when no external token backend is attached. Minting is restricted
// to a single minter address set at construction.
type Book struct {
	db     storage.Database
	minter [20]byte
}

// NewBook constructs a balance book over the supplied database.
func NewBook(db storage.Database, minter [20]byte) *Book {
	return &Book{db: db, minter: minter}
}

func balanceKey(collection [20]byte, tokenID uint64, holder [20]byte) []byte {
	key := make([]byte, 0, len(prefixBalance)+48)
	key = append(key, prefixBalance...)
	key = append(key, collection[:]...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], tokenID)
	key = append(key, buf[:]...)
	return append(key, holder[:]...)
}

func approvalKey(collection [20]byte, holder, operator [20]byte) []byte {
	key := make([]byte, 0, len(prefixApproval)+60)
	key = append(key, prefixApproval...)
	key = append(key, collection[:]...)
	key = append(key, holder[:]...)
	return append(key, operator[:]...)
}

func (b *Book) balance(collection [20]byte, tokenID uint64, holder [20]byte) (uint64, error) {
	raw, err := b.db.Get(balanceKey(collection, tokenID, holder))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("assets: corrupt balance for %x/%d", collection, tokenID)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (b *Book) setBalance(collection [20]byte, tokenID uint64, holder [20]byte, qty uint64) error {
	key := balanceKey(collection, tokenID, holder)
	if qty == 0 {
		return b.db.Delete(key)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], qty)
	return b.db.Put(key, buf[:])
}

// Mint credits newly issued quantity to a holder. Minter only.
func (b *Book) Mint(caller [20]byte, collection [20]byte, tokenID uint64, to [20]byte, qty uint64) error {
	if caller != b.minter {
		return ErrNotMinter
	}
	if qty == 0 {
		return ErrInvalidAmount
	}
	balance, err := b.balance(collection, tokenID, to)
	if err != nil {
		return err
	}
	return b.setBalance(collection, tokenID, to, balance+qty)
}

// SetApprovalForAll lets a holder authorise an operator over every token in a
// collection, mirroring the 1155 approval model.
func (b *Book) SetApprovalForAll(holder [20]byte, collection [20]byte, operator [20]byte, approved bool) error {
	key := approvalKey(collection, holder, operator)
	if !approved {
		return b.db.Delete(key)
	}
	return b.db.Put(key, []byte{1})
}

// IsApprovedForAll reports whether operator may move holder's balances in the
// collection.
func (b *Book) IsApprovedForAll(holder [20]byte, collection [20]byte, operator [20]byte) (bool, error) {
	return b.db.Has(approvalKey(collection, holder, operator))
}

// Transfer moves qty between holders. The market engines call this with the
// lender as sender after checking approval, so the book enforces only balance
// sufficiency here.
func (b *Book) Transfer(collection [20]byte, from, to [20]byte, tokenID uint64, qty uint64) error {
	if qty == 0 {
		return ErrInvalidAmount
	}
	fromBalance, err := b.balance(collection, tokenID, from)
	if err != nil {
		return err
	}
	if fromBalance < qty {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientBalance, qty, fromBalance)
	}
	toBalance, err := b.balance(collection, tokenID, to)
	if err != nil {
		return err
	}
	if err := b.setBalance(collection, tokenID, from, fromBalance-qty); err != nil {
		return err
	}
	return b.setBalance(collection, tokenID, to, toBalance+qty)
}

// BalanceOf returns the holder's quantity of the token.
func (b *Book) BalanceOf(collection [20]byte, holder [20]byte, tokenID uint64) (uint64, error) {
	return b.balance(collection, tokenID, holder)
}

// IsApprovedOrOwner reports whether caller holds any of the token. The market
// uses it as the listing authorisation check.
func (b *Book) IsApprovedOrOwner(collection [20]byte, caller [20]byte, tokenID uint64) (bool, error) {
	balance, err := b.balance(collection, tokenID, caller)
	if err != nil {
		return false, err
	}
	return balance > 0, nil
}
