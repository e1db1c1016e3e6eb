package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/emojidao/double-market-1155/core/types"
	"github.com/emojidao/double-market-1155/ledger"
	"github.com/emojidao/double-market-1155/market"
	"github.com/emojidao/double-market-1155/rentalconfig"
	"github.com/emojidao/double-market-1155/rights"
)

// Key prefixes. Every stored object lives under its own namespace so the
// backends never need range scans to resolve a lookup.
var (
	prefixAccount     = []byte("acct:")
	prefixPool        = []byte("pool:")
	prefixLending     = []byte("lend:")
	prefixRenting     = []byte("renting:")
	prefixOrder       = []byte("order:")
	prefixRental      = []byte("rental:")
	prefixRecord      = []byte("record:")
	prefixDeposit     = []byte("deposit:")
	prefixUserRecords = []byte("uridx:")
	prefixConfig      = []byte("cfg:")

	seqRenting = []byte("seq:renting")
	seqRental  = []byte("seq:rental")
	seqRecord  = []byte("seq:record")
)

// State persists the market's working set in a key-value backend and exposes
// the narrow views the engines consume. All values are RLP encoded; signed
// timestamps are stored as their unsigned width since the engines never
// produce a negative one.
type State struct {
	db Database
}

// NewState wraps a database in the market persistence layer.
func NewState(db Database) *State {
	return &State{db: db}
}

func u64Key(prefix []byte, id uint64) []byte {
	key := make([]byte, 0, len(prefix)+8)
	key = append(key, prefix...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return append(key, buf[:]...)
}

func assetKey(prefix []byte, collection [20]byte, tokenID uint64) []byte {
	key := make([]byte, 0, len(prefix)+28)
	key = append(key, prefix...)
	key = append(key, collection[:]...)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], tokenID)
	return append(key, buf[:]...)
}

func (s *State) getRLP(key []byte, out interface{}) (bool, error) {
	raw, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, fmt.Errorf("storage: decode %q: %w", key, err)
	}
	return true, nil
}

func (s *State) putRLP(key []byte, in interface{}) error {
	raw, err := rlp.EncodeToBytes(in)
	if err != nil {
		return fmt.Errorf("storage: encode %q: %w", key, err)
	}
	return s.db.Put(key, raw)
}

func (s *State) nextSequence(key []byte) (uint64, error) {
	var next uint64 = 1
	raw, err := s.db.Get(key)
	if err == nil && len(raw) == 8 {
		next = binary.BigEndian.Uint64(raw) + 1
	} else if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := s.db.Put(key, buf[:]); err != nil {
		return 0, err
	}
	return next, nil
}

// --- ledger.State ---

type storedAccount struct {
	Nonce      uint64
	Currencies []string
	Balances   []*big.Int
}

func (s *State) GetAccount(addr [20]byte) (*types.Account, error) {
	var stored storedAccount
	ok, err := s.getRLP(append(prefixAccount, addr[:]...), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	if len(stored.Currencies) != len(stored.Balances) {
		return nil, fmt.Errorf("storage: corrupt account for %x", addr)
	}
	acc := types.NewAccount()
	acc.Nonce = stored.Nonce
	for i, currency := range stored.Currencies {
		acc.SetBalance(currency, stored.Balances[i])
	}
	return acc, nil
}

func (s *State) PutAccount(addr [20]byte, acc *types.Account) error {
	acc = types.EnsureAccount(acc)
	currencies := make([]string, 0, len(acc.Balances))
	for currency := range acc.Balances {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)
	stored := storedAccount{Nonce: acc.Nonce, Currencies: currencies}
	for _, currency := range currencies {
		stored.Balances = append(stored.Balances, acc.Balance(currency))
	}
	return s.putRLP(append(prefixAccount, addr[:]...), &stored)
}

func poolKey(pool ledger.PoolKey, currency string) []byte {
	key := append([]byte(nil), prefixPool...)
	key = append(key, pool...)
	key = append(key, ':')
	return append(key, currency...)
}

func (s *State) PoolBalance(pool ledger.PoolKey, currency string) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := s.getRLP(poolKey(pool, currency), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (s *State) SetPoolBalance(pool ledger.PoolKey, currency string, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	return s.putRLP(poolKey(pool, currency), amount)
}

// --- rights.State ---

type storedRecord struct {
	ID         uint64
	Collection [20]byte
	TokenID    uint64
	Amount     uint64
	Owner      [20]byte
	User       [20]byte
	Expiry     uint64
}

func (s *State) RecordGet(id uint64) (*rights.Record, bool, error) {
	var stored storedRecord
	ok, err := s.getRLP(u64Key(prefixRecord, id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &rights.Record{
		ID:         stored.ID,
		Collection: stored.Collection,
		TokenID:    stored.TokenID,
		Amount:     stored.Amount,
		Owner:      stored.Owner,
		User:       stored.User,
		Expiry:     int64(stored.Expiry),
	}, true, nil
}

func (s *State) RecordPut(record *rights.Record) error {
	return s.putRLP(u64Key(prefixRecord, record.ID), &storedRecord{
		ID:         record.ID,
		Collection: record.Collection,
		TokenID:    record.TokenID,
		Amount:     record.Amount,
		Owner:      record.Owner,
		User:       record.User,
		Expiry:     uint64(record.Expiry),
	})
}

func (s *State) RecordDelete(id uint64) error {
	return s.db.Delete(u64Key(prefixRecord, id))
}

func (s *State) NextRecordID() (uint64, error) {
	return s.nextSequence(seqRecord)
}

type storedDeposit struct {
	Amount uint64
	Frozen uint64
}

func depositKey(collection [20]byte, tokenID uint64, owner [20]byte) []byte {
	return append(assetKey(prefixDeposit, collection, tokenID), owner[:]...)
}

func (s *State) DepositGet(collection [20]byte, tokenID uint64, owner [20]byte) (*rights.Deposit, error) {
	var stored storedDeposit
	ok, err := s.getRLP(depositKey(collection, tokenID, owner), &stored)
	if err != nil || !ok {
		return nil, err
	}
	return &rights.Deposit{Amount: stored.Amount, Frozen: stored.Frozen}, nil
}

func (s *State) DepositPut(collection [20]byte, tokenID uint64, owner [20]byte, dep *rights.Deposit) error {
	return s.putRLP(depositKey(collection, tokenID, owner), &storedDeposit{Amount: dep.Amount, Frozen: dep.Frozen})
}

func userRecordsKey(user [20]byte, collection [20]byte, tokenID uint64) []byte {
	return append(assetKey(prefixUserRecords, collection, tokenID), user[:]...)
}

func (s *State) UserRecordsGet(user [20]byte, collection [20]byte, tokenID uint64) ([]uint64, error) {
	var ids []uint64
	if _, err := s.getRLP(userRecordsKey(user, collection, tokenID), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *State) UserRecordsPut(user [20]byte, collection [20]byte, tokenID uint64, ids []uint64) error {
	key := userRecordsKey(user, collection, tokenID)
	if len(ids) == 0 {
		return s.db.Delete(key)
	}
	return s.putRLP(key, ids)
}

// --- market engine state ---

type storedLending struct {
	ID         [32]byte
	Collection [20]byte
	TokenID    uint64
	Amount     uint64
	Lender     [20]byte
	Frozen     uint64
	Renter     [20]byte
	Expiry     uint64
	Currency   [20]byte
	Price      *big.Int
}

func (s *State) LendingGet(id [32]byte) (*market.Lending, bool, error) {
	var stored storedLending
	ok, err := s.getRLP(append(prefixLending, id[:]...), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	price := stored.Price
	if price == nil {
		price = big.NewInt(0)
	}
	return &market.Lending{
		ID:            stored.ID,
		Collection:    stored.Collection,
		TokenID:       stored.TokenID,
		Amount:        stored.Amount,
		Lender:        stored.Lender,
		Frozen:        stored.Frozen,
		Renter:        stored.Renter,
		Expiry:        int64(stored.Expiry),
		Currency:      ledger.Currency(stored.Currency),
		PricePerCycle: price,
	}, true, nil
}

func (s *State) LendingPut(l *market.Lending) error {
	return s.putRLP(append(prefixLending, l.ID[:]...), &storedLending{
		ID:         l.ID,
		Collection: l.Collection,
		TokenID:    l.TokenID,
		Amount:     l.Amount,
		Lender:     l.Lender,
		Frozen:     l.Frozen,
		Renter:     l.Renter,
		Expiry:     uint64(l.Expiry),
		Currency:   l.Currency,
		Price:      l.PricePerCycle,
	})
}

type storedRenting struct {
	ID        uint64
	LendingID [32]byte
	RecordID  uint64
}

func (s *State) RentingGet(id uint64) (*market.Renting, bool, error) {
	var stored storedRenting
	ok, err := s.getRLP(u64Key(prefixRenting, id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &market.Renting{ID: stored.ID, LendingID: stored.LendingID, RecordID: stored.RecordID}, true, nil
}

func (s *State) RentingPut(r *market.Renting) error {
	return s.putRLP(u64Key(prefixRenting, r.ID), &storedRenting{ID: r.ID, LendingID: r.LendingID, RecordID: r.RecordID})
}

func (s *State) RentingDelete(id uint64) error {
	return s.db.Delete(u64Key(prefixRenting, id))
}

func (s *State) NextRentingID() (uint64, error) {
	return s.nextSequence(seqRenting)
}

type storedOrder struct {
	Collection    [20]byte
	TokenID       uint64
	Lender        [20]byte
	MaxEndTime    uint64
	MinDuration   uint64
	Price         *big.Int
	Currency      [20]byte
	OrderType     uint8
	PrivateRenter [20]byte
	Nonce         uint64
	Fulfilled     bool
	Cancelled     bool
}

func (s *State) OrderGet(collection [20]byte, tokenID uint64) (*market.LendOrder, bool, error) {
	var stored storedOrder
	ok, err := s.getRLP(assetKey(prefixOrder, collection, tokenID), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	price := stored.Price
	if price == nil {
		price = big.NewInt(0)
	}
	return &market.LendOrder{
		Collection:    stored.Collection,
		TokenID:       stored.TokenID,
		Lender:        stored.Lender,
		MaxEndTime:    int64(stored.MaxEndTime),
		MinDuration:   int64(stored.MinDuration),
		PricePerCycle: price,
		Currency:      ledger.Currency(stored.Currency),
		OrderType:     market.OrderType(stored.OrderType),
		PrivateRenter: stored.PrivateRenter,
		Nonce:         stored.Nonce,
		Fulfilled:     stored.Fulfilled,
		Cancelled:     stored.Cancelled,
	}, true, nil
}

func (s *State) OrderPut(o *market.LendOrder) error {
	return s.putRLP(assetKey(prefixOrder, o.Collection, o.TokenID), &storedOrder{
		Collection:    o.Collection,
		TokenID:       o.TokenID,
		Lender:        o.Lender,
		MaxEndTime:    uint64(o.MaxEndTime),
		MinDuration:   uint64(o.MinDuration),
		Price:         o.PricePerCycle,
		Currency:      o.Currency,
		OrderType:     uint8(o.OrderType),
		PrivateRenter: o.PrivateRenter,
		Nonce:         o.Nonce,
		Fulfilled:     o.Fulfilled,
		Cancelled:     o.Cancelled,
	})
}

type storedRental struct {
	ID         uint64
	Collection [20]byte
	TokenID    uint64
	Lender     [20]byte
	Renter     [20]byte
	Expiry     uint64
}

func (s *State) RentalGet(id uint64) (*market.Rental, bool, error) {
	var stored storedRental
	ok, err := s.getRLP(u64Key(prefixRental, id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &market.Rental{
		ID:         stored.ID,
		Collection: stored.Collection,
		TokenID:    stored.TokenID,
		Lender:     stored.Lender,
		Renter:     stored.Renter,
		Expiry:     int64(stored.Expiry),
	}, true, nil
}

func (s *State) RentalPut(r *market.Rental) error {
	return s.putRLP(u64Key(prefixRental, r.ID), &storedRental{
		ID:         r.ID,
		Collection: r.Collection,
		TokenID:    r.TokenID,
		Lender:     r.Lender,
		Renter:     r.Renter,
		Expiry:     uint64(r.Expiry),
	})
}

func (s *State) RentalDelete(id uint64) error {
	return s.db.Delete(u64Key(prefixRental, id))
}

func (s *State) NextRentalID() (uint64, error) {
	return s.nextSequence(seqRental)
}

// --- single-holder user assignments ---

type storedUserGrant struct {
	User   [20]byte
	Expiry uint64
}

var prefixUserGrant = []byte("user:")

// SetUser records the sole user of a whole asset until expiry. A zero user
// clears the assignment.
func (s *State) SetUser(collection [20]byte, tokenID uint64, user [20]byte, expiry int64) error {
	key := assetKey(prefixUserGrant, collection, tokenID)
	if user == ([20]byte{}) {
		return s.db.Delete(key)
	}
	return s.putRLP(key, &storedUserGrant{User: user, Expiry: uint64(expiry)})
}

// UserOf returns the active user of the asset, applying expiry lazily.
func (s *State) UserOf(collection [20]byte, tokenID uint64, now int64) ([20]byte, bool) {
	var stored storedUserGrant
	ok, err := s.getRLP(assetKey(prefixUserGrant, collection, tokenID), &stored)
	if err != nil || !ok {
		return [20]byte{}, false
	}
	if now >= int64(stored.Expiry) {
		return [20]byte{}, false
	}
	return stored.User, true
}

// UserExpires returns the raw expiry of the asset's user assignment, zero when
// none exists.
func (s *State) UserExpires(collection [20]byte, tokenID uint64) int64 {
	var stored storedUserGrant
	ok, err := s.getRLP(assetKey(prefixUserGrant, collection, tokenID), &stored)
	if err != nil || !ok {
		return 0
	}
	return int64(stored.Expiry)
}

// --- rentalconfig state ---

type storedConfig struct {
	Collection         [20]byte
	Admin              [20]byte
	Beneficiary        [20]byte
	TempAdmin          [20]byte
	FeeBps             uint32
	Cycle              uint64
	MaxLendingDuration uint64
}

func (s *State) ConfigGet(collection [20]byte) (*rentalconfig.Config, bool, error) {
	var stored storedConfig
	ok, err := s.getRLP(append(prefixConfig, collection[:]...), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &rentalconfig.Config{
		Collection:         stored.Collection,
		Admin:              stored.Admin,
		Beneficiary:        stored.Beneficiary,
		TempAdmin:          stored.TempAdmin,
		FeeBps:             stored.FeeBps,
		Cycle:              int64(stored.Cycle),
		MaxLendingDuration: int64(stored.MaxLendingDuration),
	}, true, nil
}

func (s *State) ConfigPut(cfg *rentalconfig.Config) error {
	return s.putRLP(append(prefixConfig, cfg.Collection[:]...), &storedConfig{
		Collection:         cfg.Collection,
		Admin:              cfg.Admin,
		Beneficiary:        cfg.Beneficiary,
		TempAdmin:          cfg.TempAdmin,
		FeeBps:             cfg.FeeBps,
		Cycle:              uint64(cfg.Cycle),
		MaxLendingDuration: uint64(cfg.MaxLendingDuration),
	})
}
