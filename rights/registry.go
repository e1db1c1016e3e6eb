package rights

import (
	"errors"
	"fmt"
)

var (
	errNilState              = errors.New("rights registry: state not configured")
	ErrInvalidAmount         = errors.New("rights registry: amount must be positive")
	ErrInvalidExpiry         = errors.New("rights registry: expiry must be in the future")
	ErrInsufficientAvailable = errors.New("rights registry: quantity exceeds available balance")
	ErrTooManyRecords        = errors.New("rights registry: user cannot hold more records for this asset")
	ErrNotYetExpired         = errors.New("rights registry: record has not expired")
	ErrNonexistentRecord     = errors.New("rights registry: nonexistent record")
)

// DefaultSlotLimit bounds how many live records a single user may hold per
// (collection, token id). Keeping the bound small keeps usable-balance reads
// a bounded iteration.
const DefaultSlotLimit = 3

// Record is the evidence that a quantity of an asset's usage rights has been
// granted to a user until an expiry. Records live in an append-only arena
// keyed by an ever-incrementing id; revocation tombstones the slot rather
// than compacting it, so historical ids stay resolvable as "nonexistent".
type Record struct {
	ID         uint64
	Collection [20]byte
	TokenID    uint64
	Amount     uint64
	Owner      [20]byte
	User       [20]byte
	Expiry     int64
}

// Clone returns a copy of the record so callers can safely mutate it without
// affecting the stored instance.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// ActiveAt reports whether the record still conveys usage rights at the
// supplied time. Expired-but-unswept records report false.
func (r *Record) ActiveAt(now int64) bool {
	return r != nil && now < r.Expiry
}

// Deposit tracks the quantity of a semi-fungible balance custodied for an
// owner and how much of it is currently frozen by live records.
type Deposit struct {
	Amount uint64
	Frozen uint64
}

// Available returns the unfrozen quantity.
func (d *Deposit) Available() uint64 {
	if d == nil || d.Frozen > d.Amount {
		return 0
	}
	return d.Amount - d.Frozen
}

// State is the persistence surface consumed by the registry.
type State interface {
	RecordGet(id uint64) (*Record, bool, error)
	RecordPut(record *Record) error
	RecordDelete(id uint64) error
	NextRecordID() (uint64, error)
	DepositGet(collection [20]byte, tokenID uint64, owner [20]byte) (*Deposit, error)
	DepositPut(collection [20]byte, tokenID uint64, owner [20]byte, dep *Deposit) error
	UserRecordsGet(user [20]byte, collection [20]byte, tokenID uint64) ([]uint64, error)
	UserRecordsPut(user [20]byte, collection [20]byte, tokenID uint64, ids []uint64) error
}

// Registry tracks time-bounded usage rights over semi-fungible balances with
// a bounded number of concurrent holders per asset. Reads apply expiry lazily;
// reclaiming frozen quantity requires an explicit Revoke so availability
// accounting never depends on a sweep having run.
type Registry struct {
	state     State
	slotLimit int
}

// NewRegistry constructs a registry. A non-positive slot limit selects
// DefaultSlotLimit.
func NewRegistry(slotLimit int) *Registry {
	if slotLimit <= 0 {
		slotLimit = DefaultSlotLimit
	}
	return &Registry{slotLimit: slotLimit}
}

// SetState wires the registry to the external persistence layer.
func (r *Registry) SetState(state State) { r.state = state }

// SlotLimit returns the per-(asset, user) record bound.
func (r *Registry) SlotLimit() int { return r.slotLimit }

// Deposit credits custodied quantity to an owner's balance.
func (r *Registry) Deposit(collection [20]byte, tokenID uint64, owner [20]byte, qty uint64) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if qty == 0 {
		return ErrInvalidAmount
	}
	dep, err := r.state.DepositGet(collection, tokenID, owner)
	if err != nil {
		return err
	}
	if dep == nil {
		dep = &Deposit{}
	}
	dep.Amount += qty
	return r.state.DepositPut(collection, tokenID, owner, dep)
}

// Withdraw debits unfrozen quantity from an owner's balance, returning it to
// external custody.
func (r *Registry) Withdraw(collection [20]byte, tokenID uint64, owner [20]byte, qty uint64) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	if qty == 0 {
		return ErrInvalidAmount
	}
	dep, err := r.state.DepositGet(collection, tokenID, owner)
	if err != nil {
		return err
	}
	if dep.Available() < qty {
		return fmt.Errorf("%w: need %d, available %d", ErrInsufficientAvailable, qty, dep.Available())
	}
	dep.Amount -= qty
	return r.state.DepositPut(collection, tokenID, owner, dep)
}

// Available returns the unfrozen quantity custodied for an owner.
func (r *Registry) Available(collection [20]byte, tokenID uint64, owner [20]byte) (uint64, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	dep, err := r.state.DepositGet(collection, tokenID, owner)
	if err != nil {
		return 0, err
	}
	return dep.Available(), nil
}

// FrozenBalance returns the quantity of an owner's deposit currently bound by
// live records.
func (r *Registry) FrozenBalance(collection [20]byte, tokenID uint64, owner [20]byte) (uint64, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	dep, err := r.state.DepositGet(collection, tokenID, owner)
	if err != nil {
		return 0, err
	}
	if dep == nil {
		return 0, nil
	}
	return dep.Frozen, nil
}

// CanGrant reports whether one more record for user on the given asset would
// respect the slot limit. Settlement callers check this before moving assets
// so a limit breach never leaves a half-applied trade.
func (r *Registry) CanGrant(collection [20]byte, tokenID uint64, user [20]byte) error {
	if r == nil || r.state == nil {
		return errNilState
	}
	ids, err := r.state.UserRecordsGet(user, collection, tokenID)
	if err != nil {
		return err
	}
	if len(ids) >= r.slotLimit {
		return fmt.Errorf("%w: limit %d", ErrTooManyRecords, r.slotLimit)
	}
	return nil
}

// Grant freezes quantity from the owner's deposit and creates a record
// conveying usage rights to the user until expiry.
func (r *Registry) Grant(collection [20]byte, tokenID uint64, owner, user [20]byte, qty uint64, expiry, now int64) (*Record, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	if qty == 0 {
		return nil, ErrInvalidAmount
	}
	if expiry <= now {
		return nil, fmt.Errorf("%w: expiry %d, now %d", ErrInvalidExpiry, expiry, now)
	}
	ids, err := r.state.UserRecordsGet(user, collection, tokenID)
	if err != nil {
		return nil, err
	}
	if len(ids) >= r.slotLimit {
		return nil, fmt.Errorf("%w: limit %d", ErrTooManyRecords, r.slotLimit)
	}
	dep, err := r.state.DepositGet(collection, tokenID, owner)
	if err != nil {
		return nil, err
	}
	if dep.Available() < qty {
		return nil, fmt.Errorf("%w: need %d, available %d", ErrInsufficientAvailable, qty, dep.Available())
	}
	id, err := r.state.NextRecordID()
	if err != nil {
		return nil, err
	}
	record := &Record{
		ID:         id,
		Collection: collection,
		TokenID:    tokenID,
		Amount:     qty,
		Owner:      owner,
		User:       user,
		Expiry:     expiry,
	}
	if err := r.state.RecordPut(record); err != nil {
		return nil, err
	}
	dep.Frozen += qty
	if err := r.state.DepositPut(collection, tokenID, owner, dep); err != nil {
		return nil, err
	}
	if err := r.state.UserRecordsPut(user, collection, tokenID, append(ids, id)); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// Revoke tombstones an expired record and restores its quantity to the
// owner's available balance. Anyone may call it; rights correctness never
// depends on it because reads apply expiry lazily.
func (r *Registry) Revoke(recordID uint64, now int64) (*Record, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	record, ok, err := r.state.RecordGet(recordID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNonexistentRecord, recordID)
	}
	if now < record.Expiry {
		return nil, fmt.Errorf("%w: expires %d, now %d", ErrNotYetExpired, record.Expiry, now)
	}
	dep, err := r.state.DepositGet(record.Collection, record.TokenID, record.Owner)
	if err != nil {
		return nil, err
	}
	if dep.Frozen >= record.Amount {
		dep.Frozen -= record.Amount
	} else {
		dep.Frozen = 0
	}
	if err := r.state.DepositPut(record.Collection, record.TokenID, record.Owner, dep); err != nil {
		return nil, err
	}
	ids, err := r.state.UserRecordsGet(record.User, record.Collection, record.TokenID)
	if err != nil {
		return nil, err
	}
	filtered := ids[:0]
	for _, id := range ids {
		if id != recordID {
			filtered = append(filtered, id)
		}
	}
	if err := r.state.UserRecordsPut(record.User, record.Collection, record.TokenID, filtered); err != nil {
		return nil, err
	}
	if err := r.state.RecordDelete(recordID); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

// RecordOf resolves a record by id. Tombstoned and never-created ids both
// report ErrNonexistentRecord.
func (r *Registry) RecordOf(recordID uint64) (*Record, error) {
	if r == nil || r.state == nil {
		return nil, errNilState
	}
	record, ok, err := r.state.RecordGet(recordID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrNonexistentRecord, recordID)
	}
	return record.Clone(), nil
}

// UsableBalance sums the quantity a user currently holds usage rights over
// for one asset. Expired records contribute nothing even before they are
// swept.
func (r *Registry) UsableBalance(user [20]byte, collection [20]byte, tokenID uint64, now int64) (uint64, error) {
	if r == nil || r.state == nil {
		return 0, errNilState
	}
	ids, err := r.state.UserRecordsGet(user, collection, tokenID)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, id := range ids {
		record, ok, err := r.state.RecordGet(id)
		if err != nil {
			return 0, err
		}
		if ok && record.ActiveAt(now) {
			total += record.Amount
		}
	}
	return total, nil
}
